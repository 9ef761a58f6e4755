// Package refresher keeps credentials, characters and corporations in step
// with the upstream API.
//
// Credentials are spread over Interval buckets. Worker i owns buckets i,
// i+Workers, i+2*Workers and so on and refreshes its next bucket every Workers
// periods, so that every bucket is visited once per Interval periods. The
// bucket assignment itself is recomputed every Interval periods.
package refresher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"golang.org/x/time/rate"

	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/metrics"
)

type KeyLister interface {
	KeyIDs(ctx context.Context) ([]int64, error)
}

// Gate reports whether this instance should run background work.
type Gate interface {
	IsLeader() bool
}

type Config struct {
	// Interval is the number of buckets and periods in a full cycle.
	Interval int
	Workers  int
	// Period is the unit of Interval. Default one minute.
	Period time.Duration
	// QPS caps upstream refreshes for the whole pool.
	QPS float64
}

type Refresher struct {
	validator *Validator
	keys      KeyLister
	gate      Gate
	cfg       Config
	limiter   *rate.Limiter

	mu      sync.Mutex
	buckets [][]int64
}

func New(v *Validator, keys KeyLister, gate Gate, cfg Config) *Refresher {
	if cfg.Interval < 1 {
		cfg.Interval = 60
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Workers > cfg.Interval {
		cfg.Workers = cfg.Interval
	}
	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}
	if cfg.QPS <= 0 {
		cfg.QPS = 10
	}
	return &Refresher{
		validator: v,
		keys:      keys,
		gate:      gate,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.QPS), 1),
	}
}

func (r *Refresher) String() string { return "refresher" }

// Serve runs the assignment loop and one worker per configured worker under
// a child supervisor.
func (r *Refresher) Serve(ctx context.Context) error {
	sup := suture.NewSimple("refresher")
	sup.Add(&assigner{r: r})
	for i := 0; i < r.cfg.Workers; i++ {
		sup.Add(&worker{r: r, index: i})
	}
	return sup.Serve(ctx)
}

func (r *Refresher) leader() bool {
	return r.gate == nil || r.gate.IsLeader()
}

// Assign recomputes the bucket assignment from the current credential set.
func (r *Refresher) Assign(ctx context.Context) error {
	keys, err := r.keys.KeyIDs(ctx)
	if err != nil {
		return err
	}
	buckets := Partition(keys, r.cfg.Interval)
	r.mu.Lock()
	r.buckets = buckets
	r.mu.Unlock()
	metrics.RefresherBuckets.Set(float64(len(keys)))
	return nil
}

func (r *Refresher) bucket(b int) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b < 0 || b >= len(r.buckets) {
		return nil
	}
	return append([]int64(nil), r.buckets[b]...)
}

// RefreshBucket refreshes every credential of bucket b serially, stopping
// between credentials when ctx is done. It returns the count per result.
func (r *Refresher) RefreshBucket(ctx context.Context, b int) (map[string]int, error) {
	out := map[string]int{}
	for _, keyID := range r.bucket(b) {
		if err := r.limiter.Wait(ctx); err != nil {
			return out, err
		}
		res, err := r.validator.Refresh(ctx, keyID)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("key", keyID).Int("bucket", b).Msg("credential refresh failed")
		}
		out[res]++
	}
	return out, nil
}

type assigner struct{ r *Refresher }

func (a *assigner) String() string { return "refresher-assigner" }

func (a *assigner) Serve(ctx context.Context) error {
	if err := a.r.Assign(ctx); err != nil {
		return fmt.Errorf("refresher: assign: %w", err)
	}
	ticker := time.NewTicker(time.Duration(a.r.cfg.Interval) * a.r.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.r.Assign(ctx); err != nil {
				logging.Error().Err(err).Msg("refresher: bucket assignment failed")
			}
		}
	}
}

type worker struct {
	r     *Refresher
	index int
	next  int
}

func (w *worker) String() string { return fmt.Sprintf("refresher-worker-%d", w.index) }

func (w *worker) Serve(ctx context.Context) error {
	owned := WorkerBuckets(w.index, w.r.cfg.Workers, w.r.cfg.Interval)
	if len(owned) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(time.Duration(w.r.cfg.Workers) * w.r.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !w.r.leader() {
				continue
			}
			b := owned[w.next%len(owned)]
			w.next++
			counts, err := w.r.RefreshBucket(ctx, b)
			if err != nil {
				return err
			}
			logging.Debug().Int("worker", w.index).Int("bucket", b).Interface("results", counts).Msg("bucket refreshed")
		}
	}
}
