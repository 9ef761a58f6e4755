package store

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	valkey "github.com/valkey-io/valkey-go"

	"github.com/legit-games/eveauth/logging"
)

const (
	defaultLeaderLockTTL     = 30 * time.Second
	defaultLeaderRenewPeriod = 10 * time.Second
)

// Lua scripts for atomic check-and-renew / check-and-release.
const (
	renewScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("expire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
	releaseScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
)

// LeaderElection elects one instance per job (refresher, reaper) through a
// valkey SET NX EX lock. It runs as a supervised service.
type LeaderElection struct {
	client   valkey.Client
	key      string
	identity string

	lockTTL     time.Duration
	renewPeriod time.Duration

	mu       sync.RWMutex
	isLeader bool
}

// LeaderElectionConfig holds configuration for leader election.
type LeaderElectionConfig struct {
	// Job names the lock, e.g. "refresher".
	Job string
	// Prefix namespaces the lock key.
	Prefix string
	// LockTTL is how long the leader lock is valid.
	LockTTL time.Duration
	// RenewPeriod should be less than LockTTL.
	RenewPeriod time.Duration
	// Identity defaults to hostname + short uuid.
	Identity string
}

func NewLeaderElection(client valkey.Client, config LeaderElectionConfig) *LeaderElection {
	if config.LockTTL == 0 {
		config.LockTTL = defaultLeaderLockTTL
	}
	if config.RenewPeriod == 0 {
		config.RenewPeriod = defaultLeaderRenewPeriod
	}
	if config.Identity == "" {
		hostname, _ := os.Hostname()
		config.Identity = fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
	}
	return &LeaderElection{
		client:      client,
		key:         config.Prefix + "leader:" + config.Job,
		identity:    config.Identity,
		lockTTL:     config.LockTTL,
		renewPeriod: config.RenewPeriod,
	}
}

func (le *LeaderElection) String() string { return "leader-election:" + le.key }

// IsLeader returns whether this instance currently holds the lock.
func (le *LeaderElection) IsLeader() bool {
	le.mu.RLock()
	defer le.mu.RUnlock()
	return le.isLeader
}

func (le *LeaderElection) Identity() string { return le.identity }

// CurrentLeader returns the identity holding the lock, or "".
func (le *LeaderElection) CurrentLeader(ctx context.Context) (string, error) {
	res := le.client.Do(ctx, le.client.B().Get().Key(le.key).Build())
	if err := res.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return "", nil
		}
		return "", err
	}
	return res.ToString()
}

func (le *LeaderElection) tryAcquire(ctx context.Context) (bool, error) {
	res := le.client.Do(ctx, le.client.B().Set().Key(le.key).Value(le.identity).Nx().Ex(le.lockTTL).Build())
	if err := res.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return false, nil
		}
		return false, err
	}
	ok, err := res.ToString()
	if err != nil {
		return false, nil
	}
	return ok == "OK", nil
}

func (le *LeaderElection) renew(ctx context.Context) (bool, error) {
	ttl := strconv.FormatInt(int64(le.lockTTL.Seconds()), 10)
	res := le.client.Do(ctx, le.client.B().Eval().Script(renewScript).Numkeys(1).Key(le.key).Arg(le.identity).Arg(ttl).Build())
	if err := res.Error(); err != nil {
		return false, err
	}
	n, err := res.ToInt64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (le *LeaderElection) release(ctx context.Context) error {
	return le.client.Do(ctx, le.client.B().Eval().Script(releaseScript).Numkeys(1).Key(le.key).Arg(le.identity).Build()).Error()
}

// Serve keeps trying to acquire or renew the lock until ctx is done.
func (le *LeaderElection) Serve(ctx context.Context) error {
	log := logging.WithComponent("leader-election")
	le.check(ctx)
	ticker := time.NewTicker(le.renewPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			le.step(false)
			// ctx is done; release with a short detached deadline.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := le.release(rctx); err != nil {
				log.Warn().Err(err).Str("key", le.key).Msg("release failed")
			}
			cancel()
			return ctx.Err()
		case <-ticker.C:
			le.check(ctx)
		}
	}
}

func (le *LeaderElection) check(ctx context.Context) {
	log := logging.WithComponent("leader-election")
	if le.IsLeader() {
		renewed, err := le.renew(ctx)
		if err != nil {
			log.Warn().Err(err).Str("key", le.key).Msg("renew failed")
		}
		if err != nil || !renewed {
			log.Info().Str("key", le.key).Str("identity", le.identity).Msg("lost leadership")
			le.step(false)
		}
		return
	}
	acquired, err := le.tryAcquire(ctx)
	if err != nil {
		log.Warn().Err(err).Str("key", le.key).Msg("acquire failed")
		return
	}
	if acquired {
		log.Info().Str("key", le.key).Str("identity", le.identity).Msg("became leader")
		le.step(true)
	}
}

func (le *LeaderElection) step(leader bool) {
	le.mu.Lock()
	le.isLeader = leader
	le.mu.Unlock()
}

// Gate reports whether a job should run on this instance.
type Gate interface {
	IsLeader() bool
}

// AlwaysLeader is the gate of a single-instance deployment.
type AlwaysLeader struct{}

func (AlwaysLeader) IsLeader() bool { return true }
