package store

import (
	"context"
	"time"

	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/metrics"
)

// expirer is implemented by stores with TTL-reaped rows.
type expirer interface {
	DeleteExpired(ctx context.Context, at time.Time) (int64, error)
}

// CachePurger drops cached upstream answers of a credential.
type CachePurger interface {
	Purge(ctx context.Context, keyID int64) error
}

// Reaper periodically deletes expired credentials, grants, authentication
// requests, authorization codes and old login history.
type Reaper struct {
	Credentials  *CredentialStore
	Cache        CachePurger
	Grants       *GrantStore
	Requests     *AuthRequestStore
	Codes        *AuthorizationCodeStore
	LoginHistory *LoginHistoryStore
	HistoryTTL   time.Duration
	Interval     time.Duration
	Gate         Gate
	Now          func() time.Time
}

func (r *Reaper) String() string { return "reaper" }

// Serve runs a pass every Interval until ctx is done.
func (r *Reaper) Serve(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if r.Gate != nil && !r.Gate.IsLeader() {
				continue
			}
			r.Reap(ctx)
		}
	}
}

// Reap runs one pass and returns the number of rows deleted per table.
func (r *Reaper) Reap(ctx context.Context) map[string]int64 {
	log := logging.WithComponent("reaper")
	at := time.Now().UTC()
	if r.Now != nil {
		at = r.Now().UTC()
	}
	out := make(map[string]int64, 5)
	if r.Credentials != nil {
		keys, err := r.Credentials.DeleteExpiredKeys(ctx, at)
		if err != nil {
			log.Error().Err(err).Str("table", "credentials").Msg("reap failed")
		}
		if err == nil || len(keys) > 0 {
			out["credentials"] = int64(len(keys))
			metrics.ReapedRows.WithLabelValues("credentials").Add(float64(len(keys)))
		}
		if r.Cache != nil {
			for _, k := range keys {
				if err := r.Cache.Purge(ctx, k); err != nil {
					log.Warn().Err(err).Int64("key", k).Msg("purging cached api values")
				}
			}
		}
	}
	jobs := []struct {
		table string
		s     expirer
	}{
		{"application_grants", r.Grants},
		{"authentication_requests", r.Requests},
		{"authorization_codes", r.Codes},
	}
	for _, j := range jobs {
		if isNil(j.s) {
			continue
		}
		n, err := j.s.DeleteExpired(ctx, at)
		if err != nil {
			log.Error().Err(err).Str("table", j.table).Msg("reap failed")
			continue
		}
		out[j.table] = n
		metrics.ReapedRows.WithLabelValues(j.table).Add(float64(n))
	}
	if r.LoginHistory != nil && r.HistoryTTL > 0 {
		n, err := r.LoginHistory.DeleteOlderThan(ctx, at.Add(-r.HistoryTTL))
		if err != nil {
			log.Error().Err(err).Str("table", "login_history").Msg("reap failed")
		} else {
			out["login_history"] = n
			metrics.ReapedRows.WithLabelValues("login_history").Add(float64(n))
		}
	}
	return out
}

// isNil catches typed nil store pointers held in the expirer interface.
func isNil(s expirer) bool {
	switch v := s.(type) {
	case *GrantStore:
		return v == nil
	case *AuthRequestStore:
		return v == nil
	case *AuthorizationCodeStore:
		return v == nil
	}
	return s == nil
}
