package models

import "time"

// CachedAPIValue is an upstream API response kept until the upstream's cachedUntil.
// KeyID is zero for anonymous calls; Arguments is the hex digest of the call parameters.
type CachedAPIValue struct {
	KeyID     int64          `json:"key_id"`
	Name      string         `json:"name"`
	Arguments string         `json:"arguments"`
	Result    map[string]any `json:"result"`
	Expires   time.Time      `json:"expires"`
}

func (v *CachedAPIValue) Expired(now time.Time) bool {
	return v.Expires.Before(now)
}
