package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/buntdb"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
)

// APICacheStore keeps upstream responses in buntdb until their cachedUntil.
type APICacheStore struct {
	db *buntdb.DB
}

// NewAPICacheStore opens the cache file; ":memory:" keeps it in process.
func NewAPICacheStore(path string) (*APICacheStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open api cache: %w", err)
	}
	return &APICacheStore{db: db}, nil
}

func (s *APICacheStore) Close() error { return s.db.Close() }

func cacheKey(keyID int64, name, args string) string {
	return fmt.Sprintf("api:%d:%s:%s", keyID, name, args)
}

// Get returns a live cached value or errors.ErrNotFound.
func (s *APICacheStore) Get(_ context.Context, keyID int64, name, args string) (*models.CachedAPIValue, error) {
	var raw string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(cacheKey(keyID, name, args))
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if stderrors.Is(err, buntdb.ErrNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v models.CachedAPIValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	if v.Expired(now()) {
		return nil, errors.ErrNotFound
	}
	return &v, nil
}

// Put upserts the value; buntdb drops it at v.Expires. Values already expired are not stored.
func (s *APICacheStore) Put(_ context.Context, v *models.CachedAPIValue) error {
	ttl := time.Until(v.Expires)
	if ttl <= 0 {
		return nil
	}
	jv, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(cacheKey(v.KeyID, v.Name, v.Arguments), string(jv), &buntdb.SetOptions{Expires: true, TTL: ttl})
		return err
	})
}

// Purge drops every cached response of a credential.
func (s *APICacheStore) Purge(_ context.Context, keyID int64) error {
	prefix := fmt.Sprintf("api:%d:", keyID)
	return s.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		if err := tx.AscendKeys(prefix+"*", func(k, _ string) bool {
			keys = append(keys, k)
			return true
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := tx.Delete(k); err != nil && !stderrors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
}
