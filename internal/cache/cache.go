// Package cache stores recent predictions keyed by the artifacts and the
// feature vector that produced them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/cementai/plant-core/pkg/config"
	"github.com/cementai/plant-core/pkg/models"
)

// Cache is a prediction cache. A miss is reported as (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*models.Prediction, bool, error)
	Set(ctx context.Context, key string, p *models.Prediction) error
	Close() error
}

// New builds the cache backend named in cfg. A nil config or the "none"
// backend disables caching.
func New(cfg *config.Cache) (Cache, error) {
	if cfg == nil {
		return Nop{}, nil
	}
	ttl, err := cfg.GetTTL()
	if err != nil {
		return nil, fmt.Errorf("cache ttl: %w", err)
	}
	switch cfg.Backend {
	case "", "none":
		return Nop{}, nil
	case "memory":
		return NewMemory(ttl), nil
	case "redis":
		return NewRedis(cfg, ttl), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Key derives the cache key for a prediction. Any change in either
// artifact or any input bit yields a different key.
func Key(modelFingerprint, scalerFingerprint string, x []float64) string {
	h := sha256.New()
	h.Write([]byte(modelFingerprint))
	h.Write([]byte{0})
	h.Write([]byte(scalerFingerprint))
	h.Write([]byte{0})
	var buf [8]byte
	for _, v := range x {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (*models.Prediction, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, *models.Prediction) error { return nil }
func (Nop) Close() error { return nil }
