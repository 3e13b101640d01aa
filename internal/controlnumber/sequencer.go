package controlnumber

import (
	"context"
	"fmt"
	"time"

	"github.com/doctrack/doctrack/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// ReferenceSource lists existing reference numbers starting with prefix.
type ReferenceSource interface {
	ReferenceNumbers(ctx context.Context, prefix string) ([]string, error)
}

// Sequencer hands out the next series for a prefix.
type Sequencer interface {
	NextSeries(ctx context.Context, prefix string) (int, error)
	Name() string
}

// ScanSequencer reads existing references and returns max+1. Two callers
// racing on the same prefix can observe the same max and produce the same
// number; duplicates are only found later by FindCollisions.
type ScanSequencer struct {
	src ReferenceSource
}

func NewScanSequencer(src ReferenceSource) *ScanSequencer {
	return &ScanSequencer{src: src}
}

func (s *ScanSequencer) Name() string { return "scan" }

func (s *ScanSequencer) NextSeries(ctx context.Context, prefix string) (int, error) {
	refs, err := s.src.ReferenceNumbers(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list references: %w", err)
	}
	return MaxSeries(prefix, refs) + 1, nil
}

// RedisSequencer serializes allocation through an atomic Redis counter per
// prefix. The counter is seeded from a scan the first time a prefix is
// seen, so numbering continues from whatever the store already holds.
type RedisSequencer struct {
	client *redis.Client
	src    ReferenceSource
	prefix string
	ttl    time.Duration
}

// NewRedisSequencer creates a Redis-backed sequencer. keyPrefix may be
// empty. Counters expire after ttl (zero keeps them forever); a month
// scope is dead once the month is over.
func NewRedisSequencer(client *redis.Client, src ReferenceSource, keyPrefix string, ttl time.Duration) *RedisSequencer {
	if keyPrefix == "" {
		keyPrefix = "ctrlseq:"
	}
	return &RedisSequencer{client: client, src: src, prefix: keyPrefix, ttl: ttl}
}

func (r *RedisSequencer) Name() string { return "redis" }

func (r *RedisSequencer) key(prefix string) string { return r.prefix + prefix }

func (r *RedisSequencer) NextSeries(ctx context.Context, prefix string) (int, error) {
	key := r.key(prefix)
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("sequence exists: %w", err)
	}
	if exists == 0 {
		refs, err := r.src.ReferenceNumbers(ctx, prefix)
		if err != nil {
			return 0, fmt.Errorf("seed references: %w", err)
		}
		// only the first seeder wins; later ones fall through to INCR
		if err := r.client.SetNX(ctx, key, MaxSeries(prefix, refs), r.ttl).Err(); err != nil {
			return 0, fmt.Errorf("seed sequence: %w", err)
		}
	}
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment sequence: %w", err)
	}
	return int(n), nil
}

// Allocator composes reference numbers using a Sequencer.
type Allocator struct {
	seq Sequencer
}

func NewAllocator(seq Sequencer) *Allocator {
	return &Allocator{seq: seq}
}

// Allocate returns the next reference number for dept at time at.
func (a *Allocator) Allocate(ctx context.Context, f Format, dept string, at time.Time) (string, error) {
	prefix := Prefix(f, dept, at)
	n, err := a.seq.NextSeries(ctx, prefix)
	if err != nil {
		return "", err
	}
	metrics.Allocations.WithLabelValues(f.String(), a.seq.Name()).Inc()
	return Compose(prefix, n), nil
}

// Preview computes the number the scan algorithm would hand out next
// without reserving it.
func Preview(ctx context.Context, src ReferenceSource, f Format, dept string, at time.Time) (string, error) {
	prefix := Prefix(f, dept, at)
	refs, err := src.ReferenceNumbers(ctx, prefix)
	if err != nil {
		return "", err
	}
	return Next(prefix, refs), nil
}
