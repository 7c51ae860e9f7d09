// Package sequence assigns human-facing report numbers.
//
// Numbers are issued per namespace (the calendar year of completion) and are
// formatted as "<namespace>-<n>". A number is requested once per report; the
// completion sequence stores it before anything else can fail.
package sequence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/DukeRupert/fieldreport/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Generator issues the next number in a namespace.
type Generator interface {
	Next(ctx context.Context, namespace string) (string, error)
}

// Format renders a sequence id.
func Format(namespace string, n int64) string {
	return fmt.Sprintf("%s-%d", namespace, n)
}

// YearNamespace is the namespace a report completed at t belongs to.
func YearNamespace(t time.Time) string {
	return t.Format("2006")
}

func validateNamespace(namespace string) error {
	if strings.TrimSpace(namespace) == "" {
		return fmt.Errorf("sequence namespace is required")
	}
	return nil
}

// =============================================================================
// Redis
// =============================================================================

// KeyPrefix prefixes every counter key.
const KeyPrefix = "fieldreport:seq:"

// RedisGenerator increments a counter per namespace. INCR is atomic on the
// server, so every device sharing the instance draws from one sequence.
type RedisGenerator struct {
	client *redis.Client
}

// NewRedisGenerator connects to redisURL and verifies the connection.
func NewRedisGenerator(redisURL string) (*RedisGenerator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisGenerator{client: client}, nil
}

// NewRedisGeneratorWithClient wraps an existing client.
func NewRedisGeneratorWithClient(client *redis.Client) *RedisGenerator {
	return &RedisGenerator{client: client}
}

func (g *RedisGenerator) Next(ctx context.Context, namespace string) (string, error) {
	if err := validateNamespace(namespace); err != nil {
		return "", err
	}

	n, err := g.client.Incr(ctx, KeyPrefix+namespace).Result()
	if err != nil {
		metrics.SequenceAssignments.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("increment %s: %w", namespace, err)
	}
	metrics.SequenceAssignments.WithLabelValues("success").Inc()
	return Format(namespace, n), nil
}

// Close releases the connection pool.
func (g *RedisGenerator) Close() error {
	return g.client.Close()
}

// =============================================================================
// In-memory
// =============================================================================

// MemoryGenerator is a process-local counter for development and tests.
// Numbers restart with the process.
type MemoryGenerator struct {
	mu       sync.Mutex
	counters map[string]int64
	err      error
}

func NewMemoryGenerator() *MemoryGenerator {
	return &MemoryGenerator{counters: make(map[string]int64)}
}

// SetError makes Next fail with err until cleared with nil.
func (g *MemoryGenerator) SetError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// Issued returns how many numbers were handed out in namespace.
func (g *MemoryGenerator) Issued(namespace string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters[namespace]
}

func (g *MemoryGenerator) Next(ctx context.Context, namespace string) (string, error) {
	if err := validateNamespace(namespace); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		metrics.SequenceAssignments.WithLabelValues("failure").Inc()
		return "", g.err
	}
	g.counters[namespace]++
	metrics.SequenceAssignments.WithLabelValues("success").Inc()
	return Format(namespace, g.counters[namespace]), nil
}
