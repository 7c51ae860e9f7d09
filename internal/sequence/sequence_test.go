package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisGenerator_Next(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	g, err := NewRedisGenerator("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	first, err := g.Next(ctx, "2026")
	require.NoError(t, err)
	second, err := g.Next(ctx, "2026")
	require.NoError(t, err)
	other, err := g.Next(ctx, "2027")
	require.NoError(t, err)

	assert.Equal(t, "2026-1", first)
	assert.Equal(t, "2026-2", second)
	assert.Equal(t, "2027-1", other)

	stored, err := mr.Get(KeyPrefix + "2026")
	require.NoError(t, err)
	assert.Equal(t, "2", stored)
}

func TestRedisGenerator_Concurrent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	g := NewRedisGeneratorWithClient(client)

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := g.Next(context.Background(), "2026")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 20)
}

func TestRedisGenerator_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	g := NewRedisGeneratorWithClient(client)

	mr.Close()

	_, err := g.Next(context.Background(), "2026")
	assert.Error(t, err)
}

func TestNewRedisGenerator_BadURL(t *testing.T) {
	_, err := NewRedisGenerator("not a url")
	assert.Error(t, err)
}

func TestMemoryGenerator(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGenerator()

	id, err := g.Next(ctx, "2026")
	require.NoError(t, err)
	assert.Equal(t, "2026-1", id)
	assert.EqualValues(t, 1, g.Issued("2026"))

	boom := errors.New("offline")
	g.SetError(boom)
	_, err = g.Next(ctx, "2026")
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, g.Issued("2026"))

	g.SetError(nil)
	id, err = g.Next(ctx, "2026")
	require.NoError(t, err)
	assert.Equal(t, "2026-2", id)

	_, err = g.Next(ctx, " ")
	assert.Error(t, err)
}

func TestYearNamespace(t *testing.T) {
	assert.Equal(t, "2026", YearNamespace(time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)))
}
