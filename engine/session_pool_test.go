package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/siteprobe/models"
	"github.com/use-agent/siteprobe/retry"
)

func TestSessionPool_ReusesReleasedSession(t *testing.T) {
	f := &fakeFactory{}
	pool := NewSessionPool(PoolConfig{MaxSessions: 2}, f.open)
	defer pool.Close()

	h1, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Available())

	pool.Release(h1, true)
	assert.Equal(t, 2, pool.Available())

	h2, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, h1.ID, h2.ID)
	assert.EqualValues(t, 1, f.created.Load())
	assert.Equal(t, 1, h2.Session().(*fakeSession).resets)
	pool.Release(h2, true)
}

func TestSessionPool_AcquireTimeoutIsFatalAndLeakFree(t *testing.T) {
	f := &fakeFactory{}
	pool := NewSessionPool(PoolConfig{MaxSessions: 1}, f.open)
	defer pool.Close()

	held, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	before := pool.Available()

	start := time.Now()
	_, err = pool.Acquire(context.Background(), 50*time.Millisecond)
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, models.KindFatal, retry.Classify(err))
	assert.ErrorIs(t, err, models.ErrPoolExhausted)
	assert.Equal(t, before, pool.Available())

	pool.Release(held, true)
	assert.Equal(t, 1, pool.Available())
}

func TestSessionPool_AcquireHonoursCancellation(t *testing.T) {
	pool := NewSessionPool(PoolConfig{MaxSessions: 1}, (&fakeFactory{}).open)
	defer pool.Close()

	held, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer pool.Release(held, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Acquire(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, pool.Available())
}

func TestSessionPool_RetiresFailingSession(t *testing.T) {
	f := &fakeFactory{}
	pool := NewSessionPool(PoolConfig{MaxSessions: 1}, f.open)
	defer pool.Close()

	var first *fakeSession
	for i := 0; i < 3; i++ {
		h, err := pool.Acquire(context.Background(), time.Second)
		require.NoError(t, err)
		if first == nil {
			first = h.Session().(*fakeSession)
		}
		pool.Release(h, false)
	}

	assert.True(t, first.closed)
	assert.Equal(t, 0, pool.Stats().LiveSessions)
	assert.Equal(t, 1, pool.Available())
}

func TestSessionPool_FactoryErrorFreesSlot(t *testing.T) {
	f := &fakeFactory{err: errors.New("browser gone")}
	pool := NewSessionPool(PoolConfig{MaxSessions: 1}, f.open)
	defer pool.Close()

	_, err := pool.Acquire(context.Background(), time.Second)
	require.Error(t, err)
	assert.Equal(t, models.KindFatal, retry.Classify(err))
	assert.Equal(t, 1, pool.Available())
}

func TestSessionPool_CloseClosesEverything(t *testing.T) {
	f := &fakeFactory{}
	pool := NewSessionPool(PoolConfig{MinSessions: 2, MaxSessions: 2}, f.open)
	assert.Equal(t, 2, pool.Stats().LiveSessions)

	pool.Close()
	for _, s := range f.sessions {
		assert.True(t, s.closed)
	}

	_, err := pool.Acquire(context.Background(), 10*time.Millisecond)
	assert.Error(t, err)
}
