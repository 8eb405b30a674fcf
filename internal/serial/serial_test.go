package serial

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPostRunsInOrderOnOneGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := New(8)
	defer e.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 5; i++ {
		i := i
		require.True(t, e.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Flush(ctx))

	mu.Lock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	mu.Unlock()
}

func TestPostNeverBlocksWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := New(1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.True(t, e.Post(func() {
		close(started)
		<-release
	}))
	<-started

	assert.True(t, e.Post(func() {}), "queue slot free")
	assert.False(t, e.Post(func() {}), "queue full")

	close(release)
	e.Close()

	s := e.Stats()
	assert.Equal(t, uint64(2), s.Posted)
	assert.Equal(t, uint64(1), s.Dropped)
	assert.Equal(t, uint64(2), s.Executed)
}

func TestClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := New(0)
	ran := false
	require.True(t, e.Post(func() { ran = true }))

	e.Close()
	e.Close()

	assert.True(t, ran, "queued task runs before close returns")
	assert.False(t, e.Post(func() {}))
	assert.ErrorIs(t, e.Flush(context.Background()), ErrClosed)
}
