package specialize

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheBuildOutlivesCanceledCaller(t *testing.T) {
	c := NewCache()
	started := make(chan struct{})
	release := make(chan struct{})
	var builds atomic.Int32
	build := func(ctx context.Context, id string) (*Schema, error) {
		if builds.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &Schema{Document: id}, nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.Get(first, "doc", build)
		firstErr <- err
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		sc, _, err := c.Get(context.Background(), "doc", build)
		if err == nil && sc.Document != "doc" {
			err = errors.New("wrong schema")
		}
		second <- err
	}()

	cancel()
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("canceled caller did not return")
	}

	close(release)
	require.NoError(t, <-second)
	require.Equal(t, int32(1), builds.Load())
	require.Equal(t, []string{"doc"}, c.IDs())
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	c := NewCache()
	fail := true
	build := func(_ context.Context, id string) (*Schema, error) {
		if fail {
			return nil, errors.New("broken")
		}
		return &Schema{Document: id}, nil
	}

	_, _, err := c.Get(context.Background(), "doc", build)
	require.EqualError(t, err, "broken")
	require.Zero(t, c.Len())

	fail = false
	_, cached, err := c.Get(context.Background(), "doc", build)
	require.NoError(t, err)
	require.False(t, cached)
	_, cached, err = c.Get(context.Background(), "doc", build)
	require.NoError(t, err)
	require.True(t, cached)
}

func TestCacheGetWithDoneContext(t *testing.T) {
	c := NewCache()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.Get(ctx, "doc", func(context.Context, string) (*Schema, error) {
		t.Fatal("build must not run")
		return nil, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
