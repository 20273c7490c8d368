package sandbox

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	disconnected atomic.Bool
	failNextCall bool
}

func (f *fakeCaller) Call(_ context.Context, method string, _ interface{}) (json.RawMessage, error) {
	if f.failNextCall {
		return nil, assert.AnError
	}
	switch method {
	case "execute":
		return json.RawMessage(`{"success":true}`), nil
	default:
		return json.RawMessage(`null`), nil
	}
}

func (f *fakeCaller) Disconnect() error {
	f.disconnected.Store(true)
	return nil
}

func fakeSpawner() (Spawner, *[]*fakeCaller) {
	var spawned []*fakeCaller
	return func(context.Context) (*RemoteHandle, error) {
		fc := &fakeCaller{}
		spawned = append(spawned, fc)
		return &RemoteHandle{transport: fc}, nil
	}, &spawned
}

func TestPool_AcquireSpawnsUpToMaxSize(t *testing.T) {
	spawn, spawned := fakeSpawner()
	pool := NewPool(spawn, 2)

	h1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	h2, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	_, err = pool.Acquire(context.Background())
	require.Error(t, err)

	assert.Len(t, *spawned, 2)
	assert.Equal(t, 2, pool.Resident())
	_ = h1
	_ = h2
}

func TestPool_ReleaseReturnsHandleToIdleForReuse(t *testing.T) {
	spawn, spawned := fakeSpawner()
	pool := NewPool(spawn, 1)

	h, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(context.Background(), h)

	h2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, h, h2)
	assert.Len(t, *spawned, 1)
}

func TestPool_ReleaseDropsDeadHandle(t *testing.T) {
	spawn, _ := fakeSpawner()
	pool := NewPool(spawn, 1)

	h, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	h.dead = true
	pool.Release(context.Background(), h)

	assert.Equal(t, 0, pool.Resident())

	_, err = pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Resident())
}

func TestPool_AcquireReleaseNeverExceedsMaxSize(t *testing.T) {
	spawn, _ := fakeSpawner()
	pool := NewPool(spawn, 3)

	var handles []*RemoteHandle
	for i := 0; i < 3; i++ {
		h, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		handles = append(handles, h)
	}
	assert.Equal(t, 3, pool.Resident())

	for _, h := range handles {
		pool.Release(context.Background(), h)
	}
	assert.LessOrEqual(t, pool.Resident(), 3)
}

func TestRemoteHandle_ExecuteDecodesResult(t *testing.T) {
	fc := &fakeCaller{}
	h := &RemoteHandle{transport: fc}

	result, err := h.Execute(context.Background(), "1+1", 1000, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRemoteHandle_ExecuteTransportFailureMarksDead(t *testing.T) {
	fc := &fakeCaller{failNextCall: true}
	h := &RemoteHandle{transport: fc}

	_, err := h.Execute(context.Background(), "1+1", 1000, false)
	require.Error(t, err)
	assert.True(t, h.dead)
}
