package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

func TestBus_DeliversAtOrAboveVerbosity(t *testing.T) {
	b := New(10)

	var mu sync.Mutex
	var received []rlmtypes.TrajectoryEventType

	b.Subscribe("verbose-sub", FuncSubscriber{
		Min: rlmtypes.VerbosityVerbose,
		Handler: func(e rlmtypes.TrajectoryEvent) {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, e.EventType)
		},
	})

	// EventError requires only VerbosityErrors, so the verbose subscriber
	// should still receive it.
	b.Publish(rlmtypes.EventError, 0, "boom", nil)
	// EventLLMRequest requires VerbosityDebug, above the subscriber's
	// VerbosityVerbose, so it should not be delivered.
	b.Publish(rlmtypes.EventLLMRequest, 1, "request", nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, rlmtypes.EventError, received[0])
}

func TestBus_TailRetentionIsBounded(t *testing.T) {
	b := New(2)

	b.Publish(rlmtypes.EventCostRecorded, 0, "one", nil)
	b.Publish(rlmtypes.EventCostRecorded, 0, "two", nil)
	b.Publish(rlmtypes.EventCostRecorded, 0, "three", nil)

	tail := b.Tail()
	require.Len(t, tail, 2)
	assert.Equal(t, "two", tail[0].Content)
	assert.Equal(t, "three", tail[1].Content)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New(0)
	calls := 0
	b.Subscribe("s", FuncSubscriber{
		Min:     rlmtypes.VerbositySilent,
		Handler: func(rlmtypes.TrajectoryEvent) { calls++ },
	})
	b.Unsubscribe("s")
	b.Publish(rlmtypes.EventError, 0, "after unsubscribe", nil)
	assert.Equal(t, 0, calls)
}
