package web

import (
	"context"
	"sync"
	"testing"
	"time"

	"solana-rpcpool-go/internal/rpcpool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []WSEvent
}

func (r *recordingBroadcaster) Broadcast(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.(WSEvent))
}

func (r *recordingBroadcaster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type mutableSource struct {
	mu     sync.Mutex
	status rpcpool.Status
}

func (s *mutableSource) Status() rpcpool.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *mutableSource) setHealthy(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.HealthyCount = n
}

func TestStatusPublisher_OnlyOnChangeOrHeartbeat(t *testing.T) {
	src := &mutableSource{status: rpcpool.Status{HealthyCount: 3}}
	out := &recordingBroadcaster{}
	p := NewStatusPublisher(src, out, time.Second)

	assert.True(t, p.Tick(), "first tick always publishes")
	assert.False(t, p.Tick(), "unchanged status is suppressed")

	src.setHealthy(2)
	assert.True(t, p.Tick(), "change publishes")

	published := 0
	for i := 0; i < heartbeatTicks; i++ {
		if p.Tick() {
			published++
		}
	}
	assert.Equal(t, 1, published, "heartbeat fires once per window")

	require.Equal(t, 3, out.count())
	assert.Equal(t, EventPoolStatus, out.events[0].Type)
	assert.Equal(t, 2, out.events[1].Data.(rpcpool.Status).HealthyCount)
}

func TestStatusPublisher_Run(t *testing.T) {
	src := &mutableSource{status: rpcpool.Status{HealthyCount: 1}}
	out := &recordingBroadcaster{}
	p := NewStatusPublisher(src, out, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return out.count() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}

func TestPublishProbe(t *testing.T) {
	out := &recordingBroadcaster{}
	PublishProbe(out, 2, 3)
	require.Equal(t, 1, out.count())
	assert.Equal(t, EventPoolProbe, out.events[0].Type)
	assert.Equal(t, map[string]int{"healthy": 2, "total": 3}, out.events[0].Data)
}
