package events

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(_ context.Context, evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

type panicSink struct{}

func (panicSink) Publish(context.Context, Event) {
	panic("sink exploded")
}

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func TestNew(t *testing.T) {
	evt := New(TypeRoleCreated, "t1", "op", map[string]interface{}{"role_id": "r1"})

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, TypeRoleCreated, evt.Type)
	assert.Equal(t, "t1", evt.TenantID)
	assert.Equal(t, "op", evt.Operator)
	assert.False(t, evt.OccurredAt.IsZero())
	assert.Equal(t, "r1", evt.Data["role_id"])

	// IDs are unique per event.
	other := New(TypeRoleCreated, "t1", "op", nil)
	assert.NotEqual(t, evt.ID, other.ID)
}

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	d := NewDispatcher(quietLogger(), a, b)

	for i := 0; i < 5; i++ {
		d.Publish(context.Background(), New(TypeRoleCreated, "t1", "op", nil))
	}
	d.Close()

	assert.Len(t, a.all(), 5)
	assert.Len(t, b.all(), 5)
	assert.Zero(t, d.Dropped())
}

func TestDispatcher_PanickingSinkDoesNotStopDelivery(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(quietLogger(), panicSink{}, sink)

	d.Publish(context.Background(), New(TypeRoleMoved, "t1", "op", nil))
	d.Publish(context.Background(), New(TypeRoleMoved, "t1", "op", nil))
	d.Close()

	// The healthy sink still received every event.
	assert.Len(t, sink.all(), 2)
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(quietLogger(), &captureSink{})
	d.Close()
	assert.NotPanics(t, d.Close)
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	// A blocked sink keeps the delivery goroutine busy so the queue fills.
	release := make(chan struct{})
	blocking := sinkFunc(func(context.Context, Event) { <-release })
	d := NewDispatcher(quietLogger(), blocking)

	// One event occupies the delivery goroutine, defaultQueueSize fill the
	// queue, and everything after that is dropped on the spot.
	for i := 0; i < defaultQueueSize+10; i++ {
		d.Publish(context.Background(), New(TypeRoleCreated, "t1", "op", nil))
	}
	require.Greater(t, d.Dropped(), int64(0))

	close(release)
	d.Close()
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Publish(ctx context.Context, evt Event) { f(ctx, evt) }
