package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lockplane/authcore/pkg/observability"
)

const defaultQueueSize = 256

// Dispatcher fans events out to a set of sinks from a single background
// goroutine. Publish enqueues and returns immediately; when the queue is
// full the event is dropped and counted, never blocking the caller.
type Dispatcher struct {
	sinks []Sink
	queue chan Event
	log   *logrus.Entry

	wg        sync.WaitGroup
	closeOnce sync.Once

	mu      sync.Mutex
	dropped int64
}

// NewDispatcher starts the delivery goroutine. Close must be called to
// drain the queue on shutdown.
func NewDispatcher(logger *logrus.Entry, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	d := &Dispatcher{
		sinks: sinks,
		queue: make(chan Event, defaultQueueSize),
		log:   logger,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Publish enqueues the event for asynchronous delivery.
func (d *Dispatcher) Publish(_ context.Context, evt Event) {
	select {
	case d.queue <- evt:
	default:
		d.mu.Lock()
		d.dropped++
		dropped := d.dropped
		d.mu.Unlock()
		d.log.WithFields(logrus.Fields{
			"event_type":    string(evt.Type),
			"total_dropped": dropped,
		}).Warn("event queue full, dropping event")
	}
}

// Dropped reports how many events were discarded due to a full queue.
func (d *Dispatcher) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close stops accepting events and blocks until the queue drains.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for evt := range d.queue {
		for _, sink := range d.sinks {
			d.deliver(sink, evt)
		}
	}
}

// deliver isolates one sink call so a panicking sink cannot take down the
// delivery goroutine.
func (d *Dispatcher) deliver(sink Sink, evt Event) {
	defer observability.RecoverPanic(
		d.log.WithField("event_type", string(evt.Type)), "event sink")
	sink.Publish(context.Background(), evt)
}

// LogSink writes each event to the structured log. Useful as the default
// sink in development and as an audit trail in production.
type LogSink struct {
	log *logrus.Entry
}

// NewLogSink creates a sink writing through logger.
func NewLogSink(logger *logrus.Entry) *LogSink {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogSink{log: logger}
}

// Publish logs the event.
func (s *LogSink) Publish(_ context.Context, evt Event) {
	s.log.WithFields(logrus.Fields{
		"event_id":   evt.ID,
		"event_type": string(evt.Type),
		"tenant_id":  evt.TenantID,
		"operator":   evt.Operator,
	}).Info("domain event")
}
