package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/storage"
	"github.com/google/uuid"
)

// Типы событий
const (
	EventShareCreated = "share_created"
	EventLinkClicked  = "link_clicked"
	EventConversion   = "conversion"
)

// Event is keyed by the public id of a shared report.
type Event struct {
	Type      string
	PublicID  string
	ReportID  *uuid.UUID
	AccountID *uuid.UUID
	Metadata  map[string]string
	At        time.Time
}

// Sink receives drained events.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

type Logger interface {
	Printf(format string, v ...any)
}

// Emitter: fire-and-forget: Emit никогда не блокирует вызывающего.
type Emitter struct {
	events chan Event
	sinks  []Sink
	logger Logger
	now    func() time.Time

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
}

// NewEmitter starts one worker goroutine draining a buffer of the given size.
func NewEmitter(buffer int, logger Logger, sinks ...Sink) *Emitter {
	if buffer <= 0 {
		buffer = 256
	}
	e := &Emitter{
		events: make(chan Event, buffer),
		sinks:  sinks,
		logger: logger,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

// Emit enqueues an event; a full buffer drops it with a WARN.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = e.now().UTC()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.events <- ev:
	default:
		e.logf("WARN analytics: buffer full, dropped type=%s public_id=%s", ev.Type, ev.PublicID)
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for ev := range e.events {
		e.deliver(ev)
	}
}

func (e *Emitter) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, sink := range e.sinks {
		if err := sink.Write(ctx, ev); err != nil {
			e.logf("WARN analytics: sink failed type=%s public_id=%s err=%v", ev.Type, ev.PublicID, err)
		}
	}
}

// Close stops accepting events and waits until the buffer is drained.
func (e *Emitter) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.events)
		e.mu.Unlock()
	})
	<-e.done
}

func (e *Emitter) logf(format string, v ...any) {
	if e.logger != nil {
		e.logger.Printf(format, v...)
	}
}

// LogSink пишет события в лог
type LogSink struct {
	Logger Logger
}

func (s LogSink) Write(_ context.Context, e Event) error {
	if s.Logger != nil {
		s.Logger.Printf("INFO analytics: type=%s public_id=%s", e.Type, e.PublicID)
	}
	return nil
}

// StorageSink сохраняет события в analytics_events
type StorageSink struct {
	Store storage.AnalyticsStorage
}

func (s StorageSink) Write(ctx context.Context, e Event) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		metadata = raw
	}
	return s.Store.InsertEvent(ctx, &storage.AnalyticsEvent{
		Type:      e.Type,
		PublicID:  e.PublicID,
		ReportID:  e.ReportID,
		AccountID: e.AccountID,
		Metadata:  metadata,
		CreatedAt: e.At,
	})
}
