package analytics

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/Carnacky79/energy-optimizer-v2/internal/storage/memory"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (s *recordingSink) Write(_ context.Context, e Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

type failingSink struct{}

func (failingSink) Write(context.Context, Event) error { return errors.New("boom") }

func TestEmitterDeliversToAllSinks(t *testing.T) {
	store := memory.New()
	rec := &recordingSink{}
	em := NewEmitter(8, nil, rec, StorageSink{Store: store})

	em.Emit(Event{Type: EventShareCreated, PublicID: "p1"})
	em.Emit(Event{Type: EventLinkClicked, PublicID: "p1", Metadata: map[string]string{"referrer": "x"}})
	em.Close()

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	stored := store.Events()
	if len(stored) != 2 || stored[1].Type != EventLinkClicked || string(stored[1].Metadata) != `{"referrer":"x"}` {
		t.Fatalf("unexpected stored events: %+v", stored)
	}
	if stored[0].CreatedAt.IsZero() {
		t.Fatal("expected event time to be stamped")
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	var buf bytes.Buffer
	var logMu sync.Mutex
	logger := log.New(&lockedWriter{w: &buf, mu: &logMu}, "", 0)

	rec := &recordingSink{block: make(chan struct{})}
	em := NewEmitter(1, logger, rec)

	// первый уходит воркеру и блокируется, второй заполняет буфер
	for i := 0; i < 5; i++ {
		em.Emit(Event{Type: EventLinkClicked, PublicID: "p"})
	}
	close(rec.block)
	em.Close()

	logMu.Lock()
	out := buf.String()
	logMu.Unlock()
	if !strings.Contains(out, "buffer full") {
		t.Fatalf("expected drop warning, got: %s", out)
	}
	if len(rec.events) > 2 {
		t.Fatalf("expected at most 2 delivered events, got %d", len(rec.events))
	}
}

func TestEmitterSinkFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	em := NewEmitter(4, logger, failingSink{})
	em.Emit(Event{Type: EventConversion, PublicID: "p"})
	em.Close()

	if !strings.Contains(buf.String(), "sink failed") {
		t.Fatalf("expected sink failure log, got: %s", buf.String())
	}
}

func TestEmitAfterCloseIsIgnored(t *testing.T) {
	em := NewEmitter(1, nil)
	em.Close()
	em.Emit(Event{Type: EventConversion})
	em.Close()

	var nilEmitter *Emitter
	nilEmitter.Emit(Event{Type: EventConversion})
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
