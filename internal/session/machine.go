// Package session owns the assessment wizard: the step state machine, its
// gateway calls and the per-session test runner.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/koi-prep/internal/gateway"
	"github.com/terra-clan/koi-prep/internal/models"
)

// Common errors
var (
	ErrNotFound          = errors.New("session not found")
	ErrBusy              = errors.New("session is waiting on the gateway")
	ErrInvalidTransition = errors.New("action not allowed in the current step")
	ErrNotComplete       = errors.New("not every problem has a submission")
	ErrExportInProgress  = errors.New("export already in progress")
)

// Publisher receives session events for live subscribers
type Publisher interface {
	Publish(sessionID string, event models.Event)
}

// Skeletons returns the starter code of a language
type Skeletons interface {
	Skeleton(lang models.Language) string
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, models.Event) {}

// Machine creates sessions and runs their gateway calls in the background.
// Every session created by a Machine shares its gateway, skeletons and
// publisher.
type Machine struct {
	gateway   gateway.Gateway
	skeletons Skeletons
	publisher Publisher
	now       func() time.Time
	wg        sync.WaitGroup
}

// Option configures a Machine
type Option func(*Machine)

// WithPublisher sets the event publisher
func WithPublisher(p Publisher) Option {
	return func(m *Machine) { m.publisher = p }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates a Machine
func NewMachine(gw gateway.Gateway, skeletons Skeletons, opts ...Option) *Machine {
	m := &Machine{
		gateway:   gw,
		skeletons: skeletons,
		publisher: noopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewSession creates a session in SETUP
func (m *Machine) NewSession() *Session {
	now := m.now()
	return &Session{
		machine:   m,
		id:        uuid.New().String(),
		step:      models.StepSetup,
		createdAt: now,
		updatedAt: now,
	}
}

// Wait blocks until every background gateway call has finished
func (m *Machine) Wait() {
	m.wg.Wait()
}

// WaitContext is Wait bounded by ctx
func (m *Machine) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch runs fn in a tracked goroutine. Gateway calls are never
// cancelled by the user, so fn gets a background context.
func (m *Machine) dispatch(name, sessionID string, fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background task panicked", "task", name, "session_id", sessionID, "panic", r)
			}
		}()
		fn(context.Background())
	}()
}
