package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

const tracerName = "github.com/bytebites/bytebites-core/pkg/lifecycle"

// Hook runs during start or stop. A non-nil error moves the service to
// [StateFailed]. Hooks run outside the state lock and may call State or
// Info.
type Hook func(ctx context.Context) error

// StateChangeHandler observes transitions. Handlers run under the state
// lock, so they must not call back into the service. A panicking handler is
// recovered and logged.
type StateChangeHandler func(old, new State)

// Info is a snapshot of a service for health endpoints.
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	State     State         `json:"state"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Service is a process-level lifecycle with start and stop hooks. It is
// safe for concurrent use.
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	tracer   trace.Tracer
	logger   *slog.Logger
	onStart  Hook
	onStop   Hook
	handlers []StateChangeHandler
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Version returns the service version.
func (s *Service) Version() string { return s.version }

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot. Uptime is set only while running.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{Name: s.name, Version: s.version, State: s.state}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}
	return info
}

// Health returns nil while running and an UNAVAIL_001 error otherwise.
func (s *Service) Health(context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable,
			"lifecycle: %s is not running, current state is %q", s.name, state)
	}
	return nil
}

func (s *Service) setState(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state
	if !ValidTransition(from, to) {
		return sserr.Newf(sserr.CodeConflict,
			"lifecycle: invalid state transition from %q to %q", from, to)
	}
	s.state = to

	for _, h := range s.handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r, "service", s.name,
						"old_state", string(from), "new_state", string(to))
				}
			}()
			h(from, to)
		}()
	}
	return nil
}

// Start moves the service through starting to running, running the start
// hook in between. Start is valid from unknown, stopped or failed.
func (s *Service) Start(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer func() { finishSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: start canceled")
	}
	if err := s.setState(StateStarting); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: starting", "service", s.name, "version", s.version)

	if err := s.runHook(ctx, s.onStart, "start"); err != nil {
		return err
	}
	if err := s.setState(StateRunning); err != nil {
		return err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: started", "service", s.name)
	return nil
}

// Stop moves the service through stopping to stopped, running the stop hook
// in between. Stopping a stopped or failed service is a no-op.
func (s *Service) Stop(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer func() { finishSpan(span, err) }()

	if s.State().IsTerminal() {
		return nil
	}
	if err := s.setState(StateStopping); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: stopping", "service", s.name)

	if err := s.runHook(ctx, s.onStop, "stop"); err != nil {
		return err
	}
	if err := s.setState(StateStopped); err != nil {
		return err
	}

	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: stopped", "service", s.name)
	return nil
}

func (s *Service) runHook(ctx context.Context, hook Hook, phase string) error {
	if hook == nil {
		return nil
	}
	if err := hook(ctx); err != nil {
		s.logger.ErrorContext(ctx, "lifecycle: hook failed",
			"service", s.name, "phase", phase, "error", err)
		_ = s.setState(StateFailed)
		return sserr.Wrapf(err, sserr.CodeInternal, "lifecycle: %s hook failed", phase)
	}
	return nil
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.String("service.version", s.version),
		),
	)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ServiceBuilder assembles a [Service].
type ServiceBuilder struct {
	name     string
	version  string
	logger   *slog.Logger
	onStart  Hook
	onStop   Hook
	handlers []StateChangeHandler
}

// NewServiceBuilder starts a builder for the named service.
func NewServiceBuilder(name, version string) *ServiceBuilder {
	return &ServiceBuilder{name: name, version: version}
}

// WithLogger sets the logger. The default is slog.Default().
func (b *ServiceBuilder) WithLogger(logger *slog.Logger) *ServiceBuilder {
	b.logger = logger
	return b
}

// WithOnStart sets the start hook.
func (b *ServiceBuilder) WithOnStart(hook Hook) *ServiceBuilder {
	b.onStart = hook
	return b
}

// WithOnStop sets the stop hook.
func (b *ServiceBuilder) WithOnStop(hook Hook) *ServiceBuilder {
	b.onStop = hook
	return b
}

// OnStateChange adds a transition observer.
func (b *ServiceBuilder) OnStateChange(h StateChangeHandler) *ServiceBuilder {
	if h != nil {
		b.handlers = append(b.handlers, h)
	}
	return b
}

// Build validates the builder and returns a service in [StateUnknown].
func (b *ServiceBuilder) Build() (*Service, error) {
	if b.name == "" {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: service name must not be empty")
	}
	if b.version == "" {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: service version must not be empty")
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		name:     b.name,
		version:  b.version,
		state:    StateUnknown,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
		onStart:  b.onStart,
		onStop:   b.onStop,
		handlers: append([]StateChangeHandler(nil), b.handlers...),
	}, nil
}
