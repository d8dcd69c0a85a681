package donut

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/metrics"
)

// State of the lazily loaded model.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailedRetryable
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailedRetryable:
		return "failed_retryable"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// attempt is one in-flight construction shared by every caller that arrives
// while it runs.
type attempt struct {
	done chan struct{}
	h    *Handle
	err  error
}

// Service owns the process-wide model handle. The first Get constructs it;
// concurrent first callers share that one construction. A failed construction
// leaves the service retryable and the next Get tries again. Once ready the
// handle is read without locking.
type Service struct {
	loader      Loader
	modelID     string
	loadTimeout time.Duration
	logger      *slog.Logger

	ready atomic.Pointer[Handle]

	mu      sync.Mutex
	state   State
	current *attempt
	lastErr error
	loads   int
}

type ServiceConfig struct {
	ModelID     string
	LoadTimeout time.Duration // default 10m
}

func NewService(cfg ServiceConfig, loader Loader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 10 * time.Minute
	}
	return &Service{loader: loader, modelID: cfg.ModelID, loadTimeout: cfg.LoadTimeout, logger: logger}
}

// ModelID is the checkpoint this service serves.
func (s *Service) ModelID() string { return s.modelID }

// Get returns the ready handle, constructing it on first use. Construction
// failures are returned as model-load errors. A cancelled ctx stops waiting
// but does not abort a construction other callers may be waiting on.
func (s *Service) Get(ctx context.Context) (*Handle, error) {
	if h := s.ready.Load(); h != nil {
		return h, nil
	}

	s.mu.Lock()
	if h := s.ready.Load(); h != nil {
		s.mu.Unlock()
		return h, nil
	}
	a := s.current
	if a == nil {
		a = &attempt{done: make(chan struct{})}
		s.current = a
		s.state = StateInitializing
		s.loads++
		go s.construct(context.WithoutCancel(ctx), a)
	}
	s.mu.Unlock()

	select {
	case <-a.done:
		return a.h, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) construct(parent context.Context, a *attempt) {
	start := time.Now()
	log := common.LoggerFromContext(parent, s.logger)
	log.Info("donut.load.start", "model", s.modelID)

	ctx, cancel := context.WithTimeout(parent, s.loadTimeout)
	defer cancel()

	h, err := s.safeLoad(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateFailedRetryable
		s.lastErr = err
		a.err = common.ModelLoadError("structured field model could not be loaded", err)
		metrics.RecordModelLoad(s.modelID, "error", elapsed.Seconds())
		log.Error("donut.load.failed", "model", s.modelID, "error", err, "elapsed_ms", elapsed.Milliseconds())
	} else {
		s.ready.Store(h)
		s.state = StateReady
		s.lastErr = nil
		a.h = h
		metrics.RecordModelLoad(s.modelID, "ok", elapsed.Seconds())
		log.Info("donut.load.ok", "model", s.modelID, "device", h.Device.String(), "elapsed_ms", elapsed.Milliseconds())
	}
	s.current = nil
	close(a.done)
}

func (s *Service) safeLoad(ctx context.Context) (h *Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("loader panic: %v", r)
		}
	}()
	h, err = s.loader.Load(ctx)
	if err == nil && h == nil {
		err = fmt.Errorf("loader returned no handle")
	}
	return h, err
}

// Status is a snapshot for readiness reporting.
type Status struct {
	State     string `json:"state"`
	ModelID   string `json:"model_id"`
	Device    string `json:"device,omitempty"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state.String(), ModelID: s.modelID, Attempts: s.loads}
	if h := s.ready.Load(); h != nil {
		st.Device = h.Device.String()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// State reports the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
