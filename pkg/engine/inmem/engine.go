// Package inmem provides an in-memory Engine implementation for tests and
// single-process runs. It is not replay-safe: if the process dies mid
// workflow the run is simply gone, unlike pkg/engine/temporal. Grounded on
// the teacher's runtime/agent/engine/inmem/engine.go, trimmed to the
// generic RegisterActivity/RegisterWorkflow surface (the teacher's
// goa-ai-specific RegisterPlannerActivity/RegisterExecuteToolActivity
// helpers have no equivalent here — an Interview workflow calls exactly one
// activity kind, RunTurn).
package inmem

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"edsl/pkg/engine"
	"edsl/pkg/telemetry"
)

type eng struct {
	mu         sync.RWMutex
	workflows  map[string]engine.WorkflowDefinition
	activities map[string]engine.ActivityDefinition
	statuses   map[string]engine.RunStatus
}

// New returns an in-memory Engine.
func New() engine.Engine {
	return &eng{
		workflows:  make(map[string]engine.WorkflowDefinition),
		activities: make(map[string]engine.ActivityDefinition),
		statuses:   make(map[string]engine.RunStatus),
	}
}

func (e *eng) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem: invalid workflow definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.workflows[def.Name]; dup {
		return fmt.Errorf("inmem: workflow %q already registered", def.Name)
	}
	e.workflows[def.Name] = def
	return nil
}

func (e *eng) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem: invalid activity definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.activities[def.Name]; dup {
		return fmt.Errorf("inmem: activity %q already registered", def.Name)
	}
	e.activities[def.Name] = def
	return nil
}

func (e *eng) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	if req.ID == "" {
		return nil, errors.New("inmem: workflow id is required")
	}
	e.mu.RLock()
	def, ok := e.workflows[req.Workflow]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: workflow %q not registered", req.Workflow)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if req.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.RunTimeout)
	}

	wctx := &wfCtx{
		ctx:    runCtx,
		id:     req.ID,
		runID:  req.ID,
		eng:    e,
		sigs:   make(map[string]*signalChan),
		logger: telemetry.NewNoopLogger(),
	}
	h := &handle{done: make(chan struct{}), wfCtx: wctx, cancel: cancel}

	e.setStatus(req.ID, engine.RunStatusRunning)

	go func() {
		defer close(h.done)
		if cancel != nil {
			defer cancel()
		}
		res, err := def.Handler(wctx, req.Input)
		h.mu.Lock()
		h.result, h.err = res, err
		h.mu.Unlock()

		switch {
		case err == nil:
			e.setStatus(req.ID, engine.RunStatusCompleted)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			e.setStatus(req.ID, engine.RunStatusCanceled)
		default:
			e.setStatus(req.ID, engine.RunStatusFailed)
		}
	}()

	return h, nil
}

func (e *eng) setStatus(runID string, status engine.RunStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses[runID] = status
}

func (e *eng) QueryRunStatus(_ context.Context, runID string) (engine.RunStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	status, ok := e.statuses[runID]
	if !ok {
		return "", engine.ErrWorkflowNotFound
	}
	return status, nil
}

type wfCtx struct {
	ctx   context.Context
	id    string
	runID string
	eng   *eng

	sigMu sync.Mutex
	sigs  map[string]*signalChan

	logger telemetry.Logger
}

func (w *wfCtx) Context() context.Context   { return w.ctx }
func (w *wfCtx) WorkflowID() string         { return w.id }
func (w *wfCtx) RunID() string              { return w.runID }
func (w *wfCtx) Logger() telemetry.Logger   { return w.logger }
func (w *wfCtx) Metrics() telemetry.Metrics { return telemetry.NewNoopMetrics() }
func (w *wfCtx) Tracer() telemetry.Tracer   { return telemetry.NewNoopTracer() }
func (w *wfCtx) Now() time.Time             { return time.Now() }

func (w *wfCtx) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return fut.Get(ctx, result)
}

func (w *wfCtx) ExecuteActivityAsync(ctx context.Context, req engine.ActivityRequest) (engine.Future, error) {
	w.eng.mu.RLock()
	def, ok := w.eng.activities[req.Name]
	w.eng.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: activity %q not registered", req.Name)
	}

	actCtx := engine.WithActivityContext(engine.WithWorkflowContext(ctx, w))
	cancel := func() {}
	if req.Timeout > 0 {
		actCtx, cancel = context.WithTimeout(actCtx, req.Timeout)
	}

	f := &future{ready: make(chan struct{})}
	go func() {
		defer close(f.ready)
		defer cancel()
		res, err := def.Handler(actCtx, req.Input)
		f.mu.Lock()
		f.result, f.err = res, err
		f.mu.Unlock()
	}()
	return f, nil
}

func (w *wfCtx) SignalChannel(name string) engine.SignalChannel {
	w.sigMu.Lock()
	defer w.sigMu.Unlock()
	ch, ok := w.sigs[name]
	if !ok {
		ch = &signalChan{ch: make(chan any, 1)}
		w.sigs[name] = ch
	}
	return ch
}

type handle struct {
	mu     sync.Mutex
	done   chan struct{}
	result any
	err    error
	wfCtx  *wfCtx
	cancel context.CancelFunc
}

func (h *handle) Wait(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		assignResult(result, h.result)
		return h.err
	}
}

func (h *handle) Signal(ctx context.Context, name string, payload any) error {
	ch := h.wfCtx.SignalChannel(name).(*signalChan)
	select {
	case ch.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return errors.New("inmem: workflow already completed")
	}
}

func (h *handle) Cancel(_ context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}

type future struct {
	mu     sync.Mutex
	ready  chan struct{}
	result any
	err    error
}

func (f *future) Get(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.ready:
		f.mu.Lock()
		defer f.mu.Unlock()
		assignResult(result, f.result)
		return f.err
	}
}

func (f *future) IsReady() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}

type signalChan struct{ ch chan any }

func (s *signalChan) Receive(ctx context.Context, dest any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case v := <-s.ch:
		assignResult(dest, v)
		return nil
	}
}

func (s *signalChan) ReceiveAsync(dest any) bool {
	select {
	case v := <-s.ch:
		assignResult(dest, v)
		return true
	default:
		return false
	}
}

// assignResult copies src into the value dst points to, when the types are
// assignable. Both workflow and activity results pass through here since
// the in-memory engine carries them as plain `any`, unlike a wire-based
// engine that would decode from bytes instead.
func assignResult(dst, src any) {
	if dst == nil || src == nil {
		return
	}
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return
	}
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dv.Elem().Type()) {
		dv.Elem().Set(sv)
		return
	}
	if dv.Elem().Kind() == reflect.Interface && sv.Type().Implements(dv.Elem().Type()) {
		dv.Elem().Set(sv)
	}
}
