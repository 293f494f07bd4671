// Package scheduler implements the Interview Runner / fan-out (C8, spec
// §4.9): concurrent execution of the full `Survey × [Agent] × [Scenario] ×
// [Model] × iterations` Cartesian product, with ordered result assembly,
// bounded concurrency, and cooperative cancellation. Grounded on the
// teacher's `runtime/agent/engine/inmem/engine.go` goroutine-per-workflow
// pattern, retargeted from a single long-running agent loop to many
// short-lived, independent Interviews drawn from a bounded worker pool.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"edsl/pkg/agent"
	"edsl/pkg/execerr"
	"edsl/pkg/interview"
	"edsl/pkg/invigilator"
	"edsl/pkg/model"
	"edsl/pkg/resultset"
	"edsl/pkg/scenario"
	"edsl/pkg/survey"
	"edsl/pkg/telemetry"
)

// defaultConcurrency is the worker-pool size used when Config.Concurrency is
// unset (spec §4.9: "a typical default is on the order of tens to low
// hundreds of simultaneous Interviews").
const defaultConcurrency = 32

// ModelSpec pairs a model identity and its sampling parameters with the
// client that serves calls for it, one entry per model point in the
// population.
type ModelSpec struct {
	Identity model.Identity
	Params   model.Parameters
	Client   model.Client
}

// Job is the scheduler's input: a Survey plus the population to run it
// against (spec §4.9 "Input").
type Job struct {
	Survey     *survey.Survey
	Agents     []*agent.Agent
	Scenarios  []scenario.Scenario
	Models     []ModelSpec
	Iterations int
}

// Total reports the Cartesian product's size (spec §8 invariant 1).
func (j Job) Total() int { return j.total() }

// total reports the Cartesian product's size (spec §8 invariant 1).
func (j Job) total() int {
	agents := len(j.Agents)
	if agents == 0 {
		agents = 1
	}
	iterations := j.Iterations
	if iterations == 0 {
		iterations = 1
	}
	return agents * len(j.Scenarios) * len(j.Models) * iterations
}

// Config tunes scheduler behavior (spec §6.6, SPEC_FULL.md §D.5).
type Config struct {
	// Concurrency bounds the number of simultaneously running Interviews.
	// Zero selects defaultConcurrency.
	Concurrency int

	// InterviewTimeout bounds one Interview's total wall-clock time,
	// distinct from any per-model-call timeout (SPEC_FULL.md §D.5: "the
	// original tracks a wall-clock budget per interview"). Zero means no
	// timeout.
	InterviewTimeout time.Duration

	// StopOnFirstError propagates to every Interview's
	// interview.Interview.StopOnFirstError.
	StopOnFirstError bool
}

// Option configures a Scheduler at construction.
type Option func(*Config)

// WithConcurrency overrides the worker-pool size.
func WithConcurrency(n int) Option { return func(c *Config) { c.Concurrency = n } }

// WithInterviewTimeout bounds each Interview's wall-clock duration.
func WithInterviewTimeout(d time.Duration) Option { return func(c *Config) { c.InterviewTimeout = d } }

// WithStopOnFirstError makes every Interview stop at its first
// FailedValidation turn instead of continuing.
func WithStopOnFirstError() Option { return func(c *Config) { c.StopOnFirstError = true } }

// Snapshot is the scheduler's published progress counter (spec §4.9
// "Progress & status").
type Snapshot struct {
	Total   int
	Queued  int
	Running int
	Done    int
	Failed  int
}

// Scheduler fans a Job out across a bounded worker pool, running one
// Interview per worker slot at a time and assembling Results in canonical
// order (spec §4.9).
type Scheduler struct {
	Job    Job
	Config Config
	Inv    *invigilator.Invigilator

	Logger telemetry.Logger
	Tracer telemetry.Tracer

	// Progress, when set, receives snapshot updates as the job runs.
	// Defaults to a no-op sink; SPEC_FULL.md's Pulse-backed sink
	// (progress_pulse.go) is an optional alternative.
	Progress ProgressSink
}

// New constructs a Scheduler for job, issuing turns through inv.
func New(job Job, inv *invigilator.Invigilator, opts ...Option) *Scheduler {
	s := &Scheduler{
		Job:      job,
		Inv:      inv,
		Logger:   telemetry.NewNoopLogger(),
		Tracer:   telemetry.NewNoopTracer(),
		Progress: NoopProgressSink{},
	}
	for _, o := range opts {
		o(&s.Config)
	}
	return s
}

func (s *Scheduler) concurrency() int {
	if s.Config.Concurrency > 0 {
		return s.Config.Concurrency
	}
	return defaultConcurrency
}

// Handle is the job-control surface returned by Start (design notes: "job
// handle with wait, status, cancel"). It is safe for concurrent use by
// multiple callers.
type Handle struct {
	runID  string
	rs     *resultset.ResultSet
	mu     sync.Mutex
	snap   Snapshot
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
	err    error
}

// RunID is the job's unique identifier, assigned at Start (spec table: "C7
// Interview, C3 Cache: Run/interview identifiers where a stable content hash
// is not itself the identifier").
func (h *Handle) RunID() string { return h.runID }

// Status returns a snapshot of the job's current progress.
func (h *Handle) Status() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}

// Cancel signals cooperative cancellation; in-flight Interviews finish their
// current turn, record partial state, and exit (spec §4.9 "Cancellation").
func (h *Handle) Cancel() {
	h.once.Do(h.cancel)
}

// Wait blocks until the job completes (or was cancelled) and returns the
// assembled ResultSet. A non-nil error indicates a job-level fatal cause
// (spec §7 "Propagation policy"); the partial ResultSet accumulated up to
// that point is still returned.
func (h *Handle) Wait() (*resultset.ResultSet, error) {
	<-h.done
	return h.rs, h.err
}

func (h *Handle) updateSnapshot(fn func(*Snapshot)) Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.snap)
	return h.snap
}

// Start launches the job's worker pool and returns immediately with a
// Handle; call Handle.Wait to block for completion.
func (s *Scheduler) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		runID:  uuid.NewString(),
		rs:     resultset.New(),
		cancel: cancel,
		done:   make(chan struct{}),
		snap:   Snapshot{Total: s.Job.total(), Queued: s.Job.total()},
	}
	s.Progress.Publish(h.runID, h.Status())

	ids := make(chan interview.Identity, s.concurrency())
	go s.enumerate(ctx, ids)

	var wg sync.WaitGroup
	var rsMu sync.Mutex
	var fatalOnce sync.Once
	var fatalErr error

	workers := s.concurrency()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				select {
				case <-ctx.Done():
					return
				default:
				}

				snap := h.updateSnapshot(func(sn *Snapshot) { sn.Queued--; sn.Running++ })
				s.Progress.Publish(h.runID, snap)

				res, err := s.runOne(ctx, id)

				rsMu.Lock()
				h.rs.Insert(resultset.FromInterview(res, s.Job.Survey))
				rsMu.Unlock()

				failed := err != nil || len(res.Exceptions) > 0
				snap = h.updateSnapshot(func(sn *Snapshot) {
					sn.Running--
					sn.Done++
					if failed {
						sn.Failed++
					}
				})
				s.Progress.Publish(h.runID, snap)

				if err != nil && isFatal(err) {
					fatalOnce.Do(func() {
						fatalErr = err
						cancel()
					})
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		h.err = fatalErr
		close(h.done)
	}()

	return h
}

// Run is a convenience blocking wrapper equivalent to Start followed by
// Wait.
func (s *Scheduler) Run(ctx context.Context) (*resultset.ResultSet, error) {
	return s.Start(ctx).Wait()
}

// runOne runs a single Interview, applying Config.InterviewTimeout if set.
func (s *Scheduler) runOne(ctx context.Context, id interview.Identity) (interview.Result, error) {
	if s.Config.InterviewTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Config.InterviewTimeout)
		defer cancel()
	}
	var client model.Client
	for _, m := range s.Job.Models {
		if m.Identity.Key() == id.Model.Key() {
			client = m.Client
			break
		}
	}
	iv := interview.New(s.Inv, client)
	iv.StopOnFirstError = s.Config.StopOnFirstError
	iv.Logger = s.Logger
	iv.Tracer = s.Tracer
	return iv.Run(ctx, id)
}

// isFatal reports whether err should cancel the remaining job (spec §7:
// "auth is fatal (job aborts)").
func isFatal(err error) bool {
	pe, ok := execerr.AsProviderError(err)
	return ok && pe.Kind == execerr.ProviderErrorKindAuth
}

// enumerate produces the job's Cartesian product in the spec's canonical
// order — agents outer, scenarios next, models, iterations innermost (spec
// §4.9 "Fan-out") — assigning each Identity its ordinal Order, and streams
// them lazily onto ids so the scheduler never materializes the full product
// in memory (spec §4.9 "Backpressure").
func (s *Scheduler) enumerate(ctx context.Context, ids chan<- interview.Identity) {
	defer close(ids)

	agents := s.Job.Agents
	if len(agents) == 0 {
		agents = []*agent.Agent{nil}
	}
	iterations := s.Job.Iterations
	if iterations <= 0 {
		iterations = 1
	}

	order := 0
	for _, ag := range agents {
		for _, sc := range s.Job.Scenarios {
			for _, ms := range s.Job.Models {
				for i := 0; i < iterations; i++ {
					id := interview.Identity{
						Survey:    s.Job.Survey,
						Agent:     ag,
						Scenario:  sc,
						Model:     ms.Identity,
						Params:    ms.Params,
						Iteration: i,
						Order:     order,
					}
					order++
					select {
					case ids <- id:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}
}

