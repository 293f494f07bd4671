package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"
)

// PulseProgressSink publishes Snapshot updates onto a Pulse stream named
// `scheduler/<run_id>` (SPEC_FULL.md §B: "Pulse streams broadcast the
// scheduler's progress snapshot"), grounded on
// `features/stream/pulse/sink.go`'s Send (derive stream, marshal envelope,
// Stream.Add) but built directly against `goa.design/pulse/streaming`
// instead of that file's own thin client wrapper, since the scheduler has no
// other use for a second abstraction layer around one stream per run.
type PulseProgressSink struct {
	redis        *redis.Client
	streamMaxLen int

	mu      sync.Mutex
	streams map[string]*streaming.Stream
}

// NewPulseProgressSink constructs a sink backed by redisClient. streamMaxLen
// bounds the number of snapshot entries retained per run's stream; zero uses
// Pulse's default.
func NewPulseProgressSink(redisClient *redis.Client, streamMaxLen int) *PulseProgressSink {
	return &PulseProgressSink{redis: redisClient, streamMaxLen: streamMaxLen, streams: make(map[string]*streaming.Stream)}
}

// Publish implements ProgressSink by appending snap as a JSON entry to the
// run's Pulse stream. Publish errors are swallowed (progress reporting is
// best-effort observability, never allowed to fail or slow the job itself).
func (p *PulseProgressSink) Publish(runID string, snap Snapshot) {
	stream, err := p.streamFor(runID)
	if err != nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_, _ = stream.Add(context.Background(), "snapshot", payload)
}

// streamFor returns the cached Pulse stream for runID, creating it on first
// use. Guarded by p.mu since Publish (and therefore streamFor) is called
// concurrently from every scheduler worker goroutine (pkg/scheduler/scheduler.go's
// per-worker loop), all publishing snapshots for the same runID at once.
func (p *PulseProgressSink) streamFor(runID string) (*streaming.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.streams[runID]; ok {
		return s, nil
	}
	var opts []streamopts.Stream
	if p.streamMaxLen > 0 {
		opts = append(opts, streamopts.WithStreamMaxLen(p.streamMaxLen))
	}
	s, err := streaming.NewStream(fmt.Sprintf("scheduler/%s", runID), p.redis, opts...)
	if err != nil {
		return nil, err
	}
	p.streams[runID] = s
	return s, nil
}
