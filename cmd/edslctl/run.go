package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"goa.design/clue/log"

	"edsl/pkg/bucket"
	"edsl/pkg/cache"
	"edsl/pkg/invigilator"
	"edsl/pkg/prompt"
	"edsl/pkg/resultset"
	"edsl/pkg/scheduler"
	"edsl/pkg/telemetry"
	"edsl/pkg/validate"
)

// templateCacheCapacity is the compiled-template LRU bound spec §4.2
// requires ("bounded LRU, ≥ 2048 entries").
const templateCacheCapacity = 2048

func runCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	surveyPath, popPath, cachePath, outPath, statusPath, concurrency := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return execute(ctx, *surveyPath, *popPath, *cachePath, *outPath, *statusPath, *concurrency)
}

// resumeCmd is "run" against a pre-populated cache file: the fingerprint
// contract (spec §4.4, §8 invariant 3) makes already-cached turns a no-op
// model call on the second pass, so resuming a partially completed job needs
// no special-cased replay logic of its own (spec §4.9 "Resumability").
func resumeCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	surveyPath, popPath, cachePath, outPath, statusPath, concurrency := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cachePath == "" {
		return fmt.Errorf("resume: -cache is required so prior turns are actually skipped")
	}
	return execute(ctx, *surveyPath, *popPath, *cachePath, *outPath, *statusPath, *concurrency)
}

func execute(ctx context.Context, surveyPath, popPath, cachePath, outPath, statusPath string, concurrency int) error {
	if surveyPath == "" || popPath == "" {
		return fmt.Errorf("both -survey and -population are required")
	}

	sv, err := loadSurvey(surveyPath)
	if err != nil {
		return err
	}
	pop, err := loadPopulation(popPath)
	if err != nil {
		return err
	}
	job, err := buildJob(sv, pop)
	if err != nil {
		return err
	}

	var store cache.Store
	if cachePath != "" {
		fs, err := cache.OpenFileStore(cachePath)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer fs.Close()
		store = fs
	} else {
		store = cache.NewMemoryStore()
	}

	renderer, err := prompt.NewRenderer(templateCacheCapacity)
	if err != nil {
		return fmt.Errorf("build renderer: %w", err)
	}

	logger := telemetry.NewClueLogger()
	inv := invigilator.New(
		renderer,
		cache.New(store),
		bucket.NewCollection(),
		validate.NewRegistry(),
		invigilator.WithTelemetry(logger, telemetry.NewNoopMetrics(), telemetry.NewNoopTracer()),
	)

	opts := []scheduler.Option{}
	if concurrency > 0 {
		opts = append(opts, scheduler.WithConcurrency(concurrency))
	}
	sched := scheduler.New(job, inv, opts...)
	sched.Logger = logger

	var sink *fileProgressSink
	if statusPath != "" {
		sink, err = newFileProgressSink(statusPath)
		if err != nil {
			return err
		}
		defer sink.Close()
		sched.Progress = sink
	}

	handle := sched.Start(ctx)
	log.Info(ctx, log.KV{K: "msg", V: "job started"}, log.KV{K: "run_id", V: handle.RunID()}, log.KV{K: "total", V: job.Total()})

	rs, runErr := handle.Wait()
	if sink != nil {
		sink.Publish(handle.RunID(), handle.Status())
	}

	if err := writeResultSet(rs, outPath); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("job %s ended with a fatal error: %w", handle.RunID(), runErr)
	}
	return nil
}

func writeResultSet(rs *resultset.ResultSet, outPath string) error {
	w := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create -out file: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rs.Rows())
}

// fileProgressSink appends each Snapshot as a JSON line to a status file, so
// a separate `edslctl status` invocation (possibly from another process) can
// report on a long-running job (spec §4.9 "Progress & status"). Grounded on
// the same append-only-JSON-lines idiom pkg/cache.FileStore already uses for
// its own single-file backend, rather than introducing a second storage
// mechanism.
type fileProgressSink struct {
	f *os.File
}

func newFileProgressSink(path string) (*fileProgressSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open status file: %w", err)
	}
	return &fileProgressSink{f: f}, nil
}

type statusLine struct {
	RunID     string             `json:"run_id"`
	Snapshot  scheduler.Snapshot `json:"snapshot"`
	Timestamp string             `json:"timestamp"`
}

func (s *fileProgressSink) Publish(runID string, snap scheduler.Snapshot) {
	line := statusLine{RunID: runID, Snapshot: snap, Timestamp: nowRFC3339()}
	b, err := json.Marshal(line)
	if err != nil {
		return
	}
	b = append(b, '\n')
	_, _ = s.f.Write(b)
}

func (s *fileProgressSink) Close() error { return s.f.Close() }

// nowRFC3339 isolates the one wall-clock read in the CLI so the rest of the
// core stays free of direct time.Now() calls outside the bucket/cache
// timestamp fields that already carry it.
func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }
