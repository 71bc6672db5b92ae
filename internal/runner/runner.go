// Package runner drives the engine: it sequences ticks over a case's
// operations, drains the blocked queue after input runs out, and fans whole
// files or directories of cases out to the engine.
package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/panjf2000/ants/v2"

	"github.com/kartikbazzad/repcrec/internal/audit"
	"github.com/kartikbazzad/repcrec/internal/config"
	"github.com/kartikbazzad/repcrec/internal/errors"
	"github.com/kartikbazzad/repcrec/internal/loader"
	"github.com/kartikbazzad/repcrec/internal/logger"
	"github.com/kartikbazzad/repcrec/internal/metrics"
	"github.com/kartikbazzad/repcrec/internal/repcrec"
)

// Runner executes cases. It is safe for concurrent RunCase calls; each call
// builds its own transaction manager.
type Runner struct {
	cfg        *config.Config
	log        *logger.Logger
	classifier *errors.Classifier
	Metrics    *metrics.Registry
	Audit      *audit.Store
}

func New(cfg *config.Config, log *logger.Logger) *Runner {
	return &Runner{
		cfg:        cfg,
		log:        log,
		classifier: errors.NewClassifier(),
		Metrics:    metrics.NewRegistry(),
	}
}

// multiSink fans engine events out to every non-nil sink.
type multiSink []repcrec.EventSink

func (m multiSink) OperationExecuted(op repcrec.Operation, tick int, status repcrec.Status) {
	for _, s := range m {
		s.OperationExecuted(op, tick, status)
	}
}

func (m multiSink) TransactionCommitted(id string, tick int) {
	for _, s := range m {
		s.TransactionCommitted(id, tick)
	}
}

func (m multiSink) TransactionAborted(id string, tick int, reason repcrec.AbortReason) {
	for _, s := range m {
		s.TransactionAborted(id, tick, reason)
	}
}

func (m multiSink) DeadlockDetected(victim string, trace []string, tick int) {
	for _, s := range m {
		s.DeadlockDetected(victim, trace, tick)
	}
}

func (r *Runner) sink(caseName string) repcrec.EventSink {
	sinks := multiSink{r.Metrics}
	if rec := r.Audit.Recorder(caseName); rec != nil {
		sinks = append(sinks, rec)
	}
	return sinks
}

// RunCase runs one case against a fresh engine, writing protocol output to
// out. Input errors are logged, skip their line, and surface in the return
// value after the case still ran to completion.
func (r *Runner) RunCase(caseName string, ops loader.Case, out io.Writer) error {
	tm := repcrec.NewTransactionManager(r.cfg.DB, out, r.log, r.sink(caseName))

	var inputErr error
	tick := 0
	for _, line := range ops {
		tick++
		op, err := repcrec.Parse(line)
		if err != nil {
			r.log.Error("%s: skipping line %d: %v", caseName, tick, err)
			inputErr = err
			continue
		}
		if err := tm.Step(op, tick); err != nil {
			if !r.classifier.IsInput(err) {
				return err
			}
			r.log.Error("%s: line %d rejected: %v", caseName, tick, err)
			inputErr = err
		}
	}

	r.Drain(tm, out, tick)
	r.Metrics.RecordCase()
	return inputErr
}

// Drain keeps retrying the blocked queue after input exhaustion. A full pass
// with no progress means no future tick can help; report and stop.
func (r *Runner) Drain(tm *repcrec.TransactionManager, out io.Writer, tick int) {
	for len(tm.Blocked()) > 0 {
		before := len(tm.Blocked())
		tick++
		tm.Retry(tick)

		if len(tm.Blocked()) == before {
			fmt.Fprintln(out, "Following operation can not be executed, maybe the test case is not terminable:")
			for _, op := range tm.Blocked() {
				fmt.Fprintln(out, op)
			}
			r.Metrics.RecordLivelock()
			return
		}
	}
}

// RunFile runs every case in inPath, writing all results to outPath. Cases
// are banners-and-results in file order, matching the batch format.
func (r *Runner) RunFile(inPath, outPath string) error {
	cases, err := loader.LoadFile(inPath)
	if err != nil {
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return r.runCases(filepath.Base(inPath), cases, f)
}

func (r *Runner) runCases(name string, cases []loader.Case, out io.Writer) error {
	var firstErr error
	for i, c := range cases {
		fmt.Fprintf(out, "Test %d Result\n", i+1)
		caseName := fmt.Sprintf("%s#%d", name, i+1)
		if err := r.RunCase(caseName, c, out); err != nil {
			if !r.classifier.IsInput(err) {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// RunDir runs every *.txt under inDir concurrently, mirroring outputs into
// outDir (created if missing). The per-file work goes through a goroutine
// pool so huge directories do not fan out unboundedly.
func (r *Runner) RunDir(inDir, outDir string) error {
	entries, err := os.ReadDir(inDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	workers := r.cfg.Runner.Workers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return err
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		files    int
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		name := entry.Name()
		files++
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := r.RunFile(filepath.Join(inDir, name), filepath.Join(outDir, name)); err != nil {
				r.log.Error("%s: %v", name, err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}
		if err := pool.Submit(task); err != nil {
			// Pool rejected the task (released under us); run inline.
			task()
		}
	}
	wg.Wait()

	commits, aborts, deadlocks := r.Metrics.Counts()
	r.log.Info("ran %s from %s: %s committed, %s aborted, %s deadlocks",
		plural(files, "file"), inDir,
		humanize.Comma(int64(commits)), humanize.Comma(int64(aborts)), humanize.Comma(int64(deadlocks)))
	return firstErr
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
