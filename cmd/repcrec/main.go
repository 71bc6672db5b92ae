package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kartikbazzad/repcrec/internal/audit"
	"github.com/kartikbazzad/repcrec/internal/config"
	"github.com/kartikbazzad/repcrec/internal/logger"
	"github.com/kartikbazzad/repcrec/internal/runner"
)

func usage(w *os.File) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  repcrec f -input FILE -output FILE   run a batch file")
	fmt.Fprintln(w, "  repcrec d -input DIR  -output DIR    run every *.txt in DIR")
	fmt.Fprintln(w, "  repcrec i                            interactive mode")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  -audit FILE    record operations and events into a sqlite database")
	fmt.Fprintln(w, "  -workers N     directory-mode concurrency (default 4)")
	fmt.Fprintln(w, "  -v             debug logging")
}

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		return 2
	}
	mode := os.Args[1]

	fs := flag.NewFlagSet("repcrec", flag.ExitOnError)
	input := fs.String("input", "", "input source")
	output := fs.String("output", "", "output destination")
	auditPath := fs.String("audit", "", "sqlite audit database path")
	workers := fs.Int("workers", 0, "directory-mode worker count")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = func() { usage(os.Stderr) }
	if err := fs.Parse(os.Args[2:]); err != nil {
		return 2
	}

	cfg := config.DefaultConfig()
	if *workers > 0 {
		cfg.Runner.Workers = *workers
	}
	cfg.Audit.Path = *auditPath

	log := logger.Default()
	if *verbose {
		log.SetLevel(logger.LevelDebug)
	}

	r := runner.New(cfg, log)
	if cfg.Audit.Path != "" {
		store, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			log.Error("opening audit store: %v", err)
			return 1
		}
		defer store.Close()
		r.Audit = store
		log.Info("auditing to %s (run %s)", cfg.Audit.Path, store.RunID())
	}

	switch mode {
	case "f":
		if *input == "" || *output == "" {
			usage(os.Stderr)
			return 2
		}
		if err := r.RunFile(*input, *output); err != nil {
			log.Error("%v", err)
			return 1
		}
	case "d":
		if *input == "" || *output == "" {
			usage(os.Stderr)
			return 2
		}
		if err := r.RunDir(*input, *output); err != nil {
			log.Error("%v", err)
			return 1
		}
	case "i":
		if err := runREPL(cfg, log, r); err != nil {
			log.Error("%v", err)
			return 1
		}
	default:
		usage(os.Stderr)
		return 2
	}
	return 0
}
