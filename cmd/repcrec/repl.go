package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/kartikbazzad/repcrec/internal/config"
	"github.com/kartikbazzad/repcrec/internal/logger"
	"github.com/kartikbazzad/repcrec/internal/repcrec"
	"github.com/kartikbazzad/repcrec/internal/runner"
)

// repl holds the interactive session: one live engine, reset on demand.
type repl struct {
	cfg     *config.Config
	log     *logger.Logger
	run     *runner.Runner
	tm      *repcrec.TransactionManager
	tick    int
	history []string
}

func runREPL(cfg *config.Config, log *logger.Logger, run *runner.Runner) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	r := &repl{cfg: cfg, log: log, run: run}
	r.reset()

	fmt.Println("RepCRec interactive mode. Type 'help' for commands, 'quit' to exit.")

	for {
		input, err := line.Prompt(cfg.REPL.Prompt)
		if err == liner.ErrPromptAborted || err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		r.remember(input)

		if quit := r.dispatch(input); quit {
			return nil
		}
	}
}

// dispatch handles one input line; returns true on quit.
func (r *repl) dispatch(input string) bool {
	switch input {
	case "quit", "exit":
		return true
	case "help":
		r.printHelp()
	case "history":
		for _, h := range r.history {
			fmt.Println(h)
		}
	case "stats":
		fmt.Print(r.run.Metrics.Export())
	case "refresh":
		r.reset()
		fmt.Println("state reset")
	case "<END>":
		r.tick++
		r.run.Drain(r.tm, os.Stdout, r.tick)
		r.reset()
	default:
		r.step(input)
	}
	return false
}

func (r *repl) step(input string) {
	op, err := repcrec.Parse(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	r.tick++
	if err := r.tm.Step(op, r.tick); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

func (r *repl) reset() {
	r.tm = repcrec.NewTransactionManager(r.cfg.DB, os.Stdout, r.log, r.run.Metrics)
	r.tick = 0
}

func (r *repl) remember(input string) {
	r.history = append(r.history, input)
	if len(r.history) > r.cfg.REPL.HistoryLimit {
		r.history = r.history[1:]
	}
}

func (r *repl) printHelp() {
	fmt.Println("Operations:")
	fmt.Println("  begin(T1)      beginRO(T2)     end(T1)")
	fmt.Println("  R(T1,x2)       W(T1,x2,10)")
	fmt.Println("  fail(3)        recover(3)      dump()")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  <END>      drain the blocked queue, then reset state and tick")
	fmt.Println("  refresh    reset state and tick")
	fmt.Println("  history    show entered lines")
	fmt.Println("  stats      print engine counters")
	fmt.Println("  quit       exit")
}
