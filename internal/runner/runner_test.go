package runner

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kartikbazzad/repcrec/internal/config"
	apperrors "github.com/kartikbazzad/repcrec/internal/errors"
	"github.com/kartikbazzad/repcrec/internal/loader"
	"github.com/kartikbazzad/repcrec/internal/logger"
)

func testRunner() *Runner {
	log := logger.New(&bytes.Buffer{}, logger.LevelError, "[test]")
	return New(config.DefaultConfig(), log)
}

func TestRunCase_CommitFlow(t *testing.T) {
	r := testRunner()
	out := &bytes.Buffer{}

	ops := loader.Case{"begin(T1)", "W(T1,x8,88)", "end(T1)", "dump()"}
	if err := r.RunCase("t", ops, out); err != nil {
		t.Fatalf("RunCase: %v", err)
	}
	if !strings.Contains(out.String(), "Transaction T1 committed") {
		t.Errorf("missing commit line:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "88") {
		t.Errorf("dump missing committed value:\n%s", out.String())
	}

	commits, aborts, _ := r.Metrics.Counts()
	if commits != 1 || aborts != 0 {
		t.Errorf("metrics: commits=%d aborts=%d, want 1/0", commits, aborts)
	}
}

func TestRunCase_InputErrorSkipsLineAndContinues(t *testing.T) {
	r := testRunner()
	out := &bytes.Buffer{}

	ops := loader.Case{"begin(T1)", "nonsense", "W(T1,x2,22)", "end(T1)"}
	err := r.RunCase("t", ops, out)
	if !errors.Is(err, apperrors.ErrBadLine) {
		t.Fatalf("got %v, want ErrBadLine", err)
	}
	if !strings.Contains(out.String(), "Transaction T1 committed") {
		t.Errorf("the case should still run to completion:\n%s", out.String())
	}
}

func TestRunCase_LivelockReported(t *testing.T) {
	r := testRunner()
	out := &bytes.Buffer{}

	// x1 lives at site 2; with it down and never recovering, the read can
	// make no progress and the drain loop must give up.
	ops := loader.Case{"begin(T1)", "fail(2)", "R(T1,x1)"}
	if err := r.RunCase("t", ops, out); err != nil {
		t.Fatalf("RunCase: %v", err)
	}
	if !strings.Contains(out.String(), "can not be executed") {
		t.Errorf("missing livelock report:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "R(T1,x1)") {
		t.Errorf("livelock report should list the stuck op:\n%s", out.String())
	}
}

func TestRunCase_DrainCompletesBlockedWork(t *testing.T) {
	r := testRunner()
	out := &bytes.Buffer{}

	// T2's write stays blocked until T1 commits and T2's end waits behind
	// it; T1 commits on the last input line, so only the drain loop can
	// retry T2's write and end.
	ops := loader.Case{
		"begin(T1)",
		"begin(T2)",
		"W(T1,x5,50)",
		"W(T2,x5,55)",
		"end(T2)",
		"end(T1)",
	}
	if err := r.RunCase("t", ops, out); err != nil {
		t.Fatalf("RunCase: %v", err)
	}
	if !strings.Contains(out.String(), "Transaction T2 committed") {
		t.Errorf("drain should commit T2:\n%s", out.String())
	}
}

func TestRunFile_BannersAndOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	outPath := filepath.Join(dir, "out.txt")

	input := "begin(T1)\nW(T1,x2,21)\nend(T1)\n<END>\nbegin(T2)\ndump()\n<END>\n"
	if err := os.WriteFile(in, []byte(input), 0o644); err != nil {
		t.Fatal(err)
	}

	r := testRunner()
	if err := r.RunFile(in, outPath); err != nil {
		t.Fatalf("RunFile: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, want := range []string{"Test 1 Result", "Test 2 Result", "Transaction T1 committed"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunDir_MirrorsOutputs(t *testing.T) {
	inDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	for _, name := range []string{"a.txt", "b.txt"} {
		path := filepath.Join(inDir, name)
		if err := os.WriteFile(path, []byte("begin(T1)\nend(T1)\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Non-txt files are ignored.
	if err := os.WriteFile(filepath.Join(inDir, "notes.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := testRunner()
	if err := r.RunDir(inDir, outDir); err != nil {
		t.Fatalf("RunDir: %v", err)
	}

	for _, name := range []string{"a.txt", "b.txt"} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !strings.Contains(string(data), "Transaction T1 committed") {
			t.Errorf("%s: missing commit line:\n%s", name, data)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "notes.md")); !os.IsNotExist(err) {
		t.Error("non-txt input must not produce output")
	}
}
