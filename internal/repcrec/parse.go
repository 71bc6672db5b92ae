package repcrec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kartikbazzad/repcrec/internal/errors"
)

var (
	linePattern = regexp.MustCompile(`^\s*([A-Za-z]+)\s*\(\s*(.*?)\s*\)\s*$`)
	varPattern  = regexp.MustCompile(`^x(\d+)$`)
)

// Parse turns one input line into an operation. Whitespace around arguments
// is tolerated; the opcode and argument shapes are not negotiable.
func Parse(line string) (Operation, error) {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", errors.ErrBadLine, line)
	}

	name := m[1]
	var args []string
	if m[2] != "" {
		args = strings.Split(m[2], ",")
		for i := range args {
			args[i] = strings.TrimSpace(args[i])
		}
	}

	switch OpType(name) {
	case OpBegin:
		if err := wantArgs(name, args, 1); err != nil {
			return nil, err
		}
		return &BeginOp{Trans: args[0]}, nil
	case OpBeginRO:
		if err := wantArgs(name, args, 1); err != nil {
			return nil, err
		}
		return &BeginROOp{Trans: args[0]}, nil
	case OpRead:
		if err := wantArgs(name, args, 2); err != nil {
			return nil, err
		}
		v, err := parseVariable(args[1])
		if err != nil {
			return nil, err
		}
		return &ReadOp{Trans: args[0], Var: v}, nil
	case OpWrite:
		if err := wantArgs(name, args, 3); err != nil {
			return nil, err
		}
		v, err := parseVariable(args[1])
		if err != nil {
			return nil, err
		}
		value, err := atoiStrict(args[2], errors.ErrBadArguments)
		if err != nil {
			return nil, err
		}
		return &WriteOp{Trans: args[0], Var: v, Value: value}, nil
	case OpEnd:
		if err := wantArgs(name, args, 1); err != nil {
			return nil, err
		}
		return &EndOp{Trans: args[0]}, nil
	case OpFail:
		if err := wantArgs(name, args, 1); err != nil {
			return nil, err
		}
		site, err := atoiStrict(args[0], errors.ErrBadSite)
		if err != nil {
			return nil, err
		}
		return &FailOp{Site: site}, nil
	case OpRecover:
		if err := wantArgs(name, args, 1); err != nil {
			return nil, err
		}
		site, err := atoiStrict(args[0], errors.ErrBadSite)
		if err != nil {
			return nil, err
		}
		return &RecoverOp{Site: site}, nil
	case OpDump:
		if err := wantArgs(name, args, 0); err != nil {
			return nil, err
		}
		return &DumpOp{}, nil
	}
	return nil, fmt.Errorf("%w: %s", errors.ErrUnknownOperation, name)
}

func wantArgs(name string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s wants %d argument(s), got %d", errors.ErrBadArguments, name, n, len(args))
	}
	return nil
}

func parseVariable(s string) (int, error) {
	m := varPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", errors.ErrBadVariable, s)
	}
	return atoiStrict(m[1], errors.ErrBadVariable)
}
