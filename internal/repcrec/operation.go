package repcrec

import (
	"fmt"
	"strconv"

	"github.com/kartikbazzad/repcrec/internal/errors"
)

// OpType is the opcode of an input operation.
type OpType string

const (
	OpBegin   OpType = "begin"
	OpBeginRO OpType = "beginRO"
	OpRead    OpType = "R"
	OpWrite   OpType = "W"
	OpEnd     OpType = "end"
	OpFail    OpType = "fail"
	OpRecover OpType = "recover"
	OpDump    OpType = "dump"
)

// Operation is one parsed input line. Execute returns done=false when the
// operation must be re-queued on the blocked list and retried; input errors
// come back as err with done=true (the line is consumed either way).
//
// Operations hold no back-pointers: the manager is passed in per call.
type Operation interface {
	Type() OpType
	// TransID is the owning transaction, or "" for fail/recover/dump.
	TransID() string
	Execute(tick int, tm *TransactionManager, retry bool) (done bool, err error)
	String() string
}

// BeginOp registers a read/write transaction.
type BeginOp struct {
	Trans string
}

func (op *BeginOp) Type() OpType    { return OpBegin }
func (op *BeginOp) TransID() string { return op.Trans }
func (op *BeginOp) String() string  { return fmt.Sprintf("begin(%s)", op.Trans) }

func (op *BeginOp) Execute(tick int, tm *TransactionManager, retry bool) (bool, error) {
	if err := tm.register(op.Trans, tick, ReadWrite); err != nil {
		return true, err
	}
	return true, nil
}

// BeginROOp registers a read-only transaction and snapshots every site.
type BeginROOp struct {
	Trans string
}

func (op *BeginROOp) Type() OpType    { return OpBeginRO }
func (op *BeginROOp) TransID() string { return op.Trans }
func (op *BeginROOp) String() string  { return fmt.Sprintf("beginRO(%s)", op.Trans) }

func (op *BeginROOp) Execute(tick int, tm *TransactionManager, retry bool) (bool, error) {
	if err := tm.register(op.Trans, tick, ReadOnly); err != nil {
		return true, err
	}
	// Every site snapshots, down ones included; a down site records only
	// whatever is still accessible there.
	for _, s := range tm.sites {
		s.Snapshot(tick)
	}
	return true, nil
}

// ReadOp reads a variable: snapshot read for read-only transactions,
// S-locked current read otherwise.
type ReadOp struct {
	Trans string
	Var   int
}

func (op *ReadOp) Type() OpType    { return OpRead }
func (op *ReadOp) TransID() string { return op.Trans }
func (op *ReadOp) String() string  { return fmt.Sprintf("R(%s,x%d)", op.Trans, op.Var) }

func (op *ReadOp) Execute(tick int, tm *TransactionManager, retry bool) (bool, error) {
	tx, ok := tm.transactions[op.Trans]
	if !ok {
		return true, fmt.Errorf("%w: %s in %s", errors.ErrUnknownTransaction, op.Trans, op)
	}
	if op.Var < 1 || op.Var > tm.db.VariableCount {
		return true, fmt.Errorf("%w: x%d", errors.ErrBadVariable, op.Var)
	}
	if !retry {
		tm.record(op)
	}

	if tx.Kind == ReadOnly {
		return tm.snapshotRead(tx, op.Var, tick), nil
	}
	return tm.lockedRead(tx, op.Var), nil
}

// WriteOp stages a value under an exclusive lock: at the owning site for a
// non-replicated variable, at every up site for a replicated one.
type WriteOp struct {
	Trans string
	Var   int
	Value int
}

func (op *WriteOp) Type() OpType    { return OpWrite }
func (op *WriteOp) TransID() string { return op.Trans }
func (op *WriteOp) String() string {
	return fmt.Sprintf("W(%s,x%d,%d)", op.Trans, op.Var, op.Value)
}

func (op *WriteOp) Execute(tick int, tm *TransactionManager, retry bool) (bool, error) {
	tx, ok := tm.transactions[op.Trans]
	if !ok {
		return true, fmt.Errorf("%w: %s in %s", errors.ErrUnknownTransaction, op.Trans, op)
	}
	if tx.Kind == ReadOnly {
		return true, fmt.Errorf("%w: %s", errors.ErrReadOnlyWrite, op)
	}
	if op.Var < 1 || op.Var > tm.db.VariableCount {
		return true, fmt.Errorf("%w: x%d", errors.ErrBadVariable, op.Var)
	}
	if !retry {
		tm.record(op)
	}
	return tm.stageWrite(tx, op.Var, op.Value), nil
}

// EndOp commits the transaction, or aborts it when a site it touched has
// failed since.
type EndOp struct {
	Trans string
}

func (op *EndOp) Type() OpType    { return OpEnd }
func (op *EndOp) TransID() string { return op.Trans }
func (op *EndOp) String() string  { return fmt.Sprintf("end(%s)", op.Trans) }

func (op *EndOp) Execute(tick int, tm *TransactionManager, retry bool) (bool, error) {
	tx, ok := tm.transactions[op.Trans]
	if !ok {
		return true, fmt.Errorf("%w: %s in %s", errors.ErrUnknownTransaction, op.Trans, op)
	}
	if !retry {
		tm.record(op)
	}

	if tx.ToBeAborted {
		tm.abort(tx.ID, tick, AbortSiteFailure)
		return true, nil
	}
	// The commit must wait for the transaction's earlier blocked operations;
	// they sit ahead of this op in the FIFO queue, so a retry pass that
	// clears them lets the same pass commit.
	if _, blocked := tm.blockedTx[tx.ID]; blocked {
		return false, nil
	}

	tm.commit(tx, tick)
	return true, nil
}

// FailOp takes a site down. Transactions holding locks there are marked for
// abort at their commit point.
type FailOp struct {
	Site int
}

func (op *FailOp) Type() OpType    { return OpFail }
func (op *FailOp) TransID() string { return "" }
func (op *FailOp) String() string  { return fmt.Sprintf("fail(%d)", op.Site) }

func (op *FailOp) Execute(tick int, tm *TransactionManager, retry bool) (bool, error) {
	s, err := tm.Site(op.Site)
	if err != nil {
		return true, err
	}
	for _, trans := range s.Locks().InvolvedTransactions() {
		if tx, ok := tm.transactions[trans]; ok {
			tx.ToBeAborted = true
		}
	}
	s.Fail()
	return true, nil
}

// RecoverOp brings a site back up.
type RecoverOp struct {
	Site int
}

func (op *RecoverOp) Type() OpType    { return OpRecover }
func (op *RecoverOp) TransID() string { return "" }
func (op *RecoverOp) String() string  { return fmt.Sprintf("recover(%d)", op.Site) }

func (op *RecoverOp) Execute(tick int, tm *TransactionManager, retry bool) (bool, error) {
	s, err := tm.Site(op.Site)
	if err != nil {
		return true, err
	}
	s.Recover()
	return true, nil
}

// DumpOp prints every site's committed values. Never blocks.
type DumpOp struct{}

func (op *DumpOp) Type() OpType    { return OpDump }
func (op *DumpOp) TransID() string { return "" }
func (op *DumpOp) String() string  { return "dump()" }

func (op *DumpOp) Execute(tick int, tm *TransactionManager, retry bool) (bool, error) {
	tm.dump()
	return true, nil
}

// atoiStrict is strconv.Atoi with the package's input-error wrapping.
func atoiStrict(s string, sentinel error) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", sentinel, s)
	}
	return n, nil
}
