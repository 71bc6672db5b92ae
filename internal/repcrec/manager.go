package repcrec

import (
	"fmt"
	"io"

	"github.com/kartikbazzad/repcrec/internal/config"
	"github.com/kartikbazzad/repcrec/internal/errors"
	"github.com/kartikbazzad/repcrec/internal/logger"
)

// TransactionManager owns the sites, the transaction registry, the blocked
// queue, and the wait-for graph. All mutation of that state flows through
// it: operations receive the manager per Execute call and never hold
// references of their own.
//
// The engine is tick-driven and single-threaded; "blocked" is a queue
// position, not a goroutine state.
type TransactionManager struct {
	db  config.DBConfig
	out io.Writer
	log *logger.Logger

	transactions map[string]*Transaction
	sites        []*Site
	blocked      []Operation
	blockedTx    map[string]struct{}
	waitFor      *WaitFor
	sink         EventSink
}

// NewTransactionManager builds a manager with freshly initialized sites.
// out receives the protocol output (read results, dumps, commit and abort
// lines). sink may be nil.
func NewTransactionManager(db config.DBConfig, out io.Writer, log *logger.Logger, sink EventSink) *TransactionManager {
	tm := &TransactionManager{
		db:           db,
		out:          out,
		log:          log,
		transactions: make(map[string]*Transaction),
		blockedTx:    make(map[string]struct{}),
		waitFor:      NewWaitFor(),
		sink:         sink,
	}
	for id := 1; id <= db.SiteCount; id++ {
		tm.sites = append(tm.sites, NewSite(id, db))
	}
	return tm
}

// Site returns the site with the given 1-based id.
func (tm *TransactionManager) Site(id int) (*Site, error) {
	if id < 1 || id > len(tm.sites) {
		return nil, fmt.Errorf("%w: %d", errors.ErrBadSite, id)
	}
	return tm.sites[id-1], nil
}

// Sites returns all sites in id order.
func (tm *TransactionManager) Sites() []*Site {
	return tm.sites
}

// Blocked returns the current blocked queue in FIFO order.
func (tm *TransactionManager) Blocked() []Operation {
	return tm.blocked
}

// Step is the per-input-line entry point: retry the blocked queue once, run
// the new operation, then look for a deadlock the operation may have
// introduced and abort the youngest transaction in the cycle.
func (tm *TransactionManager) Step(op Operation, tick int) error {
	tm.Retry(tick)

	done, err := op.Execute(tick, tm, false)
	if err != nil {
		tm.emitOperation(op, tick, StatusError)
		return err
	}
	if done {
		tm.emitOperation(op, tick, StatusOK)
	} else {
		tm.emitOperation(op, tick, StatusBlocked)
		tm.enqueueBlocked(op)
	}

	if op.Type() == OpRead || op.Type() == OpWrite {
		if tm.waitFor.CheckDeadlock() {
			trace := tm.waitFor.Trace()
			victim := tm.youngest(trace)
			if tm.sink != nil {
				tm.sink.DeadlockDetected(victim, trace, tick)
			}
			tm.abort(victim, tick, AbortDeadlock)
		}
	}
	return nil
}

// Retry drains the blocked queue once in FIFO order. Operations that fail
// again keep their submission order; the blocked-transaction set is rebuilt
// from what remains. An end op never marks its transaction blocked, or the
// commit could wait on itself forever.
func (tm *TransactionManager) Retry(tick int) {
	pending := tm.blocked
	tm.blocked = nil
	tm.blockedTx = make(map[string]struct{})

	for _, op := range pending {
		// An abort triggered earlier in this pass may have removed ops from
		// tm.blocked, but this local slice still holds them; their
		// transaction is gone, so they are dropped here without executing.
		if id := op.TransID(); id != "" {
			if _, ok := tm.transactions[id]; !ok {
				continue
			}
		}
		done, err := op.Execute(tick, tm, true)
		if err != nil {
			tm.log.Warn("dropping blocked operation %s: %v", op, err)
			tm.emitOperation(op, tick, StatusError)
			continue
		}
		if done {
			tm.emitOperation(op, tick, StatusOK)
			continue
		}
		tm.enqueueBlocked(op)
	}
}

func (tm *TransactionManager) enqueueBlocked(op Operation) {
	tm.blocked = append(tm.blocked, op)
	if id := op.TransID(); id != "" && op.Type() != OpEnd {
		tm.blockedTx[id] = struct{}{}
	}
}

// register adds a transaction; reusing a live id is an input error.
func (tm *TransactionManager) register(id string, tick int, kind Kind) error {
	if _, ok := tm.transactions[id]; ok {
		return fmt.Errorf("%w: %s", errors.ErrDuplicateTransaction, id)
	}
	tm.transactions[id] = NewTransaction(id, tick, kind)
	return nil
}

// record appends op to its transaction's history and feeds the wait-for
// graph. Called once per operation, on first execution only.
func (tm *TransactionManager) record(op Operation) {
	tx := tm.transactions[op.TransID()]
	tx.AddOperation(op)
	if tx.Kind == ReadOnly {
		return
	}
	switch o := op.(type) {
	case *ReadOp:
		tm.waitFor.AddOperation(OpRead, o.Trans, o.Var)
	case *WriteOp:
		tm.waitFor.AddOperation(OpWrite, o.Trans, o.Var)
	}
}

// candidateSites returns the sites that may hold varID, in id order: all of
// them for a replicated variable, just the owner otherwise.
func (tm *TransactionManager) candidateSites(varID int) []*Site {
	if tm.db.Replicated(varID) {
		return tm.sites
	}
	return tm.sites[tm.db.OwnerSite(varID)-1 : tm.db.OwnerSite(varID)]
}

// snapshotRead serves a read-only transaction from the snapshots taken at
// its start tick. An up site holding the variable wins; a down site holding
// it means the read should wait for recovery; no holder at all means the
// version is gone for good and the transaction aborts.
func (tm *TransactionManager) snapshotRead(tx *Transaction, varID, tick int) bool {
	candidates := tm.candidateSites(varID)
	for _, s := range candidates {
		if !s.Up {
			continue
		}
		if v, ok := s.SnapshotRead(tx.StartTick, varID); ok {
			tm.printRead(tx.ID, s.ID, varID, v)
			return true
		}
	}
	for _, s := range candidates {
		if s.Up {
			continue
		}
		if _, ok := s.SnapshotRead(tx.StartTick, varID); ok {
			return false
		}
	}
	tm.abort(tx.ID, tick, AbortNoVersion)
	return true
}

// lockedRead serves a read/write transaction's read: the first up site where
// the variable is accessible and an S lock is granted. The value comes from
// the transaction's own staged write when one exists.
func (tm *TransactionManager) lockedRead(tx *Transaction, varID int) bool {
	for _, s := range tm.candidateSites(varID) {
		if !s.Up || !s.Data().CheckAccessible(varID) {
			continue
		}
		if !s.Locks().TryLock(tx.ID, varID, SharedLock) {
			continue
		}
		v, ok := s.Data().StagedValue(tx.ID, varID)
		if !ok {
			v = s.Data().Get(varID)
		}
		tm.printRead(tx.ID, s.ID, varID, v)
		return true
	}
	return false
}

// stageWrite acquires exclusive locks and stages the value. A replicated
// write locks every up site or none: on the first denial, locks newly taken
// in this pass are rolled back (an in-place promotion is demoted, a fresh
// grant released) and the operation blocks.
func (tm *TransactionManager) stageWrite(tx *Transaction, varID, value int) bool {
	candidates := tm.candidateSites(varID)

	type grabbed struct {
		site      *Site
		hadShared bool
	}
	var acquired []grabbed
	locked := 0

	for _, s := range candidates {
		if !s.Up {
			continue
		}
		alreadyExclusive := s.Locks().HoldsExclusive(tx.ID, varID)
		hadShared := s.Locks().HoldsShared(tx.ID, varID)
		if !s.Locks().TryLock(tx.ID, varID, ExclusiveLock) {
			for _, g := range acquired {
				if g.hadShared {
					g.site.Locks().Demote(tx.ID, varID)
				} else {
					g.site.Locks().Release(tx.ID, varID)
				}
			}
			return false
		}
		locked++
		if !alreadyExclusive {
			acquired = append(acquired, grabbed{site: s, hadShared: hadShared})
		}
	}
	if locked == 0 {
		return false
	}

	for _, s := range candidates {
		if s.Up {
			s.Data().StageWrite(tx.ID, varID, value)
		}
	}
	return true
}

// commit applies tx's staged writes on every up site, drops its snapshots,
// releases its locks everywhere, and retires it.
func (tm *TransactionManager) commit(tx *Transaction, tick int) {
	for _, s := range tm.sites {
		if !s.Up {
			continue
		}
		for i, v := range s.Data().StagedFor(tx.ID) {
			s.Data().Set(i, v)
		}
		s.Data().DropStaged(tx.ID)
		s.DropSnapshot(tx.StartTick)
	}
	for _, s := range tm.sites {
		s.Locks().ReleaseTransaction(tx.ID)
	}
	tm.waitFor.RemoveTransaction(tx.ID)
	delete(tm.transactions, tx.ID)

	fmt.Fprintf(tm.out, "Transaction %s committed\n", tx.ID)
	if tm.sink != nil {
		tm.sink.TransactionCommitted(tx.ID, tick)
	}
}

// abort releases trans's locks and staged writes on up sites, removes its
// queued operations and wait-for entries, and retires it.
func (tm *TransactionManager) abort(trans string, tick int, reason AbortReason) {
	for _, s := range tm.sites {
		if s.Up {
			s.Locks().ReleaseTransaction(trans)
			s.Data().Revert(trans)
		}
	}

	kept := tm.blocked[:0]
	for _, op := range tm.blocked {
		if op.TransID() != trans {
			kept = append(kept, op)
		}
	}
	tm.blocked = kept
	delete(tm.blockedTx, trans)

	tm.waitFor.RemoveTransaction(trans)
	delete(tm.transactions, trans)

	fmt.Fprintf(tm.out, "Transaction %s aborted (%s)\n", trans, reason)
	if tm.sink != nil {
		tm.sink.TransactionAborted(trans, tick, reason)
	}
}

// youngest picks the cycle member with the latest start tick.
func (tm *TransactionManager) youngest(trace []string) string {
	victim := ""
	latest := -1
	for _, id := range trace {
		if tx, ok := tm.transactions[id]; ok && tx.StartTick > latest {
			latest = tx.StartTick
			victim = id
		}
	}
	return victim
}

func (tm *TransactionManager) emitOperation(op Operation, tick int, status Status) {
	if tm.sink != nil {
		tm.sink.OperationExecuted(op, tick, status)
	}
}
