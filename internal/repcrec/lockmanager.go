package repcrec

import "sort"

// LockKind is the lock mode requested on a variable.
type LockKind int

const (
	SharedLock LockKind = iota
	ExclusiveLock
)

// lockEntry is the lock state of a single variable: either a set of shared
// holders or one exclusive holder, never both.
type lockEntry struct {
	shared    map[string]struct{}
	exclusive string // "" when no exclusive holder
}

func (e *lockEntry) empty() bool {
	return len(e.shared) == 0 && e.exclusive == ""
}

// LockManager is one site's lock table. Entries exist only while a variable
// is locked; a site failure wipes the whole table.
type LockManager struct {
	table map[int]*lockEntry
}

func NewLockManager() *LockManager {
	return &LockManager{table: make(map[int]*lockEntry)}
}

// TryLock attempts to take kind on variable i for trans. Re-requesting a
// lock the transaction already holds succeeds; a shared holder that is the
// only holder is promoted in place on an exclusive request. There is no
// queueing: a denied request simply returns false.
func (lm *LockManager) TryLock(trans string, i int, kind LockKind) bool {
	e, ok := lm.table[i]
	if !ok {
		e = &lockEntry{shared: make(map[string]struct{})}
		lm.table[i] = e
		if kind == SharedLock {
			e.shared[trans] = struct{}{}
		} else {
			e.exclusive = trans
		}
		return true
	}

	if kind == SharedLock {
		if e.exclusive == trans {
			return true
		}
		if e.exclusive != "" {
			return false
		}
		e.shared[trans] = struct{}{}
		return true
	}

	// Exclusive request.
	if e.exclusive == trans {
		return true
	}
	if e.exclusive != "" {
		return false
	}
	if _, held := e.shared[trans]; held && len(e.shared) == 1 {
		delete(e.shared, trans)
		e.exclusive = trans
		return true
	}
	return false
}

// HoldsExclusive reports whether trans holds the exclusive lock on i.
func (lm *LockManager) HoldsExclusive(trans string, i int) bool {
	e, ok := lm.table[i]
	return ok && e.exclusive == trans
}

// HoldsShared reports whether trans is among the shared holders of i.
func (lm *LockManager) HoldsShared(trans string, i int) bool {
	e, ok := lm.table[i]
	if !ok {
		return false
	}
	_, held := e.shared[trans]
	return held
}

// Release removes trans's lock on variable i only.
func (lm *LockManager) Release(trans string, i int) {
	e, ok := lm.table[i]
	if !ok {
		return
	}
	delete(e.shared, trans)
	if e.exclusive == trans {
		e.exclusive = ""
	}
	if e.empty() {
		delete(lm.table, i)
	}
}

// Demote turns trans's exclusive lock on i back into a shared lock. Used to
// undo an in-place promotion when a multi-site acquisition pass fails.
func (lm *LockManager) Demote(trans string, i int) {
	e, ok := lm.table[i]
	if !ok || e.exclusive != trans {
		return
	}
	e.exclusive = ""
	e.shared[trans] = struct{}{}
}

// ReleaseTransaction removes every lock trans holds at this site.
func (lm *LockManager) ReleaseTransaction(trans string) {
	for i, e := range lm.table {
		delete(e.shared, trans)
		if e.exclusive == trans {
			e.exclusive = ""
		}
		if e.empty() {
			delete(lm.table, i)
		}
	}
}

// Clear wipes the table. Called on site failure.
func (lm *LockManager) Clear() {
	lm.table = make(map[int]*lockEntry)
}

// InvolvedTransactions returns every transaction holding at least one lock
// here, sorted for deterministic iteration.
func (lm *LockManager) InvolvedTransactions() []string {
	set := make(map[string]struct{})
	for _, e := range lm.table {
		for t := range e.shared {
			set[t] = struct{}{}
		}
		if e.exclusive != "" {
			set[e.exclusive] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
