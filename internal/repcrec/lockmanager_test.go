package repcrec

import "testing"

func TestTryLock_GrantMatrix(t *testing.T) {
	cases := []struct {
		name  string
		setup func(lm *LockManager)
		trans string
		kind  LockKind
		want  bool
	}{
		{"shared on free variable", func(lm *LockManager) {}, "T1", SharedLock, true},
		{"exclusive on free variable", func(lm *LockManager) {}, "T1", ExclusiveLock, true},
		{"second shared holder", func(lm *LockManager) {
			lm.TryLock("T2", 1, SharedLock)
		}, "T1", SharedLock, true},
		{"shared re-request", func(lm *LockManager) {
			lm.TryLock("T1", 1, SharedLock)
		}, "T1", SharedLock, true},
		{"shared while exclusive held by self", func(lm *LockManager) {
			lm.TryLock("T1", 1, ExclusiveLock)
		}, "T1", SharedLock, true},
		{"exclusive re-request", func(lm *LockManager) {
			lm.TryLock("T1", 1, ExclusiveLock)
		}, "T1", ExclusiveLock, true},
		{"shared while exclusive held by other", func(lm *LockManager) {
			lm.TryLock("T2", 1, ExclusiveLock)
		}, "T1", SharedLock, false},
		{"exclusive while exclusive held by other", func(lm *LockManager) {
			lm.TryLock("T2", 1, ExclusiveLock)
		}, "T1", ExclusiveLock, false},
		{"exclusive while shared held by other", func(lm *LockManager) {
			lm.TryLock("T2", 1, SharedLock)
		}, "T1", ExclusiveLock, false},
		{"promotion as sole shared holder", func(lm *LockManager) {
			lm.TryLock("T1", 1, SharedLock)
		}, "T1", ExclusiveLock, true},
		{"no promotion with co-holders", func(lm *LockManager) {
			lm.TryLock("T1", 1, SharedLock)
			lm.TryLock("T2", 1, SharedLock)
		}, "T1", ExclusiveLock, false},
	}

	for _, tc := range cases {
		lm := NewLockManager()
		tc.setup(lm)
		got := lm.TryLock(tc.trans, 1, tc.kind)
		if got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTryLock_PromotionReplacesSharedEntry(t *testing.T) {
	lm := NewLockManager()
	lm.TryLock("T1", 3, SharedLock)
	if !lm.TryLock("T1", 3, ExclusiveLock) {
		t.Fatal("promotion should succeed for the sole shared holder")
	}
	if lm.HoldsShared("T1", 3) {
		t.Error("promoted transaction should no longer appear in the shared set")
	}
	if !lm.HoldsExclusive("T1", 3) {
		t.Error("promoted transaction should hold the exclusive lock")
	}
}

func TestDemote_UndoesPromotion(t *testing.T) {
	lm := NewLockManager()
	lm.TryLock("T1", 3, SharedLock)
	lm.TryLock("T1", 3, ExclusiveLock)
	lm.Demote("T1", 3)
	if lm.HoldsExclusive("T1", 3) {
		t.Error("demoted transaction should not hold the exclusive lock")
	}
	if !lm.HoldsShared("T1", 3) {
		t.Error("demoted transaction should be back in the shared set")
	}
	// Another reader is compatible again.
	if !lm.TryLock("T2", 3, SharedLock) {
		t.Error("shared lock should be grantable after demotion")
	}
}

func TestReleaseTransaction_DropsAllLocks(t *testing.T) {
	lm := NewLockManager()
	lm.TryLock("T1", 1, SharedLock)
	lm.TryLock("T1", 2, ExclusiveLock)
	lm.TryLock("T2", 1, SharedLock)

	lm.ReleaseTransaction("T1")

	if lm.HoldsShared("T1", 1) || lm.HoldsExclusive("T1", 2) {
		t.Error("released transaction still holds locks")
	}
	if !lm.HoldsShared("T2", 1) {
		t.Error("other transactions' locks must survive")
	}
	// Variable 2's entry is gone, so anyone can take it exclusively.
	if !lm.TryLock("T3", 2, ExclusiveLock) {
		t.Error("variable should be free after its only lock was released")
	}
}

func TestInvolvedTransactions(t *testing.T) {
	lm := NewLockManager()
	if got := lm.InvolvedTransactions(); len(got) != 0 {
		t.Fatalf("empty table: got %v", got)
	}
	lm.TryLock("T2", 1, SharedLock)
	lm.TryLock("T1", 1, SharedLock)
	lm.TryLock("T3", 2, ExclusiveLock)

	got := lm.InvolvedTransactions()
	want := []string{"T1", "T2", "T3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestClear_WipesTable(t *testing.T) {
	lm := NewLockManager()
	lm.TryLock("T1", 1, ExclusiveLock)
	lm.Clear()
	if len(lm.InvolvedTransactions()) != 0 {
		t.Error("cleared table still has holders")
	}
	if !lm.TryLock("T2", 1, ExclusiveLock) {
		t.Error("variable should be free after clear")
	}
}

func TestLockEntry_SharedAndExclusiveMutuallyExclusive(t *testing.T) {
	lm := NewLockManager()
	lm.TryLock("T1", 1, SharedLock)
	lm.TryLock("T2", 1, SharedLock)
	lm.TryLock("T3", 2, ExclusiveLock)

	for i, e := range lm.table {
		if e.exclusive != "" && len(e.shared) > 0 {
			t.Errorf("variable %d has both shared holders and an exclusive holder", i)
		}
	}
}
