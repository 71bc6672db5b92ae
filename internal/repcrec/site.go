package repcrec

import "github.com/kartikbazzad/repcrec/internal/config"

// Site bundles one replica's data manager, lock manager, up/down state, and
// the snapshot store used by read-only transactions.
type Site struct {
	ID        int
	Up        bool
	dm        *DataManager
	lm        *LockManager
	snapshots map[int]map[int]int // tick -> variable -> value
}

func NewSite(id int, db config.DBConfig) *Site {
	return &Site{
		ID:        id,
		Up:        true,
		dm:        NewDataManager(id, db),
		lm:        NewLockManager(),
		snapshots: make(map[int]map[int]int),
	}
}

func (s *Site) Data() *DataManager  { return s.dm }
func (s *Site) Locks() *LockManager { return s.lm }

// Fail takes the site down: pending writes and locks are lost, replicated
// variables become unreadable until a post-recovery commit, and existing
// snapshots are dropped. A snapshot must only serve reads from a site that
// stayed up since it was taken, so failure invalidates the store.
func (s *Site) Fail() {
	s.Up = false
	s.dm.ClearUncommitted()
	s.lm.Clear()
	s.dm.DisableReplicatedAccess()
	s.snapshots = make(map[int]map[int]int)
}

// Recover brings the site back up. Replicated accessibility stays off; it is
// re-enabled per variable when a committed write lands.
func (s *Site) Recover() {
	s.Up = true
}

// Snapshot records the currently accessible variables under tick. Down
// sites snapshot too: after a failure that is the resident non-replicated
// variables, or nothing at all on sites that hold only replicated ones.
func (s *Site) Snapshot(tick int) {
	snap := make(map[int]int)
	for i, v := range s.dm.data {
		if s.dm.accessible[i] {
			snap[i] = v
		}
	}
	s.snapshots[tick] = snap
}

// SnapshotRead looks variable i up in the snapshot taken at tick.
func (s *Site) SnapshotRead(tick, i int) (int, bool) {
	v, ok := s.snapshots[tick][i]
	return v, ok
}

// DropSnapshot releases the snapshot taken at tick. Called when the
// read-only transaction that requested it commits.
func (s *Site) DropSnapshot(tick int) {
	delete(s.snapshots, tick)
}
