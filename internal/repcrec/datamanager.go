package repcrec

import "github.com/kartikbazzad/repcrec/internal/config"

// DataManager holds one site's committed values, per-variable read
// accessibility, and the per-transaction uncommitted write log.
//
// The accessibility flags implement the available-copies recovery rule: a
// replicated variable on a recovered site must not serve reads until a
// committed write overwrites the stale copy. Set re-enables the flag, so
// routing writes through it at commit time restores readability.
//
// The uncommitted log is authoritative for read-your-own-writes: a read by a
// transaction that has staged a value here observes the staged value, not
// the committed one.
type DataManager struct {
	siteID     int
	db         config.DBConfig
	data       map[int]int
	accessible map[int]bool
	staged     map[string]map[int]int
}

func NewDataManager(siteID int, db config.DBConfig) *DataManager {
	dm := &DataManager{
		siteID:     siteID,
		db:         db,
		data:       make(map[int]int),
		accessible: make(map[int]bool),
		staged:     make(map[string]map[int]int),
	}
	for i := 1; i <= db.VariableCount; i++ {
		if db.SiteHolds(siteID, i) {
			dm.data[i] = db.InitialValue(i)
			dm.accessible[i] = true
		}
	}
	return dm
}

// Holds reports whether this site stores variable i at all.
func (dm *DataManager) Holds(i int) bool {
	_, ok := dm.data[i]
	return ok
}

// Get returns the committed value of variable i.
func (dm *DataManager) Get(i int) int {
	return dm.data[i]
}

// Set overwrites the committed value and re-enables read accessibility.
func (dm *DataManager) Set(i, v int) {
	dm.data[i] = v
	dm.accessible[i] = true
}

func (dm *DataManager) CheckAccessible(i int) bool {
	return dm.accessible[i]
}

// DisableReplicatedAccess turns off reads for every replicated variable held
// here. Non-replicated variables stay readable; they cannot be stale because
// writes to them require this site to be up.
func (dm *DataManager) DisableReplicatedAccess() {
	for i := range dm.data {
		if dm.db.Replicated(i) {
			dm.accessible[i] = false
		}
	}
}

// StageWrite records an uncommitted value for trans on variable i.
func (dm *DataManager) StageWrite(trans string, i, v int) {
	log, ok := dm.staged[trans]
	if !ok {
		log = make(map[int]int)
		dm.staged[trans] = log
	}
	log[i] = v
}

// StagedValue returns trans's pending write on i, if any.
func (dm *DataManager) StagedValue(trans string, i int) (int, bool) {
	v, ok := dm.staged[trans][i]
	return v, ok
}

// StagedFor returns trans's whole pending write set (nil when none).
func (dm *DataManager) StagedFor(trans string) map[int]int {
	return dm.staged[trans]
}

// Revert drops trans's pending writes.
func (dm *DataManager) Revert(trans string) {
	delete(dm.staged, trans)
}

// ClearUncommitted drops every pending write log.
func (dm *DataManager) ClearUncommitted() {
	dm.staged = make(map[string]map[int]int)
}

// DropStaged removes trans's log entry after its writes were applied.
func (dm *DataManager) DropStaged(trans string) {
	delete(dm.staged, trans)
}
