package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kartikbazzad/repcrec/internal/repcrec"
)

// Registry counts engine events across a run. It implements
// repcrec.EventSink so it can be wired straight into a transaction manager,
// and exports in Prometheus/OpenMetrics text format.
type Registry struct {
	mu sync.Mutex

	operationsTotal map[string]map[string]uint64 // opcode -> status -> count
	commitsTotal    uint64
	abortsTotal     map[string]uint64 // reason -> count
	deadlocksTotal  uint64
	livelocksTotal  uint64
	casesTotal      uint64
}

func NewRegistry() *Registry {
	return &Registry{
		operationsTotal: make(map[string]map[string]uint64),
		abortsTotal:     make(map[string]uint64),
	}
}

func (r *Registry) OperationExecuted(op repcrec.Operation, tick int, status repcrec.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byStatus := r.operationsTotal[string(op.Type())]
	if byStatus == nil {
		byStatus = make(map[string]uint64)
		r.operationsTotal[string(op.Type())] = byStatus
	}
	byStatus[string(status)]++
}

func (r *Registry) TransactionCommitted(id string, tick int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitsTotal++
}

func (r *Registry) TransactionAborted(id string, tick int, reason repcrec.AbortReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abortsTotal[string(reason)]++
}

func (r *Registry) DeadlockDetected(victim string, trace []string, tick int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadlocksTotal++
}

// RecordLivelock counts a drain pass that made no progress.
func (r *Registry) RecordLivelock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.livelocksTotal++
}

// RecordCase counts one completed test case.
func (r *Registry) RecordCase() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.casesTotal++
}

// Counts returns (commits, aborts, deadlocks) for summary logging.
func (r *Registry) Counts() (commits, aborts, deadlocks uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.abortsTotal {
		aborts += n
	}
	return r.commitsTotal, aborts, r.deadlocksTotal
}

// Export returns the counters in Prometheus/OpenMetrics format. Map keys
// are emitted sorted so output is stable.
func (r *Registry) Export() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder

	b.WriteString("# HELP repcrec_operations_total Operations executed by opcode and status\n")
	b.WriteString("# TYPE repcrec_operations_total counter\n")
	for _, opcode := range sortedKeys(r.operationsTotal) {
		byStatus := r.operationsTotal[opcode]
		for _, status := range sortedKeys(byStatus) {
			fmt.Fprintf(&b, "repcrec_operations_total{op=%q,status=%q} %d\n", opcode, status, byStatus[status])
		}
	}

	b.WriteString("# HELP repcrec_commits_total Transactions committed\n")
	b.WriteString("# TYPE repcrec_commits_total counter\n")
	fmt.Fprintf(&b, "repcrec_commits_total %d\n", r.commitsTotal)

	b.WriteString("# HELP repcrec_aborts_total Transactions aborted by reason\n")
	b.WriteString("# TYPE repcrec_aborts_total counter\n")
	for _, reason := range sortedKeys(r.abortsTotal) {
		fmt.Fprintf(&b, "repcrec_aborts_total{reason=%q} %d\n", reason, r.abortsTotal[reason])
	}

	b.WriteString("# HELP repcrec_deadlocks_total Deadlock cycles detected\n")
	b.WriteString("# TYPE repcrec_deadlocks_total counter\n")
	fmt.Fprintf(&b, "repcrec_deadlocks_total %d\n", r.deadlocksTotal)

	b.WriteString("# HELP repcrec_livelocks_total Drain passes that made no progress\n")
	b.WriteString("# TYPE repcrec_livelocks_total counter\n")
	fmt.Fprintf(&b, "repcrec_livelocks_total %d\n", r.livelocksTotal)

	b.WriteString("# HELP repcrec_cases_total Test cases executed\n")
	b.WriteString("# TYPE repcrec_cases_total counter\n")
	fmt.Fprintf(&b, "repcrec_cases_total %d\n", r.casesTotal)

	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
