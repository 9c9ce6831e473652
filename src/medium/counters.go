package medium

import (
	"fmt"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// Per-medium request counts, useful when chasing chatty clients: a test or a
// debug dump can ask how many round trips a particular medium performed.
// Entries are dropped explicitly on Disconnect so short-lived mediums do not
// accumulate.
var mediumCalls = xsync.NewMapOf[string, *xsync.Counter]()

var totalRequests = metrics.GetOrCreateCounter("cairn_client_requests_total")

var mediumSeq uint64

func newMediumID(kind string) string {
	return fmt.Sprintf("%s-%d", kind, atomic.AddUint64(&mediumSeq, 1))
}

func countMediumCall(id string) {
	c, _ := mediumCalls.LoadOrCompute(id, func() *xsync.Counter {
		return xsync.NewCounter()
	})
	c.Inc()
	totalRequests.Inc()
}

func dropMediumCount(id string) {
	mediumCalls.Delete(id)
}

// MediumCallCount returns how many requests the identified medium has
// started. Unknown mediums count zero.
func MediumCallCount(id string) int64 {
	if c, ok := mediumCalls.Load(id); ok {
		return c.Value()
	}
	return 0
}

// ID returns the medium's counter identity.
func (m *streamClientMedium) ID() string {
	return m.id
}
