// Package metrics exposes request, document and store counters in the
// Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"strconv"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

// Registry owns one metrics set so tests can use isolated instances.
type Registry struct {
	set *vm.Set
}

func New() *Registry {
	return &Registry{set: vm.NewSet()}
}

func (r *Registry) ObserveRequest(method string, status int, started time.Time) {
	r.set.GetOrCreateCounter(fmt.Sprintf(`http_requests_total{method=%q,status=%q}`, method, strconv.Itoa(status))).Inc()
	r.set.GetOrCreateHistogram(fmt.Sprintf(`http_request_duration_seconds{method=%q}`, method)).UpdateDuration(started)
}

// DocumentOp counts a document or sharing operation by outcome, where
// outcome is "ok" or an error code.
func (r *Registry) DocumentOp(op, outcome string) {
	r.set.GetOrCreateCounter(fmt.Sprintf(`document_operations_total{op=%q,outcome=%q}`, op, outcome)).Inc()
}

// StoreFailure counts failures of the "metadata" or "content" store.
func (r *Registry) StoreFailure(store string) {
	r.set.GetOrCreateCounter(fmt.Sprintf(`store_failures_total{store=%q}`, store)).Inc()
}

func (r *Registry) WritePrometheus(w io.Writer) {
	r.set.WritePrometheus(w)
	vm.WriteProcessMetrics(w)
}
