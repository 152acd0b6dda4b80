// Package metrics owns the prometheus counters of one sgrid process. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	REASON_OVERFLOW = "overflow"
	REASON_FINAL    = "final"
)

type Metrics struct {
	reg *prometheus.Registry

	recordsWritten prometheus.Counter
	cellsClosed    *prometheus.CounterVec
	indexBytes     prometheus.Counter
	samplePoints   prometheus.Counter
	joinCandidates prometheus.Counter
	joinPairs      prometheus.Counter
	queryResults   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		recordsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "sgrid_records_written_total",
			Help: "Records appended to cell files.",
		}),
		cellsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sgrid_cells_closed_total",
			Help: "Cell files closed, by reason.",
		}, []string{"reason"}),
		indexBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "sgrid_index_bytes_total",
			Help: "Bytes of r-tree files written, padding included.",
		}),
		samplePoints: f.NewCounter(prometheus.CounterOpts{
			Name: "sgrid_sample_points_total",
			Help: "Sample points drawn for cell packing.",
		}),
		joinCandidates: f.NewCounter(prometheus.CounterOpts{
			Name: "sgrid_join_candidates_total",
			Help: "Pairs whose MBRs overlapped in the plane sweep.",
		}),
		joinPairs: f.NewCounter(prometheus.CounterOpts{
			Name: "sgrid_join_pairs_total",
			Help: "Join pairs emitted.",
		}),
		queryResults: f.NewCounter(prometheus.CounterOpts{
			Name: "sgrid_query_results_total",
			Help: "Records returned by range queries.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) RecordsWritten(n int) {
	if m != nil {
		m.recordsWritten.Add(float64(n))
	}
}

func (m *Metrics) CellClosed(reason string) {
	if m != nil {
		m.cellsClosed.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IndexBytes(n int64) {
	if m != nil {
		m.indexBytes.Add(float64(n))
	}
}

func (m *Metrics) SamplePoints(n int) {
	if m != nil {
		m.samplePoints.Add(float64(n))
	}
}

func (m *Metrics) JoinCandidates(n int) {
	if m != nil {
		m.joinCandidates.Add(float64(n))
	}
}

func (m *Metrics) JoinPairs(n int) {
	if m != nil {
		m.joinPairs.Add(float64(n))
	}
}

func (m *Metrics) QueryResults(n int) {
	if m != nil {
		m.queryResults.Add(float64(n))
	}
}
