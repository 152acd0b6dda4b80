package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.RecordsWritten(3)
	m.RecordsWritten(2)
	m.CellClosed(REASON_OVERFLOW)
	m.CellClosed(REASON_FINAL)
	m.CellClosed(REASON_FINAL)
	m.JoinPairs(7)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.recordsWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cellsClosed.WithLabelValues(REASON_OVERFLOW)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cellsClosed.WithLabelValues(REASON_FINAL)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.joinPairs))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sgrid_records_written_total 5")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordsWritten(1)
		m.CellClosed(REASON_FINAL)
		m.IndexBytes(10)
		m.SamplePoints(1)
		m.JoinCandidates(1)
		m.JoinPairs(1)
		m.QueryResults(1)
	})
}
