package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.FileScanned("1")
	m.FileScanned("1")
	m.FileError("2")
	m.Records("1", "literal", 3)
	m.Records("1", "literal", 0)
	m.SetUnresolved(4)
	m.PassDone("1", 150*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.filesScanned.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fileErrors.WithLabelValues("2")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.records.WithLabelValues("1", "literal")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.unresolved))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.FileScanned("1")
		m.FileError("1")
		m.Records("1", "literal", 1)
		m.PassDone("1", time.Second)
		m.SetUnresolved(1)
	})
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	m := New()
	m.FileScanned("1")
	path := filepath.Join(t.TempDir(), "sprocscan.prom")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `sprocscan_pass_files_scanned_total{pass="1"} 1`)
}
