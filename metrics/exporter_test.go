package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procnet/classifier"
	"procnet/model"
	"procnet/snapshot"
)

func testReport(entries ...model.ProcessEntity) snapshot.Report {
	return snapshot.Report{
		Snapshot: &snapshot.Snapshot{Time: time.Now(), Entries: entries},
		Dropped:  1,
		Took:     2 * time.Millisecond,
	}
}

func TestExporterPublish(t *testing.T) {
	e := NewExporter(nil, nil)
	e.Publish(testReport(model.ProcessEntity{Pid: 7, Name: "curl", TxTotal: 1500, RxTotal: 3000, TxRate: 100, RxRate: 200}))

	assert.Equal(t, float64(1500), testutil.ToFloat64(e.processBytes.WithLabelValues("7", "curl", "upload")))
	assert.Equal(t, float64(3000), testutil.ToFloat64(e.processBytes.WithLabelValues("7", "curl", "download")))
	assert.Equal(t, float64(200), testutil.ToFloat64(e.processSpeed.WithLabelValues("7", "curl", "download")))
	assert.Equal(t, float64(1), testutil.ToFloat64(e.droppedTotal))

	// 进程退出后指标被清理
	e.Publish(testReport(model.ProcessEntity{Pid: 8, Name: "wget"}))
	assert.Equal(t, 2, testutil.CollectAndCount(e.processBytes))
	assert.Equal(t, float64(2), testutil.ToFloat64(e.droppedTotal))
}

func TestExporterHandler(t *testing.T) {
	stats := classifier.Stats{}
	stats.Packets[classifier.Upload] = 3
	stats.Bytes[classifier.Upload] = 4500

	e := NewExporter(func() classifier.Stats { return stats }, func() int { return 42 })
	e.Publish(testReport(model.ProcessEntity{Pid: 7, Name: "curl", RxTotal: 10}))

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	for _, want := range []string{
		`procnet_packets_total{verdict="upload"} 3`,
		`procnet_packet_bytes_total{verdict="upload"} 4500`,
		`procnet_registry_connections 42`,
		`procnet_process_bytes{direction="download",name="curl",pid="7"} 10`,
		`procnet_snapshot_duration_seconds_count 1`,
	} {
		assert.True(t, strings.Contains(body, want), "missing %s", want)
	}
}
