package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/config"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// fakeCluster answers the info and index APIs
type fakeCluster struct {
	mu       sync.Mutex
	paths    []string
	lastBody []byte
	failWith int
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/" {
		_, _ = w.Write([]byte(`{"version":{"number":"8.11.1"},"tagline":"You Know, for Search"}`))
		return
	}

	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.paths = append(f.paths, r.Method+" "+r.URL.Path)
	f.lastBody = body
	status := f.failWith
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"type":"cluster_block_exception"}}`))
		return
	}
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"result":"created"}`))
}

func newIndexer(t *testing.T, cluster *fakeCluster) TelemetryIndexer {
	t.Helper()
	server := httptest.NewServer(cluster)
	t.Cleanup(server.Close)

	indexer, err := NewTelemetryIndexer(config.ElasticsearchConfig{
		Enabled:   true,
		Addresses: []string{server.URL},
		Index:     "fleet-telemetry",
	})
	require.NoError(t, err)
	return indexer
}

func TestIndexSample_UsesSampleIDAsDocumentID(t *testing.T) {
	cluster := &fakeCluster{}
	indexer := newIndexer(t, cluster)

	sample := &models.TelemetrySample{
		DataType:  models.DataTypeSensor,
		Payload:   datatypes.JSON(`{"battery":55}`),
		Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	sample.ID = 42

	require.NoError(t, indexer.IndexSample(context.Background(), "TAG-1", sample))
	require.Equal(t, []string{"PUT /fleet-telemetry/_doc/42"}, cluster.paths)

	var doc TelemetryDocument
	require.NoError(t, json.Unmarshal(cluster.lastBody, &doc))
	assert.Equal(t, "TAG-1", doc.DeviceID)
	assert.Equal(t, uint(42), doc.SampleID)
	assert.JSONEq(t, `{"battery":55}`, string(doc.Payload))
}

func TestIndexSample_ReportsClusterErrors(t *testing.T) {
	cluster := &fakeCluster{failWith: http.StatusForbidden}
	indexer := newIndexer(t, cluster)

	sample := &models.TelemetrySample{DataType: models.DataTypeHeartbeat}
	sample.ID = 1
	assert.Error(t, indexer.IndexSample(context.Background(), "TAG-1", sample))
}

func TestNewTelemetryIndexer_DisabledIsNoop(t *testing.T) {
	indexer, err := NewTelemetryIndexer(config.ElasticsearchConfig{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, NoopIndexer{}, indexer)
	assert.NoError(t, indexer.IndexSample(context.Background(), "TAG-1", &models.TelemetrySample{}))
}
