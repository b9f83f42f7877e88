package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/config"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// TelemetryIndexer projects telemetry samples into a search index
type TelemetryIndexer interface {
	IndexSample(ctx context.Context, deviceID string, sample *models.TelemetrySample) error
}

// TelemetryDocument is the indexed shape of a sample
type TelemetryDocument struct {
	SampleID  uint                     `json:"sample_id"`
	DeviceID  string                   `json:"device_id"`
	DataType  models.TelemetryDataType `json:"data_type"`
	Payload   json.RawMessage          `json:"payload,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
}

// esIndexer implements TelemetryIndexer on Elasticsearch
type esIndexer struct {
	client *elasticsearch.Client
	index  string
}

// NewTelemetryIndexer creates an Elasticsearch-backed indexer. A disabled
// configuration yields an indexer that does nothing.
func NewTelemetryIndexer(cfg config.ElasticsearchConfig) (TelemetryIndexer, error) {
	if !cfg.Enabled {
		return NoopIndexer{}, nil
	}

	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
	}
	if cfg.Username != "" && cfg.Password != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}
	esCfg.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch error: %s", res.String())
	}

	return &esIndexer{client: client, index: cfg.Index}, nil
}

// IndexSample indexes one sample, using the sample id as document id so that
// retries overwrite rather than duplicate
func (e *esIndexer) IndexSample(ctx context.Context, deviceID string, sample *models.TelemetrySample) error {
	doc, err := json.Marshal(TelemetryDocument{
		SampleID:  sample.ID,
		DeviceID:  deviceID,
		DataType:  sample.DataType,
		Payload:   json.RawMessage(sample.Payload),
		Timestamp: sample.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to encode telemetry document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: strconv.FormatUint(uint64(sample.ID), 10),
		Body:       bytes.NewReader(doc),
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to index telemetry: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing telemetry: %s", res.String())
	}
	return nil
}

// NoopIndexer discards samples
type NoopIndexer struct{}

func (NoopIndexer) IndexSample(ctx context.Context, deviceID string, sample *models.TelemetrySample) error {
	return nil
}
