package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/logvault-systems/logvault/internal/config"
	"github.com/logvault-systems/logvault/internal/metrics"
	"github.com/logvault-systems/logvault/internal/models"
)

// OpenSearchBackend indexes entries in OpenSearch. It answers API
// requests for the "elasticsearch" backend; the wire protocol is
// compatible.
type OpenSearchBackend struct {
	client *opensearch.Client
	index  string
}

func NewOpenSearch(cfg config.OpenSearchConfig) (*OpenSearchBackend, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	return &OpenSearchBackend{client: client, index: cfg.Index}, nil
}

func (b *OpenSearchBackend) Kind() Kind { return KindElasticsearch }

func (b *OpenSearchBackend) Write(ctx context.Context, entry *models.LogEntry) error {
	start := time.Now()
	defer func() {
		metrics.StorageDuration.WithLabelValues(string(KindElasticsearch)).Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(entry)
	if err != nil {
		return &Error{Backend: KindElasticsearch, Op: "write", Transient: false, Err: err}
	}

	res, err := b.client.Index(
		b.index,
		bytes.NewReader(body),
		b.client.Index.WithContext(ctx),
		b.client.Index.WithDocumentID(entry.ID),
	)
	if err != nil {
		return &Error{Backend: KindElasticsearch, Op: "write", Transient: true, Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		// 4xx means the document itself is unindexable; retrying the
		// same document cannot succeed.
		transient := res.StatusCode >= 500
		return &Error{
			Backend:   KindElasticsearch,
			Op:        "write",
			Transient: transient,
			Err:       fmt.Errorf("index error: %s", res.Status()),
		}
	}
	return nil
}

func (b *OpenSearchBackend) WriteBatch(ctx context.Context, entries []*models.LogEntry) []error {
	return writeEach(ctx, b, entries)
}

func (b *OpenSearchBackend) Query(ctx context.Context, filter Filter) (*Page, error) {
	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues(string(KindElasticsearch)).Observe(time.Since(start).Seconds())
	}()

	query := b.buildQuery(filter)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, &Error{Backend: KindElasticsearch, Op: "query", Transient: false, Err: err}
	}

	res, err := b.client.Search(
		b.client.Search.WithContext(ctx),
		b.client.Search.WithIndex(b.index),
		b.client.Search.WithBody(&buf),
		b.client.Search.WithFrom(filter.Offset()),
		b.client.Search.WithSize(filter.Size),
		b.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, &Error{Backend: KindElasticsearch, Op: "query", Transient: true, Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		// A missing index means nothing has been written yet.
		if res.StatusCode == http.StatusNotFound {
			return &Page{Entries: []models.LogEntry{}, Total: 0}, nil
		}
		return nil, &Error{
			Backend:   KindElasticsearch,
			Op:        "query",
			Transient: res.StatusCode >= 500,
			Err:       fmt.Errorf("search error: %s", res.Status()),
		}
	}

	var searchResult struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.LogEntry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, &Error{Backend: KindElasticsearch, Op: "query", Transient: true, Err: err}
	}

	entries := make([]models.LogEntry, 0, len(searchResult.Hits.Hits))
	for _, hit := range searchResult.Hits.Hits {
		entries = append(entries, hit.Source)
	}

	return &Page{Entries: entries, Total: searchResult.Hits.Total.Value}, nil
}

func (b *OpenSearchBackend) buildQuery(filter Filter) map[string]any {
	must := []map[string]any{
		{"term": map[string]any{"project_id.keyword": filter.ProjectID}},
	}

	if filter.Level != "" && filter.Level != models.LevelAll {
		must = append(must, map[string]any{
			"term": map[string]any{"level.keyword": string(filter.Level)},
		})
	}
	if filter.Service != "" {
		must = append(must, map[string]any{
			"term": map[string]any{"service.keyword": filter.Service},
		})
	}
	if filter.Search != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  filter.Search,
				"fields": []string{"message", "service", "metadata.*"},
			},
		})
	}
	if filter.Start != nil || filter.End != nil {
		rng := map[string]any{}
		if filter.Start != nil {
			rng["gte"] = filter.Start.UTC().Format(time.RFC3339Nano)
		}
		if filter.End != nil {
			rng["lte"] = filter.End.UTC().Format(time.RFC3339Nano)
		}
		must = append(must, map[string]any{
			"range": map[string]any{"timestamp": rng},
		})
	}

	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{"must": must},
		},
		"sort": []map[string]any{
			{"timestamp": map[string]any{"order": "desc"}},
			{"id.keyword": map[string]any{"order": "desc"}},
		},
	}
}

func (b *OpenSearchBackend) ListServices(ctx context.Context, projectID string) ([]string, error) {
	query := map[string]any{
		"size": 0,
		"query": map[string]any{
			"term": map[string]any{"project_id.keyword": projectID},
		},
		"aggs": map[string]any{
			"services": map[string]any{
				"terms": map[string]any{
					"field": "service.keyword",
					"size":  1000,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, &Error{Backend: KindElasticsearch, Op: "list services", Transient: false, Err: err}
	}

	res, err := b.client.Search(
		b.client.Search.WithContext(ctx),
		b.client.Search.WithIndex(b.index),
		b.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, &Error{Backend: KindElasticsearch, Op: "list services", Transient: true, Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return []string{}, nil
		}
		return nil, &Error{
			Backend:   KindElasticsearch,
			Op:        "list services",
			Transient: res.StatusCode >= 500,
			Err:       fmt.Errorf("search error: %s", res.Status()),
		}
	}

	var aggResult struct {
		Aggregations struct {
			Services struct {
				Buckets []struct {
					Key string `json:"key"`
				} `json:"buckets"`
			} `json:"services"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&aggResult); err != nil {
		return nil, &Error{Backend: KindElasticsearch, Op: "list services", Transient: true, Err: err}
	}

	services := make([]string, 0, len(aggResult.Aggregations.Services.Buckets))
	for _, bucket := range aggResult.Aggregations.Services.Buckets {
		services = append(services, bucket.Key)
	}
	return services, nil
}

func (b *OpenSearchBackend) Healthy(ctx context.Context) bool {
	res, err := b.client.Ping(b.client.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

func (b *OpenSearchBackend) Close() error {
	return nil
}
