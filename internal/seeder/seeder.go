// Package seeder generates realistic fake log traffic against a running
// gateway, for demos and load checks.
package seeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"gopkg.in/yaml.v3"

	"github.com/logvault-systems/logvault/internal/logging"
	"github.com/logvault-systems/logvault/internal/models"
)

// Scenario describes one seeding run. Loaded from YAML.
type Scenario struct {
	GatewayURL string        `yaml:"gateway_url"`
	APIKey     string        `yaml:"api_key"`
	Backend    string        `yaml:"backend"`
	Count      int           `yaml:"count"`
	BatchSize  int           `yaml:"batch_size"`
	Interval   time.Duration `yaml:"interval"`
	TimeSpread time.Duration `yaml:"time_spread"`
	Services   []string      `yaml:"services"`
	Levels     []LevelWeight `yaml:"levels"`
}

// LevelWeight biases the generated level distribution.
type LevelWeight struct {
	Level  string `yaml:"level"`
	Weight int    `yaml:"weight"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	s.applyDefaults()
	if s.APIKey == "" {
		return nil, fmt.Errorf("scenario requires api_key")
	}
	return &s, nil
}

func (s *Scenario) applyDefaults() {
	if s.GatewayURL == "" {
		s.GatewayURL = "http://localhost:8080"
	}
	if s.Count <= 0 {
		s.Count = 100
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 10
	}
	if len(s.Services) == 0 {
		s.Services = []string{"api", "worker", "scheduler", "billing", "auth"}
	}
	if len(s.Levels) == 0 {
		s.Levels = []LevelWeight{
			{Level: "DEBUG", Weight: 2},
			{Level: "INFO", Weight: 10},
			{Level: "WARNING", Weight: 3},
			{Level: "ERROR", Weight: 2},
			{Level: "CRITICAL", Weight: 1},
		}
	}
}

// Seeder posts generated batches to the gateway.
type Seeder struct {
	scenario *Scenario
	client   *http.Client
	logger   *logging.Logger
	rng      *rand.Rand
}

func New(scenario *Scenario, logger *logging.Logger) *Seeder {
	return &Seeder{
		scenario: scenario,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With(logging.Component("seeder")),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run generates and submits the scenario's entries. Returns the counts
// the gateway reported.
func (s *Seeder) Run(ctx context.Context) (queued, failed int, err error) {
	gofakeit.Seed(time.Now().UnixNano())

	remaining := s.scenario.Count
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return queued, failed, err
		}

		size := s.scenario.BatchSize
		if size > remaining {
			size = remaining
		}

		batch := make([]models.IngestRequest, size)
		for i := range batch {
			batch[i] = s.generate()
		}

		q, f, err := s.sendBatch(ctx, batch)
		if err != nil {
			return queued, failed, err
		}
		queued += q
		failed += f
		remaining -= size

		s.logger.Info("batch submitted", "queued", q, "failed", f, "remaining", remaining)

		if s.scenario.Interval > 0 && remaining > 0 {
			select {
			case <-time.After(s.scenario.Interval):
			case <-ctx.Done():
				return queued, failed, ctx.Err()
			}
		}
	}
	return queued, failed, nil
}

func (s *Seeder) generate() models.IngestRequest {
	ts := time.Now().UTC()
	if s.scenario.TimeSpread > 0 {
		ts = ts.Add(-time.Duration(s.rng.Int63n(int64(s.scenario.TimeSpread))))
	}

	service := s.scenario.Services[s.rng.Intn(len(s.scenario.Services))]
	level := s.pickLevel()

	return models.IngestRequest{
		Message:   s.message(level),
		Level:     level,
		Service:   service,
		Timestamp: ts.Format(time.RFC3339),
		Metadata: map[string]any{
			"host":       gofakeit.DomainName(),
			"request_id": gofakeit.UUID(),
			"user_agent": gofakeit.UserAgent(),
		},
	}
}

func (s *Seeder) pickLevel() string {
	total := 0
	for _, lw := range s.scenario.Levels {
		total += lw.Weight
	}
	n := s.rng.Intn(total)
	for _, lw := range s.scenario.Levels {
		n -= lw.Weight
		if n < 0 {
			return lw.Level
		}
	}
	return "INFO"
}

func (s *Seeder) message(level string) string {
	switch level {
	case "ERROR", "CRITICAL":
		return fmt.Sprintf("%s: %s", gofakeit.HackerVerb(), gofakeit.Error().Error())
	case "WARNING":
		return fmt.Sprintf("slow response from %s (%dms)", gofakeit.DomainName(), 500+s.rng.Intn(4500))
	default:
		return gofakeit.HackerPhrase()
	}
}

func (s *Seeder) sendBatch(ctx context.Context, batch []models.IngestRequest) (int, int, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal batch: %w", err)
	}

	url := s.scenario.GatewayURL + "/ingest/batch"
	if s.scenario.Backend != "" {
		url += "?backend=" + s.scenario.Backend
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", s.scenario.APIKey)

	res, err := s.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("send batch: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusAccepted {
		return 0, 0, fmt.Errorf("gateway rejected batch: %s", res.Status)
	}

	var resp models.BatchIngestResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return 0, 0, fmt.Errorf("decode batch response: %w", err)
	}
	return resp.Queued, resp.Failed, nil
}
