package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logvault-systems/logvault/internal/models"
)

func TestOpenSearchBuildQuery(t *testing.T) {
	b := &OpenSearchBackend{index: "logs"}
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	q := b.buildQuery(Filter{
		ProjectID: "p1",
		Level:     models.LevelError,
		Service:   "api",
		Search:    "invoicing",
		Start:     &start,
	})

	must := q["query"].(map[string]any)["bool"].(map[string]any)["must"].([]map[string]any)
	require.Len(t, must, 5)
	assert.Equal(t, map[string]any{"project_id.keyword": "p1"}, must[0]["term"])
	assert.Equal(t, map[string]any{"level.keyword": "ERROR"}, must[1]["term"])
	assert.Equal(t, map[string]any{"service.keyword": "api"}, must[2]["term"])

	// Free-text search spans message, service and metadata values.
	assert.Equal(t, map[string]any{
		"query":  "invoicing",
		"fields": []string{"message", "service", "metadata.*"},
	}, must[3]["multi_match"])

	rng := must[4]["range"].(map[string]any)["timestamp"].(map[string]any)
	assert.Equal(t, "2026-08-01T00:00:00Z", rng["gte"])
	_, hasLte := rng["lte"]
	assert.False(t, hasLte)
}

func TestOpenSearchBuildQueryLevelAll(t *testing.T) {
	b := &OpenSearchBackend{index: "logs"}

	q := b.buildQuery(Filter{ProjectID: "p1", Level: models.LevelAll})
	must := q["query"].(map[string]any)["bool"].(map[string]any)["must"].([]map[string]any)

	// ALL adds no level constraint.
	require.Len(t, must, 1)
	assert.Equal(t, map[string]any{"project_id.keyword": "p1"}, must[0]["term"])
}
