package biz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractEntitiesFromArray(t *testing.T) {
	entities := ExtractEntities(`["Paris", "Louvre", "Paris"]`)
	require.Equal(t, []string{"Paris", "Louvre"}, entities)
}

func TestExtractEntitiesFromObject(t *testing.T) {
	entities := ExtractEntities(`{"entities": ["Tokyo", "Shibuya"], "confidence": 0.9}`)
	require.Equal(t, []string{"Tokyo", "Shibuya"}, entities)
}

func TestExtractEntitiesRepairsMalformedJSON(t *testing.T) {
	// Trailing comma and single quotes, the usual model output damage.
	entities := ExtractEntities(`{'entities': ['Rome', 'Colosseum',]}`)
	require.Equal(t, []string{"Rome", "Colosseum"}, entities)
}

func TestExtractEntitiesFallsBackToHeuristic(t *testing.T) {
	entities := ExtractEntities("we walked from Notre Dame toward the Seine")
	require.Contains(t, entities, "Notre Dame")
	require.Contains(t, entities, "Seine")
}

func TestHeuristicEntities(t *testing.T) {
	entities := HeuristicEntities("Meeting with Alice Johnson about the Berlin office next week")
	require.Contains(t, entities, "Alice Johnson")
	require.Contains(t, entities, "Berlin")
	require.NotContains(t, entities, "week")
}

func TestHeuristicEntitiesEmpty(t *testing.T) {
	require.Empty(t, HeuristicEntities("all lowercase text only"))
	require.Empty(t, HeuristicEntities(""))
}
