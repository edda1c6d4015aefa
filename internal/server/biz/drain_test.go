package biz

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/store"
	"github.com/looplj/memvault/internal/store/storetest"
)

func TestDrainMergeExecution(t *testing.T) {
	client := storetest.NewClient(t)
	svcs := NewServicesForTest(client)
	ctx := context.Background()
	tenant := provisionTenant(t, svcs)
	carrier := testCarrier(t, 0xC1)

	survivor, err := svcs.Topic.Create(ctx, carrier, tenant.ID, CreateTopicInput{
		UserID: "user-1",
		Content: objects.TopicContent{
			Title:    "Paris trip",
			Summary:  "Spring trip planning.",
			Entities: []string{"Paris"},
		},
		Importance: 0.5,
	})
	require.NoError(t, err)

	merged, err := svcs.Topic.Create(ctx, carrier, tenant.ID, CreateTopicInput{
		UserID: "user-1",
		Content: objects.TopicContent{
			Title:    "Paris vacation",
			Summary:  "Museum bookings confirmed.",
			Entities: []string{"Paris", "Louvre"},
		},
		Importance: 0.9,
	})
	require.NoError(t, err)

	neighbor, err := svcs.Topic.Create(ctx, carrier, tenant.ID, CreateTopicInput{
		UserID:  "user-1",
		Content: objects.TopicContent{Title: "Flights"},
	})
	require.NoError(t, err)

	// Both duplicates share the neighbor; the merge must collapse the
	// pair of edges, not trip over it.
	_, err = svcs.Topic.AddEdge(ctx, tenant.ID, merged.ID, neighbor.ID, objects.EdgeKindRelated, 0.6)
	require.NoError(t, err)
	_, err = svcs.Topic.AddEdge(ctx, tenant.ID, survivor.ID, neighbor.ID, objects.EdgeKindRelated, 0.7)
	require.NoError(t, err)

	_, created, err := svcs.Queue.Enqueue(ctx, tenant.ID, objects.ActionMergeExecution, []int{survivor.ID, merged.ID})
	require.NoError(t, err)
	require.True(t, created)

	result, err := svcs.Drain.Drain(ctx, carrier, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.Drained)
	require.Zero(t, result.Failed)

	got, err := svcs.Topic.ReadDecrypted(ctx, carrier, tenant.ID, survivor.ID)
	require.NoError(t, err)

	want := objects.TopicContent{
		Title:    "Paris trip",
		Summary:  "Spring trip planning.\n\nMuseum bookings confirmed.",
		Entities: []string{"Paris", "Louvre"},
	}
	require.Empty(t, cmp.Diff(want, got.Content))
	require.InDelta(t, 0.9, got.Importance, 1e-9)

	_, err = svcs.Topic.ReadDecrypted(ctx, carrier, tenant.ID, merged.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	neighbors, err := svcs.Topic.Neighbors(ctx, tenant.ID, survivor.ID)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	require.Equal(t, neighbor.ID, neighbors[0].DstID)
}

func TestDrainReExtraction(t *testing.T) {
	client := storetest.NewClient(t)
	svcs := NewServicesForTest(client)
	ctx := context.Background()
	tenant := provisionTenant(t, svcs)
	carrier := testCarrier(t, 0xC2)

	topic, err := svcs.Topic.Create(ctx, carrier, tenant.ID, CreateTopicInput{
		UserID: "user-1",
		Content: objects.TopicContent{
			Title:  "Notes",
			Source: `{"entities": ["Berlin", "Reichstag"]}`,
		},
	})
	require.NoError(t, err)

	// Simulate an older extractor by zeroing the version.
	require.NoError(t, client.Topics.Update(ctx, &store.Topic{
		ID:                topic.ID,
		TenantID:          tenant.ID,
		UserID:            topic.UserID,
		Payload:           mustPayload(t, client, tenant.ID, topic.ID),
		ExtractionVersion: 0,
		Importance:        topic.Importance,
	}))

	_, _, err = svcs.Queue.Enqueue(ctx, tenant.ID, objects.ActionReExtraction, []int{topic.ID})
	require.NoError(t, err)

	result, err := svcs.Drain.Drain(ctx, carrier, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.Drained)

	got, err := svcs.Topic.ReadDecrypted(ctx, carrier, tenant.ID, topic.ID)
	require.NoError(t, err)
	require.Equal(t, ExtractionVersion, got.ExtractionVersion)
	require.ElementsMatch(t, []string{"Berlin", "Reichstag"}, got.Content.Entities)
}

func mustPayload(t *testing.T, client *store.Client, tenantID, id int) []byte {
	t.Helper()

	row, err := client.Topics.ByID(context.Background(), tenantID, id)
	require.NoError(t, err)

	return row.Payload
}

func TestDrainAnchorRegeneration(t *testing.T) {
	client := storetest.NewClient(t)
	svcs := NewServicesForTest(client)
	ctx := context.Background()
	tenant := provisionTenant(t, svcs)
	carrier := testCarrier(t, 0xC3)

	topic, err := svcs.Topic.Create(ctx, carrier, tenant.ID, CreateTopicInput{
		UserID: "user-7",
		Content: objects.TopicContent{
			Title:    "Budget review",
			Summary:  "Q3 numbers look stable. Further detail follows.",
			Entities: []string{"Q3"},
		},
	})
	require.NoError(t, err)

	_, _, err = svcs.Queue.Enqueue(ctx, tenant.ID, objects.ActionAnchorRegeneration, []int{topic.ID})
	require.NoError(t, err)

	result, err := svcs.Drain.Drain(ctx, carrier, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.Drained)

	anchors, err := svcs.Anchor.ListDecrypted(ctx, carrier, tenant.ID, "user-7")
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	require.Equal(t, topic.ID, anchors[0].TopicID)
	require.Equal(t, "Budget review: Q3 numbers look stable.", anchors[0].Card.Card)
	require.False(t, anchors[0].Stale)

	// The anchor row at rest is sealed like any other payload.
	rows, err := client.Anchors.ListByUser(ctx, tenant.ID, "user-7")
	require.NoError(t, err)
	require.NotContains(t, string(rows[0].Payload), "Budget review")
}

func TestDrainFailureDoesNotFailCaller(t *testing.T) {
	client := storetest.NewClient(t)
	svcs := NewServicesForTest(client)
	ctx := context.Background()
	tenant := provisionTenant(t, svcs)
	carrier := testCarrier(t, 0xC4)

	// Target a topic that does not exist.
	action, _, err := svcs.Queue.Enqueue(ctx, tenant.ID, objects.ActionReExtraction, []int{999})
	require.NoError(t, err)

	result, err := svcs.Drain.Drain(ctx, carrier, tenant.ID)
	require.NoError(t, err)
	require.Zero(t, result.Drained)
	require.Equal(t, 1, result.Failed)

	actions, err := svcs.Queue.List(ctx, tenant.ID, objects.ActionStatusPending)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, action.ID, actions[0].ID)
	require.Equal(t, 1, actions[0].Attempts)
	require.NotEmpty(t, actions[0].LastError)
}

func TestDrainRespectsMaxActions(t *testing.T) {
	client := storetest.NewClient(t)
	svcs := NewServicesForTest(client)
	svcs.Drain.config.MaxActions = 1
	ctx := context.Background()
	tenant := provisionTenant(t, svcs)
	carrier := testCarrier(t, 0xC5)

	for i := 0; i < 3; i++ {
		topic, err := svcs.Topic.Create(ctx, carrier, tenant.ID, CreateTopicInput{
			UserID:  "u",
			Content: objects.TopicContent{Title: "T", Summary: "S"},
		})
		require.NoError(t, err)

		_, _, err = svcs.Queue.Enqueue(ctx, tenant.ID, objects.ActionAnchorRegeneration, []int{topic.ID})
		require.NoError(t, err)
	}

	result, err := svcs.Drain.Drain(ctx, carrier, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.Drained)
	require.Equal(t, 2, result.Left, "leftover work stays queued for the next key window")
}

func TestDrainWithoutCarrier(t *testing.T) {
	client := storetest.NewClient(t)
	svcs := NewServicesForTest(client)
	tenant := provisionTenant(t, svcs)

	_, err := svcs.Drain.Drain(context.Background(), nil, tenant.ID)
	require.ErrorIs(t, err, ErrKeyMissing)
}
