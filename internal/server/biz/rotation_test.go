package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/store/storetest"
)

func TestRotateReencryptsEverything(t *testing.T) {
	client := storetest.NewClient(t)
	svcs := NewServicesForTest(client)
	ctx := context.Background()
	tenant := provisionTenant(t, svcs)
	oldCarrier := testCarrier(t, 0xD1)
	newCarrier := testCarrier(t, 0xD2)

	var topicIDs []int

	for i := 0; i < 3; i++ {
		topic, err := svcs.Topic.Create(ctx, oldCarrier, tenant.ID, CreateTopicInput{
			UserID:  "user-1",
			Content: objects.TopicContent{Title: "T", Summary: "S"},
		})
		require.NoError(t, err)

		topicIDs = append(topicIDs, topic.ID)
	}

	require.NoError(t, svcs.Anchor.Regenerate(ctx, oldCarrier, tenant.ID, topicIDs[0]))

	result, err := svcs.Rotation.Rotate(ctx, oldCarrier, newCarrier, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, 3, result.TopicsRotated)
	require.Equal(t, 1, result.AnchorsRotated)
	require.Zero(t, result.Failed)

	for _, id := range topicIDs {
		_, err := svcs.Topic.ReadDecrypted(ctx, newCarrier, tenant.ID, id)
		require.NoError(t, err)

		_, err = svcs.Topic.ReadDecrypted(ctx, oldCarrier, tenant.ID, id)
		require.ErrorIs(t, err, ErrAccessDenied)
	}

	anchors, err := svcs.Anchor.ListDecrypted(ctx, newCarrier, tenant.ID, "user-1")
	require.NoError(t, err)
	require.Len(t, anchors, 1)
}

func TestRotatePartialFailureLeavesEntitiesConsistent(t *testing.T) {
	client := storetest.NewClient(t)
	svcs := NewServicesForTest(client)
	ctx := context.Background()
	tenant := provisionTenant(t, svcs)
	oldCarrier := testCarrier(t, 0xD3)
	newCarrier := testCarrier(t, 0xD4)

	healthy, err := svcs.Topic.Create(ctx, oldCarrier, tenant.ID, CreateTopicInput{
		UserID:  "u",
		Content: objects.TopicContent{Title: "Healthy"},
	})
	require.NoError(t, err)

	broken, err := svcs.Topic.Create(ctx, oldCarrier, tenant.ID, CreateTopicInput{
		UserID:  "u",
		Content: objects.TopicContent{Title: "Broken"},
	})
	require.NoError(t, err)

	// Corrupt one payload so its rotation fails.
	row, err := client.Topics.ByID(ctx, tenant.ID, broken.ID)
	require.NoError(t, err)

	corrupted := append([]byte{}, row.Payload...)
	corrupted[0] = 0x7F
	require.NoError(t, client.Topics.UpdatePayload(ctx, tenant.ID, broken.ID, corrupted))

	result, err := svcs.Rotation.Rotate(ctx, oldCarrier, newCarrier, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.TopicsRotated)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)

	// The healthy row moved to the new key; the broken one is unchanged.
	_, err = svcs.Topic.ReadDecrypted(ctx, newCarrier, tenant.ID, healthy.ID)
	require.NoError(t, err)

	got, err := client.Topics.ByID(ctx, tenant.ID, broken.ID)
	require.NoError(t, err)
	require.Equal(t, corrupted, got.Payload)
}
