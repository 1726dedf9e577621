package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/crawl-validator/internal/validation"
)

func TestPublishSendsJSONToTopic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.CreateTopic(ctx, "validation-events")
	require.NoError(t, err)

	pub := New(client)
	t.Cleanup(pub.Stop)

	event := validation.Event{
		Target:     validation.Target{Kind: validation.TargetCrawlerExecution, ID: "exec-1"},
		ErrorCount: 2,
	}
	id, err := pub.Publish(ctx, "validation-events", event)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got validation.Event
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "exec-1", got.Target.ID)
	require.Equal(t, 2, got.ErrorCount)
}

func TestPublishRequiresClientAndTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "topic", map[string]string{})
	require.Error(t, err)
}
