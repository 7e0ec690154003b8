package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsJSON(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "career-crawler.run-completed", map[string]any{"runId": "r1", "totalJobs": 3})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "other", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "career-crawler.run-completed", msgs[0].Topic)

	var body struct {
		RunID     string `json:"runId"`
		TotalJobs int    `json:"totalJobs"`
	}
	require.NoError(t, msgs[0].Decode(&body))
	require.Equal(t, "r1", body.RunID)
	require.Equal(t, 3, body.TotalJobs)

	msgs[0].Topic = "modified"
	require.NotEqual(t, "modified", pub.Messages()[0].Topic, "Messages returns a copy")
}

func TestPublisherRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	_, err := New().Publish(context.Background(), "t", make(chan int))
	require.Error(t, err)
	require.Empty(t, New().Messages())
}
