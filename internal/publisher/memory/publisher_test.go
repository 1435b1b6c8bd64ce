package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "booking.booked", map[string]string{"slot_id": "1"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "booking.failed", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "booking.booked", msgs[0].Event)
	require.Equal(t, "booking.failed", msgs[1].Event)

	msgs[0].Event = "modified"
	require.Equal(t, "booking.booked", pub.Messages()[0].Event)
	require.NoError(t, pub.Close())
}

func TestPublisherWithLimitKeepsNewest(t *testing.T) {
	t.Parallel()

	pub := NewWithLimit(2)
	for _, event := range []string{"a", "b", "c"} {
		_, err := pub.Publish(context.Background(), event, nil)
		require.NoError(t, err)
	}
	id, err := pub.Publish(context.Background(), "d", nil)
	require.NoError(t, err)
	require.Equal(t, "memory-4", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "c", msgs[0].Event)
	require.Equal(t, "d", msgs[1].Event)
}
