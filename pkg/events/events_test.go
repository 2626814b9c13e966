package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	event := New(EventAssetDownloaded, "downloaded a.jpg", "asset", "a.jpg", "size", "42")

	assert.Equal(t, EventAssetDownloaded, event.Type)
	assert.Equal(t, "downloaded a.jpg", event.Message)
	assert.Equal(t, map[string]string{"asset": "a.jpg", "size": "42"}, event.Metadata)
}

func TestNew_OddMetadataIgnoresTrailingKey(t *testing.T) {
	event := New(EventSyncFailed, "failed", "error")

	assert.Empty(t, event.Metadata)
}

func TestBroker_PublishSubscribe(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub1 := broker.Subscribe()
	sub2 := broker.Subscribe()
	assert.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(New(EventRestartRequested, "restart"))

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case event := <-sub:
			assert.Equal(t, EventRestartRequested, event.Type)
			assert.NotEmpty(t, event.ID)
			assert.False(t, event.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBroker_Unsubscribe(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	broker.Unsubscribe(sub)

	assert.Equal(t, 0, broker.SubscriberCount())
	_, open := <-sub
	assert.False(t, open)
}

func TestBroker_NilPublishIsNoop(t *testing.T) {
	var broker *Broker
	require.NotPanics(t, func() {
		broker.Publish(New(EventSyncCompleted, "done"))
	})
}
