package gochannel

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChannel_PreservesOrder(t *testing.T) {
	t.Parallel()

	pub, sub, err := CreateChannel(watermill.NopLogger{}, 0)
	require.NoError(t, err)

	defer pub.Close()

	messages, err := sub.Subscribe(t.Context(), "topic")
	require.NoError(t, err)

	go func() {
		for _, id := range []string{"1", "2", "3"} {
			_ = pub.Publish("topic", message.NewMessage(id, nil))
		}
	}()

	for _, want := range []string{"1", "2", "3"} {
		select {
		case msg := <-messages:
			assert.Equal(t, want, msg.UUID)
			msg.Ack()
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	}
}
