package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
)

func TestCreateChannel_NoBrokers(t *testing.T) {
	t.Parallel()

	for _, brokers := range [][]string{nil, {""}, {"", ""}} {
		pub, sub, err := CreateChannel(watermill.NopLogger{}, Config{Brokers: brokers, ConsumerGroup: "cg-test"})

		assert.ErrorIs(t, err, ErrNoBrokers)
		assert.Nil(t, pub)
		assert.Nil(t, sub)
	}
}
