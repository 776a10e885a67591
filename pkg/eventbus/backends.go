package eventbus

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowrun/pkg/channels/gochannel"
	"github.com/dukex/flowrun/pkg/channels/kafka"
)

// NewGoChannel returns a bus that only reaches listeners inside this process.
func NewGoChannel(logger *slog.Logger) *WatermillEventBus {
	pub, sub, _ := gochannel.CreateChannel(watermill.NewSlogLogger(logger), gochannel.DefaultBuffer)

	return NewWatermillEventBus(pub, sub, logger)
}

// NewKafka returns a bus shared by every process connected to the brokers.
func NewKafka(logger *slog.Logger, cfg kafka.Config) (*WatermillEventBus, error) {
	pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), cfg)
	if err != nil {
		return nil, err
	}

	return NewWatermillEventBus(pub, sub, logger), nil
}
