package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/unspun/unspun/pkg/channels/gochannel"
	"github.com/unspun/unspun/pkg/channels/kafka"
	"github.com/unspun/unspun/pkg/eventbus"
)

// NewEventBus builds the event bus for the given provider. kafka is
// for multi-process deployments; gochannel keeps everything in one
// process. brokers is the comma-separated kafka broker list and is
// ignored by the gochannel provider.
func NewEventBus(provider, brokers string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), "unspun", strings.Split(brokers, ","))
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create in-process pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
