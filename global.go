package brokerflux

import (
	"log/slog"

	"github.com/gehhilfe/brokerflux/core"
	"github.com/gehhilfe/brokerflux/store/bolt"
)

// globalChannel adapts topic-addressed fan-out pub/sub onto the transport.
type globalChannel struct {
	transport core.Transport
	journal   *bolt.Journal
	logger    *slog.Logger
}

func (c *globalChannel) publish(topic string, message []byte) error {
	if err := c.transport.Publish(topic, message); err != nil {
		return err
	}
	if c.journal != nil {
		if err := c.journal.Record(bolt.KindPublication, topic, message); err != nil {
			c.logger.Error("Failed to journal publication", slog.String("topic", topic), slog.Any("error", err))
		}
	}
	return nil
}

func (c *globalChannel) subscribe(topic string, handler core.Handler) (core.Unsubscriber, error) {
	return c.transport.Subscribe(topic, handler)
}
