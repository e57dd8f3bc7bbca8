package brokerflux

import (
	"log/slog"

	"github.com/gehhilfe/brokerflux/core"
	"github.com/gehhilfe/brokerflux/store/bolt"
)

// commandChannel adapts one-way, queue-addressed command delivery onto the
// transport. Point-to-point, one logical consumer group per queue, unlike
// the fan-out globalChannel.
type commandChannel struct {
	transport core.Transport
	journal   *bolt.Journal
	logger    *slog.Logger
}

func (c *commandChannel) declare(queue string, handler core.Handler) (core.Unsubscriber, error) {
	return c.transport.CommandQueue(queue, handler)
}

func (c *commandChannel) send(queue string, command []byte) error {
	if err := c.transport.SendCommand(queue, command); err != nil {
		return err
	}
	if c.journal != nil {
		if err := c.journal.Record(bolt.KindCommand, queue, command); err != nil {
			c.logger.Error("Failed to journal command", slog.String("queue", queue), slog.Any("error", err))
		}
	}
	return nil
}
