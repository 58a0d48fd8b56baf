package nats

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
)

// Cleanup control channel: one well-known subject, consumed by exactly one
// instance per phase through the queue group.
const (
	controlSubject = "chat.control.cleanup"

	// ControlQueueGroup designates the single consumer per cleanup phase.
	ControlQueueGroup = "chat-cleanup"
)

// PublishCleanupCommand emits a teardown phase command. The external
// scheduler owns the timing; this is also used by operational tooling.
func (c *NATSClient) PublishCleanupCommand(cmd domain.CleanupCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to serialize cleanup command: %w", err)
	}
	return c.Conn.Publish(controlSubject, data)
}

// ConsumeCleanupCommands delivers control-channel commands to the handler.
// Malformed payloads are dropped; the handler owns semantic validation.
func (c *NATSClient) ConsumeCleanupCommands(group string, handler func(domain.CleanupCommand)) error {
	sub, err := c.Conn.QueueSubscribe(controlSubject, group, func(m *nats.Msg) {
		var cmd domain.CleanupCommand
		if err := json.Unmarshal(m.Data, &cmd); err != nil {
			return
		}
		handler(cmd)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to cleanup control channel: %w", err)
	}

	c.track(sub)
	return nil
}
