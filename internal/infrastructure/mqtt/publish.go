package mqtt

import (
	"fmt"
)

// maxPayloadSize caps outbound payloads well under typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message to the given topic, blocking until the broker
// acknowledges or defaultPublishTimeout expires. Retained messages are for
// state topics (the broker hands the last one to new subscribers); commands
// and events publish unretained.
//
//	topic := mqtt.Topics{}.Actuation("mod-1a2b3c4d")
//	err := client.Publish(topic, []byte(`{"Temperature":"ON"}`), 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}
