package mqtt

import "fmt"

// TopicPrefix is the root of every bridge topic.
//
// Bridge topics use the flat scheme: graylogic/{category}/{protocol}/{id}
const TopicPrefix = "graylogic"

// Topic categories.
const (
	categoryState    = "state"
	categoryCommand  = "command"
	categoryAck      = "ack"
	categoryRequest  = "request"
	categoryResponse = "response"
	categoryHealth   = "health"
)

// Topics provides builders for bridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState("alexa", "kitchen-light")
//	// Returns: "graylogic/state/alexa/kitchen-light"
type Topics struct{}

func bridgeTopic(category, protocol, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, category, protocol, id)
}

// BridgeState returns the topic for accessory state published by a bridge.
//
// Example: graylogic/state/alexa/kitchen-light
func (Topics) BridgeState(protocol, id string) string {
	return bridgeTopic(categoryState, protocol, id)
}

// BridgeCommand returns the topic for commands to a bridge.
//
// Example: graylogic/command/alexa/kitchen-light
func (Topics) BridgeCommand(protocol, id string) string {
	return bridgeTopic(categoryCommand, protocol, id)
}

// BridgeAck returns the topic for command acknowledgements from a bridge.
//
// Example: graylogic/ack/alexa/kitchen-light
func (Topics) BridgeAck(protocol, id string) string {
	return bridgeTopic(categoryAck, protocol, id)
}

// BridgeRequest returns the topic for requests to a bridge.
//
// Example: graylogic/request/alexa/req-abc123
func (Topics) BridgeRequest(protocol, requestID string) string {
	return bridgeTopic(categoryRequest, protocol, requestID)
}

// BridgeResponse returns the topic for request responses from a bridge.
//
// Example: graylogic/response/alexa/req-abc123
func (Topics) BridgeResponse(protocol, requestID string) string {
	return bridgeTopic(categoryResponse, protocol, requestID)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: graylogic/health/alexa
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, categoryHealth, protocol)
}
