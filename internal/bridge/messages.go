package bridge

import (
	"time"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/mqtt"
)

// MQTT message types exchanged between the host and the cloud bridge.

// Protocol is the protocol segment of every bridge topic.
const Protocol = "alexa"

// CommandMessage is sent by the host to set a characteristic.
// Topic: graylogic/command/alexa/{accessory_id}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acknowledgments.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// AccessoryID is the target accessory. Taken from the topic when empty.
	AccessoryID string `json:"accessory_id"`

	// Characteristic is the characteristic to set (e.g., "on", "brightness").
	Characteristic string `json:"characteristic"`

	// Value is the new value. Its type depends on the characteristic:
	//   on: bool, brightness: 0-100, volume_selector: "increment"|"decrement"
	Value any `json:"value"`

	// Source indicates where the command originated.
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was applied by the cloud.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage is sent by the bridge to acknowledge a command.
// Topic: graylogic/ack/alexa/{accessory_id}
type AckMessage struct {
	CommandID      string    `json:"command_id"`
	Timestamp      time.Time `json:"timestamp"`
	AccessoryID    string    `json:"accessory_id"`
	Characteristic string    `json:"characteristic"`
	Status         AckStatus `json:"status"`
	Protocol       string    `json:"protocol"`
	Error          *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for failed commands and requests.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage is published when an accessory's readable characteristics
// change.
// Topic: graylogic/state/alexa/{accessory_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	AccessoryID string         `json:"accessory_id"`
	Kind        string         `json:"kind"`
	Timestamp   time.Time      `json:"timestamp"`
	State       map[string]any `json:"state"`
	Protocol    string         `json:"protocol"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/alexa
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string            `json:"bridge"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Statistics    *BridgeStatistics `json:"statistics,omitempty"`

	// AccessoriesManaged is the number of configured accessories.
	AccessoriesManaged int `json:"accessories_managed"`

	// LastRefresh is the time of the last remote state query.
	LastRefresh *time.Time `json:"last_refresh,omitempty"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	StatesPublished  uint64 `json:"states_published"`
}

// RequestMessage is sent by the host for request/response operations.
// Topic: graylogic/request/alexa/{request_id}
type RequestMessage struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Action is one of "read_state", "read_all", "list_accessories".
	Action string `json:"action"`

	// AccessoryID is the target of read_state.
	AccessoryID string `json:"accessory_id,omitempty"`

	// Characteristic limits read_state to one characteristic.
	Characteristic string `json:"characteristic,omitempty"`
}

// Request actions.
const (
	ActionReadState       = "read_state"
	ActionReadAll         = "read_all"
	ActionListAccessories = "list_accessories"
)

// ResponseMessage answers a RequestMessage.
// Topic: graylogic/response/alexa/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage creates an acknowledgment message for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID:      cmd.ID,
		Timestamp:      time.Now().UTC(),
		AccessoryID:    cmd.AccessoryID,
		Characteristic: cmd.Characteristic,
		Status:         status,
		Protocol:       Protocol,
	}
}

// NewAckError creates an acknowledgment with error details.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message for an accessory.
func NewStateMessage(accessoryID, kind string, state map[string]any) StateMessage {
	return StateMessage{
		AccessoryID: accessoryID,
		Kind:        kind,
		Timestamp:   time.Now().UTC(),
		State:       state,
		Protocol:    Protocol,
	}
}

// NewLWTMessage creates a Last Will and Testament message for MQTT.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// Topic helpers. All topics follow graylogic/{category}/alexa/{id}.

var topics mqtt.Topics

// CommandTopic returns the command topic of an accessory.
func CommandTopic(accessoryID string) string { return topics.BridgeCommand(Protocol, accessoryID) }

// AckTopic returns the acknowledgment topic of an accessory.
func AckTopic(accessoryID string) string { return topics.BridgeAck(Protocol, accessoryID) }

// StateTopic returns the state topic of an accessory.
func StateTopic(accessoryID string) string { return topics.BridgeState(Protocol, accessoryID) }

// HealthTopic returns the bridge health topic.
func HealthTopic() string { return topics.BridgeHealth(Protocol) }

// RequestTopic returns the topic of a request.
func RequestTopic(requestID string) string { return topics.BridgeRequest(Protocol, requestID) }

// ResponseTopic returns the topic of a response.
func ResponseTopic(requestID string) string { return topics.BridgeResponse(Protocol, requestID) }

// CommandSubscribeTopic returns the subscription pattern for all commands.
func CommandSubscribeTopic() string { return topics.BridgeCommand(Protocol, "#") }

// RequestSubscribeTopic returns the subscription pattern for all requests.
func RequestSubscribeTopic() string { return topics.BridgeRequest(Protocol, "#") }
