package cloud

// Wire types for the vendor cloud's smart-home endpoints.

// EntityTypeAppliance is the entity type used for all device requests.
const EntityTypeAppliance = "APPLIANCE"

// Entity identifies a device in requests and responses.
type Entity struct {
	EntityID   string `json:"entityId"`
	EntityType string `json:"entityType,omitempty"`
}

// StateRequest asks for the capability states of one device.
type StateRequest struct {
	EntityID   string `json:"entityId"`
	EntityType string `json:"entityType"`
}

// StatesRequest is the body of a batch state query.
type StatesRequest struct {
	StateRequests []StateRequest `json:"stateRequests"`
}

// StatesResponse is the body returned by a batch state query.
//
// Each capability state is itself a JSON document encoded as a string.
type StatesResponse struct {
	DeviceStates []DeviceStateEntry `json:"deviceStates"`
	Errors       []EntityError      `json:"errors"`
}

// DeviceStateEntry holds the capability states of one device.
type DeviceStateEntry struct {
	Entity           *Entity      `json:"entity"`
	CapabilityStates []string     `json:"capabilityStates"`
	Error            *EntityError `json:"error,omitempty"`
}

// EntityError is a per-device failure reported by the remote.
type EntityError struct {
	Entity  *Entity `json:"entity,omitempty"`
	Code    string  `json:"code"`
	Message string  `json:"message,omitempty"`
}

// ControlRequest asks the remote to change the state of one device.
type ControlRequest struct {
	EntityID   string         `json:"entityId"`
	EntityType string         `json:"entityType"`
	Parameters map[string]any `json:"parameters"`
}

// ControlRequests is the body of a mutation call.
type ControlRequests struct {
	ControlRequests []ControlRequest `json:"controlRequests"`
}

// ControlResponse is the per-device result of a mutation call.
type ControlResponse struct {
	EntityID string `json:"entityId"`
	Code     string `json:"code"`
}

// ControlResponses is the body returned by a mutation call.
type ControlResponses struct {
	ControlResponses []ControlResponse `json:"controlResponses"`
	Errors           []EntityError     `json:"errors"`
}

// MediaDevice identifies a media-capable device for player endpoints.
type MediaDevice struct {
	SerialNumber string
	Type         string
	Name         string
}

// PlaybackState is the player's transport state.
type PlaybackState string

// Playback states reported by the player endpoint.
const (
	PlaybackPlaying PlaybackState = "PLAYING"
	PlaybackPaused  PlaybackState = "PAUSED"
	PlaybackIdle    PlaybackState = "IDLE"
)

// PlayerInfo is the current playback state of a media device.
type PlayerInfo struct {
	State    PlaybackState
	Volume   int
	Muted    bool
	Title    string
	Artist   string
	Provider string
}

// playerInfoResponse is the wire form of the player endpoint.
type playerInfoResponse struct {
	PlayerInfo *struct {
		State  string `json:"state"`
		Volume *struct {
			Volume int  `json:"volume"`
			Muted  bool `json:"muted"`
		} `json:"volume"`
		InfoText *struct {
			Title    string `json:"title"`
			SubText1 string `json:"subText1"`
		} `json:"infoText"`
		Provider *struct {
			ProviderName string `json:"providerName"`
		} `json:"provider"`
	} `json:"playerInfo"`
}

// PlayerCommandType names a player command.
type PlayerCommandType string

// Player commands understood by the command endpoint.
const (
	CommandPlay     PlayerCommandType = "PlayCommand"
	CommandPause    PlayerCommandType = "PauseCommand"
	CommandNext     PlayerCommandType = "NextCommand"
	CommandPrevious PlayerCommandType = "PreviousCommand"
	CommandVolume   PlayerCommandType = "VolumeLevelCommand"
	CommandMute     PlayerCommandType = "MuteCommand"
)

// PlayerCommand is the body of a player command call.
type PlayerCommand struct {
	Type        PlayerCommandType `json:"type"`
	VolumeLevel *int              `json:"volumeLevel,omitempty"`
	Mute        *bool             `json:"mute,omitempty"`
}
