package hlp

import (
	"encoding/json"
	"fmt"
)

// ChannelIntensity sets one output channel's level.
type ChannelIntensity struct {
	// ChannelID indexes the fixture's output channel (0-based).
	ChannelID int `json:"channelId"`

	// Intensity is the target level in percent (0-100).
	Intensity float64 `json:"intensity"`

	// RampTime is the fade duration in seconds; 0 applies immediately.
	RampTime float64 `json:"rampTime"`
}

// IntensityPayload is the body of a SET_INTENSITY command.
type IntensityPayload struct {
	Channels []ChannelIntensity `json:"channels"`
}

// SpectrumPayload is the body of a SET_SPECTRUM command. Keys are
// waveband names (e.g. "red", "blue", "far_red"), values are percent.
type SpectrumPayload struct {
	Spectrum map[string]float64 `json:"spectrum"`
	RampTime float64            `json:"rampTime,omitempty"`
}

// ScheduleEntry is one step in a fixture's daily light schedule.
type ScheduleEntry struct {
	// Time of day in "HH:MM" 24-hour form, fixture-local.
	Time string `json:"time"`

	// Intensity in percent applied at that time.
	Intensity float64 `json:"intensity"`

	// Spectrum optionally retunes wavebands at that time.
	Spectrum map[string]float64 `json:"spectrum,omitempty"`
}

// SchedulePayload is the body of a SET_SCHEDULE command.
type SchedulePayload struct {
	Entries []ScheduleEntry `json:"entries"`
}

// GroupPayload is the body of a SET_GROUP command, assigning the fixture
// to a control group.
type GroupPayload struct {
	GroupID string   `json:"groupId"`
	Members []string `json:"members,omitempty"`
}

// DeviceInfoPayload is the body of a DEVICE_INFO_RESPONSE.
type DeviceInfoPayload struct {
	Manufacturer    string `json:"manufacturer"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmwareVersion"`
	Channels        int    `json:"channels"`
}

// StatusPayload is the body of a STATUS_RESPONSE.
type StatusPayload struct {
	Intensities map[string]float64 `json:"intensities"`
	Temperature float64            `json:"temperature"`
	PowerWatts  float64            `json:"powerWatts"`
	Uptime      int64              `json:"uptime"`
	Faults      []string           `json:"faults,omitempty"`
}

// NewSetIntensity builds a SET_INTENSITY message for a fixture.
func NewSetIntensity(deviceID string, seq uint32, channels []ChannelIntensity) (Message, error) {
	payload, err := json.Marshal(IntensityPayload{Channels: channels})
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return NewMessage(TypeSetIntensity, deviceID, seq, payload), nil
}

// NewSetSpectrum builds a SET_SPECTRUM message for a fixture.
func NewSetSpectrum(deviceID string, seq uint32, spectrum map[string]float64, rampTime float64) (Message, error) {
	payload, err := json.Marshal(SpectrumPayload{Spectrum: spectrum, RampTime: rampTime})
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return NewMessage(TypeSetSpectrum, deviceID, seq, payload), nil
}

// NewSetSchedule builds a SET_SCHEDULE message for a fixture.
func NewSetSchedule(deviceID string, seq uint32, entries []ScheduleEntry) (Message, error) {
	payload, err := json.Marshal(SchedulePayload{Entries: entries})
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return NewMessage(TypeSetSchedule, deviceID, seq, payload), nil
}

// NewSetGroup builds a SET_GROUP message for a fixture.
func NewSetGroup(deviceID string, seq uint32, groupID string, members []string) (Message, error) {
	payload, err := json.Marshal(GroupPayload{GroupID: groupID, Members: members})
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return NewMessage(TypeSetGroup, deviceID, seq, payload), nil
}

// NewStatusRequest builds a parameterless STATUS_REQUEST message.
func NewStatusRequest(deviceID string, seq uint32) Message {
	return NewMessage(TypeStatusRequest, deviceID, seq, nil)
}

// NewDiscoveryRequest builds a broadcast DISCOVERY_REQUEST message.
func NewDiscoveryRequest(seq uint32) Message {
	return NewMessage(TypeDiscoveryRequest, "", seq, nil)
}

// NewAck builds an ACK for a received message's sequence number.
func NewAck(deviceID string, seq uint32) Message {
	return NewMessage(TypeAck, deviceID, seq, nil)
}

// NewNack builds a NACK for a received message's sequence number.
// The reason travels in the payload so operators can see why a command
// was rejected.
func NewNack(deviceID string, seq uint32, reason string) (Message, error) {
	payload, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return NewMessage(TypeNack, deviceID, seq, payload), nil
}

// ParseIntensity unmarshals a SET_INTENSITY payload.
func ParseIntensity(m Message) (IntensityPayload, error) {
	var p IntensityPayload
	if m.Type != TypeSetIntensity {
		return p, fmt.Errorf("%w: message type is %s", ErrDecode, m.Type)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return p, nil
}

// ParseStatus unmarshals a STATUS_RESPONSE payload.
func ParseStatus(m Message) (StatusPayload, error) {
	var p StatusPayload
	if m.Type != TypeStatusResponse {
		return p, fmt.Errorf("%w: message type is %s", ErrDecode, m.Type)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return p, nil
}
