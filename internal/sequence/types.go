package sequence

import "time"

// Sensor identifies one of the two presence sensors, using the wire
// encoding from the SENSOR_STATE_CHANGE/ACTUATOR_MOVEMENT payloads.
type Sensor byte

// The two sensors the MCU reports edges for.
const (
	SensorCover     Sensor = 0
	SensorContainer Sensor = 1
)

// Actuator identifies one of the two motorized bays.
type Actuator byte

// The two actuators the controller can drive.
const (
	ActuatorCover     Actuator = 0
	ActuatorContainer Actuator = 1
)

// ActuatorAction is a movement an actuator can perform.
type ActuatorAction byte

// The three actuator actions defined by the wire protocol.
const (
	ActuatorStore ActuatorAction = 0
	ActuatorOpen  ActuatorAction = 1
	ActuatorClose ActuatorAction = 2
)

// LightPosition identifies which light a LIGHT_MANAGEMENT command targets.
type LightPosition byte

// The two light positions.
const (
	LightContainer LightPosition = 0
	LightCover     LightPosition = 1
)

// LightColor is a color a light can be set to.
type LightColor byte

// The four light colors.
const (
	ColorWhite LightColor = 0
	ColorRed   LightColor = 1
	ColorGreen LightColor = 2
	ColorOff   LightColor = 3
)

// LightMode is the blink behavior of a light.
type LightMode byte

// The two light modes.
const (
	ModeSteady LightMode = 0
	ModeBlink  LightMode = 1
)

// DoorAction is a door-solenoid command.
type DoorAction byte

// The two door actions.
const (
	DoorBlock   DoorAction = 0
	DoorUnblock DoorAction = 1
)

// lightPositionFor maps a sensor to the light position co-located with it.
func lightPositionFor(s Sensor) LightPosition {
	if s == SensorContainer {
		return LightContainer
	}
	return LightCover
}

// State is the engine's persistent per-cycle and mode state: the two mode
// gates, tracked sensor readings, and the per-sequence completion flags
// with their timestamps. A State is a plain value; Snapshot returns a copy
// so callers can inspect it without racing the engine's own goroutine.
type State struct {
	DeviceInactive bool
	SecureMode     bool

	SensorPresent map[Sensor]bool

	Seq1LightsActive bool
	Seq1ActivatedAt  time.Time

	Seq2Completed   bool
	Seq2CompletedAt time.Time

	Seq3Completed   bool
	Seq3CompletedAt time.Time

	Seq4InProgress bool

	WaitingForQR bool
}

func newState() State {
	return State{SensorPresent: map[Sensor]bool{}}
}

func (s State) clone() State {
	out := s
	out.SensorPresent = make(map[Sensor]bool, len(s.SensorPresent))
	for k, v := range s.SensorPresent {
		out.SensorPresent[k] = v
	}
	return out
}

// Gated reports whether either mode gate currently suppresses event-driven
// sequence starts.
func (s State) Gated() bool {
	return s.DeviceInactive || s.SecureMode
}
