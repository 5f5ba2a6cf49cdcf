package hardware

import (
	"fmt"
	"strings"
)

// Scale factors applied before integer formatting.
const (
	speedScale    = 100000
	positionScale = 100
)

// Replies from the controller, matched by prefix.
const (
	ReplyOffline = "OFFLINE"
	ReplyOnline  = "ONLINE"
)

// Bare commands.
const (
	CmdEngage  = "ENGAGE\n"
	CmdRelease = "RELEASE\n"
)

// EncodeAzimuthSpeed frames an azimuth rate in deg/s. Like every encoder here
// it scales the value and truncates toward zero.
func EncodeAzimuthSpeed(dps float64) string {
	return fmt.Sprintf("AZS%08d\n", int64(dps*speedScale))
}

// EncodeAltitudeSpeed frames an altitude rate in deg/s.
func EncodeAltitudeSpeed(dps float64) string {
	return fmt.Sprintf("ALS%08d\n", int64(dps*speedScale))
}

// EncodeTargetAzimuth frames the azimuth the mount should move toward.
func EncodeTargetAzimuth(deg float64) string {
	return fmt.Sprintf("AZ%05d\n", int64(deg*positionScale))
}

// EncodeTargetAltitude frames the altitude the mount should move toward.
func EncodeTargetAltitude(deg float64) string {
	return fmt.Sprintf("AL%05d\n", int64(deg*positionScale))
}

// EncodeAzimuth tells the mount its current absolute azimuth.
func EncodeAzimuth(deg float64) string {
	return fmt.Sprintf("AZP%05d\n", int64(deg*positionScale))
}

// EncodeAltitude tells the mount its current absolute altitude.
func EncodeAltitude(deg float64) string {
	return fmt.Sprintf("ALP%05d\n", int64(deg*positionScale))
}

// State is the link's view of the controller.
type State int

const (
	// StateUnknown is the state before the controller has announced itself.
	StateUnknown State = iota
	// StateIdle means the controller is up with motors unpowered.
	StateIdle
	// StateOnline means motors are powered.
	StateOnline
)

// States lists every state, for metric labels.
var States = []State{StateUnknown, StateIdle, StateOnline}

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateIdle:
		return "idle"
	case StateOnline:
		return "online"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// next applies the transition table. ok is false for a reply the current
// state does not accept.
func next(s State, line string) (State, bool) {
	switch s {
	case StateUnknown:
		if strings.HasPrefix(line, ReplyOffline) {
			return StateIdle, true
		}
	case StateIdle:
		if strings.HasPrefix(line, ReplyOnline) {
			return StateOnline, true
		}
	case StateOnline:
		if strings.HasPrefix(line, ReplyOffline) {
			return StateIdle, true
		}
	}
	return s, false
}
