package domain

import "time"

// Mode is the system-wide operational posture.
type Mode string

const (
	ModeNormal Mode = "NORMAL"
	ModeLean   Mode = "LEAN"
	ModeSurge  Mode = "SURGE"
	ModeSafe   Mode = "SAFE"
)

// L3ReserveFraction is the hard compute reserve dedicated to L3
// processing regardless of mode.
const L3ReserveFraction = 0.25

// SystemState is the singleton row recording the current operational
// mode.
type SystemState struct {
	Mode        Mode
	EnteredAt   time.Time
	TriggerReason string
}
