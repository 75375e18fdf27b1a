package hamlaunch

//go:generate stringer -type=State -output=enums_string.go

// State describes where the supervised process is in its lifecycle.
type State int

// Supervisor states
const (
	Idle State = iota
	Starting
	Running
	Stopping
	Exited
)

// Active returns true for states in which a process handle is held.
func (s State) Active() bool {
	return s == Starting || s == Running || s == Stopping
}

// MarshalText lets State appear by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
