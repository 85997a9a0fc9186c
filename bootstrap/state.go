package bootstrap

type State int32

const (
	CREATED State = iota
	STARTING
	RUNNING
	DRAINING
	STOPPED
)

var STATE_NAMES = []string{"Created", "Starting", "Running", "Draining", "Stopped"}

func (s State) String() string {
	if s < CREATED || int(s) >= len(STATE_NAMES) {
		return "Unknown"
	}

	return STATE_NAMES[s]
}
