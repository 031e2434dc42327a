package session

// DeviceState is the authoritative lifecycle state of a device session.
// Transitions are sequential; concurrent connect or init calls observe the
// busy states and return without starting a second attempt.
type DeviceState int

const (
	StateIdle DeviceState = iota
	StateInitializing
	StateInitialized
	StateStartPairing
	StatePairingStarted
	StateFinishPairing
	StateFinishedPairing
	StateConnecting
	StateConnected
	StateDisconnected
	StateTimeout
	StateError
	StateAuthError
	StatePairingError
)

var stateNames = map[DeviceState]string{
	StateIdle:            "IDLE",
	StateInitializing:    "INITIALIZING",
	StateInitialized:     "INITIALIZED",
	StateStartPairing:    "START_PAIRING",
	StatePairingStarted:  "PAIRING_STARTED",
	StateFinishPairing:   "FINISH_PAIRING",
	StateFinishedPairing: "FINISHED_PAIRING",
	StateConnecting:      "CONNECTING",
	StateConnected:       "CONNECTED",
	StateDisconnected:    "DISCONNECTED",
	StateTimeout:         "TIMEOUT",
	StateError:           "ERROR",
	StateAuthError:       "AUTH_ERROR",
	StatePairingError:    "PAIRING_ERROR",
}

func (s DeviceState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// busy reports whether an init or connect attempt loop is in flight.
func (s DeviceState) busy() bool {
	return s == StateInitializing || s == StateConnecting
}

// needsPairing reports whether the state indicates broken credentials.
func (s DeviceState) needsPairing() bool {
	return s == StateAuthError || s == StatePairingError
}
