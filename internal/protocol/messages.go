package protocol

// Intent is the control request carried by a handshake message.
type Intent int

const (
	IntentNone Intent = iota
	IntentStart
	IntentEnd
	IntentRestart
)

func (i Intent) String() string {
	switch i {
	case IntentStart:
		return "start"
	case IntentEnd:
		return "end"
	case IntentRestart:
		return "restart"
	default:
		return "none"
	}
}

// HandshakeRequest is sent by the controller while no episode is running.
type HandshakeRequest struct {
	Start   bool `json:"start,omitempty" jsonschema:"description=Begin a new episode"`
	End     bool `json:"end,omitempty" jsonschema:"description=Terminate the service"`
	Restart bool `json:"restart,omitempty" jsonschema:"description=Reset the arena without starting"`
}

// HandshakeAck acknowledges a handshake request. Exactly one field is set.
type HandshakeAck struct {
	Starting   bool `json:"starting,omitempty"`
	Ending     bool `json:"ending,omitempty"`
	Restarting bool `json:"restarting,omitempty"`
}

// AckFor returns the acknowledgement for an accepted intent.
func AckFor(i Intent) (HandshakeAck, bool) {
	switch i {
	case IntentStart:
		return HandshakeAck{Starting: true}, true
	case IntentEnd:
		return HandshakeAck{Ending: true}, true
	case IntentRestart:
		return HandshakeAck{Restarting: true}, true
	default:
		return HandshakeAck{}, false
	}
}

// StepMessage is sent by the service on every exchange tick. A terminal
// message carries Done and Winner alongside the final state.
type StepMessage struct {
	State  []float64 `json:"state,omitempty" jsonschema:"minItems=52,maxItems=52,description=Observation vector"`
	Done   bool      `json:"done,omitempty" jsonschema:"description=Episode terminated"`
	Winner *int      `json:"winner,omitempty" jsonschema:"description=Winning team index or -1"`
}

// Terminal reports whether the message ends the episode.
func (m StepMessage) Terminal() bool {
	return m.Done
}

// StepReply is the decoded controller answer to a non-terminal step message.
type StepReply struct {
	Restart bool
	Actions map[int]Action
	// Rejected counts entity entries that were present but unusable.
	Rejected int
}

// ActionPayload documents the controller reply shape for schema generation:
// an object keyed by stringified entity id, or {"restart": true}.
type ActionPayload map[string]any
