package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed marks inbound bytes that are not a usable message.
var ErrMalformed = errors.New("malformed message")

// EncodeAck serializes a handshake acknowledgement.
func EncodeAck(ack HandshakeAck) ([]byte, error) {
	return json.Marshal(ack)
}

// EncodeState serializes a non-terminal step message.
func EncodeState(obs Observation) ([]byte, error) {
	return json.Marshal(StepMessage{State: obs.Slice()})
}

// EncodeTerminal serializes the done message with the final observation.
func EncodeTerminal(obs Observation, winner int) ([]byte, error) {
	w := winner
	return json.Marshal(StepMessage{State: obs.Slice(), Done: true, Winner: &w})
}

// EncodeActions serializes a controller reply keyed by stringified entity id.
func EncodeActions(actions map[int]Action) ([]byte, error) {
	payload := make(map[string][]float64, len(actions))
	for id, a := range actions {
		payload[strconv.Itoa(id)] = a[:]
	}
	return json.Marshal(payload)
}

// EncodeHandshake serializes a controller handshake request.
func EncodeHandshake(i Intent) ([]byte, error) {
	switch i {
	case IntentStart:
		return json.Marshal(HandshakeRequest{Start: true})
	case IntentEnd:
		return json.Marshal(HandshakeRequest{End: true})
	case IntentRestart:
		return json.Marshal(HandshakeRequest{Restart: true})
	default:
		return nil, fmt.Errorf("cannot encode handshake intent %d", i)
	}
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fields, nil
}

func truthy(raw json.RawMessage) bool {
	if raw == nil {
		return false
	}
	var b bool
	return json.Unmarshal(raw, &b) == nil && b
}

// DecodeHandshake returns the intent of a handshake message. Keys are
// examined in the order start, end, restart and the first one set to true
// wins. Anything else, including malformed input, yields IntentNone.
func DecodeHandshake(raw []byte) Intent {
	fields, err := decodeObject(raw)
	if err != nil {
		return IntentNone
	}
	switch {
	case truthy(fields["start"]):
		return IntentStart
	case truthy(fields["end"]):
		return IntentEnd
	case truthy(fields["restart"]):
		return IntentRestart
	default:
		return IntentNone
	}
}

// DecodeStepReply parses the controller's answer to an observation.
// Entries whose key is not an integer are ignored; entries whose value is not
// an array of exactly ActionLength numbers are counted in Rejected.
func DecodeStepReply(raw []byte) (StepReply, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return StepReply{}, err
	}
	if truthy(fields["restart"]) {
		return StepReply{Restart: true}, nil
	}

	reply := StepReply{Actions: make(map[int]Action, len(fields))}
	for key, value := range fields {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		var values []float64
		if err := json.Unmarshal(value, &values); err != nil || len(values) != ActionLength {
			reply.Rejected++
			continue
		}
		var a Action
		copy(a[:], values)
		reply.Actions[id] = a
	}
	return reply, nil
}

// DecodeStep parses a service step message as seen by a controller.
func DecodeStep(raw []byte) (StepMessage, error) {
	var msg StepMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return StepMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Done {
		if msg.Winner == nil {
			return StepMessage{}, fmt.Errorf("%w: done without winner", ErrMalformed)
		}
		return msg, nil
	}
	if len(msg.State) != ObservationLength {
		return StepMessage{}, fmt.Errorf("%w: state has %d entries, want %d", ErrMalformed, len(msg.State), ObservationLength)
	}
	return msg, nil
}

// DecodeAck parses a handshake acknowledgement.
func DecodeAck(raw []byte) (HandshakeAck, error) {
	var ack HandshakeAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return HandshakeAck{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ack, nil
}

// ObservationFrom copies a decoded state vector into an Observation.
func ObservationFrom(state []float64) (Observation, error) {
	var o Observation
	if len(state) != ObservationLength {
		return o, fmt.Errorf("%w: state has %d entries, want %d", ErrMalformed, len(state), ObservationLength)
	}
	copy(o[:], state)
	return o, nil
}
