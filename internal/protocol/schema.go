package protocol

import (
	"github.com/invopop/jsonschema"
)

// Schemas reflects the JSON Schema of every wire message, keyed by message name.
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}

	build := func(v any, title, description string) *jsonschema.Schema {
		schema := reflector.Reflect(v)
		schema.Title = title
		schema.Description = description
		return schema
	}

	return map[string]*jsonschema.Schema{
		"handshake_request": build(new(HandshakeRequest), "Handshake request",
			"Sent by the controller while no episode is running"),
		"handshake_ack": build(new(HandshakeAck), "Handshake acknowledgement",
			"Reply to an accepted handshake request"),
		"step": build(new(StepMessage), "Step message",
			"Observation sent every exchange tick; done and winner mark the terminal message"),
		"action": build(new(ActionPayload), "Action payload",
			"Controller reply keyed by entity id with five numbers each, or restart"),
	}
}
