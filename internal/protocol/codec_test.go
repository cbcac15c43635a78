package protocol

import (
	"errors"
	"math"
	"testing"
)

func TestObservationRoundTrip(t *testing.T) {
	obs := Blank()
	obs[0] = -0.75
	obs[1] = 0.123456789
	obs[2] = 1
	obs[4] = -0.70710678
	obs[6] = 0.5
	obs[26] = 0.999999
	obs[51] = 1e-7

	b, err := EncodeState(obs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := DecodeStep(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Done {
		t.Fatalf("non-terminal message decoded as done")
	}
	if len(msg.State) != ObservationLength {
		t.Fatalf("expected %d entries, got %d", ObservationLength, len(msg.State))
	}
	for i, v := range msg.State {
		if math.Abs(v-obs[i]) > 1e-6 {
			t.Errorf("slot %d: expected %v, got %v", i, obs[i], v)
		}
	}
}

func TestTerminalCarriesWinner(t *testing.T) {
	for _, winner := range []int{-1, 0, 1} {
		b, err := EncodeTerminal(Blank(), winner)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		msg, err := DecodeStep(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !msg.Done || msg.Winner == nil || *msg.Winner != winner {
			t.Errorf("expected done with winner %d, got %+v", winner, msg)
		}
	}
}

func TestDecodeStepRejectsShortState(t *testing.T) {
	_, err := DecodeStep([]byte(`{"state":[1,2,3]}`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeHandshake(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Intent
	}{
		{"start", `{"start":true}`, IntentStart},
		{"end", `{"end":true}`, IntentEnd},
		{"restart", `{"restart":true}`, IntentRestart},
		{"false value", `{"start":false}`, IntentNone},
		{"non bool", `{"start":1}`, IntentNone},
		{"start wins over end", `{"end":true,"start":true}`, IntentStart},
		{"unknown key", `{"hello":true}`, IntentNone},
		{"array", `[1,2]`, IntentNone},
		{"garbage", `{not json`, IntentNone},
		{"empty", ``, IntentNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DecodeHandshake([]byte(tc.in)); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestDecodeStepReply(t *testing.T) {
	reply, err := DecodeStepReply([]byte(`{"1":[0.5,-0.5,1,0,0.9],"2":[1,2],"x":[1,1,1,1,1]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Restart {
		t.Fatalf("unexpected restart")
	}
	a, ok := reply.Actions[1]
	if !ok {
		t.Fatalf("expected action for entity 1")
	}
	if a.MoveX() != 0.5 || a.MoveY() != -0.5 || a.AimX() != 1 || a.Fire() != 0.9 {
		t.Errorf("unexpected action %v", a)
	}
	if _, ok := reply.Actions[2]; ok {
		t.Errorf("short tuple for entity 2 should be rejected")
	}
	if reply.Rejected != 1 {
		t.Errorf("expected 1 rejected entry, got %d", reply.Rejected)
	}
}

func TestDecodeStepReplyRejectsWrongLength(t *testing.T) {
	reply, err := DecodeStepReply([]byte(`{"1":[1,0,0,0,0,1],"2":[0,1,0,0],"3":[0,0,1,0,0]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := reply.Actions[1]; ok {
		t.Errorf("six values must not be truncated into an action")
	}
	if _, ok := reply.Actions[2]; ok {
		t.Errorf("four values must not become an action")
	}
	if len(reply.Actions) != 1 || reply.Rejected != 2 {
		t.Errorf("expected 1 action and 2 rejected, got %d and %d", len(reply.Actions), reply.Rejected)
	}
}

func TestDecodeStepReplyRestart(t *testing.T) {
	reply, err := DecodeStepReply([]byte(`{"restart":true,"1":[0,0,0,0,0]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reply.Restart {
		t.Fatalf("expected restart")
	}
}

func TestDecodeStepReplyMalformed(t *testing.T) {
	if _, err := DecodeStepReply([]byte(`[0,0,0,0,0]`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestEncodeActionsRoundTrip(t *testing.T) {
	in := map[int]Action{1: {1, 0, 0, 1, 1}, 2: {0, 0, -1, 0, 0}}
	b, err := EncodeActions(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	reply, err := DecodeStepReply(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for id, want := range in {
		if got := reply.Actions[id]; got != want {
			t.Errorf("entity %d: expected %v, got %v", id, want, got)
		}
	}
}

func TestObservationAccessors(t *testing.T) {
	obs := Blank()
	p := obs.Projectile(1, 4)
	p[0] = 3
	if obs[ObservationLength-ProjectileFields] != 3 {
		t.Errorf("last projectile slot of entity 1 should alias the tail of the vector")
	}
	e := obs.Entity(1)
	if len(e) != EntityStride || &e[0] != &obs[EntityStride] {
		t.Errorf("entity slice misaligned")
	}
}

func TestSchemasCoverEveryMessage(t *testing.T) {
	schemas := Schemas()
	for _, name := range []string{"handshake_request", "handshake_ack", "step", "action"} {
		s, ok := schemas[name]
		if !ok || s == nil {
			t.Errorf("missing schema %q", name)
			continue
		}
		if s.Title == "" {
			t.Errorf("schema %q has no title", name)
		}
	}
}
