package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestFramerCoalescedMessages(t *testing.T) {
	f := NewFramer(0)
	f.Push([]byte(`{"restart":true}{"start":true}` + "\n"))

	first, err := f.Next()
	if err != nil || DecodeHandshake(first) != IntentRestart {
		t.Fatalf("expected restart first, got %s (%v)", first, err)
	}
	second, err := f.Next()
	if err != nil || DecodeHandshake(second) != IntentStart {
		t.Fatalf("expected start second, got %s (%v)", second, err)
	}
	third, err := f.Next()
	if err != nil || third != nil {
		t.Fatalf("expected nothing left, got %s (%v)", third, err)
	}
	if f.Pending() != 0 {
		t.Errorf("expected empty buffer, %d bytes pending", f.Pending())
	}
}

func TestFramerSplitMessage(t *testing.T) {
	f := NewFramer(0)
	f.Push([]byte(`{"1":[0.5,0,`))
	msg, err := f.Next()
	if err != nil || msg != nil {
		t.Fatalf("expected incomplete message, got %s (%v)", msg, err)
	}
	f.Push([]byte(`0,0,1]}`))
	msg, err = f.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reply, err := DecodeStepReply(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Actions[1].Fire() != 1 {
		t.Errorf("expected fire intent 1, got %v", reply.Actions[1])
	}
}

func TestFramerMalformedWithNothingToResync(t *testing.T) {
	f := NewFramer(0)
	f.Push([]byte(`{"start" true}`))
	_, err := f.Next()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if f.Pending() != 0 {
		t.Errorf("malformed bytes should be discarded")
	}

	f.Push([]byte(`{"end":true}`))
	msg, err := f.Next()
	if err != nil || DecodeHandshake(msg) != IntentEnd {
		t.Fatalf("framer should recover after a malformed message, got %s (%v)", msg, err)
	}
}

func TestFramerKeepsMessagesAfterGarbage(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"stray bracket", `]{"end":true}`},
		{"bad object", `{"1":[0,0,x]}{"end":true}`},
		{"bad nested object", `{"1":{"a":x}}{"end":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFramer(0)
			f.Push([]byte(`{"1":[0,0,0,0,0]}` + tc.input))

			first, err := f.Next()
			if err != nil || string(first) != `{"1":[0,0,0,0,0]}` {
				t.Fatalf("first message = %s (%v)", first, err)
			}
			if _, err := f.Next(); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed for the garbage, got %v", err)
			}
			msg, err := f.Next()
			if err != nil || DecodeHandshake(msg) != IntentEnd {
				t.Fatalf("end should survive the garbage, got %s (%v)", msg, err)
			}
			if f.Pending() != 0 {
				t.Errorf("expected an empty buffer, %d bytes left", f.Pending())
			}
		})
	}
}

func TestFramerOversizedPartial(t *testing.T) {
	f := NewFramer(16)
	f.Push([]byte(`{"state":[` + strings.Repeat("1,", 20)))
	_, err := f.Next()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for oversized partial, got %v", err)
	}
}
