package network

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func acceptOne(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	type result struct {
		c   *Conn
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := l.Accept(context.Background(), 16)
		done <- result{c, err}
	}()

	client, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	r := <-done
	if r.err != nil {
		t.Fatalf("Accept: %v", r.err)
	}
	t.Cleanup(func() {
		client.Close()
		r.c.Close()
	})

	if _, err := l.Accept(context.Background(), 16); !errors.Is(err, ErrNotListening) {
		t.Errorf("Second Accept should fail with ErrNotListening, got %v", err)
	}
	return r.c, client
}

func TestListen_BindFailure(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if _, err := Listen(l.Addr().String()); err == nil {
		t.Fatal("Expected bind failure on a port in use")
	}
}

func TestConn_SendReceive(t *testing.T) {
	c, client := acceptOne(t)

	if err := c.Send([]byte(`{"starting":true}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 64)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	if err != nil || string(buf[:n]) != `{"starting":true}` {
		t.Fatalf("Client read %q, %v", buf[:n], err)
	}

	// The receive buffer is 16 bytes; longer messages arrive over several calls.
	client.Write([]byte(`{"start":true,"padding":"xxxxxxxx"}`))
	got, err := c.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(got) == 0 || len(got) > 16 {
		t.Errorf("Receive returned %d bytes, want 1..16", len(got))
	}
}

func TestConn_ReceiveTimeout(t *testing.T) {
	c, _ := acceptOne(t)
	c.SetReceiveTimeout(20 * time.Millisecond)
	if _, err := c.Receive(); err == nil {
		t.Fatal("Expected timeout error")
	}
}

func TestConn_PeerClosed(t *testing.T) {
	c, client := acceptOne(t)
	client.Close()
	if _, err := c.Receive(); err == nil {
		t.Fatal("Expected an error after the peer closed")
	}
}

func TestConn_CloseIdempotent(t *testing.T) {
	c, _ := acceptOne(t)
	first := c.Close()
	if err := c.Close(); err != first {
		t.Errorf("Second Close returned %v, want %v", err, first)
	}
}

func TestListener_AcceptCancelled(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := l.Accept(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
