package replication_test

import (
	"bufio"
	"net"
	"testing"

	"github.com/mickamy/redis-lite/replication"
	"github.com/mickamy/redis-lite/resp"
)

// fakePrimary replies to the four handshake steps in order, then emits a
// snapshot payload with no trailing CRLF followed by a sentinel simple
// string, so the test can confirm Handshake consumes exactly the snapshot
// bytes and leaves the sentinel for the next read.
func fakePrimary(t *testing.T, nc net.Conn, payload []byte) {
	t.Helper()
	br := bufio.NewReader(nc)
	replies := []string{
		"+PONG\r\n",
		"+OK\r\n",
		"+OK\r\n",
		"+FULLRESYNC abc123 0\r\n",
	}
	for _, reply := range replies {
		if _, err := resp.DecodeArgs(br); err != nil {
			t.Errorf("fake primary: decode request: %v", err)
			return
		}
		if _, err := nc.Write([]byte(reply)); err != nil {
			t.Errorf("fake primary: write reply: %v", err)
			return
		}
	}

	header := "$" + itoa(len(payload)) + "\r\n"
	if _, err := nc.Write([]byte(header)); err != nil {
		t.Errorf("fake primary: write snapshot header: %v", err)
		return
	}
	if _, err := nc.Write(payload); err != nil {
		t.Errorf("fake primary: write snapshot body: %v", err)
		return
	}
	if _, err := nc.Write([]byte("+SENTINEL\r\n")); err != nil {
		t.Errorf("fake primary: write sentinel: %v", err)
		return
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func TestHandshakeConsumesExactlyTheSnapshot(t *testing.T) {
	t.Parallel()
	primarySide, replicaSide := net.Pipe()
	t.Cleanup(func() {
		primarySide.Close()
		replicaSide.Close()
	})

	payload := []byte("REDIS0011\xff00000000")
	done := make(chan struct{})
	go func() {
		fakePrimary(t, primarySide, payload)
		close(done)
	}()

	br := bufio.NewReader(replicaSide)
	if err := replication.Handshake(br, replicaSide, "6380"); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	<-done

	v, err := resp.DecodeReply(br)
	if err != nil {
		t.Fatalf("reading the sentinel after Handshake: %v", err)
	}
	if v.Str != "SENTINEL" {
		t.Fatalf("expected the sentinel to survive untouched, got %+v", v)
	}
}
