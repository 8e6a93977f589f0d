package conn_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mickamy/redis-lite/conn"
	"github.com/mickamy/redis-lite/redisserver"
	"github.com/mickamy/redis-lite/resp"
	"github.com/mickamy/redis-lite/role"
)

// client wraps one end of an in-process pipe with the request/reply helpers
// a real client would use over TCP.
type client struct {
	nc net.Conn
	br *bufio.Reader
}

func (c *client) call(t *testing.T, argv ...string) resp.Value {
	t.Helper()
	if _, err := c.nc.Write(resp.EncodeArgs(argv)); err != nil {
		t.Fatalf("write %v: %v", argv, err)
	}
	v, err := resp.DecodeReply(c.br)
	if err != nil {
		t.Fatalf("read reply to %v: %v", argv, err)
	}
	return v
}

func newServedPipe(t *testing.T) *client {
	t.Helper()
	s := redisserver.New("", "", "", "", "0123456789012345678901234567890123456789", conn.Serve)

	serverSide, clientSide := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = conn.Serve(ctx, serverSide, role.Client, s)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		clientSide.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("conn.Serve did not return after the pipe closed")
		}
	})

	return &client{nc: clientSide, br: bufio.NewReader(clientSide)}
}

func TestServePingAndSetGet(t *testing.T) {
	t.Parallel()
	c := newServedPipe(t)

	v := c.call(t, "PING")
	if v.Str != "PONG" {
		t.Fatalf("PING: got %+v", v)
	}

	v = c.call(t, "SET", "k", "v")
	if v.Str != "OK" {
		t.Fatalf("SET: got %+v", v)
	}

	v = c.call(t, "GET", "k")
	if string(v.Bulk) != "v" {
		t.Fatalf("GET: got %+v", v)
	}
}

func TestServeMultiExec(t *testing.T) {
	t.Parallel()
	c := newServedPipe(t)

	if v := c.call(t, "MULTI"); v.Str != "OK" {
		t.Fatalf("MULTI: got %+v", v)
	}
	if v := c.call(t, "SET", "k", "v"); v.Str != "QUEUED" {
		t.Fatalf("SET under MULTI: got %+v", v)
	}
	if v := c.call(t, "INCR", "n"); v.Str != "QUEUED" {
		t.Fatalf("INCR under MULTI: got %+v", v)
	}

	v := c.call(t, "EXEC")
	if v.Kind != resp.KindArray || len(v.Array) != 2 {
		t.Fatalf("EXEC: got %+v", v)
	}
	if v.Array[0].Str != "OK" {
		t.Fatalf("EXEC[0]: got %+v", v.Array[0])
	}
	if v.Array[1].Int != 1 {
		t.Fatalf("EXEC[1]: got %+v", v.Array[1])
	}
}

func TestServePsyncMarksReplicaAndSendsSnapshot(t *testing.T) {
	t.Parallel()
	c := newServedPipe(t)

	v := c.call(t, "PSYNC", "?", "-1")
	if v.Kind != resp.KindSimpleString || !strings.HasPrefix(v.Str, "FULLRESYNC ") {
		t.Fatalf("PSYNC reply: got %+v", v)
	}

	line, err := c.br.ReadString('\n')
	if err != nil || len(line) < 4 || line[0] != '$' {
		t.Fatalf("reading snapshot header: line=%q err=%v", line, err)
	}
	n, err := strconv.Atoi(line[1 : len(line)-2])
	if err != nil {
		t.Fatalf("parsing snapshot length: %v", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.br, buf); err != nil {
		t.Fatalf("reading snapshot body: %v", err)
	}
}

func TestServeUnknownCommandClosesConnection(t *testing.T) {
	t.Parallel()
	c := newServedPipe(t)

	if _, err := c.nc.Write(resp.EncodeArgs([]string{"BOGUS"})); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The server closes the connection on an unrecognized command rather
	// than replying, so the next read must observe EOF or a closed pipe.
	_, err := resp.DecodeReply(c.br)
	if err == nil {
		t.Fatal("expected the connection to be closed after an unknown command")
	}
}
