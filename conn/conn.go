// Package conn implements the per-connection framed I/O loop: decode one
// argument vector, dispatch it through the command execution protocol, and
// write the response. It is where command, txn, redisserver, and
// replication converge — none of those packages import this one.
package conn

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mickamy/redis-lite/command"
	"github.com/mickamy/redis-lite/redisserver"
	"github.com/mickamy/redis-lite/replication"
	"github.com/mickamy/redis-lite/resp"
	"github.com/mickamy/redis-lite/role"
	"github.com/mickamy/redis-lite/txn"
)

// Connection is one client's, replica's, or upstream-primary's framed I/O
// loop and offset bookkeeping. It implements both command.Conn (what
// command bodies need) and redisserver.Replica (what the server's fan-out
// and WAIT accounting need).
type Connection struct {
	nc   net.Conn
	br   *bufio.Reader
	role role.Role

	server *redisserver.Server
	txn    *txn.Transaction

	writeMu sync.Mutex

	propagateOffset atomic.Int64
	ackOffset       atomic.Int64
}

// OurPort is set by cmd/redis-server/main.go before Start so that the
// replica handshake can advertise the port this server itself listens on.
var OurPort = "6379"

// Serve drives one connection end to end; its signature matches
// redisserver.Handler so the server wires it in directly as
// redisserver.New(..., conn.Serve) without redisserver importing conn.
func Serve(ctx context.Context, nc net.Conn, r role.Role, s *redisserver.Server) error {
	c := &Connection{
		nc:     nc,
		br:     bufio.NewReader(nc),
		role:   r,
		server: s,
		txn:    txn.New(),
	}
	defer c.close()

	if r == role.Master {
		if err := replication.Handshake(c.br, c.nc, OurPort); err != nil {
			return fmt.Errorf("conn: handshake: %w", err)
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		argv, err := resp.DecodeArgs(c.br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("conn: decode: %w", err)
		}

		cmd, err := command.Parse(argv)
		if err != nil {
			return fmt.Errorf("conn: %w", err)
		}

		response, ok := command.Run(cmd, c)
		if ok {
			if err := c.write(response.Encode()); err != nil {
				return fmt.Errorf("conn: write: %w", err)
			}
		}

		if strings.EqualFold(cmd.Name(), "PSYNC") {
			if err := c.sendSnapshot(); err != nil {
				return fmt.Errorf("conn: send snapshot: %w", err)
			}
		}
	}
}

// sendSnapshot writes the bulk-string-framed snapshot immediately after a
// PSYNC's +FULLRESYNC reply: a "$<n>\r\n" header followed by n raw bytes,
// with no trailing CRLF.
func (c *Connection) sendSnapshot() error {
	data := c.server.Dump()
	header := fmt.Sprintf("$%d\r\n", len(data))
	return c.write(append([]byte(header), data...))
}

func (c *Connection) write(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.nc.Write(b)
	return err
}

// close shuts down the underlying connection and, if this connection had
// become a replica, detaches it from the server's replica set. Safe to call
// more than once.
func (c *Connection) close() {
	c.server.RemoveReplica(c)
	_ = c.nc.Close()
}

// --- command.Conn ---

func (c *Connection) Role() role.Role                  { return c.role }
func (c *Connection) Server() *redisserver.Server      { return c.server }
func (c *Connection) Transaction() command.Transaction { return c.txn }
func (c *Connection) PropagateOffset() int64           { return c.propagateOffset.Load() }
func (c *Connection) AddPropagateOffset(n int64)       { c.propagateOffset.Add(n) }
func (c *Connection) AddAckOffset(n int64)             { c.ackOffset.Add(n) }
func (c *Connection) MarkReplica() {
	c.role = role.Replica
	c.server.AddReplica(c)
}

// --- redisserver.Replica ---

// Send writes frame to this connection, serialized against any concurrent
// response write on the same socket.
func (c *Connection) Send(frame []byte) error { return c.write(frame) }

// AckOffset returns the last REPLCONF ACK offset this replica reported.
func (c *Connection) AckOffset() int64 { return c.ackOffset.Load() }
