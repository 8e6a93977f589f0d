// Package command implements the named-command catalog and the shared
// four-hook execution contract (queueable, propagatable, response-
// suppressible) every command obeys.
package command

import (
	"fmt"
	"strings"

	"github.com/mickamy/redis-lite/redisserver"
	"github.com/mickamy/redis-lite/resp"
	"github.com/mickamy/redis-lite/role"
)

// Conn is what a command body needs from the connection that is executing
// it. conn.Connection implements this; command never imports conn, which is
// what keeps the two packages from cycling.
type Conn interface {
	Role() role.Role
	Server() *redisserver.Server
	Transaction() Transaction
	PropagateOffset() int64
	AddPropagateOffset(n int64)
	AddAckOffset(n int64)
	MarkReplica()
}

// Transaction is the per-connection queue behavior MULTI/EXEC/DISCARD and
// the execution protocol need. txn.Transaction implements this.
type Transaction interface {
	Active() bool
	Activate() bool
	Discard() bool
	Queue(cmd Command)
	// Exec atomically snapshots and deactivates the queue, then runs its
	// commands against c. ok is false if the transaction was not active.
	Exec(c Conn) (resp.Value, bool)
}

// Command is one parsed, dispatchable command.
type Command interface {
	Name() string
	ShouldQueue(c Conn) bool
	ShouldPropagate() bool
	HasResponse(c Conn) bool
	Execute(c Conn) resp.Value
	// Serialize renders the command's own argument vector as the verbatim
	// RESP frame propagated to replicas and counted toward offsets.
	Serialize() []byte
}

// Base supplies the default hook bodies described in the execution
// contract; concrete commands embed it and override only what differs.
type Base struct {
	Argv []string
}

func (b Base) Name() string { return strings.ToUpper(b.Argv[0]) }

func (b Base) ShouldQueue(c Conn) bool { return c.Transaction().Active() }

func (b Base) ShouldPropagate() bool { return false }

func (b Base) HasResponse(c Conn) bool { return c.Role() != role.Master }

func (b Base) Serialize() []byte { return resp.EncodeArgs(b.Argv) }

// Run executes cmd against c following the five-step execution protocol:
// queue-or-execute, master offset accounting, replica propagation, and
// response suppression. It is called both from the connection's main
// dispatch loop and from Transaction.Exec for each queued command.
func Run(cmd Command, c Conn) (resp.Value, bool) {
	var response resp.Value
	if cmd.ShouldQueue(c) {
		c.Transaction().Queue(cmd)
		response = resp.Simple("QUEUED")
	} else {
		response = cmd.Execute(c)
	}

	if c.Role() == role.Master {
		c.Server().AddReplOffset(int64(len(cmd.Serialize())))
	}

	if cmd.ShouldPropagate() {
		frame := cmd.Serialize()
		c.Server().SendToReplicas(frame)
		c.AddPropagateOffset(int64(len(frame)))
	}

	if cmd.HasResponse(c) {
		return response, true
	}
	return resp.Value{}, false
}

// Parse builds the Command named by argv[0] (case-insensitive). An unknown
// command name is a protocol-level error per the connection loop's contract.
func Parse(argv []string) (Command, error) {
	base := Base{Argv: argv}
	switch strings.ToUpper(argv[0]) {
	case "PING":
		return &PingCmd{base}, nil
	case "ECHO":
		return &EchoCmd{base}, nil
	case "GET":
		return &GetCmd{base}, nil
	case "SET":
		return &SetCmd{base}, nil
	case "INCR":
		return &IncrCmd{base}, nil
	case "TYPE":
		return &TypeCmd{base}, nil
	case "KEYS":
		return &KeysCmd{base}, nil
	case "INFO":
		return &InfoCmd{base}, nil
	case "CONFIG":
		return &ConfigCmd{base}, nil
	case "MULTI":
		return &MultiCmd{base}, nil
	case "EXEC":
		return &ExecCmd{base}, nil
	case "DISCARD":
		return &DiscardCmd{base}, nil
	case "REPLCONF":
		return &ReplconfCmd{base}, nil
	case "PSYNC":
		return &PsyncCmd{base}, nil
	case "WAIT":
		return &WaitCmd{base}, nil
	case "XADD":
		return &XaddCmd{base}, nil
	case "XRANGE":
		return &XrangeCmd{base}, nil
	case "XREAD":
		return &XreadCmd{base}, nil
	default:
		return nil, fmt.Errorf("command: unknown command %q", argv[0])
	}
}
