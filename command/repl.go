package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/mickamy/redis-lite/resp"
)

// ReplconfCmd handles the REPLCONF sub-commands a replica handshake and a
// primary's GETACK polling exchange.
type ReplconfCmd struct{ Base }

func (c *ReplconfCmd) HasResponse(conn Conn) bool {
	return !strings.EqualFold(c.Argv[1], "ACK")
}

func (c *ReplconfCmd) Execute(conn Conn) resp.Value {
	switch strings.ToUpper(c.Argv[1]) {
	case "GETACK":
		offset := strconv.FormatInt(conn.Server().ReplOffset(), 10)
		return resp.Array(resp.Bulk("REPLCONF"), resp.Bulk("ACK"), resp.Bulk(offset))
	case "ACK":
		n, err := strconv.ParseInt(c.Argv[2], 10, 64)
		if err == nil {
			conn.AddAckOffset(n)
		}
		return resp.Value{}
	default:
		return resp.Simple("OK")
	}
}

// PsyncCmd marks the connection as a replica and triggers the FULLRESYNC
// handoff; the connection loop sends the snapshot bytes right after this
// reply, per the protocol in conn.Serve.
type PsyncCmd struct{ Base }

func (c *PsyncCmd) Execute(conn Conn) resp.Value {
	conn.MarkReplica()
	return resp.Simple("FULLRESYNC " + conn.Server().MasterReplID() + " 0")
}

// WaitCmd polls attached replicas' ack offsets until required is reached or
// the deadline elapses. It never fails.
type WaitCmd struct{ Base }

func (c *WaitCmd) Execute(conn Conn) resp.Value {
	target := conn.PropagateOffset()

	if target > 0 {
		getack, _ := Parse([]string{"REPLCONF", "GETACK", "*"})
		conn.Server().SendToReplicas(getack.Serialize())
	}

	required, _ := strconv.Atoi(c.Argv[1])
	timeoutMs, _ := strconv.Atoi(c.Argv[2])
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	acked := conn.Server().NumAckedReplicas(target)
	for acked < required && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
		acked = conn.Server().NumAckedReplicas(target)
	}
	return resp.Int64(int64(acked))
}
