package command

import "github.com/mickamy/redis-lite/resp"

// MultiCmd activates the connection's transaction. It is never itself
// queued, even when a transaction is already active.
type MultiCmd struct{ Base }

func (c *MultiCmd) ShouldQueue(Conn) bool { return false }

func (c *MultiCmd) Execute(conn Conn) resp.Value {
	if !conn.Transaction().Activate() {
		return resp.Err("ERR MULTI calls can not be nested")
	}
	return resp.Simple("OK")
}

// ExecCmd runs the queued commands in order and collects their responses.
type ExecCmd struct{ Base }

func (c *ExecCmd) ShouldQueue(Conn) bool { return false }

func (c *ExecCmd) Execute(conn Conn) resp.Value {
	v, ok := conn.Transaction().Exec(conn)
	if !ok {
		return resp.Err("ERR EXEC without MULTI")
	}
	return v
}

// DiscardCmd deactivates the connection's transaction without running it.
type DiscardCmd struct{ Base }

func (c *DiscardCmd) ShouldQueue(Conn) bool { return false }

func (c *DiscardCmd) Execute(conn Conn) resp.Value {
	if !conn.Transaction().Discard() {
		return resp.Err("ERR DISCARD without MULTI")
	}
	return resp.Simple("OK")
}
