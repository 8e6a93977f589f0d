package command

import (
	"strconv"
	"time"

	"github.com/mickamy/redis-lite/resp"
	"github.com/mickamy/redis-lite/store"
)

// PingCmd replies +PONG unconditionally.
type PingCmd struct{ Base }

func (c *PingCmd) Execute(Conn) resp.Value { return resp.Simple("PONG") }

// EchoCmd replies with its single argument as a bulk string.
type EchoCmd struct{ Base }

func (c *EchoCmd) Execute(Conn) resp.Value { return resp.Bulk(c.Argv[1]) }

// GetCmd reads a string key: bulk on a string, WRONGTYPE on a stream, null
// bulk when absent.
type GetCmd struct{ Base }

func (c *GetCmd) Execute(conn Conn) resp.Value {
	e, ok := conn.Server().Store().Get(c.Argv[1], time.Now())
	if !ok {
		return resp.NullBulk()
	}
	if e.Kind != store.KindString {
		return resp.Err("WRONGTYPE Operation against a key holding the wrong kind of value")
	}
	return resp.Bulk(e.Str)
}

// SetCmd stores a string, with an optional trailing argument parsed as a
// relative millisecond TTL (the "px" keyword itself, if present, is not
// inspected — only the final argument's numeric value is).
type SetCmd struct{ Base }

func (c *SetCmd) ShouldPropagate() bool { return true }

func (c *SetCmd) Execute(conn Conn) resp.Value {
	key, value := c.Argv[1], c.Argv[2]
	expireAt := store.Never
	if len(c.Argv) > 3 {
		ms, err := strconv.ParseInt(c.Argv[len(c.Argv)-1], 10, 64)
		if err != nil {
			return resp.Err("ERR value is not an integer or out of range")
		}
		expireAt = time.Now().Add(time.Duration(ms) * time.Millisecond)
	}
	conn.Server().Store().SetString(key, value, expireAt)
	return resp.Simple("OK")
}

// IncrCmd increments a string key parseable as a signed integer, or replies
// the not-an-integer error for anything else (including stream keys).
type IncrCmd struct{ Base }

func (c *IncrCmd) Execute(conn Conn) resp.Value {
	n, ok := conn.Server().Store().Increment(c.Argv[1], time.Now())
	if !ok {
		return resp.Err("ERR value is not an integer or out of range")
	}
	return resp.Int64(n)
}

// TypeCmd reports a key's store-level kind.
type TypeCmd struct{ Base }

func (c *TypeCmd) Execute(conn Conn) resp.Value {
	e, ok := conn.Server().Store().Get(c.Argv[1], time.Now())
	if !ok {
		return resp.Simple("none")
	}
	return resp.Simple(e.Kind.String())
}

// KeysCmd returns every key in the store. Expired entries are not filtered
// out here, matching the reference keys() behavior.
type KeysCmd struct{ Base }

func (c *KeysCmd) Execute(conn Conn) resp.Value {
	keys := conn.Server().Store().Keys()
	elems := make([]resp.Value, len(keys))
	for i, k := range keys {
		elems[i] = resp.Bulk(k)
	}
	return resp.Array(elems...)
}

// InfoCmd reports replication identity and offset.
type InfoCmd struct{ Base }

func (c *InfoCmd) Execute(conn Conn) resp.Value {
	s := conn.Server()
	info := "role:" + s.RoleString() + "\n" +
		"master_replid:" + s.MasterReplID() + "\n" +
		"master_repl_offset:" + strconv.FormatInt(s.ReplOffset(), 10)
	return resp.Bulk(info)
}

// ConfigCmd implements CONFIG GET name.
type ConfigCmd struct{ Base }

func (c *ConfigCmd) Execute(conn Conn) resp.Value {
	name := c.Argv[2]
	value, _ := conn.Server().ConfigGet(name)
	return resp.Array(resp.Bulk(name), resp.Bulk(value))
}
