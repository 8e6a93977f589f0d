package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/mickamy/redis-lite/resp"
	"github.com/mickamy/redis-lite/store"
	"github.com/mickamy/redis-lite/stream"
)

const wrongType = "WRONGTYPE Operation against a key holding the wrong kind of value"

// XaddCmd appends an entry to a stream, lazily creating it if absent.
type XaddCmd struct{ Base }

func (c *XaddCmd) Execute(conn Conn) resp.Value {
	key := c.Argv[1]
	now := time.Now()

	st, ok := conn.Server().Store().GetOrCreateStream(key, now)
	if !ok {
		return resp.Err(wrongType)
	}

	id, err := st.ParseID(c.Argv[2], stream.SeqMin, uint64(now.UnixMilli()))
	if err != nil {
		return resp.Errf("ERR %s", err)
	}

	fields := c.Argv[3:]
	if st.XAdd(id, fields) {
		return resp.Bulk(id.String())
	}
	if id == stream.Zero {
		return resp.Err("ERR The ID specified in XADD must be greater than 0-0")
	}
	return resp.Err("ERR The ID specified in XADD is equal or smaller than the target stream top item")
}

// XrangeCmd scans a stream's entries within an inclusive ID range, with "-"
// and "+" denoting open ends.
type XrangeCmd struct{ Base }

func (c *XrangeCmd) Execute(conn Conn) resp.Value {
	key := c.Argv[1]
	now := time.Now()

	e, ok := conn.Server().Store().Get(key, now)
	if !ok {
		return resp.Array()
	}
	if e.Kind != store.KindStream {
		return resp.Err(wrongType)
	}

	var min, max *stream.ID
	if c.Argv[2] != "-" {
		id, err := e.Stream.ParseID(c.Argv[2], stream.SeqMin, uint64(now.UnixMilli()))
		if err != nil {
			return resp.Errf("ERR %s", err)
		}
		min = &id
	}
	if c.Argv[3] != "+" {
		id, err := e.Stream.ParseID(c.Argv[3], stream.SeqMax, uint64(now.UnixMilli()))
		if err != nil {
			return resp.Errf("ERR %s", err)
		}
		max = &id
	}

	return entriesToReply(e.Stream.XRange(min, max))
}

// XreadCmd reads entries newer than a per-stream start ID across one or more
// streams, optionally blocking until data arrives or a deadline elapses.
type XreadCmd struct{ Base }

func (c *XreadCmd) Execute(conn Conn) resp.Value {
	argv := c.Argv
	now := time.Now()

	streamsIdx := -1
	for i, a := range argv {
		if strings.EqualFold(a, "STREAMS") {
			streamsIdx = i
			break
		}
	}
	if streamsIdx < 0 {
		return resp.Err("ERR syntax error")
	}

	numStreams := (len(argv) - streamsIdx - 1) / 2
	keys := argv[streamsIdx+1 : streamsIdx+1+numStreams]
	idTexts := argv[streamsIdx+1+numStreams:]

	blocking := strings.EqualFold(argv[1], "BLOCK")
	var deadline time.Time
	if blocking {
		ms, _ := strconv.Atoi(argv[2])
		if ms > 0 {
			deadline = now.Add(time.Duration(ms) * time.Millisecond)
		}
	}

	keyspace := conn.Server().Store()

	lookup := func(key string) (*stream.Stream, bool) {
		e, ok := keyspace.Get(key, time.Now())
		if !ok || e.Kind != store.KindStream {
			return nil, false
		}
		return e.Stream, true
	}

	startIDs := make([]stream.ID, numStreams)
	for i, key := range keys {
		handle, _ := lookup(key)
		if idTexts[i] == "$" {
			if handle != nil {
				startIDs[i] = handle.TailID()
			}
			continue
		}
		parser := handle
		if parser == nil {
			parser = stream.New()
		}
		id, err := parser.ParseID(idTexts[i], stream.SeqMin, uint64(now.UnixMilli()))
		if err != nil {
			return resp.Errf("ERR %s", err)
		}
		startIDs[i] = id
	}

	for {
		groups := make([]resp.Value, len(keys))
		hasData := false
		for i, key := range keys {
			var entries []stream.Entry
			if handle, ok := lookup(key); ok {
				entries = handle.XRead(startIDs[i])
			}
			if len(entries) > 0 {
				hasData = true
			}
			groups[i] = resp.Array(resp.Bulk(key), entriesToReply(entries))
		}
		if hasData {
			return resp.Array(groups...)
		}
		if !blocking || (!deadline.IsZero() && !time.Now().Before(deadline)) {
			return resp.NullBulk()
		}
		time.Sleep(time.Millisecond)
	}
}

// entriesToReply renders stream entries as the nested array XRANGE/XREAD
// reply: one [id, [field, value, ...]] element per entry.
func entriesToReply(entries []stream.Entry) resp.Value {
	elems := make([]resp.Value, len(entries))
	for i, e := range entries {
		fields := make([]resp.Value, len(e.Fields))
		for j, f := range e.Fields {
			fields[j] = resp.Bulk(f)
		}
		elems[i] = resp.Array(resp.Bulk(e.ID.String()), resp.Array(fields...))
	}
	return resp.Array(elems...)
}
