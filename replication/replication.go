// Package replication implements the replica-side handshake performed over
// an already-connected upstream primary link. Propagation fan-out and ACK
// tallying live on redisserver.Server itself, since those need the shared
// replica set; this package only owns the one-shot handshake sequence.
package replication

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/mickamy/redis-lite/resp"
)

// Handshake performs the five-step replica handshake over nc, reading
// replies through br (which must be the same reader the caller continues
// using afterward, so no buffered bytes are lost): PING, REPLCONF
// listening-port, REPLCONF capa psync2, PSYNC ? -1, then the FULLRESYNC
// snapshot payload, which is discarded rather than loaded.
func Handshake(br *bufio.Reader, nc net.Conn, ourPort string) error {
	steps := [][]string{
		{"PING"},
		{"REPLCONF", "listening-port", ourPort},
		{"REPLCONF", "capa", "psync2"},
		{"PSYNC", "?", "-1"},
	}
	for _, argv := range steps {
		if _, err := nc.Write(resp.EncodeArgs(argv)); err != nil {
			return fmt.Errorf("replication: send %s: %w", argv[0], err)
		}
		if _, err := resp.DecodeReply(br); err != nil {
			return fmt.Errorf("replication: read reply to %s: %w", argv[0], err)
		}
	}

	n, err := readBulkLen(br)
	if err != nil {
		return fmt.Errorf("replication: read snapshot header: %w", err)
	}
	if _, err := io.CopyN(io.Discard, br, int64(n)); err != nil {
		return fmt.Errorf("replication: read snapshot body: %w", err)
	}
	return nil
}

// readBulkLen reads a "$<n>\r\n" header without consuming any bytes past
// it — the snapshot payload that follows has no trailing CRLF, unlike an
// ordinary bulk-string reply.
func readBulkLen(br *bufio.Reader) (int, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return 0, err
	}
	if len(line) < 4 || line[0] != '$' || line[len(line)-2] != '\r' {
		return 0, fmt.Errorf("replication: malformed bulk header %q", line)
	}
	return strconv.Atoi(line[1 : len(line)-2])
}
