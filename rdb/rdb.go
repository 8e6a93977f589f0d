// Package rdb loads the binary snapshot format used for cold start. Any
// parse failure, including a missing file, yields an empty store — callers
// are not expected to distinguish "no snapshot" from "corrupt snapshot".
package rdb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mickamy/redis-lite/store"
)

// errLZF reports the one snapshot feature this loader deliberately does not
// support: LZF-compressed string encoding.
var errLZF = errors.New("rdb: LZF-compressed strings are not supported")

// Load reads dir/dbfilename and returns the store it encodes. On any error —
// missing file, truncated file, unsupported encoding — it returns a fresh
// empty store and the error, so callers can log-and-continue.
func Load(dir, dbfilename string) (*store.Store, error) {
	s := store.New()
	if dir == "" || dbfilename == "" {
		return s, nil
	}

	path := filepath.Join(dir, dbfilename)
	f, err := os.Open(path)
	if err != nil {
		return store.New(), fmt.Errorf("rdb: open %s: %w", path, err)
	}
	defer f.Close()

	r := &reader{br: bufio.NewReader(f)}
	if err := loadInto(r, s); err != nil {
		return store.New(), fmt.Errorf("rdb: load %s: %w", path, err)
	}
	return s, nil
}

func loadInto(r *reader, s *store.Store) error {
	if err := r.skip(9); err != nil { // magic + version header
		return err
	}

	for {
		ok, err := r.consume(0xFA)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if _, err := r.readString(); err != nil {
			return err
		}
		if _, err := r.readString(); err != nil {
			return err
		}
	}

	hasDB, err := r.consume(0xFE)
	if err != nil {
		return err
	}
	if !hasDB {
		return nil
	}

	if _, err := r.readSize(); err != nil { // database index
		return err
	}
	ok, err := r.consume(0xFB)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("rdb: missing hash table size information")
	}
	total, err := r.readSize()
	if err != nil {
		return err
	}
	if _, err := r.readSize(); err != nil { // keys-with-expiry count
		return err
	}

	for i := uint64(0); i < total; i++ {
		expireAt, err := r.readExpiry()
		if err != nil {
			return err
		}
		key, value, err := r.readKeyValue()
		if err != nil {
			return err
		}
		s.SetString(key, value, expireAt)
	}
	return nil
}

// reader wraps the snapshot bytes with the consume/read_size/read_string
// primitives the format is built from.
type reader struct {
	br *bufio.Reader
}

func (r *reader) skip(n int) error {
	buf := make([]byte, n)
	_, err := io.ReadFull(r.br, buf)
	return err
}

// consume reads one byte and reports whether it equals want, pushing the
// byte back via UnreadByte when it doesn't.
func (r *reader) consume(want byte) (bool, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return false, err
	}
	if b == want {
		return true, nil
	}
	return false, r.br.UnreadByte()
}

// readSize decodes the top-two-bits-mode length prefix. It must only be
// called where a size-encoded (not string-encoded) value is expected.
func (r *reader) readSize() (uint64, error) {
	first, err := r.br.ReadByte()
	if err != nil {
		return 0, err
	}
	mode := first >> 6
	rem := uint64(first & 0x3F)
	switch mode {
	case 0:
		return rem, nil
	case 1:
		b, err := r.br.ReadByte()
		if err != nil {
			return 0, err
		}
		return rem*256 + uint64(b), nil
	case 2:
		buf := make([]byte, 4)
		if _, err := io.ReadFull(r.br, buf); err != nil {
			return 0, err
		}
		return uint64(binary.BigEndian.Uint32(buf)), nil
	default:
		return 0, errors.New("rdb: expected size encoding, got string encoding")
	}
}

// readString decodes a length-prefixed string, including the three
// integer-as-string escapes and the (rejected) LZF escape.
func (r *reader) readString() (string, error) {
	if ok, err := r.consume(0xC0); err != nil {
		return "", err
	} else if ok {
		b, err := r.br.ReadByte()
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(b), 10), nil
	}
	if ok, err := r.consume(0xC1); err != nil {
		return "", err
	} else if ok {
		buf := make([]byte, 2)
		if _, err := io.ReadFull(r.br, buf); err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint16(buf)), 10), nil
	}
	if ok, err := r.consume(0xC2); err != nil {
		return "", err
	} else if ok {
		buf := make([]byte, 4)
		if _, err := io.ReadFull(r.br, buf); err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(buf)), 10), nil
	}
	if ok, err := r.consume(0xC3); err != nil {
		return "", err
	} else if ok {
		return "", errLZF
	}

	n, err := r.readSize()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readExpiry reads a record's optional expiry prefix, returning the zero
// time (never expires) when none is present.
func (r *reader) readExpiry() (time.Time, error) {
	if ok, err := r.consume(0xFC); err != nil {
		return time.Time{}, err
	} else if ok {
		buf := make([]byte, 8)
		if _, err := io.ReadFull(r.br, buf); err != nil {
			return time.Time{}, err
		}
		ms := binary.LittleEndian.Uint64(buf)
		return time.UnixMilli(int64(ms)), nil
	}
	if ok, err := r.consume(0xFD); err != nil {
		return time.Time{}, err
	} else if ok {
		buf := make([]byte, 4)
		if _, err := io.ReadFull(r.br, buf); err != nil {
			return time.Time{}, err
		}
		secs := binary.LittleEndian.Uint32(buf)
		return time.UnixMilli(int64(secs) * 1000), nil
	}
	return store.Never, nil
}

func (r *reader) readKeyValue() (key, value string, err error) {
	ok, err := r.consume(0x00)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", errors.New("rdb: value type should be string")
	}
	key, err = r.readString()
	if err != nil {
		return "", "", err
	}
	value, err = r.readString()
	if err != nil {
		return "", "", err
	}
	return key, value, nil
}
