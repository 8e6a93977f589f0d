package rdb_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mickamy/redis-lite/rdb"
)

var zeroNow = time.Now()

// sizeEncoded returns the size-encoding prefix bytes for n, using the
// smallest of the three direct modes (6-bit, 14-bit, 32-bit).
func sizeEncoded(n int) []byte {
	if n < 64 {
		return []byte{byte(n)}
	}
	if n < 16384 {
		return []byte{0x40 | byte(n>>8), byte(n)}
	}
	return []byte{0x80, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
}

func lengthPrefixedString(s string) []byte {
	return append(sizeEncoded(len(s)), []byte(s)...)
}

func buildSnapshot(records ...[]byte) []byte {
	buf := []byte("REDIS0011")
	buf = append(buf, 0xFA)
	buf = append(buf, lengthPrefixedString("redis-ver")...)
	buf = append(buf, lengthPrefixedString("7.0.0")...)

	buf = append(buf, 0xFE)
	buf = append(buf, sizeEncoded(0)...)
	buf = append(buf, 0xFB)
	buf = append(buf, sizeEncoded(len(records))...)
	buf = append(buf, sizeEncoded(0)...)

	for _, rec := range records {
		buf = append(buf, rec...)
	}
	buf = append(buf, 0xFF)
	buf = append(buf, make([]byte, 8)...)
	return buf
}

func stringRecord(key, value string) []byte {
	rec := []byte{0x00}
	rec = append(rec, lengthPrefixedString(key)...)
	rec = append(rec, lengthPrefixedString(value)...)
	return rec
}

func msExpiryRecord(ms uint64, key, value string) []byte {
	rec := []byte{0xFC}
	for i := 0; i < 8; i++ {
		rec = append(rec, byte(ms>>(8*i)))
	}
	rec = append(rec, 0x00)
	rec = append(rec, lengthPrefixedString(key)...)
	rec = append(rec, lengthPrefixedString(value)...)
	return rec
}

func writeSnapshot(t *testing.T, data []byte) (dir, name string) {
	t.Helper()
	dir = t.TempDir()
	name = "dump.rdb"
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	return dir, name
}

func TestLoadParsesStringRecords(t *testing.T) {
	t.Parallel()
	data := buildSnapshot(stringRecord("a", "1"), stringRecord("b", "hello world"))
	dir, name := writeSnapshot(t, data)

	s, err := rdb.Load(dir, name)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, want := range []struct{ key, value string }{{"a", "1"}, {"b", "hello world"}} {
		e, ok := s.Get(want.key, zeroNow)
		if !ok || e.Str != want.value {
			t.Fatalf("key %q: got %+v, ok=%v, want %q", want.key, e, ok, want.value)
		}
	}
}

func TestLoadParsesExpiry(t *testing.T) {
	t.Parallel()
	farFuture := uint64(4102444800000) // 2100-01-01 UTC in ms
	data := buildSnapshot(msExpiryRecord(farFuture, "k", "v"))
	dir, name := writeSnapshot(t, data)

	s, err := rdb.Load(dir, name)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := s.Get("k", zeroNow); !ok {
		t.Fatal("expected key with far-future expiry to be present")
	}
}

func TestLoadDecodesIntEscapesAsUnsigned(t *testing.T) {
	t.Parallel()
	rec := []byte{0x00}
	rec = append(rec, lengthPrefixedString("k")...)
	rec = append(rec, 0xC0, 0xFF) // 8-bit escape, high bit set
	data := buildSnapshot(rec)
	dir, name := writeSnapshot(t, data)

	s, err := rdb.Load(dir, name)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, ok := s.Get("k", zeroNow)
	if !ok || e.Str != "255" {
		t.Fatalf("got %+v, ok=%v, want unsigned \"255\"", e, ok)
	}
}

func TestLoadMissingFileReturnsEmptyStore(t *testing.T) {
	t.Parallel()
	s, err := rdb.Load(t.TempDir(), "does-not-exist.rdb")
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if len(s.Keys()) != 0 {
		t.Fatal("expected an empty store despite the error")
	}
}

func TestLoadEmptyDirOrFilenameReturnsEmptyStoreWithoutError(t *testing.T) {
	t.Parallel()
	s, err := rdb.Load("", "")
	if err != nil {
		t.Fatalf("Load with no configured snapshot should not error, got %v", err)
	}
	if len(s.Keys()) != 0 {
		t.Fatal("expected an empty store")
	}
}

func TestLoadMalformedBytesReturnsEmptyStoreWithError(t *testing.T) {
	t.Parallel()
	dir, name := writeSnapshot(t, []byte("short"))

	s, err := rdb.Load(dir, name)
	if err == nil {
		t.Fatal("expected an error for malformed snapshot bytes")
	}
	if len(s.Keys()) != 0 {
		t.Fatal("expected an empty store despite the error")
	}
}

func TestLoadRejectsLZFEncoding(t *testing.T) {
	t.Parallel()
	rec := []byte{0x00}
	rec = append(rec, lengthPrefixedString("k")...)
	rec = append(rec, 0xC3) // LZF escape, unsupported
	data := buildSnapshot(rec)
	dir, name := writeSnapshot(t, data)

	_, err := rdb.Load(dir, name)
	if err == nil {
		t.Fatal("expected an error for LZF-compressed string encoding")
	}
}
