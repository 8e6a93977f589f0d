// Package txn implements the per-connection command queue MULTI/EXEC/
// DISCARD drive.
package txn

import (
	"sync"

	"github.com/mickamy/redis-lite/command"
	"github.com/mickamy/redis-lite/resp"
)

// Transaction holds a connection's optional command queue. The active flag
// is set by MULTI and cleared by EXEC/DISCARD; while active, the queue holds
// the commands queued so far (possibly none).
type Transaction struct {
	mu     sync.Mutex
	queue  []command.Command
	active bool
}

// New returns an inactive transaction.
func New() *Transaction { return &Transaction{} }

// Active reports whether MULTI has been called without a matching EXEC or
// DISCARD yet.
func (t *Transaction) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Activate transitions Inactive -> Active. It fails (returns false) on a
// nested MULTI.
func (t *Transaction) Activate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return false
	}
	t.active = true
	t.queue = nil
	return true
}

// Discard transitions Active -> Inactive without running the queue. It
// fails on DISCARD without a matching MULTI.
func (t *Transaction) Discard() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return false
	}
	t.active = false
	t.queue = nil
	return true
}

// Queue appends cmd to the pending queue. Only valid while Active.
func (t *Transaction) Queue(cmd command.Command) {
	t.mu.Lock()
	t.queue = append(t.queue, cmd)
	t.mu.Unlock()
}

// Exec atomically snapshots the queue and deactivates the transaction
// before running anything, so that commands executed here are never
// re-queued by command.Run's ShouldQueue check. ok is false when the
// transaction was not active.
func (t *Transaction) Exec(c command.Conn) (resp.Value, bool) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return resp.Value{}, false
	}
	queued := t.queue
	t.active = false
	t.queue = nil
	t.mu.Unlock()

	responses := make([]resp.Value, len(queued))
	for i, cmd := range queued {
		v, _ := command.Run(cmd, c)
		responses[i] = v
	}
	return resp.Array(responses...), true
}
