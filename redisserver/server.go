// Package redisserver owns the shared state every connection reads and
// mutates: the Store, the set of attached replicas, the replication
// identity, and the primary replication offset. It runs the accept loop and
// the optional upstream-primary task, but stays agnostic of RESP framing
// and command dispatch — those live in conn and command, wired in by the
// caller through the Handler hook to avoid an import cycle.
package redisserver

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mickamy/redis-lite/rdb"
	"github.com/mickamy/redis-lite/role"
	"github.com/mickamy/redis-lite/store"
)

// Replica is the outbound side of an attached replica connection, as seen
// by the server for fan-out and ACK accounting. conn.Connection implements
// this.
type Replica interface {
	// Send writes a verbatim serialized command to the replica. A failure
	// here only detaches this one replica; it never blocks other replicas
	// or the caller that triggered propagation.
	Send(frame []byte) error
	// AckOffset returns the last REPLCONF ACK offset this replica reported.
	AckOffset() int64
}

// Handler serves one accepted or dialed connection until it closes. r tells
// the handler which role to serve the connection as; role.Master marks the
// dialed upstream primary link.
type Handler func(ctx context.Context, nc net.Conn, r role.Role, s *Server) error

// Server is the shared state attached to every connection task.
type Server struct {
	address       string
	masterAddress string
	handler       Handler

	store  *store.Store
	replid string

	mu         sync.Mutex
	replOffset int64
	replicas   map[Replica]struct{}
	config     map[string]string
}

// New constructs a Server. dir/dbfilename are attempted as a snapshot load
// at construction time per tryLoadDatabase's swallow-all-errors contract;
// masterAddress, if non-empty, marks this server as a replica of that
// address. replid is the 40-hex identifier minted by the caller.
func New(address, masterAddress, dir, dbfilename, replid string, handler Handler) *Server {
	s := &Server{
		address:       address,
		masterAddress: masterAddress,
		handler:       handler,
		replid:        replid,
		replicas:      make(map[Replica]struct{}),
		config: map[string]string{
			"dir":        dir,
			"dbfilename": dbfilename,
		},
	}
	s.store = s.tryLoadDatabase(dir, dbfilename)
	return s
}

// tryLoadDatabase attempts to load dir/dbfilename, returning an empty store
// on any failure. The load error is discarded, not logged or returned.
func (s *Server) tryLoadDatabase(dir, dbfilename string) *store.Store {
	loaded, err := rdb.Load(dir, dbfilename)
	if err != nil {
		return store.New()
	}
	return loaded
}

// Store returns the shared, mutex-guarded key space.
func (s *Server) Store() *store.Store { return s.store }

// Address returns the listen address this server was configured with.
func (s *Server) Address() string { return s.address }

// IsReplica reports whether this server was started with --replicaof.
func (s *Server) IsReplica() bool { return s.masterAddress != "" }

// MasterAddress returns the configured upstream primary address, or "" if
// this server is itself a primary.
func (s *Server) MasterAddress() string { return s.masterAddress }

// RoleString renders the role field INFO reports: "master" or "slave".
func (s *Server) RoleString() string {
	if s.IsReplica() {
		return "slave"
	}
	return "master"
}

// MasterReplID returns the fixed 40-hex identifier chosen at construction.
func (s *Server) MasterReplID() string { return s.replid }

// ReplOffset returns the current master_repl_offset.
func (s *Server) ReplOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replOffset
}

// AddReplOffset advances master_repl_offset by n bytes.
func (s *Server) AddReplOffset(n int64) {
	s.mu.Lock()
	s.replOffset += n
	s.mu.Unlock()
}

// ConfigGet returns the config map's value for name.
func (s *Server) ConfigGet(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.config[name]
	return v, ok
}

// AddReplica attaches r to the replica set, e.g. after a successful PSYNC.
func (s *Server) AddReplica(r Replica) {
	s.mu.Lock()
	s.replicas[r] = struct{}{}
	s.mu.Unlock()
}

// RemoveReplica detaches r; safe to call more than once for the same r.
func (s *Server) RemoveReplica(r Replica) {
	s.mu.Lock()
	delete(s.replicas, r)
	s.mu.Unlock()
}

// IsReplicaConn reports whether r is currently attached.
func (s *Server) IsReplicaConn(r Replica) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.replicas[r]
	return ok
}

// SendToReplicas serializes a command once and writes it to every attached
// replica. A replica whose write fails is detached from the replica set;
// the failure does not prevent fan-out to the rest.
func (s *Server) SendToReplicas(frame []byte) {
	s.mu.Lock()
	targets := make([]Replica, 0, len(s.replicas))
	for r := range s.replicas {
		targets = append(targets, r)
	}
	s.mu.Unlock()

	for _, r := range targets {
		if err := r.Send(frame); err != nil {
			s.RemoveReplica(r)
		}
	}
}

// NumAckedReplicas counts attached replicas whose last reported ack offset
// is at least target.
func (s *Server) NumAckedReplicas(target int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for r := range s.replicas {
		if r.AckOffset() >= target {
			n++
		}
	}
	return n
}

// Dump delegates to the store's fixed-minimum snapshot emitter.
func (s *Server) Dump() []byte { return s.store.Dump() }

// Start opens the listen socket and, if configured as a replica, dials the
// upstream primary — running both as concurrent tasks via errgroup, the way
// the teacher's daemon entrypoint runs its independent components
// concurrently rather than nesting them. It blocks until ctx is canceled or
// either task returns a fatal error.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("redisserver: listen %s: %w", s.address, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return lis.Close()
	})

	g.Go(func() error {
		return s.acceptLoop(gctx, lis)
	})

	if s.masterAddress != "" {
		g.Go(func() error {
			return s.runMasterLink(gctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("redisserver: serve: %w", err)
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, lis net.Listener) error {
	for {
		nc, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("redisserver: accept: %w", err)
		}
		go func() {
			if err := s.handler(ctx, nc, role.Client, s); err != nil {
				_ = err // per-connection errors never propagate to other peers
			}
		}()
	}
}

// runMasterLink dials the upstream primary once and serves the resulting
// connection with role.Master; the handler performs the replica handshake
// itself before looping on the command stream.
func (s *Server) runMasterLink(ctx context.Context) error {
	nc, err := (&net.Dialer{}).DialContext(ctx, "tcp", s.masterAddress)
	if err != nil {
		return fmt.Errorf("redisserver: dial master %s: %w", s.masterAddress, err)
	}
	return s.handler(ctx, nc, role.Master, s)
}
