// Package role defines the three-way classification a connection can have
// with respect to the server it is attached to.
package role

// Role classifies a connection the way the command-execution contract
// needs to see it: whether responses are expected, and whether the
// connection is the upstream link a replica uses to receive commands.
type Role int

const (
	// Client is an ordinary RESP client.
	Client Role = iota
	// Master is the upstream primary connection of a replica server.
	Master
	// Replica is a connection that issued PSYNC and now receives
	// propagated commands.
	Replica
)

func (r Role) String() string {
	switch r {
	case Client:
		return "client"
	case Master:
		return "master"
	case Replica:
		return "replica"
	}
	return "unknown"
}
