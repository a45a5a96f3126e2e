// Package cluster abstracts the hypervisor cluster API consumed by the
// power-cycle sequencers: node and guest enumeration, guest lifecycle,
// node power-off, storage-healing flag control, and health.
package cluster

import "context"

// GuestKind distinguishes virtual machines from containers
type GuestKind string

const (
	GuestVM        GuestKind = "qemu"
	GuestContainer GuestKind = "lxc"
)

// Node represents a cluster member
type Node struct {
	Name   string
	Online bool
}

// Guest represents a workload on a node. Running reflects the state observed
// at query time and is not cached beyond the query that produced it.
type Guest struct {
	ID      int
	Name    string
	Kind    GuestKind
	Node    string
	Running bool
}

// HealingFlags are the three storage suppression switches toggled together
// around a planned outage.
var HealingFlags = []string{"noout", "norebalance", "norecover"}

// Gateway is the cluster API surface the sequencers consume. Every operation
// fails with a flow.KindGatewayUnavailable error on transport or
// authentication problems, so callers can distinguish an unreachable API
// from a well-formed empty or false result.
type Gateway interface {
	// ListNodes returns cluster members in API-reported order.
	ListNodes(ctx context.Context) ([]Node, error)

	// ListGuests returns the guests of one kind on one node, with their
	// observed running state.
	ListGuests(ctx context.Context, node string, kind GuestKind) ([]Guest, error)

	// CountRunningGuests returns the cluster-wide number of running guests
	// of any kind.
	CountRunningGuests(ctx context.Context) (int, error)

	// StartGuest requests a guest start. Fire-and-acknowledge: confirming
	// the effect is the caller's job, via polling.
	StartGuest(ctx context.Context, node string, kind GuestKind, id int) error

	// StopGuest requests a guest stop. Fire-and-acknowledge, as StartGuest.
	StopGuest(ctx context.Context, node string, kind GuestKind, id int) error

	// StartAll asks a node to start every guest marked for boot-time start.
	StartAll(ctx context.Context, node string) error

	// ShutdownNode requests a graceful node power-off. Does not block until
	// the node is offline.
	ShutdownNode(ctx context.Context, node string) error

	// SetHealingFlags toggles all three storage-healing suppression flags.
	// Implementations may issue them sequentially but must report partial
	// application as a flow.KindHealingFlagFailure error naming the flags
	// that failed.
	SetHealingFlags(ctx context.Context, suppress bool) error

	// HealthOK reports whether the storage cluster health is OK.
	HealthOK(ctx context.Context) (bool, error)
}
