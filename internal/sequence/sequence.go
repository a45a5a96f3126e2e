// Package sequence drives the two power-cycle workflows. Each sequencer is
// a single linear state machine composing the precondition checker, the
// cluster gateway, the wait/retry primitive, the durable state stores, and
// the notification fan-out. No other component carries cross-cutting
// workflow knowledge.
package sequence

import (
	"github.com/jonboulle/clockwork"

	"github.com/powerfold/powerfold/internal/cluster"
	"github.com/powerfold/powerfold/internal/config"
	"github.com/powerfold/powerfold/internal/logging"
	"github.com/powerfold/powerfold/internal/notify"
	"github.com/powerfold/powerfold/internal/power"
	"github.com/powerfold/powerfold/internal/probe"
	"github.com/powerfold/powerfold/internal/state"
	"github.com/powerfold/powerfold/internal/wake"
)

// Deps bundles the collaborators both sequencers compose. Everything is an
// interface or value constructed once at startup; tests substitute fakes.
type Deps struct {
	Config   *config.Config
	Gateway  cluster.Gateway
	Prober   probe.Prober
	Charge   power.ChargeReader
	Waker    wake.Waker
	Snapshot *state.SnapshotStore
	Lock     state.Lock
	Notifier notify.Notifier
	Clock    clockwork.Clock
	Logger   *logging.Logger
}

// managedSet returns cluster-reported nodes minus the configured exclusion
// set, preserving API-reported order. Excluded nodes are never sent a
// shutdown command and their guests are never touched.
func managedSet(nodes []cluster.Node, cfg *config.ClusterConfig) []cluster.Node {
	managed := make([]cluster.Node, 0, len(nodes))
	for _, n := range nodes {
		if !cfg.IsExcluded(n.Name) {
			managed = append(managed, n)
		}
	}
	return managed
}
