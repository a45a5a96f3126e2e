package sequence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/powerfold/powerfold/internal/cluster"
	"github.com/powerfold/powerfold/internal/flow"
	"github.com/powerfold/powerfold/internal/logging"
	"github.com/powerfold/powerfold/internal/notify"
	"github.com/powerfold/powerfold/internal/state"
)

// ShutdownSequencer drives the graceful shutdown workflow:
// lock, verify network and API, enumerate the managed set, capture the
// workload snapshot, stop guests, wait for a cluster-wide drain, suppress
// storage healing, then power nodes off one by one and confirm each went
// silent. Every fatal condition aborts the whole sequencer immediately:
// destructive action on only part of the cluster is worse than stopping
// early.
type ShutdownSequencer struct {
	deps   Deps
	pf     *Preflight
	runID  string
	logger *logging.Logger

	healingFailure error // surfaced in the completion report, not fatal
}

// NewShutdownSequencer creates a shutdown workflow instance
func NewShutdownSequencer(deps Deps) *ShutdownSequencer {
	runID := uuid.NewString()
	return &ShutdownSequencer{
		deps:   deps,
		pf:     NewPreflight(deps),
		runID:  runID,
		logger: deps.Logger.With("workflow", "shutdown", "run_id", runID),
	}
}

// Run executes the workflow. The returned error, if any, carries the
// failure kind used as the notification reason tag.
func (s *ShutdownSequencer) Run(ctx context.Context) error {
	ok, err := s.deps.Lock.TryAcquire()
	if err != nil {
		return fmt.Errorf("acquiring shutdown lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another shutdown is already in progress")
	}

	s.event(ctx, notify.PhaseStarted, "", "")
	s.logger.Info("Shutdown workflow starting")

	detail, err := s.run(ctx)
	if err != nil {
		s.logger.Error("Shutdown aborted", "error", err)
		s.event(ctx, notify.PhaseAborted, string(flow.KindOf(err)), err.Error())

		if s.deps.Config.Shutdown.ReleaseLockOnAbort {
			if rerr := s.deps.Lock.Release(); rerr != nil {
				s.logger.Error("Failed to release lock after abort", "error", rerr)
			}
		} else {
			// The marker stays on disk so no startup can race the failed
			// shutdown; an operator has to review and remove it.
			s.logger.Warn("Shutdown lock left in place, manual cleanup required",
				"lock", s.deps.Config.LockPath())
		}
		return err
	}

	if err := s.deps.Lock.Release(); err != nil {
		return fmt.Errorf("releasing shutdown lock: %w", err)
	}

	s.logger.Info("Shutdown workflow complete")
	s.event(ctx, notify.PhaseCompleted, "", detail)
	return nil
}

func (s *ShutdownSequencer) run(ctx context.Context) (string, error) {
	cfg := s.deps.Config

	// NetworkVerified
	if err := s.pf.AwaitNetworkReachable(ctx); err != nil {
		return "", err
	}

	// ApiVerified
	if err := s.pf.AwaitClusterAPIBounded(ctx); err != nil {
		return "", err
	}

	// NodesEnumerated
	nodes, err := s.deps.Gateway.ListNodes(ctx)
	if err != nil {
		return "", err
	}
	managed := managedSet(nodes, &cfg.Cluster)
	s.logger.Info("Enumerated cluster nodes",
		"total", len(nodes), "managed", len(managed), "excluded", len(nodes)-len(managed))

	// SnapshotCaptured: persisted before any stop command so a failure
	// after this point never loses the information needed to recover.
	workloads, err := s.captureWorkloads(ctx, managed)
	if err != nil {
		return "", err
	}
	if err := s.deps.Snapshot.Save(workloads); err != nil {
		return "", err
	}
	s.logger.Info("Workload snapshot captured",
		"nodes", len(workloads), "guests", workloads.Total())

	// GuestsStopRequested
	if err := s.stopGuests(ctx, managed, workloads); err != nil {
		return "", err
	}

	// GuestsDrained
	if err := s.awaitDrain(ctx); err != nil {
		return "", err
	}

	// HealingSuspended: best-effort per flag, but never silent.
	if err := s.deps.Gateway.SetHealingFlags(ctx, true); err != nil {
		if !flow.IsKind(err, flow.KindHealingFlagFailure) {
			return "", err
		}
		s.logger.Error("Storage healing suppression incomplete", "error", err)
		s.healingFailure = err
	}

	// NodesShutdownRequested / NodesConfirmedOffline
	if err := s.shutdownNodes(ctx, managed); err != nil {
		return "", err
	}

	detail := fmt.Sprintf("%d nodes powered off, %d guests captured", len(managed), workloads.Total())
	if s.healingFailure != nil {
		detail += fmt.Sprintf("; healing suppression incomplete: %v", s.healingFailure)
	}
	return detail, nil
}

// captureWorkloads queries every managed node's running guests
func (s *ShutdownSequencer) captureWorkloads(ctx context.Context, managed []cluster.Node) (state.Workloads, error) {
	workloads := make(state.Workloads, len(managed))
	for _, node := range managed {
		nw := state.NodeWorkloads{VMs: []int{}, Containers: []int{}}

		vms, err := s.deps.Gateway.ListGuests(ctx, node.Name, cluster.GuestVM)
		if err != nil {
			return nil, err
		}
		for _, g := range vms {
			if g.Running {
				nw.VMs = append(nw.VMs, g.ID)
			}
		}

		cts, err := s.deps.Gateway.ListGuests(ctx, node.Name, cluster.GuestContainer)
		if err != nil {
			return nil, err
		}
		for _, g := range cts {
			if g.Running {
				nw.Containers = append(nw.Containers, g.ID)
			}
		}

		workloads[node.Name] = nw
	}
	return workloads, nil
}

// stopGuests issues stop requests sequentially per node, VMs then
// containers, each followed by a short settling delay. Confirmation happens
// separately via the cluster-wide drain.
func (s *ShutdownSequencer) stopGuests(ctx context.Context, managed []cluster.Node, workloads state.Workloads) error {
	settle := s.deps.Config.Shutdown.StopSettle
	for _, node := range managed {
		nw := workloads[node.Name]

		for _, id := range nw.VMs {
			s.logger.Info("Stopping virtual machine", "node", node.Name, "vmid", id)
			if err := s.deps.Gateway.StopGuest(ctx, node.Name, cluster.GuestVM, id); err != nil {
				return err
			}
			s.deps.Clock.Sleep(settle)
		}

		for _, id := range nw.Containers {
			s.logger.Info("Stopping container", "node", node.Name, "vmid", id)
			if err := s.deps.Gateway.StopGuest(ctx, node.Name, cluster.GuestContainer, id); err != nil {
				return err
			}
			s.deps.Clock.Sleep(settle)
		}
	}
	return nil
}

// awaitDrain polls the cluster-wide running-guest count down to zero.
// Node power-off must never proceed while guests might still be running.
func (s *ShutdownSequencer) awaitDrain(ctx context.Context) error {
	cfg := s.deps.Config.Shutdown
	err := flow.WaitUntil(ctx, s.deps.Clock, s.logger, flow.Poll{
		Name:     "guest drain",
		Interval: cfg.DrainInterval,
		Timeout:  cfg.DrainTimeout,
	}, func(ctx context.Context) (bool, error) {
		count, err := s.deps.Gateway.CountRunningGuests(ctx)
		if err != nil {
			return false, err
		}
		if count > 0 {
			s.logger.Info("Guests still running", "count", count)
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return flow.WrapError(flow.KindGuestDrainTimeout, "guests never drained", err)
	}
	return nil
}

// shutdownNodes powers managed nodes off sequentially, waiting per node for
// its probe target to go silent before moving on
func (s *ShutdownSequencer) shutdownNodes(ctx context.Context, managed []cluster.Node) error {
	cfg := s.deps.Config
	for _, node := range managed {
		s.logger.Info("Requesting node shutdown", "node", node.Name)
		if err := s.deps.Gateway.ShutdownNode(ctx, node.Name); err != nil {
			return err
		}

		target := cfg.Network.NodeTarget(node.Name)
		err := flow.WaitUntil(ctx, s.deps.Clock, s.logger, flow.Poll{
			Name:     "node " + node.Name + " offline",
			Interval: cfg.Shutdown.NodeOfflineInterval,
			Timeout:  cfg.Shutdown.NodeOfflineTimeout,
		}, func(ctx context.Context) (bool, error) {
			return !s.deps.Prober.Reachable(ctx, target), nil
		})
		if err != nil {
			return flow.WrapError(flow.KindNodeOfflineTimeout,
				fmt.Sprintf("node %s never went offline", node.Name), err)
		}
		s.logger.Info("Node confirmed offline", "node", node.Name)
	}
	return nil
}

func (s *ShutdownSequencer) event(ctx context.Context, phase notify.Phase, reason, detail string) {
	ev := notify.Event{
		RunID:    s.runID,
		Workflow: "shutdown",
		Phase:    phase,
		Reason:   reason,
		Detail:   detail,
		At:       s.deps.Clock.Now(),
	}
	if err := s.deps.Notifier.Notify(ctx, ev); err != nil {
		s.logger.Error("Notification failed", "phase", string(phase), "error", err)
	}
}
