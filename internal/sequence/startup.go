package sequence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/powerfold/powerfold/internal/cluster"
	"github.com/powerfold/powerfold/internal/flow"
	"github.com/powerfold/powerfold/internal/logging"
	"github.com/powerfold/powerfold/internal/notify"
)

// StartupSequencer drives the coordinated startup workflow:
// wait out any in-progress shutdown, verify network and power reserve, wake
// the nodes, wait for the API, resume storage healing, wait on cluster
// health, restore the snapshotted workloads, and finally apply each node's
// boot-time autostarts. API unreachability and poor storage health are
// expected transient conditions here, not aborts.
type StartupSequencer struct {
	deps   Deps
	pf     *Preflight
	runID  string
	logger *logging.Logger

	healingFailure error // surfaced in the completion report
}

// NewStartupSequencer creates a startup workflow instance
func NewStartupSequencer(deps Deps) *StartupSequencer {
	runID := uuid.NewString()
	return &StartupSequencer{
		deps:   deps,
		pf:     NewPreflight(deps),
		runID:  runID,
		logger: deps.Logger.With("workflow", "startup", "run_id", runID),
	}
}

// Run executes the workflow
func (s *StartupSequencer) Run(ctx context.Context) error {
	s.event(ctx, notify.PhaseStarted, "", "")
	s.logger.Info("Startup workflow starting")

	detail, err := s.run(ctx)
	if err != nil {
		s.logger.Error("Startup aborted", "error", err)
		s.event(ctx, notify.PhaseAborted, string(flow.KindOf(err)), err.Error())
		return err
	}

	s.logger.Info("Startup workflow complete")
	s.event(ctx, notify.PhaseCompleted, "", detail)
	return nil
}

func (s *StartupSequencer) run(ctx context.Context) (string, error) {
	cfg := s.deps.Config

	// AwaitShutdownLockClear: never wake nodes while a shutdown might
	// still be in its tail.
	if err := s.awaitLockClear(ctx); err != nil {
		return "", err
	}

	// NetworkVerified
	if err := s.pf.AwaitNetworkReachable(ctx); err != nil {
		return "", err
	}

	// PowerReserveVerified: waking the cluster below threshold would draw
	// down reserve needed for an imminent shutdown to complete safely.
	if err := s.pf.AwaitPowerReserveSufficient(ctx); err != nil {
		return "", err
	}

	// NodesWoken
	if err := s.wakeNodes(ctx); err != nil {
		return "", err
	}

	// BootDelay
	s.logger.Info("Waiting for nodes to boot", "settle", cfg.Wake.BootSettle)
	s.deps.Clock.Sleep(cfg.Wake.BootSettle)

	// ApiVerified: expected to be unreachable right after wake, waited out.
	if err := s.pf.AwaitClusterAPIUnbounded(ctx); err != nil {
		return "", err
	}

	// HealingResumed: suppression must not outlive the outage, regardless
	// of how the rest of the startup goes.
	s.resumeHealing(ctx)

	// ClusterHealthOK
	healthy := s.awaitHealth(ctx)

	// GuestsRestored
	restored, err := s.restoreGuests(ctx)
	if err != nil {
		return "", err
	}

	// AutoStartApplied: safety net for guests not captured in the snapshot,
	// e.g. newly added workloads configured to autostart.
	started, err := s.applyAutoStart(ctx)
	if err != nil {
		return "", err
	}

	// Healing flags must be clear before the workflow is complete.
	if s.healingFailure != nil {
		s.logger.Info("Retrying storage healing resume")
		s.healingFailure = nil
		s.resumeHealing(ctx)
	}

	detail := fmt.Sprintf("%d guests restored, autostart applied on %d nodes", restored, started)
	if !healthy {
		detail += "; storage health never reached OK"
	}
	if s.healingFailure != nil {
		detail += fmt.Sprintf("; healing resume incomplete: %v", s.healingFailure)
	}
	return detail, nil
}

// awaitLockClear blocks while a shutdown holds the advisory lock, then
// applies a settling delay so a shutdown still finishing its tail (nodes
// completing power-off) cannot be raced.
func (s *StartupSequencer) awaitLockClear(ctx context.Context) error {
	held, err := s.deps.Lock.IsHeld()
	if err != nil {
		return fmt.Errorf("checking shutdown lock: %w", err)
	}
	if !held {
		return nil
	}

	s.logger.Info("Shutdown in progress, waiting for lock to clear")
	err = flow.WaitForever(ctx, s.deps.Clock, s.logger,
		"shutdown lock clear", s.deps.Config.Startup.LockPollInterval,
		func(ctx context.Context) (bool, error) {
			held, err := s.deps.Lock.IsHeld()
			if err != nil {
				return false, err
			}
			return !held, nil
		})
	if err != nil {
		return err
	}

	s.logger.Info("Lock cleared, settling", "settle", s.deps.Config.Startup.LockSettle)
	s.deps.Clock.Sleep(s.deps.Config.Startup.LockSettle)
	return nil
}

// wakeNodes sends one wake signal per configured node, in name order
func (s *StartupSequencer) wakeNodes(ctx context.Context) error {
	nodes := make([]string, 0, len(s.deps.Config.Wake.Nodes))
	for node := range s.deps.Config.Wake.Nodes {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	for _, node := range nodes {
		mac := s.deps.Config.Wake.Nodes[node]
		s.logger.Info("Sending wake signal", "node", node, "mac", mac)
		if err := s.deps.Waker.Wake(ctx, mac); err != nil {
			return flow.WrapError(flow.KindNetworkUnreachable,
				fmt.Sprintf("wake signal for %s failed", node), err)
		}
	}
	return nil
}

func (s *StartupSequencer) resumeHealing(ctx context.Context) {
	if err := s.deps.Gateway.SetHealingFlags(ctx, false); err != nil {
		s.logger.Error("Storage healing resume incomplete", "error", err)
		s.healingFailure = err
	}
}

// awaitHealth polls cluster health for a bounded number of attempts. If
// health never reaches OK the condition is logged and the workflow proceeds
// anyway: restoring workloads is judged more valuable than blocking on
// storage health.
func (s *StartupSequencer) awaitHealth(ctx context.Context) bool {
	cfg := s.deps.Config.Startup
	err := flow.WaitUntil(ctx, s.deps.Clock, s.logger, flow.Poll{
		Name:     "cluster health",
		Interval: cfg.HealthInterval,
		Timeout:  time.Duration(cfg.HealthAttempts) * cfg.HealthInterval,
	}, func(ctx context.Context) (bool, error) {
		return s.deps.Gateway.HealthOK(ctx)
	})
	if err != nil {
		s.logger.Warn("Cluster health never reached OK, proceeding with restore", "error", err)
		return false
	}
	return true
}

// restoreGuests starts every guest recorded in the workload snapshot, VMs
// before containers, then deletes the snapshot. With no snapshot present
// this is a no-op: a cold start, not a resumed cycle.
func (s *StartupSequencer) restoreGuests(ctx context.Context) (int, error) {
	workloads, err := s.deps.Snapshot.Load()
	if err != nil {
		return 0, err
	}
	if workloads == nil {
		s.logger.Info("No workload snapshot, skipping restore")
		return 0, nil
	}

	nodes := make([]string, 0, len(workloads))
	for node := range workloads {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	settle := s.deps.Config.Startup.StartSettle
	restored := 0
	for _, node := range nodes {
		nw := workloads[node]

		for _, id := range nw.VMs {
			s.logger.Info("Starting virtual machine", "node", node, "vmid", id)
			if err := s.deps.Gateway.StartGuest(ctx, node, cluster.GuestVM, id); err != nil {
				s.logger.Error("Failed to start virtual machine",
					"node", node, "vmid", id, "error", err)
				continue
			}
			restored++
			s.deps.Clock.Sleep(settle)
		}

		for _, id := range nw.Containers {
			s.logger.Info("Starting container", "node", node, "vmid", id)
			if err := s.deps.Gateway.StartGuest(ctx, node, cluster.GuestContainer, id); err != nil {
				s.logger.Error("Failed to start container",
					"node", node, "vmid", id, "error", err)
				continue
			}
			restored++
			s.deps.Clock.Sleep(settle)
		}
	}

	if err := s.deps.Snapshot.Delete(); err != nil {
		return restored, err
	}
	s.logger.Info("Workload snapshot consumed", "restored", restored)
	return restored, nil
}

// applyAutoStart re-enumerates the managed set and asks each node to start
// its boot-enabled guests
func (s *StartupSequencer) applyAutoStart(ctx context.Context) (int, error) {
	nodes, err := s.deps.Gateway.ListNodes(ctx)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, node := range managedSet(nodes, &s.deps.Config.Cluster) {
		if err := s.deps.Gateway.StartAll(ctx, node.Name); err != nil {
			s.logger.Error("Autostart request failed", "node", node.Name, "error", err)
			continue
		}
		started++
	}
	return started, nil
}

func (s *StartupSequencer) event(ctx context.Context, phase notify.Phase, reason, detail string) {
	ev := notify.Event{
		RunID:    s.runID,
		Workflow: "startup",
		Phase:    phase,
		Reason:   reason,
		Detail:   detail,
		At:       s.deps.Clock.Now(),
	}
	if err := s.deps.Notifier.Notify(ctx, ev); err != nil {
		s.logger.Error("Notification failed", "phase", string(phase), "error", err)
	}
}
