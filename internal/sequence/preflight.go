package sequence

import (
	"context"
	"fmt"

	"github.com/powerfold/powerfold/internal/flow"
)

// Preflight verifies the preconditions both workflows gate on: network
// reachability, cluster API reachability, and power-reserve sufficiency.
type Preflight struct {
	deps Deps
}

// NewPreflight creates a checker over the shared collaborators
func NewPreflight(deps Deps) *Preflight {
	return &Preflight{deps: deps}
}

// AwaitNetworkReachable waits for every configured probe target, fail-fast:
// any single target's timeout aborts the whole workflow. A workflow must
// not proceed on a degraded network.
func (p *Preflight) AwaitNetworkReachable(ctx context.Context) error {
	cfg := p.deps.Config.Network
	for _, target := range cfg.ProbeTargets {
		err := flow.WaitUntil(ctx, p.deps.Clock, p.deps.Logger, flow.Poll{
			Name:     "network " + target,
			Interval: cfg.ProbeInterval,
			Timeout:  cfg.ProbeTimeout,
		}, func(ctx context.Context) (bool, error) {
			return p.deps.Prober.Reachable(ctx, target), nil
		})
		if err != nil {
			return flow.WrapError(flow.KindNetworkUnreachable,
				fmt.Sprintf("probe target %s never answered", target), err)
		}
	}
	return nil
}

// AwaitClusterAPIBounded waits for the cluster API within the shutdown
// path's budget. An unreachable API here is fatal: nothing destructive has
// happened yet and nothing destructive may start.
func (p *Preflight) AwaitClusterAPIBounded(ctx context.Context) error {
	cfg := p.deps.Config.Shutdown
	err := flow.WaitUntil(ctx, p.deps.Clock, p.deps.Logger, flow.Poll{
		Name:     "cluster API",
		Interval: cfg.APIInterval,
		Timeout:  cfg.APITimeout,
	}, p.apiReachable)
	if err != nil {
		return flow.WrapError(flow.KindGatewayUnavailable, "cluster API never became reachable", err)
	}
	return nil
}

// AwaitClusterAPIUnbounded waits for the cluster API with no budget. On the
// startup path the API is expected to be down immediately after a power
// cycle and must be waited out rather than treated as fatal.
func (p *Preflight) AwaitClusterAPIUnbounded(ctx context.Context) error {
	return flow.WaitForever(ctx, p.deps.Clock, p.deps.Logger,
		"cluster API", p.deps.Config.Startup.APIInterval, p.apiReachable)
}

func (p *Preflight) apiReachable(ctx context.Context) (bool, error) {
	if _, err := p.deps.Gateway.ListNodes(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// AwaitPowerReserveSufficient polls the power source's stored charge with no
// budget, proceeding only once the reported charge is a valid percentage at
// or above the configured threshold. An unreadable reading is insufficient,
// never success.
func (p *Preflight) AwaitPowerReserveSufficient(ctx context.Context) error {
	cfg := p.deps.Config.Power
	return flow.WaitForever(ctx, p.deps.Clock, p.deps.Logger,
		"power reserve", cfg.PollInterval,
		func(ctx context.Context) (bool, error) {
			charge, err := p.deps.Charge.Charge(ctx)
			if err != nil {
				return false, flow.WrapError(flow.KindPowerReserveUnknown, "reading power reserve", err)
			}

			if charge < cfg.MinChargePct {
				p.deps.Logger.Info("Power reserve below threshold",
					"charge_pct", charge, "min_pct", cfg.MinChargePct)
				return false, nil
			}
			return true, nil
		})
}
