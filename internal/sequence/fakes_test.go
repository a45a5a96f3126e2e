package sequence

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/powerfold/powerfold/internal/cluster"
	"github.com/powerfold/powerfold/internal/config"
	"github.com/powerfold/powerfold/internal/flow"
	"github.com/powerfold/powerfold/internal/logging"
	"github.com/powerfold/powerfold/internal/notify"
	"github.com/powerfold/powerfold/internal/state"
)

// recorder collects the externally visible actions of a workflow in order,
// across all fakes, so tests can assert sequencing invariants
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) indexOf(prefix string) int {
	for i, ev := range r.list() {
		if strings.HasPrefix(ev, prefix) {
			return i
		}
	}
	return -1
}

func (r *recorder) lastIndexOf(prefix string) int {
	last := -1
	for i, ev := range r.list() {
		if strings.HasPrefix(ev, prefix) {
			last = i
		}
	}
	return last
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, ev := range r.list() {
		if strings.HasPrefix(ev, prefix) {
			n++
		}
	}
	return n
}

type fakeGateway struct {
	rec *recorder
	mu  sync.Mutex

	nodes             []cluster.Node
	guests            map[string]map[cluster.GuestKind][]cluster.Guest
	counts            []int // successive drain readings; the last repeats
	countIdx          int
	healthSeq         []bool // successive health readings; the last repeats
	healthIdx         int
	listNodesFailures int // fail this many ListNodes calls first
	failSetFlags      bool

	onShutdownNode func(node string)
	onStopGuest    func()
}

func (g *fakeGateway) ListNodes(ctx context.Context) ([]cluster.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rec.add("list-nodes")
	if g.listNodesFailures > 0 {
		g.listNodesFailures--
		return nil, flow.NewError(flow.KindGatewayUnavailable, "api not up yet")
	}
	return g.nodes, nil
}

func (g *fakeGateway) ListGuests(ctx context.Context, node string, kind cluster.GuestKind) ([]cluster.Guest, error) {
	g.rec.add(fmt.Sprintf("list-guests %s %s", node, kind))
	return g.guests[node][kind], nil
}

func (g *fakeGateway) CountRunningGuests(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.countIdx
	if idx >= len(g.counts) {
		idx = len(g.counts) - 1
	}
	g.countIdx++
	count := g.counts[idx]
	g.rec.add(fmt.Sprintf("count %d", count))
	return count, nil
}

func (g *fakeGateway) StartGuest(ctx context.Context, node string, kind cluster.GuestKind, id int) error {
	g.rec.add(fmt.Sprintf("start %s %s %d", node, kind, id))
	return nil
}

func (g *fakeGateway) StopGuest(ctx context.Context, node string, kind cluster.GuestKind, id int) error {
	g.rec.add(fmt.Sprintf("stop %s %s %d", node, kind, id))
	if g.onStopGuest != nil {
		g.onStopGuest()
	}
	return nil
}

func (g *fakeGateway) StartAll(ctx context.Context, node string) error {
	g.rec.add("startall " + node)
	return nil
}

func (g *fakeGateway) ShutdownNode(ctx context.Context, node string) error {
	g.rec.add("shutdown-node " + node)
	if g.onShutdownNode != nil {
		g.onShutdownNode(node)
	}
	return nil
}

func (g *fakeGateway) SetHealingFlags(ctx context.Context, suppress bool) error {
	g.rec.add(fmt.Sprintf("set-flags %v", suppress))
	if g.failSetFlags {
		return flow.NewError(flow.KindHealingFlagFailure, "norebalance refused")
	}
	return nil
}

func (g *fakeGateway) HealthOK(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.healthIdx
	if idx >= len(g.healthSeq) {
		idx = len(g.healthSeq) - 1
	}
	g.healthIdx++
	g.rec.add(fmt.Sprintf("health %v", g.healthSeq[idx]))
	return g.healthSeq[idx], nil
}

type fakeProber struct {
	rec  *recorder
	mu   sync.Mutex
	down map[string]bool
}

func (p *fakeProber) Reachable(ctx context.Context, target string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec.add("probe " + target)
	return !p.down[target]
}

func (p *fakeProber) setDown(target string, down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down == nil {
		p.down = map[string]bool{}
	}
	p.down[target] = down
}

type fakeWaker struct {
	rec *recorder
}

func (w *fakeWaker) Wake(ctx context.Context, mac string) error {
	w.rec.add("wake " + mac)
	return nil
}

type chargeReading struct {
	pct int
	err error
}

type fakeCharge struct {
	rec *recorder
	mu  sync.Mutex
	seq []chargeReading // the last repeats
	idx int
}

func (c *fakeCharge) Charge(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.idx
	if idx >= len(c.seq) {
		idx = len(c.seq) - 1
	}
	c.idx++
	r := c.seq[idx]
	c.rec.add(fmt.Sprintf("charge %d", r.pct))
	return r.pct, r.err
}

type recNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recNotifier) Notify(ctx context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recNotifier) Close() error { return nil }

func (n *recNotifier) phases() []notify.Phase {
	n.mu.Lock()
	defer n.mu.Unlock()
	phases := make([]notify.Phase, 0, len(n.events))
	for _, ev := range n.events {
		phases = append(phases, ev.Phase)
	}
	return phases
}

func (n *recNotifier) find(phase notify.Phase) (notify.Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ev := range n.events {
		if ev.Phase == phase {
			return ev, true
		}
	}
	return notify.Event{}, false
}

// testConfig returns a config with millisecond-scale budgets so whole
// workflows run in a few tens of milliseconds
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Cluster.APIURL = "https://pve1:8006/api2/json"
	cfg.Cluster.TokenID = "powerfold@pam!nut"
	cfg.Cluster.TokenSecret = "secret"
	cfg.Cluster.ExcludeNodes = []string{"nuthost"}

	cfg.Network.ProbeTargets = []string{"gw:443"}
	cfg.Network.ProbeInterval = time.Millisecond
	cfg.Network.ProbeTimeout = 20 * time.Millisecond

	cfg.Power.MinChargePct = 80
	cfg.Power.PollInterval = time.Millisecond

	cfg.Wake.Nodes = map[string]string{
		"pve1": "aa:bb:cc:dd:ee:01",
		"pve2": "aa:bb:cc:dd:ee:02",
	}
	cfg.Wake.BootSettle = time.Millisecond

	cfg.Shutdown.APITimeout = 50 * time.Millisecond
	cfg.Shutdown.APIInterval = time.Millisecond
	cfg.Shutdown.StopSettle = 0
	cfg.Shutdown.DrainTimeout = 50 * time.Millisecond
	cfg.Shutdown.DrainInterval = time.Millisecond
	cfg.Shutdown.NodeOfflineTimeout = 50 * time.Millisecond
	cfg.Shutdown.NodeOfflineInterval = time.Millisecond

	cfg.Startup.LockPollInterval = time.Millisecond
	cfg.Startup.LockSettle = 5 * time.Millisecond
	cfg.Startup.APIInterval = time.Millisecond
	cfg.Startup.HealthAttempts = 3
	cfg.Startup.HealthInterval = time.Millisecond
	cfg.Startup.StartSettle = 0

	return cfg
}

type harness struct {
	rec      *recorder
	cfg      *config.Config
	gateway  *fakeGateway
	prober   *fakeProber
	charge   *fakeCharge
	waker    *fakeWaker
	snapshot *state.SnapshotStore
	lock     *state.MemoryLock
	notifier *recNotifier
	deps     Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rec := &recorder{}
	cfg := testConfig()

	h := &harness{
		rec: rec,
		cfg: cfg,
		gateway: &fakeGateway{
			rec: rec,
			nodes: []cluster.Node{
				{Name: "pve1", Online: true},
				{Name: "pve2", Online: true},
				{Name: "nuthost", Online: true},
			},
			guests: map[string]map[cluster.GuestKind][]cluster.Guest{
				"pve1": {
					cluster.GuestVM: {
						{ID: 100, Kind: cluster.GuestVM, Node: "pve1", Running: true},
						{ID: 101, Kind: cluster.GuestVM, Node: "pve1", Running: true},
						{ID: 102, Kind: cluster.GuestVM, Node: "pve1", Running: false},
					},
					cluster.GuestContainer: {
						{ID: 200, Kind: cluster.GuestContainer, Node: "pve1", Running: true},
					},
				},
				"pve2": {
					cluster.GuestVM: {
						{ID: 110, Kind: cluster.GuestVM, Node: "pve2", Running: true},
					},
					cluster.GuestContainer: {},
				},
				"nuthost": {
					cluster.GuestVM: {
						{ID: 900, Kind: cluster.GuestVM, Node: "nuthost", Running: true},
					},
					cluster.GuestContainer: {},
				},
			},
			counts:    []int{0},
			healthSeq: []bool{true},
		},
		prober:   &fakeProber{rec: rec},
		charge:   &fakeCharge{rec: rec, seq: []chargeReading{{pct: 95}}},
		waker:    &fakeWaker{rec: rec},
		snapshot: state.NewSnapshotStore(filepath.Join(t.TempDir(), "workloads.json")),
		lock:     state.NewMemoryLock(),
		notifier: &recNotifier{},
	}

	h.deps = Deps{
		Config:   cfg,
		Gateway:  h.gateway,
		Prober:   h.prober,
		Charge:   h.charge,
		Waker:    h.waker,
		Snapshot: h.snapshot,
		Lock:     h.lock,
		Notifier: h.notifier,
		Clock:    clockwork.NewRealClock(),
		Logger:   logging.NewWithWriter(nullWriter{}, zerolog.Disabled),
	}
	return h
}

// markOfflineOnShutdown wires the gateway so a node's probe target goes
// silent once its shutdown is requested
func (h *harness) markOfflineOnShutdown() {
	h.gateway.onShutdownNode = func(node string) {
		h.prober.setDown(h.cfg.Network.NodeTarget(node), true)
	}
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
