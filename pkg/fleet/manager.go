package fleet

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"proxy-fleet/pkg/archive"
	"proxy-fleet/pkg/model"
)

// Engine is the external-controller surface the manager drives. Exact wire
// framing lives in pkg/engine; the manager only depends on this contract.
type Engine interface {
	Proxies(ctx context.Context) (map[string]model.ProxyNode, error)
	Providers(ctx context.Context) (map[string]model.ProxyProvider, error)
	TestNodeDelay(ctx context.Context, node, provider, testURL string, timeoutMs int) (int, error)
	TestGroupDelay(ctx context.Context, group, testURL string, timeoutMs int) error
	UpdateProvider(ctx context.Context, name string) error
	HealthCheckProvider(ctx context.Context, name string) error
	SelectGroupMember(ctx context.Context, group, node string) error
	Connections(ctx context.Context) (model.ConnectionsSnapshot, error)
	CloseConnection(ctx context.Context, id string) error
}

// Manager owns the fleet snapshot and coordinates guarded test/update
// operations against the engine. All shared state is published through an
// atomic pointer swap; readers never observe a torn snapshot.
type Manager struct {
	engine  Engine
	archive archive.Store // optional

	mu       sync.RWMutex
	settings model.Settings

	snap atomic.Pointer[model.Snapshot]

	nodeTests       *KeyTracker
	groupTests      *KeyTracker
	providerChecks  *KeyTracker
	providerUpdates *KeyTracker
	allUpdating     atomic.Bool

	subMu sync.RWMutex
	subs  []func(*model.Snapshot)
}

func NewManager(engine Engine, settings model.Settings, ar archive.Store) *Manager {
	m := &Manager{
		engine:          engine,
		archive:         ar,
		settings:        settings,
		nodeTests:       NewKeyTracker(),
		groupTests:      NewKeyTracker(),
		providerChecks:  NewKeyTracker(),
		providerUpdates: NewKeyTracker(),
	}
	m.snap.Store(&model.Snapshot{
		Nodes:   map[string]model.NodeInfo{},
		Latency: map[string]int{},
	})
	return m
}

// Current returns the latest published snapshot.
func (m *Manager) Current() *model.Snapshot {
	return m.snap.Load()
}

// Subscribe registers fn to run after every snapshot publish.
func (m *Manager) Subscribe(fn func(*model.Snapshot)) {
	m.subMu.Lock()
	m.subs = append(m.subs, fn)
	m.subMu.Unlock()
}

func (m *Manager) publish(s *model.Snapshot) {
	m.snap.Store(s)
	m.notify(s)
}

func (m *Manager) notify(s *model.Snapshot) {
	m.subMu.RLock()
	subs := m.subs
	m.subMu.RUnlock()
	for _, fn := range subs {
		fn(s)
	}
}

func (m *Manager) Settings() model.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

func (m *Manager) SetSettings(s model.Settings) {
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
}

// ResolveTerminal walks selection pointers down to the concrete node name.
func (m *Manager) ResolveTerminal(name string) string {
	return resolveTerminal(m.Current().Nodes, name)
}

// LatencyByName returns the derived latency of the terminal node behind name.
func (m *Manager) LatencyByName(name string) int {
	s := m.Current()
	if d, ok := s.Latency[resolveTerminal(s.Nodes, name)]; ok {
		return d
	}
	return NotConnected
}

// IsGroup reports whether name denotes a group-level entry.
func (m *Manager) IsGroup(name string) bool {
	return isGroup(m.Current().Nodes, name)
}

// NodeTesting, GroupTesting, ProviderChecking and ProviderUpdating expose the
// per-namespace busy maps for observers.
func (m *Manager) NodeTesting() map[string]bool      { return m.nodeTests.Busy() }
func (m *Manager) GroupTesting() map[string]bool     { return m.groupTests.Busy() }
func (m *Manager) ProviderChecking() map[string]bool { return m.providerChecks.Busy() }
func (m *Manager) ProviderUpdating() map[string]bool { return m.providerUpdates.Busy() }

// AllUpdating reports whether an update-all-providers run is in progress.
func (m *Manager) AllUpdating() bool { return m.allUpdating.Load() }

// storeLatency republishes the current snapshot with one latency cell
// replaced. Copy-on-write keeps the Nodes/Latency pairing atomic; the swap
// retries so a concurrent publish for a different key is never lost.
func (m *Manager) storeLatency(name string, delay int) {
	for {
		old := m.snap.Load()
		latency := make(map[string]int, len(old.Latency)+1)
		for k, v := range old.Latency {
			latency[k] = v
		}
		latency[name] = delay
		next := *old
		next.Latency = latency
		if m.snap.CompareAndSwap(old, &next) {
			m.notify(&next)
			return
		}
	}
}

func (m *Manager) record(entry archive.Entry) {
	if m.archive == nil {
		return
	}
	if err := m.archive.Record(entry); err != nil {
		log.Printf("archive record failed: %v", err)
	}
}

// TestNodeLatency runs a single-node delay test. The name is resolved to its
// terminal node first so the test hits the concrete node, not a group alias.
// A failed test writes NotConnected instead of leaving a stale value; the
// failure itself is recovered here, not returned.
func (m *Manager) TestNodeLatency(ctx context.Context, proxyName, providerName string) error {
	target := m.ResolveTerminal(proxyName)
	return m.nodeTests.Run(target, func() error {
		st := m.Settings()
		delay, err := m.engine.TestNodeDelay(ctx, target, providerName, st.TestURL, st.TestTimeoutMs)
		if err != nil {
			log.Printf("latency test %s failed: %v", target, err)
			m.storeLatency(target, NotConnected)
			m.record(archive.Entry{Node: target, URL: st.TestURL, DelayMs: NotConnected})
			return nil
		}
		m.storeLatency(target, delay)
		m.record(archive.Entry{Node: target, URL: st.TestURL, DelayMs: delay, OK: true})
		return nil
	})
}

// TestGroupLatency triggers the engine's group-wide test, then refreshes to
// absorb every member's updated history. A test failure propagates and skips
// the refresh; the guard key is released either way.
func (m *Manager) TestGroupLatency(ctx context.Context, groupName string) error {
	return m.groupTests.Run(groupName, func() error {
		st := m.Settings()
		if err := m.engine.TestGroupDelay(ctx, groupName, st.TestURL, st.TestTimeoutMs); err != nil {
			return err
		}
		return m.Refresh(ctx)
	})
}

// UpdateProvider is best-effort: an update failure is swallowed and the
// refresh runs regardless.
func (m *Manager) UpdateProvider(ctx context.Context, providerName string) error {
	return m.providerUpdates.Run(providerName, func() error {
		if err := m.engine.UpdateProvider(ctx, providerName); err != nil {
			log.Printf("provider %s update failed: %v", providerName, err)
		}
		return m.Refresh(ctx)
	})
}

// HealthCheckProvider runs the provider health check and refreshes; failures
// propagate.
func (m *Manager) HealthCheckProvider(ctx context.Context, providerName string) error {
	return m.providerChecks.Run(providerName, func() error {
		if err := m.engine.HealthCheckProvider(ctx, providerName); err != nil {
			return err
		}
		return m.Refresh(ctx)
	})
}

// UpdateAllProviders fires every provider update concurrently, bypassing the
// per-provider guard, waits for all of them to settle and refreshes once.
// The all-updating flag is cleared even when the refresh fails.
func (m *Manager) UpdateAllProviders(ctx context.Context) error {
	m.allUpdating.Store(true)
	defer m.allUpdating.Store(false)

	var wg sync.WaitGroup
	for _, p := range m.Current().Providers {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := m.engine.UpdateProvider(ctx, name); err != nil {
				log.Printf("provider %s update failed: %v", name, err)
			}
		}(p.Name)
	}
	wg.Wait()
	return m.Refresh(ctx)
}

// SelectNode switches the group's selected member and refreshes. When the
// auto-close preference is on, connections routed through the group are
// closed fire-and-forget; close errors are ignored here.
func (m *Manager) SelectNode(ctx context.Context, groupName, targetNodeName string) error {
	if err := m.engine.SelectGroupMember(ctx, groupName, targetNodeName); err != nil {
		return err
	}
	if err := m.Refresh(ctx); err != nil {
		return err
	}
	if !m.Settings().AutoCloseConnections {
		return nil
	}
	conns, err := m.engine.Connections(ctx)
	if err != nil {
		log.Printf("connections fetch after select failed: %v", err)
		return nil
	}
	for _, c := range conns.Connections {
		if !chainContains(c.Chains, groupName) {
			continue
		}
		go func(id string) {
			_ = m.engine.CloseConnection(context.Background(), id)
		}(c.ID)
	}
	return nil
}

func chainContains(chains []string, name string) bool {
	for _, c := range chains {
		if c == name {
			return true
		}
	}
	return false
}
