package fleet

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"proxy-fleet/pkg/model"
)

// GlobalGroup is the engine's well-known top group whose member list fixes
// the display order of the proxy list.
const GlobalGroup = "GLOBAL"

// The engine's default provider holds nodes owned directly by the config; it
// is hidden from the provider list but its nodes stay in the node index.
const defaultProvider = "default"
const compatibleVehicle = "Compatible"

// Refresh fetches proxies and providers concurrently, rebuilds the snapshot
// and publishes it. Either fetch failing aborts the whole refresh and keeps
// the previous snapshot untouched.
func (m *Manager) Refresh(ctx context.Context) error {
	var (
		proxies   map[string]model.ProxyNode
		providers map[string]model.ProxyProvider
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		proxies, err = m.engine.Proxies(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		providers, err = m.engine.Providers(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	snap := buildSnapshot(proxies, providers, m.Settings().TestURL)
	m.publish(snap)
	return nil
}

// buildSnapshot merges the raw engine maps into one immutable snapshot.
func buildSnapshot(proxies map[string]model.ProxyNode, providers map[string]model.ProxyProvider, testURL string) *model.Snapshot {
	// Rank by the GLOBAL member list, GLOBAL itself last. Names outside the
	// list rank -1 and therefore sort before every ranked entry.
	rank := make(map[string]int)
	for i, name := range proxies[GlobalGroup].All {
		rank[name] = i
	}
	rank[GlobalGroup] = len(rank)

	var top []model.ProxyNode
	for name, p := range proxies {
		if p.Name == "" {
			p.Name = name
		}
		if len(p.All) > 0 {
			top = append(top, p)
		}
	}
	// Map iteration order is random; fix the pre-sort encounter order by name
	// so unranked entries keep a deterministic relative order.
	sort.Slice(top, func(i, j int) bool { return top[i].Name < top[j].Name })
	sort.SliceStable(top, func(i, j int) bool { return rankOf(rank, top[i].Name) < rankOf(rank, top[j].Name) })

	var provs []model.ProxyProvider
	for name, p := range providers {
		if p.Name == "" {
			p.Name = name
		}
		if p.Name == defaultProvider || p.VehicleType == compatibleVehicle {
			continue
		}
		provs = append(provs, p)
	}
	sort.Slice(provs, func(i, j int) bool { return provs[i].Name < provs[j].Name })

	nodes := make(map[string]model.NodeInfo, len(proxies))
	latency := make(map[string]int, len(proxies))
	index := func(p model.ProxyNode) {
		nodes[p.Name] = model.NodeInfo{
			Name:     p.Name,
			Type:     p.Type,
			UDP:      p.UDP,
			XUDP:     p.XUDP,
			TFO:      p.TFO,
			Provider: p.Provider,
			Now:      p.Now,
			History:  p.History,
		}
		latency[p.Name] = DeriveLatency(p, testURL, true)
	}
	for name, p := range proxies {
		if p.Name == "" {
			p.Name = name
		}
		index(p)
	}
	// Provider nodes join the index unless the engine already reported a node
	// of the same name; first seen wins.
	for _, prov := range provs {
		for _, p := range prov.Proxies {
			if _, ok := nodes[p.Name]; ok {
				continue
			}
			p.Provider = prov.Name
			index(p)
		}
	}

	return &model.Snapshot{
		Proxies:   top,
		Providers: provs,
		Nodes:     nodes,
		Latency:   latency,
	}
}

func rankOf(rank map[string]int, name string) int {
	if r, ok := rank[name]; ok {
		return r
	}
	return -1
}
