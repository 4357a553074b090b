package model

// Snapshot is the atomic unit of truth produced by a refresh. It is replaced
// wholesale on every refresh and never mutated in place, so readers always see
// Nodes and Latency from the same generation.
type Snapshot struct {
	Proxies   []ProxyNode         `json:"proxies"`
	Providers []ProxyProvider     `json:"providers"`
	Nodes     map[string]NodeInfo `json:"nodes"`
	Latency   map[string]int      `json:"latency"`
}
