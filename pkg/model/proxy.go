package model

// DelaySample is one latency measurement reported by the engine, newest last.
type DelaySample struct {
	Time  string `json:"time"`
	Delay int    `json:"delay"`
}

// ExtraHistory holds per-test-URL measurement history inside a proxy entry.
type ExtraHistory struct {
	History []DelaySample `json:"history,omitempty"`
}

// ProxyNode mirrors one entry of the engine's /proxies map. Groups carry Now
// (currently selected member) and All; concrete nodes carry history only.
type ProxyNode struct {
	Name     string                  `json:"name"`
	Type     string                  `json:"type"`
	UDP      bool                    `json:"udp"`
	XUDP     bool                    `json:"xudp"`
	TFO      bool                    `json:"tfo"`
	Now      string                  `json:"now,omitempty"`
	All      []string                `json:"all,omitempty"`
	History  []DelaySample           `json:"history,omitempty"`
	Extra    map[string]ExtraHistory `json:"extra,omitempty"`
	Provider string                  `json:"provider,omitempty"`
}

// ProxyProvider is a named source of proxy nodes.
type ProxyProvider struct {
	Name        string      `json:"name"`
	VehicleType string      `json:"vehicleType"`
	Proxies     []ProxyNode `json:"proxies"`
}
