package model

// NodeInfo is the flattened per-node projection served to dashboards.
// Now is the selection pointer (a group points at its selected member, a
// concrete node carries an empty pointer); numeric latency is deliberately
// kept out of this struct and lives in Snapshot.Latency.
type NodeInfo struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	UDP      bool          `json:"udp"`
	XUDP     bool          `json:"xudp"`
	TFO      bool          `json:"tfo"`
	Provider string        `json:"provider,omitempty"`
	Now      string        `json:"now,omitempty"`
	History  []DelaySample `json:"history,omitempty"`
}
