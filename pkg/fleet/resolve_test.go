package fleet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"proxy-fleet/pkg/model"
)

func nodeSet(nodes ...model.NodeInfo) map[string]model.NodeInfo {
	out := make(map[string]model.NodeInfo, len(nodes))
	for _, n := range nodes {
		out[n.Name] = n
	}
	return out
}

func TestResolveTerminalChain(t *testing.T) {
	nodes := nodeSet(
		model.NodeInfo{Name: "Proxy", Type: "Selector", Now: "Auto"},
		model.NodeInfo{Name: "Auto", Type: "URLTest", Now: "HK-1"},
		model.NodeInfo{Name: "HK-1", Type: "Shadowsocks"},
	)
	require.Equal(t, "HK-1", resolveTerminal(nodes, "Proxy"))
	require.Equal(t, "HK-1", resolveTerminal(nodes, "Auto"))
	require.Equal(t, "HK-1", resolveTerminal(nodes, "HK-1"))
}

func TestResolveTerminalSelfLoop(t *testing.T) {
	nodes := nodeSet(model.NodeInfo{Name: "Auto", Type: "URLTest", Now: "Auto"})
	require.Equal(t, "Auto", resolveTerminal(nodes, "Auto"))
}

func TestResolveTerminalUnknownName(t *testing.T) {
	nodes := nodeSet(model.NodeInfo{Name: "Proxy", Now: "Gone"})
	require.Equal(t, "Nope", resolveTerminal(nodes, "Nope"))
}

func TestResolveTerminalDanglingPointer(t *testing.T) {
	// A pointer to a name absent from the index stops at the last known node.
	nodes := nodeSet(
		model.NodeInfo{Name: "Proxy", Type: "Selector", Now: "Auto"},
		model.NodeInfo{Name: "Auto", Type: "URLTest", Now: "Gone"},
	)
	require.Equal(t, "Auto", resolveTerminal(nodes, "Auto"))
	require.Equal(t, "Auto", resolveTerminal(nodes, "Proxy"))
}

func TestResolveTerminalCycleTerminates(t *testing.T) {
	nodes := nodeSet(
		model.NodeInfo{Name: "A", Now: "B"},
		model.NodeInfo{Name: "B", Now: "A"},
	)
	// Malformed input; the visited guard stops the walk instead of spinning.
	got := resolveTerminal(nodes, "A")
	require.Contains(t, []string{"A", "B"}, got)
}

func TestIsGroup(t *testing.T) {
	nodes := nodeSet(
		model.NodeInfo{Name: "DIRECT", Type: "Direct"},
		model.NodeInfo{Name: "REJECT", Type: "Reject"},
		model.NodeInfo{Name: "LB", Type: "LoadBalance"},
		model.NodeInfo{Name: "Proxy", Type: "Selector", Now: "HK-1"},
		model.NodeInfo{Name: "HK-1", Type: "Shadowsocks"},
	)
	require.True(t, isGroup(nodes, "DIRECT"))
	require.True(t, isGroup(nodes, "REJECT"))
	require.True(t, isGroup(nodes, "LB"))
	require.True(t, isGroup(nodes, "Proxy"))
	require.False(t, isGroup(nodes, "HK-1"))
	require.False(t, isGroup(nodes, "missing"))
}
