package fleet

import "proxy-fleet/pkg/model"

// NotConnected marks a node with no usable measurement. Real delays are
// always positive milliseconds; zero-delay samples do not count as a
// measurement and fall through like a missing one.
const NotConnected = -1

// DeriveLatency picks the effective delay for a node. The history recorded
// under testURL wins; when it has no usable sample and fallbackDefault is
// set, the node's default history is consulted instead.
func DeriveLatency(n model.ProxyNode, testURL string, fallbackDefault bool) int {
	if hist := n.Extra[testURL].History; len(hist) > 0 {
		if d := hist[len(hist)-1].Delay; d > 0 {
			return d
		}
	}
	if !fallbackDefault {
		return NotConnected
	}
	if len(n.History) > 0 {
		if d := n.History[len(n.History)-1].Delay; d > 0 {
			return d
		}
	}
	return NotConnected
}
