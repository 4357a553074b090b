package fleet

import (
	"strings"

	"proxy-fleet/pkg/model"
)

// Types that behave as groups even though they carry no selection pointer.
var builtinGroupTypes = map[string]bool{
	"direct":      true,
	"reject":      true,
	"loadbalance": true,
}

// resolveTerminal follows selection pointers from name down to the terminal
// concrete node. Unknown names resolve to themselves; a pointer equal to the
// node's own name terminates; a pointer to a name absent from the index stops
// at the last known node. A visited set keeps the walk total even on a
// malformed cyclic snapshot, where it returns the last name reached before
// the revisit.
func resolveTerminal(nodes map[string]model.NodeInfo, name string) string {
	seen := make(map[string]bool)
	cur := name
	for {
		n, ok := nodes[cur]
		if !ok || n.Now == "" || n.Now == cur {
			return cur
		}
		if _, known := nodes[n.Now]; !known {
			return cur
		}
		if seen[cur] {
			return cur
		}
		seen[cur] = true
		cur = n.Now
	}
}

// isGroup reports whether name denotes a group-level entry: either one of the
// built-in group types or any node carrying a selection pointer. Unknown
// names are not groups.
func isGroup(nodes map[string]model.NodeInfo, name string) bool {
	n, ok := nodes[name]
	if !ok {
		return false
	}
	if builtinGroupTypes[strings.ToLower(n.Type)] {
		return true
	}
	return n.Now != ""
}
