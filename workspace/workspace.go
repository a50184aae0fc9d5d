package workspace

import (
	"github.com/openbuildnet/obncore/depgraph"
	"github.com/openbuildnet/obncore/gc"
)

// Workspace is the assembled result of a Builder.Build call: the
// dependency graph, the installed scheduler, and enough bookkeeping to
// wire up node-side transport endpoints against the same topic/peer
// names the scheduler itself uses (spec.md §6 addressing).
type Workspace struct {
	Name      string
	Graph     *depgraph.Graph
	Scheduler *gc.Scheduler
	Nodes     []string
	Ports     map[string]PortSpec
	Conns     []ConnSpec
}

// DirectResolver builds a transport/direct.Resolver from a static
// peer-name -> base-URL table (peer names are the same
// workspace/_smn_/<node> strings the broker transport uses as topics),
// for workspaces using the direct-wire transport variant instead.
func DirectResolver(peerURLs map[string]string) func(peer string) (string, bool) {
	return func(peer string) (string, bool) {
		url, ok := peerURLs[peer]
		return url, ok
	}
}
