// Package main is a node-runtime host process: it wires a node.Node to
// the direct-wire transport and drives RunStep in a loop, dispatching to
// a Handler. Building the port/connection topology for a real node from a
// textual description is out of scope the same way it is for obn-smn
// (spec.md §1); this binary hosts a node whose behavior is supplied by
// linking in a Handler implementation, the way the teacher's daemons are
// each their own small main package around a shared core.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openbuildnet/obncore/cmn/cos"
	"github.com/openbuildnet/obncore/cmn/nlog"
	"github.com/openbuildnet/obncore/node"
	"github.com/openbuildnet/obncore/transport"
	"github.com/openbuildnet/obncore/transport/direct"
)

var (
	workspaceName string
	nodeName      string
	listenAddr    string
	smnURL        string
	stepTimeout   time.Duration
)

func init() {
	flag.StringVar(&workspaceName, "workspace", "demo", "workspace name")
	flag.StringVar(&nodeName, "node", "", "this node's name (must match the name given to obn-smn's -nodes)")
	flag.StringVar(&listenAddr, "listen", ":8082", "address this node listens on for SMN updates")
	flag.StringVar(&smnURL, "smn-url", "http://localhost:8081", "base URL of the SMN's endpoint")
	flag.DurationVar(&stepTimeout, "step-timeout", 2*time.Second, "RunStep poll timeout")
	nlog.InitFlags(flag.CommandLine)
}

func main() {
	installSignalHandler()
	flag.Parse()
	if nodeName == "" {
		cos.ExitConfigf("missing required -node flag")
	}

	local := transport.SMNToNodeTopic(workspaceName, nodeName)
	own := transport.SMNOwnTopic(workspaceName)
	resolve := singlePeerResolver(own, smnURL)

	tr := direct.New(listenAddr, nil, resolve)

	var n *node.Node
	ep, err := tr.Open(local, func(payload []byte) {
		n.DeliverFromSMN(payload)
	}, func(err error) {
		nlog.Errorf("node %s: transport loss: %v", nodeName, err)
	}, nil)
	if err != nil {
		cos.ExitConfigf("opening node endpoint: %v", err)
	}
	defer ep.Close()

	// The node id is derived from (workspace, name) the same way obn-smn
	// derives it when building its id->name routing table, so neither
	// process has to hand the other a numeric id out of band.
	nodeID := int32(cos.HashNodeName(workspaceName, nodeName))
	h := &logHandler{name: nodeName}
	n = node.New(workspaceName, nodeName, nodeID, own, ep, h)

	nlog.Infof("node %s: listening on %s, SMN at %s", nodeName, listenAddr, smnURL)
	for {
		code, _ := n.RunStep(stepTimeout)
		switch code {
		case node.StepStopped:
			nlog.Infof("node %s: stopped", nodeName)
			return
		case node.StepError:
			cos.ExitLogf("node %s: fatal error, exiting", nodeName)
		}
	}
}

// singlePeerResolver builds a single-peer resolver for the common
// node-process case: the only peer a node ever addresses is its SMN.
func singlePeerResolver(smnPeer, url string) direct.Resolver {
	return func(peer string) (string, bool) {
		if peer == smnPeer {
			return url, true
		}
		return "", false
	}
}

// logHandler is a minimal demo Handler: it logs every callback and keeps
// no simulation state of its own. A real node links in its own Handler.
type logHandler struct{ name string }

func (h *logHandler) OnInit() error {
	nlog.Infof("node %s: INIT", h.name)
	return nil
}

func (h *logHandler) OnUpdateY(t cos.SimTime, mask uint64) error {
	nlog.Infof("node %s: UPDATE_Y t=%d mask=%#x", h.name, t, mask)
	return nil
}

func (h *logHandler) OnUpdateX(t cos.SimTime, mask uint64) error {
	nlog.Infof("node %s: UPDATE_X t=%d mask=%#x", h.name, t, mask)
	return nil
}

func (h *logHandler) OnTerm(reason int32) {
	nlog.Infof("node %s: TERM reason=%d", h.name, reason)
}

func (h *logHandler) OnRCV(portIndex int) {
	nlog.Infof("node %s: RCV port=%d", h.name, portIndex)
}

func (h *logHandler) OnException(err error) {
	nlog.Errorf("node %s: exception: %v", h.name, err)
}

func installSignalHandler() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		nlog.Infof("node: caught signal %s, exiting", sig)
		nlog.Flush()
		os.Exit(1)
	}()
}
