// Package main is the SMN / Global-Clock scheduler process: it loads
// workspace settings, assembles a periodic-block workspace against a
// static node/peer table, and drives the tick loop until final_time or a
// fatal ack timeout (spec.md §4.4). Building a workspace from a textual
// topology description is out of scope (spec.md §1 "The CLI/config
// loader that builds the workspace is also excluded") — the node/block
// table here is assembled from flags the same way the teacher's smaller
// daemons (cmd/authn) take a flat flag surface rather than a DSL.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openbuildnet/obncore/cmn/config"
	"github.com/openbuildnet/obncore/cmn/cos"
	"github.com/openbuildnet/obncore/cmn/nlog"
	"github.com/openbuildnet/obncore/gc"
	"github.com/openbuildnet/obncore/hk"
	"github.com/openbuildnet/obncore/stats"
	"github.com/openbuildnet/obncore/transport"
	"github.com/openbuildnet/obncore/transport/direct"
	"github.com/openbuildnet/obncore/wire"
	"github.com/openbuildnet/obncore/workspace"
)

var (
	workspaceName string
	listenAddr    string
	metricsAddr   string
	configPath    string
	nodesFlag     string // "name=url,name=url,..."
	periodTicks   int64
)

func init() {
	flag.StringVar(&workspaceName, "workspace", "demo", "workspace name")
	flag.StringVar(&listenAddr, "listen", ":8081", "address this SMN listens on for node acks/sim-events")
	flag.StringVar(&metricsAddr, "metrics", ":9090", "address the /metrics endpoint is served on")
	flag.StringVar(&configPath, "config", "", "path to a workspace settings JSON file (defaults built in if empty)")
	flag.StringVar(&nodesFlag, "nodes", "", "comma-separated name=base-url pairs, e.g. node1=http://localhost:8082,node2=http://localhost:8083")
	flag.Int64Var(&periodTicks, "period", 1, "uniform periodic update-block period, in ticks, for every node")
	nlog.InitFlags(flag.CommandLine)
}

func main() {
	installSignalHandler()
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			cos.ExitConfigf("reading config %q: %v", configPath, err)
		}
		cfg, err = config.Load(data)
		if err != nil {
			cos.ExitConfigf("loading config %q: %v", configPath, err)
		}
	}
	cfg.DefaultComm = config.CommDirect

	peerURLs, order, err := parseNodes(nodesFlag)
	if err != nil {
		cos.ExitConfigf("parsing -nodes: %v", err)
	}
	if len(order) == 0 {
		cos.ExitConfigf("at least one node is required, e.g. -nodes node1=http://localhost:8082")
	}

	reg := prometheus.NewRegistry()
	metrics := stats.NewMetrics(reg)
	go serveMetrics(metricsAddr, reg)

	cos.InitRunID(cos.HashNodeName(workspaceName, listenAddr))
	runID := cos.GenRunID()
	nlog.Infof("smn: run %s starting for workspace %s", runID, workspaceName)

	resolve := workspace.DirectResolver(peerURLs)
	tr := direct.New(listenAddr, nil, resolve)

	b := workspace.NewBuilder(workspaceName)
	b.SetSettings(cfg)
	for _, name := range order {
		if err := b.AddNode(name); err != nil {
			cos.ExitConfigf("%v", err)
		}
		if err := b.AddUpdate(workspace.UpdateSpec{Node: name, ID: 0, Period: cos.SimTime(periodTicks), HasX: false}); err != nil {
			cos.ExitConfigf("%v", err)
		}
	}

	own := transport.SMNOwnTopic(workspaceName)
	// Node ids are derived the same way obn-node derives its own, from
	// (workspace, name) via cos.HashNodeName, so the two processes never
	// need an out-of-band id handshake or a manually-synchronized -id flag.
	ids := make(map[int32]string, len(order))
	for _, name := range order {
		ids[int32(cos.HashNodeName(workspaceName, name))] = name
	}

	var sched *gc.Scheduler
	seenAuth := make(map[string]string, len(order)) // node name -> last INIT_ACK auth token
	ep, err := tr.Open(own, func(payload []byte) {
		m, derr := wire.Decode(payload)
		if derr != nil {
			nlog.Errorf("smn: bad message from node: %v", derr)
			return
		}
		node, ok := ids[m.ID]
		if !ok {
			nlog.Warningf("smn: message from unknown node id %d", m.ID)
			return
		}
		switch m.Type {
		case wire.TypeInitAck:
			if prev, dup := seenAuth[node]; dup && prev != m.Auth {
				nlog.Warningf("smn: node %s reconnected with a new auth token, treating as a fresh connection", node)
			}
			seenAuth[node] = m.Auth
			sched.DeliverAck(node, m.I)
		case wire.TypeYAck, wire.TypeXAck:
			sched.DeliverAck(node, m.I)
		case wire.TypeSimEvent:
			sched.ReceiveSimEvent(node, cos.SimTime(m.T), m.Mask)
		default:
			nlog.Warningf("smn: unexpected message type %s from node %s", m.Type, node)
		}
	}, func(err error) {
		nlog.Errorf("smn: transport loss: %v", err)
	}, nil)
	if err != nil {
		cos.ExitConfigf("opening SMN endpoint: %v", err)
	}
	defer ep.Close()

	ws, err := b.Build(ep)
	if err != nil {
		cos.ExitConfigf("assembling workspace: %v", err)
	}
	sched = ws.Scheduler
	sched.SetObserver(metrics)

	hk.Reg("smn-heartbeat"+hk.NameSuffix, func() time.Duration {
		nlog.Infof("smn: workspace %s alive, %d nodes", workspaceName, len(order))
		return hk.DayInterval
	}, hk.DayInterval)

	nlog.Infof("smn: run %s starting workspace %s with nodes %v", runID, workspaceName, order)
	if err := sched.Run(); err != nil {
		cos.ExitLogf("run %s: scheduler stopped: %v", runID, err)
	}
	nlog.Infof("smn: run %s workspace %s finished", runID, workspaceName)
}

func parseNodes(s string) (urls map[string]string, order []string, err error) {
	urls = make(map[string]string)
	if s == "" {
		return urls, nil, nil
	}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			return nil, nil, fmt.Errorf("malformed -nodes entry %q", pair)
		}
		name := kv[0]
		peer := transport.SMNToNodeTopic(workspaceName, name)
		urls[peer] = kv[1]
		order = append(order, name)
	}
	return urls, order, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", stats.Handler(reg))
	if err := http.ListenAndServe(addr, mux); err != nil {
		nlog.Errorf("smn: metrics server stopped: %v", err)
	}
}

func installSignalHandler() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		nlog.Infof("smn: caught signal %s, exiting", sig)
		nlog.Flush()
		os.Exit(1)
	}()
}
