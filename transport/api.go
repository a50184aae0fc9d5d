// Package transport provides the bidirectional, publish/subscribe-style
// message channel between the SMN and each node (spec.md §4.1). Two
// variants are supported: a broker-based pub/sub transport (package
// transport/broker, addressed by workspace/node/port topic names) and a
// direct-wire transport (package transport/direct, addressed by explicit
// point-to-point endpoints). Both satisfy the Transport interface defined
// here so that package port and package node never know which one they're
// talking to.
package transport

import "time"

// RecvFunc is invoked on a transport-owned thread for every message
// delivered to an endpoint. The core assumes delivery is best-effort but
// ordered per (source, destination) pair.
type RecvFunc func(payload []byte)

// LossFunc is invoked when a transport can no longer guarantee delivery for
// an endpoint (e.g. a broker connection drops, a direct peer stops
// responding). The LossFuncs installed by cmd/obn-smn and cmd/obn-node log
// the loss; neither node nor gc starts a shutdown from it.
type LossFunc func(err error)

// Extra carries advanced, optional per-endpoint configuration.
type Extra struct {
	Compression  string        // "" or CompressionLZ4
	IdleTeardown time.Duration // 0 disables idle teardown
}

const CompressionLZ4 = "lz4"

// Endpoint is a single opened named channel: peers can Send to it by name,
// and it delivers inbound bytes to the RecvFunc supplied at Open time.
type Endpoint interface {
	Send(peer string, payload []byte) error
	Close() error
}

// Transport is the contract every variant must satisfy (spec.md §4.1):
// opening a named endpoint, sending to a named peer, and invoking a
// delivery callback on a transport-owned thread.
type Transport interface {
	Name() string
	Open(local string, onRecv RecvFunc, onLoss LossFunc, extra *Extra) (Endpoint, error)
}

// the addressing scheme of spec.md §6.
const nameSMN = "_smn_"

// SMNToNodeTopic is the SMN->node channel: `workspace/_smn_/<node>`.
func SMNToNodeTopic(workspace, node string) string {
	return workspace + "/" + nameSMN + "/" + node
}

// NodeToSMNTopic is the node->SMN channel: `workspace/<node>/_gc_`.
func NodeToSMNTopic(workspace, node string) string {
	return workspace + "/" + node + "/_gc_"
}

// SMNOwnTopic is the SMN's own subscription: `workspace/_smn_/_gc_`.
func SMNOwnTopic(workspace string) string {
	return workspace + "/" + nameSMN + "/_gc_"
}

// PortTopic addresses an application data port: `workspace/node/port`.
func PortTopic(workspace, node, port string) string {
	return workspace + "/" + node + "/" + port
}
