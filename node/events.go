package node

import "github.com/openbuildnet/obncore/cmn/cos"

// NodeEventKind distinguishes the SMN-originated messages multiplexed on
// the node-event queue (spec.md §4.3).
type NodeEventKind int

const (
	NodeEventInit NodeEventKind = iota
	NodeEventUpdateY
	NodeEventUpdateX
	NodeEventSimEventAck
	NodeEventTerm
)

// NodeEvent is one entry on the node-event queue.
type NodeEvent struct {
	Kind NodeEventKind
	T    cos.SimTime
	Mask uint64
	I    int64 // SIM_EVENT_ACK status code; TERM reason code
}

// PortEventKind distinguishes port-queue entries. Only RCV is defined by
// spec.md §4.2/§4.3; exception events (decode/send failures) are folded
// into the same queue so a single drain loop surfaces everything in
// arrival order.
type PortEventKind int

const (
	PortEventRCV PortEventKind = iota
	PortEventException
)

// PortEvent is one entry on the port-event queue.
type PortEvent struct {
	Kind  PortEventKind
	Index int   // port index, for RCV
	Err   error // set for Exception
}

// UserEventKind identifies the shape of event run_step surfaces to the
// caller (spec.md §4.3 "User events").
type UserEventKind int

const (
	UserEventY UserEventKind = iota
	UserEventX
	UserEventInit
	UserEventTerm
	UserEventRCV
	UserEventException
)

// UserEvent is what run_step hands back to the caller on return code 0.
type UserEvent struct {
	Kind      UserEventKind
	Mask      uint64
	T         cos.SimTime
	PortIndex int
	Err       error
}

// run_step return codes (spec.md §4.3).
const (
	StepUserEvent = 0
	StepTimeout   = 1
	StepStopped   = 2
	StepError     = 3
)
