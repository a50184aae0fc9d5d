// Package wire implements the SMN<->node protocol layer (spec.md §4.6):
// the logical message types, and their on-the-wire tag-value binary
// encoding. The core assumes a schema-driven encoder; we use
// github.com/tinylib/msgp's runtime (not its codegen — Message is encoded
// and decoded by hand below) as the concrete tag-value codec, since MsgPack
// is exactly that: a self-describing, tagged key/value binary format.
package wire

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/openbuildnet/obncore/cmn/cos"
)

// Type is the msgtype tag of spec.md §4.6.
type Type uint8

const (
	TypeInit Type = iota
	TypeInitAck
	TypeUpdateY
	TypeYAck
	TypeUpdateX
	TypeXAck
	TypeSimEvent
	TypeSimEventAck
	TypeTerm
)

func (t Type) String() string {
	switch t {
	case TypeInit:
		return "SMN2N_INIT"
	case TypeInitAck:
		return "N2SMN_INIT_ACK"
	case TypeUpdateY:
		return "SMN2N_UPDATE_Y"
	case TypeYAck:
		return "N2SMN_SIM_Y_ACK"
	case TypeUpdateX:
		return "SMN2N_UPDATE_X"
	case TypeXAck:
		return "N2SMN_SIM_X_ACK"
	case TypeSimEvent:
		return "N2SMN_SIM_EVENT"
	case TypeSimEventAck:
		return "SMN2N_SIM_EVENT_ACK"
	case TypeTerm:
		return "SMN2N_TERM"
	default:
		return "UNKNOWN"
	}
}

// Message is every field ever carried by any of the nine logical message
// types of spec.md §4.6, unified into one wire struct (fields irrelevant to
// a given Type are simply left zero). ID is the originating node's numeric
// id, derived from (workspace, name) with cos.HashNodeName by both
// cmd/obn-smn and cmd/obn-node; messages the SMN sends leave it zero.
type Message struct {
	Type   Type
	ID     int32
	T      int64  // UPDATE_Y/X, SIM_EVENT, SIM_EVENT_ACK: simulation time (ticks)
	Mask   uint64 // UPDATE_Y/X, SIM_EVENT: update mask
	I      int64  // *_ACK: status code (0 == ok/accepted)
	Reason int32  // TERM: reason code
	Auth   string // N2SMN_INIT_ACK: per-connection nonce, see cos.GenNodeAuthToken
}

// map keys for the tag-value encoding below.
const (
	keyType = iota
	keyID
	keyT
	keyMask
	keyI
	keyReason
	keyAuth
)

const nFields = 7

// MarshalMsg appends the tag-value encoding of m to b, per msgp's
// self-describing binary format (a map of small integer tags to values).
func (m *Message) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, nFields)
	b = msgp.AppendInt(b, keyType)
	b = msgp.AppendUint8(b, uint8(m.Type))
	b = msgp.AppendInt(b, keyID)
	b = msgp.AppendInt32(b, m.ID)
	b = msgp.AppendInt(b, keyT)
	b = msgp.AppendInt64(b, m.T)
	b = msgp.AppendInt(b, keyMask)
	b = msgp.AppendUint64(b, m.Mask)
	b = msgp.AppendInt(b, keyI)
	b = msgp.AppendInt64(b, m.I)
	b = msgp.AppendInt(b, keyReason)
	b = msgp.AppendInt32(b, m.Reason)
	b = msgp.AppendInt(b, keyAuth)
	b = msgp.AppendString(b, m.Auth)
	return b, nil
}

// UnmarshalMsg decodes a Message from b, returning the remainder.
func (m *Message) UnmarshalMsg(b []byte) ([]byte, error) {
	sz, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, cos.NewError(cos.KindInputPortRawMsg, "wire", err)
	}
	for i := uint32(0); i < sz; i++ {
		var key int64
		key, b, err = msgp.ReadInt64Bytes(b)
		if err != nil {
			return b, cos.NewError(cos.KindInputPortRawMsg, "wire", err)
		}
		switch key {
		case keyType:
			var v uint8
			v, b, err = msgp.ReadUint8Bytes(b)
			m.Type = Type(v)
		case keyID:
			m.ID, b, err = msgp.ReadInt32Bytes(b)
		case keyT:
			m.T, b, err = msgp.ReadInt64Bytes(b)
		case keyMask:
			m.Mask, b, err = msgp.ReadUint64Bytes(b)
		case keyI:
			m.I, b, err = msgp.ReadInt64Bytes(b)
		case keyReason:
			m.Reason, b, err = msgp.ReadInt32Bytes(b)
		case keyAuth:
			m.Auth, b, err = msgp.ReadStringBytes(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, cos.NewError(cos.KindInputPortRawMsg, "wire", err)
		}
	}
	return b, nil
}

// Encode/Decode are the convenience entry points used by gc, node and
// cmd/obn-smn.
func Encode(m *Message) ([]byte, error) { return m.MarshalMsg(nil) }

func Decode(b []byte) (*Message, error) {
	m := &Message{}
	if _, err := m.UnmarshalMsg(b); err != nil {
		return nil, err
	}
	return m, nil
}
