// Package port implements the typed port layer (spec.md §4.2): a single
// tagged variant (PortValue, here named Value) replaces the original's
// Cartesian-product dispatch over (container x element x strictness x
// format), per the design note in spec.md §9. A Descriptor pairs a
// container/element shape with an encode/decode pair. OutputPort and
// InputPort do not hold a Descriptor: they encode and decode with the
// package-level Encode/Decode and send through a Sender.
package port

import (
	"encoding/binary"
	"math"

	"github.com/tinylib/msgp/msgp"

	"github.com/openbuildnet/obncore/cmn/cos"
)

func f32bits(f float32) uint32      { return math.Float32bits(f) }
func f32frombits(b uint32) float32  { return math.Float32frombits(b) }
func f64bits(f float64) uint64      { return math.Float64bits(f) }
func f64frombits(b uint64) float64  { return math.Float64frombits(b) }

// Container is the outer shape of a port value.
type Container uint8

const (
	ContainerScalar Container = iota
	ContainerVector
	ContainerMatrix
	ContainerBytes
	ContainerUserMessage
)

// ElemType is the scalar element type carried by Scalar/Vector/Matrix
// containers (spec.md §3: bool, i32, i64, u32, u64, f32, f64).
type ElemType uint8

const (
	ElemBool ElemType = iota
	ElemI32
	ElemI64
	ElemU32
	ElemU64
	ElemF32
	ElemF64
)

func (e ElemType) size() int {
	switch e {
	case ElemBool:
		return 1
	case ElemI32, ElemU32, ElemF32:
		return 4
	default:
		return 8
	}
}

// Value is the PortValue tagged variant: exactly one of the typed slices
// below is meaningful, selected by Container/Elem. Matrices are stored
// column-major (Rows*Cols elements, column 0 first) per spec.md §3.
type Value struct {
	Container Container
	Elem      ElemType
	Rows, Cols int // Vector: Rows=len, Cols=1. Scalar: Rows=Cols=1.

	Bools []bool
	I32   []int32
	I64   []int64
	U32   []uint32
	U64   []uint64
	F32   []float32
	F64   []float64

	Bytes    []byte // ContainerBytes
	UserType string // ContainerUserMessage: application-defined type tag
	UserData []byte // ContainerUserMessage: opaque payload
}

func ScalarF64(v float64) Value {
	return Value{Container: ContainerScalar, Elem: ElemF64, Rows: 1, Cols: 1, F64: []float64{v}}
}
func ScalarI64(v int64) Value {
	return Value{Container: ContainerScalar, Elem: ElemI64, Rows: 1, Cols: 1, I64: []int64{v}}
}
func ScalarBool(v bool) Value {
	return Value{Container: ContainerScalar, Elem: ElemBool, Rows: 1, Cols: 1, Bools: []bool{v}}
}

func VectorF64(v []float64) Value {
	return Value{Container: ContainerVector, Elem: ElemF64, Rows: len(v), Cols: 1, F64: v}
}
func VectorI32(v []int32) Value {
	return Value{Container: ContainerVector, Elem: ElemI32, Rows: len(v), Cols: 1, I32: v}
}

// MatrixF64 takes data already laid out column-major, len(data)==rows*cols.
func MatrixF64(rows, cols int, data []float64) Value {
	return Value{Container: ContainerMatrix, Elem: ElemF64, Rows: rows, Cols: cols, F64: data}
}

func BytesValue(b []byte) Value {
	return Value{Container: ContainerBytes, Bytes: b}
}

func UserMessage(typ string, data []byte) Value {
	return Value{Container: ContainerUserMessage, UserType: typ, UserData: data}
}

// Len returns the element count (Rows*Cols for numeric containers).
func (v Value) Len() int {
	switch v.Container {
	case ContainerScalar, ContainerVector, ContainerMatrix:
		return v.Rows * v.Cols
	default:
		return 0
	}
}

// Equal implements the round-trip invariant of spec.md §8 #6: element-wise
// equality for vectors/matrices, with shape preserved.
func (v Value) Equal(o Value) bool {
	if v.Container != o.Container || v.Elem != o.Elem || v.Rows != o.Rows || v.Cols != o.Cols {
		return false
	}
	switch v.Container {
	case ContainerBytes:
		return string(v.Bytes) == string(o.Bytes)
	case ContainerUserMessage:
		return v.UserType == o.UserType && string(v.UserData) == string(o.UserData)
	}
	switch v.Elem {
	case ElemBool:
		return equalSlice(v.Bools, o.Bools)
	case ElemI32:
		return equalSlice(v.I32, o.I32)
	case ElemI64:
		return equalSlice(v.I64, o.I64)
	case ElemU32:
		return equalSlice(v.U32, o.U32)
	case ElemU64:
		return equalSlice(v.U64, o.U64)
	case ElemF32:
		return equalSlice(v.F32, o.F32)
	case ElemF64:
		return equalSlice(v.F64, o.F64)
	}
	return true
}

func equalSlice[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

//
// tag-value wire codec
//

const nValueFields = 6

const (
	vkeyContainer = iota
	vkeyElem
	vkeyRows
	vkeyCols
	vkeyData
	vkeyUserType
)

// rawBytes packs the numeric payload as little-endian bytes, msgp.AppendBytes
// then frames it with its tag; Bytes/UserMessage containers store the raw
// payload directly in the same field.
func (v Value) rawBytes() []byte {
	switch v.Container {
	case ContainerBytes:
		return v.Bytes
	case ContainerUserMessage:
		return v.UserData
	}
	n := v.Len()
	buf := make([]byte, 0, n*v.Elem.size())
	switch v.Elem {
	case ElemBool:
		for _, b := range v.Bools {
			if b {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}
	case ElemI32:
		for _, x := range v.I32 {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(x))
		}
	case ElemI64:
		for _, x := range v.I64 {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(x))
		}
	case ElemU32:
		for _, x := range v.U32 {
			buf = binary.LittleEndian.AppendUint32(buf, x)
		}
	case ElemU64:
		for _, x := range v.U64 {
			buf = binary.LittleEndian.AppendUint64(buf, x)
		}
	case ElemF32:
		for _, x := range v.F32 {
			buf = binary.LittleEndian.AppendUint32(buf, f32bits(x))
		}
	case ElemF64:
		for _, x := range v.F64 {
			buf = binary.LittleEndian.AppendUint64(buf, f64bits(x))
		}
	}
	return buf
}

func (v *Value) setFromRaw(buf []byte) error {
	switch v.Container {
	case ContainerBytes:
		v.Bytes = append([]byte(nil), buf...)
		return nil
	case ContainerUserMessage:
		v.UserData = append([]byte(nil), buf...)
		return nil
	}
	n := v.Rows * v.Cols
	if n*v.Elem.size() != len(buf) {
		return cos.Errorf(cos.KindInputPortReadValue, "port", "shape mismatch: expected %d bytes, got %d", n*v.Elem.size(), len(buf))
	}
	switch v.Elem {
	case ElemBool:
		v.Bools = make([]bool, n)
		for i := range v.Bools {
			v.Bools[i] = buf[i] != 0
		}
	case ElemI32:
		v.I32 = make([]int32, n)
		for i := range v.I32 {
			v.I32[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	case ElemI64:
		v.I64 = make([]int64, n)
		for i := range v.I64 {
			v.I64[i] = int64(binary.LittleEndian.Uint64(buf[i*8:]))
		}
	case ElemU32:
		v.U32 = make([]uint32, n)
		for i := range v.U32 {
			v.U32[i] = binary.LittleEndian.Uint32(buf[i*4:])
		}
	case ElemU64:
		v.U64 = make([]uint64, n)
		for i := range v.U64 {
			v.U64[i] = binary.LittleEndian.Uint64(buf[i*8:])
		}
	case ElemF32:
		v.F32 = make([]float32, n)
		for i := range v.F32 {
			v.F32[i] = f32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	case ElemF64:
		v.F64 = make([]float64, n)
		for i := range v.F64 {
			v.F64[i] = f64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
		}
	}
	return nil
}

func (v Value) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, nValueFields)
	b = msgp.AppendInt(b, vkeyContainer)
	b = msgp.AppendUint8(b, uint8(v.Container))
	b = msgp.AppendInt(b, vkeyElem)
	b = msgp.AppendUint8(b, uint8(v.Elem))
	b = msgp.AppendInt(b, vkeyRows)
	b = msgp.AppendInt(b, v.Rows)
	b = msgp.AppendInt(b, vkeyCols)
	b = msgp.AppendInt(b, v.Cols)
	b = msgp.AppendInt(b, vkeyData)
	b = msgp.AppendBytes(b, v.rawBytes())
	b = msgp.AppendInt(b, vkeyUserType)
	b = msgp.AppendString(b, v.UserType)
	return b, nil
}

func (v *Value) UnmarshalMsg(b []byte) ([]byte, error) {
	sz, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, cos.NewError(cos.KindInputPortRawMsg, "port", err)
	}
	var data []byte
	for i := uint32(0); i < sz; i++ {
		var key int64
		key, b, err = msgp.ReadInt64Bytes(b)
		if err != nil {
			return b, cos.NewError(cos.KindInputPortRawMsg, "port", err)
		}
		switch key {
		case vkeyContainer:
			var x uint8
			x, b, err = msgp.ReadUint8Bytes(b)
			v.Container = Container(x)
		case vkeyElem:
			var x uint8
			x, b, err = msgp.ReadUint8Bytes(b)
			v.Elem = ElemType(x)
		case vkeyRows:
			v.Rows, b, err = msgp.ReadIntBytes(b)
		case vkeyCols:
			v.Cols, b, err = msgp.ReadIntBytes(b)
		case vkeyData:
			data, b, err = msgp.ReadBytesBytes(b, nil)
		case vkeyUserType:
			v.UserType, b, err = msgp.ReadStringBytes(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, cos.NewError(cos.KindInputPortRawMsg, "port", err)
		}
	}
	if err := v.setFromRaw(data); err != nil {
		return b, err
	}
	return b, nil
}

func Encode(v Value) ([]byte, error) { return v.MarshalMsg(nil) }

func Decode(b []byte) (Value, error) {
	var v Value
	if _, err := v.UnmarshalMsg(b); err != nil {
		return Value{}, err
	}
	return v, nil
}
