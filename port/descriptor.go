package port

// Descriptor names the shape a port was declared with at assembly time
// (spec.md §9 design note: a per-port type descriptor selected once at
// creation, rather than dispatching on a (container, element, strictness)
// product at every send/receive). Codec defaults to the Value's own
// Encode/Decode, but can be swapped for a user-message port with its own
// marshaling.
type Descriptor struct {
	Container Container
	Elem      ElemType

	Encode func(Value) ([]byte, error)
	Decode func([]byte) (Value, error)
}

func NewDescriptor(c Container, e ElemType) Descriptor {
	return Descriptor{
		Container: c,
		Elem:      e,
		Encode:    Encode,
		Decode:    Decode,
	}
}

// Matches reports whether v's shape conforms to d. Workspace assembly does
// not call it: Builder.Connect checks port directions only, not shapes.
func (d Descriptor) Matches(v Value) bool {
	if v.Container == ContainerBytes || v.Container == ContainerUserMessage {
		return v.Container == d.Container
	}
	return v.Container == d.Container && v.Elem == d.Elem
}
