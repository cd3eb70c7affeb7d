// Package analytical implements the closed-form pool states: Uniswap
// V2 (constant product), V3 (tick-based concentrated liquidity), and
// V4 (tick-based plus a triple fee model and hook filter), all sharing
// the poolstate.ProtocolSim contract with no dependence on the EVM
// host. Grounded on spec.md §4.5 and the ProtocolSim worked example in
// original_source/tycho-swap/src/protocol/state.rs.
package analytical

import "fmt"

// MissingAttributeError is InvalidSnapshot::MissingAttribute(name).
type MissingAttributeError struct{ Name string }

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("analytical: missing attribute %q", e.Name)
}

// ValueError is InvalidSnapshot::ValueError(msg).
type ValueError struct{ Msg string }

func (e *ValueError) Error() string { return "analytical: " + e.Msg }

// Snapshot is the raw decoded attribute set a decoder consumes: string
// keys to big-endian byte values, matching spec.md §6's wire shape.
type Snapshot struct {
	Attributes map[string][]byte
	Static     map[string][]byte
}

func (s Snapshot) require(key string) ([]byte, error) {
	v, ok := s.Attributes[key]
	if !ok {
		v, ok = s.Static[key]
	}
	if !ok {
		return nil, &MissingAttributeError{Name: key}
	}
	return v, nil
}

// i24BEBytesToI32 decodes a big-endian signed 24-bit tick index into an
// int32, sign-extending bit 23. Matches spec.md §4.5's
// i24_be_bytes_to_i32 used by all three tick-based pools.
func i24BEBytesToI32(b []byte) int32 {
	var v int32
	for _, by := range b {
		v = v<<8 | int32(by)
	}
	if len(b) == 3 && b[0]&0x80 != 0 {
		v |= ^int32(0xFFFFFF) // sign-extend the top byte
	}
	return v
}

// beBytesToUint64 decodes a big-endian scalar attribute into a uint64.
func beBytesToUint64(b []byte) uint64 {
	var v uint64
	for _, by := range b {
		v = v<<8 | uint64(by)
	}
	return v
}
