// File: reactor/ops.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

// Ops is a readiness interest bitmask.
type Ops uint32

const (
	OpRead Ops = 1 << iota
	OpWrite
)

// Has reports whether all bits of o2 are set in o.
func (o Ops) Has(o2 Ops) bool { return o&o2 == o2 && o2 != 0 }

func (o Ops) String() string {
	switch o & (OpRead | OpWrite) {
	case OpRead:
		return "r"
	case OpWrite:
		return "w"
	case OpRead | OpWrite:
		return "rw"
	default:
		return "-"
	}
}
