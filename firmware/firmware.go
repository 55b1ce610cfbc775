package firmware

import "fmt"

// Role distinguishes the bootloader segment from firmware segments of a package.
type Role int

const (
	// RoleBoot marks the bootloader segment, always the first in manifest order
	RoleBoot Role = iota

	// RoleFirmware marks every segment after the first
	RoleFirmware
)

func (r Role) String() string {
	switch r {
	case RoleBoot:
		return "boot"
	case RoleFirmware:
		return "firmware"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Segment is a contiguous region of package payload with its own load address.
type Segment struct {
	// Address is the load address on the target
	Address uint32

	// Length is the segment size in bytes
	Length uint32

	// Offset is the position of the segment data in the package file
	Offset uint32

	// Role tells whether this is the bootloader or a firmware segment
	Role Role
}

// End returns the file offset one past the last byte of the segment.
func (s Segment) End() uint64 {
	return uint64(s.Offset) + uint64(s.Length)
}

// Chunk is one write unit: a bounded slice of a segment or binary image,
// tagged with its destination address.
type Chunk struct {
	// Address is where the device writes Data
	Address uint32

	// Data is the chunk payload, at most the configured chunk size
	Data []byte
}

// Len returns the payload length.
func (c Chunk) Len() int {
	return len(c.Data)
}

// TotalSize sums the payload lengths of chunks.
func TotalSize(chunks []Chunk) int {
	total := 0
	for _, c := range chunks {
		total += len(c.Data)
	}
	return total
}
