package simulator

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// coseSign1Tag is the CBOR tag of a COSE_Sign1 structure.
const coseSign1Tag = 18

// SegmentImage is one segment of a generated modem package.
type SegmentImage struct {
	Address uint32
	Data    []byte
}

// BuildPackage generates a signed-package lookalike: a tagged envelope whose
// manifest lists the segments, followed by the segment data. The first
// segment is the bootloader. The signature is a placeholder; nothing on the
// host verifies it.
//
// Example:
//
//	raw, err := simulator.BuildPackage(
//	    simulator.SegmentImage{Address: 0x0, Data: boot},
//	    simulator.SegmentImage{Address: 0x50000, Data: fw},
//	)
func BuildPackage(segments ...SegmentImage) ([]byte, error) {
	if len(segments) == 0 {
		return nil, errors.New("package needs at least a boot segment")
	}

	pairs := make([]uint64, 0, 2*len(segments))
	size := 0
	for _, s := range segments {
		pairs = append(pairs, uint64(s.Address), uint64(len(s.Data)))
		size += len(s.Data)
	}

	table, err := cbor.Marshal(pairs)
	if err != nil {
		return nil, err
	}

	manifest, err := cbor.Marshal([]any{1, "simulator", []byte{0x00}, table})
	if err != nil {
		return nil, err
	}

	envelope, err := cbor.Marshal(cbor.Tag{
		Number:  coseSign1Tag,
		Content: []any{[]byte{0xA1, 0x01, 0x26}, map[int]any{}, manifest, make([]byte, 64)},
	})
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 0, len(envelope)+size)
	raw = append(raw, envelope...)
	for _, s := range segments {
		raw = append(raw, s.Data...)
	}
	return raw, nil
}
