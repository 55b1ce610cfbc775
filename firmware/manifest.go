package firmware

import (
	"fmt"
	"math"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Positions inside the signed package structures.
const (
	// envelopeManifestIndex is the envelope element holding the encoded manifest
	envelopeManifestIndex = 2

	// manifestSegmentsIndex is the manifest element holding the encoded segment table
	manifestSegmentsIndex = 3
)

// CBOR major types checked before decoding opaque elements.
const (
	cborByteString = 2
	cborTag        = 6
)

// Package is a decoded signed modem firmware package.
type Package struct {
	// Segments lists every segment in manifest order; the first is the boot segment
	Segments []Segment

	// PayloadOffset is where segment data starts: the size of the signed envelope
	PayloadOffset int

	raw []byte
}

// LoadPackage reads and decodes a signed package from disk.
//
// Example:
//
//	pkg, err := firmware.LoadPackage("mfw_nrf91x1_2.0.2.cbor")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("boot %d bytes, firmware %d bytes\n", pkg.BootSize(), pkg.FirmwareSize())
func LoadPackage(path string) (*Package, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package: %w", err)
	}

	return ParseManifest(raw)
}

// ParseManifest decodes a signed package.
//
// The file starts with a signed envelope: a CBOR array (optionally tagged) of
// at least three elements whose third element is a byte string containing the
// encoded manifest. The manifest is an array of at least four elements whose
// fourth element is a byte string containing a flat array of
// (address, length) pairs. Segment data follows the envelope back to back,
// in pair order.
//
// ParseManifest does not copy raw; the package references it.
func ParseManifest(raw []byte) (*Package, error) {
	if len(raw) == 0 {
		return nil, formatErrorf(nil, "empty package")
	}

	var envelope cbor.RawMessage
	rest, err := cbor.UnmarshalFirst(raw, &envelope)
	if err != nil {
		return nil, formatErrorf(err, "decode envelope")
	}
	payloadOffset := len(raw) - len(rest)

	envelopeFields, err := decodeArray(envelope, envelopeManifestIndex+1, "envelope")
	if err != nil {
		return nil, err
	}

	manifestBytes, err := decodeByteString(envelopeFields[envelopeManifestIndex], "envelope manifest")
	if err != nil {
		return nil, err
	}

	manifestFields, err := decodeArray(manifestBytes, manifestSegmentsIndex+1, "manifest")
	if err != nil {
		return nil, err
	}

	segmentBytes, err := decodeByteString(manifestFields[manifestSegmentsIndex], "manifest segment table")
	if err != nil {
		return nil, err
	}

	var pairs []uint64
	if err := cbor.Unmarshal(segmentBytes, &pairs); err != nil {
		return nil, formatErrorf(err, "decode segment table")
	}

	segments, err := buildSegments(pairs, payloadOffset, len(raw))
	if err != nil {
		return nil, err
	}

	return &Package{
		Segments:      segments,
		PayloadOffset: payloadOffset,
		raw:           raw,
	}, nil
}

// buildSegments lays the (address, length) pairs out contiguously from offset.
func buildSegments(pairs []uint64, offset, size int) ([]Segment, error) {
	if len(pairs) == 0 {
		return nil, formatErrorf(nil, "segment table is empty")
	}
	if len(pairs)%2 != 0 {
		return nil, formatErrorf(nil, "segment table has odd element count %d", len(pairs))
	}

	segments := make([]Segment, 0, len(pairs)/2)
	next := uint64(offset)

	for i := 0; i < len(pairs); i += 2 {
		addr, length := pairs[i], pairs[i+1]
		if addr > math.MaxUint32 || length > math.MaxUint32 || addr+length > math.MaxUint32+1 {
			return nil, formatErrorf(nil, "segment %d (addr=0x%X len=%d) exceeds 32-bit address space", i/2, addr, length)
		}
		if next+length > uint64(size) {
			return nil, formatErrorf(nil, "segment %d needs bytes %d-%d but package is %d bytes", i/2, next, next+length, size)
		}

		role := RoleFirmware
		if i == 0 {
			role = RoleBoot
		}

		segments = append(segments, Segment{
			Address: uint32(addr),
			Length:  uint32(length),
			Offset:  uint32(next),
			Role:    role,
		})
		next += length
	}

	return segments, nil
}

// decodeArray decodes raw as a CBOR array of at least minLen elements,
// unwrapping any tags around it.
func decodeArray(raw []byte, minLen int, what string) ([]cbor.RawMessage, error) {
	for len(raw) > 0 && raw[0]>>5 == cborTag {
		var tag cbor.RawTag
		if err := cbor.Unmarshal(raw, &tag); err != nil {
			return nil, formatErrorf(err, "decode %s tag", what)
		}
		raw = tag.Content
	}

	var fields []cbor.RawMessage
	if err := cbor.Unmarshal(raw, &fields); err != nil {
		return nil, formatErrorf(err, "decode %s", what)
	}
	if len(fields) < minLen {
		return nil, formatErrorf(nil, "%s has %d elements, want at least %d", what, len(fields), minLen)
	}

	return fields, nil
}

// decodeByteString decodes raw, which must be a CBOR byte string.
func decodeByteString(raw cbor.RawMessage, what string) ([]byte, error) {
	if len(raw) == 0 || raw[0]>>5 != cborByteString {
		return nil, formatErrorf(nil, "%s is not a byte string", what)
	}

	var b []byte
	if err := cbor.Unmarshal(raw, &b); err != nil {
		return nil, formatErrorf(err, "decode %s", what)
	}
	if len(b) == 0 {
		return nil, formatErrorf(nil, "%s is empty", what)
	}

	return b, nil
}

// Boot returns the bootloader segment.
func (p *Package) Boot() Segment {
	return p.Segments[0]
}

// Firmware returns the firmware segments in manifest order.
func (p *Package) Firmware() []Segment {
	return p.Segments[1:]
}

// SegmentData returns the payload bytes of s.
func (p *Package) SegmentData(s Segment) []byte {
	return p.raw[s.Offset:s.End()]
}

// BootSize returns the bootloader segment length in bytes.
func (p *Package) BootSize() int {
	return int(p.Boot().Length)
}

// FirmwareSize returns the total length of all firmware segments.
func (p *Package) FirmwareSize() int {
	total := 0
	for _, s := range p.Firmware() {
		total += int(s.Length)
	}
	return total
}

// Chunks splits the boot segment and every firmware segment into chunks of at
// most size bytes. Each segment is split independently starting at its own
// load address, so a chunk never spans two segments.
func (p *Package) Chunks(size int) (boot, fw []Chunk, err error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}

	boot = Split(p.Boot().Address, p.SegmentData(p.Boot()), size)
	for _, s := range p.Firmware() {
		fw = append(fw, Split(s.Address, p.SegmentData(s), size)...)
	}

	return boot, fw, nil
}
