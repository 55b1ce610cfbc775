package firmware

import (
	"fmt"
	"io"
	"os"
)

// LoadBinary reads a raw application or delta image from disk.
//
// Example:
//
//	data, err := firmware.LoadBinary("app_update.bin")
//	chunks := firmware.Split(0, data, firmware.DefaultChunkSize)
func LoadBinary(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadBinary(f)
}

// ReadBinary reads a raw image from any io.Reader.
// An empty image is rejected since the device cannot be initialized with size 0.
func ReadBinary(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	return data, nil
}
