package firmware

// DefaultChunkSize is the payload size of one AT#XDFUWRITE transaction.
const DefaultChunkSize = 4096

// Split cuts data into chunks of at most size bytes. The first chunk is
// addressed at base and each following chunk at the previous address plus the
// previous chunk's length. Only the last chunk may be shorter than size.
//
// Chunks share memory with data. Split returns nil if data is empty or size
// is not positive.
//
// Example:
//
//	chunks := firmware.Split(0, make([]byte, 10000), 4096)
//	// addresses 0, 4096, 8192 with lengths 4096, 4096, 1808
func Split(base uint32, data []byte, size int) []Chunk {
	if size <= 0 || len(data) == 0 {
		return nil
	}

	chunks := make([]Chunk, 0, (len(data)+size-1)/size)
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, Chunk{
			Address: base + uint32(off),
			Data:    data[off:end],
		})
	}

	return chunks
}
