package models

// Chunk is a fetched or passively captured byte range plus its payload.
// For manifest-driven chunks len(Data) equals End-Start+1; passively captured
// chunks take their bounds from the network and carry no such guarantee.
type Chunk struct {
	// Start is the inclusive first byte offset of the chunk in its resource.
	Start int64
	// End is the inclusive last byte offset of the chunk in its resource.
	End int64
	// Data is the payload.
	Data []byte
}

// Len returns the declared length of the range covered by the chunk.
func (c Chunk) Len() int64 {
	return c.End - c.Start + 1
}

// Track is one contiguous reassembled byte stream.
type Track struct {
	// ID is the representation ID on the manifest path, or the resource base
	// name on the passive path.
	ID string
	// Data is the concatenated payload.
	Data []byte
}

// Size returns the payload size in bytes.
func (t Track) Size() int64 {
	return int64(len(t.Data))
}
