package proxy

import "sync"

// relayChunkSize is the most a relay reads from one side before writing it to
// the other.
const relayChunkSize = 4096

var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, relayChunkSize)
		return &b
	},
}

func getChunk() *[]byte {
	return chunkPool.Get().(*[]byte)
}

func putChunk(b *[]byte) {
	chunkPool.Put(b)
}
