package chunker

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// ContentHash fingerprints the full ordered chunk-text sequence. Downstream
// artifacts (embedding sets, uploads) carry the hash they were computed
// against; a mismatch with the current hash means the artifact is stale.
type ContentHash string

// ComputeHash hashes the ordered chunk texts. Each text is framed with a
// uvarint length prefix, so sequences that happen to concatenate to the
// same bytes still hash differently. An empty set hashes to a fixed value.
func ComputeHash(chunks []Chunk) ContentHash {
	h := sha256.New()

	var frame [binary.MaxVarintLen64]byte
	for _, c := range chunks {
		n := binary.PutUvarint(frame[:], uint64(len(c.Text)))
		h.Write(frame[:n])
		h.Write([]byte(c.Text))
	}

	return ContentHash(hex.EncodeToString(h.Sum(nil)))
}

// IsStale reports whether an artifact tagged with tagged no longer matches
// the current chunk set. An artifact that was never tagged is always stale.
func IsStale(current, tagged ContentHash) bool {
	return tagged == "" || current != tagged
}
