// Package hashchain links payloads into SHA-256 chains and folds ledger hashes
// into a Merkle root.
package hashchain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the byte length of every link.
const Size = sha256.Size

var genesis = make([]byte, Size)

// Link returns SHA256(prev || payload). An empty prev is the 32 byte zero block.
func Link(prev, payload []byte) []byte {
	h := sha256.New()
	if len(prev) == 0 {
		h.Write(genesis)
	} else {
		h.Write(prev)
	}
	h.Write(payload)
	return h.Sum(nil)
}

// LinkHex is Link over hex encoded hashes.
func LinkHex(prevHex string, payload []byte) (string, error) {
	prev, err := Decode(prevHex)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(Link(prev, payload)), nil
}

// Decode parses a stored hash. The empty string decodes to nil (genesis).
func Decode(h string) ([]byte, error) {
	if h == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("hash %q is not hex: %w", h, err)
	}
	if len(b) != Size {
		return nil, fmt.Errorf("hash %q has %d bytes, want %d", h, len(b), Size)
	}
	return b, nil
}

// Record is one stored link of a chain.
type Record struct {
	Payload  []byte
	HashPrev string
	HashThis string
}

// BreakError reports the first record whose stored hashes disagree with the
// recomputed chain.
type BreakError struct {
	Index  int
	Reason string
}

func (e *BreakError) Error() string {
	return fmt.Sprintf("chain broken at index %d: %s", e.Index, e.Reason)
}

// Verify recomputes the chain from genesis and returns the final hash, or the
// empty string for an empty chain.
func Verify(records []Record) (string, error) {
	var prev []byte
	for i, rec := range records {
		storedPrev, err := Decode(rec.HashPrev)
		if err != nil {
			return "", &BreakError{Index: i, Reason: err.Error()}
		}
		if !bytes.Equal(storedPrev, prev) {
			return "", &BreakError{Index: i, Reason: "hash_prev does not match previous hash_this"}
		}
		next := Link(prev, rec.Payload)
		if hex.EncodeToString(next) != rec.HashThis {
			return "", &BreakError{Index: i, Reason: "hash_this does not match recomputed link"}
		}
		prev = next
	}
	return hex.EncodeToString(prev), nil
}

// Fold links every payload in order starting from genesis.
func Fold(payloads [][]byte) []byte {
	var prev []byte
	for _, p := range payloads {
		prev = Link(prev, p)
	}
	return prev
}

// MerkleRoot computes a binary Merkle root over leaves, hashing each pair as
// SHA256(left || right) and promoting an odd trailing node unchanged. An empty
// set has the zero root.
func MerkleRoot(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		return append([]byte(nil), genesis...)
	}
	level := make([][]byte, len(leaves))
	for i, l := range leaves {
		sum := sha256.Sum256(l)
		level[i] = sum[:]
	}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			h := sha256.New()
			h.Write(level[i])
			h.Write(level[i+1])
			next = append(next, h.Sum(nil))
		}
		level = next
	}
	return level[0]
}

// MerkleRootHex is MerkleRoot over hex encoded leaves.
func MerkleRootHex(leaves []string) (string, error) {
	raw := make([][]byte, len(leaves))
	for i, l := range leaves {
		b, err := Decode(l)
		if err != nil {
			return "", err
		}
		raw[i] = b
	}
	return hex.EncodeToString(MerkleRoot(raw)), nil
}
