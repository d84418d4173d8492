package hashchain_test

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/apgms/apgms/internal/hashchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLink_GenesisUsesZeroBlock(t *testing.T) {
	payload := []byte(`{"a":1}`)
	want := sha256.Sum256(append(make([]byte, 32), payload...))

	assert.Equal(t, want[:], hashchain.Link(nil, payload))
	assert.Equal(t, want[:], hashchain.Link([]byte{}, payload))

	h, err := hashchain.LinkHex("", payload)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), h)
}

func TestLink_Deterministic(t *testing.T) {
	prev := hashchain.Link(nil, []byte("first"))
	assert.Equal(t, hashchain.Link(prev, []byte("second")), hashchain.Link(prev, []byte("second")))
	assert.NotEqual(t, hashchain.Link(prev, []byte("second")), hashchain.Link(nil, []byte("second")))
}

func buildChain(payloads ...string) []hashchain.Record {
	records := make([]hashchain.Record, 0, len(payloads))
	prev := ""
	for _, p := range payloads {
		this, _ := hashchain.LinkHex(prev, []byte(p))
		records = append(records, hashchain.Record{Payload: []byte(p), HashPrev: prev, HashThis: this})
		prev = this
	}
	return records
}

func TestVerify(t *testing.T) {
	records := buildChain("a", "b", "c")

	tail, err := hashchain.Verify(records)
	require.NoError(t, err)
	assert.Equal(t, records[2].HashThis, tail)

	folded := hashchain.Fold([][]byte{[]byte("a"), []byte("b"), []byte("c")})
	assert.Equal(t, tail, hex.EncodeToString(folded))
}

func TestVerify_DetectsTampering(t *testing.T) {
	records := buildChain("a", "b", "c")
	records[1].Payload = []byte("B")

	_, err := hashchain.Verify(records)
	var breakErr *hashchain.BreakError
	require.True(t, errors.As(err, &breakErr))
	assert.Equal(t, 1, breakErr.Index)

	records = buildChain("a", "b", "c")
	records[2].HashPrev = records[0].HashThis
	_, err = hashchain.Verify(records)
	require.True(t, errors.As(err, &breakErr))
	assert.Equal(t, 2, breakErr.Index)
}

func TestVerify_Empty(t *testing.T) {
	tail, err := hashchain.Verify(nil)
	require.NoError(t, err)
	assert.Empty(t, tail)
}

func TestDecode_RejectsBadHashes(t *testing.T) {
	_, err := hashchain.Decode("zz")
	assert.Error(t, err)
	_, err = hashchain.Decode("abcd")
	assert.Error(t, err)
}

func TestMerkleRoot(t *testing.T) {
	assert.Equal(t, make([]byte, 32), hashchain.MerkleRoot(nil))

	a, b, c := []byte("a"), []byte("b"), []byte("c")
	ha, hb, hc := sha256.Sum256(a), sha256.Sum256(b), sha256.Sum256(c)

	assert.Equal(t, ha[:], hashchain.MerkleRoot([][]byte{a}))

	ab := sha256.Sum256(append(append([]byte{}, ha[:]...), hb[:]...))
	assert.Equal(t, ab[:], hashchain.MerkleRoot([][]byte{a, b}))

	abc := sha256.Sum256(append(append([]byte{}, ab[:]...), hc[:]...))
	assert.Equal(t, abc[:], hashchain.MerkleRoot([][]byte{a, b, c}))
}
