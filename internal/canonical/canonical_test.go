package canonical_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/canonical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeysAndDropsWhitespace(t *testing.T) {
	out, err := canonical.Marshal(map[string]any{
		"period_id": "2025-09",
		"amount":    int64(123456),
		"abn":       "12345678901",
		"nested":    map[string]any{"b": true, "a": nil},
		"list":      []any{3, "x", false},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"abn":"12345678901","amount":123456,"list":[3,"x",false],"nested":{"a":null,"b":true},"period_id":"2025-09"}`,
		string(out))
}

func TestMarshal_Numbers(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"int", 42, "42"},
		{"negative int64", int64(-123456), "-123456"},
		{"integral float", 1000.0, "1000"},
		{"negative zero", math.Copysign(0, -1), "0"},
		{"fraction", 0.05, "0.05"},
		{"json number int", json.Number("7"), "7"},
		{"json number float", json.Number("2.50"), "2.5"},
		{"uint8", uint8(9), "9"},
		{"max uint64", uint64(math.MaxUint64), "18446744073709551615"},
		{"json number beyond int64", json.Number("18446744073709551615"), "18446744073709551615"},
		{"json number beyond uint64", json.Number("-123456789012345678901234567890"), "-123456789012345678901234567890"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := canonical.Marshal(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(out))
		})
	}
}

func TestMarshal_Strings(t *testing.T) {
	out, err := canonical.Marshal("a\"b\\c\n<&> \x01")
	require.NoError(t, err)
	assert.Equal(t, "\"a\\\"b\\\\c\\n<&> \\u0001\"", string(out))

	composed, err := canonical.Marshal(map[string]any{"café": "é"})
	require.NoError(t, err)
	decomposed, err := canonical.Marshal(map[string]any{"cafe\u0301": "e\u0301"})
	require.NoError(t, err)
	assert.Equal(t, string(composed), string(decomposed))
}

func TestMarshal_KeyOrderIsCodePointOrder(t *testing.T) {
	out, err := canonical.Marshal(map[string]any{"é": 1, "z": 2, "A": 3, "a": 4})
	require.NoError(t, err)
	assert.Equal(t, "{\"A\":3,\"a\":4,\"z\":2,\"é\":1}", string(out))
}

func TestMarshal_Structs(t *testing.T) {
	type row struct {
		Seq    int64     `json:"seq"`
		Amount int64     `json:"amount_cents"`
		At     time.Time `json:"created_at"`
	}
	at := time.Date(2025, 9, 30, 10, 0, 0, 0, time.UTC)
	out, err := canonical.Marshal(row{Seq: 1, Amount: 500, At: at})
	require.NoError(t, err)
	assert.Equal(t, `{"amount_cents":500,"created_at":"2025-09-30T10:00:00Z","seq":1}`, string(out))

	out, err = canonical.Marshal(map[string]int64{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(out))
}

func TestMarshal_Rejections(t *testing.T) {
	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	loop := []any{nil}
	loop[0] = loop

	type node struct {
		Next *node `json:"next"`
	}
	n := &node{}
	n.Next = n

	cases := map[string]any{
		"nan":          math.NaN(),
		"inf":          math.Inf(1),
		"cyclic map":   cyclic,
		"cyclic slice": loop,
		"cyclic ptr":   n,
		"bad utf8":     string([]byte{0xff, 0xfe}),
		"int keys":     map[int]string{1: "x"},
		"channel":      make(chan int),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := canonical.Marshal(in)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.CodeInvalidPayload), err.Error())
		})
	}
}

func TestMarshal_SharedReferencesAreNotCycles(t *testing.T) {
	shared := map[string]any{"k": 1}
	out, err := canonical.Marshal(map[string]any{"a": shared, "b": shared})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"k":1},"b":{"k":1}}`, string(out))
}

func TestNormalize_Idempotent(t *testing.T) {
	payloads := []string{
		`{"b":1,"a":[1,2,{"z":null,"y":"é"}]}`,
		`[1.0, 2.5, -0, 1e20, 1.5e-7, 12345678901234567890123]`,
		`"plain"`,
		`{"nested":{"deep":{"deeper":[true,false,null]}}}`,
		`{"amount_cents": 123456, "anomaly": 0.05, "ceiling": 0.8}`,
	}
	for _, p := range payloads {
		first, err := canonical.Normalize([]byte(p))
		require.NoError(t, err, p)
		second, err := canonical.Normalize(first)
		require.NoError(t, err, p)
		assert.Equal(t, string(first), string(second), p)
	}
}

func TestNormalize_KeepsLargeIntegersExact(t *testing.T) {
	out, err := canonical.Normalize([]byte(`{"n":18446744073709551615,"m":12345678901234567890123}`))
	require.NoError(t, err)
	assert.Equal(t, `{"m":12345678901234567890123,"n":18446744073709551615}`, string(out))
}

func TestNormalize_RejectsGarbage(t *testing.T) {
	_, err := canonical.Normalize([]byte(`{"a":1} {"b":2}`))
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidPayload))

	_, err = canonical.Normalize([]byte(`{"a":`))
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidPayload))
}

func TestDigest(t *testing.T) {
	b, sum, err := canonical.Digest(map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(b))
	assert.Equal(t, canonical.SHA256Hex(b), hexOf(sum[:]))
}

func hexOf(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0xf])
	}
	return string(out)
}
