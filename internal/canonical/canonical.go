// Package canonical produces the deterministic JSON byte form used for hashing,
// signing and response fingerprinting.
//
// Rules: object keys are NFC normalised and sorted by UTF-8 code point, no
// insignificant whitespace, integers are rendered without a fraction, strings
// are NFC normalised and only quote, backslash and control characters are
// escaped. Non-finite numbers and cyclic values are rejected with
// INVALID_PAYLOAD.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

const maxDepth = 256

// Marshal returns the canonical encoding of v.
func Marshal(v any) ([]byte, error) {
	e := &encoder{active: make(map[visit]struct{})}
	if err := e.encode(v); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// Digest returns the canonical encoding of v and its SHA-256 digest.
func Digest(v any) ([]byte, [sha256.Size]byte, error) {
	b, err := Marshal(v)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	return b, sha256.Sum256(b), nil
}

// Normalize parses raw JSON and re-encodes it canonically.
func Normalize(raw []byte) ([]byte, error) {
	v, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Marshal(v)
}

// Parse decodes a single JSON document keeping numbers exact.
func Parse(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidPayload, "payload is not valid JSON", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, apperrors.New(apperrors.CodeInvalidPayload, "trailing data after JSON document")
	}
	return v, nil
}

// SHA256Hex returns the lower-case hex SHA-256 of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type visit struct {
	ptr uintptr
	len int
	typ reflect.Type
}

type encoder struct {
	buf    bytes.Buffer
	depth  int
	active map[visit]struct{}
}

func invalid(format string, args ...any) error {
	return apperrors.Newf(apperrors.CodeInvalidPayload, format, args...)
}

func (e *encoder) encode(v any) error {
	switch t := v.(type) {
	case nil:
		e.buf.WriteString("null")
		return nil
	case json.RawMessage:
		parsed, err := Parse(t)
		if err != nil {
			return err
		}
		return e.encode(parsed)
	case json.Number:
		return e.encodeNumber(string(t))
	case string:
		return e.encodeString(t)
	case bool:
		e.buf.WriteString(strconv.FormatBool(t))
		return nil
	case int:
		e.buf.WriteString(strconv.FormatInt(int64(t), 10))
		return nil
	case int32:
		e.buf.WriteString(strconv.FormatInt(int64(t), 10))
		return nil
	case int64:
		e.buf.WriteString(strconv.FormatInt(t, 10))
		return nil
	case uint64:
		e.buf.WriteString(strconv.FormatUint(t, 10))
		return nil
	case float64:
		return e.encodeFloat(t)
	case float32:
		return e.encodeFloat(float64(t))
	case []byte:
		return e.encodeString(base64.StdEncoding.EncodeToString(t))
	case map[string]any:
		return e.withVisit(reflect.ValueOf(t), func() error {
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			return e.encodeObject(keys, func(k string) any { return t[k] })
		})
	case []any:
		return e.withVisit(reflect.ValueOf(t), func() error {
			return e.encodeArray(len(t), func(i int) any { return t[i] })
		})
	case json.Marshaler:
		raw, err := t.MarshalJSON()
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidPayload, "value could not be marshalled", err)
		}
		return e.encode(json.RawMessage(raw))
	}
	return e.encodeReflect(reflect.ValueOf(v))
}

func (e *encoder) encodeReflect(rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		e.buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return e.encodeFloat(rv.Float())
	case reflect.String:
		return e.encodeString(rv.String())
	case reflect.Bool:
		e.buf.WriteString(strconv.FormatBool(rv.Bool()))
		return nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		if rv.Kind() == reflect.Interface {
			return e.encode(rv.Elem().Interface())
		}
		return e.withVisit(rv, func() error { return e.encode(rv.Elem().Interface()) })
	case reflect.Map:
		if rv.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		if rv.Type().Key().Kind() != reflect.String {
			return invalid("map keys must be strings, got %s", rv.Type().Key())
		}
		return e.withVisit(rv, func() error {
			byKey := make(map[string]reflect.Value, rv.Len())
			keys := make([]string, 0, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				k := iter.Key().String()
				byKey[k] = iter.Value()
				keys = append(keys, k)
			}
			return e.encodeObject(keys, func(k string) any { return byKey[k].Interface() })
		})
	case reflect.Slice:
		if rv.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.withVisit(rv, func() error {
			return e.encodeArray(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
		})
	case reflect.Array:
		return e.encodeArray(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Struct:
		raw, err := json.Marshal(rv.Interface())
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidPayload, "value could not be marshalled", err)
		}
		return e.encode(json.RawMessage(raw))
	default:
		return invalid("unsupported type %s", rv.Type())
	}
}

// withVisit guards against reference cycles on the current path.
func (e *encoder) withVisit(rv reflect.Value, fn func() error) error {
	e.depth++
	defer func() { e.depth-- }()
	if e.depth > maxDepth {
		return invalid("payload nesting exceeds %d levels", maxDepth)
	}

	key := visit{typ: rv.Type()}
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer:
		key.ptr = rv.Pointer()
	case reflect.Slice:
		key.ptr = rv.Pointer()
		key.len = rv.Len()
	}
	if key.ptr != 0 {
		if _, seen := e.active[key]; seen {
			return invalid("cyclic payload detected")
		}
		e.active[key] = struct{}{}
		defer delete(e.active, key)
	}
	return fn()
}

func (e *encoder) encodeObject(keys []string, get func(string) any) error {
	normalized := make(map[string]string, len(keys))
	sorted := make([]string, 0, len(keys))
	for _, k := range keys {
		if !utf8.ValidString(k) {
			return invalid("object key is not valid UTF-8")
		}
		nk := norm.NFC.String(k)
		if _, dup := normalized[nk]; dup {
			return invalid("duplicate object key %q after normalisation", nk)
		}
		normalized[nk] = k
		sorted = append(sorted, nk)
	}
	sort.Strings(sorted)

	e.buf.WriteByte('{')
	for i, nk := range sorted {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encodeString(nk); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.encode(get(normalized[nk])); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func (e *encoder) encodeArray(n int, get func(int) any) error {
	e.buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encode(get(i)); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) encodeNumber(s string) error {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		e.buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	// Integer literals beyond int64 keep every digit.
	if isIntegerLiteral(s) {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return invalid("number %q is not representable", s)
		}
		e.buf.WriteString(d.String())
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return invalid("number %q is not representable", s)
	}
	return e.encodeFloat(f)
}

func isIntegerLiteral(s string) bool {
	if len(s) > 0 && s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (e *encoder) encodeFloat(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return invalid("non-finite number")
	}
	switch {
	case f == 0:
		e.buf.WriteByte('0')
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		e.buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	default:
		e.buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return nil
}

const hexDigits = "0123456789abcdef"

func (e *encoder) encodeString(s string) error {
	if !utf8.ValidString(s) {
		return invalid("string is not valid UTF-8")
	}
	s = norm.NFC.String(s)
	e.buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			e.buf.WriteString(`\"`)
		case c == '\\':
			e.buf.WriteString(`\\`)
		case c == '\b':
			e.buf.WriteString(`\b`)
		case c == '\f':
			e.buf.WriteString(`\f`)
		case c == '\n':
			e.buf.WriteString(`\n`)
		case c == '\r':
			e.buf.WriteString(`\r`)
		case c == '\t':
			e.buf.WriteString(`\t`)
		case c < 0x20:
			e.buf.WriteString(`\u00`)
			e.buf.WriteByte(hexDigits[c>>4])
			e.buf.WriteByte(hexDigits[c&0xf])
		default:
			e.buf.WriteByte(c)
		}
	}
	e.buf.WriteByte('"')
	return nil
}
