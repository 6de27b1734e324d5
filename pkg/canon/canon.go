// Package canon builds the "whole object, any order" message used by
// single-signer commands: values sorted by field name and joined with no
// separator.
//
// The format has no delimiters or length framing, so {"a":"1","b":"23"} and
// {"a":"12","b":"3"} produce the same bytes. Existing signers sign exactly
// this format; it must only be used where a command is declared canonical,
// never for typed numeric payloads.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math/big"
	"slices"
	"strconv"

	"github.com/erc7824/ledgergate/pkg/errcode"
)

var ErrUnsupportedValue = errcode.New(errcode.TypeMismatch, "value is not a scalar")

// Canonicalize sorts the keys of fields byte-wise, concatenates the string
// form of each value and strips a leading "0x" from the result.
func Canonicalize(fields map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		s, err := Stringify(fields[key])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		buf.WriteString(s)
	}

	return bytes.TrimPrefix(buf.Bytes(), []byte("0x")), nil
}

// Stringify returns the text a value contributes to the canonical message.
// JSON numbers keep their literal text.
func Stringify(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case *big.Int:
		if v == nil {
			break
		}
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}
