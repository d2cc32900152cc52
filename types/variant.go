// Package types defines core domain types shared by the host bridge,
// the search driver, and the CLI.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the value held by a Variant.
type Kind uint8

const (
	// KindMissing marks an omitted argument or an empty result.
	KindMissing Kind = iota
	// KindNumber holds a float64.
	KindNumber
	// KindBool holds a boolean.
	KindBool
	// KindString holds text.
	KindString
	// KindError holds a host error value (#DIV/0!, #N/A, ...).
	KindError
	// KindArray holds a rectangular rows x cols array of Variants.
	KindArray
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindError:
		return "error"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Host error values, numbered the way spreadsheet hosts number them.
const (
	ErrNull  = 0
	ErrDiv0  = 7
	ErrValue = 15
	ErrRef   = 23
	ErrName  = 29
	ErrNum   = 36
	ErrNA    = 42
)

var errorValueNames = map[int]string{
	ErrNull:  "#NULL!",
	ErrDiv0:  "#DIV/0!",
	ErrValue: "#VALUE!",
	ErrRef:   "#REF!",
	ErrName:  "#NAME?",
	ErrNum:   "#NUM!",
	ErrNA:    "#N/A",
}

// Variant is the only data shape crossing the host boundary.
// Arrays are stored row-major in Elems with len(Elems) == Rows*Cols.
// Field tags keep the msgpack form compact; zero fields are omitted.
type Variant struct {
	Kind  Kind      `msgpack:"k"`
	Num   float64   `msgpack:"n,omitempty"`
	Bool  bool      `msgpack:"b,omitempty"`
	Str   string    `msgpack:"s,omitempty"`
	Err   int       `msgpack:"e,omitempty"`
	Rows  int       `msgpack:"r,omitempty"`
	Cols  int       `msgpack:"c,omitempty"`
	Elems []Variant `msgpack:"a,omitempty"`
}

// Missing returns a missing-marker Variant.
func Missing() Variant { return Variant{Kind: KindMissing} }

// Number returns a numeric Variant.
func Number(f float64) Variant { return Variant{Kind: KindNumber, Num: f} }

// Bool returns a boolean Variant.
func Bool(b bool) Variant { return Variant{Kind: KindBool, Bool: b} }

// String returns a text Variant.
func String(s string) Variant { return Variant{Kind: KindString, Str: s} }

// ErrorValue returns a host error Variant with the given error number.
func ErrorValue(code int) Variant { return Variant{Kind: KindError, Err: code} }

// Array returns a rows x cols array Variant. It panics if the element
// count does not match the shape.
func Array(rows, cols int, elems []Variant) Variant {
	if rows < 0 || cols < 0 || rows*cols != len(elems) {
		panic(fmt.Sprintf("types: array shape %dx%d does not fit %d elements", rows, cols, len(elems)))
	}
	return Variant{Kind: KindArray, Rows: rows, Cols: cols, Elems: elems}
}

// Row returns a 1 x len(elems) array Variant.
func Row(elems ...Variant) Variant { return Array(1, len(elems), elems) }

// Column returns a len(values) x 1 numeric array Variant.
func Column(values []float64) Variant {
	elems := make([]Variant, len(values))
	for i, v := range values {
		elems[i] = Number(v)
	}
	return Array(len(values), 1, elems)
}

// IsNumber reports whether v holds a number.
func (v Variant) IsNumber() bool { return v.Kind == KindNumber }

// IsArray reports whether v holds an array.
func (v Variant) IsArray() bool { return v.Kind == KindArray }

// Len returns the element count of an array, or 0 for scalars.
func (v Variant) Len() int {
	if v.Kind != KindArray {
		return 0
	}
	return len(v.Elems)
}

// CheckShape reports an error when v, or any array nested in it, has an
// element count that does not match its rows x cols shape. Values decoded
// from a host are not built through Array and may be malformed.
func (v Variant) CheckShape() error {
	if v.Kind != KindArray {
		return nil
	}
	if v.Rows < 0 || v.Cols < 0 || v.Rows*v.Cols != len(v.Elems) {
		return fmt.Errorf("array shape %dx%d does not fit %d elements", v.Rows, v.Cols, len(v.Elems))
	}
	for i, e := range v.Elems {
		if err := e.CheckShape(); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// At returns the element at row r, column c. It panics when out of range.
func (v Variant) At(r, c int) Variant {
	if v.Kind != KindArray || r < 0 || r >= v.Rows || c < 0 || c >= v.Cols {
		panic(fmt.Sprintf("types: index (%d,%d) out of range for %s", r, c, v.shape()))
	}
	return v.Elems[r*v.Cols+c]
}

// ErrorName returns the display name of a host error value.
func (v Variant) ErrorName() string {
	if name, ok := errorValueNames[v.Err]; ok {
		return name
	}
	return fmt.Sprintf("#ERR%d", v.Err)
}

func (v Variant) shape() string {
	if v.Kind != KindArray {
		return v.Kind.String()
	}
	return fmt.Sprintf("array %dx%d", v.Rows, v.Cols)
}

// String renders v for logs.
func (v Variant) String() string {
	switch v.Kind {
	case KindMissing:
		return "<missing>"
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindString:
		return strconv.Quote(v.Str)
	case KindError:
		return v.ErrorName()
	case KindArray:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = e.String()
		}
		return fmt.Sprintf("[%dx%d: %s]", v.Rows, v.Cols, strings.Join(parts, ", "))
	default:
		return v.Kind.String()
	}
}
