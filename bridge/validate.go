package bridge

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/pithecene-io/cellsolve/host"
	"github.com/pithecene-io/cellsolve/types"
)

// Sentinel is the value host procedures return when their own logic
// caught an error. It is recognised only as a top-level scalar result;
// inside arrays it is ordinary data.
const Sentinel = -1.0

// Validate classifies a raw host reply. A failed call mechanism or any
// non-success status is TransportFailure; a scalar Sentinel is
// HostLogicFailure. Shape checks are left to callers.
func Validate(reply host.Reply, err error) types.Outcome {
	if err != nil || reply.Status != host.StatusSuccess {
		return types.OutcomeTransportFailure
	}
	if reply.Value.Kind == types.KindNumber && reply.Value.Num == Sentinel {
		return types.OutcomeHostLogicFailure
	}
	return types.OutcomeSuccess
}

func shapeErrorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// elements returns the elements of an array holding exactly n values.
// An empty expected array also accepts Missing.
func elements(v types.Variant, n int) ([]types.Variant, error) {
	if n == 0 && v.Kind == types.KindMissing {
		return nil, nil
	}
	if !v.IsArray() {
		return nil, shapeErrorf("want array of %d, got %s", n, v.Kind)
	}
	if len(v.Elems) != n {
		return nil, shapeErrorf("want %d elements, got %dx%d", n, v.Rows, v.Cols)
	}
	return v.Elems, nil
}

func number(v types.Variant) (float64, error) {
	if !v.IsNumber() {
		return 0, shapeErrorf("want number, got %s", v.Kind)
	}
	return v.Num, nil
}

// count accepts a non-negative integral number.
func count(v types.Variant) (int, error) {
	f, err := number(v)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, shapeErrorf("want non-negative integer, got %v", f)
	}
	return int(f), nil
}

// ack accepts the scalar zero acknowledgement.
func ack(v types.Variant) error {
	if !v.IsNumber() || v.Num != 0 {
		return shapeErrorf("want acknowledgement 0, got %s", v)
	}
	return nil
}

// text decodes a (string, length) pair. The string is cut to length runes.
func text(str, length types.Variant) (string, error) {
	if str.Kind != types.KindString {
		return "", shapeErrorf("want string, got %s", str.Kind)
	}
	n, err := count(length)
	if err != nil {
		return "", fmt.Errorf("string length: %w", err)
	}
	s := str.Str
	if utf8.RuneCountInString(s) > n {
		runes := []rune(s)
		s = string(runes[:n])
	}
	return s, nil
}
