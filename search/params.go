package search

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Params controls the search. Zero limits mean "no limit".
type Params struct {
	// MaxBBEval caps counted blackbox evaluations.
	MaxBBEval int
	// MaxTime caps wall-clock time.
	MaxTime time.Duration
	// MaxIterations caps poll iterations.
	MaxIterations int
	// InitialMeshSize is the starting poll step for every variable. Zero
	// derives a step from each variable's bounds.
	InitialMeshSize float64
	// MinMeshSize ends the search once every continuous step falls below it.
	MinMeshSize float64
	// DisplayDegree is 0 (silent) to 3 (every evaluation).
	DisplayDegree int
	// Seed orders the poll directions. -1 picks a time-based seed.
	Seed int64
}

// DefaultParams returns the defaults used for options the host omits.
func DefaultParams() Params {
	return Params{
		MinMeshSize:   1e-9,
		DisplayDegree: 1,
	}
}

// OptionError reports a rejected option line.
type OptionError struct {
	Line int
	Name string
	Msg  string
}

func (e *OptionError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("option line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("option line %d (%s): %s", e.Line, e.Name, e.Msg)
}

// ParseOptions parses "NAME VALUE" option lines on top of DefaultParams.
// Names are case-insensitive. Blank lines and lines starting with '#' are
// skipped. A name without a value, an unknown name, or STATS_FILE is
// rejected.
func ParseOptions(lines []string) (Params, error) {
	p := DefaultParams()
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		name := strings.ToUpper(fields[0])
		optErr := func(format string, args ...any) error {
			return &OptionError{Line: i + 1, Name: name, Msg: fmt.Sprintf(format, args...)}
		}

		if name == "STATS_FILE" {
			return Params{}, optErr("statistics files are not supported")
		}
		if len(fields) < 2 {
			return Params{}, optErr("missing value")
		}
		if len(fields) > 2 {
			return Params{}, optErr("expected a single value, got %q", strings.Join(fields[1:], " "))
		}
		value := fields[1]

		var err error
		switch name {
		case "MAX_BB_EVAL":
			p.MaxBBEval, err = parseCount(value)
		case "MAX_ITERATIONS":
			p.MaxIterations, err = parseCount(value)
		case "MAX_TIME":
			var secs float64
			secs, err = parsePositive(value, true)
			p.MaxTime = time.Duration(secs * float64(time.Second))
		case "INITIAL_MESH_SIZE":
			p.InitialMeshSize, err = parsePositive(value, false)
		case "MIN_MESH_SIZE":
			p.MinMeshSize, err = parsePositive(value, false)
		case "DISPLAY_DEGREE":
			p.DisplayDegree, err = parseCount(value)
			if err == nil && p.DisplayDegree > 3 {
				err = fmt.Errorf("must be 0-3")
			}
		case "SEED":
			p.Seed, err = strconv.ParseInt(value, 10, 64)
			if err == nil && p.Seed < -1 {
				err = fmt.Errorf("must be -1 or non-negative")
			}
		default:
			return Params{}, optErr("unknown option")
		}
		if err != nil {
			return Params{}, optErr("invalid value %q: %v", value, err)
		}
	}
	return p, nil
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must be non-negative")
	}
	return n, nil
}

func parsePositive(s string, allowZero bool) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || (!allowZero && f == 0) {
		return 0, fmt.Errorf("out of range")
	}
	return f, nil
}
