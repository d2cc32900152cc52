package types

import "fmt"

// Result is the process exit code returned to the invoking host.
// Values match the host add-in's result enumeration.
type Result int

const (
	ResultLogFileError          Result = -12
	ResultUserCancelled         Result = -3
	ResultOptimal               Result = 0
	ResultErrorOccurred         Result = 1
	ResultStoppedIter           Result = 2
	ResultStoppedTime           Result = 3
	ResultInfeasible            Result = 4
	ResultStoppedIterInfeasible Result = 10
	ResultStoppedTimeInfeasible Result = 11
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultLogFileError:
		return "log_file_error"
	case ResultUserCancelled:
		return "user_cancelled"
	case ResultOptimal:
		return "optimal"
	case ResultErrorOccurred:
		return "error_occurred"
	case ResultStoppedIter:
		return "stopped_iter"
	case ResultStoppedTime:
		return "stopped_time"
	case ResultInfeasible:
		return "infeasible"
	case ResultStoppedIterInfeasible:
		return "stopped_iter_infeasible"
	case ResultStoppedTimeInfeasible:
		return "stopped_time_infeasible"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// VarType is the host's variable type enumeration.
type VarType int

const (
	VarContinuous VarType = 0
	VarInteger    VarType = 1
	VarBinary     VarType = 2
)

// Valid reports whether t is a known variable type.
func (t VarType) Valid() bool {
	return t == VarContinuous || t == VarInteger || t == VarBinary
}

// String returns the variable type name.
func (t VarType) String() string {
	switch t {
	case VarContinuous:
		return "continuous"
	case VarInteger:
		return "integer"
	case VarBinary:
		return "binary"
	default:
		return fmt.Sprintf("vartype(%d)", int(t))
	}
}
