package types

import (
	"errors"
	"fmt"
)

// Outcome classifies the result of one bridge operation.
type Outcome int

const (
	// OutcomeSuccess indicates the operation completed.
	OutcomeSuccess Outcome = 0
	// OutcomeUserAbort indicates a confirmed user cancellation.
	OutcomeUserAbort Outcome = 1
	// OutcomeTransportFailure indicates the call mechanism rejected the request.
	OutcomeTransportFailure Outcome = 2
	// OutcomeHostLogicFailure indicates host-side logic reported an error
	// through the sentinel return value.
	OutcomeHostLogicFailure Outcome = 3
	// OutcomeInvalidShape indicates the host returned the wrong type or dimensions.
	OutcomeInvalidShape Outcome = 4
)

// String returns the outcome name used in logs and trace records.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUserAbort:
		return "user_abort"
	case OutcomeTransportFailure:
		return "transport_failure"
	case OutcomeHostLogicFailure:
		return "host_logic_failure"
	case OutcomeInvalidShape:
		return "invalid_shape"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

func (o Outcome) text() string {
	switch o {
	case OutcomeUserAbort:
		return "Aborted due to user cancellation."
	case OutcomeTransportFailure:
		return "Error contacting the host."
	case OutcomeHostLogicFailure:
		return "An error occurred inside the host while running."
	case OutcomeInvalidShape:
		return "The host returned an invalid value."
	default:
		return "Unknown error."
	}
}

// Location identifies the protocol step that produced an outcome.
type Location int

const (
	LocationNone                Location = 0
	LocationShowCancelDialog    Location = 1
	LocationCheckEscape         Location = 2
	LocationGetLogFilePath      Location = 3
	LocationGetNumConstraints   Location = 4
	LocationGetNumVariables     Location = 5
	LocationGetVariableData     Location = 6
	LocationGetOptionData       Location = 7
	LocationUpdateVars          Location = 8
	LocationRecalculateValues   Location = 9
	LocationGetConstraintValues Location = 10
	LocationLoadResult          Location = 11
)

// String returns the step name.
func (l Location) String() string {
	switch l {
	case LocationShowCancelDialog:
		return "ShowCancelDialog"
	case LocationCheckEscape:
		return "CheckEscapeKeypress"
	case LocationGetLogFilePath:
		return "GetLogFilePath"
	case LocationGetNumConstraints:
		return "GetNumConstraints"
	case LocationGetNumVariables:
		return "GetNumVariables"
	case LocationGetVariableData:
		return "GetVariableData"
	case LocationGetOptionData:
		return "GetOptionData"
	case LocationUpdateVars:
		return "UpdateVars"
	case LocationRecalculateValues:
		return "RecalculateValues"
	case LocationGetConstraintValues:
		return "GetConstraintValues"
	case LocationLoadResult:
		return "LoadResult"
	default:
		return "unknown"
	}
}

// LocationOffset separates the location from the outcome in a Code.
// It must exceed the largest Outcome value.
const LocationOffset = 100

// Code packs an Outcome and a Location into one integer:
// location*LocationOffset + outcome. Success is always 0.
type Code int

// Encode attaches a location to a non-success outcome.
func Encode(o Outcome, l Location) Code {
	if o == OutcomeSuccess {
		return 0
	}
	return Code(int(l)*LocationOffset + int(o))
}

// WithLocation attaches l to c unless c is success or already located.
func (c Code) WithLocation(l Location) Code {
	if c == 0 || int(c) >= LocationOffset {
		return c
	}
	return Encode(Outcome(c), l)
}

// Outcome returns the outcome component.
func (c Code) Outcome() Outcome { return Outcome(int(c) % LocationOffset) }

// Location returns the location component.
func (c Code) Location() Location { return Location(int(c) / LocationOffset) }

// Message renders a human-readable description of c.
func (c Code) Message() string {
	return c.Outcome().text() + " Location: " + c.Location().String() + "."
}

// Error carries a non-success Code as a Go error.
type Error struct {
	Code Code
	// Detail is optional context for logs; it does not change the code.
	Detail string
}

// NewError returns an error for outcome o at location l, or nil on success.
func NewError(o Outcome, l Location, detail string) error {
	if o == OutcomeSuccess {
		return nil
	}
	return &Error{Code: Encode(o, l), Detail: detail}
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%s)", e.Code.Message(), e.Detail)
	}
	return e.Code.Message()
}

// CodeOf returns the Code carried by err: 0 for nil, the packed code for
// a wrapped *Error, and an unlocated TransportFailure for anything else.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Code(OutcomeTransportFailure)
}

// IsUserAbort reports whether err carries a UserAbort outcome.
func IsUserAbort(err error) bool {
	return err != nil && CodeOf(err).Outcome() == OutcomeUserAbort
}
