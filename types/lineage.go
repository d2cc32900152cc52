package types

import (
	"errors"
	"strings"
)

// RunMeta identifies one solve run.
type RunMeta struct {
	// RunID is the run identifier. Must be unique per solve.
	RunID string
	// Host describes the host transport: "stdio" or the spawned host command.
	Host string
	// Workbook is the host-reported model name, if the host supplied one.
	Workbook *string
}

// Validate checks that the run identity is usable as a storage partition key.
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	if strings.ContainsAny(r.RunID, "/= \t\n") {
		return errors.New("run_id must not contain '/', '=' or whitespace")
	}
	return nil
}
