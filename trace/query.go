package trace

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrNoRecords is returned when no trace records match the query.
var ErrNoRecords = errors.New("no trace records found")

// Run is the trace of one solve run.
type Run struct {
	RunID       string             `json:"run_id"`
	Evaluations []EvaluationRecord `json:"evaluations"`
	// Summary is nil while the run is in progress or if it never finished.
	Summary     *SummaryRecord     `json:"summary,omitempty"`
}

// QueryRun reads the trace of runID. An empty runID selects the run of
// the most recent snapshot. Evaluations are returned in seq order; a
// record seen in more than one snapshot is kept once.
func QueryRun(ctx context.Context, ds lode.Dataset, runID string) (*Run, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, Dataset+"/snapshots")
	}
	if len(snapshots) == 0 {
		return nil, ErrNoRecords
	}

	if runID == "" {
		runID, err = latestRunID(ctx, ds, snapshots)
		if err != nil {
			return nil, err
		}
	}

	run := &Run{RunID: runID}
	seen := make(map[int]struct{})
	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, "run_id", runID) {
			continue
		}
		records, err := readRecords(ctx, ds, snap)
		if err != nil {
			return nil, err
		}
		// Manifest path filtering is a coarse pre-filter; record fields
		// are authoritative.
		for _, raw := range records {
			if toString(raw["run_id"]) != runID {
				continue
			}
			switch raw["record_kind"] {
			case RecordKindEvaluation:
				var rec EvaluationRecord
				if err := decodeRecord(raw, &rec); err != nil {
					return nil, fmt.Errorf("decode evaluation record: %w", err)
				}
				if _, dup := seen[rec.Seq]; dup {
					continue
				}
				seen[rec.Seq] = struct{}{}
				run.Evaluations = append(run.Evaluations, rec)
			case RecordKindSummary:
				var rec SummaryRecord
				if err := decodeRecord(raw, &rec); err != nil {
					return nil, fmt.Errorf("decode summary record: %w", err)
				}
				run.Summary = &rec
			}
		}
	}

	if len(run.Evaluations) == 0 && run.Summary == nil {
		return nil, ErrNoRecords
	}
	slices.SortFunc(run.Evaluations, func(a, b EvaluationRecord) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return run, nil
}

// ListRuns returns the run IDs present in the dataset, oldest first.
func ListRuns(ctx context.Context, ds lode.Dataset) ([]string, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, Dataset+"/snapshots")
	}
	var runs []string
	seen := make(map[string]struct{})
	for _, snap := range snapshots {
		for _, f := range snap.Manifest.Files {
			id := partitionValue(f.Path, "run_id")
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			runs = append(runs, id)
		}
	}
	return runs, nil
}

func latestRunID(ctx context.Context, ds lode.Dataset, snapshots []*lode.DatasetSnapshot) (string, error) {
	for i := len(snapshots) - 1; i >= 0; i-- {
		records, err := readRecords(ctx, ds, snapshots[i])
		if err != nil {
			return "", err
		}
		for j := len(records) - 1; j >= 0; j-- {
			if id := toString(records[j]["run_id"]); id != "" {
				return id, nil
			}
		}
	}
	return "", ErrNoRecords
}

func readRecords(ctx context.Context, ds lode.Dataset, snap *lode.DatasetSnapshot) ([]map[string]any, error) {
	data, err := ds.Read(ctx, snap.ID)
	if err != nil {
		return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", Dataset, snap.ID))
	}
	out := make([]map[string]any, 0, len(data))
	for _, item := range data {
		if record, ok := item.(map[string]any); ok {
			out = append(out, record)
		}
	}
	return out, nil
}

// snapshotMatchesFilter checks if a snapshot's file paths match
// the given partition key=value filter.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if partitionValue(f.Path, key) == value {
			return true
		}
	}
	return false
}

// partitionValue returns the value of the key=value segment of a
// Hive-partitioned path. Matching whole segments avoids run-1 matching
// run-10.
func partitionValue(path, key string) string {
	for part := range strings.SplitSeq(path, "/") {
		if v, ok := strings.CutPrefix(part, key+"="); ok {
			return v
		}
	}
	return ""
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
