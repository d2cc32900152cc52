package sim

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pithecene-io/cellsolve/bridge"
	"github.com/pithecene-io/cellsolve/host"
	"github.com/pithecene-io/cellsolve/log"
	"github.com/pithecene-io/cellsolve/types"
)

// Option configures a Workbook.
type Option func(*Workbook)

// WithMacroPrefix sets the prefix every non-builtin procedure name must
// carry, for example "Book1.xlsm!".
func WithMacroPrefix(prefix string) Option {
	return func(w *Workbook) { w.prefix = prefix }
}

// WithCancelAfter simulates an escape press during the nth recalculation.
// Zero disables it.
func WithCancelAfter(n int) Option {
	return func(w *Workbook) { w.cancelAfter = n }
}

// WithConfirmCancel sets the user's answer to the cancel dialog.
func WithConfirmCancel(confirm bool) Option {
	return func(w *Workbook) { w.confirmCancel = confirm }
}

// WithLegacyDialog makes the cancel dialog acknowledge with 0 and report
// the answer only through GetConfirmedAbort.
func WithLegacyDialog() Option {
	return func(w *Workbook) { w.legacyDialog = true }
}

// WithLogPath sets the path returned by GetLogFilePath.
func WithLogPath(path string) Option {
	return func(w *Workbook) { w.logPath = path }
}

// WithFailingProc makes the named procedure report the host error
// sentinel instead of running.
func WithFailingProc(proc string) Option {
	return func(w *Workbook) { w.failProc = proc }
}

// WithLogger sets the workbook's logger.
func WithLogger(l *log.Logger) Option {
	return func(w *Workbook) { w.logger = l }
}

// Workbook is a simulated host workbook. It implements host.Handler.
type Workbook struct {
	model         Model
	prefix        string
	cancelAfter   int
	confirmCancel bool
	legacyDialog  bool
	logPath       string
	failProc      string
	logger        *log.Logger

	mu         sync.Mutex
	x          []float64
	cells      []types.Variant
	recalcs    int
	updates    int
	dialogs    int
	pending    bool
	confirmed  bool
	best       *float64
	infeasible bool
	result     *types.Result
}

// NewWorkbook creates a workbook for m positioned at m.Start.
func NewWorkbook(m Model, opts ...Option) *Workbook {
	w := &Workbook{
		model:  m,
		logger: log.NewNop(),
		x:      append([]float64(nil), m.Start...),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logPath == "" {
		w.logPath = filepath.Join(os.TempDir(), "cellsolve_"+m.Name+".log")
	}
	return w
}

var _ host.Handler = (*Workbook)(nil)

// HandleCall implements host.Handler.
func (w *Workbook) HandleCall(_ context.Context, proc string, args []types.Variant) (host.Status, types.Variant, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if proc == host.ProcAbort {
		return w.abort(args)
	}
	name, ok := strings.CutPrefix(proc, w.prefix)
	if !ok {
		return host.StatusInvalidFunction, types.Missing(), nil
	}
	if name == w.failProc {
		w.logger.Debug("procedure failing on request", map[string]any{"proc": name})
		return host.StatusSuccess, types.Number(bridge.Sentinel), nil
	}

	switch name {
	case bridge.ProcGetLogFilePath:
		return success(types.Row(types.String(w.logPath), types.Number(float64(utf8.RuneCountInString(w.logPath)))))
	case bridge.ProcGetNumConstraints:
		return success(types.Row(types.Number(float64(w.model.Rows)), types.Number(float64(w.model.Objs))))
	case bridge.ProcGetNumVariables:
		return success(types.Number(float64(len(w.model.Start))))
	case bridge.ProcGetVariableData:
		return success(w.variableData())
	case bridge.ProcGetOptionData:
		return success(w.optionData())
	case bridge.ProcUpdateVars:
		return w.updateVars(args)
	case bridge.ProcRecalculateValues:
		return w.recalculate()
	case bridge.ProcGetValues:
		if w.cells == nil {
			return success(types.Number(bridge.Sentinel))
		}
		return success(types.Array(len(w.cells), 1, append([]types.Variant(nil), w.cells...)))
	case bridge.ProcShowCancelDialog:
		w.dialogs++
		w.confirmed = w.confirmCancel
		if w.legacyDialog {
			return success(types.Number(0))
		}
		return success(types.Bool(w.confirmCancel))
	case bridge.ProcGetConfirmedAbort:
		return success(types.Bool(w.confirmed))
	case bridge.ProcLoadResult:
		if len(args) != 1 || !args[0].IsNumber() {
			return host.StatusInvalidArgs, types.Missing(), nil
		}
		r := types.Result(int(args[0].Num))
		w.result = &r
		w.logger.Info("result loaded", map[string]any{"result": r.String()})
		return success(types.Number(0))
	default:
		return host.StatusInvalidFunction, types.Missing(), nil
	}
}

func success(v types.Variant) (host.Status, types.Variant, error) {
	return host.StatusSuccess, v, nil
}

func (w *Workbook) abort(args []types.Variant) (host.Status, types.Variant, error) {
	switch {
	case len(args) == 0:
		return success(types.Bool(w.pending))
	case len(args) == 1 && args[0].Kind == types.KindBool && !args[0].Bool:
		prev := w.pending
		w.pending = false
		return success(types.Bool(prev))
	default:
		return host.StatusInvalidArgs, types.Missing(), nil
	}
}

func (w *Workbook) variableData() types.Variant {
	n := len(w.model.Start)
	vals := make([]float64, 0, 4*n)
	for _, v := range w.model.Lower {
		vals = append(vals, encodeBound(v))
	}
	for _, v := range w.model.Upper {
		vals = append(vals, encodeBound(v))
	}
	vals = append(vals, w.model.Start...)
	for _, t := range w.model.Types {
		vals = append(vals, float64(t))
	}
	return types.Column(vals)
}

func (w *Workbook) optionData() types.Variant {
	if len(w.model.Options) == 0 {
		return types.Missing()
	}
	elems := make([]types.Variant, 0, 2*len(w.model.Options))
	for _, line := range w.model.Options {
		elems = append(elems, types.String(line), types.Number(float64(utf8.RuneCountInString(line))))
	}
	return types.Array(len(w.model.Options), 2, elems)
}

func (w *Workbook) updateVars(args []types.Variant) (host.Status, types.Variant, error) {
	if len(args) != 3 {
		return host.StatusInvalidCount, types.Missing(), nil
	}
	xs, best, infeasible := args[0], args[1], args[2]
	if !xs.IsArray() || xs.Len() != len(w.model.Start) || infeasible.Kind != types.KindBool {
		return success(types.Number(bridge.Sentinel))
	}
	x := make([]float64, xs.Len())
	for i, e := range xs.Elems {
		if !e.IsNumber() {
			return success(types.Number(bridge.Sentinel))
		}
		x[i] = e.Num
	}
	w.x = x
	w.cells = nil
	w.updates++
	w.best = nil
	if best.IsNumber() {
		b := best.Num
		w.best = &b
	}
	w.infeasible = infeasible.Bool
	return success(types.Number(0))
}

func (w *Workbook) recalculate() (host.Status, types.Variant, error) {
	w.recalcs++
	w.cells = w.model.Cells(w.x)
	if w.cancelAfter > 0 && w.recalcs == w.cancelAfter {
		w.pending = true
		w.logger.Debug("escape pressed", map[string]any{"recalcs": w.recalcs})
	}
	return success(types.Number(0))
}

// State is a snapshot of the workbook.
type State struct {
	X          []float64
	Recalcs    int
	Updates    int
	Dialogs    int
	Pending    bool
	Best       *float64
	Infeasible bool
	Result     *types.Result
}

// State returns a snapshot of the workbook.
func (w *Workbook) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		X:          append([]float64(nil), w.x...),
		Recalcs:    w.recalcs,
		Updates:    w.updates,
		Dialogs:    w.dialogs,
		Pending:    w.pending,
		Best:       w.best,
		Infeasible: w.infeasible,
		Result:     w.result,
	}
}
