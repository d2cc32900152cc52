package bridge

import (
	"testing"

	"github.com/pithecene-io/cellsolve/host"
	"github.com/pithecene-io/cellsolve/host/hosttest"
	"github.com/pithecene-io/cellsolve/types"
)

// abortFlag scripts the builtin pending flag so clearing it is observable.
type abortFlag struct {
	pending bool
	clears  int
}

func (a *abortFlag) respond(args []types.Variant) (host.Reply, error) {
	if len(args) == 1 && args[0].Kind == types.KindBool && !args[0].Bool {
		a.clears++
		prev := a.pending
		a.pending = false
		return host.Reply{Value: types.Bool(prev)}, nil
	}
	return host.Reply{Value: types.Bool(a.pending)}, nil
}

func TestBridge_CheckCancel(t *testing.T) {
	tests := []struct {
		name       string
		mode       CheckMode
		pending    bool
		dialog     hosttest.Responder
		confirmed  hosttest.Responder
		wantCode   types.Code
		wantClears int
		wantProcs  []string
	}{
		{
			name:      "nothing pending",
			mode:      CheckFull,
			confirmed: hosttest.Value(types.Bool(false)),
			wantProcs: []string{host.ProcAbort, ProcGetConfirmedAbort},
		},
		{
			name:      "escape confirmed in dialog",
			mode:      CheckFull,
			pending:   true,
			dialog:    hosttest.Value(types.Bool(true)),
			wantCode:  types.Encode(types.OutcomeUserAbort, types.LocationCheckEscape),
			wantProcs: []string{host.ProcAbort, ProcShowCancelDialog},
		},
		{
			name:       "escape declined clears flag and falls through",
			mode:       CheckFull,
			pending:    true,
			dialog:     hosttest.Value(types.Bool(false)),
			confirmed:  hosttest.Value(types.Bool(false)),
			wantClears: 1,
			wantProcs:  []string{host.ProcAbort, ProcShowCancelDialog, host.ProcAbort, ProcGetConfirmedAbort},
		},
		{
			name:       "legacy acknowledgement defers to confirmed flag",
			mode:       CheckFull,
			pending:    true,
			dialog:     hosttest.Value(types.Number(0)),
			confirmed:  hosttest.Value(types.Bool(true)),
			wantCode:   types.Encode(types.OutcomeUserAbort, types.LocationCheckEscape),
			wantClears: 1,
			wantProcs:  []string{host.ProcAbort, ProcShowCancelDialog, host.ProcAbort, ProcGetConfirmedAbort},
		},
		{
			name:      "dialog transport failure",
			mode:      CheckFull,
			pending:   true,
			dialog:    hosttest.Status(host.StatusAbort),
			wantCode:  types.Encode(types.OutcomeTransportFailure, types.LocationShowCancelDialog),
			wantProcs: []string{host.ProcAbort, ProcShowCancelDialog},
		},
		{
			name:      "dialog host logic failure",
			mode:      CheckFull,
			pending:   true,
			dialog:    hosttest.Value(types.Number(-1)),
			wantCode:  types.Encode(types.OutcomeHostLogicFailure, types.LocationShowCancelDialog),
			wantProcs: []string{host.ProcAbort, ProcShowCancelDialog},
		},
		{
			name:      "confirmed flag not a bool",
			mode:      CheckFull,
			confirmed: hosttest.Value(types.Number(1)),
			wantCode:  types.Encode(types.OutcomeInvalidShape, types.LocationCheckEscape),
			wantProcs: []string{host.ProcAbort, ProcGetConfirmedAbort},
		},
		{
			name:      "light check skips the pending flag",
			mode:      CheckLight,
			pending:   true,
			confirmed: hosttest.Value(types.Bool(true)),
			wantCode:  types.Encode(types.OutcomeUserAbort, types.LocationCheckEscape),
			wantProcs: []string{ProcGetConfirmedAbort},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := &abortFlag{pending: tt.pending}
			f := hosttest.New().On(host.ProcAbort, flag.respond)
			if tt.dialog != nil {
				f.On(ProcShowCancelDialog, tt.dialog)
			}
			if tt.confirmed != nil {
				f.On(ProcGetConfirmedAbort, tt.confirmed)
			}

			err := New(f).CheckCancel(t.Context(), tt.mode)
			if got := types.CodeOf(err); got != tt.wantCode {
				t.Fatalf("code = %d (%v), want %d", got, err, tt.wantCode)
			}
			if flag.clears != tt.wantClears {
				t.Errorf("clears = %d, want %d", flag.clears, tt.wantClears)
			}
			procs := f.Procs()
			if len(procs) != len(tt.wantProcs) {
				t.Fatalf("procs = %q, want %q", procs, tt.wantProcs)
			}
			for i := range procs {
				if procs[i] != tt.wantProcs[i] {
					t.Errorf("procs[%d] = %q, want %q", i, procs[i], tt.wantProcs[i])
				}
			}
		})
	}
}

func TestBridge_CheckCancel_PollFailure(t *testing.T) {
	f := hosttest.New().On(host.ProcAbort, hosttest.Fail(hosttest.ErrBroken))
	err := New(f).CheckCancel(t.Context(), CheckFull)
	wantCode(t, err, types.OutcomeTransportFailure, types.LocationCheckEscape)
}
