package bridge

import (
	"context"

	"github.com/pithecene-io/cellsolve/types"
)

// CheckMode selects how much of the cancellation handshake runs.
type CheckMode int

const (
	// CheckFull polls the pending-escape flag, confirms with the user, then
	// reads the confirmed-abort flag.
	CheckFull CheckMode = iota
	// CheckLight reads only the confirmed-abort flag.
	CheckLight
)

// CheckCancel runs the cooperative cancellation handshake. It returns a
// UserAbort error located at CheckEscape when the user confirmed an
// abort, nil to continue, or the failure of the handshake itself.
//
// In full mode a pending escape press triggers the confirmation dialog.
// A declined dialog clears the pending flag before falling through to
// the confirmed-abort read.
func (b *Bridge) CheckCancel(ctx context.Context, mode CheckMode) error {
	if mode == CheckFull {
		pending, err := b.PendingAbort(ctx)
		if err != nil {
			return err
		}
		if pending {
			b.metrics.IncCancelPrompts()
			confirmed, err := b.ShowCancelDialog(ctx)
			if err != nil {
				return err
			}
			if confirmed {
				return b.userAbort()
			}
			if err := b.ClearPendingAbort(ctx); err != nil {
				return err
			}
		}
	}

	aborted, err := b.ConfirmedAbort(ctx)
	if err != nil {
		return err
	}
	if aborted {
		return b.userAbort()
	}
	return nil
}

func (b *Bridge) userAbort() error {
	b.logger.Info("user confirmed abort", nil)
	return b.failure(types.OutcomeUserAbort, types.LocationCheckEscape, "")
}
