package temporal

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/antigravity-dev/tracker/internal/apperr"
	"github.com/antigravity-dev/tracker/internal/backlog"
)

// ItemStore is the persistence the activities write through.
type ItemStore interface {
	UpdateItem(ctx context.Context, id string, fields map[string]any) error
}

// Activities holds dependencies for Temporal activity methods.
type Activities struct {
	Store ItemStore
}

// errTypeRejected marks updates the store refused; retrying cannot help.
const errTypeRejected = "ItemUpdateRejected"

// UpdateItemActivity applies a single item patch.
func (a *Activities) UpdateItemActivity(ctx context.Context, u backlog.Update) error {
	logger := activity.GetLogger(ctx)

	err := a.Store.UpdateItem(ctx, u.ID, u.Fields)
	if err == nil {
		return nil
	}
	logger.Warn("item update failed", "ItemID", u.ID, "error", err)
	if errors.Is(err, apperr.ErrValidation) || errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrConflict) {
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeRejected, err)
	}
	return err
}
