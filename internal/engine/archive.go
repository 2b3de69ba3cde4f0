package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"applycore/internal/blob"
	"applycore/pkg/domain"
)

// archiveSnapshot writes an application snapshot to the archive store before
// it leaves live user state. Archived copies are retained, never deleted.
// Best effort: a failed archive write is logged, not fatal, since the engine
// cannot roll back the conversational flow that triggered it.
func (e *Engine) archiveSnapshot(ctx context.Context, userID string, app *domain.Application, reason string) {
	if e.archive == nil || app == nil {
		return
	}
	raw, err := json.MarshalIndent(app, "", "  ")
	if err != nil {
		e.logger.Warn("archive marshal failed", "user", userID, "error", err)
		return
	}
	id := app.Permalink
	if id == "" {
		id = app.Context
	}
	key := fmt.Sprintf("archive/%s/%s-v%d.json", userID, id, app.Version)
	_, err = e.archive.Put(ctx, key, bytes.NewReader(raw), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"user":    userID,
			"product": app.RequestFor,
			"reason":  reason,
		},
	})
	if err != nil {
		e.logger.Warn("archive write failed", "user", userID, "key", key, "error", err)
		return
	}
	e.logger.Debug("application archived", "user", userID, "key", key, "reason", reason)
}
