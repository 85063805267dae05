package functions

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"notemesh/application/ports"
	domainevents "notemesh/domain/events"
	"notemesh/infrastructure/messaging/eventbridge"
)

// Relay forwards canvas changes published on EventBridge to the owner's
// websocket clients.
type Relay struct {
	notifier ports.ChangeNotifier
	logger   *zap.Logger
}

// NewRelay creates a relay
func NewRelay(notifier ports.ChangeNotifier, logger *zap.Logger) *Relay {
	return &Relay{notifier: notifier, logger: logger}
}

// Handle processes one EventBridge event. Events that are not store changes
// are skipped.
func (r *Relay) Handle(ctx context.Context, ev events.CloudWatchEvent) error {
	if ev.Source != eventbridge.Source || !strings.HasPrefix(ev.DetailType, "canvas.") {
		r.logger.Debug("Skipping event", zap.String("source", ev.Source), zap.String("detail_type", ev.DetailType))
		return nil
	}

	var changed domainevents.CanvasChanged
	if err := json.Unmarshal(ev.Detail, &changed); err != nil {
		r.logger.Warn("Dropping malformed event", zap.String("id", ev.ID), zap.Error(err))
		return nil
	}
	if changed.Change == "" || changed.CanvasID == "" || changed.UserID == "" {
		return nil
	}

	if err := r.notifier.NotifyCanvasChange(ctx, changed.UserID, changed.ToChange()); err != nil {
		r.logger.Error("Failed to relay change",
			zap.String("user_id", changed.UserID),
			zap.String("canvas_id", changed.CanvasID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
