package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"helparo/internal/model"
	"helparo/internal/queue"
	"helparo/internal/service"
)

// Notifier pushes a notification to all devices of one user.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, title, body string, data map[string]string) (service.PushResult, error)
}

// Handler turns request events into push notifications.
type Handler struct {
	notifier Notifier
	log      *zap.SugaredLogger
}

func NewHandler(notifier Notifier, log *zap.SugaredLogger) *Handler {
	return &Handler{notifier: notifier, log: log.Named("handler")}
}

// pushMessage is what one event type sends, and to whom.
type pushMessage struct {
	recipient string
	title     string
	body      string
	kind      string
}

// HandleEvent routes an event to its push. Events without a recipient
// (broadcast_started, or a cancel with no helper) are acknowledged silently.
func (h *Handler) HandleEvent(ctx context.Context, event queue.RequestEvent) error {
	msg, ok := messageFor(event)
	if !ok {
		h.log.Debugw("no push for event", "type", event.Type, "request", event.RequestID)
		return nil
	}

	data := map[string]string{
		"type":       msg.kind,
		"request_id": event.RequestID,
	}
	if event.HelperID != "" {
		data["helper_id"] = event.HelperID
	}

	res, err := h.notifier.NotifyUser(ctx, msg.recipient, msg.title, msg.body, data)
	if err != nil {
		return fmt.Errorf("notify %s for %s: %w", msg.recipient, event.Type, err)
	}

	h.log.Infow("HandleEvent OK",
		"type", event.Type,
		"request", event.RequestID,
		"recipient", msg.recipient,
		"sent", res.Sent)
	return nil
}

func messageFor(event queue.RequestEvent) (pushMessage, bool) {
	switch event.Type {
	case queue.EventRequestAssigned:
		return pushMessage{
			recipient: event.CustomerID,
			title:     "Helper assigned",
			body:      "A helper accepted your request and is on the way.",
			kind:      model.NotificationTypeHelperAssigned,
		}, event.CustomerID != ""
	case queue.EventBroadcastExpired:
		return pushMessage{
			recipient: event.CustomerID,
			title:     "No helper available",
			body:      "No helper accepted your request in time. You can try again.",
			kind:      model.NotificationTypeNoHelper,
		}, event.CustomerID != ""
	case queue.EventRequestCompleted:
		return pushMessage{
			recipient: event.CustomerID,
			title:     "Job completed",
			body:      "Your service request has been completed.",
			kind:      model.NotificationTypeJobCompleted,
		}, event.CustomerID != ""
	case queue.EventRequestCancelled:
		return pushMessage{
			recipient: event.HelperID,
			title:     "Job cancelled",
			body:      "The customer cancelled this job.",
			kind:      model.NotificationTypeJobCancelled,
		}, event.HelperID != ""
	}
	return pushMessage{}, false
}
