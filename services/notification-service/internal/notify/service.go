package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agribeta/agribeta/services/notification-service/internal/consumer"
	"github.com/agribeta/agribeta/services/notification-service/internal/email"
	"github.com/agribeta/agribeta/services/notification-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "agribeta_notification_sends_total",
	Help: "Notification emails by template and status",
}, []string{"template", "status"}) // "sent", "failed", "skipped"

type Store interface {
	// Sent reports whether template was already delivered to recipient for eventID.
	Sent(ctx context.Context, eventID, template, recipient string) (bool, error)
	Insert(ctx context.Context, n storage.Notification) error
}

type Service struct {
	renderer *Renderer
	sender   email.Sender
	store    Store
	logger   *slog.Logger
}

func NewService(renderer *Renderer, sender email.Sender, store Store, logger *slog.Logger) *Service {
	return &Service{renderer: renderer, sender: sender, store: store, logger: logger}
}

// Handle sends every email an event calls for. Recipients already served for
// this event are skipped, so a retried event only resends what failed.
func (s *Service) Handle(ctx context.Context, msg consumer.Message) error {
	var evt ConsultationEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		s.logger.ErrorContext(ctx, "invalid consultation payload", "err", err, "event_id", msg.EventID)
		return nil
	}
	if evt.ConsultationID == "" {
		s.logger.ErrorContext(ctx, "consultation payload without id", "event_id", msg.EventID)
		return nil
	}
	emails, err := s.renderer.Render(msg.EventType, evt)
	if err != nil {
		return err
	}

	var failed []error
	for _, e := range emails {
		if err := s.deliver(ctx, msg, evt, e); err != nil {
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}

func (s *Service) deliver(ctx context.Context, msg consumer.Message, evt ConsultationEvent, e Email) error {
	to := strings.TrimSpace(e.Recipient.Email)
	if to == "" {
		sendsTotal.WithLabelValues(e.Template, "skipped").Inc()
		s.logger.WarnContext(ctx, "recipient has no email", "event_id", msg.EventID, "profile_id", e.Recipient.ID)
		return nil
	}
	done, err := s.store.Sent(ctx, msg.EventID, e.Template, to)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	n := storage.Notification{
		EventID:        msg.EventID,
		ConsultationID: evt.ConsultationID,
		Template:       e.Template,
		Channel:        "email",
		Recipient:      to,
		Provider:       s.sender.ProviderID(),
		Status:         "sent",
		Payload:        map[string]any{"subject": e.Subject, "event_type": msg.EventType},
	}
	sendErr := s.sender.Send(ctx, email.Message{To: to, Subject: e.Subject, Body: e.Body})
	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
		s.logger.ErrorContext(ctx, "email send failed", "err", sendErr, "event_id", msg.EventID, "template", e.Template)
	}
	sendsTotal.WithLabelValues(e.Template, n.Status).Inc()
	if err := s.store.Insert(ctx, n); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	if sendErr != nil {
		return fmt.Errorf("send %s to %s: %w", e.Template, e.Recipient.ID, sendErr)
	}
	s.logger.InfoContext(ctx, "notification sent", "event_id", msg.EventID, "template", e.Template, "provider", n.Provider)
	return nil
}
