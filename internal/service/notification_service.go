package service

import (
	"context"
	"fmt"
	"log"

	"tenapay/internal/infrastructure/mail"
	"tenapay/internal/infrastructure/ws"
	"tenapay/internal/model"
	"tenapay/internal/repository"

	"gorm.io/gorm"
)

// NotificationService fans one event out to the persisted feed, the live
// websocket channel and email. Every failure on this path is logged and
// swallowed: by the time Dispatch runs the ledger change has already
// committed, and a broken SMTP server must not turn a successful payout into
// an error.
type NotificationService struct {
	notifications *repository.NotificationRepository
	hub           *ws.Hub
	mailer        *mail.Mailer
}

func NewNotificationService(db *gorm.DB, hub *ws.Hub, mailer *mail.Mailer) *NotificationService {
	return &NotificationService{
		notifications: repository.NewNotificationRepository(db),
		hub:           hub,
		mailer:        mailer,
	}
}

// Dispatch persists the notification, pushes it to live connections and mails
// the member. Returns the persisted row (with zero ID if persistence failed).
func (s *NotificationService) Dispatch(ctx context.Context, account *model.Account, notifType, title, message string) *model.Notification {
	note := &model.Notification{
		UserID:  account.ID,
		Type:    notifType,
		Title:   title,
		Message: message,
	}
	if err := s.notifications.Create(ctx, note); err != nil {
		log.Printf("[NotificationService] failed to persist notification: userID=%d, type=%s, err=%v",
			account.ID, notifType, err)
	}

	s.hub.Push(account.ID, note)

	if account.Email != "" {
		body := fmt.Sprintf("<h3>%s</h3><p>%s</p>", title, message)
		if err := s.mailer.Send(account.Email, title, body); err != nil {
			log.Printf("[NotificationService] failed to send email: userID=%d, type=%s, err=%v",
				account.ID, notifType, err)
		}
	}

	return note
}

func (s *NotificationService) List(ctx context.Context, userID int64, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.notifications.ListByUserID(ctx, userID, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, noteID int64) (bool, error) {
	rows, err := s.notifications.MarkRead(ctx, userID, noteID)
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, noteID int64) error {
	return s.notifications.Delete(ctx, userID, noteID)
}
