package notify

import (
	"context"
	"fmt"

	"rewards-backend/identity"
	"rewards-backend/utils"
)

// SendFunc delivers one HTML email.
type SendFunc func(to, subject, htmlBody string) error

// EmailSink mails the member, resolving the address through the identity gateway.
type EmailSink struct {
	Users identity.Gateway
	Send  SendFunc
}

func NewEmailSink(users identity.Gateway) *EmailSink {
	return &EmailSink{Users: users, Send: utils.SendEmail}
}

func (s *EmailSink) Notify(ctx context.Context, n Notification) error {
	user, err := s.Users.GetUser(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}
	if user.Email == "" || user.Disabled {
		return nil
	}
	subject, body := utils.RenderRewardsEmail(user.DisplayName, n.Title, n.Message)
	return s.Send(user.Email, subject, body)
}
