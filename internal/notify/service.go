// Package notify informs users about share invites over SMTP. Delivery is
// fire-and-forget: callers log failures and never block or fail a
// structural operation on them.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration. RecipientDomain maps user ids to
// mailboxes when the identity layer does not supply addresses.
type Config struct {
	Host            string
	Port            string
	Username        string
	Password        string
	From            string
	FromName        string
	RecipientDomain string
}

type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

func NewService(config Config) *Service {
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.Host),
	}
}

// IsConfigured returns true when the service can actually deliver.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// InviteCreated notifies the invitee that a note was shared with them.
func (s *Service) InviteCreated(inviteeID, inviterID, noteTitle, permission string) error {
	subject := fmt.Sprintf("%s shared %q with you", inviterID, noteTitle)
	body := fmt.Sprintf(
		"%s invited you to %q with %s access.\r\nAccept the invite in the app to start using it.",
		inviterID, noteTitle, strings.ReplaceAll(permission, "_", "-"),
	)
	return s.send(inviteeID, subject, body)
}

// InviteAccepted notifies a note owner that the invitee accepted.
func (s *Service) InviteAccepted(ownerID, inviteeID, noteTitle string) error {
	subject := fmt.Sprintf("%s accepted your invite to %q", inviteeID, noteTitle)
	body := fmt.Sprintf("%s now has access to %q.", inviteeID, noteTitle)
	return s.send(ownerID, subject, body)
}

func (s *Service) send(userID, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("notifications not configured")
	}
	to := s.Address(userID)
	msg := buildMessage(to, s.sender(), subject, body)
	return smtp.SendMail(s.server, s.auth, s.config.From, []string{to}, msg)
}

func (s *Service) sender() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// Address derives the mailbox for a user id.
func (s *Service) Address(userID string) string {
	if strings.Contains(userID, "@") {
		return userID
	}
	domain := s.config.RecipientDomain
	if domain == "" {
		domain = "users.lyf.local"
	}
	return strings.ToLower(userID) + "@" + domain
}

func buildMessage(to, from, subject, body string) []byte {
	return []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		to, from, subject, body,
	))
}
