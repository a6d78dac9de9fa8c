package connectors

import (
	"context"
	"fmt"
	"strings"

	"partners/internal"
	"partners/internal/config"
	gmailconnector "partners/internal/connectors/gmail"
	imapconnector "partners/internal/connectors/imap"
)

// MailConnector pulls raw messages from a mailbox folder or label.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// New returns the connector for provider ("gmail" or "imap").
func New(cfg config.Config, provider string) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}
