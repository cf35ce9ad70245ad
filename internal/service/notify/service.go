// Package notify delivers outbound producer notifications over WhatsApp.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	client "github.com/mamadbah2/farmledger/pkg/clients/whatsapp"
)

const sendTimeout = 10 * time.Second

// Notifier pushes text notifications to a phone number.
type Notifier interface {
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// WhatsAppNotifier is the production implementation backed by the WhatsApp Cloud API.
type WhatsAppNotifier struct {
	client client.Sender
	logger *zap.Logger
}

// NewWhatsAppNotifier wires a new notifier.
func NewWhatsAppNotifier(c client.Sender, logger *zap.Logger) *WhatsAppNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhatsAppNotifier{client: c, logger: logger}
}

// SendOutbound sends req.Message to req.To.
func (n *WhatsAppNotifier) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	if req.To == "" || req.Message == "" {
		return errors.New("outbound message needs a recipient and a body")
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	receipt, err := n.client.Send(ctx, client.Message{
		To:         req.To,
		Body:       req.Message,
		PreviewURL: req.PreviewURL,
	})
	if err != nil {
		return fmt.Errorf("notify %s: %w", req.To, err)
	}
	n.logger.Debug("notification sent", zap.String("to", req.To), zap.String("message_id", receipt.MessageID))
	return nil
}

// Discard drops every notification. Used when delivery is not configured.
type Discard struct {
	Logger *zap.Logger
}

func (d Discard) SendOutbound(_ context.Context, req models.OutboundMessageRequest) error {
	if d.Logger != nil {
		d.Logger.Debug("notification delivery disabled, dropping message", zap.String("to", req.To))
	}
	return nil
}

// Enabled reports whether n actually delivers notifications.
func Enabled(n Notifier) bool {
	switch n.(type) {
	case nil, Discard, *Discard:
		return false
	}
	return true
}
