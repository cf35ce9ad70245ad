// Package whatsapp delivers producer digests through the Meta WhatsApp Cloud API.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/farmledger/internal/config"
)

var (
	// ErrRejected means the API refused the message; retrying it unchanged will not help.
	ErrRejected = errors.New("whatsapp rejected message")

	// ErrUnavailable covers transport failures, timeouts and 5xx answers.
	ErrUnavailable = errors.New("whatsapp unavailable")
)

// Sender delivers one text message.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// Message is a plain text message to a phone number in international format.
type Message struct {
	To         string
	Body       string
	PreviewURL bool
}

// Receipt identifies a message accepted for delivery.
type Receipt struct {
	MessageID string
}

// APIClient sends messages from one business phone number.
type APIClient struct {
	http   *resty.Client
	sender string
}

// NewClient builds a client for the phone number configured in cfg.
func NewClient(cfg config.WhatsAppConfig) *APIClient {
	base := strings.TrimSuffix(cfg.BaseURL, "/") + "/" + cfg.APIVersion
	return &APIClient{
		http: resty.New().
			SetBaseURL(base).
			SetAuthToken(cfg.AccessToken).
			SetTimeout(15 * time.Second),
		sender: cfg.PhoneNumberID,
	}
}

// Recipient strips everything but digits from number, the form the API expects.
func Recipient(number string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
}

type outbound struct {
	Product string `json:"messaging_product"`
	To      string `json:"to"`
	Type    string `json:"type"`
	Text    struct {
		Body       string `json:"body"`
		PreviewURL bool   `json:"preview_url"`
	} `json:"text"`
}

type accepted struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type failure struct {
	Error struct {
		Message   string `json:"message"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// Send posts msg and returns the id the API assigned to it.
func (c *APIClient) Send(ctx context.Context, msg Message) (Receipt, error) {
	to := Recipient(msg.To)
	if to == "" || strings.TrimSpace(msg.Body) == "" {
		return Receipt{}, fmt.Errorf("%w: message needs a recipient and a body", ErrRejected)
	}

	body := outbound{Product: "whatsapp", To: to, Type: "text"}
	body.Text.Body = msg.Body
	body.Text.PreviewURL = msg.PreviewURL

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.sender + "/messages")
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: send to %s: %v", ErrUnavailable, to, err)
	}
	if err := classify(resp); err != nil {
		return Receipt{}, fmt.Errorf("send to %s: %w", to, err)
	}

	var out accepted
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Receipt{}, fmt.Errorf("%w: decode send response: %v", ErrUnavailable, err)
	}
	if len(out.Messages) == 0 {
		return Receipt{}, fmt.Errorf("%w: send to %s: no message id returned", ErrUnavailable, to)
	}
	return Receipt{MessageID: out.Messages[0].ID}, nil
}

// classify maps an error answer to ErrUnavailable (5xx, 429) or ErrRejected.
func classify(resp *resty.Response) error {
	status := resp.StatusCode()
	if status < http.StatusBadRequest {
		return nil
	}

	var f failure
	_ = json.Unmarshal(resp.Body(), &f)
	message := f.Error.Message
	if message == "" {
		message = http.StatusText(status)
	}

	kind := ErrRejected
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		kind = ErrUnavailable
	}
	return fmt.Errorf("%w: status=%d, code=%d, message=%s, trace=%s", kind, status, f.Error.Code, message, f.Error.FBTraceID)
}
