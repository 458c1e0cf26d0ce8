package messaging

import (
	"alcyxob/plan-delivery/internal/config"
	"alcyxob/plan-delivery/internal/httpx"
	"alcyxob/plan-delivery/internal/logger"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WhatsAppClient talks to a WPPConnect server session.
type WhatsAppClient struct {
	baseURL string
	secret  string
	session string
	http    *httpx.Client
	log     *logger.Logger
}

type wppTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	IsGroup bool   `json:"isGroup"`
}

type wppFileRequest struct {
	Phone    string `json:"phone"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
	IsGroup  bool   `json:"isGroup"`
}

type wppResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
	Message  string          `json:"message"`
}

// NewWhatsAppClient returns nil when the API URL is not configured.
func NewWhatsAppClient(cfg config.WhatsAppConfig, log *logger.Logger) *WhatsAppClient {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log = log.With("component", "WhatsAppClient")
	return &WhatsAppClient{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		secret:  cfg.SecretKey,
		session: cfg.SessionName,
		http: &httpx.Client{
			Provider:      "wppconnect",
			HTTP:          &http.Client{Timeout: timeout},
			MaxRetries:    cfg.MaxRetries,
			BaseBackoff:   time.Second,
			NonIdempotent: true,
			Log:           log,
		},
		log: log,
	}
}

func (c *WhatsAppClient) Name() string { return "wppconnect" }

// Send delivers the message as a single provider call: with an attachment
// the text rides as the file caption.
func (c *WhatsAppClient) Send(ctx context.Context, msg Message) (*Receipt, error) {
	digits := PhoneDigits(msg.To.Phone)
	if digits == "" {
		return nil, errors.New("whatsapp: recipient has no phone number")
	}
	chatID := digits + "@c.us"

	var (
		endpoint string
		payload  interface{}
	)
	if msg.Attachment != nil {
		caption := msg.Text
		if caption == "" {
			caption = msg.Attachment.Caption
		}
		endpoint = "send-file-base64"
		payload = wppFileRequest{Phone: chatID, Path: msg.Attachment.URL, Filename: msg.Attachment.FileName, Caption: caption}
	} else {
		endpoint = "send-message"
		payload = wppTextRequest{Phone: chatID, Message: msg.Text}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/%s/%s", c.baseURL, c.session, endpoint)
	raw, _, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.secret)
		return req, nil
	})
	if err != nil {
		c.log.Error("WhatsApp send failed", "endpoint", endpoint, "error", err)
		return nil, err
	}

	var out wppResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("whatsapp: decode response: %w", err)
	}
	if out.Status != "" && !strings.EqualFold(out.Status, "success") {
		return nil, fmt.Errorf("whatsapp: send rejected: %s", firstNonEmpty(out.Message, out.Status))
	}
	ids := wppMessageIDs(out.Response)
	c.log.Info("WhatsApp message sent", "endpoint", endpoint, "message_ids", ids)
	return &Receipt{Provider: c.Name(), MessageIDs: ids}, nil
}

// wppMessageIDs accepts both the list and single-object response shapes.
func wppMessageIDs(raw json.RawMessage) []string {
	type item struct {
		ID string `json:"id"`
	}
	var list []item
	if err := json.Unmarshal(raw, &list); err == nil {
		ids := make([]string, 0, len(list))
		for _, it := range list {
			if it.ID != "" {
				ids = append(ids, it.ID)
			}
		}
		return ids
	}
	var one item
	if err := json.Unmarshal(raw, &one); err == nil && one.ID != "" {
		return []string{one.ID}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
