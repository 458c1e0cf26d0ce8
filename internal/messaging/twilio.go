package messaging

import (
	"alcyxob/plan-delivery/internal/config"
	"alcyxob/plan-delivery/internal/httpx"
	"alcyxob/plan-delivery/internal/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioClient sends SMS/MMS through the Twilio Messages API.
type TwilioClient struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	http       *httpx.Client
	log        *logger.Logger
}

type twilioMessage struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// NewTwilioClient returns nil when credentials are missing.
func NewTwilioClient(cfg config.TwilioConfig, log *logger.Logger) *TwilioClient {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultTwilioBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	log = log.With("component", "TwilioClient")
	return &TwilioClient{
		baseURL:    base,
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		http: &httpx.Client{
			Provider:      "twilio",
			HTTP:          &http.Client{Timeout: timeout},
			MaxRetries:    cfg.MaxRetries,
			BaseBackoff:   time.Second,
			NonIdempotent: true,
			Log:           log,
		},
		log: log,
	}
}

func (c *TwilioClient) Name() string { return "twilio" }

func (c *TwilioClient) Send(ctx context.Context, msg Message) (*Receipt, error) {
	digits := PhoneDigits(msg.To.Phone)
	if digits == "" {
		return nil, errors.New("twilio: recipient has no phone number")
	}
	form := url.Values{}
	form.Set("To", "+"+digits)
	form.Set("From", c.from)
	form.Set("Body", msg.Text)
	if msg.Attachment != nil && msg.Attachment.URL != "" {
		form.Set("MediaUrl", msg.Attachment.URL)
	}
	encoded := form.Encode()
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))

	raw, _, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.accountSID, c.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		c.log.Error("Twilio send failed", "error", err)
		return nil, err
	}

	var out twilioMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("twilio: decode response: %w", err)
	}
	if out.ErrorCode != nil {
		return nil, fmt.Errorf("twilio: error %d: %s", *out.ErrorCode, out.ErrorMessage)
	}
	c.log.Info("Twilio message queued", "sid", out.SID, "status", out.Status)
	return &Receipt{Provider: c.Name(), MessageIDs: []string{out.SID}}, nil
}
