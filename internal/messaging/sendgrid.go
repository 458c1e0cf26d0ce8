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
	"html"
	"net/http"
	"strings"
	"time"
)

const defaultSendGridBaseURL = "https://api.sendgrid.com"

// SendGridClient sends email through the SendGrid v3 mail API.
type SendGridClient struct {
	baseURL   string
	apiKey    string
	fromEmail string
	fromName  string
	http      *httpx.Client
	log       *logger.Logger
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgMail struct {
	Personalizations []struct {
		To []sgAddress `json:"to"`
	} `json:"personalizations"`
	From    sgAddress   `json:"from"`
	Subject string      `json:"subject"`
	Content []sgContent `json:"content"`
}

// NewSendGridClient returns nil when the API key or sender is missing.
func NewSendGridClient(cfg config.SendGridConfig, log *logger.Logger) *SendGridClient {
	if cfg.APIKey == "" || cfg.FromEmail == "" {
		return nil
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultSendGridBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	log = log.With("component", "SendGridClient")
	return &SendGridClient{
		baseURL:   base,
		apiKey:    cfg.APIKey,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		http: &httpx.Client{
			Provider:      "sendgrid",
			HTTP:          &http.Client{Timeout: timeout},
			MaxRetries:    cfg.MaxRetries,
			BaseBackoff:   time.Second,
			NonIdempotent: true,
			Log:           log,
		},
		log: log,
	}
}

func (c *SendGridClient) Name() string { return "sendgrid" }

func (c *SendGridClient) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if strings.TrimSpace(msg.To.Email) == "" {
		return nil, errors.New("sendgrid: recipient has no email address")
	}
	subject := msg.Subject
	if subject == "" {
		subject = "Your personalized plan is ready"
	}

	text := msg.Text
	htmlBody := "<p>" + strings.ReplaceAll(html.EscapeString(msg.Text), "\n", "<br>") + "</p>"
	if a := msg.Attachment; a != nil && a.URL != "" {
		text += "\n\n" + a.Caption + ": " + a.URL
		htmlBody += fmt.Sprintf(`<p><a href="%s">%s</a></p>`, html.EscapeString(a.URL), html.EscapeString(firstNonEmpty(a.Caption, a.FileName)))
	}

	mail := sgMail{
		From:    sgAddress{Email: c.fromEmail, Name: c.fromName},
		Subject: subject,
		Content: []sgContent{{Type: "text/plain", Value: text}, {Type: "text/html", Value: htmlBody}},
	}
	mail.Personalizations = append(mail.Personalizations, struct {
		To []sgAddress `json:"to"`
	}{To: []sgAddress{{Email: msg.To.Email, Name: msg.To.Name}}})

	body, err := json.Marshal(mail)
	if err != nil {
		return nil, err
	}
	_, resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mail/send", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		c.log.Error("SendGrid send failed", "error", err)
		return nil, err
	}

	var ids []string
	if id := resp.Header.Get("X-Message-Id"); id != "" {
		ids = append(ids, id)
	}
	c.log.Info("SendGrid mail accepted", "message_ids", ids)
	return &Receipt{Provider: c.Name(), MessageIDs: ids}, nil
}
