// Package messaging delivers plan messages to clients over the configured
// channels.
package messaging

import (
	"alcyxob/plan-delivery/internal/domain"
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrChannelUnavailable = errors.New("delivery channel not configured")

type Recipient struct {
	Name  string
	Phone string
	Email string
}

type Attachment struct {
	URL      string
	FileName string
	Caption  string
}

type Message struct {
	To         Recipient
	Subject    string
	Text       string
	Attachment *Attachment
}

type Receipt struct {
	Provider   string
	MessageIDs []string
}

// Provider sends a message through one external service.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

// Sender routes a message to the provider for a channel.
type Sender interface {
	Send(ctx context.Context, channel domain.Channel, msg Message) (*Receipt, error)
}

type Router struct {
	providers map[domain.Channel]Provider
}

func NewRouter() *Router {
	return &Router{providers: map[domain.Channel]Provider{}}
}

// Register binds a provider to a channel, replacing any previous one.
func (r *Router) Register(channel domain.Channel, p Provider) *Router {
	r.providers[channel] = p
	return r
}

func (r *Router) Channels() []domain.Channel {
	out := make([]domain.Channel, 0, len(r.providers))
	for _, c := range []domain.Channel{domain.ChannelWhatsApp, domain.ChannelSMS, domain.ChannelEmail} {
		if _, ok := r.providers[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *Router) Send(ctx context.Context, channel domain.Channel, msg Message) (*Receipt, error) {
	p, ok := r.providers[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelUnavailable, channel)
	}
	return p.Send(ctx, msg)
}

// WelcomeText is the plan-ready message body.
func WelcomeText(name, portalLink string) string {
	return fmt.Sprintf("Hi %s! 🎉\n\nYour personalized plan is ready!\n\nAccess your portal here:\n%s\n\nLet's crush those goals together! 💪", name, portalLink)
}

// PlanFileName turns "Jane Doe" into "Jane_Doe_Plan.pdf".
func PlanFileName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "Plan.pdf"
	}
	return strings.Join(fields, "_") + "_Plan.pdf"
}

const PlanCaption = "📋 Your Personalized Plan"

// PhoneDigits strips formatting from a phone number.
func PhoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
