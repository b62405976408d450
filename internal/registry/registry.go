// Package registry stores notification destinations: where to deliver
// a notification when a monitored account starts a live session.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Kind is the closed set of supported destination kinds. Anything else
// is rejected at registration time rather than silently skipped at
// dispatch time.
type Kind string

const (
	// KindDiscordWebhook posts a templated human-readable message to a
	// Discord webhook URL.
	KindDiscordWebhook Kind = "discord-webhook"

	// KindJSON sends the account and session identifiers to an
	// arbitrary HTTP endpoint, in the body for POST or the query
	// string for GET.
	KindJSON Kind = "json"
)

// Valid reports whether k is a supported destination kind.
func (k Kind) Valid() bool {
	return k == KindDiscordWebhook || k == KindJSON
}

const discordWebhookPrefix = "https://discord.com/api/webhooks/"

// ErrNotFound is returned when a destination id does not exist.
var ErrNotFound = errors.New("destination not found")

// Destination is a registered notification target for one account.
type Destination struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Label     string    `json:"label"`
	Kind      Kind      `json:"kind"`
	URL       string    `json:"url"`
	Method    string    `json:"method,omitempty"` // json kind only: POST or GET
	CreatedAt time.Time `json:"createTime"`
	UpdatedAt time.Time `json:"updateTime"`
}

// Validate checks a destination at registration time. Invalid kinds,
// methods, and URLs never make it into the registry, so the dispatcher
// only ever sees deliverable destinations.
func (d *Destination) Validate() error {
	if strings.TrimSpace(d.Account) == "" {
		return errors.New("account must not be empty")
	}
	if strings.TrimSpace(d.Label) == "" {
		return errors.New("label must not be empty")
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("unsupported destination kind %q", d.Kind)
	}
	if err := validateHTTPURL(d.URL); err != nil {
		return err
	}

	switch d.Kind {
	case KindDiscordWebhook:
		if !strings.HasPrefix(d.URL, discordWebhookPrefix) {
			return errors.New("discord-webhook url must start with " + discordWebhookPrefix)
		}
		if d.Method != "" {
			return errors.New("discord-webhook destinations do not take a method")
		}
	case KindJSON:
		if d.Method != "POST" && d.Method != "GET" {
			return fmt.Errorf("json destination method must be POST or GET, got %q", d.Method)
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must have a host")
	}
	return nil
}

// Registry is the queryable destination store. The poll engine only
// reads it (ListByAccount); the registration API owns the writes.
type Registry interface {
	ListByAccount(ctx context.Context, account string) ([]Destination, error)
	List(ctx context.Context) ([]Destination, error)
	Get(ctx context.Context, id string) (Destination, error)
	Insert(ctx context.Context, d *Destination) error
	Update(ctx context.Context, d *Destination) error
	Delete(ctx context.Context, id string) error
}
