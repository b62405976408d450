// Package notify fans a session-started notification out to every
// destination registered for the account. Destinations are dispatched
// concurrently and settle independently: one failing webhook never
// delays or cancels delivery to the others.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/spacewatch/backend/internal/provider"
	"github.com/spacewatch/backend/internal/registry"
	"github.com/spacewatch/backend/internal/session"
)

// Result aggregates the outcome of one fan-out. Attempted counts every
// destination a dispatch was tried for; unknown kinds are skipped and
// not counted.
type Result struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// DestinationSource is the read side of the destination registry.
type DestinationSource interface {
	ListByAccount(ctx context.Context, account string) ([]registry.Destination, error)
}

// Sender issues a single outbound HTTP request. *http.Client satisfies
// it. Delivery is fire-and-observe: no retries happen at this layer.
type Sender interface {
	Do(req *http.Request) (*http.Response, error)
}

// Dispatcher renders and delivers per-destination payloads.
type Dispatcher struct {
	destinations DestinationSource
	sender       Sender
	linkTemplate string // printf template producing the public session link from its id
	logger       *zap.SugaredLogger
}

func NewDispatcher(destinations DestinationSource, sender Sender, linkTemplate string, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		destinations: destinations,
		sender:       sender,
		linkTemplate: linkTemplate,
		logger:       logger.Named("notify"),
	}
}

// Notify delivers a session-started notification for sess to every
// destination registered for the user's account. An account with no
// destinations is a success with zero attempts. The returned error
// covers only the registry lookup; per-destination failures are
// logged, counted in the Result, and never escalate.
func (d *Dispatcher) Notify(ctx context.Context, user provider.User, sess session.Session) (Result, error) {
	dests, err := d.destinations.ListByAccount(ctx, user.Username)
	if err != nil {
		return Result{}, fmt.Errorf("list destinations for %s: %w", user.Username, err)
	}

	var (
		mu     sync.Mutex
		result Result
		wg     sync.WaitGroup
	)
	for _, dest := range dests {
		if !dest.Kind.Valid() {
			// Can only happen with rows written by something other than
			// the registration API, which validates kinds up front.
			d.logger.Warnw("skipping destination with unknown kind",
				"account", user.Username, "destination", dest.ID, "kind", dest.Kind)
			continue
		}

		result.Attempted++
		wg.Add(1)
		go func(dest registry.Destination) {
			defer wg.Done()
			err := d.dispatch(ctx, dest, user, sess)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				d.logger.Errorw("delivery failed",
					"account", user.Username, "sessionId", sess.ID,
					"destination", dest.ID, "target", targetHost(dest.URL), "error", err)
				return
			}
			result.Succeeded++
			d.logger.Infow("delivered",
				"account", user.Username, "sessionId", sess.ID,
				"destination", dest.ID, "target", targetHost(dest.URL))
		}(dest)
	}
	wg.Wait()

	d.logger.Infow("fan-out settled",
		"account", user.Username, "sessionId", sess.ID,
		"attempted", result.Attempted, "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// dispatch renders the destination-specific request and sends it. Any
// transport error or non-2xx response counts as a failure.
func (d *Dispatcher) dispatch(ctx context.Context, dest registry.Destination, user provider.User, sess session.Session) error {
	req, err := d.buildRequest(ctx, dest, user, sess)
	if err != nil {
		return err
	}

	resp, err := d.sender.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) buildRequest(ctx context.Context, dest registry.Destination, user provider.User, sess session.Session) (*http.Request, error) {
	link := fmt.Sprintf(d.linkTemplate, sess.ID)

	switch dest.Kind {
	case registry.KindDiscordWebhook:
		body, err := json.Marshal(map[string]string{
			"content": fmt.Sprintf("%s (@%s) started a live session.\r%s", user.Name, user.Username, link),
		})
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.URL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil

	case registry.KindJSON:
		fields := map[string]string{
			"username":   user.Username,
			"screenName": user.Name,
			"userId":     user.ID,
			"id":         sess.ID,
		}
		switch dest.Method {
		case http.MethodPost:
			body, err := json.Marshal(fields)
			if err != nil {
				return nil, fmt.Errorf("encode payload: %w", err)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.URL, bytes.NewReader(body))
			if err != nil {
				return nil, fmt.Errorf("build request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		case http.MethodGet:
			// Identifiers go in the query string only; GET carries no body.
			u, err := url.Parse(dest.URL)
			if err != nil {
				return nil, fmt.Errorf("parse url: %w", err)
			}
			q := u.Query()
			for k, v := range fields {
				q.Set(k, v)
			}
			u.RawQuery = q.Encode()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
			if err != nil {
				return nil, fmt.Errorf("build request: %w", err)
			}
			return req, nil
		default:
			// Registration validates methods, so this only fires for rows
			// predating that check. Failing loudly beats a silent skip.
			return nil, fmt.Errorf("unsupported method %q", dest.Method)
		}
	}
	return nil, fmt.Errorf("unsupported destination kind %q", dest.Kind)
}

func targetHost(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}
