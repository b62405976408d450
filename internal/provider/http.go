package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/spacewatch/backend/internal/session"
)

// HTTPProvider implements Provider against the provider's v2 REST API.
// User lookups are cached with a TTL because account→user mappings are
// effectively static, while live-session queries always hit the API.
type HTTPProvider struct {
	baseURL string
	token   string
	client  *http.Client
	users   *cache.Cache
	logger  *zap.SugaredLogger
}

func NewHTTP(baseURL, bearerToken string, userCacheTTL time.Duration, logger *zap.SugaredLogger) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		token:   bearerToken,
		client:  &http.Client{Timeout: 30 * time.Second},
		users:   cache.New(userCacheTTL, 2*userCacheTTL),
		logger:  logger.Named("provider"),
	}
}

func (p *HTTPProvider) ResolveUser(ctx context.Context, username string) (User, error) {
	if cached, ok := p.users.Get(username); ok {
		return cached.(User), nil
	}

	var resp struct {
		Data User `json:"data"`
	}
	endpoint := p.baseURL + "/2/users/by/username/" + url.PathEscape(username)
	if err := p.get(ctx, endpoint, &resp); err != nil {
		return User{}, fmt.Errorf("resolve user %s: %w", username, err)
	}
	if resp.Data.ID == "" {
		return User{}, fmt.Errorf("resolve user %s: no such user: %w", username, ErrUnavailable)
	}

	p.users.Set(username, resp.Data, cache.DefaultExpiration)
	p.logger.Debugw("resolved user", "username", username, "userId", resp.Data.ID)
	return resp.Data, nil
}

func (p *HTTPProvider) LiveSessions(ctx context.Context, userID string) ([]session.Session, error) {
	var resp struct {
		Data []session.Session `json:"data"`
	}
	endpoint := p.baseURL + "/2/spaces/by/creator_ids?user_ids=" + url.QueryEscape(userID)
	if err := p.get(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("live sessions for user %s: %w", userID, err)
	}
	// The API omits "data" entirely when nothing is live.
	return resp.Data, nil
}

// get issues an authenticated GET and decodes the JSON body into out.
// Transport errors and non-200 statuses surface as ErrUnavailable so
// callers can treat them uniformly as transient.
func (p *HTTPProvider) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
