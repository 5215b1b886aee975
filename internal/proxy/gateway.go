package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/marcogenualdo/qf-auth/internal/auth"
	"github.com/marcogenualdo/qf-auth/internal/config"
	"github.com/marcogenualdo/qf-auth/internal/metrics"
)

const (
	ProfilePath             = "auth/v1/users/profile"
	CollectionsPath         = "auth/v1/collections"
	DefaultCollectionsFirst = 10

	maxResponseBytes = 10 << 20
)

// Refresher is satisfied by auth.RefreshCoordinator.
type Refresher interface {
	Refresh(ctx context.Context, session *auth.Session) (*auth.Session, bool)
}

// Result is the outcome of a resource API call. Session is the session the
// caller should persist afterwards: either the one passed in, or a
// refreshed one.
type Result struct {
	Status  int
	Header  http.Header
	Body    []byte
	Session *auth.Session
}

func (r *Result) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Refreshed reports whether the call replaced original with new credentials.
func (r *Result) Refreshed(original *auth.Session) bool {
	return r.Session != nil && r.Session != original
}

func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Gateway calls the resource API on behalf of a signed-in user and retries
// once with refreshed credentials when the access token is rejected.
type Gateway struct {
	baseURL   string
	clientID  string
	client    *http.Client
	refresher Refresher
	metrics   metrics.Recorder
	logger    *slog.Logger
}

func NewGateway(cfg config.OAuthConfig, client *http.Client, refresher Refresher, recorder metrics.Recorder, logger *slog.Logger) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Gateway{
		baseURL:   strings.TrimRight(cfg.APIBaseURL, "/"),
		clientID:  cfg.ClientID,
		client:    client,
		refresher: refresher,
		metrics:   recorder,
		logger:    logger,
	}
}

// Call performs one authenticated request. The returned Result is non-nil
// whenever a session is known, even alongside a transport error, so that a
// refreshed session is never lost.
func (g *Gateway) Call(ctx context.Context, session *auth.Session, method, path string, body []byte) (*Result, error) {
	result, err := g.do(ctx, session, method, path, body)
	if err != nil {
		return &Result{Session: session}, err
	}

	if result.Status != http.StatusUnauthorized || session.RefreshToken == "" || g.refresher == nil {
		g.metrics.RecordGatewayRequest(result.Status, false)
		return result, nil
	}

	refreshed, ok := g.refresher.Refresh(ctx, session)
	if !ok {
		g.logger.Debug("access token rejected and refresh unavailable", "path", path)
		g.metrics.RecordGatewayRequest(result.Status, false)
		return result, nil
	}

	retry, err := g.do(ctx, refreshed, method, path, body)
	if err != nil {
		return &Result{Session: refreshed}, err
	}

	g.metrics.RecordGatewayRequest(retry.Status, true)
	return retry, nil
}

func (g *Gateway) Profile(ctx context.Context, session *auth.Session) (*Result, error) {
	return g.Call(ctx, session, http.MethodGet, ProfilePath, nil)
}

func (g *Gateway) Collections(ctx context.Context, session *auth.Session, first int) (*Result, error) {
	if first <= 0 {
		first = DefaultCollectionsFirst
	}
	return g.Call(ctx, session, http.MethodGet, CollectionsPath+"?first="+strconv.Itoa(first), nil)
}

func (g *Gateway) do(ctx context.Context, session *auth.Session, method, path string, body []byte) (*Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("x-auth-token", session.AccessToken)
	req.Header.Set("x-client-id", g.clientID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	return &Result{
		Status:  resp.StatusCode,
		Header:  resp.Header,
		Body:    data,
		Session: session,
	}, nil
}

func (g *Gateway) url(path string) string {
	return g.baseURL + "/" + strings.TrimLeft(path, "/")
}
