package mfa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kareem-Elnokali/system-creator/internal/config"
	"github.com/Kareem-Elnokali/system-creator/internal/db"
)

const userAgent = "system-creator/1.0"

// callerAddress recorded for audit rows originated by the panel itself.
const callerAddress = "127.0.0.1"

// AuditLog persists one APICallLog row per attempt that reached the network.
type AuditLog interface {
	LogAPICall(l *db.APICallLog) error
}

// CallRecorder receives latency/status observations for metrics. Optional.
type CallRecorder interface {
	RecordRemoteCall(endpoint, method string, statusCode int, elapsed time.Duration)
}

// Client is the HTTP implementation of RemoteService. Every call carries the
// service bearer key plus tenant-scoped headers when a tenant is supplied,
// and is audited whether it succeeds or fails. The client never retries.
type Client struct {
	cfg        config.MFAConfig
	httpClient *http.Client
	audit      AuditLog
	recorder   CallRecorder
	logger     *zap.Logger

	perMinute int
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
}

func NewClient(cfg config.MFAConfig, audit AuditLog, recorder CallRecorder, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perMinute := cfg.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		audit:     audit,
		recorder:  recorder,
		logger:    logger,
		perMinute: perMinute,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// limiter returns the rate limiter for one tenant. Untenanted calls (health
// probes) share a single limiter under the empty key.
func (c *Client) limiter(tenant *db.Tenant) *rate.Limiter {
	key := ""
	if tenant != nil {
		key = tenant.ID.String()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.perMinute)), c.perMinute)
		c.limiters[key] = l
	}
	return l
}

func (c *Client) call(ctx context.Context, tenant *db.Tenant, method, endpoint string, body interface{}, query url.Values) (json.RawMessage, error) {
	// Throttle before touching the network; a cancelled wait never produces
	// an audit row because no request was attempted.
	if err := c.limiter(tenant).Wait(ctx); err != nil {
		return nil, &RemoteError{Kind: KindUnreachable, Endpoint: endpoint, Err: err}
	}

	fullURL := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceKey)
	if tenant != nil {
		req.Header.Set("X-Tenant-ID", tenant.ID.String())
		req.Header.Set("X-Tenant-Key", tenant.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.logCall(tenant, method, endpoint, statusCode, elapsed)
	if c.recorder != nil {
		c.recorder.RecordRemoteCall(endpoint, method, statusCode, elapsed)
	}

	if err != nil {
		c.logger.Error("MFA API request failed",
			zap.String("endpoint", endpoint),
			zap.String("method", method),
			zap.Error(err),
		)
		return nil, &RemoteError{Kind: KindUnreachable, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &RemoteError{Kind: KindUnreachable, Endpoint: endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("MFA API request rejected",
			zap.String("endpoint", endpoint),
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &RemoteError{
			Kind:       KindRejected,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	if len(respBody) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(respBody), nil
}

// logCall appends the audit row. A logging failure never masks the call
// result, it is only reported.
func (c *Client) logCall(tenant *db.Tenant, method, endpoint string, statusCode int, elapsed time.Duration) {
	if c.audit == nil || tenant == nil {
		return
	}

	entry := &db.APICallLog{
		TenantID:       tenant.ID,
		Endpoint:       endpoint,
		Method:         strings.ToUpper(method),
		StatusCode:     statusCode,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		IPAddress:      callerAddress,
		UserAgent:      userAgent,
		Timestamp:      time.Now(),
	}

	if err := c.audit.LogAPICall(entry); err != nil {
		c.logger.Error("Failed to write API call log",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
	}
}

func (c *Client) GetTenantStats(ctx context.Context, tenant *db.Tenant) (*TenantStats, error) {
	if tenant == nil {
		return nil, fmt.Errorf("tenant required for stats")
	}

	raw, err := c.call(ctx, tenant, http.MethodGet, "tenant/stats", nil, nil)
	if err != nil {
		return nil, err
	}

	// Missing fields default to zero values.
	var stats TenantStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("decode stats response: %w", err)
	}
	return &stats, nil
}

func (c *Client) RegisterTenant(ctx context.Context, tenant *db.Tenant, payload map[string]interface{}) (json.RawMessage, error) {
	return c.call(ctx, tenant, http.MethodPost, "tenant/register", payload, nil)
}

func (c *Client) UpdateFeatures(ctx context.Context, tenant *db.Tenant, features map[string]interface{}) (json.RawMessage, error) {
	if tenant == nil {
		return nil, fmt.Errorf("tenant required for feature update")
	}
	return c.call(ctx, tenant, http.MethodPut, "tenant/features", features, nil)
}

func (c *Client) GetUsers(ctx context.Context, tenant *db.Tenant, limit, offset int) (*UserPage, error) {
	if tenant == nil {
		return nil, fmt.Errorf("tenant required for user list")
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	raw, err := c.call(ctx, tenant, http.MethodGet, "tenant/users", nil, query)
	if err != nil {
		return nil, err
	}

	var page UserPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode users response: %w", err)
	}
	return &page, nil
}

func (c *Client) GetAuthLogs(ctx context.Context, tenant *db.Tenant, days, limit int) (*AuthLogPage, error) {
	if tenant == nil {
		return nil, fmt.Errorf("tenant required for auth logs")
	}

	query := url.Values{}
	query.Set("days", strconv.Itoa(days))
	query.Set("limit", strconv.Itoa(limit))

	raw, err := c.call(ctx, tenant, http.MethodGet, "tenant/auth-logs", nil, query)
	if err != nil {
		return nil, err
	}

	var page AuthLogPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode auth logs response: %w", err)
	}
	return &page, nil
}

func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	return c.call(ctx, nil, http.MethodGet, "health", nil, nil)
}
