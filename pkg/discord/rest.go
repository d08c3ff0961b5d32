package discord

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
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the platform's v10 REST root.
const DefaultBaseURL = "https://discord.com/api/v10"

const maxErrorBody = 64 << 10

// RESTClient implements API over HTTP. It performs exactly one request per
// call; throttling and retries are the caller's concern.
type RESTClient struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	userAgent   string
	auditReason string
	logger      zerolog.Logger
}

// RESTOption configures a RESTClient.
type RESTOption func(*RESTClient)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(baseURL string) RESTOption {
	return func(c *RESTClient) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) RESTOption {
	return func(c *RESTClient) { c.httpClient = client }
}

// WithAuditReason sets the X-Audit-Log-Reason header sent with writes.
func WithAuditReason(reason string) RESTOption {
	return func(c *RESTClient) { c.auditReason = reason }
}

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) RESTOption {
	return func(c *RESTClient) { c.logger = logger }
}

// NewRESTClient creates a client authenticating with a bot token.
func NewRESTClient(token string, opts ...RESTOption) *RESTClient {
	c := &RESTClient{
		baseURL:     DefaultBaseURL,
		token:       token,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		userAgent:   "DiscordBot (https://github.com/0xHoneyJar/arrakis-sub001, 1)",
		auditReason: "guildform apply",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ API = (*RESTClient)(nil)

func (c *RESTClient) GetGuild(ctx context.Context, guildID string) (*Guild, error) {
	var guild Guild
	if err := c.do(ctx, http.MethodGet, "/guilds/"+guildID, nil, &guild); err != nil {
		return nil, err
	}
	return &guild, nil
}

func (c *RESTClient) ListRoles(ctx context.Context, guildID string) ([]Role, error) {
	var roles []Role
	if err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/roles", nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (c *RESTClient) ListChannels(ctx context.Context, guildID string) ([]Channel, error) {
	var channels []Channel
	if err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/channels", nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

func (c *RESTClient) CreateRole(ctx context.Context, guildID string, params RoleParams) (*Role, error) {
	var role Role
	if err := c.do(ctx, http.MethodPost, "/guilds/"+guildID+"/roles", params, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (c *RESTClient) UpdateRole(ctx context.Context, guildID, roleID string, params RoleParams) (*Role, error) {
	var role Role
	if err := c.do(ctx, http.MethodPatch, "/guilds/"+guildID+"/roles/"+roleID, params, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// SetRolePosition moves one role through the role-positions endpoint.
func (c *RESTClient) SetRolePosition(ctx context.Context, guildID, roleID string, position int) error {
	body := []map[string]interface{}{{"id": roleID, "position": position}}
	return c.do(ctx, http.MethodPatch, "/guilds/"+guildID+"/roles", body, nil)
}

func (c *RESTClient) DeleteRole(ctx context.Context, guildID, roleID string) error {
	return c.do(ctx, http.MethodDelete, "/guilds/"+guildID+"/roles/"+roleID, nil, nil)
}

func (c *RESTClient) CreateChannel(ctx context.Context, guildID string, params ChannelParams) (*Channel, error) {
	var channel Channel
	if err := c.do(ctx, http.MethodPost, "/guilds/"+guildID+"/channels", params, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

func (c *RESTClient) UpdateChannel(ctx context.Context, channelID string, params ChannelParams) (*Channel, error) {
	var channel Channel
	if err := c.do(ctx, http.MethodPatch, "/channels/"+channelID, params, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

func (c *RESTClient) DeleteChannel(ctx context.Context, channelID string) error {
	return c.do(ctx, http.MethodDelete, "/channels/"+channelID, nil, nil)
}

func (c *RESTClient) SetChannelPermission(ctx context.Context, channelID string, params OverwriteParams) error {
	return c.do(ctx, http.MethodPut, "/channels/"+channelID+"/permissions/"+params.ID, params, nil)
}

func (c *RESTClient) DeleteChannelPermission(ctx context.Context, channelID, overwriteID string) error {
	return c.do(ctx, http.MethodDelete, "/channels/"+channelID+"/permissions/"+overwriteID, nil, nil)
}

// do sends one request and decodes a 2xx body into out. Remote failures are
// returned as *APIError; a cancelled ctx is returned as is.
func (c *RESTClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("discord: encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("discord: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && c.auditReason != "" {
		req.Header.Set("X-Audit-Log-Reason", url.PathEscape(c.auditReason))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		apiErr := NewNetworkError(err)
		apiErr.Method, apiErr.Path = method, path
		return apiErr
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Platform request")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("discord: decoding %s %s response: %w", method, path, err)
		}
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := parseErrorResponse(resp.StatusCode, resp.Header, data)
	apiErr.Method, apiErr.Path = method, path
	return apiErr
}

// errorBody covers both the generic error shape and the 429 shape.
type errorBody struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

func parseErrorResponse(status int, header http.Header, data []byte) *APIError {
	var body errorBody
	_ = json.Unmarshal(data, &body)

	message := body.Message
	if message == "" {
		message = http.StatusText(status)
	}

	apiErr := NewStatusError(status, message)
	apiErr.Code = body.Code

	if apiErr.Kind == KindRateLimited {
		apiErr.Global = body.Global || header.Get("X-RateLimit-Global") == "true"
		apiErr.RetryAfter = retryAfterFrom(header, body.RetryAfter)
	}
	return apiErr
}

// retryAfterFrom prefers the body's fractional seconds and falls back to
// the Retry-After header. One second when neither is usable.
func retryAfterFrom(header http.Header, bodySeconds float64) time.Duration {
	if bodySeconds > 0 {
		return time.Duration(bodySeconds * float64(time.Second))
	}
	if v := header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.ParseFloat(v, 64); err == nil && seconds > 0 {
			return time.Duration(seconds * float64(time.Second))
		}
	}
	if v := header.Get("X-RateLimit-Reset-After"); v != "" {
		if seconds, err := strconv.ParseFloat(v, 64); err == nil && seconds > 0 {
			return time.Duration(seconds * float64(time.Second))
		}
	}
	return time.Second
}
