package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTP client constants.
const (
	// defaultRequestTimeout bounds a single remote call.
	defaultRequestTimeout = 20 * time.Second

	// defaultRequestsPerSecond is the outbound rate limit.
	defaultRequestsPerSecond = 2.0

	// defaultBurst is the number of requests allowed above the rate.
	defaultBurst = 4

	// maxResponseSize caps the size of a decoded response body (4MB).
	maxResponseSize = 4 << 20

	// defaultUserAgent is sent when none is configured.
	defaultUserAgent = "gray-logic-cloudbridge/1.0"
)

// Remote endpoint paths.
const (
	pathDeviceState   = "/api/phoenix/state"
	pathPlayerInfo    = "/api/np/player"
	pathPlayerCommand = "/api/np/command"
)

// Operation names used in errors.
const (
	opSetState          = "set state"
	opGetPlayerInfo     = "get player info"
	opSendPlayerCommand = "send player command"
)

// Client is the remote vendor cloud as seen by the coordinators.
// It is satisfied by *HTTPClient and by test fakes.
type Client interface {
	// QueryStates fetches the capability states of the given devices.
	// The response is returned unvalidated; see ExtractStates.
	QueryStates(ctx context.Context, ids []string) (*StatesResponse, error)

	// SetState performs one mutation on a device.
	SetState(ctx context.Context, id, action string, params map[string]any) error

	// GetPlayerInfo fetches the current playback state of a media device.
	GetPlayerInfo(ctx context.Context, device MediaDevice) (*PlayerInfo, error)

	// SendPlayerCommand sends a transport or volume command to a media device.
	SendPlayerCommand(ctx context.Context, device MediaDevice, cmd PlayerCommand) error
}

// Config contains HTTP client settings.
type Config struct {
	// BaseURL is the vendor cloud base URL (e.g. "https://alexa.amazon.com").
	BaseURL string

	// Cookie is the authenticated session cookie header value.
	Cookie string

	// CSRF is the anti-forgery token sent with mutating requests.
	CSRF string

	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// RequestTimeout bounds a single call. Default: 20s.
	RequestTimeout time.Duration

	// RequestsPerSecond limits outbound calls. Default: 2.
	RequestsPerSecond float64

	// Burst allows short bursts above the rate. Default: 4.
	Burst int
}

// HTTPClient is a thin JSON client for the vendor cloud.
//
// Thread Safety: All methods are safe for concurrent use.
type HTTPClient struct {
	baseURL    string
	cookie     string
	csrf       string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient creates a client from cfg.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("cloud base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parsing cloud base URL: %w", err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &HTTPClient{
		baseURL:    base,
		cookie:     cfg.Cookie,
		csrf:       cfg.CSRF,
		userAgent:  ua,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// QueryStates implements Client.
func (c *HTTPClient) QueryStates(ctx context.Context, ids []string) (*StatesResponse, error) {
	body := StatesRequest{StateRequests: make([]StateRequest, 0, len(ids))}
	for _, id := range ids {
		body.StateRequests = append(body.StateRequests, StateRequest{
			EntityID:   id,
			EntityType: EntityTypeAppliance,
		})
	}

	var resp StatesResponse
	if err := c.do(ctx, opQueryStates, http.MethodPost, pathDeviceState, nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetState implements Client.
func (c *HTTPClient) SetState(ctx context.Context, id, action string, params map[string]any) error {
	parameters := make(map[string]any, len(params)+1)
	for k, v := range params {
		parameters[k] = v
	}
	parameters["action"] = action

	body := ControlRequests{ControlRequests: []ControlRequest{{
		EntityID:   id,
		EntityType: EntityTypeAppliance,
		Parameters: parameters,
	}}}

	var resp ControlResponses
	if err := c.do(ctx, opSetState, http.MethodPut, pathDeviceState, nil, body, &resp); err != nil {
		return err
	}

	if len(resp.Errors) > 0 {
		return errorForCode(opSetState, resp.Errors[0].Code, resp.Errors[0].Message)
	}
	if resp.ControlResponses == nil {
		return newError(ErrInvalidResponse, opSetState, nil)
	}
	return nil
}

// GetPlayerInfo implements Client.
func (c *HTTPClient) GetPlayerInfo(ctx context.Context, device MediaDevice) (*PlayerInfo, error) {
	var resp playerInfoResponse
	if err := c.do(ctx, opGetPlayerInfo, http.MethodGet, pathPlayerInfo, mediaQuery(device), nil, &resp); err != nil {
		return nil, err
	}
	if resp.PlayerInfo == nil {
		return nil, newError(ErrInvalidResponse, opGetPlayerInfo, errors.New("missing playerInfo"))
	}

	p := resp.PlayerInfo
	info := &PlayerInfo{State: PlaybackState(strings.ToUpper(p.State))}
	if info.State == "" {
		info.State = PlaybackIdle
	}
	if p.Volume != nil {
		info.Volume = p.Volume.Volume
		info.Muted = p.Volume.Muted
	}
	if p.InfoText != nil {
		info.Title = p.InfoText.Title
		info.Artist = p.InfoText.SubText1
	}
	if p.Provider != nil {
		info.Provider = p.Provider.ProviderName
	}
	return info, nil
}

// SendPlayerCommand implements Client.
func (c *HTTPClient) SendPlayerCommand(ctx context.Context, device MediaDevice, cmd PlayerCommand) error {
	return c.do(ctx, opSendPlayerCommand, http.MethodPost, pathPlayerCommand, mediaQuery(device), cmd, nil)
}

// mediaQuery builds the query string identifying a media device.
func mediaQuery(device MediaDevice) url.Values {
	q := url.Values{}
	q.Set("deviceSerialNumber", device.SerialNumber)
	q.Set("deviceType", device.Type)
	return q
}

// do performs one JSON round trip. A nil out discards the response body.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return newError(ErrHTTP, op, err)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return newError(ErrHTTP, op, fmt.Errorf("encoding request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return newError(ErrHTTP, op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	if c.csrf != "" {
		req.Header.Set("csrf", c.csrf)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newError(ErrHTTP, op, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Body close errors are not actionable

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		//nolint:errcheck // Drain best-effort so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return &APIError{Kind: ErrHTTP, Op: op, Status: resp.StatusCode}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return newError(ErrInvalidResponse, op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
