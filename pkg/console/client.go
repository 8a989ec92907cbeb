// Package console is the REST client for the endpoint-security management
// console. A Client is the session: it is built once from the console address
// and API key and passed to every component that needs remote access.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/auth"
)

const tracerName = "github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"

// maxErrorBody caps how much of an error response is kept in StatusError.
const maxErrorBody = 512

type Options struct {
	// URL is the console address. A bare FQDN is treated as https.
	URL    string
	APIKey auth.APIKey

	Timeout          time.Duration
	RetryInitialMs   int
	RetryMaxMs       int
	RetryMaxAttempts int

	HTTPClient     HTTPClient
	Logger         *zerolog.Logger
	TracerProvider trace.TracerProvider
}

type Client struct {
	baseURL *url.URL
	key     auth.APIKey
	http    HTTPClient
	retry   *retrier
	logger  zerolog.Logger
	tracer  trace.Tracer
}

func New(opts Options) (*Client, error) {
	base, err := NormalizeURL(opts.URL)
	if err != nil {
		return nil, err
	}

	logger := log.Logger.With().Str("component", "console").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Client{
		baseURL: base,
		key:     opts.APIKey,
		http:    httpClient,
		retry:   newRetrier(opts.RetryInitialMs, opts.RetryMaxMs, opts.RetryMaxAttempts, logger),
		logger:  logger,
		tracer:  tp.Tracer(tracerName),
	}, nil
}

// NormalizeURL accepts either a full URL or a bare host name.
func NormalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoConsoleURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse console url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("console url %q has no host", raw)
	}
	return u, nil
}

// Host returns the console host name without port.
func (c *Client) Host() string {
	return c.baseURL.Hostname()
}

func (c *Client) URL() string {
	return c.baseURL.String()
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// request sends a single call, retrying transient failures when retry is set.
func (c *Client) request(ctx context.Context, op, method, path string, query url.Values, body any, retry bool) (*response, error) {
	ctx, span := c.tracer.Start(ctx, "console."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("url.path", path),
	)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
	}

	target := *c.baseURL
	target.Path = c.baseURL.Path + path
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var out *response
	attempt := func() error {
		resp, err := c.send(ctx, method, target.String(), payload)
		if err != nil {
			return err
		}
		if resp.status < 200 || resp.status > 299 {
			return &StatusError{Method: method, Path: path, Status: resp.status, Body: truncate(resp.body)}
		}
		out = resp
		return nil
	}

	var err error
	if retry {
		err = c.retry.do(ctx, op, attempt)
	} else {
		err = attempt()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", out.status))
	return out, nil
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte) (*response, error) {
	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	c.key.Apply(req)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	resp, err := c.request(ctx, op, http.MethodGet, path, query, nil, true)
	if err != nil {
		return err
	}
	return decode(op, resp.body, out)
}

func decode(op string, data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

// collectPages follows the console's last_id cursor starting after start.
// It stops when the console reports no further cursor, returns an empty
// page, or the cursor fails to advance.
func collectPages[T any](ctx context.Context, start int64, fetch func(ctx context.Context, after int64) ([]T, *int64, error)) ([]T, error) {
	var all []T
	after := start
	for {
		items, last, err := fetch(ctx, after)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if last == nil || len(items) == 0 || *last <= after {
			return all, nil
		}
		after = *last
	}
}

func afterQuery(key string, after int64) url.Values {
	return url.Values{key: []string{strconv.FormatInt(after, 10)}}
}

// ListPolicies returns every policy. With includeData each policy's settings
// object is fetched and attached.
func (c *Client) ListPolicies(ctx context.Context, includeData bool) ([]Policy, error) {
	var policies []Policy
	if err := c.getJSON(ctx, "list_policies", "/api/v1/policies/", nil, &policies); err != nil {
		return nil, err
	}
	if !includeData {
		return policies, nil
	}
	for i := range policies {
		var body struct {
			Data PolicyData `json:"data"`
		}
		path := fmt.Sprintf("/api/v1/policies/%d/data", policies[i].ID)
		if err := c.getJSON(ctx, "get_policy_data", path, nil, &body); err != nil {
			return nil, err
		}
		policies[i].Settings = body.Data
	}
	c.logger.Debug().Int("policies", len(policies)).Msg("Fetched policy data")
	return policies, nil
}

func (c *Client) ListDevices(ctx context.Context, includeDeactivated bool) ([]Device, error) {
	devices, err := collectPages(ctx, 0, func(ctx context.Context, after int64) ([]Device, *int64, error) {
		var page struct {
			LastID  *int64   `json:"last_id"`
			Devices []Device `json:"devices"`
		}
		if err := c.getJSON(ctx, "list_devices", "/api/v1/devices", afterQuery("after_device_id", after), &page); err != nil {
			return nil, nil, err
		}
		c.logger.Debug().Int64("after", after).Int("count", len(page.Devices)).Msg("Fetched device page")
		return page.Devices, page.LastID, nil
	})
	if err != nil {
		return nil, err
	}
	if includeDeactivated {
		return devices, nil
	}
	active := devices[:0]
	for _, d := range devices {
		if d.Active() {
			active = append(active, d)
		}
	}
	return active, nil
}

type eventPage struct {
	LastID *int64  `json:"last_id"`
	Events []Event `json:"events"`
}

// ListEvents returns events with id greater than minID. A nil filter lists
// every event; otherwise the search endpoint is used.
func (c *Client) ListEvents(ctx context.Context, filter *Filter, minID int64) ([]Event, error) {
	return collectPages(ctx, minID, func(ctx context.Context, after int64) ([]Event, *int64, error) {
		var page eventPage
		var err error
		if filter == nil {
			err = c.getJSON(ctx, "list_events", "/api/v1/events/", afterQuery("after_event_id", after), &page)
		} else {
			err = c.search(ctx, "search_events", "/api/v1/events/search", after, filter, &page)
		}
		if err != nil {
			return nil, nil, err
		}
		c.logger.Debug().Int64("after", after).Int("count", len(page.Events)).Msg("Fetched event page")
		return page.Events, page.LastID, nil
	})
}

func (c *Client) ListSuspiciousEvents(ctx context.Context, filter *Filter) ([]SuspiciousEvent, error) {
	return collectPages(ctx, 0, func(ctx context.Context, after int64) ([]SuspiciousEvent, *int64, error) {
		var page struct {
			LastID *int64            `json:"last_id"`
			Events []SuspiciousEvent `json:"events"`
		}
		var err error
		if filter == nil {
			err = c.getJSON(ctx, "list_suspicious_events", "/api/v1/suspicious-events/", afterQuery("after_event_id", after), &page)
		} else {
			err = c.search(ctx, "search_suspicious_events", "/api/v1/suspicious-events/search", after, filter, &page)
		}
		if err != nil {
			return nil, nil, err
		}
		return page.Events, page.LastID, nil
	})
}

// search posts a filter. Searches do not change server state, so they are
// retried like GETs.
func (c *Client) search(ctx context.Context, op, path string, after int64, filter *Filter, out any) error {
	resp, err := c.request(ctx, op, http.MethodPost, path, afterQuery("after_id", after), filter, true)
	if err != nil {
		return err
	}
	return decode(op, resp.body, out)
}

// CloseEvents closes the given events in a single call. Mutations are sent
// exactly once; callers decide whether to retry.
func (c *Client) CloseEvents(ctx context.Context, ids []int64) error {
	return c.eventAction(ctx, "close_events", "close", ids)
}

func (c *Client) ArchiveEvents(ctx context.Context, ids []int64) error {
	return c.eventAction(ctx, "archive_events", "archive", ids)
}

func (c *Client) eventAction(ctx context.Context, op, action string, ids []int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyIDs)
	}
	body := map[string][]int64{"ids": ids}
	_, err := c.request(ctx, op, http.MethodPost, "/api/v1/events/actions/"+action, nil, body, false)
	return err
}

// MultitenancyEnabled reports whether the console serves more than one MSP.
func (c *Client) MultitenancyEnabled(ctx context.Context) (bool, error) {
	_, err := c.request(ctx, "multitenancy", http.MethodGet, "/api/v1/multi-tenancy/", nil, nil, true)
	if err == nil {
		return true, nil
	}
	if se := asStatus(err); se != nil && (se.Status == http.StatusNotFound || se.Status == http.StatusForbidden) {
		return false, nil
	}
	return false, err
}

// HealthCheck pings the console and returns the server clock from the Date
// header, or the zero time when the header is missing.
func (c *Client) HealthCheck(ctx context.Context) (time.Time, error) {
	resp, err := c.request(ctx, "health_check", http.MethodGet, "/api/v1/health_check", nil, nil, false)
	if err != nil {
		return time.Time{}, err
	}
	if date := resp.header.Get("Date"); date != "" {
		if t, err := http.ParseTime(date); err == nil {
			return t, nil
		}
	}
	return time.Time{}, nil
}

func (c *Client) CreateUser(ctx context.Context, u User) error {
	_, err := c.request(ctx, "create_user", http.MethodPost, "/api/v1/users/", nil, u, false)
	return err
}

func (c *Client) AddExclusions(ctx context.Context, policyID int64, kind ExclusionKind, items []Exclusion) error {
	if len(items) == 0 {
		return nil
	}
	path := fmt.Sprintf("/api/v1/policies/%d/exclusion-list/%s", policyID, kind)
	body := map[string][]Exclusion{"items": items}
	_, err := c.request(ctx, "add_"+string(kind)+"_exclusions", http.MethodPost, path, nil, body, false)
	return err
}

func (c *Client) AgentVersions(ctx context.Context) ([]AgentVersion, error) {
	var versions []AgentVersion
	if err := c.getJSON(ctx, "agent_versions", "/api/v1/deployment/agent-versions", nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// DownloadInstaller returns the installer binary for v.
func (c *Client) DownloadInstaller(ctx context.Context, v AgentVersion) ([]byte, error) {
	body := v.Raw
	if body == nil {
		body = map[string]any{"os": v.OS, "version": v.Version}
	}
	resp, err := c.request(ctx, "download_installer", http.MethodPost, "/api/v1/deployment/download-installer", nil, body, true)
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

func asStatus(err error) *StatusError {
	var se *StatusError
	if errors.As(err, &se) {
		return se
	}
	return nil
}
