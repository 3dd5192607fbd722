package actions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/calderio/automaton/internal/expressions"
	"github.com/calderio/automaton/pkg/schema"
)

const (
	webhookDefaultTimeout  = 10 * time.Second
	webhookMaxTimeout      = 30 * time.Second
	webhookMaxResponseBody = 1 << 20 // 1MB
)

// WebhookCallAction performs an outbound HTTP call. The URL is interpolated
// and then screened: only http/https schemes, and never loopback, link-local,
// or private-range targets — hostnames are resolved so a public name pointing
// at internal address space is caught too. A non-2xx response is recorded in
// the output, not treated as a failure; only transport errors and timeouts
// fail the step.
type WebhookCallAction struct {
	client         *http.Client
	defaultTimeout time.Duration
	lookupIP       func(ctx context.Context, host string) ([]net.IP, error)
}

// WebhookConfig tunes the webhook_call handler.
type WebhookConfig struct {
	DefaultTimeout time.Duration
}

// NewWebhookCallAction creates the webhook_call handler.
func NewWebhookCallAction(cfg WebhookConfig) *WebhookCallAction {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 || timeout > webhookMaxTimeout {
		timeout = webhookDefaultTimeout
	}
	return &WebhookCallAction{
		client:         &http.Client{},
		defaultTimeout: timeout,
		lookupIP:       defaultLookupIP,
	}
}

func defaultLookupIP(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

func (a *WebhookCallAction) Type() schema.ActionType { return schema.ActionWebhookCall }

func (a *WebhookCallAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	data := wctx.AsMap()

	rawURL := strings.TrimSpace(expressions.Interpolate(stringParam(cfg, "url", ""), data))
	if err := a.validateWebhookURL(ctx, rawURL); err != nil {
		return nil, err
	}

	method := strings.ToUpper(stringParam(cfg, "method", "POST"))

	var bodyReader io.Reader
	if rawBody, ok := cfg["body"]; ok && rawBody != nil {
		interpolated := expressions.InterpolateValue(rawBody, data)
		b, err := json.Marshal(interpolated)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "webhook_call: failed to marshal body").WithCause(err)
		}
		bodyReader = strings.NewReader(string(b))
	}

	timeout := a.defaultTimeout
	if secs := intParam(cfg, "timeout_seconds", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	if timeout > webhookMaxTimeout {
		timeout = webhookMaxTimeout
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "webhook_call: failed to create request").WithCause(err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if hdrs := mapParam(cfg, "headers"); hdrs != nil {
		for k, v := range expressions.InterpolateConfig(hdrs, data) {
			req.Header.Set(k, expressions.Stringify(v))
		}
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, schema.NewErrorf(schema.ErrCodeTimeout, "webhook_call: request to %s timed out after %s", rawURL, timeout).WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "webhook_call: request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, webhookMaxResponseBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "webhook_call: failed to read response body").WithCause(err)
	}

	var parsedBody any
	if len(bodyBytes) > 0 {
		if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			var jsonBody any
			if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
				parsedBody = jsonBody
			} else {
				parsedBody = string(bodyBytes)
			}
		} else {
			parsedBody = string(bodyBytes)
		}
	}

	return map[string]any{
		"success":     resp.StatusCode >= 200 && resp.StatusCode < 300,
		"status_code": resp.StatusCode,
		"body":        parsedBody,
		"duration_ms": time.Since(start).Milliseconds(),
	}, nil
}

// validateWebhookURL rejects non-http(s) schemes and any host that targets
// loopback, link-local, or RFC1918 private address space. Hostnames are
// resolved and every returned address is screened. The whole check runs
// before any request goes out.
func (a *WebhookCallAction) validateWebhookURL(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return schema.NewError(schema.ErrCodeValidation, "webhook_call: missing url")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "webhook_call: invalid url %q", rawURL).WithCause(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return schema.NewErrorf(schema.ErrCodeValidation, "webhook_call: unsupported scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "webhook_call: invalid url %q", rawURL)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return schema.NewErrorf(schema.ErrCodeValidation, "webhook_call: host %q is not allowed", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if blockedIP(ip) {
			return schema.NewErrorf(schema.ErrCodeValidation, "webhook_call: address %q is not allowed", host)
		}
		return nil
	}

	ips, err := a.lookupIP(ctx, host)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExecution, "webhook_call: cannot resolve host %q", host).WithCause(err)
	}
	for _, ip := range ips {
		if blockedIP(ip) {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"webhook_call: host %q resolves to blocked address %s", host, ip)
		}
	}

	return nil
}

func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsPrivate()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
