// Package tools provides the tool implementations registered into an
// agentloop.ToolRegistry.
package tools

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/movinture/latent-logic/agentloop"
)

// HTTPRequestToolName is the registry name of the HTTP fetch tool.
const HTTPRequestToolName = "http_request"

const (
	defaultHTTPTimeout  = 30 * time.Second
	defaultMaxBodyChars = 5000
	maxBodyBytes        = 2 << 20
)

// HTTPConfig configures the http_request tool.
type HTTPConfig struct {
	// Timeout bounds each request. Zero means 30s.
	Timeout time.Duration
	// MaxBodyChars truncates non-JSON bodies. Zero means 5000.
	MaxBodyChars int
	// AllowedEnvVars lists the variables auth_env_var may name. Any other
	// variable is reported as not found.
	AllowedEnvVars []string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// Transport defaults to http.DefaultTransport wrapped with otelhttp.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// HTTPRequestTool executes model-requested HTTP calls.
type HTTPRequestTool struct {
	cfg      HTTPConfig
	client   *http.Client
	insecure *http.Client
	allowed  map[string]bool
	logger   *zap.Logger
}

// NewHTTPRequestTool builds the tool from cfg.
func NewHTTPRequestTool(cfg HTTPConfig) *HTTPRequestTool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.MaxBodyChars <= 0 {
		cfg.MaxBodyChars = defaultMaxBodyChars
	}
	if cfg.LookupEnv == nil {
		cfg.LookupEnv = os.LookupEnv
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := cfg.Transport
	var insecureTransport http.RoundTripper
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport)
		transport = otelhttp.NewTransport(base.Clone())
		noVerify := base.Clone()
		noVerify.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // model-controlled verify_ssl=false
		insecureTransport = otelhttp.NewTransport(noVerify)
	} else {
		insecureTransport = transport
	}

	allowed := make(map[string]bool, len(cfg.AllowedEnvVars))
	for _, name := range cfg.AllowedEnvVars {
		allowed[name] = true
	}

	return &HTTPRequestTool{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout, Transport: transport},
		insecure: &http.Client{Timeout: cfg.Timeout, Transport: insecureTransport},
		allowed:  allowed,
		logger:   logger,
	}
}

// RegisterHTTPRequest adds the http_request tool to registry.
func RegisterHTTPRequest(registry *agentloop.ToolRegistry, cfg HTTPConfig) (*HTTPRequestTool, error) {
	tool := NewHTTPRequestTool(cfg)
	if err := registry.Register(agentloop.RegisteredTool{
		Definition: HTTPRequestDefinition(),
		Executor:   tool.Execute,
	}); err != nil {
		return nil, err
	}
	return tool, nil
}

// HTTPRequestDefinition is the schema advertised to models.
func HTTPRequestDefinition() agentloop.ToolDefinition {
	str := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": desc}
	}
	return agentloop.ToolDefinition{
		Name:        HTTPRequestToolName,
		Description: "Make HTTP requests to any API with authentication support.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"method":       str("HTTP method (GET, POST, PUT, DELETE, etc.)"),
				"url":          str("The URL to send the request to"),
				"auth_type":    str("Authentication type: Bearer, token, basic, api_key, custom"),
				"auth_token":   str("Authentication token (if not using auth_env_var)"),
				"auth_env_var": str("Name of environment variable containing the auth token"),
				"headers": map[string]interface{}{
					"type":        "object",
					"description": "HTTP headers as key-value pairs",
				},
				"body": str("Request body (for POST, PUT, etc.)"),
				"verify_ssl": map[string]interface{}{
					// Inline-JSON models often quote booleans.
					"type":        []string{"boolean", "string"},
					"description": "Whether to verify SSL certificates",
				},
				"basic_auth_username": str("Username for basic authentication"),
				"basic_auth_password": str("Password for basic authentication"),
			},
			"required": []string{"url"},
		},
	}
}

// Execute performs the request and renders status, final URL, content
// type and body. Non-2xx responses are results, not errors.
func (t *HTTPRequestTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	rawURL, ok := agentloop.GetStringArg(args, "url")
	if !ok || strings.TrimSpace(rawURL) == "" {
		return "", errors.New("missing required argument: url")
	}
	method, _ := agentloop.GetStringArg(args, "method")
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	headers, err := t.buildHeaders(args, rawURL)
	if err != nil {
		return "", err
	}

	var body io.Reader
	if b, ok := agentloop.GetStringArg(args, "body"); ok && b != "" {
		body = strings.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := t.client
	if verify, ok := agentloop.GetBoolArg(args, "verify_ssl"); ok && !verify {
		client = t.insecure
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	t.logger.Debug("http_request",
		zap.String("method", method),
		zap.String("host", req.URL.Host),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return t.render(resp, data), nil
}

func (t *HTTPRequestTool) buildHeaders(args map[string]interface{}, rawURL string) (map[string]string, error) {
	headers, _ := agentloop.GetStringMapArg(args, "headers")
	if headers == nil {
		headers = map[string]string{}
	}

	authType, _ := agentloop.GetStringArg(args, "auth_type")
	token, _ := agentloop.GetStringArg(args, "auth_token")
	if envName, ok := agentloop.GetStringArg(args, "auth_env_var"); token == "" && ok && envName != "" {
		value, found := "", false
		if t.allowed[envName] {
			value, found = t.cfg.LookupEnv(envName)
		}
		if !found || value == "" {
			return nil, fmt.Errorf("environment variable '%s' not found or empty", envName)
		}
		token = value
	}

	if token != "" {
		switch authType {
		case "Bearer", "bearer":
			headers["Authorization"] = "Bearer " + token
		case "token":
			headers["Authorization"] = "token " + token
			if _, ok := headers["Accept"]; !ok && strings.Contains(strings.ToLower(rawURL), "github") {
				headers["Accept"] = "application/vnd.github.v3+json"
			}
		case "api_key":
			headers["X-API-Key"] = token
		case "custom":
			headers["Authorization"] = token
		}
	}

	if authType == "basic" {
		user, _ := agentloop.GetStringArg(args, "basic_auth_username")
		pass, _ := agentloop.GetStringArg(args, "basic_auth_password")
		if user != "" && pass != "" {
			headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
		}
	}
	return headers, nil
}

func (t *HTTPRequestTool) render(resp *http.Response, data []byte) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Status: %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	fmt.Fprintf(&sb, "URL: %s\n", resp.Request.URL.String())
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "unknown"
	}
	fmt.Fprintf(&sb, "Content-Type: %s\n", contentType)

	if strings.Contains(contentType, "application/json") {
		var v interface{}
		if err := json.Unmarshal(data, &v); err == nil {
			if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
				sb.WriteString("Body: ")
				sb.Write(pretty)
				return sb.String()
			}
		}
	}

	text := []rune(string(data))
	if len(text) > t.cfg.MaxBodyChars {
		fmt.Fprintf(&sb, "Body (truncated): %s... (total length: %d)", string(text[:t.cfg.MaxBodyChars]), len(text))
	} else {
		sb.WriteString("Body: ")
		sb.WriteString(string(text))
	}
	return sb.String()
}
