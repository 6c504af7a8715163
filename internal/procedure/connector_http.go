package procedure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/nextlevelbuilder/convoy/internal/model"
)

// HTTPConnector dispatches api_call/data_lookup steps over HTTP against a
// DataConnector's baseUrl, applying its configured auth mode.
type HTTPConnector struct {
	Client *http.Client
}

// NewHTTPConnector builds a connector using client, or http.DefaultClient
// when nil.
func NewHTTPConnector(client *http.Client) *HTTPConnector {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPConnector{Client: client}
}

// Call builds a request from connector + step, substituting {{name}} tokens
// in pathTemplate with URL-encoded interpolated values and sending any
// remaining params as query (GET) or JSON body (non-GET). It decodes the
// JSON response body and writes values into vars per
// connector.ResponseMapping.
// method should be http.MethodGet for data_lookup steps (always GET) or the
// step's configured method for api_call.
func (c *HTTPConnector) Call(ctx context.Context, connector model.DataConnector, method, pathTemplate string, params map[string]any, vars map[string]any, dryRun bool) error {
	path := pathTemplate
	consumed := map[string]bool{}
	for name := range params {
		token := "{{" + name + "}}"
		if strings.Contains(path, token) {
			path = strings.ReplaceAll(path, token, url.QueryEscape(fmt.Sprint(Interpolate(fmt.Sprint(params[name]), vars))))
			consumed[name] = true
		}
	}
	remaining := map[string]any{}
	for k, v := range params {
		if !consumed[k] {
			remaining[k] = v
		}
	}

	fullURL := strings.TrimRight(connector.BaseURL, "/") + path
	var body io.Reader
	if method == http.MethodGet {
		if len(remaining) > 0 {
			q := url.Values{}
			for k, v := range remaining {
				q.Set(k, fmt.Sprint(v))
			}
			fullURL += "?" + q.Encode()
		}
	} else if len(remaining) > 0 {
		raw, err := json.Marshal(remaining)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	if dryRun {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := applyAuth(req, connector); err != nil {
		return fmt.Errorf("apply auth: %w", err)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("call connector: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("connector returned status %d", resp.StatusCode)
	}

	var decoded any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	applyResponseMapping(decoded, connector.ResponseMapping, vars)
	return nil
}

func applyAuth(req *http.Request, connector model.DataConnector) error {
	switch connector.AuthMode {
	case model.ConnectorAuthAPIKey:
		req.Header.Set("Authorization", "Bearer "+connector.AuthParams["key"])
	case model.ConnectorAuthBasic:
		creds := connector.AuthParams["user"] + ":" + connector.AuthParams["pass"]
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
	case model.ConnectorAuthOAuth:
		token, err := oauthToken(req.Context(), connector)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// oauthToken obtains an access token via the OAuth2 client-credentials
// grant. When the connector declares an "issuer" auth param, the token
// endpoint is discovered via OIDC rather than read from a static
// "tokenUrl" param.
func oauthToken(ctx context.Context, connector model.DataConnector) (string, error) {
	tokenURL := connector.AuthParams["tokenUrl"]
	if issuer := connector.AuthParams["issuer"]; issuer != "" {
		endpoint, err := discoverTokenEndpoint(ctx, issuer)
		if err != nil {
			return "", fmt.Errorf("discover oidc token endpoint: %w", err)
		}
		tokenURL = endpoint
	}
	cfg := &clientcredentials.Config{
		ClientID:     connector.AuthParams["clientId"],
		ClientSecret: connector.AuthParams["clientSecret"],
		TokenURL:     tokenURL,
	}
	tok, err := cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch oauth token: %w", err)
	}
	return tok.AccessToken, nil
}

// discoverTokenEndpoint resolves the token endpoint of an OIDC issuer via
// its well-known discovery document.
func discoverTokenEndpoint(ctx context.Context, issuer string) (string, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", err
	}
	var claims struct {
		TokenEndpoint string `json:"token_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return "", err
	}
	return claims.TokenEndpoint, nil
}

// applyResponseMapping walks each jsonPath -> variable name pair and writes
// the resolved value from decoded into vars at the variable's dot-path.
func applyResponseMapping(decoded any, mapping map[string]string, vars map[string]any) {
	for jsonPath, varName := range mapping {
		if val, ok := lookupJSONPath(decoded, jsonPath); ok {
			setPath(vars, varName, val)
		}
	}
}

// lookupJSONPath resolves a dot-separated path (e.g. "order.total") against
// a decoded JSON value (maps/slices as produced by encoding/json).
func lookupJSONPath(decoded any, path string) (any, bool) {
	cur := decoded
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
