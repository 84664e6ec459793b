package toolgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/pkg/secrets"
)

// templateData is the substitution context for a tool endpoint's
// url_template.
type templateData struct {
	CallID   string
	TenantID string
}

// buildRequest renders rt's endpoint against callID/tenantID/args into an
// *http.Request: GET requests carry args as a query string, every other verb
// carries them as a JSON body. Header templates are applied after, so a
// configured header always wins over a default, and the integration's
// decrypted secret (when present) is layered in last as the auth header.
func buildRequest(ctx context.Context, rt *ResolvedTool, codec *secrets.Codec, callID, tenantID string, args map[string]any) (*http.Request, error) {
	tmpl, err := template.New("url").Parse(rt.Endpoint.URLTemplate)
	if err != nil {
		return nil, fmt.Errorf("toolgateway: parse url template: %w", err)
	}
	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, templateData{CallID: callID, TenantID: tenantID}); err != nil {
		return nil, fmt.Errorf("toolgateway: render url template: %w", err)
	}
	rawURL := rendered.String()

	method := rt.Endpoint.Method
	if method == "" {
		method = http.MethodPost
	}

	var req *http.Request
	if strings.EqualFold(method, http.MethodGet) {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("toolgateway: parse url: %w", err)
		}
		q := u.Query()
		for k, v := range args {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
		if err != nil {
			return nil, err
		}
	} else {
		body, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("toolgateway: marshal body: %w", err)
		}
		req, err = http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range rt.Endpoint.HeaderTemplate {
		req.Header.Set(k, v)
	}

	if rt.Integration != nil && codec != nil {
		secret, err := codec.Decode(rt.Integration.EncryptedSecret)
		if err != nil {
			return nil, fmt.Errorf("toolgateway: decode integration secret: %w", err)
		}
		switch rt.Integration.AuthKind {
		case "bearer":
			req.Header.Set("Authorization", "Bearer "+secret)
		case "api_key":
			req.Header.Set("X-Api-Key", secret)
		}
	}

	return req, nil
}

func timeoutFor(endpoint *ent.ToolEndpoint) time.Duration {
	ms := endpoint.TimeoutMs
	if ms <= 0 {
		ms = 5000
	}
	return time.Duration(ms) * time.Millisecond
}
