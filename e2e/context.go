package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext carries HTTP state across the steps of one scenario. It talks to
// a running admissions server; nothing here reaches into server internals.
type TestContext struct {
	BaseURL          string
	SimulatorPrefix  string
	GatewayKeyID     string
	GatewayKeySecret string

	client       *http.Client
	accessToken  string
	statusCode   int
	contentType  string
	lastBody     []byte
	lastResponse map[string]interface{}
	saved        map[string]string
	runID        string
}

// NewTestContext returns a context bound to baseURL.
func NewTestContext(baseURL, keyID, keySecret string) *TestContext {
	return &TestContext{
		BaseURL:          strings.TrimRight(baseURL, "/"),
		SimulatorPrefix:  "/gateway-sim",
		GatewayKeyID:     keyID,
		GatewayKeySecret: keySecret,
		client:           &http.Client{Timeout: 15 * time.Second},
		saved:            make(map[string]string),
	}
}

// Reset clears per-scenario state. The run ID keeps registered emails unique
// across scenarios sharing one server.
func (tc *TestContext) Reset() {
	tc.accessToken = ""
	tc.statusCode = 0
	tc.contentType = ""
	tc.lastBody = nil
	tc.lastResponse = nil
	tc.saved = make(map[string]string)
	tc.runID = fmt.Sprintf("%d", time.Now().UnixNano())
}

// UniqueEmail scopes the local part of email to the current scenario.
func (tc *TestContext) UniqueEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	return local + "." + tc.runID + "@" + domain
}

func (tc *TestContext) POST(path string, body interface{}) error {
	return tc.do(http.MethodPost, path, body, nil)
}

func (tc *TestContext) PUT(path string, body interface{}) error {
	return tc.do(http.MethodPut, path, body, nil)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

// GatewayCheckout completes an order on the in-server gateway simulator and
// returns the signed callback fields the browser would submit.
func (tc *TestContext) GatewayCheckout(orderID string) (map[string]string, error) {
	req, err := http.NewRequest(http.MethodPost, tc.BaseURL+tc.SimulatorPrefix+"/orders/"+orderID+"/checkout", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(tc.GatewayKeyID, tc.GatewayKeySecret)
	resp, err := tc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway checkout: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway checkout returned %d: %s", resp.StatusCode, raw)
	}
	callback := make(map[string]string)
	if err := json.NewDecoder(resp.Body).Decode(&callback); err != nil {
		return nil, fmt.Errorf("decode checkout: %w", err)
	}
	return callback, nil
}

func (tc *TestContext) do(method, path string, body interface{}, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+tc.accessToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.statusCode = resp.StatusCode
	tc.contentType = resp.Header.Get("Content-Type")
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastResponse = nil
	if strings.HasPrefix(tc.contentType, "application/json") && len(tc.lastBody) > 0 {
		var parsed map[string]interface{}
		if err := json.Unmarshal(tc.lastBody, &parsed); err == nil {
			tc.lastResponse = parsed
		}
	}
	return nil
}

func (tc *TestContext) GetStatusCode() int        { return tc.statusCode }
func (tc *TestContext) GetContentType() string    { return tc.contentType }
func (tc *TestContext) GetResponseBody() []byte   { return tc.lastBody }
func (tc *TestContext) GetAccessToken() string    { return tc.accessToken }
func (tc *TestContext) SetAccessToken(tok string) { tc.accessToken = tok }

// GetResponseField reads a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	if tc.lastResponse == nil {
		return nil, fmt.Errorf("last response (status %d) is not a JSON object", tc.statusCode)
	}
	v, ok := tc.lastResponse[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) ResponseContains(field string) bool {
	_, ok := tc.lastResponse[field]
	return ok
}

func (tc *TestContext) Save(key, value string) { tc.saved[key] = value }

func (tc *TestContext) Saved(key string) (string, error) {
	v, ok := tc.saved[key]
	if !ok {
		return "", fmt.Errorf("nothing saved under %q", key)
	}
	return v, nil
}
