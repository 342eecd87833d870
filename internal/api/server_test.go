package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FocuswithJustin/JuniperBot/core/corpus"
	"github.com/FocuswithJustin/JuniperBot/core/errors"
	"github.com/FocuswithJustin/JuniperBot/core/passage"
	"github.com/FocuswithJustin/JuniperBot/core/session"
	"github.com/FocuswithJustin/JuniperBot/internal/metrics"
)

const testAPIKey = "0123456789abcdef0123"

// envelope mirrors APIResponse with the payload left undecoded.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func testService(t *testing.T, opts ...passage.Option) *passage.Service {
	t.Helper()
	verses := map[string]string{
		"48:1": "And in that place I saw the fountain of righteousness.",
		"48:2": "And at that hour that Son of Man was named.",
		"48:3": "Yea, before the sun and the signs were created.",
	}
	for v := 1; v <= 60; v++ {
		verses[fmt.Sprintf("10:%d", v)] = strings.Repeat("and the watchers ", 6)
	}
	c, err := corpus.New(map[string]map[string]string{"enoch": verses})
	if err != nil {
		t.Fatalf("corpus.New() error = %v", err)
	}
	store, err := session.NewStore(16, time.Minute)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	svc, err := passage.NewService(c, store, passage.Config{}, opts...)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.Version == "" {
		cfg.Version = "test"
	}
	m := metrics.New()
	s, err := New(cfg, testService(t, passage.WithMetrics(m)), m)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, ts
}

func do(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, env
}

func TestRootAndHealth(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp, env := do(t, http.MethodGet, ts.URL+"/", nil, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("GET / = %d %+v", resp.StatusCode, env)
	}
	var info InfoResponse
	json.Unmarshal(env.Data, &info)
	if info.Book != passage.DefaultBook || len(info.Commands) != 3 || len(info.Endpoints) == 0 {
		t.Errorf("info = %+v", info)
	}
	if env.Meta == nil || env.Meta.RequestID == "" {
		t.Errorf("meta = %+v, want request ID", env.Meta)
	}

	resp, env = do(t, http.MethodGet, ts.URL+"/health", nil, nil)
	var health HealthInfo
	json.Unmarshal(env.Data, &health)
	if resp.StatusCode != http.StatusOK || health.Status != "healthy" || health.Translations != 1 || health.Fingerprint == "" {
		t.Errorf("health = %d %+v", resp.StatusCode, health)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	resp, env = do(t, http.MethodGet, ts.URL+"/nope", nil, nil)
	if resp.StatusCode != http.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("GET /nope = %d %+v", resp.StatusCode, env.Error)
	}
}

func TestPingCommandsTranslations(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	_, env := do(t, http.MethodGet, ts.URL+"/ping", nil, nil)
	if !strings.Contains(string(env.Data), passage.Pong) {
		t.Errorf("ping data = %s", env.Data)
	}

	_, env = do(t, http.MethodGet, ts.URL+"/commands", nil, nil)
	if env.Meta == nil || env.Meta.Total != 3 {
		t.Errorf("commands meta = %+v", env.Meta)
	}

	_, env = do(t, http.MethodGet, ts.URL+"/translations", nil, nil)
	var tr TranslationsResponse
	json.Unmarshal(env.Data, &tr)
	if tr.Default != "enoch" || len(tr.Translations) != 1 || tr.Translations[0].Verses != 63 {
		t.Errorf("translations = %+v", tr)
	}
}

func TestPassageSingle(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp, env := do(t, http.MethodPost, ts.URL+"/passages", PassageRequest{Reference: "48:1-2", Mode: "plain"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, error = %+v", resp.StatusCode, env.Error)
	}
	var p PassageResponse
	json.Unmarshal(env.Data, &p)
	if p.Kind != "single" || p.Title != "1 Enoch 48:1-2" || p.Mode != "plain" {
		t.Errorf("passage = %+v", p)
	}
	want := "**1 Enoch 48:1-2**\n**1.** And in that place I saw the fountain of righteousness.\n**2.** And at that hour that Son of Man was named."
	if p.Text != want {
		t.Errorf("Text = %q, want %q", p.Text, want)
	}
}

func TestPassageErrors(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	tests := []struct {
		reference string
		delivery  string
		status    int
		kind      errors.Kind
	}{
		{"999:1", "", http.StatusNotFound, errors.KindChapterNotFound},
		{"abc", "", http.StatusBadRequest, errors.KindMalformedReference},
		{"5:10-3", "", http.StatusBadRequest, errors.KindInvertedRange},
		{"48:9", "", http.StatusNotFound, errors.KindVerseNotFound},
		{"10:1-60", "single", http.StatusUnprocessableEntity, errors.KindPassageTooLong},
		{"10:1-60", "", http.StatusForbidden, errors.KindUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.reference+"/"+tt.delivery, func(t *testing.T) {
			resp, env := do(t, http.MethodPost, ts.URL+"/passages",
				PassageRequest{Reference: tt.reference, Delivery: tt.delivery}, nil)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if env.Success || env.Error == nil {
				t.Fatalf("response = %+v", env)
			}
			if env.Error.Code != tt.kind.Code() || env.Error.Message != tt.kind.UserMessage() {
				t.Errorf("error = %+v, want %s / %q", env.Error, tt.kind.Code(), tt.kind.UserMessage())
			}
		})
	}
}

func TestPassageInvalidRequests(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	for name, body := range map[string]any{
		"bad json":      "{",
		"unknown field": `{"reference":"48:1","verse":1}`,
		"bad mode":      PassageRequest{Reference: "48:1", Mode: "hologram"},
		"bad delivery":  PassageRequest{Reference: "48:1", Delivery: "pigeon"},
	} {
		t.Run(name, func(t *testing.T) {
			resp, env := do(t, http.MethodPost, ts.URL+"/passages", body, nil)
			if resp.StatusCode != http.StatusBadRequest || env.Error == nil || env.Error.Code != "INVALID_REQUEST" {
				t.Errorf("response = %d %+v", resp.StatusCode, env.Error)
			}
		})
	}
}

func TestPaginationOverHTTP(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp, env := do(t, http.MethodPost, ts.URL+"/passages",
		PassageRequest{Reference: "10:1-60"}, map[string]string{"X-Actor-ID": "alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, error = %+v", resp.StatusCode, env.Error)
	}
	var p PassageResponse
	json.Unmarshal(env.Data, &p)
	if p.Kind != "interactive" || p.Page == nil || p.Page.Index != 0 || p.Page.Total < 2 || len(p.Chunks) != 0 {
		t.Fatalf("passage = %+v", p)
	}
	base := ts.URL + "/sessions/" + p.Page.SessionID

	resp, env = do(t, http.MethodPost, base+"/next", NavigateRequest{Actor: "bob"}, nil)
	if resp.StatusCode != http.StatusForbidden || env.Error.Code != "UNAUTHORIZED" {
		t.Errorf("bob next = %d %+v", resp.StatusCode, env.Error)
	}

	resp, env = do(t, http.MethodPost, base+"/next", NavigateRequest{Actor: "alice"}, nil)
	var page session.Page
	json.Unmarshal(env.Data, &page)
	if resp.StatusCode != http.StatusOK || page.Index != 1 || !page.HasPrevious {
		t.Errorf("alice next = %d %+v", resp.StatusCode, page)
	}

	resp, env = do(t, http.MethodPost, base+"/previous", nil, map[string]string{"X-Actor-ID": "alice"})
	json.Unmarshal(env.Data, &page)
	if resp.StatusCode != http.StatusOK || page.Index != 0 {
		t.Errorf("alice previous = %d %+v", resp.StatusCode, page)
	}

	resp, _ = do(t, http.MethodPost, base+"/jump", NavigateRequest{Actor: "alice"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown action status = %d", resp.StatusCode)
	}
	resp, env = do(t, http.MethodPost, ts.URL+"/sessions/missing/next", NavigateRequest{Actor: "alice"}, nil)
	if resp.StatusCode != http.StatusNotFound || env.Error.Code != "SESSION_NOT_FOUND" {
		t.Errorf("missing session = %d %+v", resp.StatusCode, env.Error)
	}
}

func TestCloseSessionOverHTTP(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	_, env := do(t, http.MethodPost, ts.URL+"/passages",
		PassageRequest{Reference: "10:1-60"}, map[string]string{"X-Actor-ID": "alice"})
	var p PassageResponse
	json.Unmarshal(env.Data, &p)
	if p.Page == nil {
		t.Fatalf("passage = %+v", p)
	}
	base := ts.URL + "/sessions/" + p.Page.SessionID

	tests := []struct {
		name     string
		url      string
		body     any
		headers  map[string]string
		wantCode int
		wantErr  string
	}{
		{"not the owner", base, NavigateRequest{Actor: "bob"}, nil, http.StatusForbidden, "UNAUTHORIZED"},
		{"unknown session", ts.URL + "/sessions/missing", NavigateRequest{Actor: "alice"}, nil, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"owner by header", base, nil, map[string]string{"X-Actor-ID": "alice"}, http.StatusOK, ""},
		{"already closed", base, NavigateRequest{Actor: "alice"}, nil, http.StatusNotFound, "SESSION_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := do(t, http.MethodDelete, tt.url, tt.body, tt.headers)
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d (error = %+v)", resp.StatusCode, tt.wantCode, env.Error)
			}
			if tt.wantErr == "" {
				var closed CloseResponse
				json.Unmarshal(env.Data, &closed)
				if !closed.Closed || closed.SessionID != p.Page.SessionID {
					t.Errorf("close response = %+v", closed)
				}
				return
			}
			if env.Error == nil || env.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want %s", env.Error, tt.wantErr)
			}
		})
	}

	resp, env := do(t, http.MethodPost, base+"/next", NavigateRequest{Actor: "alice"}, nil)
	if resp.StatusCode != http.StatusNotFound || env.Error.Code != "SESSION_NOT_FOUND" {
		t.Errorf("next after close = %d %+v", resp.StatusCode, env.Error)
	}
}

func TestChunkedDelivery(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	_, env := do(t, http.MethodPost, ts.URL+"/passages",
		PassageRequest{Reference: "10:1-60", Delivery: "chunked", Mode: "plain"}, nil)
	var p PassageResponse
	json.Unmarshal(env.Data, &p)
	if p.Kind != "chunks" || len(p.Chunks) < 2 || p.Page != nil {
		t.Errorf("passage = %+v", p)
	}
}

func TestAuth(t *testing.T) {
	_, ts := newTestServer(t, Config{Auth: AuthConfig{Enabled: true, APIKeys: []string{testAPIKey}}})

	resp, _ := do(t, http.MethodGet, ts.URL+"/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("public endpoint status = %d", resp.StatusCode)
	}

	resp, env := do(t, http.MethodGet, ts.URL+"/translations", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Error.Code != "UNAUTHENTICATED" {
		t.Errorf("missing key = %d %+v", resp.StatusCode, env.Error)
	}
	resp, _ = do(t, http.MethodGet, ts.URL+"/translations", nil, map[string]string{"X-API-Key": "wrong-key-wrong-key"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key status = %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodGet, ts.URL+"/translations", nil, map[string]string{"X-API-Key": testAPIKey})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid key status = %d", resp.StatusCode)
	}
}

func TestValidateAuthConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AuthConfig
		wantErr bool
	}{
		{"disabled", AuthConfig{}, false},
		{"enabled without keys", AuthConfig{Enabled: true}, true},
		{"short key", AuthConfig{Enabled: true, APIKeys: []string{"short"}}, true},
		{"valid", AuthConfig{Enabled: true, APIKeys: []string{testAPIKey}}, false},
	}
	for _, tt := range tests {
		if err := ValidateAuthConfig(tt.cfg); (err != nil) != tt.wantErr {
			t.Errorf("%s: ValidateAuthConfig() = %v", tt.name, err)
		}
	}
	if _, err := New(Config{Auth: AuthConfig{Enabled: true}}, testService(t), nil); err == nil {
		t.Error("New() accepted invalid auth config")
	}
	if _, err := New(Config{}, nil, nil); err == nil {
		t.Error("New() accepted nil service")
	}
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, Config{AllowedOrigins: []string{"https://bot.example"}})

	resp, _ := do(t, http.MethodGet, ts.URL+"/health", nil, map[string]string{"Origin": "https://bot.example"})
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://bot.example" {
		t.Errorf("allowed origin header = %q", got)
	}
	resp, _ = do(t, http.MethodGet, ts.URL+"/health", nil, map[string]string{"Origin": "https://evil.example"})
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got header %q", got)
	}
	resp, _ = do(t, http.MethodOptions, ts.URL+"/passages", nil, map[string]string{"Origin": "https://evil.example"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("disallowed preflight status = %d", resp.StatusCode)
	}
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"https://a.example", nil, true},
		{"", []string{"https://a.example"}, false},
		{"https://a.example", []string{"https://a.example"}, true},
		{"https://chat.a.example", []string{"*.a.example"}, true},
		{"https://evila.example", []string{"*.a.example"}, false},
		{"https://b.example", []string{"*"}, true},
	}
	for _, tt := range tests {
		if got := originAllowed(tt.origin, tt.allowed); got != tt.want {
			t.Errorf("originAllowed(%q, %v) = %v", tt.origin, tt.allowed, got)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	do(t, http.MethodPost, ts.URL+"/passages", PassageRequest{Reference: "48:1"}, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `juniperbot_passages_total{delivery="interactive",outcome="ok"} 1`) {
		t.Errorf("metrics output missing passage counter:\n%s", body)
	}
	if !strings.Contains(string(body), "juniperbot_sessions_live 0") {
		t.Errorf("metrics output missing live sessions gauge:\n%s", body)
	}
}
