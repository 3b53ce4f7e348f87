package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"letterbox/pkg/storage"
	"letterbox/pkg/store"
	"letterbox/services/letters/internal/app"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestServer(t *testing.T, clock func() time.Time) *httptest.Server {
	t.Helper()
	a, err := app.New(app.Config{
		Store:   store.NewMemoryStore(),
		Objects: storage.NewMemoryStore(),
		Now:     clock,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{App: a, MaxBodyBytes: 1 << 16})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp, out
}

func validLetter(delay any) map[string]any {
	return map[string]any{
		"title":           "Hi",
		"content":         "Hello",
		"senderPincode":   "100001",
		"receiverPincode": "200002",
		"receiverAddress": "X",
		"deliveryTime":    delay,
	}
}

func TestLetterLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	srv := newTestServer(t, clock.Now)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/letters", validLetter("0.0042"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d body=%v", resp.StatusCode, body)
	}
	if body["message"] != "Letter sent successfully" {
		t.Fatalf("message = %v", body["message"])
	}
	if body["deliverySeconds"] != float64(363) {
		t.Fatalf("deliverySeconds = %v, want 363", body["deliverySeconds"])
	}
	if body["deliveryTime"] != "2026-05-01T10:06:03.000Z" {
		t.Fatalf("deliveryTime = %v", body["deliveryTime"])
	}
	id, _ := body["letterId"].(string)
	if id == "" {
		t.Fatalf("missing letterId")
	}

	_, body = doJSON(t, http.MethodGet, srv.URL+"/letters?receiverPincode=200002", nil)
	if letters := body["letters"].([]any); len(letters) != 0 {
		t.Fatalf("pending letter should be hidden, got %d", len(letters))
	}
	_, body = doJSON(t, http.MethodGet, srv.URL+"/letters?receiverPincode=200002&includePending=true", nil)
	if letters := body["letters"].([]any); len(letters) != 1 {
		t.Fatalf("includePending should show the letter, got %d", len(letters))
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/letters/"+id+"/deliver", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("early deliver status = %d", resp.StatusCode)
	}
	if body["code"] != "LETTER_NOT_READY" || body["error"] != "Letter is not ready for delivery yet" {
		t.Fatalf("unexpected not-ready body: %v", body)
	}
	if body["deliveryTime"] != "2026-05-01T10:06:03.000Z" || body["currentTime"] != "2026-05-01T10:00:00.000Z" {
		t.Fatalf("unexpected not-ready times: %v", body)
	}
	if body["requestId"] == "" || body["requestId"] == nil {
		t.Fatalf("error body should carry the request id")
	}

	clock.Advance(10 * time.Minute)
	for _, method := range []string{http.MethodPut, http.MethodPost} {
		resp, body = doJSON(t, method, srv.URL+"/letters/"+id+"/deliver", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s deliver status = %d body=%v", method, resp.StatusCode, body)
		}
		letter := body["letter"].(map[string]any)
		if letter["isDelivered"] != true {
			t.Fatalf("letter should be delivered after %s", method)
		}
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/letters/"+id, nil)
	if resp.StatusCode != http.StatusOK || body["letter"].(map[string]any)["id"] != id {
		t.Fatalf("get letter status = %d body=%v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/mailbox?pincode=200002", nil)
	if resp.StatusCode != http.StatusOK || body["unreadCount"] != float64(0) {
		t.Fatalf("mailbox status = %d body=%v", resp.StatusCode, body)
	}
}

func TestCreateLetterErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	tests := []struct {
		name string
		body any
		code string
	}{
		{"missing fields", map[string]any{"title": "Hi", "deliveryTime": 1}, "LETTER_MISSING_FIELDS"},
		{"iso timestamp", validLetter("2026-05-01T10:00:00Z"), "LETTER_INVALID_DELIVERY_TIME"},
		{"not a number", validLetter("soon"), "LETTER_INVALID_DELIVERY_TIME"},
		{"absent delay", validLetter(nil), "LETTER_INVALID_DELIVERY_TIME"},
		{"bad json", "{", "SYSTEM_INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, http.MethodPost, srv.URL+"/letters", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if body["code"] != tt.code {
				t.Fatalf("code = %v, want %s", body["code"], tt.code)
			}
		})
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/letters", validLetter(1))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("numeric delay status = %d body=%v", resp.StatusCode, body)
	}
}

func TestCreateLetterAcceptsFarAndPastDelays(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	srv := newTestServer(t, clock.Now)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/letters", validLetter("400"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("400 day delay status = %d body=%v", resp.StatusCode, body)
	}
	if body["deliverySeconds"] != float64(400*86400) {
		t.Fatalf("deliverySeconds = %v", body["deliverySeconds"])
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/letters", validLetter("-1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("negative delay status = %d body=%v", resp.StatusCode, body)
	}
	if body["deliveryTime"] != "2026-04-30T10:00:00.000Z" {
		t.Fatalf("deliveryTime = %v", body["deliveryTime"])
	}
	id, _ := body["letterId"].(string)
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/letters/"+id+"/deliver", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("past letter should open at once, status = %d body=%v", resp.StatusCode, body)
	}

	_, body = doJSON(t, http.MethodGet, srv.URL+"/mailbox?pincode=200002", nil)
	if ready := body["ready"].([]any); len(ready) != 2 {
		t.Fatalf("far and past letters should both be ready in the mailbox, got %d", len(ready))
	}
}

func TestListLettersRequiresPincode(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/letters", nil)
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "Either receiverPincode or senderPincode is required" {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
}

func TestLetterNotFound(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, path := range []string{"/letters/missing", "/letters/missing/deliver", "/letters/missing/overlay"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "deliver") {
			method = http.MethodPost
		}
		resp, body := doJSON(t, method, srv.URL+path, nil)
		if resp.StatusCode != http.StatusNotFound || body["error"] != "Letter not found" {
			t.Fatalf("%s status = %d body=%v", path, resp.StatusCode, body)
		}
	}
	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/letters/missing", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("delete status = %d, want 405", resp.StatusCode)
	}
}

func TestUsersEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/users", map[string]string{"pincode": "12"})
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "Invalid pincode. Must be 6 digits." {
		t.Fatalf("invalid pincode status = %d body=%v", resp.StatusCode, body)
	}
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/users", map[string]string{"pincode": "100001"})
	if resp.StatusCode != http.StatusCreated || body["message"] != "User created successfully" {
		t.Fatalf("create status = %d body=%v", resp.StatusCode, body)
	}
	userID := body["userId"]
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/users", map[string]string{"pincode": "100001"})
	if resp.StatusCode != http.StatusOK || body["message"] != "User already exists" || body["userId"] != userID {
		t.Fatalf("existing status = %d body=%v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/users", nil)
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "Pincode is required" {
		t.Fatalf("missing pincode status = %d body=%v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/users?pincode=999999", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown user status = %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/users?pincode=100001", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get user status = %d", resp.StatusCode)
	}
	user := body["user"].(map[string]any)
	if user["pincode"] != "100001" {
		t.Fatalf("unexpected user: %v", user)
	}
	for _, key := range []string{"sentLetters", "receivedLetters"} {
		letters, ok := user[key].([]any)
		if !ok || len(letters) != 0 {
			t.Fatalf("%s = %#v, want empty array", key, user[key])
		}
	}
}

func TestPostboxEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/users/100001/postbox", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if body["postbox"].(map[string]any)["color"] != "#dc2626" {
		t.Fatalf("expected default postbox, got %v", body)
	}

	resp, body = doJSON(t, http.MethodPut, srv.URL+"/users/100001/postbox", map[string]any{
		"color":   "#0000ff",
		"pattern": "stripes",
		"glow":    true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d body=%v", resp.StatusCode, body)
	}
	_, body = doJSON(t, http.MethodGet, srv.URL+"/users/100001/postbox", nil)
	box := body["postbox"].(map[string]any)
	if box["color"] != "#0000ff" || box["glow"] != true || box["pattern"] != "stripes" {
		t.Fatalf("unexpected saved postbox: %v", box)
	}

	resp, body = doJSON(t, http.MethodPut, srv.URL+"/users/100001/postbox", map[string]any{"color": ""})
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "POSTBOX_INVALID" {
		t.Fatalf("invalid put status = %d body=%v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/users/1/postbox", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short pincode status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/users/100001/other", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown subresource status = %d", resp.StatusCode)
	}
}

func TestOverlayEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	letter := validLetter(0)
	letter["brushStrokes"] = []map[string]any{
		{"x": 5, "y": 5, "size": 3, "color": "#000000", "type": "brush", "strokeId": "a"},
		{"x": 25, "y": 15, "size": 3, "color": "#000000", "type": "brush", "strokeId": "a"},
	}
	_, body := doJSON(t, http.MethodPost, srv.URL+"/letters", letter)
	id := body["letterId"].(string)

	resp, err := http.Get(srv.URL + "/letters/" + id + "/overlay")
	if err != nil {
		t.Fatalf("get overlay: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("overlay status = %d type=%q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatalf("overlay is not a png")
	}

	_, body = doJSON(t, http.MethodPost, srv.URL+"/letters", validLetter(0))
	resp2, body2 := doJSON(t, http.MethodGet, srv.URL+"/letters/"+body["letterId"].(string)+"/overlay", nil)
	if resp2.StatusCode != http.StatusNotFound || body2["error"] != "Overlay not found" {
		t.Fatalf("empty overlay status = %d body=%v", resp2.StatusCode, body2)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health status = %d body=%v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("response should carry a request id")
	}
	mresp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer mresp.Body.Close()
	data, _ := io.ReadAll(mresp.Body)
	if !strings.Contains(string(data), "letterbox_http_requests_total") {
		t.Fatalf("metrics should expose request counters")
	}
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/letters":              "/letters",
		"/letters/abc":          "/letters/{id}",
		"/letters/abc/deliver":  "/letters/{id}/deliver",
		"/letters/abc/overlay":  "/letters/{id}/overlay",
		"/letters/abc/other":    "other",
		"/users/100001/postbox": "/users/{pincode}/postbox",
		"/mailbox":              "/mailbox",
		"/nowhere":              "other",
	}
	for path, want := range tests {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		if got := routeLabel(r); got != want {
			t.Fatalf("routeLabel(%s) = %q, want %q", path, got, want)
		}
	}
}
