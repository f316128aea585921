package guard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeGateway mimics the validate-session endpoint with single-use tokens.
func fakeGateway(t *testing.T, tokens map[string]Identity) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	used := map[string]bool{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var appID int64
		var token string
		if _, err := fmt.Sscanf(r.URL.Path, "/validate-session/%d/%s", &appID, &token); err != nil {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"valid":false}`)
			return
		}

		mu.Lock()
		id, ok := tokens[token]
		burned := used[token]
		used[token] = true
		mu.Unlock()

		if !ok || burned {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"valid":false}`)
			return
		}
		fmt.Fprintf(w, `{"valid":true,"user_id":%q,"session_id":%q}`, id.UserID, id.SessionID)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidate_Success(t *testing.T) {
	gw := fakeGateway(t, map[string]Identity{
		"good-token": {UserID: "alice", SessionID: "sess-1"},
	})
	client := NewClient(1, WithGatewayURL(gw.URL))

	id, err := client.Validate(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if id.UserID != "alice" || id.SessionID != "sess-1" {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestValidate_RejectedAndReplayed(t *testing.T) {
	gw := fakeGateway(t, map[string]Identity{
		"good-token": {UserID: "alice", SessionID: "sess-1"},
	})
	client := NewClient(1, WithGatewayURL(gw.URL))

	if _, err := client.Validate(context.Background(), "bad-token"); !errors.Is(err, ErrDenied) {
		t.Errorf("expected ErrDenied for unknown token, got %v", err)
	}
	if _, err := client.Validate(context.Background(), ""); !errors.Is(err, ErrDenied) {
		t.Errorf("expected ErrDenied for empty token, got %v", err)
	}

	if _, err := client.Validate(context.Background(), "good-token"); err != nil {
		t.Fatalf("first use failed: %v", err)
	}
	if _, err := client.Validate(context.Background(), "good-token"); !errors.Is(err, ErrDenied) {
		t.Errorf("expected ErrDenied on replay, got %v", err)
	}
}

func TestValidate_GatewayUnreachable(t *testing.T) {
	client := NewClient(1, WithGatewayURL("http://127.0.0.1:1"))
	_, err := client.Validate(context.Background(), "any")
	if err == nil || errors.Is(err, ErrDenied) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestMiddleware_GatesRequests(t *testing.T) {
	gw := fakeGateway(t, map[string]Identity{
		"good-token": {UserID: "alice", SessionID: "sess-1"},
	})
	client := NewClient(1, WithGatewayURL(gw.URL))

	handler := client.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id == nil {
			t.Error("expected identity in context")
			return
		}
		fmt.Fprintf(w, "hello %s", id.UserID)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TokenHeader, "good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "hello alice" {
		t.Errorf("expected greeting, got %d %q", rec.Code, rec.Body.String())
	}

	// No token header: rejected before the handler runs.
	bare := httptest.NewRecorder()
	handler.ServeHTTP(bare, httptest.NewRequest(http.MethodGet, "/", nil))
	if bare.Code != http.StatusForbidden {
		t.Errorf("expected 403 without token, got %d", bare.Code)
	}
}
