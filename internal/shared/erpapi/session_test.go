package erpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func int64Ptr(v int64) *int64 { return &v }

func meServer(t *testing.T, me MeResponse, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/me" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(me)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestResolveAdminSeesSensitive(t *testing.T) {
	server := meServer(t, MeResponse{ID: 17, Name: "관리자", RoleID: int64Ptr(RoleAdminID)}, http.StatusOK)

	store := NewSessionStore(NewClient(server.URL), nil, zap.NewNop())
	id, err := store.Resolve(context.Background(), "token")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id.UserID != 17 || !id.CanSeeSensitive {
		t.Errorf("identity = %+v, want admin with sensitive access", id)
	}
}

func TestResolveRegularUserDegraded(t *testing.T) {
	server := meServer(t, MeResponse{ID: 8, Name: "사원", RoleID: int64Ptr(3)}, http.StatusOK)

	store := NewSessionStore(NewClient(server.URL), nil, zap.NewNop())
	id, err := store.Resolve(context.Background(), "token")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id.CanSeeSensitive {
		t.Error("non-privileged role must not see sensitive fields")
	}
}

func TestResolveMissingRoleIsNonPrivileged(t *testing.T) {
	server := meServer(t, MeResponse{ID: 8, Name: "게스트"}, http.StatusOK)

	store := NewSessionStore(NewClient(server.URL), nil, zap.NewNop())
	id, err := store.Resolve(context.Background(), "token")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id.CanSeeSensitive {
		t.Error("missing role_id must default to non-privileged")
	}
}

// 身份解析失败（401除外）降级为非特权身份，不阻断调用方
func TestResolveUpstreamFailureDegrades(t *testing.T) {
	server := meServer(t, MeResponse{}, http.StatusInternalServerError)

	store := NewSessionStore(NewClient(server.URL), nil, zap.NewNop())
	id, err := store.Resolve(context.Background(), "token")
	if err != nil {
		t.Fatalf("Resolve must degrade, got %v", err)
	}
	if id.CanSeeSensitive {
		t.Error("degraded identity must be non-privileged")
	}
}

func TestResolveUnauthorizedPropagatesAndNotifies(t *testing.T) {
	server := meServer(t, MeResponse{}, http.StatusUnauthorized)

	store := NewSessionStore(NewClient(server.URL), nil, zap.NewNop())
	expired := 0
	store.OnExpired(func() { expired++ })

	_, err := store.Resolve(context.Background(), "token")
	if !IsUnauthorized(err) {
		t.Fatalf("err = %v, want 401 propagated", err)
	}
	if expired != 1 {
		t.Errorf("expired observers fired %d times, want 1", expired)
	}
}
