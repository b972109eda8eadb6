package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"salon-chat/config"
	"salon-chat/internal/domain/staff"
	"salon-chat/internal/handler"
	"salon-chat/internal/middleware"
	"salon-chat/internal/presence"
	"salon-chat/internal/proxy"
	"salon-chat/internal/redis"
	"salon-chat/internal/repository"
	"salon-chat/internal/services"
	"salon-chat/internal/websocket"
	"salon-chat/internal/workerpool"
	"salon-chat/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const routeSecret = "route-secret"

type fakeRequestLimiter struct {
	result *redis.RateLimitResult
	err    error
}

func (f fakeRequestLimiter) AllowRequest(context.Context, string) (*redis.RateLimitResult, error) {
	return f.result, f.err
}

type routeEnv struct {
	srv   *Server
	staff []uuid.UUID
}

func newRouteEnv(t *testing.T, limiter middleware.RequestLimiter, checks map[string]handler.Checker) *routeEnv {
	t.Helper()

	store := repository.NewMemoryStore()
	dir := repository.NewMemoryStaffDirectory()
	env := &routeEnv{}
	for i := 0; i < 3; i++ {
		id := uuid.New()
		dir.Put(staff.Staff{ID: id, Name: "staff", Role: "stylist", IsActive: true})
		env.staff = append(env.staff, id)
	}

	log := logger.NewNop()
	wsLog := websocket.NewLogger(log)
	hub := websocket.NewHub(nil, wsLog)
	registry := presence.NewRegistry(0)
	pool := workerpool.New(2, log)
	locks := services.NewKeyedMutex()
	chatRepo, messageRepo := store.Chats(), store.Messages()

	chats := services.NewChatService(chatRepo, dir, proxy.NewAccessControl(chatRepo), locks, hub, log)
	reads := services.NewReadService(chatRepo, messageRepo, chats, hub)
	msgs := services.NewMessageService(messageRepo, chats, reads, locks, hub, log, services.MessageServiceOptions{MarkReadOnFirstPage: true})
	chats.SetSystemPoster(msgs)
	auth := services.NewAuthService(routeSecret, dir)

	env.srv = New(&config.Config{AppMode: TestMode, CORSOrigins: "*"}, log)
	env.srv.SetupRoutes(Handlers{
		Chats:    handler.NewChatHandler(chats, reads),
		Messages: handler.NewMessageHandler(msgs, reads),
		Presence: handler.NewPresenceHandler(chats, registry),
		Uploads:  handler.NewUploadHandler(services.NewUploadS3Service(chats, nil)),
		Health:   handler.NewHealthHandler(checks),
		Gateway:  websocket.NewGateway(auth, hub, registry, websocket.Services{Chats: chats, Messages: msgs, Reads: reads}, pool, wsLog, websocket.Options{}),
	}, auth, limiter)
	return env
}

func (e *routeEnv) token(t *testing.T, staffID uuid.UUID) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, services.AccessClaims{
		StaffID: staffID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(routeSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (e *routeEnv) do(t *testing.T, method, path string, as uuid.UUID, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, as))
	}
	rec := httptest.NewRecorder()
	e.srv.Engine().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, env
}

func TestChatAndMessageRoutes(t *testing.T) {
	env := newRouteEnv(t, nil, nil)
	alice, bob, carol := env.staff[0], env.staff[1], env.staff[2]

	rec, _ := env.do(t, http.MethodGet, "/v1/chats", uuid.Nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}

	direct := map[string]interface{}{"kind": "one_to_one", "member_ids": []string{bob.String()}}
	rec, body := env.do(t, http.MethodPost, "/v1/chats", alice, direct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create direct: status = %d body %s", rec.Code, rec.Body)
	}
	var created struct {
		Chat struct {
			ID string `json:"id"`
		} `json:"chat"`
		Created bool `json:"created"`
	}
	if err := json.Unmarshal(body.Data, &created); err != nil || !created.Created {
		t.Fatalf("create direct: %s", body.Data)
	}
	rec, _ = env.do(t, http.MethodPost, "/v1/chats", bob, map[string]interface{}{"kind": "one_to_one", "member_ids": []string{alice.String()}})
	if rec.Code != http.StatusOK {
		t.Errorf("repeat direct: status = %d, want 200", rec.Code)
	}

	chatPath := "/v1/chats/" + created.Chat.ID
	rec, _ = env.do(t, http.MethodPost, chatPath+"/messages", alice, map[string]string{"content": "Walk-in at 2"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: status = %d body %s", rec.Code, rec.Body)
	}
	rec, body = env.do(t, http.MethodGet, chatPath+"/messages?page=1&limit=10", bob, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var page struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
		Total int64 `json:"total"`
	}
	if err := json.Unmarshal(body.Data, &page); err != nil || page.Total != 1 || page.Messages[0].Content != "Walk-in at 2" {
		t.Errorf("list = %s", body.Data)
	}

	rec, body = env.do(t, http.MethodGet, chatPath, carol, nil)
	if rec.Code != http.StatusForbidden || body.Code != "AuthorizationError" {
		t.Errorf("outsider get: status = %d code %q", rec.Code, body.Code)
	}
	rec, body = env.do(t, http.MethodGet, "/v1/chats/not-a-uuid", alice, nil)
	if rec.Code != http.StatusBadRequest || body.Code != "ValidationError" {
		t.Errorf("bad id: status = %d code %q", rec.Code, body.Code)
	}
	rec, _ = env.do(t, http.MethodGet, "/v1/chats/"+uuid.NewString(), alice, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown chat: status = %d", rec.Code)
	}

	rec, body = env.do(t, http.MethodGet, chatPath+"/unread-count", bob, nil)
	var unread struct {
		Count int64 `json:"count"`
	}
	if rec.Code != http.StatusOK || json.Unmarshal(body.Data, &unread) != nil || unread.Count != 0 {
		t.Errorf("unread after listing page 1 = %s (status %d)", body.Data, rec.Code)
	}

	rec, _ = env.do(t, http.MethodPost, "/v1/uploads/presign", alice, map[string]interface{}{
		"chat_id": created.Chat.ID, "file_name": "a.png", "file_size": 10, "content_type": "image/png",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("presign without storage: status = %d, want 400", rec.Code)
	}

	rec, body = env.do(t, http.MethodGet, "/v1/presence", alice, nil)
	var presenceList []struct {
		StaffID string `json:"staff_id"`
		Online  bool   `json:"online"`
	}
	if rec.Code != http.StatusOK || json.Unmarshal(body.Data, &presenceList) != nil || len(presenceList) != 1 || presenceList[0].StaffID != bob.String() {
		t.Errorf("presence = %s", body.Data)
	}
}

func TestGroupRoutes(t *testing.T) {
	env := newRouteEnv(t, nil, nil)
	alice, bob, carol := env.staff[0], env.staff[1], env.staff[2]

	rec, body := env.do(t, http.MethodPost, "/v1/chats", alice, map[string]interface{}{
		"kind": "group", "name": "Front desk", "member_ids": []string{bob.String()},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create group: status = %d body %s", rec.Code, rec.Body)
	}
	var created struct {
		Chat struct {
			ID string `json:"id"`
		} `json:"chat"`
	}
	if err := json.Unmarshal(body.Data, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	chatPath := "/v1/chats/" + created.Chat.ID

	rec, _ = env.do(t, http.MethodPost, chatPath+"/members", bob, map[string]interface{}{"member_ids": []string{carol.String()}})
	if rec.Code != http.StatusForbidden {
		t.Errorf("member adds: status = %d, want 403", rec.Code)
	}
	rec, _ = env.do(t, http.MethodPost, chatPath+"/members", alice, map[string]interface{}{"member_ids": []string{carol.String()}})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin adds: status = %d body %s", rec.Code, rec.Body)
	}

	rec, _ = env.do(t, http.MethodPost, chatPath+"/leave", alice, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("sole admin leave: status = %d, want 400", rec.Code)
	}
	rec, _ = env.do(t, http.MethodPut, chatPath+"/members/"+bob.String()+"/role", alice, map[string]string{"role": "admin"})
	if rec.Code != http.StatusOK {
		t.Fatalf("promote: status = %d body %s", rec.Code, rec.Body)
	}
	rec, _ = env.do(t, http.MethodPost, chatPath+"/leave", alice, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("leave after promote: status = %d body %s", rec.Code, rec.Body)
	}

	rec, _ = env.do(t, http.MethodDelete, chatPath+"/members/"+carol.String(), bob, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("remove member: status = %d body %s", rec.Code, rec.Body)
	}
	rec, body = env.do(t, http.MethodGet, chatPath+"/members", bob, nil)
	var members []struct {
		StaffID string `json:"staff_id"`
	}
	if rec.Code != http.StatusOK || json.Unmarshal(body.Data, &members) != nil || len(members) != 1 {
		t.Errorf("members = %s", body.Data)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		limiter    fakeRequestLimiter
		wantStatus int
		wantHeader string
	}{
		{"allowed", fakeRequestLimiter{result: &redis.RateLimitResult{Allowed: true, Remaining: 4, Limit: 5, ResetIn: time.Minute}}, http.StatusOK, "4"},
		{"limited", fakeRequestLimiter{result: &redis.RateLimitResult{Allowed: false, Limit: 5, ResetIn: 30 * time.Second}}, http.StatusTooManyRequests, "0"},
		{"limiter down", fakeRequestLimiter{err: errors.New("redis unavailable")}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		env := newRouteEnv(t, tt.limiter, nil)
		rec, body := env.do(t, http.MethodGet, "/v1/chats", env.staff[0], nil)
		if rec.Code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.wantStatus)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != tt.wantHeader {
			t.Errorf("%s: remaining header = %q, want %q", tt.name, got, tt.wantHeader)
		}
		if tt.wantStatus == http.StatusTooManyRequests && body.Code != "RateLimited" {
			t.Errorf("%s: code = %q", tt.name, body.Code)
		}
	}
}

func TestHealthAndAmbientRoutes(t *testing.T) {
	env := newRouteEnv(t, nil, map[string]handler.Checker{
		"database": func(context.Context) error { return errors.New("connection refused") },
	})

	rec, _ := env.do(t, http.MethodGet, "/ping", uuid.Nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ping: status = %d", rec.Code)
	}
	rec, body := env.do(t, http.MethodGet, "/health", uuid.Nil, nil)
	if rec.Code != http.StatusServiceUnavailable || body.Code != "UNHEALTHY" {
		t.Errorf("health: status = %d code %q", rec.Code, body.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "req-42")
	out := httptest.NewRecorder()
	env.srv.Engine().ServeHTTP(out, req)
	if got := out.Header().Get("X-Request-Id"); got != "req-42" {
		t.Errorf("request id = %q, want req-42", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/v1/chats", nil)
	req.Header.Set("Origin", "https://salon.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	out = httptest.NewRecorder()
	env.srv.Engine().ServeHTTP(out, req)
	if out.Code != http.StatusNoContent || out.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight: status = %d allow-origin %q", out.Code, out.Header().Get("Access-Control-Allow-Origin"))
	}
}
