package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/forgeops/keyforge/internal/core/services"
	"github.com/forgeops/keyforge/internal/infrastructure/ratelimit"
	"github.com/forgeops/keyforge/internal/security"
	"github.com/forgeops/keyforge/internal/testutil"
)

func newTestMux(t *testing.T, limiter *ratelimit.Limiter) *http.ServeMux {
	t.Helper()
	store := testutil.NewMemStore()
	codec := security.NewSecretCodec("test")
	hasher := security.NewPasswordHasher()
	tokens := security.NewTokenIssuer([]byte("unit-test-secret"), time.Hour)

	auth := services.NewAuthService(store, hasher, tokens)
	keys := services.NewAPIKeyService(store, codec)

	mux := http.NewServeMux()
	NewAPIHandler(auth, keys, store, limiter).RegisterRoutes(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func registerAndLogin(t *testing.T, mux *http.ServeMux, username, email string) string {
	t.Helper()
	w := doJSON(t, mux, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": email, "username": username, "password": "hunter2hunter2",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, mux, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username, "password": "hunter2hunter2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	token, _ := body["access_token"].(string)
	if token == "" || body["token_type"] != "bearer" {
		t.Fatalf("unexpected token response: %v", body)
	}
	return token
}

func TestAuthEndpoints(t *testing.T) {
	mux := newTestMux(t, nil)

	t.Run("Register Returns Safe Projection", func(t *testing.T) {
		w := doJSON(t, mux, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"email": "carol@example.com", "username": "carol_example", "password": "correct-horse",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["username"] != "carol_example" || body["rank"] != "Bronze" || body["is_active"] != true {
			t.Errorf("Unexpected registration response: %v", body)
		}
		if _, leaked := body["password_hash"]; leaked {
			t.Errorf("Password hash must never be serialized")
		}
		if strings.Contains(w.Body.String(), "argon2") {
			t.Errorf("Response leaks hash material: %s", w.Body.String())
		}
	})

	t.Run("Register Validation", func(t *testing.T) {
		cases := []map[string]string{
			{"email": "not-an-email", "username": "carol_example2", "password": "correct-horse"},
			{"email": "x@example.com", "username": "shrt", "password": "correct-horse"},
			{"email": "x@example.com", "username": "carol_example2", "password": "short"},
		}
		for i, payload := range cases {
			w := doJSON(t, mux, http.MethodPost, "/api/v1/auth/register", "", payload)
			if w.Code != http.StatusBadRequest {
				t.Errorf("case %d: expected 400, got %d", i, w.Code)
			}
		}
	})

	t.Run("Register Duplicate Email", func(t *testing.T) {
		w := doJSON(t, mux, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"email": "carol@example.com", "username": "someone_else", "password": "correct-horse",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("Login Wrong Password", func(t *testing.T) {
		w := doJSON(t, mux, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "carol_example", "password": "wrong-password",
		})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("Me", func(t *testing.T) {
		token := registerAndLogin(t, mux, "dave_example", "dave@example.com")

		w := doJSON(t, mux, http.MethodGet, "/api/v1/users/me", token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["username"] != "dave_example" || body["email"] != "dave@example.com" {
			t.Errorf("Unexpected profile: %v", body)
		}
	})

	t.Run("Me Without Token", func(t *testing.T) {
		w := doJSON(t, mux, http.MethodGet, "/api/v1/users/me", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("Me With Garbage Token", func(t *testing.T) {
		w := doJSON(t, mux, http.MethodGet, "/api/v1/users/me", "not.a.jwt", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})
}

func TestKeyEndpoints(t *testing.T) {
	mux := newTestMux(t, nil)
	token := registerAndLogin(t, mux, "erin_example", "erin@example.com")

	t.Run("List Starts Empty", func(t *testing.T) {
		w := doJSON(t, mux, http.MethodGet, "/api/v1/keys", token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		if strings.TrimSpace(w.Body.String()) != "[]" {
			t.Errorf("Expected empty array, got %s", w.Body.String())
		}
	})

	var keyID float64
	var plaintext string

	t.Run("Create Returns Plaintext Once", func(t *testing.T) {
		w := doJSON(t, mux, http.MethodPost, "/api/v1/keys", token, map[string]any{
			"label": "ci-deploy", "description": "deploy pipeline",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		plaintext, _ = body["key"].(string)
		keyID, _ = body["key_id"].(float64)
		if !strings.HasPrefix(plaintext, "sk_test_") {
			t.Errorf("Expected sk_test_ key, got %q", plaintext)
		}
		if body["label"] != "ci-deploy" || body["is_active"] != true {
			t.Errorf("Unexpected key record: %v", body)
		}
	})

	t.Run("Create Duplicate Label", func(t *testing.T) {
		w := doJSON(t, mux, http.MethodPost, "/api/v1/keys", token, map[string]any{"label": "ci-deploy"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("List Omits Plaintext And Hash", func(t *testing.T) {
		w := doJSON(t, mux, http.MethodGet, "/api/v1/keys", token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		var keys []map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &keys); err != nil {
			t.Fatalf("failed to decode list: %v", err)
		}
		if len(keys) != 1 || keys[0]["label"] != "ci-deploy" {
			t.Fatalf("Unexpected list: %v", keys)
		}
		if _, present := keys[0]["key"]; present {
			t.Errorf("List must not include plaintext keys")
		}
		if _, present := keys[0]["key_hash"]; present {
			t.Errorf("List must not include key hashes")
		}
	})

	t.Run("Verify", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/verify", nil)
		req.Header.Set(APIKeyHeader, plaintext)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["label"] != "ci-deploy" {
			t.Errorf("Unexpected verification payload: %v", body)
		}
	})

	t.Run("Verify Missing Header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/verify", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("Verify Tampered Key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/verify", nil)
		tampered := plaintext[:len(plaintext)-1]
		if strings.HasSuffix(plaintext, "X") {
			tampered += "Y"
		} else {
			tampered += "X"
		}
		req.Header.Set(APIKeyHeader, tampered)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("Update", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/keys/%d", int64(keyID))
		w := doJSON(t, mux, http.MethodPatch, path, token, map[string]any{"label": "ci-deploy-v2"})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("Update Empty Patch", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/keys/%d", int64(keyID))
		w := doJSON(t, mux, http.MethodPatch, path, token, map[string]any{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("Update Missing Key", func(t *testing.T) {
		w := doJSON(t, mux, http.MethodPatch, "/api/v1/keys/9999", token, map[string]any{"label": "nope"})
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})

	t.Run("Deactivate Then Verify Forbidden", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/keys/%d", int64(keyID))
		w := doJSON(t, mux, http.MethodPatch, path, token, map[string]any{"is_active": false})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/verify", nil)
		req.Header.Set(APIKeyHeader, plaintext)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("Expected 403 for inactive key, got %d", rec.Code)
		}
	})

	t.Run("Rotate", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/keys/%d/rotate", int64(keyID))
		w := doJSON(t, mux, http.MethodPost, path, token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		rotated, _ := body["key"].(string)
		if rotated == "" || rotated == plaintext {
			t.Errorf("Rotation must mint a fresh key, got %q", rotated)
		}
		if body["label"] != "ci-deploy-v2" {
			t.Errorf("Rotation must preserve the label: %v", body)
		}
	})

	t.Run("Delete By Label", func(t *testing.T) {
		w := doJSON(t, mux, http.MethodDelete, "/api/v1/keys", token, map[string]string{"label": "ci-deploy-v2"})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		w = doJSON(t, mux, http.MethodDelete, "/api/v1/keys", token, map[string]string{"label": "ci-deploy-v2"})
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404 on second delete, got %d", w.Code)
		}
	})

	t.Run("Keys Require Session", func(t *testing.T) {
		w := doJSON(t, mux, http.MethodGet, "/api/v1/keys", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})
}

func TestOwnershipIsolation(t *testing.T) {
	mux := newTestMux(t, nil)
	ownerToken := registerAndLogin(t, mux, "frank_example", "frank@example.com")
	otherToken := registerAndLogin(t, mux, "grace_example", "grace@example.com")

	w := doJSON(t, mux, http.MethodPost, "/api/v1/keys", ownerToken, map[string]any{"label": "private"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}
	keyID := int64(decodeBody(t, w)["key_id"].(float64))

	t.Run("Foreign Update Reads As Missing", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/keys/%d", keyID)
		w := doJSON(t, mux, http.MethodPatch, path, otherToken, map[string]any{"label": "stolen"})
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})

	t.Run("Foreign Rotate Reads As Missing", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/keys/%d/rotate", keyID)
		w := doJSON(t, mux, http.MethodPost, path, otherToken, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})

	t.Run("Foreign List Is Empty", func(t *testing.T) {
		w := doJSON(t, mux, http.MethodGet, "/api/v1/keys", otherToken, nil)
		if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
			t.Errorf("Expected empty list, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := ratelimit.New(mr.Addr(), "", 0, 3, time.Minute)
	mux := newTestMux(t, limiter)

	payload := map[string]string{"username": "nobody_here", "password": "wrong-password"}
	for i := 0; i < 3; i++ {
		w := doJSON(t, mux, http.MethodPost, "/api/v1/auth/login", "", payload)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, w.Code)
		}
	}

	w := doJSON(t, mux, http.MethodPost, "/api/v1/auth/login", "", payload)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after budget exhausted, got %d", w.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	mux := newTestMux(t, nil)
	w := doJSON(t, mux, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" || body["database"] != "ok" {
		t.Errorf("Unexpected health payload: %v", body)
	}
}
