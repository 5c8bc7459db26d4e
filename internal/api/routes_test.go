package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"pairsbot/internal/repository"
	"pairsbot/pkg/crypto"

	"go.uber.org/zap"
)

func TestSetupRoutes_Health(t *testing.T) {
	router := SetupRoutes(&Dependencies{Log: zap.NewNop()})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Body.String() != "OK" {
		t.Errorf("expected body OK, got %q", w.Body.String())
	}
}

func TestSetupRoutes_Metrics(t *testing.T) {
	router := SetupRoutes(&Dependencies{Log: zap.NewNop()})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestSetupRoutes_PanelAuth(t *testing.T) {
	hash, err := crypto.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	router := SetupRoutes(&Dependencies{
		Log:           zap.NewNop(),
		Spreads:       &repository.SpreadRepository{},
		PanelPassHash: hash,
	})

	t.Run("no credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/spreads", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
		}
		if w.Header().Get("WWW-Authenticate") == "" {
			t.Error("expected WWW-Authenticate header")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/spreads", nil)
		req.SetBasicAuth("operator", "wrong")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
		}
	})

	t.Run("health is public", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
	})
}

func TestSetupRoutes_CORSHeaders(t *testing.T) {
	router := SetupRoutes(&Dependencies{Log: zap.NewNop()})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("expected allowed origin echoed back, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("expected credentials allowed, got %q", got)
	}
}
