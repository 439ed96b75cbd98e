package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kozaktomas/photo-dedup/internal/config"
)

func newLibraryServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok",
			"config":       map[string]string{"downloadToken": "dl", "previewToken": "pv"},
		})
	})
	mux.HandleFunc("/api/v1/session", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/albums/at1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"UID": "at1"})
	})
	mux.HandleFunc("/api/v1/photos", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") != "0" {
			w.Write([]byte("[]"))
			return
		}
		w.Write([]byte(`[{"UID": "p1", "Hash": "h1"}, {"UID": "p2", "Hash": "h2"}]`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &logins
}

func TestLibrary_LoadAlbum(t *testing.T) {
	server, logins := newLibraryServer(t)
	lib := NewLibrary(config.PhotoPrismConfig{URL: server.URL, Username: "u", Password: "p"}, nil)
	ctx := context.Background()
	defer lib.Close(ctx)

	photos, err := lib.Load(ctx, Selection{AlbumUID: "at1"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(photos) != 2 || photos[0].ProjectID != "at1" {
		t.Fatalf("unexpected photos %+v", photos)
	}
	if got := photos[0].URL(); !strings.Contains(got, "/t/h1/pv/fit_1280") {
		t.Errorf("unexpected image URL %q", got)
	}

	// The session is reused.
	if _, err := lib.Load(ctx, Selection{Query: "year:2025"}); err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if logins.Load() != 1 {
		t.Errorf("expected a single login, got %d", logins.Load())
	}
}

func TestLibrary_Errors(t *testing.T) {
	ctx := context.Background()

	lib := NewLibrary(config.PhotoPrismConfig{}, nil)
	if _, err := lib.Load(ctx, Selection{AlbumUID: "at1"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := lib.Load(ctx, Selection{}); err == nil {
		t.Error("expected error for empty selection")
	}
	if err := lib.Close(ctx); err != nil {
		t.Errorf("Close on unconnected library returned %v", err)
	}
}
