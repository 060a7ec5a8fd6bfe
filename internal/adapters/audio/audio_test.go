package audio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newsroom/internal/domain"
)

func TestSynthesizeSendsRequest(t *testing.T) {
	var (
		gotPath string
		gotKey  string
		gotReq  synthesisRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	e := NewElevenLabs("key", srv.URL, time.Second)
	data, err := e.Synthesize(context.Background(), strings.Repeat("é", 2500), "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(data) != "mp3" {
		t.Fatalf("unexpected payload: %q", data)
	}
	if gotPath != "/text-to-speech/"+DefaultVoiceID {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotKey != "key" {
		t.Fatalf("api key header missing")
	}
	if n := len([]rune(gotReq.Text)); n != maxTextRunes {
		t.Fatalf("text must be truncated to %d runes, got %d", maxTextRunes, n)
	}
	if gotReq.ModelID != DefaultModel {
		t.Fatalf("unexpected model: %s", gotReq.ModelID)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	if _, err := NewElevenLabs("", "", 0).Synthesize(context.Background(), "texte", ""); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := NewElevenLabs("key", "", 0).Synthesize(context.Background(), "   ", ""); err == nil {
		t.Fatalf("expected error for empty text")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusUnauthorized)
	}))
	defer srv.Close()
	if _, err := NewElevenLabs("key", srv.URL, time.Second).Synthesize(context.Background(), "texte", "v"); err == nil {
		t.Fatalf("expected error for 401")
	}
}

func TestFileStorePersist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audio")
	store := NewFileStore(dir)

	path, err := store.Persist(context.Background(), nil, "empty.mp3")
	if err != nil || path != "" {
		t.Fatalf("empty data must give empty path, got %q, %v", path, err)
	}

	path, err = store.Persist(context.Background(), []byte("data"), "../summary_1.mp3")
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if path != filepath.Join(dir, "summary_1.mp3") {
		t.Fatalf("unexpected path: %s", path)
	}
	content, err := os.ReadFile(path)
	if err != nil || string(content) != "data" {
		t.Fatalf("unexpected content: %q, %v", content, err)
	}
}
