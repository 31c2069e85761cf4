package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jllopis/steward/pkg/llm"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != DefaultModel || req["prompt"] != "hello" {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"embedding":[0.5,1.5]}`))
	}))
	defer srv.Close()

	vec, err := NewEmbedder(srv.URL+"/", "").Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 || vec[1] != 1.5 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestEmbedStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading model"))
	}))
	defer srv.Close()

	_, err := NewEmbedder(srv.URL, "m").Embed(context.Background(), "hello")
	var se *llm.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status error 503, got %v", err)
	}
}
