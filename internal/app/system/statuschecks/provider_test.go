package statuschecks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dalemusser/reviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeSource struct {
	states map[string]string
	err    error
}

func (f fakeSource) States(context.Context, primitive.ObjectID) (map[string]string, error) {
	return f.states, f.err
}

func TestStoreProvider_Passing(t *testing.T) {
	p := NewStoreProvider(fakeSource{states: map[string]string{
		"ci/tests": models.CheckSuccess,
		"ci/build": models.CheckPending,
	}})

	got, err := p.Passing(context.Background(), models.PullRequest{ID: primitive.NewObjectID()}, []string{"ci/tests", "ci/build", "ci/lint"})
	if err != nil {
		t.Fatalf("Passing failed: %v", err)
	}
	want := map[string]bool{"ci/tests": true, "ci/build": false, "ci/lint": false}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestStoreProvider_SourceErrorIsUnavailable(t *testing.T) {
	p := NewStoreProvider(fakeSource{err: errors.New("db down")})
	if _, err := p.Passing(context.Background(), models.PullRequest{}, []string{"ci/tests"}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestUnavailable(t *testing.T) {
	if _, err := (Unavailable{}).Passing(context.Background(), models.PullRequest{}, nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPProvider_ClientCredentials(t *testing.T) {
	prID := primitive.NewObjectID()
	var tokenCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/pull-requests/"+prID.Hex()+"/statuses", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]remoteStatus{
			{Context: "ci/tests", State: "SUCCESS"},
			{Context: "ci/build", State: "failure"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewHTTPProvider(HTTPConfig{
		BaseURL:      srv.URL + "/",
		ClientID:     "reviewhub",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/token",
	})
	if err != nil {
		t.Fatalf("NewHTTPProvider failed: %v", err)
	}

	pr := models.PullRequest{ID: prID}
	for i := 0; i < 2; i++ {
		got, err := p.Passing(context.Background(), pr, []string{"ci/tests", "ci/build"})
		if err != nil {
			t.Fatalf("Passing failed: %v", err)
		}
		if !got["ci/tests"] || got["ci/build"] {
			t.Errorf("unexpected result: %v", got)
		}
	}
	if n := atomic.LoadInt32(&tokenCalls); n != 1 {
		t.Errorf("token should be cached, fetched %d times", n)
	}
}

func TestHTTPProvider_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(HTTPConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPProvider failed: %v", err)
	}
	if _, err := p.Passing(context.Background(), models.PullRequest{ID: primitive.NewObjectID()}, []string{"ci/tests"}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestNewHTTPProvider_RequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPProvider(HTTPConfig{}); err == nil {
		t.Error("expected error for empty base url")
	}
}
