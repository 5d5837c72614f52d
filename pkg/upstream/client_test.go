package upstream_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/enregistreuse/caisse-mcp/pkg/upstream"
)

func TestVerifyCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workers/getAuthToken.php" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("login") == "jdupont" && r.PostForm.Get("password") == "secret" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"APIKEY":"k-123","SHOPID":"4521"}`))
			return
		}
		w.Write([]byte("ERREUR: identifiants invalides"))
	}))
	defer srv.Close()

	client := upstream.NewClient(upstream.WithBaseURL(srv.URL))

	identity, err := client.VerifyCredentials(context.Background(), "jdupont", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if identity.ShopID != "4521" || identity.APIKey != "k-123" {
		t.Errorf("unexpected identity: %+v", identity)
	}

	_, err = client.VerifyCredentials(context.Background(), "jdupont", "wrong")
	if !errors.Is(err, upstream.ErrBadCredentials) {
		t.Errorf("expected ErrBadCredentials, got %v", err)
	}
}

func TestVerifyCredentialsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	srv.Close() // refuse connections

	client := upstream.NewClient(upstream.WithBaseURL(srv.URL))
	_, err := client.VerifyCredentials(context.Background(), "jdupont", "secret")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if errors.Is(err, upstream.ErrBadCredentials) {
		t.Error("transport failure must not be reported as bad credentials")
	}
}

func TestGetBuildsQuery(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := upstream.NewClient(upstream.WithBaseURL(srv.URL))
	_, err := client.Get(context.Background(), "/workers/getPlus.php", upstream.Query(map[string]any{
		"idboutique": "4521",
		"key":        "k-123",
		"format":     "json",
		"empty":      "",
		"page":       2,
	}))
	if err != nil {
		t.Fatal(err)
	}

	if gotQuery.Get("idboutique") != "4521" || gotQuery.Get("format") != "json" {
		t.Errorf("unexpected query: %v", gotQuery)
	}
	if gotQuery.Get("page") != "2" {
		t.Errorf("numeric param not encoded: %v", gotQuery)
	}
	if _, present := gotQuery["empty"]; present {
		t.Error("empty params must be skipped")
	}
}
