package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/enregistreuse/caisse-mcp/pkg/broker/store"
)

func newRecord() *store.PendingCode {
	return &store.PendingCode{
		ClientID:      "mcp-client",
		RedirectURI:   "http://localhost:1234/callback",
		CodeChallenge: "challenge",
		Login:         "jdupont",
		ShopID:        "4521",
		APIKey:        "k-secret",
		Scope:         "mcp:invoke",
		ExpiresAt:     time.Now().Add(5 * time.Minute),
	}
}

func TestConsumeCodeSingleUse(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.SaveCode(ctx, "code-1", newRecord(), time.Minute); err != nil {
		t.Fatal(err)
	}

	record, err := s.ConsumeCode(ctx, "code-1")
	if err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	if record.ShopID != "4521" {
		t.Errorf("unexpected shop id: %s", record.ShopID)
	}

	if _, err := s.ConsumeCode(ctx, "code-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second consume: expected ErrNotFound, got %v", err)
	}
}

func TestConsumeCodeUnknown(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	if _, err := s.ConsumeCode(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConsumeCodeStoreTTL(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.SaveCode(ctx, "code-ttl", newRecord(), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, err := s.ConsumeCode(ctx, "code-ttl"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after ttl, got %v", err)
	}
}

// Two concurrent redemptions for the same code must produce exactly one
// winner, never two.
func TestConsumeCodeConcurrent(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	const attempts = 32
	if err := s.SaveCode(ctx, "code-race", newRecord(), time.Minute); err != nil {
		t.Fatal(err)
	}

	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := s.ConsumeCode(ctx, "code-race"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}

func TestClientStoreRoundTrip(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	client := &store.Client{
		ID:           "mcp-client",
		RedirectURIs: []string{"http://localhost:1234/callback"},
		Public:       true,
	}
	if err := s.SaveClient(ctx, client); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetClient(ctx, "mcp-client")
	if err != nil {
		t.Fatal(err)
	}
	if !got.AllowsRedirectURI("http://localhost:1234/callback") {
		t.Error("registered redirect uri not allowed")
	}
	if got.AllowsRedirectURI("http://localhost:1234/callback/extra") {
		t.Error("prefix match must not be allowed")
	}
	if got.AllowsRedirectURI("http://LOCALHOST:1234/callback") {
		t.Error("case-normalized match must not be allowed")
	}

	// last write wins, no merge
	client2 := &store.Client{ID: "mcp-client", RedirectURIs: []string{"http://127.0.0.1:9/cb"}, Public: true}
	if err := s.SaveClient(ctx, client2); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetClient(ctx, "mcp-client")
	if err != nil {
		t.Fatal(err)
	}
	if got.AllowsRedirectURI("http://localhost:1234/callback") {
		t.Error("re-registration must overwrite redirect uris")
	}

	if err := s.DeleteClient(ctx, "mcp-client"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetClient(ctx, "mcp-client"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
