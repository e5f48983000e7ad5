package gitrepo

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-github/v58/github"
)

func TestSplitRepo(t *testing.T) {
	t.Parallel()
	owner, repo, err := splitRepo("octocat/redstring-universe")
	if err != nil {
		t.Fatalf("splitRepo() error: %v", err)
	}
	if owner != "octocat" || repo != "redstring-universe" {
		t.Errorf("splitRepo() = %q, %q", owner, repo)
	}

	if _, _, err := splitRepo("not-a-repo-ref"); err == nil {
		t.Error("splitRepo() should reject a reference with no slash")
	}
}

func TestIsUnauthorizedAndConflict(t *testing.T) {
	t.Parallel()
	unauthorized := &github.ErrorResponse{Response: &http.Response{StatusCode: 401}}
	conflict := &github.ErrorResponse{Response: &http.Response{StatusCode: 409}}

	if !isUnauthorized(unauthorized) {
		t.Error("isUnauthorized() should be true for a 401 response")
	}
	if isUnauthorized(conflict) {
		t.Error("isUnauthorized() should be false for a 409 response")
	}
	if !isConflict(conflict) {
		t.Error("isConflict() should be true for a 409 response")
	}
}

func TestAppAuthTokenCachesBetweenCalls(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"token": "minted-token"})
	}))
	defer srv.Close()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error: %v", err)
	}
	auth := NewAppAuth(1, 2, key)
	auth.baseURL = srv.URL

	ctx := context.Background()
	tok1, err := auth.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if tok1 != "minted-token" {
		t.Errorf("Token() = %q, want minted-token", tok1)
	}

	tok2, err := auth.Token(ctx)
	if err != nil {
		t.Fatalf("Token() second call error: %v", err)
	}
	if tok2 != tok1 {
		t.Errorf("Token() second call = %q, want cached %q", tok2, tok1)
	}
	if calls != 1 {
		t.Errorf("mint endpoint called %d times, want 1 (cached)", calls)
	}
}
