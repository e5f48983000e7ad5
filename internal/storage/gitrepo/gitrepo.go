// Package gitrepo implements the storage.GitRepo slot in "direct mode":
// reading and writing a single universe document as a file in a GitHub
// repository via the REST API, with no local sync engine involved.
// Engine mode (spec §4.2's "registered per-universe sync engine") is
// implemented by internal/sync's Engine, which the Manager calls
// directly rather than through storage.GitRepo.
package gitrepo

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	"github.com/google/go-github/v58/github"

	"github.com/redstring/core/internal/storage"
)

// TokenSource supplies a fresh GitHub access token on demand. Both the
// OAuth and GitHub App auth strategies in auth.go satisfy it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Adapter is the direct-mode storage.GitRepo, shared across universes:
// each call asks tokens for an access token and builds a GitHub client
// with it.
type Adapter struct {
	tokens TokenSource
	newClient func(token string) *github.Client
}

// New builds a direct-mode adapter authenticating through tokens.
func New(tokens TokenSource) *Adapter {
	return &Adapter{
		tokens:    tokens,
		newClient: defaultClientFactory,
	}
}

func defaultClientFactory(token string) *github.Client {
	return github.NewClient(nil).WithAuthToken(token)
}

func (a *Adapter) client(ctx context.Context) (*github.Client, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: acquire token: %w", err)
	}
	return a.newClient(token), nil
}

func (a *Adapter) path(cfg storage.GitRepoConfig) string {
	if cfg.UniverseFolder == "" {
		return cfg.UniverseFile
	}
	return cfg.UniverseFolder + "/" + cfg.UniverseFile
}

// IsAvailable reports whether the adapter has a token source configured;
// it does not probe connectivity, since that would cost a round trip on
// every poll.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	return a.tokens != nil
}

// Read fetches the universe document's current contents, retrying once
// on a 401. The retry asks tokens for a token again; the adapter does not
// discard a cached token first, so a source still holding the rejected
// token hands it back.
func (a *Adapter) Read(ctx context.Context, cfg storage.GitRepoConfig) (string, error) {
	owner, repo, err := splitRepo(cfg.LinkedRepo)
	if err != nil {
		return "", err
	}
	text, _, err := a.readOnce(ctx, owner, repo, cfg)
	if isUnauthorized(err) {
		log.Printf("[gitrepo] read %s/%s: 401, retrying once", owner, repo)
		text, _, err = a.readOnce(ctx, owner, repo, cfg)
	}
	if err != nil {
		return "", fmt.Errorf("gitrepo: read %s/%s/%s: %w", owner, repo, a.path(cfg), err)
	}
	return text, nil
}

func (a *Adapter) readOnce(ctx context.Context, owner, repo string, cfg storage.GitRepoConfig) (string, string, error) {
	client, err := a.client(ctx)
	if err != nil {
		return "", "", err
	}
	fileContent, _, _, err := client.Repositories.GetContents(ctx, owner, repo, a.path(cfg), nil)
	if err != nil {
		return "", "", err
	}
	if fileContent == nil {
		return "", "", storage.ErrNotAvailable
	}
	content, err := fileContent.GetContent()
	if err != nil {
		return "", "", fmt.Errorf("decode contents: %w", err)
	}
	return content, fileContent.GetSHA(), nil
}

// Write commits text to the universe document path, retrying once on a
// 401 (with the same token handling as Read) and surfacing storage.ErrConflict on a 409 (the blob's sha moved
// under us), matching spec §4.3's conflict policy.
func (a *Adapter) Write(ctx context.Context, cfg storage.GitRepoConfig, text string) error {
	owner, repo, err := splitRepo(cfg.LinkedRepo)
	if err != nil {
		return err
	}
	err = a.writeOnce(ctx, owner, repo, cfg, text)
	if isUnauthorized(err) {
		log.Printf("[gitrepo] write %s/%s: 401, retrying once", owner, repo)
		err = a.writeOnce(ctx, owner, repo, cfg, text)
	}
	if isConflict(err) {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("gitrepo: write %s/%s/%s: %w", owner, repo, a.path(cfg), err)
	}
	return nil
}

func (a *Adapter) writeOnce(ctx context.Context, owner, repo string, cfg storage.GitRepoConfig, text string) error {
	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	path := a.path(cfg)
	_, sha, readErr := a.readOnce(ctx, owner, repo, cfg)
	opts := &github.RepositoryContentFileOptions{
		Message: github.String("redstring: update " + cfg.UniverseFile),
		Content: []byte(base64.StdEncoding.EncodeToString([]byte(text))),
	}
	if readErr == nil && sha != "" {
		opts.SHA = github.String(sha)
	}
	_, _, err = client.Repositories.CreateFile(ctx, owner, repo, path, opts)
	return err
}

func splitRepo(linked string) (owner, repo string, err error) {
	for i, r := range linked {
		if r == '/' {
			return linked[:i], linked[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("gitrepo: %q is not an owner/repo reference", linked)
}

func isUnauthorized(err error) bool {
	if ge, ok := err.(*github.ErrorResponse); ok {
		return ge.Response != nil && ge.Response.StatusCode == 401
	}
	return false
}

func isConflict(err error) bool {
	if ge, ok := err.(*github.ErrorResponse); ok {
		return ge.Response != nil && ge.Response.StatusCode == 409
	}
	return false
}
