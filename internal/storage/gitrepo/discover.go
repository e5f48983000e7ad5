package gitrepo

import (
	"context"
	"fmt"
	"strings"
)

// DiscoverUniverses lists candidate universe documents (files named
// "*.redstring") anywhere under path in owner/repo, for the CLI's
// "discover" command and the Manager's discoverUniversesInRepository
// operation (spec §4.3).
func (a *Adapter) DiscoverUniverses(ctx context.Context, linkedRepo, path string) ([]string, error) {
	owner, repo, err := splitRepo(linkedRepo)
	if err != nil {
		return nil, err
	}
	client, err := a.client(ctx)
	if err != nil {
		return nil, err
	}
	_, dirContents, _, err := client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: list contents of %s/%s/%s: %w", owner, repo, path, err)
	}

	var found []string
	for _, entry := range dirContents {
		if entry.GetType() == "dir" {
			nested, err := a.DiscoverUniverses(ctx, linkedRepo, entry.GetPath())
			if err != nil {
				continue
			}
			found = append(found, nested...)
			continue
		}
		if strings.HasSuffix(entry.GetName(), ".redstring") {
			found = append(found, entry.GetPath())
		}
	}
	return found, nil
}
