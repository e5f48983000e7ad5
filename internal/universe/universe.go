// Package universe implements the Universe Manager (spec §4.3): the
// registry of cognitive spaces, their storage-slot configuration, and
// the load/save orchestration across internal/storage's three adapters.
package universe

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/redstring/core/internal/device"
)

// SourceOfTruth names which slot wins on conflict.
type SourceOfTruth string

const (
	SourceLocal   SourceOfTruth = "local"
	SourceGit     SourceOfTruth = "git"
	SourceBrowser SourceOfTruth = "browser"
)

// GitPriority ranks a universe's Git slot among multiple git-backed
// universes sharing a watchdog cadence.
type GitPriority string

const (
	PriorityPrimary   GitPriority = "primary"
	PrioritySecondary GitPriority = "secondary"
)

// LocalFileSlot is a universe's local-file storage configuration.
type LocalFileSlot struct {
	Enabled           bool
	Path              string
	HadFileHandle     bool
	LastFilePath      string
	UnavailableReason string
}

// GitRepoSlot is a universe's Git-backed storage configuration.
type GitRepoSlot struct {
	Enabled        bool
	LinkedRepo     string // "user/repo"
	SchemaPath     string
	UniverseFolder string
	UniverseFile   string
	Priority       GitPriority
}

// BrowserStorageSlot is a universe's BrowserKV fallback configuration.
type BrowserStorageSlot struct {
	Enabled bool
	Key     string
	Role    string // "fallback" | "cache"
}

// Metadata tracks a universe's lifecycle timestamps and last-known
// document statistics.
type Metadata struct {
	Created      time.Time
	LastModified time.Time
	LastOpened   time.Time
	LastSync     time.Time
	SyncStatus   string
	FileSize     int64
	NodeCount    int
}

// Universe is one registry entry: a cognitive space and where it lives.
type Universe struct {
	Slug           string
	Name           string
	SourceOfTruth  SourceOfTruth
	LocalFile      LocalFileSlot
	GitRepo        GitRepoSlot
	BrowserStorage BrowserStorageSlot
	DeviceConfig   device.Profile
	Metadata       Metadata
}

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9_-]+`)
var slugCollapse = regexp.MustCompile(`-{2,}`)

const slugMaxLen = 50

// GenerateSlug derives a stable identifier from a display name: lowered,
// non [a-z0-9_-] runs replaced with '-', collapsed, trimmed of leading
// and trailing '-', and truncated to slugMaxLen (spec §3).
func GenerateSlug(name string) string {
	s := strings.ToLower(name)
	s = slugInvalidChars.ReplaceAllString(s, "-")
	s = slugCollapse.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "universe"
	}
	if len(s) > slugMaxLen {
		s = strings.Trim(s[:slugMaxLen], "-")
	}
	return s
}

// uniquifySlug appends "-N" to base until it is not present (case
// insensitively) in taken.
func uniquifySlug(base string, taken map[string]struct{}) string {
	candidate := base
	for i := 2; ; i++ {
		if _, exists := taken[strings.ToLower(candidate)]; !exists {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// DefaultGitRepoSlot fills in a GitRepoSlot's path conventions for a
// given slug when the caller supplies only linkedRepo.
func DefaultGitRepoSlot(slug, linkedRepo string) GitRepoSlot {
	return GitRepoSlot{
		Enabled:        true,
		LinkedRepo:     linkedRepo,
		SchemaPath:     "schema",
		UniverseFolder: "universes/" + slug,
		UniverseFile:   slug + ".redstring",
		Priority:       PriorityPrimary,
	}
}

// DefaultBrowserStorageSlot builds the conventional fallback BrowserKV
// slot for a slug.
func DefaultBrowserStorageSlot(slug string) BrowserStorageSlot {
	return BrowserStorageSlot{Enabled: true, Key: "universe_" + slug, Role: "fallback"}
}

// hasEnabledSlot reports whether at least one storage slot is enabled.
func (u *Universe) hasEnabledSlot() bool {
	return u.LocalFile.Enabled || u.GitRepo.Enabled || u.BrowserStorage.Enabled
}

// normalize enforces the data-model invariants (spec §3): at least one
// slot enabled, and sourceOfTruth naming an enabled slot. It returns a
// warning message when it had to demote sourceOfTruth.
func (u *Universe) normalize() (warning string) {
	if !u.hasEnabledSlot() {
		u.BrowserStorage.Enabled = true
		if u.BrowserStorage.Key == "" {
			u.BrowserStorage.Key = "universe_" + u.Slug
		}
	}
	if u.sourceOfTruthEnabled() {
		return ""
	}
	switch {
	case u.LocalFile.Enabled:
		u.SourceOfTruth = SourceLocal
	case u.GitRepo.Enabled:
		u.SourceOfTruth = SourceGit
	default:
		u.SourceOfTruth = SourceBrowser
	}
	return fmt.Sprintf("universe %s: sourceOfTruth demoted to %s (prior slot disabled)", u.Slug, u.SourceOfTruth)
}

func (u *Universe) sourceOfTruthEnabled() bool {
	switch u.SourceOfTruth {
	case SourceLocal:
		return u.LocalFile.Enabled
	case SourceGit:
		return u.GitRepo.Enabled
	case SourceBrowser:
		return u.BrowserStorage.Enabled
	default:
		return false
	}
}
