package universe

import "testing"

func TestGenerateSlug(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"My Cognitive Space": "my-cognitive-space",
		"  Trim Me  ":         "trim-me",
		"Weird!!!Chars???":    "weird-chars",
		"":                     "universe",
	}
	for input, want := range cases {
		if got := GenerateSlug(input); got != want {
			t.Errorf("GenerateSlug(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestGenerateSlugTruncatesToMaxLen(t *testing.T) {
	t.Parallel()
	long := ""
	for i := 0; i < 80; i++ {
		long += "a"
	}
	got := GenerateSlug(long)
	if len(got) > slugMaxLen {
		t.Errorf("GenerateSlug() len = %d, want <= %d", len(got), slugMaxLen)
	}
}

func TestUniquifySlug(t *testing.T) {
	t.Parallel()
	taken := map[string]struct{}{"universe": {}, "universe-2": {}}
	got := uniquifySlug("universe", taken)
	if got != "universe-3" {
		t.Errorf("uniquifySlug() = %q, want universe-3", got)
	}
}

func TestNormalizeEnablesFallbackWhenNoSlotEnabled(t *testing.T) {
	t.Parallel()
	u := &Universe{Slug: "u1", SourceOfTruth: SourceLocal}
	warning := u.normalize()
	if !u.BrowserStorage.Enabled {
		t.Error("normalize() should enable BrowserStorage as a last resort")
	}
	if warning == "" {
		t.Error("normalize() should warn when demoting sourceOfTruth")
	}
	if u.SourceOfTruth != SourceBrowser {
		t.Errorf("SourceOfTruth = %q, want browser", u.SourceOfTruth)
	}
}

func TestNormalizeNoWarningWhenSourceOfTruthValid(t *testing.T) {
	t.Parallel()
	u := &Universe{Slug: "u1", SourceOfTruth: SourceLocal, LocalFile: LocalFileSlot{Enabled: true}}
	if warning := u.normalize(); warning != "" {
		t.Errorf("normalize() warning = %q, want none", warning)
	}
}
