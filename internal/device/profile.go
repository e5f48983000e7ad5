// Package device computes the storage/UI configuration implied by the
// host's capabilities (spec §4.5). It is a pure function of the facts
// passed in — no global OS/browser detection — so it needs no
// third-party dependency: there is nothing in the retrieval pack that
// fits a leaf this small better than a plain switch over booleans.
package device

// Facts are the host capabilities the profile is derived from.
type Facts struct {
	Touch         bool
	Mobile        bool
	Tablet        bool
	ScreenWidth   int
	HasSavePicker bool
}

// Profile is the deterministic configuration derived from Facts.
type Profile struct {
	GitOnlyMode            bool
	SourceOfTruth          string // "git" | "local"
	EnableLocalFileStorage bool
	AutoSaveFrequencyMS    int
	CompactInterface       bool
	TouchOptimizedUI       bool
}

const mediumScreenMax = 900

// Compute derives a Profile from host Facts per spec §4.5's rules.
func Compute(f Facts) Profile {
	mediumScreen := f.ScreenWidth > 0 && f.ScreenWidth <= mediumScreenMax
	gitOnly := f.Mobile || f.Tablet || !f.HasSavePicker || (f.Touch && mediumScreen)

	sourceOfTruth := "local"
	if gitOnly {
		sourceOfTruth = "git"
	}

	autoSave := 1000
	if f.Mobile {
		autoSave = 2000
	}

	return Profile{
		GitOnlyMode:            gitOnly,
		SourceOfTruth:          sourceOfTruth,
		EnableLocalFileStorage: !gitOnly && f.HasSavePicker,
		AutoSaveFrequencyMS:    autoSave,
		CompactInterface:       f.Mobile,
		TouchOptimizedUI:       f.Touch,
	}
}
