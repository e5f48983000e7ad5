package device

import "testing"

func TestComputeGitOnlyModeTriggers(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		f    Facts
		want bool
	}{
		{"mobile", Facts{Mobile: true, HasSavePicker: true}, true},
		{"tablet", Facts{Tablet: true, HasSavePicker: true}, true},
		{"no save picker", Facts{HasSavePicker: false}, true},
		{"touch + medium screen", Facts{Touch: true, ScreenWidth: 800, HasSavePicker: true}, true},
		{"desktop with save picker", Facts{HasSavePicker: true, ScreenWidth: 1920}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := Compute(tc.f)
			if p.GitOnlyMode != tc.want {
				t.Errorf("GitOnlyMode = %v, want %v", p.GitOnlyMode, tc.want)
			}
		})
	}
}

func TestComputeSourceOfTruthFollowsGitOnly(t *testing.T) {
	t.Parallel()
	p := Compute(Facts{Mobile: true})
	if p.SourceOfTruth != "git" {
		t.Errorf("SourceOfTruth = %q, want git", p.SourceOfTruth)
	}

	p = Compute(Facts{HasSavePicker: true, ScreenWidth: 1920})
	if p.SourceOfTruth != "local" {
		t.Errorf("SourceOfTruth = %q, want local", p.SourceOfTruth)
	}
}

func TestComputeAutoSaveFrequency(t *testing.T) {
	t.Parallel()
	if Compute(Facts{Mobile: true}).AutoSaveFrequencyMS != 2000 {
		t.Error("mobile autosave should be 2000ms")
	}
	if Compute(Facts{}).AutoSaveFrequencyMS != 1000 {
		t.Error("non-mobile autosave should be 1000ms")
	}
}

func TestComputeEnableLocalFileStorage(t *testing.T) {
	t.Parallel()
	p := Compute(Facts{HasSavePicker: true, ScreenWidth: 1920})
	if !p.EnableLocalFileStorage {
		t.Error("desktop with save picker should enable local file storage")
	}
	p = Compute(Facts{Mobile: true, HasSavePicker: true})
	if p.EnableLocalFileStorage {
		t.Error("git-only mode must disable local file storage regardless of save picker")
	}
}
