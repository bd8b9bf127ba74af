package fonts

import "testing"

// installedSet builds a supported func from a fixed set of font names.
func installedSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func TestResolvePicksFirstInstalledCandidate(t *testing.T) {
	r := newResolver(installedSet("Helvetica", "NotoSansSC-Regular", "NotoSansJP-Regular", "MalgunGothic"))

	tests := []struct {
		name     string
		code     string
		wantFont string
		wantCJK  bool
		wantRTL  bool
	}{
		{"simplified chinese", "zh", "NotoSansSC-Regular", true, false},
		{"chinese with region", "zh-CN", "NotoSansSC-Regular", true, false},
		{"traditional chinese region", "zh-TW", "NotoSansSC-Regular", true, false},
		{"japanese", "ja", "NotoSansJP-Regular", true, false},
		{"korean", "ko", "MalgunGothic", true, false},
		{"arabic is RTL", "ar", "Helvetica", false, true},
		{"hebrew is RTL", "he", "Helvetica", false, true},
		{"english uses default", "en", "Helvetica", false, false},
		{"spanish uses default", "es", "Helvetica", false, false},
		{"unknown code falls back silently", "xx-unknown", "Helvetica", false, false},
		{"empty code falls back", "", "Helvetica", false, false},
		{"uppercase normalized", "ZH", "NotoSansSC-Regular", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := r.Resolve(tt.code)
			if h.Name != tt.wantFont {
				t.Errorf("Resolve(%q).Name = %s, want %s", tt.code, h.Name, tt.wantFont)
			}
			if h.CJK != tt.wantCJK {
				t.Errorf("Resolve(%q).CJK = %v, want %v", tt.code, h.CJK, tt.wantCJK)
			}
			if h.RTL != tt.wantRTL {
				t.Errorf("Resolve(%q).RTL = %v, want %v", tt.code, h.RTL, tt.wantRTL)
			}
		})
	}
}

func TestResolveHonorsCandidateOrder(t *testing.T) {
	r := newResolver(installedSet("SimSun", "NotoSansSC-Regular"))
	if got := r.Resolve("zh"); got.Name != "SimSun" {
		t.Fatalf("Resolve(zh) = %s, want the first installed candidate SimSun", got.Name)
	}
}

func TestResolveNoInstalledCandidateKeepsScriptFlags(t *testing.T) {
	// Only core fonts installed: CJK resolves to the Latin default but the
	// script flags survive so the renderer knows what it is dealing with.
	r := newResolver(installedSet("Helvetica"))

	h := r.Resolve("zh")
	if h.Name != "Helvetica" {
		t.Errorf("Resolve(zh).Name = %s, want Helvetica fallback", h.Name)
	}
	if !h.CJK {
		t.Error("Resolve(zh).CJK = false, want true even on fallback")
	}
	if h.Script != "han" {
		t.Errorf("Resolve(zh).Script = %s, want han", h.Script)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r := newResolver(installedSet("MS-Mincho"))
	for i := 0; i < 3; i++ {
		if got := r.Resolve("ja"); got.Name != "MS-Mincho" {
			t.Fatalf("Resolve(ja) changed between calls: %+v", got)
		}
	}
}

func TestInstallDirEmptyIsNoop(t *testing.T) {
	n, err := InstallDir("")
	if err != nil {
		t.Fatalf("InstallDir(\"\") error: %v", err)
	}
	if n != 0 {
		t.Fatalf("InstallDir(\"\") = %d, want 0", n)
	}
}

func TestInstallDirNoFonts(t *testing.T) {
	n, err := InstallDir(t.TempDir())
	if err != nil {
		t.Fatalf("InstallDir on empty dir error: %v", err)
	}
	if n != 0 {
		t.Fatalf("InstallDir on empty dir = %d, want 0", n)
	}
}
