// Package fonts maps target-language codes to font families used during
// PDF reconstruction.
package fonts

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdffont "github.com/pdfcpu/pdfcpu/pkg/font"
	"golang.org/x/text/language"

	"pdf-translator/internal/logger"
)

// Handle identifies a font family and the script properties that matter for
// text layout: CJK glyphs are roughly full-width, RTL scripts need shaping
// support in the renderer.
type Handle struct {
	Name   string
	Script string
	CJK    bool
	RTL    bool
}

// DefaultHandle is the Latin fallback used for unknown language codes.
func DefaultHandle() Handle {
	return Handle{Name: "Helvetica", Script: "latin"}
}

// candidates lists font names to try for a language, in preference order.
// The renderer only draws the fourteen core PDF fonts plus user-installed
// TrueType fonts, so every name here must pass the supported check before a
// handle is built from it.
type candidates struct {
	names  []string
	script string
	cjk    bool
	rtl    bool
}

// Resolver resolves language codes to font handles, restricted to fonts the
// renderer can draw.
type Resolver struct {
	registry  map[string]candidates
	supported func(string) bool
}

// NewResolver creates a Resolver backed by the renderer's installed font
// catalog. Languages whose candidate fonts are all missing resolve to the
// Latin default, which degrades their regions to raster rather than failing
// the task.
func NewResolver() *Resolver {
	return newResolver(pdffont.SupportedFont)
}

func newResolver(supported func(string) bool) *Resolver {
	return &Resolver{
		supported: supported,
		registry: map[string]candidates{
			"zh": {names: []string{"SimSun", "SimHei", "NotoSansSC-Regular", "NotoSerifSC-Regular", "STSong"}, script: "han", cjk: true},
			"ja": {names: []string{"MS-Mincho", "MS-Gothic", "NotoSansJP-Regular", "NotoSerifJP-Regular"}, script: "kana", cjk: true},
			"ko": {names: []string{"MalgunGothic", "NotoSansKR-Regular", "NotoSerifKR-Regular", "Batang"}, script: "hangul", cjk: true},
			// RTL handled as a shaping note: glyphs come from the Latin
			// fallback family, direction is flagged for the renderer.
			"ar": {names: []string{"Helvetica"}, script: "arabic", rtl: true},
			"he": {names: []string{"Helvetica"}, script: "hebrew", rtl: true},
		},
	}
}

// Resolve maps a language code to a drawable font handle. Region subtags are
// stripped ("zh-CN" resolves like "zh"). Unknown codes, and known codes with
// no installed candidate font, fall back to the Latin default so a niche
// target language never aborts a task.
func (r *Resolver) Resolve(code string) Handle {
	base := normalize(code)
	if base == "" {
		return DefaultHandle()
	}

	c, ok := r.registry[base]
	if !ok {
		logger.Debug("no font registered for language, using default", logger.String("language", code))
		return DefaultHandle()
	}

	for _, name := range c.names {
		if r.supported(name) {
			return Handle{Name: name, Script: c.script, CJK: c.cjk, RTL: c.rtl}
		}
	}

	logger.Warn("no installed font covers language, regions will keep original raster",
		logger.String("language", code),
		logger.String("candidates", strings.Join(c.names, ", ")))
	h := DefaultHandle()
	h.Script = c.script
	h.CJK = c.cjk
	h.RTL = c.rtl
	return h
}

// InstallDir installs every TrueType font found under dir into the
// renderer's user font catalog. An empty dir is a no-op. Returns the number
// of fonts installed.
func InstallDir(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".ttf", ".ttc":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan font directory %s: %w", dir, err)
	}
	if len(files) == 0 {
		return 0, nil
	}

	if err := api.InstallFonts(files); err != nil {
		return 0, fmt.Errorf("failed to install fonts from %s: %w", dir, err)
	}
	logger.Info("installed fonts", logger.Int("count", len(files)), logger.String("dir", dir))
	return len(files), nil
}

// normalize extracts the base language subtag from a possibly-regionalized
// code. Unparseable input yields the raw lowercase code so simple two-letter
// lookups still work.
func normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}

	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}

	base, conf := tag.Base()
	if conf == language.No {
		return strings.ToLower(code)
	}
	return base.String()
}
