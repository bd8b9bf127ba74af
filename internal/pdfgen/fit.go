package pdfgen

import (
	"strings"
	"unicode"
)

const (
	// MinFontSize is the floor below which text is allowed to overflow its
	// region rather than become unreadable.
	MinFontSize = 6.0
	// MaxFontSize caps the starting size for short boxes.
	MaxFontSize = 36.0
	// LineSpacing is the leading factor applied between wrapped lines.
	LineSpacing = 1.2

	startRatio = 0.8
	shrinkStep = 0.5
)

// Fit is the result of fitting text into a region box.
type Fit struct {
	FontSize float64
	Lines    []string
	Overflow bool
}

// FitText wraps text into a box of the given point dimensions, shrinking the
// font from a starting size of 0.8x the box height until the wrapped block
// fits both axes. At MinFontSize the text is returned as-is with Overflow
// set; overflowing slightly beats illegible.
func FitText(text string, widthPts, heightPts float64) Fit {
	text = strings.TrimSpace(text)
	if text == "" {
		return Fit{FontSize: MinFontSize}
	}

	start := startRatio * heightPts
	if start > MaxFontSize {
		start = MaxFontSize
	}
	if start < MinFontSize {
		start = MinFontSize
	}

	for size := start; size >= MinFontSize; size -= shrinkStep {
		lines := wrap(text, size, widthPts)
		if blockFits(lines, size, widthPts, heightPts) {
			return Fit{FontSize: size, Lines: lines}
		}
	}

	return Fit{FontSize: MinFontSize, Lines: wrap(text, MinFontSize, widthPts), Overflow: true}
}

// blockFits checks both axes: total leading against the box height and every
// line against the box width.
func blockFits(lines []string, size, widthPts, heightPts float64) bool {
	if float64(len(lines))*size*LineSpacing > heightPts {
		return false
	}
	for _, line := range lines {
		if lineWidth(line, size) > widthPts {
			return false
		}
	}
	return true
}

// wrap greedily breaks text into lines no wider than widthPts. Latin text
// breaks at spaces; CJK runs break per rune since they carry no word
// boundaries. A single token wider than the box is split mid-token.
func wrap(text string, size, widthPts float64) []string {
	var lines []string
	var line strings.Builder
	lineW := 0.0

	flush := func() {
		if line.Len() > 0 {
			lines = append(lines, strings.TrimRight(line.String(), " "))
			line.Reset()
			lineW = 0
		}
	}

	for _, word := range splitTokens(text) {
		w := lineWidth(word, size)
		if lineW > 0 && lineW+w > widthPts {
			flush()
		}
		if w > widthPts {
			// Token alone exceeds the box: split per rune.
			for _, r := range word {
				rw := runeWidth(r, size)
				if lineW > 0 && lineW+rw > widthPts {
					flush()
				}
				line.WriteRune(r)
				lineW += rw
			}
			continue
		}
		line.WriteString(word)
		lineW += w
	}
	flush()

	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

// splitTokens splits into breakable units: space-terminated words for Latin
// text, individual runes for CJK. Spaces stay attached to the preceding word
// so joins don't need bookkeeping.
func splitTokens(text string) []string {
	var tokens []string
	var word strings.Builder

	flushWord := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}

	for _, r := range text {
		switch {
		case r == ' ':
			word.WriteRune(r)
			flushWord()
		case isCJK(r):
			flushWord()
			tokens = append(tokens, string(r))
		default:
			word.WriteRune(r)
		}
	}
	flushWord()
	return tokens
}

// lineWidth estimates rendered width: CJK glyphs are roughly full-width
// (1.0em), everything else roughly half-width (0.5em).
func lineWidth(s string, size float64) float64 {
	w := 0.0
	for _, r := range s {
		w += runeWidth(r, size)
	}
	return w
}

func runeWidth(r rune, size float64) float64 {
	if isCJK(r) {
		return size
	}
	return 0.5 * size
}

// isCJK reports whether the rune renders full-width: Han, kana, hangul, CJK
// punctuation and fullwidth forms.
func isCJK(r rune) bool {
	switch {
	case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
		return true
	case r >= 0x3000 && r <= 0x303F: // CJK punctuation
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // fullwidth forms
		return true
	}
	return false
}
