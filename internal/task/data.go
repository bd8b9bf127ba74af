package task

import (
	"fmt"
	"sort"

	"pdf-translator/internal/geometry"
	"pdf-translator/internal/layout"
	"pdf-translator/internal/types"
)

// TranslationText is one text region's extracted and translated content.
// The id equals the region id; a TranslationText exists iff its region is a
// text region.
type TranslationText struct {
	ID             int     `json:"id"`
	OriginalText   string  `json:"original_text"`
	TranslatedText string  `json:"translated_text"`
	FontSize       float64 `json:"font_size,omitempty"` // pinned by a user edit, 0 = fit automatically
}

// PageTranslation aggregates one page's translations. Ordering by id is
// irrelevant; id uniqueness within the page is required.
type PageTranslation struct {
	PageNumber   int               `json:"page_number"`
	Translations []TranslationText `json:"translations"`
}

// TranslationData is the persisted, user-editable snapshot. It is the sole
// durable state needed to regenerate a PDF without repeating analysis, OCR
// or translation.
type TranslationData struct {
	TaskID         string            `json:"task_id,omitempty"`
	TargetLanguage string            `json:"target_language,omitempty"`
	Model          string            `json:"model,omitempty"`
	Pages          []PageTranslation `json:"pages"`
}

// Dimensions is a page size in PDF points.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RegionPosition is a region's geometry for the editor overlay and for
// regeneration.
type RegionPosition struct {
	ID       int                `json:"id"`
	Type     layout.RegionType  `json:"type"`
	Position geometry.Box       `json:"position"`
	Pixels   geometry.PixelRect `json:"pixels"`
}

// PagePositions carries one page's region layout.
type PagePositions struct {
	PageNumber int              `json:"page_number"`
	Dimensions Dimensions       `json:"dimensions"`
	Regions    []RegionPosition `json:"regions"`
}

// PositionData is the persisted region layout for all pages, written once
// after analysis and immutable thereafter.
type PositionData struct {
	Pages []PagePositions `json:"pages"`
}

// page returns the PageTranslation with the given page number, or nil.
func (d *TranslationData) page(pageNumber int) *PageTranslation {
	for i := range d.Pages {
		if d.Pages[i].PageNumber == pageNumber {
			return &d.Pages[i]
		}
	}
	return nil
}

// SetPage inserts or replaces one page's translations, keeping pages sorted
// by page number. One page's writer never touches another page's entries.
func (d *TranslationData) SetPage(page PageTranslation) {
	if existing := d.page(page.PageNumber); existing != nil {
		*existing = page
		return
	}
	d.Pages = append(d.Pages, page)
	sort.Slice(d.Pages, func(i, j int) bool {
		return d.Pages[i].PageNumber < d.Pages[j].PageNumber
	})
}

// ValidateEdit checks an edited snapshot against the stored one: every
// edited page must exist, every edited id must exist on its page, and ids
// must stay unique per page. A failed validation leaves the stored data
// untouched.
func ValidateEdit(stored, edited *TranslationData) error {
	if edited == nil || len(edited.Pages) == 0 {
		return types.NewValidationError("empty translation data", nil)
	}

	for _, page := range edited.Pages {
		storedPage := stored.page(page.PageNumber)
		if storedPage == nil {
			return types.NewValidationError(fmt.Sprintf("unknown page %d", page.PageNumber), nil)
		}

		known := make(map[int]bool, len(storedPage.Translations))
		for _, t := range storedPage.Translations {
			known[t.ID] = true
		}

		seen := make(map[int]bool, len(page.Translations))
		for _, t := range page.Translations {
			if !known[t.ID] {
				return types.NewValidationError(
					fmt.Sprintf("unknown region id %d on page %d", t.ID, page.PageNumber), nil)
			}
			if seen[t.ID] {
				return types.NewValidationError(
					fmt.Sprintf("duplicate region id %d on page %d", t.ID, page.PageNumber), nil)
			}
			seen[t.ID] = true
		}
	}

	return nil
}

// MergeEdit applies an edited snapshot onto the stored one, replacing only
// the edited fields. Task metadata and untouched regions are preserved.
// The edit must have been validated first.
func MergeEdit(stored, edited *TranslationData) *TranslationData {
	merged := &TranslationData{
		TaskID:         stored.TaskID,
		TargetLanguage: stored.TargetLanguage,
		Model:          stored.Model,
		Pages:          make([]PageTranslation, len(stored.Pages)),
	}

	for i, page := range stored.Pages {
		copied := PageTranslation{
			PageNumber:   page.PageNumber,
			Translations: append([]TranslationText(nil), page.Translations...),
		}
		merged.Pages[i] = copied
	}

	for _, editedPage := range edited.Pages {
		target := merged.page(editedPage.PageNumber)
		if target == nil {
			continue
		}
		for _, editedText := range editedPage.Translations {
			for i := range target.Translations {
				if target.Translations[i].ID == editedText.ID {
					target.Translations[i].TranslatedText = editedText.TranslatedText
					if editedText.FontSize > 0 {
						target.Translations[i].FontSize = editedText.FontSize
					}
					break
				}
			}
		}
	}

	return merged
}
