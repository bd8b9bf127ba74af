// Package task holds the translation task state machine and the orchestrator
// that drives a document through conversion, analysis, extraction,
// translation and reconstruction.
package task

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Step names the pipeline phase currently running, surfaced through the
// status endpoint.
type Step string

const (
	StepQueued      Step = "queued"
	StepConverting  Step = "converting"
	StepAnalyzing   Step = "analyzing"
	StepTranslating Step = "translating"
	StepAssembling  Step = "assembling"
)

// PageState is the per-page pipeline position. Pages only ever move forward;
// a page that cannot advance goes to PageFailed.
type PageState string

const (
	PageCreated       PageState = "CREATED"
	PageAnalyzed      PageState = "ANALYZED"
	PageExtracted     PageState = "EXTRACTED"
	PageTranslated    PageState = "TRANSLATED"
	PageReconstructed PageState = "RECONSTRUCTED"
	PageFailed        PageState = "FAILED"
)

// pageOrder maps each forward state to its rank for transition checks.
var pageOrder = map[PageState]int{
	PageCreated:       0,
	PageAnalyzed:      1,
	PageExtracted:     2,
	PageTranslated:    3,
	PageReconstructed: 4,
}

// Progress describes where a running task is and any per-region notes
// accumulated along the way (degraded regions, skipped pages).
type Progress struct {
	Step    Step     `json:"step"`
	Details []string `json:"details,omitempty"`
}

// Task is the durable task record. JSON tags match the status endpoint's
// wire shape.
type Task struct {
	ID             string     `json:"id"`
	Status         Status     `json:"status"`
	OriginalFile   string     `json:"originalFile"`
	TranslatedFile string     `json:"translatedFile,omitempty"`
	TargetLanguage string     `json:"targetLanguage"`
	Model          string     `json:"model,omitempty"`
	Error          string     `json:"error,omitempty"`
	Progress       Progress   `json:"progress"`
	PageCount      int        `json:"pageCount,omitempty"`
	HasTextLayer   bool       `json:"hasTextLayer,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// PageRecord tracks one page's pipeline position during a run. It lives in
// memory only; durable state is the translation and position data.
type PageRecord struct {
	PageNumber int
	State      PageState
}

// Advance moves the page to the next state, rejecting skips and backward
// moves. A page already failed stays failed.
func (p *PageRecord) Advance(next PageState) error {
	if p.State == PageFailed {
		return fmt.Errorf("page %d already failed", p.PageNumber)
	}
	if next == PageFailed {
		p.State = PageFailed
		return nil
	}
	cur, ok := pageOrder[p.State]
	if !ok {
		return fmt.Errorf("page %d in unknown state %q", p.PageNumber, p.State)
	}
	want, ok := pageOrder[next]
	if !ok {
		return fmt.Errorf("page %d: unknown target state %q", p.PageNumber, next)
	}
	if want != cur+1 {
		return fmt.Errorf("page %d: invalid transition %s -> %s", p.PageNumber, p.State, next)
	}
	p.State = next
	return nil
}

// validTransitions is the task-level state machine. Regeneration re-enters
// PROCESSING from COMPLETED.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusProcessing},
	StatusFailed:     {},
}

// CanTransition reports whether moving from one task status to another is
// allowed.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
