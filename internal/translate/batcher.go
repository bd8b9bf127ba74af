// Package translate batches extracted region text across pages and
// translates it through a chat model, matching results back to their
// originating regions by explicit identity.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// Entry is one region's text to translate, addressed by page number and
// region id. Region ids are only unique within a page, so the pair is the
// identity.
type Entry struct {
	Page   int
	Region int
	Text   string
}

// Result carries a translation back to its region. Failed marks entries the
// provider could not translate after retries; their Text falls back to the
// original so reconstruction still has something to draw.
type Result struct {
	Page   int
	Region int
	Text   string
	Failed bool
}

// ChatModel is the narrow slice of the eino chat model interface the
// batcher needs. *openai.ChatModel satisfies it directly.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Batcher groups entries into bounded-size requests and runs them
// concurrently under a shared in-flight cap.
type Batcher struct {
	model         ChatModel
	maxBatchChars int
	sem           *semaphore.Weighted
	retry         types.RetryPolicy
}

// NewBatcher creates a Batcher. maxBatchChars bounds the total text size of
// one request; concurrency caps in-flight API calls across all concurrent
// Translate callers, which is what keeps page-parallel translation within
// provider rate limits.
func NewBatcher(chatModel ChatModel, maxBatchChars, concurrency int) *Batcher {
	if maxBatchChars <= 0 {
		maxBatchChars = 4000
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Batcher{
		model:         chatModel,
		maxBatchChars: maxBatchChars,
		sem:           semaphore.NewWeighted(int64(concurrency)),
		retry:         types.DefaultRetryPolicy(),
	}
}

// request is one prompt segment. IDs are assigned sequentially per
// Translate call, independent of region ids, so a single call can span
// pages without collisions.
type request struct {
	id    int
	entry int // index into the entries slice
}

type segment struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type response struct {
	Translations []segment `json:"translations"`
}

// Translate translates all non-empty entries into targetLang. Entries with
// empty text pass through without an API call. The returned slice is
// parallel to entries.
//
// Provider responses are matched by id, never by position. Request ids
// missing from a validated response are retried once individually; if still
// missing they are marked Failed without failing the batch. Transport
// failures retry with backoff and fail the whole call after exhaustion.
func (b *Batcher) Translate(ctx context.Context, entries []Entry, targetLang string) ([]Result, error) {
	results := make([]Result, len(entries))
	requests := make([]request, 0, len(entries))
	nextID := 1
	for i, e := range entries {
		results[i] = Result{Page: e.Page, Region: e.Region, Text: e.Text}
		if strings.TrimSpace(e.Text) == "" {
			results[i].Text = ""
			continue
		}
		requests = append(requests, request{id: nextID, entry: i})
		nextID++
	}
	if len(requests) == 0 {
		return results, nil
	}

	batches := b.split(requests, entries)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, batch := range batches {
		g.Go(func() error {
			if err := b.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer b.sem.Release(1)

			translated, err := b.translateBatch(gctx, batch, entries, targetLang)
			if err != nil {
				return err
			}

			mu.Lock()
			for _, req := range batch {
				if text, ok := translated[req.id]; ok {
					results[req.entry].Text = text
				} else {
					results[req.entry].Failed = true
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	return results, nil
}

// split chunks requests so each batch stays under the char budget. A batch
// always holds at least one request, so an oversized single entry still
// gets translated rather than looping forever.
func (b *Batcher) split(requests []request, entries []Entry) [][]request {
	var batches [][]request
	var current []request
	chars := 0
	for _, req := range requests {
		size := len(entries[req.entry].Text)
		if len(current) > 0 && chars+size > b.maxBatchChars {
			batches = append(batches, current)
			current = nil
			chars = 0
		}
		current = append(current, req)
		chars += size
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// translateBatch performs one batch call plus the individual retry pass for
// ids the provider dropped.
func (b *Batcher) translateBatch(ctx context.Context, batch []request, entries []Entry, targetLang string) (map[int]string, error) {
	translated, err := b.call(ctx, batch, entries, targetLang)
	if err != nil {
		return nil, err
	}

	var missing []request
	for _, req := range batch {
		if _, ok := translated[req.id]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		logger.Warn("provider dropped batch entries, retrying individually",
			logger.Int("missing", len(missing)),
			logger.Int("batchSize", len(batch)))
	}
	for _, req := range missing {
		single, err := b.call(ctx, []request{req}, entries, targetLang)
		if err != nil {
			return nil, err
		}
		if text, ok := single[req.id]; ok {
			translated[req.id] = text
		}
		// Still missing: left out of the map, caller marks it Failed.
	}

	return translated, nil
}

// call performs one provider round trip with retry/backoff and validates
// the structured response.
func (b *Batcher) call(ctx context.Context, batch []request, entries []Entry, targetLang string) (map[int]string, error) {
	segments := make([]segment, len(batch))
	for i, req := range batch {
		segments[i] = segment{ID: req.id, Text: entries[req.entry].Text}
	}
	payload, err := json.Marshal(map[string]interface{}{
		"target_language": LanguageName(targetLang),
		"segments":        segments,
	})
	if err != nil {
		return nil, types.NewTranslationError("failed to encode batch request", err)
	}

	messages := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(
			"You are a professional document translator. Translate each segment into %s, "+
				"preserving meaning, numbers and inline formatting. "+
				`Respond with JSON only, exactly {"translations":[{"id":<id>,"text":"<translation>"}]}. `+
				"Keep every id unchanged and do not invent segments.", LanguageName(targetLang))),
		schema.UserMessage(string(payload)),
	}

	var content string
	err = types.Retry(ctx, b.retry, func() error {
		resp, genErr := b.model.Generate(ctx, messages)
		if genErr != nil {
			return genErr
		}
		content = resp.Content
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewTranslationError("translation provider failed after retries", err)
	}

	return b.validate(content, batch)
}

// validate parses the response and keeps only translations whose id exists
// in the request; anything else is a provider hallucination and is
// discarded.
func (b *Batcher) validate(content string, batch []request) (map[int]string, error) {
	var parsed response
	if err := json.Unmarshal([]byte(stripFences(content)), &parsed); err != nil {
		return nil, types.NewTranslationError("malformed translation response", err)
	}

	known := make(map[int]bool, len(batch))
	for _, req := range batch {
		known[req.id] = true
	}

	translated := make(map[int]string, len(parsed.Translations))
	for _, t := range parsed.Translations {
		if !known[t.ID] {
			logger.Warn("discarding translation for unknown id", logger.Int("id", t.ID))
			continue
		}
		translated[t.ID] = t.Text
	}
	return translated, nil
}

// stripFences removes a markdown code fence wrapper if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
