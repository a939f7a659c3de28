package blocks

import (
	"context"

	"github.com/google/uuid"
)

const (
	// DefaultWordsPerMinute is the reading speed used when none is configured.
	DefaultWordsPerMinute = 200
	// DefaultSecondsPerAsset is the viewing time credited to each embedded media item.
	DefaultSecondsPerAsset = 12
)

// BlockReader is the read path the analyzer depends on.
type BlockReader interface {
	GetBlocksByPostID(ctx context.Context, postID uuid.UUID) ([]*Block, error)
}

// Analyzer derives word count, reading time and per-kind counts from a post's
// ordered blocks. It has no side effects and does not cache.
type Analyzer struct {
	registry        *Registry
	reader          BlockReader
	wordsPerMinute  int
	secondsPerAsset int
}

// NewAnalyzer creates an analyzer. Non-positive wpm falls back to the default.
func NewAnalyzer(registry *Registry, reader BlockReader, wpm, secondsPerAsset int) *Analyzer {
	if wpm <= 0 {
		wpm = DefaultWordsPerMinute
	}
	if secondsPerAsset < 0 {
		secondsPerAsset = 0
	}
	return &Analyzer{
		registry:        registry,
		reader:          reader,
		wordsPerMinute:  wpm,
		secondsPerAsset: secondsPerAsset,
	}
}

// Analyze fetches the post's blocks and summarizes them.
func (a *Analyzer) Analyze(ctx context.Context, postID uuid.UUID) (*ContentAnalysis, error) {
	blocks, err := a.reader.GetBlocksByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}
	return a.Summarize(postID, blocks)
}

// Summarize computes the analysis of an already fetched block list.
func (a *Analyzer) Summarize(postID uuid.UUID, blocks []*Block) (*ContentAnalysis, error) {
	counts := make(map[Kind]int, len(allKinds))
	for _, k := range allKinds {
		counts[k] = 0
	}

	words, assets := 0, 0
	for _, b := range blocks {
		h, err := a.registry.Resolve(b.Kind)
		if err != nil {
			return nil, err
		}
		counts[b.Kind]++
		words += countWords(h.PlainText(b.Payload))
		assets += h.Assets(b.Payload)
	}

	mediaSeconds := assets * a.secondsPerAsset
	return &ContentAnalysis{
		PostID:             postID,
		WordCount:          words,
		ReadingTimeMinutes: readingMinutes(words, mediaSeconds, a.wordsPerMinute),
		MediaSeconds:       mediaSeconds,
		BlockCounts:        counts,
		TotalBlocks:        len(blocks),
	}, nil
}

// readingMinutes is ceil(words/wpm + mediaSeconds/60), at least 1. It is
// computed in seconds scaled by wpm to stay in integer arithmetic.
func readingMinutes(words, mediaSeconds, wpm int) int {
	scaled := words*60 + mediaSeconds*wpm // seconds * wpm
	perMinute := 60 * wpm
	minutes := (scaled + perMinute - 1) / perMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}
