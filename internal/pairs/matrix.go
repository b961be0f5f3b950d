// Package pairs derives chapter-level co-presence signals for pairs of
// salient characters. Co-presence is structural evidence about shared
// chapters, never a claim about relationships.
package pairs

import (
	"math"
	"sort"

	"novel_signals/internal/charindex"
	"novel_signals/internal/faults"
	"novel_signals/internal/salience"
)

const (
	DefaultSalienceThreshold = 0.1
	DefaultMinimumCoPresence = 1
)

// Persistence component weights, summing to 1.0.
const (
	ratioWeight   = 0.4
	spanWeight    = 0.35
	densityWeight = 0.25
)

type Config struct {
	// SalienceThreshold gates which characters may pair at all; it
	// exists to prevent combinatorial blowup from one-off names.
	SalienceThreshold float64
	MinimumCoPresence int
}

func DefaultConfig() Config {
	return Config{
		SalienceThreshold: DefaultSalienceThreshold,
		MinimumCoPresence: DefaultMinimumCoPresence,
	}
}

// Signal carries the co-presence metrics for one canonical pair.
type Signal struct {
	CharacterA      string  `json:"character_a"`
	CharacterB      string  `json:"character_b"`
	CoPresenceCount int     `json:"co_presence_count"`
	CoPresenceRatio float64 `json:"co_presence_ratio"`
	Jaccard         float64 `json:"jaccard_similarity"`
	NarrativeSpan   float64 `json:"narrative_span"`
	Persistence     float64 `json:"persistence_score"`
}

// Matrix is the relationship matrix artifact for one run.
type Matrix struct {
	NovelID            string            `json:"novel_id"`
	RunID              string            `json:"run_id"`
	SalienceThreshold  float64           `json:"salience_threshold"`
	MinimumCoPresence  int               `json:"minimum_co_presence"`
	Pairs              map[string]Signal `json:"pairs"`
	ExcludedCharacters []string          `json:"excluded_characters"`
	Warnings           []string          `json:"warnings"`
}

var matrixWarnings = []string{
	"Co-presence is STRUCTURAL, not semantic",
	"High persistence does NOT indicate close relationships",
	"Signals measure textual proximity, not narrative connection",
	"This is evidence for pattern detection, not interpretation",
}

// Build computes pair signals for every pair of characters that clears
// the salience threshold and shares at least the minimum number of
// chapters.
func Build(ix *charindex.Index, table *salience.Table, cfg Config) (*Matrix, error) {
	if ix == nil || len(ix.Names) == 0 {
		return nil, faults.Input("relationship_matrix", "character index")
	}
	if table == nil || len(table.Characters) == 0 {
		return nil, faults.Input("relationship_matrix", "character salience")
	}
	if cfg.MinimumCoPresence < 1 {
		cfg.MinimumCoPresence = 1
	}

	var included []string
	var excluded []string
	for _, rec := range table.Characters {
		if rec.SalienceScore >= cfg.SalienceThreshold {
			included = append(included, rec.Name)
		} else {
			excluded = append(excluded, rec.Name)
		}
	}
	sort.Strings(excluded)

	out := make(map[string]Signal)
	for i := 0; i < len(included); i++ {
		for j := i + 1; j < len(included); j++ {
			sig, ok := pairSignal(ix, included[i], included[j], cfg.MinimumCoPresence)
			if ok {
				out[charindex.PairKey(included[i], included[j])] = sig
			}
		}
	}

	return &Matrix{
		NovelID:            ix.NovelID,
		RunID:              ix.RunID,
		SalienceThreshold:  cfg.SalienceThreshold,
		MinimumCoPresence:  cfg.MinimumCoPresence,
		Pairs:              out,
		ExcludedCharacters: excluded,
		Warnings:           matrixWarnings,
	}, nil
}

func pairSignal(ix *charindex.Index, nameA, nameB string, minCoPresence int) (Signal, bool) {
	if nameA > nameB {
		nameA, nameB = nameB, nameA
	}
	a := ix.Names[nameA]
	b := ix.Names[nameB]

	common := intersect(a.ChaptersPresent, b.ChaptersPresent)
	if len(common) < minCoPresence {
		return Signal{}, false
	}

	count := len(common)
	smaller := a.ChapterCount
	if b.ChapterCount < smaller {
		smaller = b.ChapterCount
	}
	ratio := 0.0
	if smaller > 0 {
		ratio = float64(count) / float64(smaller)
	}
	union := a.ChapterCount + b.ChapterCount - count
	jaccard := 0.0
	if union > 0 {
		jaccard = float64(count) / float64(union)
	}

	first := common[0]
	last := common[len(common)-1]
	span := 0.0
	if ix.TotalChapters > 1 {
		span = float64(last-first) / float64(ix.TotalChapters-1)
	}
	spanChapters := last - first + 1
	if spanChapters < 1 {
		spanChapters = 1
	}
	density := float64(count) / float64(spanChapters)

	persistence := clamp01(ratioWeight*ratio + spanWeight*span + densityWeight*density)

	return Signal{
		CharacterA:      nameA,
		CharacterB:      nameB,
		CoPresenceCount: count,
		CoPresenceRatio: round4(ratio),
		Jaccard:         round4(jaccard),
		NarrativeSpan:   round4(span),
		Persistence:     round4(persistence),
	}, true
}

// intersect assumes both slices are sorted ascending, which the index
// guarantees for chapters_present.
func intersect(a, b []int) []int {
	var out []int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
