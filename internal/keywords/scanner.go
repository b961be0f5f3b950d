// Package keywords runs the lexical keyword scan: every dictionary term
// is matched against every chapter, and per-keyword presence is rolled
// up into spread, density and category summaries. Keyword presence is
// surface data only; it never confirms that an event happened.
package keywords

import (
	"math"
	"sort"
	"strings"

	"novel_signals/internal/chapters"
	"novel_signals/internal/dict"
	"novel_signals/internal/faults"
)

type Config struct {
	Workers int
}

// Signal aggregates one keyword across the whole novel. ChaptersFound
// holds 1-based chapter sequence numbers ascending; keywords that match
// nowhere are omitted from the artifact entirely.
type Signal struct {
	Category        string   `json:"category"`
	ChaptersFound   []int    `json:"chapters_found"`
	TotalMatches    int      `json:"total_matches"`
	NarrativeSpread int      `json:"narrative_spread"`
	Density         float64  `json:"density"`
	FirstChapter    int      `json:"first_chapter"`
	LastChapter     int      `json:"last_chapter"`
	MatchedTerms    []string `json:"matched_terms"`
}

// Signals is the keyword artifact for one run.
type Signals struct {
	NovelID           string              `json:"novel_id"`
	RunID             string              `json:"run_id"`
	DictionaryVersion string              `json:"dictionary_version"`
	TotalChapters     int                 `json:"total_chapters"`
	Keywords          map[string]Signal   `json:"keywords"`
	CategoriesFound   map[string][]string `json:"categories_found"`
	Warnings          []string            `json:"warnings"`
}

var signalWarnings = []string{
	"Keyword presence does NOT confirm event occurrence",
	"High frequency does NOT indicate narrative importance",
	"This is lexical surface data, not story understanding",
	"Use for pattern detection, not plot summarization",
}

type chapterHits struct {
	counts map[string]int
	terms  map[string]map[string]struct{}
}

// Scan matches the dictionary against every chapter on a worker pool
// and folds the per-chapter counts in chapter order.
func Scan(novelID, runID string, chs []chapters.Chapter, d *dict.KeywordDictionary, cfg Config) (*Signals, error) {
	if len(chs) == 0 {
		return nil, faults.Input("event_keywords", "chapter texts")
	}
	if d == nil || len(d.Keywords) == 0 {
		return nil, faults.Config("event_keywords", "no keyword dictionary", nil)
	}

	slot := make(map[string]int, len(chs))
	for i, ch := range chs {
		slot[ch.ID] = i
	}

	partials := make([]chapterHits, len(chs))
	chapters.Scan(chs, cfg.Workers, func(ch chapters.Chapter) error {
		hits := chapterHits{
			counts: make(map[string]int),
			terms:  make(map[string]map[string]struct{}),
		}
		for i := range d.Keywords {
			kw := &d.Keywords[i]
			for t, pat := range kw.Patterns() {
				n := len(pat.FindAllStringIndex(ch.Text, -1))
				if n == 0 {
					continue
				}
				hits.counts[kw.ID] += n
				if hits.terms[kw.ID] == nil {
					hits.terms[kw.ID] = make(map[string]struct{})
				}
				hits.terms[kw.ID][termLabel(kw, t)] = struct{}{}
			}
		}
		partials[slot[ch.ID]] = hits
		return nil
	})

	found := make(map[string]Signal)
	termSets := make(map[string]map[string]struct{})
	for i, p := range partials {
		seq := chs[i].Seq
		for id, n := range p.counts {
			sig := found[id]
			if sig.Category == "" {
				sig.Category = categoryOf(d, id)
				sig.FirstChapter = seq
			}
			sig.TotalMatches += n
			sig.ChaptersFound = append(sig.ChaptersFound, seq)
			sig.LastChapter = seq
			found[id] = sig

			if termSets[id] == nil {
				termSets[id] = make(map[string]struct{})
			}
			for term := range p.terms[id] {
				termSets[id][term] = struct{}{}
			}
		}
	}

	categories := make(map[string][]string)
	for id, sig := range found {
		sig.NarrativeSpread = len(sig.ChaptersFound)
		sig.Density = round4(float64(sig.TotalMatches) / float64(sig.NarrativeSpread))
		sig.MatchedTerms = sortedSet(termSets[id])
		found[id] = sig
		categories[sig.Category] = append(categories[sig.Category], id)
	}
	for cat := range categories {
		sort.Strings(categories[cat])
	}

	return &Signals{
		NovelID:           novelID,
		RunID:             runID,
		DictionaryVersion: d.Version,
		TotalChapters:     len(chs),
		Keywords:          found,
		CategoriesFound:   categories,
		Warnings:          signalWarnings,
	}, nil
}

func termLabel(kw *dict.Keyword, termIndex int) string {
	term := kw.Terms[termIndex]
	if kw.CaseSensitive {
		return term
	}
	return strings.ToLower(term)
}

func categoryOf(d *dict.KeywordDictionary, id string) string {
	for i := range d.Keywords {
		if d.Keywords[i].ID == id {
			return d.Keywords[i].Category
		}
	}
	return ""
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
