// Package charindex extracts character name surfaces from chapter text:
// per-name mention statistics plus a sentence-proximity co-occurrence
// counter. Everything here is lexical; names are raw strings, never
// resolved identities.
package charindex

import (
	"regexp"
	"strings"

	"novel_signals/internal/chapters"
	"novel_signals/internal/dict"
	"novel_signals/internal/faults"
)

// Admission thresholds mirror the shipped dictionaries: a lone
// capitalized token needs repeated mentions before it counts as a name,
// and nearby sentences within the window are treated as co-occurrence.
const (
	DefaultMinSingleWordMentions = 2
	DefaultCoOccurrenceWindow    = 3
)

type Config struct {
	MinSingleWordMentions int
	CoOccurrenceWindow    int
	Workers               int
}

func DefaultConfig() Config {
	return Config{
		MinSingleWordMentions: DefaultMinSingleWordMentions,
		CoOccurrenceWindow:    DefaultCoOccurrenceWindow,
	}
}

// NameStats is the per-name slice of the index. ChaptersPresent holds
// 1-based chapter sequence numbers in ascending order.
type NameStats struct {
	Mentions        int   `json:"mentions"`
	ChaptersPresent []int `json:"chapters_present"`
	ChapterCount    int   `json:"chapter_count"`
}

// Index is the character index artifact for one run.
type Index struct {
	NovelID       string               `json:"novel_id"`
	RunID         string               `json:"run_id"`
	TotalChapters int                  `json:"total_chapters"`
	Names         map[string]NameStats `json:"names"`
	CoOccurrences map[string]int       `json:"co_occurrences"`
	Warnings      []string             `json:"warnings"`
}

// FirstSeen returns the first chapter sequence a name appears in, or 0
// if the name is not indexed.
func (ix *Index) FirstSeen(name string) int {
	st, ok := ix.Names[name]
	if !ok || len(st.ChaptersPresent) == 0 {
		return 0
	}
	return st.ChaptersPresent[0]
}

// PairKey builds the canonical unordered key for two names. Both orders
// of the same pair always map to one counter.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// SplitPairKey is the inverse of PairKey.
func SplitPairKey(key string) (string, string) {
	a, b, _ := strings.Cut(key, "|")
	return a, b
}

var namePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
var sentenceEnd = regexp.MustCompile(`[.!?]+`)
var whitespaceRun = regexp.MustCompile(`\s+`)

var indexWarnings = []string{
	"Names are raw strings, not resolved identities",
	"Statistics are surface-level counts, not narrative importance",
	"Co-occurrences indicate proximity, not relationships",
}

type chapterScan struct {
	counts    map[string]int
	sentences []string
}

// Build indexes the full chapter sequence. Per-chapter scanning fans
// out over a worker pool; merging is a plain fold in chapter order so
// identical input always yields an identical index.
func Build(novelID, runID string, chs []chapters.Chapter, ex *dict.Exclusions, cfg Config) (*Index, error) {
	if len(chs) == 0 {
		return nil, faults.Input("character_index", "chapter texts")
	}
	if ex == nil {
		return nil, faults.Config("character_index", "no exclusion word set", nil)
	}
	if cfg.MinSingleWordMentions < 1 {
		cfg.MinSingleWordMentions = 1
	}
	if cfg.CoOccurrenceWindow < 0 {
		cfg.CoOccurrenceWindow = 0
	}

	slot := make(map[string]int, len(chs))
	for i, ch := range chs {
		slot[ch.ID] = i
	}

	// Pass 1: candidate counts per chapter.
	partials := make([]chapterScan, len(chs))
	chapters.Scan(chs, cfg.Workers, func(ch chapters.Chapter) error {
		text := whitespaceRun.ReplaceAllString(ch.Text, " ")
		counts := make(map[string]int)
		for _, cand := range namePattern.FindAllString(text, -1) {
			counts[cand]++
		}
		partials[slot[ch.ID]] = chapterScan{
			counts:    counts,
			sentences: sentenceEnd.Split(text, -1),
		}
		return nil
	})

	totals := make(map[string]int)
	for _, p := range partials {
		for cand, n := range p.counts {
			totals[cand] += n
		}
	}

	admitted := admit(totals, ex, cfg.MinSingleWordMentions)

	names := make(map[string]NameStats, len(admitted))
	for name := range admitted {
		var present []int
		for i, p := range partials {
			if p.counts[name] > 0 {
				present = append(present, chs[i].Seq)
			}
		}
		names[name] = NameStats{
			Mentions:        totals[name],
			ChaptersPresent: present,
			ChapterCount:    len(present),
		}
	}

	// Pass 2: sentence-window co-occurrence over admitted names only.
	contains := make(map[string]*regexp.Regexp, len(admitted))
	for name := range admitted {
		contains[name] = regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	}
	co := make([]map[string]int, len(chs))
	chapters.Scan(chs, cfg.Workers, func(ch chapters.Chapter) error {
		i := slot[ch.ID]
		co[i] = coOccurrences(partials[i], contains, cfg.CoOccurrenceWindow)
		return nil
	})

	merged := make(map[string]int)
	for _, m := range co {
		for key, n := range m {
			merged[key] += n
		}
	}

	return &Index{
		NovelID:       novelID,
		RunID:         runID,
		TotalChapters: len(chs),
		Names:         names,
		CoOccurrences: merged,
		Warnings:      indexWarnings,
	}, nil
}

// admit filters raw candidate counts down to names. Any excluded token
// disqualifies the whole candidate; multi-word candidates are otherwise
// always kept, single words need the mention minimum.
func admit(totals map[string]int, ex *dict.Exclusions, minSingle int) map[string]struct{} {
	out := make(map[string]struct{})
	for cand, count := range totals {
		tokens := strings.Fields(cand)
		if len(tokens) == 0 {
			continue
		}
		blocked := false
		for _, tok := range tokens {
			if ex.Contains(tok) {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		if len(tokens) > 1 || count >= minSingle {
			out[cand] = struct{}{}
		}
	}
	return out
}

// coOccurrences counts proximity events inside one chapter: a pair in
// the same sentence counts once, and every (earlier, later) sentence
// pairing within the window counts once per name pair it exposes.
func coOccurrences(p chapterScan, contains map[string]*regexp.Regexp, window int) map[string]int {
	bySentence := make([][]string, len(p.sentences))
	for i, sentence := range p.sentences {
		if strings.TrimSpace(sentence) == "" {
			continue
		}
		for name, pat := range contains {
			if pat.MatchString(sentence) {
				bySentence[i] = append(bySentence[i], name)
			}
		}
	}

	counts := make(map[string]int)
	for i, here := range bySentence {
		for x := 0; x < len(here); x++ {
			for y := x + 1; y < len(here); y++ {
				counts[PairKey(here[x], here[y])]++
			}
		}
		limit := i + window
		if limit >= len(bySentence) {
			limit = len(bySentence) - 1
		}
		for j := i + 1; j <= limit; j++ {
			for _, a := range here {
				for _, b := range bySentence[j] {
					if a != b {
						counts[PairKey(a, b)]++
					}
				}
			}
		}
	}
	return counts
}
