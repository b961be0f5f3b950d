// Package salience turns raw character index statistics into a ranked
// per-character prominence table. Salience measures textual dominance
// only; it says nothing about narrative importance.
package salience

import (
	"math"
	"sort"

	"novel_signals/internal/charindex"
	"novel_signals/internal/faults"
)

// Component weights. They sum to 1.0 so the composite stays in [0,1].
const (
	mentionWeight     = 0.5
	coverageWeight    = 0.3
	persistenceWeight = 0.2
)

// Record is one scored character.
type Record struct {
	Name             string  `json:"name"`
	Mentions         int     `json:"mentions"`
	ChapterCount     int     `json:"chapter_count"`
	MentionScore     float64 `json:"mention_score"`
	CoverageScore    float64 `json:"coverage_score"`
	PersistenceScore float64 `json:"persistence_score"`
	SalienceScore    float64 `json:"salience_score"`

	firstSeen int
}

// Table is the salience artifact for one run, sorted best-first.
type Table struct {
	NovelID    string   `json:"novel_id"`
	RunID      string   `json:"run_id"`
	Characters []Record `json:"characters"`
	Warnings   []string `json:"warnings"`
}

var tableWarnings = []string{
	"Salience measures TEXTUAL DOMINANCE, not narrative importance",
	"High salience does NOT mean 'main character' or 'protagonist'",
	"Scores are relative within this novel/run only",
	"This is a measurement layer, not a literary judgment",
}

// Score computes the salience table from a character index.
func Score(ix *charindex.Index) (*Table, error) {
	if ix == nil || len(ix.Names) == 0 {
		return nil, faults.Input("character_salience", "character index")
	}

	maxMentions := 0
	for _, st := range ix.Names {
		if st.Mentions > maxMentions {
			maxMentions = st.Mentions
		}
	}

	records := make([]Record, 0, len(ix.Names))
	for name, st := range ix.Names {
		mention := 0.0
		if maxMentions > 0 {
			mention = math.Min(1, float64(st.Mentions)/float64(maxMentions))
		}
		coverage := 0.0
		if ix.TotalChapters > 0 {
			coverage = float64(st.ChapterCount) / float64(ix.TotalChapters)
		}
		persistence := persistenceScore(st.ChaptersPresent, ix.TotalChapters)
		composite := clamp01(mentionWeight*mention + coverageWeight*coverage + persistenceWeight*persistence)

		first := 0
		if len(st.ChaptersPresent) > 0 {
			first = st.ChaptersPresent[0]
		}
		records = append(records, Record{
			Name:             name,
			Mentions:         st.Mentions,
			ChapterCount:     st.ChapterCount,
			MentionScore:     round4(mention),
			CoverageScore:    round4(coverage),
			PersistenceScore: round4(persistence),
			SalienceScore:    round4(composite),
			firstSeen:        first,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].SalienceScore != records[j].SalienceScore {
			return records[i].SalienceScore > records[j].SalienceScore
		}
		if records[i].Mentions != records[j].Mentions {
			return records[i].Mentions > records[j].Mentions
		}
		if records[i].firstSeen != records[j].firstSeen {
			return records[i].firstSeen < records[j].firstSeen
		}
		return records[i].Name < records[j].Name
	})

	return &Table{
		NovelID:    ix.NovelID,
		RunID:      ix.RunID,
		Characters: records,
		Warnings:   tableWarnings,
	}, nil
}

// persistenceScore rates how evenly a character's appearances are
// spaced: 1 minus the ratio of the observed gap variance to the worst
// possible gap variance for that appearance count and novel length. A
// single appearance has no gaps and scores 0; zero worst-case variance
// means every gap is forced to 1, which scores 1.
func persistenceScore(present []int, totalChapters int) float64 {
	if len(present) < 2 {
		return 0
	}
	gaps := make([]float64, 0, len(present)-1)
	for i := 1; i < len(present); i++ {
		gaps = append(gaps, float64(present[i]-present[i-1]))
	}
	worst := maxGapVariance(len(present), totalChapters)
	if worst == 0 {
		return 1
	}
	return clamp01(1 - variance(gaps)/worst)
}

// maxGapVariance is the gap variance of the most clustered placement:
// k-1 consecutive chapters at one end of the novel and the final
// appearance at the far end.
func maxGapVariance(k, totalChapters int) float64 {
	m := float64(k - 1)
	if m <= 0 || totalChapters < 2 {
		return 0
	}
	big := float64(totalChapters - (k - 1))
	mean := float64(totalChapters-1) / m
	spread := (m-1)*(1-mean)*(1-mean) + (big-mean)*(big-mean)
	return spread / m
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	out := 0.0
	for _, v := range values {
		d := v - mean
		out += d * d
	}
	return out / float64(len(values))
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
