// Package rules is the label resolution engine: one generic interpreter
// over an immutable rule table and a frozen evidence snapshot, run once
// for genres and once for tags. The tag pass additionally sees resolved
// genre confidences and therefore must run strictly second.
package rules

import (
	"math"
	"sort"

	"novel_signals/internal/dict"
	"novel_signals/internal/faults"
	"novel_signals/internal/keywords"
	"novel_signals/internal/pairs"
	"novel_signals/internal/salience"
)

const DefaultConfidenceThreshold = 0.3

type Config struct {
	ConfidenceThreshold float64
}

// KeywordFact is the slice of a keyword signal the engine can test.
type KeywordFact struct {
	Spread  int
	Density float64
}

// Evidence is the frozen snapshot one resolution pass evaluates
// against. Genres stays nil until the genre pass has resolved; the tag
// pass refuses to run without it.
type Evidence struct {
	Keywords   map[string]KeywordFact
	Categories map[string][]string
	Salience   []float64
	Pairs      []float64
	Genres     map[string]float64
}

// BuildEvidence freezes upstream artifacts into an evidence snapshot.
// Any artifact may be nil; the corresponding checks then simply fail to
// hold, mirroring how a skipped or failed stage degrades resolution
// instead of aborting it.
func BuildEvidence(kw *keywords.Signals, table *salience.Table, matrix *pairs.Matrix) Evidence {
	ev := Evidence{
		Keywords:   map[string]KeywordFact{},
		Categories: map[string][]string{},
	}
	if kw != nil {
		for id, sig := range kw.Keywords {
			ev.Keywords[id] = KeywordFact{Spread: sig.NarrativeSpread, Density: sig.Density}
		}
		for cat, ids := range kw.CategoriesFound {
			ev.Categories[cat] = ids
		}
	}
	if table != nil {
		for _, rec := range table.Characters {
			ev.Salience = append(ev.Salience, rec.SalienceScore)
		}
	}
	if matrix != nil {
		keys := make([]string, 0, len(matrix.Pairs))
		for key := range matrix.Pairs {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			ev.Pairs = append(ev.Pairs, matrix.Pairs[key].Persistence)
		}
	}
	return ev
}

// WithGenres extends a snapshot with the genre pass output, unlocking
// the tag-only checks.
func (ev Evidence) WithGenres(genres *Resolution) Evidence {
	if genres == nil {
		return ev
	}
	out := ev
	out.Genres = make(map[string]float64, len(genres.Resolved))
	for _, r := range genres.Resolved {
		out.Genres[r.ID] = r.Confidence
	}
	return out
}

// Scoring breaks a confidence value into its parts.
type Scoring struct {
	BaseScore        float64 `json:"base_score"`
	BoostsApplied    float64 `json:"boosts_applied"`
	PenaltiesApplied float64 `json:"penalties_applied"`
}

// Detail records which evidence supported a resolved label.
type Detail struct {
	Keywords          []string           `json:"event_keywords,omitempty"`
	Categories        []string           `json:"event_categories,omitempty"`
	KeywordSpreads    map[string]int     `json:"keyword_spreads,omitempty"`
	KeywordDensities  map[string]float64 `json:"keyword_densities,omitempty"`
	GenresPresent     []string           `json:"genres_present,omitempty"`
	SalientCharacters int                `json:"salient_characters,omitempty"`
	PersistentPairs   int                `json:"persistent_pairs,omitempty"`
	Penalties         []string           `json:"penalties_applied,omitempty"`
}

// Resolved is one label that cleared the confidence threshold.
type Resolved struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Confidence  float64 `json:"confidence"`
	Evidence    Detail  `json:"evidence"`
	Scoring     Scoring `json:"scoring"`
}

// Resolution is a genre or tag artifact for one run.
type Resolution struct {
	NovelID         string     `json:"novel_id"`
	RunID           string     `json:"run_id"`
	TaxonomyVersion string     `json:"taxonomy_version"`
	RuleVersion     string     `json:"rule_version"`
	Threshold       float64    `json:"threshold"`
	Resolved        []Resolved `json:"resolved"`
	Warnings        []string   `json:"warnings"`
}

var genreWarnings = []string{
	"Confidence scores are NOT probabilities",
	"Multiple genres can have high confidence",
	"Low confidence means 'insufficient evidence'",
	"This data enables framing, not literary analysis",
}

var tagWarnings = []string{
	"Confidence scores are NOT probabilities",
	"Multiple tags can have high confidence",
	"Low confidence means 'insufficient evidence'",
	"This data enables framing, not literary analysis",
	"Many tags (personality, subjective) cannot be detected",
}

// ResolveGenres evaluates the genre rule table against the snapshot.
func ResolveGenres(novelID, runID string, rs *dict.RuleSet, ev Evidence, cfg Config) (*Resolution, error) {
	if rs == nil {
		return nil, faults.Config("genre_resolved", "no rule table", nil)
	}
	warnings := append([]string(nil), genreWarnings...)
	if len(ev.Keywords) == 0 {
		warnings = append(warnings, "No event keywords data available - genre resolution limited")
	}
	return resolve(novelID, runID, rs, ev, warnings, cfg), nil
}

// ResolveTags evaluates the tag rule table. The genre pass must have
// completed first; running out of order is an input error, not a
// degraded result.
func ResolveTags(novelID, runID string, rs *dict.RuleSet, ev Evidence, cfg Config) (*Resolution, error) {
	if rs == nil {
		return nil, faults.Config("tag_resolved", "no rule table", nil)
	}
	if ev.Genres == nil {
		return nil, faults.Input("tag_resolved", "genre resolution")
	}
	warnings := append([]string(nil), tagWarnings...)
	if len(ev.Keywords) == 0 {
		warnings = append(warnings, "No event keywords data available - tag resolution limited")
	}
	return resolve(novelID, runID, rs, ev, warnings, cfg), nil
}

func resolve(novelID, runID string, rs *dict.RuleSet, ev Evidence, warnings []string, cfg Config) *Resolution {
	threshold := cfg.ConfidenceThreshold
	if threshold == 0 {
		threshold = DefaultConfidenceThreshold
	}

	var kept []Resolved
	for _, rule := range rs.Rules {
		r, requiredMet := evaluate(rule, ev)
		if !requiredMet || r.Confidence < threshold {
			continue
		}
		r.DisplayName = rs.DisplayName(r.ID)
		kept = append(kept, r)
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		return kept[i].ID < kept[j].ID
	})

	return &Resolution{
		NovelID:         novelID,
		RunID:           runID,
		TaxonomyVersion: rs.TaxonomyVersion,
		RuleVersion:     rs.RuleVersion,
		Threshold:       threshold,
		Resolved:        kept,
		Warnings:        warnings,
	}
}

// evaluate scores one rule. A failed required condition excludes the
// label outright; boosts and penalties only shift labels whose gate
// held.
func evaluate(rule dict.Rule, ev Evidence) (Resolved, bool) {
	for _, c := range rule.Required {
		if !holds(c, ev) {
			return Resolved{ID: rule.ID, Scoring: Scoring{BaseScore: rule.BaseScore}}, false
		}
	}

	var detail Detail
	boosts := 0.0
	for _, c := range rule.Boosts {
		if !holds(c, ev) {
			continue
		}
		boosts += c.Weight
		record(&detail, c, ev)
	}
	penalties := 0.0
	for _, c := range rule.Penalties {
		if !holds(c, ev) {
			continue
		}
		penalties += c.Weight
		detail.Penalties = append(detail.Penalties, conditionLabel(c))
	}

	confidence := clamp01(rule.BaseScore + boosts - penalties)
	return Resolved{
		ID:         rule.ID,
		Confidence: round4(confidence),
		Evidence:   detail,
		Scoring: Scoring{
			BaseScore:        rule.BaseScore,
			BoostsApplied:    round4(boosts),
			PenaltiesApplied: round4(penalties),
		},
	}, true
}

func holds(c dict.Condition, ev Evidence) bool {
	switch c.Check {
	case dict.CheckKeywordPresent:
		for _, id := range oneOrMany(c.Keyword, c.Keywords) {
			if _, ok := ev.Keywords[id]; ok {
				return true
			}
		}
		return false
	case dict.CheckCategoryPresent:
		for _, cat := range oneOrMany(c.Category, c.Categories) {
			if _, ok := ev.Categories[cat]; ok {
				return true
			}
		}
		return false
	case dict.CheckKeywordSpread:
		return ev.Keywords[c.Keyword].Spread >= c.MinSpread
	case dict.CheckKeywordDensity:
		f, ok := ev.Keywords[c.Keyword]
		return ok && f.Density >= c.MinDensity
	case dict.CheckCategoryCount:
		return len(ev.Categories[c.Category]) >= c.MinCount
	case dict.CheckSalientCharacterCount:
		return countAtLeast(ev.Salience, c.MinSalience) >= c.MinCount
	case dict.CheckSalientPairPersistence:
		return countAtLeast(ev.Pairs, c.MinPersistence) >= 1
	case dict.CheckHighPersistencePairCount:
		return countAtLeast(ev.Pairs, c.MinPersistence) >= c.MinCount
	case dict.CheckGenrePresent:
		_, ok := ev.Genres[c.Genre]
		return ok
	case dict.CheckGenreConfidence:
		conf, ok := ev.Genres[c.Genre]
		return ok && conf >= c.MinConfidence
	}
	return false
}

// record attributes a holding boost to the resolved label, mirroring
// the shape of the serialized evidence block.
func record(d *Detail, c dict.Condition, ev Evidence) {
	switch c.Check {
	case dict.CheckKeywordPresent:
		if c.Keyword != "" {
			d.Keywords = append(d.Keywords, c.Keyword)
		}
	case dict.CheckCategoryPresent:
		if c.Category != "" {
			d.Categories = append(d.Categories, c.Category)
		}
	case dict.CheckKeywordSpread:
		if d.KeywordSpreads == nil {
			d.KeywordSpreads = map[string]int{}
		}
		d.KeywordSpreads[c.Keyword] = ev.Keywords[c.Keyword].Spread
	case dict.CheckKeywordDensity:
		if d.KeywordDensities == nil {
			d.KeywordDensities = map[string]float64{}
		}
		d.KeywordDensities[c.Keyword] = ev.Keywords[c.Keyword].Density
	case dict.CheckGenrePresent:
		d.GenresPresent = append(d.GenresPresent, c.Genre)
	case dict.CheckSalientCharacterCount:
		d.SalientCharacters = countAtLeast(ev.Salience, c.MinSalience)
	case dict.CheckSalientPairPersistence, dict.CheckHighPersistencePairCount:
		d.PersistentPairs = countAtLeast(ev.Pairs, 0.5)
	}
}

func conditionLabel(c dict.Condition) string {
	switch c.Check {
	case dict.CheckKeywordPresent, dict.CheckKeywordSpread, dict.CheckKeywordDensity:
		return c.Check + ":" + c.Keyword
	case dict.CheckCategoryPresent, dict.CheckCategoryCount:
		return c.Check + ":" + c.Category
	case dict.CheckGenrePresent, dict.CheckGenreConfidence:
		return c.Check + ":" + c.Genre
	}
	return c.Check
}

func oneOrMany(one string, many []string) []string {
	if len(many) > 0 {
		return many
	}
	if one == "" {
		return nil
	}
	return []string{one}
}

func countAtLeast(values []float64, floor float64) int {
	n := 0
	for _, v := range values {
		if v >= floor {
			n++
		}
	}
	return n
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
