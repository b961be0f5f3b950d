// Package dict holds the versioned, static configuration consumed by the
// signal stages: the name-filter word lists, the event keyword dictionary
// and the genre/tag rule tables. Defaults are embedded; every loader
// validates before returning so a malformed table never reaches a stage.
package dict

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"novel_signals/internal/faults"
)

//go:embed exclusions.json
var exclusionsJSON []byte

//go:embed keywords.json
var keywordsJSON []byte

//go:embed genre_rules.json
var genreRulesJSON []byte

//go:embed tag_rules.json
var tagRulesJSON []byte

// Condition check kinds understood by the rule engine.
const (
	CheckKeywordPresent           = "keyword_present"
	CheckCategoryPresent          = "category_present"
	CheckKeywordSpread            = "keyword_spread"
	CheckKeywordDensity           = "keyword_density"
	CheckCategoryCount            = "category_count"
	CheckSalientCharacterCount    = "salient_character_count"
	CheckSalientPairPersistence   = "salient_pair_persistence"
	CheckHighPersistencePairCount = "high_persistence_pair_count"
	CheckGenrePresent             = "genre_present"
	CheckGenreConfidence          = "genre_confidence"
)

// Exclusions answers case-insensitive membership for words that must not
// stand alone as character names. The excluded and discourse lists are
// kept separate on disk but merge into one filter surface.
type Exclusions struct {
	words map[string]struct{}
}

func (e *Exclusions) Contains(word string) bool {
	_, ok := e.words[strings.ToLower(word)]
	return ok
}

func (e *Exclusions) Len() int { return len(e.words) }

type exclusionsFile struct {
	ExcludedWords  []string `json:"excluded_words"`
	DiscourseWords []string `json:"discourse_words"`
}

func LoadDefaultExclusions() (*Exclusions, error) {
	return parseExclusions(exclusionsJSON)
}

func LoadExclusionsFile(path string) (*Exclusions, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Config("character_index", "exclusions file unreadable", err)
	}
	return parseExclusions(raw)
}

func parseExclusions(raw []byte) (*Exclusions, error) {
	var f exclusionsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, faults.Config("character_index", "malformed exclusions file", err)
	}
	words := make(map[string]struct{}, len(f.ExcludedWords)+len(f.DiscourseWords))
	for _, list := range [][]string{f.ExcludedWords, f.DiscourseWords} {
		for _, w := range list {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				words[w] = struct{}{}
			}
		}
	}
	if len(words) == 0 {
		return nil, faults.Config("character_index", "exclusions file lists no words", nil)
	}
	return &Exclusions{words: words}, nil
}

// Keyword is one dictionary entry. Matching is whole-word and
// case-insensitive unless CaseSensitive is set.
type Keyword struct {
	ID            string   `json:"id"`
	Category      string   `json:"category"`
	Terms         []string `json:"terms"`
	CaseSensitive bool     `json:"case_sensitive,omitempty"`

	patterns []*regexp.Regexp
}

// Patterns returns one compiled word-boundary pattern per term.
func (k *Keyword) Patterns() []*regexp.Regexp { return k.patterns }

type KeywordDictionary struct {
	Version  string    `json:"version"`
	Keywords []Keyword `json:"keywords"`
}

func LoadDefaultKeywords() (*KeywordDictionary, error) {
	return parseKeywords(keywordsJSON)
}

func LoadKeywordsFile(path string) (*KeywordDictionary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Config("event_keywords", "keyword dictionary unreadable", err)
	}
	return parseKeywords(raw)
}

func parseKeywords(raw []byte) (*KeywordDictionary, error) {
	var d KeywordDictionary
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, faults.Config("event_keywords", "malformed keyword dictionary", err)
	}
	if d.Version == "" {
		return nil, faults.Config("event_keywords", "keyword dictionary missing version", nil)
	}
	if len(d.Keywords) == 0 {
		return nil, faults.Config("event_keywords", "keyword dictionary lists no keywords", nil)
	}

	seen := make(map[string]struct{}, len(d.Keywords))
	for i := range d.Keywords {
		kw := &d.Keywords[i]
		if kw.ID == "" || kw.Category == "" {
			return nil, faults.Config("event_keywords",
				fmt.Sprintf("keyword %d missing id or category", i), nil)
		}
		if _, dup := seen[kw.ID]; dup {
			return nil, faults.Config("event_keywords",
				fmt.Sprintf("duplicate keyword id %q", kw.ID), nil)
		}
		seen[kw.ID] = struct{}{}
		if len(kw.Terms) == 0 {
			return nil, faults.Config("event_keywords",
				fmt.Sprintf("keyword %q lists no terms", kw.ID), nil)
		}
		kw.patterns = make([]*regexp.Regexp, 0, len(kw.Terms))
		for _, term := range kw.Terms {
			if strings.TrimSpace(term) == "" {
				return nil, faults.Config("event_keywords",
					fmt.Sprintf("keyword %q has an empty term", kw.ID), nil)
			}
			expr := `\b` + regexp.QuoteMeta(term) + `\b`
			if !kw.CaseSensitive {
				expr = `(?i)` + expr
			}
			p, err := regexp.Compile(expr)
			if err != nil {
				return nil, faults.Config("event_keywords",
					fmt.Sprintf("keyword %q term %q does not compile", kw.ID, term), err)
			}
			kw.patterns = append(kw.patterns, p)
		}
	}
	return &d, nil
}

// Condition is one predicate inside a rule. Check selects the kind; the
// remaining fields carry its arguments. Weight is set only on boosts and
// penalties.
type Condition struct {
	Check          string   `json:"check"`
	Keyword        string   `json:"keyword,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	Category       string   `json:"category,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	Genre          string   `json:"genre,omitempty"`
	MinSpread      int      `json:"min_spread,omitempty"`
	MinDensity     float64  `json:"min_density,omitempty"`
	MinCount       int      `json:"min_count,omitempty"`
	MinSalience    float64  `json:"min_salience,omitempty"`
	MinPersistence float64  `json:"min_persistence,omitempty"`
	MinConfidence  float64  `json:"min_confidence,omitempty"`
	Weight         float64  `json:"weight,omitempty"`
}

// Rule resolves one label. Required conditions are a hard gate: if any
// fails the label scores zero. Otherwise confidence starts at BaseScore,
// adds the weight of each holding boost and subtracts the weight of each
// holding penalty.
type Rule struct {
	ID        string      `json:"id"`
	BaseScore float64     `json:"base_score"`
	Required  []Condition `json:"required,omitempty"`
	Boosts    []Condition `json:"boosts,omitempty"`
	Penalties []Condition `json:"penalties,omitempty"`
}

// RuleSet is one resolution tier: the label taxonomy (id to display
// name) plus the rules that score against it.
type RuleSet struct {
	TaxonomyVersion string            `json:"taxonomy_version"`
	RuleVersion     string            `json:"rule_version"`
	Taxonomy        map[string]string `json:"taxonomy"`
	Rules           []Rule            `json:"rules"`
}

// DisplayName returns the human-readable name for a label id, falling
// back to the id itself.
func (rs *RuleSet) DisplayName(id string) string {
	if name, ok := rs.Taxonomy[id]; ok && name != "" {
		return name
	}
	return id
}

func LoadDefaultGenreRules() (*RuleSet, error) {
	return parseRuleSet(genreRulesJSON, "genre_resolved", false)
}

func LoadDefaultTagRules() (*RuleSet, error) {
	return parseRuleSet(tagRulesJSON, "tag_resolved", true)
}

func LoadGenreRulesFile(path string) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Config("genre_resolved", "rule table unreadable", err)
	}
	return parseRuleSet(raw, "genre_resolved", false)
}

func LoadTagRulesFile(path string) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Config("tag_resolved", "rule table unreadable", err)
	}
	return parseRuleSet(raw, "tag_resolved", true)
}

func parseRuleSet(raw []byte, stage string, allowGenreChecks bool) (*RuleSet, error) {
	var rs RuleSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, faults.Config(stage, "malformed rule table", err)
	}
	if rs.TaxonomyVersion == "" || rs.RuleVersion == "" {
		return nil, faults.Config(stage, "rule table missing version fields", nil)
	}
	if len(rs.Taxonomy) == 0 {
		return nil, faults.Config(stage, "rule table has an empty taxonomy", nil)
	}

	seen := make(map[string]struct{}, len(rs.Rules))
	for _, rule := range rs.Rules {
		if rule.ID == "" {
			return nil, faults.Config(stage, "rule with empty id", nil)
		}
		if _, dup := seen[rule.ID]; dup {
			return nil, faults.Config(stage, fmt.Sprintf("duplicate rule id %q", rule.ID), nil)
		}
		seen[rule.ID] = struct{}{}
		if _, ok := rs.Taxonomy[rule.ID]; !ok {
			return nil, faults.Config(stage,
				fmt.Sprintf("rule %q is not in the taxonomy", rule.ID), nil)
		}
		if rule.BaseScore < 0 || rule.BaseScore > 1 {
			return nil, faults.Config(stage,
				fmt.Sprintf("rule %q base_score %v outside [0,1]", rule.ID, rule.BaseScore), nil)
		}
		for i, c := range rule.Required {
			if c.Weight != 0 {
				return nil, faults.Config(stage,
					fmt.Sprintf("rule %q required %d carries a weight", rule.ID, i), nil)
			}
			if err := checkCondition(c, allowGenreChecks); err != nil {
				return nil, faults.Config(stage,
					fmt.Sprintf("rule %q required %d: %v", rule.ID, i, err), nil)
			}
		}
		for i, c := range rule.Boosts {
			if c.Weight <= 0 || c.Weight > 1 {
				return nil, faults.Config(stage,
					fmt.Sprintf("rule %q boost %d weight %v outside (0,1]", rule.ID, i, c.Weight), nil)
			}
			if err := checkCondition(c, allowGenreChecks); err != nil {
				return nil, faults.Config(stage,
					fmt.Sprintf("rule %q boost %d: %v", rule.ID, i, err), nil)
			}
		}
		for i, c := range rule.Penalties {
			if c.Weight <= 0 || c.Weight > 1 {
				return nil, faults.Config(stage,
					fmt.Sprintf("rule %q penalty %d weight %v outside (0,1]", rule.ID, i, c.Weight), nil)
			}
			if err := checkCondition(c, allowGenreChecks); err != nil {
				return nil, faults.Config(stage,
					fmt.Sprintf("rule %q penalty %d: %v", rule.ID, i, err), nil)
			}
		}
	}
	return &rs, nil
}

func checkCondition(c Condition, allowGenreChecks bool) error {
	switch c.Check {
	case CheckKeywordPresent:
		if (c.Keyword == "") == (len(c.Keywords) == 0) {
			return fmt.Errorf("%s needs exactly one of keyword or keywords", c.Check)
		}
	case CheckCategoryPresent:
		if (c.Category == "") == (len(c.Categories) == 0) {
			return fmt.Errorf("%s needs exactly one of category or categories", c.Check)
		}
	case CheckKeywordSpread:
		if c.Keyword == "" || c.MinSpread < 1 {
			return fmt.Errorf("%s needs keyword and min_spread >= 1", c.Check)
		}
	case CheckKeywordDensity:
		if c.Keyword == "" || c.MinDensity <= 0 {
			return fmt.Errorf("%s needs keyword and min_density > 0", c.Check)
		}
	case CheckCategoryCount:
		if c.Category == "" || c.MinCount < 1 {
			return fmt.Errorf("%s needs category and min_count >= 1", c.Check)
		}
	case CheckSalientCharacterCount:
		if c.MinCount < 1 || c.MinSalience < 0 || c.MinSalience > 1 {
			return fmt.Errorf("%s needs min_count >= 1 and min_salience in [0,1]", c.Check)
		}
	case CheckSalientPairPersistence:
		if c.MinPersistence <= 0 || c.MinPersistence > 1 {
			return fmt.Errorf("%s needs min_persistence in (0,1]", c.Check)
		}
	case CheckHighPersistencePairCount:
		if c.MinCount < 1 || c.MinPersistence <= 0 || c.MinPersistence > 1 {
			return fmt.Errorf("%s needs min_count >= 1 and min_persistence in (0,1]", c.Check)
		}
	case CheckGenrePresent:
		if !allowGenreChecks {
			return fmt.Errorf("%s is only valid in tag rules", c.Check)
		}
		if c.Genre == "" {
			return fmt.Errorf("%s needs genre", c.Check)
		}
	case CheckGenreConfidence:
		if !allowGenreChecks {
			return fmt.Errorf("%s is only valid in tag rules", c.Check)
		}
		if c.Genre == "" || c.MinConfidence <= 0 || c.MinConfidence > 1 {
			return fmt.Errorf("%s needs genre and min_confidence in (0,1]", c.Check)
		}
	default:
		return fmt.Errorf("unknown check %q", c.Check)
	}
	return nil
}
