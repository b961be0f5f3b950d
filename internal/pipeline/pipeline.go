// Package pipeline orchestrates one analysis run. Indexing, salience,
// the relationship matrix and keyword scanning feed the genre pass,
// then the tag pass. A failed stage is logged at RISK level and only
// its dependents are skipped; independent stages keep running.
package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"novel_signals/internal/chapters"
	"novel_signals/internal/charindex"
	"novel_signals/internal/dict"
	"novel_signals/internal/keywords"
	"novel_signals/internal/pairs"
	"novel_signals/internal/rules"
	"novel_signals/internal/salience"
)

// Logger receives stage progress as it happens. A nil logger is fine;
// every line is also captured on the report.
type Logger interface {
	Log(level, stage, message, detail string)
}

// LogLine is one captured progress line. Levels are INFO, ANALYSIS and
// RISK.
type LogLine struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

const (
	StatusCompleted = "completed"
	StatusDegraded  = "completed_with_risks"
	StatusFailed    = "failed"
)

type Config struct {
	Workers               int
	MinSingleWordMentions int
	CoOccurrenceWindow    int
	SalienceThreshold     float64
	MinimumCoPresence     int
	ConfidenceThreshold   float64
	SkipRelationships     bool
	SkipKeywords          bool
}

func DefaultConfig() Config {
	return Config{
		Workers:               getenvInt("NSIG_JOBS", 0),
		MinSingleWordMentions: getenvInt("NSIG_MIN_SINGLE_WORD_MENTIONS", charindex.DefaultMinSingleWordMentions),
		CoOccurrenceWindow:    getenvInt("NSIG_CO_OCCURRENCE_WINDOW", charindex.DefaultCoOccurrenceWindow),
		SalienceThreshold:     getenvFloat("NSIG_SALIENCE_THRESHOLD", pairs.DefaultSalienceThreshold),
		MinimumCoPresence:     getenvInt("NSIG_MINIMUM_CO_PRESENCE", pairs.DefaultMinimumCoPresence),
		ConfidenceThreshold:   getenvFloat("NSIG_CONFIDENCE_THRESHOLD", rules.DefaultConfidenceThreshold),
		SkipRelationships:     getenvBool("NSIG_SKIP_RELATIONSHIPS", false),
		SkipKeywords:          getenvBool("NSIG_SKIP_KEYWORDS", false),
	}
}

// Tables bundles the loaded dictionaries and rule tables for one run.
type Tables struct {
	Exclusions *dict.Exclusions
	Keywords   *dict.KeywordDictionary
	GenreRules *dict.RuleSet
	TagRules   *dict.RuleSet
}

// LoadDefaultTables loads every embedded dictionary.
func LoadDefaultTables() (*Tables, error) {
	ex, err := dict.LoadDefaultExclusions()
	if err != nil {
		return nil, err
	}
	kw, err := dict.LoadDefaultKeywords()
	if err != nil {
		return nil, err
	}
	genres, err := dict.LoadDefaultGenreRules()
	if err != nil {
		return nil, err
	}
	tags, err := dict.LoadDefaultTagRules()
	if err != nil {
		return nil, err
	}
	return &Tables{Exclusions: ex, Keywords: kw, GenreRules: genres, TagRules: tags}, nil
}

// Input is one manuscript ready for analysis.
type Input struct {
	NovelID  string
	Source   string
	Chapters []chapters.Chapter
}

// Report is the run summary persisted as run.json. Stage artifacts ride
// along in memory but are published as separate files.
type Report struct {
	RunID       string    `json:"run_id"`
	NovelID     string    `json:"novel_id"`
	Source      string    `json:"source,omitempty"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Chapters    int       `json:"chapters"`
	Characters  int       `json:"characters"`
	KeywordsHit int       `json:"keywords_found"`
	Risks       int       `json:"risks"`
	Logs        []LogLine `json:"logs"`

	Index    *charindex.Index  `json:"-"`
	Salience *salience.Table   `json:"-"`
	Matrix   *pairs.Matrix     `json:"-"`
	Keywords *keywords.Signals `json:"-"`
	Genres   *rules.Resolution `json:"-"`
	Tags     *rules.Resolution `json:"-"`
}

// Run executes the stage graph over the input. It never returns an
// error: per-stage failures are recorded on the report and reflected in
// its final status.
func Run(in Input, tables *Tables, cfg Config, logger Logger) *Report {
	rep := &Report{
		RunID:     uuid.NewString(),
		NovelID:   in.NovelID,
		Source:    in.Source,
		StartedAt: time.Now().UTC(),
		Chapters:  len(in.Chapters),
	}
	addLog := func(level, stage, message, detail string) {
		rep.Logs = append(rep.Logs, LogLine{
			Time:    time.Now().Format("15:04:05.000"),
			Level:   level,
			Stage:   stage,
			Message: message,
			Detail:  detail,
		})
		if level == "RISK" {
			rep.Risks++
		}
		if logger != nil {
			logger.Log(level, stage, message, detail)
		}
	}

	addLog("INFO", "pipeline", "run started",
		fmt.Sprintf("novel_id=%s chapters=%d", in.NovelID, len(in.Chapters)))

	if tables == nil {
		addLog("RISK", "pipeline", "no dictionaries loaded", "load tables before running")
		rep.Status = StatusFailed
		rep.CompletedAt = time.Now().UTC()
		addLog("INFO", "pipeline", "run finished", rep.Status)
		return rep
	}

	ix, err := charindex.Build(in.NovelID, rep.RunID, in.Chapters, tables.Exclusions, charindex.Config{
		MinSingleWordMentions: cfg.MinSingleWordMentions,
		CoOccurrenceWindow:    cfg.CoOccurrenceWindow,
		Workers:               cfg.Workers,
	})
	if err != nil {
		addLog("RISK", "character_index", "stage failed", err.Error())
	} else {
		rep.Index = ix
		rep.Characters = len(ix.Names)
		addLog("ANALYSIS", "character_index", "name surfaces indexed",
			fmt.Sprintf("names=%d co_occurrence_pairs=%d", len(ix.Names), len(ix.CoOccurrences)))
	}

	if rep.Index == nil {
		addLog("RISK", "character_salience", "stage skipped", "character index unavailable")
	} else if table, err := salience.Score(rep.Index); err != nil {
		addLog("RISK", "character_salience", "stage failed", err.Error())
	} else {
		rep.Salience = table
		addLog("ANALYSIS", "character_salience", "characters scored",
			fmt.Sprintf("characters=%d", len(table.Characters)))
	}

	switch {
	case cfg.SkipRelationships:
		addLog("INFO", "relationship_matrix", "stage skipped", "disabled by configuration")
	case rep.Index == nil || rep.Salience == nil:
		addLog("RISK", "relationship_matrix", "stage skipped", "character index or salience unavailable")
	default:
		mx, err := pairs.Build(rep.Index, rep.Salience, pairs.Config{
			SalienceThreshold: cfg.SalienceThreshold,
			MinimumCoPresence: cfg.MinimumCoPresence,
		})
		if err != nil {
			addLog("RISK", "relationship_matrix", "stage failed", err.Error())
		} else {
			rep.Matrix = mx
			addLog("ANALYSIS", "relationship_matrix", "pair signals built",
				fmt.Sprintf("pairs=%d excluded=%d", len(mx.Pairs), len(mx.ExcludedCharacters)))
		}
	}

	if cfg.SkipKeywords {
		addLog("INFO", "event_keywords", "stage skipped", "disabled by configuration")
	} else if kw, err := keywords.Scan(in.NovelID, rep.RunID, in.Chapters, tables.Keywords, keywords.Config{
		Workers: cfg.Workers,
	}); err != nil {
		addLog("RISK", "event_keywords", "stage failed", err.Error())
	} else {
		rep.Keywords = kw
		rep.KeywordsHit = len(kw.Keywords)
		addLog("ANALYSIS", "event_keywords", "keywords scanned",
			fmt.Sprintf("keywords=%d categories=%d", len(kw.Keywords), len(kw.CategoriesFound)))
	}

	ev := rules.BuildEvidence(rep.Keywords, rep.Salience, rep.Matrix)
	ruleCfg := rules.Config{ConfidenceThreshold: cfg.ConfidenceThreshold}

	genres, err := rules.ResolveGenres(in.NovelID, rep.RunID, tables.GenreRules, ev, ruleCfg)
	if err != nil {
		addLog("RISK", "genre_resolved", "stage failed", err.Error())
	} else {
		rep.Genres = genres
		addLog("ANALYSIS", "genre_resolved", "genres resolved",
			fmt.Sprintf("genres=%d", len(genres.Resolved)))
	}

	tags, err := rules.ResolveTags(in.NovelID, rep.RunID, tables.TagRules, ev.WithGenres(rep.Genres), ruleCfg)
	if err != nil {
		addLog("RISK", "tag_resolved", "stage failed", err.Error())
	} else {
		rep.Tags = tags
		addLog("ANALYSIS", "tag_resolved", "tags resolved",
			fmt.Sprintf("tags=%d", len(tags.Resolved)))
	}

	switch {
	case rep.Index == nil && rep.Keywords == nil:
		rep.Status = StatusFailed
	case rep.Risks > 0:
		rep.Status = StatusDegraded
	default:
		rep.Status = StatusCompleted
	}
	rep.CompletedAt = time.Now().UTC()
	addLog("INFO", "pipeline", "run finished", rep.Status)
	return rep
}

func getenvInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getenvFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getenvBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	return raw == "1" || raw == "true" || raw == "yes" || raw == "on"
}
