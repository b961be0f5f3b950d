package pipeline

import (
	"strings"
	"testing"

	"novel_signals/internal/chapters"
)

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Log(level, stage, message, detail string) {
	l.lines = append(l.lines, level+" "+stage+" "+message)
}

func (l *recordingLogger) has(fragment string) bool {
	for _, line := range l.lines {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

func sampleChapters() []chapters.Chapter {
	texts := []string{
		"Kaelin Voss opened her eyes after the rebirth. Kaelin knew this was her reincarnation. Serannis watched Kaelin from the doorway.",
		"Serannis drew her blade for the battle. Kaelin fought beside Serannis until the clash ended.",
		"Kaelin spoke of her reincarnation once more. Serannis listened while the system hummed in silence.",
	}
	chs := make([]chapters.Chapter, len(texts))
	for i, text := range texts {
		seq := i + 1
		chs[i] = chapters.Chapter{Seq: seq, ID: chapters.MakeID(seq), Title: "", Text: text}
	}
	return chs
}

func loadTables(t *testing.T) *Tables {
	t.Helper()
	tables, err := LoadDefaultTables()
	if err != nil {
		t.Fatalf("load tables: %v", err)
	}
	return tables
}

func TestRunFullPipeline(t *testing.T) {
	tables := loadTables(t)
	logger := &recordingLogger{}
	rep := Run(Input{NovelID: "novel_test", Source: "sample.txt", Chapters: sampleChapters()},
		tables, DefaultConfig(), logger)

	if rep.Status != StatusCompleted || rep.Risks != 0 {
		t.Fatalf("status %s risks %d, logs: %v", rep.Status, rep.Risks, logger.lines)
	}
	if rep.RunID == "" {
		t.Fatal("run id not assigned")
	}
	if rep.Index == nil || rep.Salience == nil || rep.Matrix == nil ||
		rep.Keywords == nil || rep.Genres == nil || rep.Tags == nil {
		t.Fatalf("missing artifacts on completed run: %+v", rep)
	}
	if rep.Chapters != 3 || rep.Characters != 3 || rep.KeywordsHit != 3 {
		t.Fatalf("counts = chapters %d characters %d keywords %d",
			rep.Chapters, rep.Characters, rep.KeywordsHit)
	}
	if rep.Index.RunID != rep.RunID || rep.Genres.RunID != rep.RunID {
		t.Fatalf("run id not propagated into artifacts")
	}
	if len(rep.Genres.Resolved) == 0 || len(rep.Tags.Resolved) == 0 {
		t.Fatalf("expected resolved labels, genres=%d tags=%d",
			len(rep.Genres.Resolved), len(rep.Tags.Resolved))
	}
	if !logger.has("INFO pipeline run started") || !logger.has("INFO pipeline run finished") {
		t.Fatalf("missing pipeline bookends in %v", logger.lines)
	}

	again := Run(Input{NovelID: "novel_test", Source: "sample.txt", Chapters: sampleChapters()},
		tables, DefaultConfig(), nil)
	if again.RunID == rep.RunID {
		t.Fatal("run ids must be unique per run")
	}
}

func TestRunKeywordPathSurvivesIndexDegradation(t *testing.T) {
	tables := loadTables(t)
	logger := &recordingLogger{}
	chs := []chapters.Chapter{{
		Seq:  1,
		ID:   chapters.MakeID(1),
		Text: "the battle raged for days. soldiers fought and died in silence.",
	}}
	rep := Run(Input{NovelID: "novel_low", Chapters: chs}, tables, DefaultConfig(), logger)

	if rep.Status != StatusDegraded {
		t.Fatalf("status = %s, logs: %v", rep.Status, logger.lines)
	}
	if rep.Salience != nil || rep.Matrix != nil {
		t.Fatal("character stages should have degraded")
	}
	if rep.Keywords == nil || rep.Genres == nil || rep.Tags == nil {
		t.Fatal("keyword and resolution path should survive")
	}
	if !logger.has("RISK character_salience stage failed") {
		t.Fatalf("expected salience risk in %v", logger.lines)
	}
	if !logger.has("RISK relationship_matrix stage skipped") {
		t.Fatalf("expected matrix skip in %v", logger.lines)
	}
	if len(rep.Genres.Resolved) == 0 {
		t.Fatal("conflict keywords should still resolve genres")
	}
}

func TestRunSkipFlags(t *testing.T) {
	tables := loadTables(t)
	logger := &recordingLogger{}
	cfg := DefaultConfig()
	cfg.SkipRelationships = true
	cfg.SkipKeywords = true
	rep := Run(Input{NovelID: "novel_skips", Chapters: sampleChapters()}, tables, cfg, logger)

	if rep.Status != StatusCompleted || rep.Risks != 0 {
		t.Fatalf("skips must not count as risks: status %s risks %d", rep.Status, rep.Risks)
	}
	if rep.Matrix != nil || rep.Keywords != nil {
		t.Fatal("skipped stages should not produce artifacts")
	}
	if !logger.has("INFO relationship_matrix stage skipped") || !logger.has("INFO event_keywords stage skipped") {
		t.Fatalf("missing skip lines in %v", logger.lines)
	}
	last := rep.Genres.Warnings[len(rep.Genres.Warnings)-1]
	if last != "No event keywords data available - genre resolution limited" {
		t.Fatalf("genre warnings = %v", rep.Genres.Warnings)
	}
}

func TestRunWithoutGenreTablesSkipsTags(t *testing.T) {
	tables := loadTables(t)
	tables.GenreRules = nil
	logger := &recordingLogger{}
	rep := Run(Input{NovelID: "novel_nogenre", Chapters: sampleChapters()}, tables, DefaultConfig(), logger)

	if rep.Genres != nil || rep.Tags != nil {
		t.Fatal("tag pass must not run without the genre pass")
	}
	if rep.Status != StatusDegraded {
		t.Fatalf("status = %s", rep.Status)
	}
	if !logger.has("RISK genre_resolved stage failed") || !logger.has("RISK tag_resolved stage failed") {
		t.Fatalf("missing resolution risks in %v", logger.lines)
	}
}

func TestDefaultConfigReadsEnv(t *testing.T) {
	t.Setenv("NSIG_JOBS", "3")
	t.Setenv("NSIG_SALIENCE_THRESHOLD", "0.25")
	t.Setenv("NSIG_MINIMUM_CO_PRESENCE", "2")
	t.Setenv("NSIG_SKIP_KEYWORDS", "yes")

	cfg := DefaultConfig()
	if cfg.Workers != 3 || cfg.SalienceThreshold != 0.25 || cfg.MinimumCoPresence != 2 || !cfg.SkipKeywords {
		t.Fatalf("env not honored: %+v", cfg)
	}
}

func TestDefaultConfigFallbacks(t *testing.T) {
	for _, name := range []string{
		"NSIG_JOBS",
		"NSIG_MIN_SINGLE_WORD_MENTIONS",
		"NSIG_CO_OCCURRENCE_WINDOW",
		"NSIG_SALIENCE_THRESHOLD",
		"NSIG_MINIMUM_CO_PRESENCE",
		"NSIG_CONFIDENCE_THRESHOLD",
		"NSIG_SKIP_RELATIONSHIPS",
		"NSIG_SKIP_KEYWORDS",
	} {
		t.Setenv(name, "")
	}

	cfg := DefaultConfig()
	if cfg.MinSingleWordMentions != 2 || cfg.CoOccurrenceWindow != 3 {
		t.Fatalf("index defaults: %+v", cfg)
	}
	if cfg.SalienceThreshold != 0.1 || cfg.MinimumCoPresence != 1 || cfg.ConfidenceThreshold != 0.3 {
		t.Fatalf("threshold defaults: %+v", cfg)
	}
	if cfg.SkipRelationships || cfg.SkipKeywords {
		t.Fatalf("skip defaults: %+v", cfg)
	}
}
