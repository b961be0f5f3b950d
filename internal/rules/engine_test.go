package rules

import (
	"reflect"
	"testing"

	"novel_signals/internal/dict"
	"novel_signals/internal/faults"
	"novel_signals/internal/keywords"
	"novel_signals/internal/pairs"
	"novel_signals/internal/salience"
)

// transmigrationEvidence mimics a novel whose keyword scan found
// rebirth terms in two chapters and a single transmigration mention.
func transmigrationEvidence() Evidence {
	return Evidence{
		Keywords: map[string]KeywordFact{
			"reincarnation":  {Spread: 2, Density: 2.5},
			"transmigration": {Spread: 1, Density: 1.0},
		},
		Categories: map[string][]string{
			"transmigration": {"reincarnation", "transmigration"},
		},
	}
}

func testRuleSet(rules ...dict.Rule) *dict.RuleSet {
	taxonomy := make(map[string]string, len(rules))
	for _, r := range rules {
		taxonomy[r.ID] = r.ID
	}
	return &dict.RuleSet{
		TaxonomyVersion: "1.0.0",
		RuleVersion:     "test",
		Taxonomy:        taxonomy,
		Rules:           rules,
	}
}

func TestResolveGenresAgainstDefaultTable(t *testing.T) {
	rs, err := dict.LoadDefaultGenreRules()
	if err != nil {
		t.Fatalf("load genre rules: %v", err)
	}
	res, err := ResolveGenres("novel-1", "run-1", rs, transmigrationEvidence(), Config{})
	if err != nil {
		t.Fatalf("resolve genres: %v", err)
	}
	if res.TaxonomyVersion != "1.0.0" || res.RuleVersion != "1.1.0" {
		t.Fatalf("versions = %s / %s", res.TaxonomyVersion, res.RuleVersion)
	}
	if res.Threshold != DefaultConfidenceThreshold {
		t.Fatalf("threshold = %v", res.Threshold)
	}

	want := []struct {
		id   string
		conf float64
	}{
		{"isekai", 0.8},
		{"reincarnation", 0.65},
		{"fantasy", 0.4},
		{"drama", 0.3},
		{"harem", 0.3},
		{"supernatural", 0.3},
	}
	if len(res.Resolved) != len(want) {
		t.Fatalf("resolved %d genres, want %d: %+v", len(res.Resolved), len(want), res.Resolved)
	}
	for i, w := range want {
		got := res.Resolved[i]
		if got.ID != w.id || got.Confidence != w.conf {
			t.Errorf("resolved[%d] = %s %.4f, want %s %.4f", i, got.ID, got.Confidence, w.id, w.conf)
		}
	}

	isekai := res.Resolved[0]
	if isekai.DisplayName != "Isekai" {
		t.Errorf("isekai display name = %q", isekai.DisplayName)
	}
	if isekai.Scoring.BaseScore != 0.5 || isekai.Scoring.BoostsApplied != 0.3 || isekai.Scoring.PenaltiesApplied != 0 {
		t.Errorf("isekai scoring = %+v", isekai.Scoring)
	}
	if !reflect.DeepEqual(isekai.Evidence.Keywords, []string{"transmigration"}) {
		t.Errorf("isekai keyword evidence = %v", isekai.Evidence.Keywords)
	}
	if isekai.Evidence.KeywordSpreads["reincarnation"] != 2 {
		t.Errorf("isekai spread evidence = %v", isekai.Evidence.KeywordSpreads)
	}
	if res.Resolved[1].Evidence.KeywordDensities["reincarnation"] != 2.5 {
		t.Errorf("reincarnation density evidence = %v", res.Resolved[1].Evidence.KeywordDensities)
	}
	if len(res.Warnings) != 4 {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestResolveGenresWarnsWithoutKeywordData(t *testing.T) {
	rs, err := dict.LoadDefaultGenreRules()
	if err != nil {
		t.Fatalf("load genre rules: %v", err)
	}
	res, err := ResolveGenres("novel-1", "run-1", rs, Evidence{}, Config{})
	if err != nil {
		t.Fatalf("resolve genres: %v", err)
	}
	last := res.Warnings[len(res.Warnings)-1]
	if last != "No event keywords data available - genre resolution limited" {
		t.Fatalf("last warning = %q", last)
	}
}

func TestThresholdIsInclusive(t *testing.T) {
	rs := testRuleSet(
		dict.Rule{ID: "at", BaseScore: 0.3},
		dict.Rule{ID: "below", BaseScore: 0.2999},
	)
	res, err := ResolveGenres("n", "r", rs, Evidence{}, Config{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Resolved) != 1 || res.Resolved[0].ID != "at" || res.Resolved[0].Confidence != 0.3 {
		t.Fatalf("resolved = %+v", res.Resolved)
	}
}

func TestRequiredGateExcludesDespiteBoosts(t *testing.T) {
	rs := testRuleSet(dict.Rule{
		ID:        "gated",
		BaseScore: 0.9,
		Required: []dict.Condition{
			{Check: dict.CheckCategoryPresent, Category: "cultivation"},
		},
		Boosts: []dict.Condition{
			{Check: dict.CheckKeywordPresent, Keyword: "battle", Weight: 0.1},
		},
	})
	ev := Evidence{Keywords: map[string]KeywordFact{"battle": {Spread: 2, Density: 1.0}}}
	res, err := ResolveGenres("n", "r", rs, ev, Config{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Resolved) != 0 {
		t.Fatalf("gated rule resolved anyway: %+v", res.Resolved)
	}
}

func TestConfidenceClampsToOne(t *testing.T) {
	rs := testRuleSet(dict.Rule{
		ID:        "high",
		BaseScore: 0.9,
		Boosts: []dict.Condition{
			{Check: dict.CheckKeywordPresent, Keyword: "battle", Weight: 0.3},
			{Check: dict.CheckKeywordPresent, Keyword: "death", Weight: 0.3},
		},
	})
	ev := Evidence{Keywords: map[string]KeywordFact{
		"battle": {Spread: 1, Density: 1.0},
		"death":  {Spread: 1, Density: 1.0},
	}}
	res, err := ResolveGenres("n", "r", rs, ev, Config{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Resolved) != 1 || res.Resolved[0].Confidence != 1.0 {
		t.Fatalf("resolved = %+v", res.Resolved)
	}
	if res.Resolved[0].Scoring.BoostsApplied != 0.6 {
		t.Errorf("boosts applied = %v", res.Resolved[0].Scoring.BoostsApplied)
	}
}

func TestPenaltiesSubtractAndAreRecorded(t *testing.T) {
	rs := testRuleSet(dict.Rule{
		ID:        "soft",
		BaseScore: 0.6,
		Penalties: []dict.Condition{
			{Check: dict.CheckCategoryPresent, Category: "system", Weight: 0.1},
		},
	})
	ev := Evidence{Categories: map[string][]string{"system": {"level_up"}}}
	res, err := ResolveGenres("n", "r", rs, ev, Config{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Resolved) != 1 {
		t.Fatalf("resolved = %+v", res.Resolved)
	}
	got := res.Resolved[0]
	if got.Confidence != 0.5 || got.Scoring.PenaltiesApplied != 0.1 {
		t.Errorf("confidence %v penalties %v", got.Confidence, got.Scoring.PenaltiesApplied)
	}
	if !reflect.DeepEqual(got.Evidence.Penalties, []string{"category_present:system"}) {
		t.Errorf("penalty labels = %v", got.Evidence.Penalties)
	}
}

func TestSalienceAndPairEvidence(t *testing.T) {
	rs := testRuleSet(dict.Rule{
		ID:        "ensemble",
		BaseScore: 0.2,
		Boosts: []dict.Condition{
			{Check: dict.CheckSalientCharacterCount, MinCount: 2, MinSalience: 0.5, Weight: 0.2},
			{Check: dict.CheckHighPersistencePairCount, MinCount: 1, MinPersistence: 0.6, Weight: 0.1},
		},
	})
	ev := Evidence{
		Salience: []float64{0.9, 0.6, 0.3},
		Pairs:    []float64{0.9, 0.55, 0.4},
	}
	res, err := ResolveGenres("n", "r", rs, ev, Config{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Resolved) != 1 || res.Resolved[0].Confidence != 0.5 {
		t.Fatalf("resolved = %+v", res.Resolved)
	}
	got := res.Resolved[0]
	if got.Evidence.SalientCharacters != 2 {
		t.Errorf("salient characters = %d", got.Evidence.SalientCharacters)
	}
	// Recorded pair count uses the 0.5 persistence floor, not the
	// condition's own threshold.
	if got.Evidence.PersistentPairs != 2 {
		t.Errorf("persistent pairs = %d", got.Evidence.PersistentPairs)
	}
}

func TestAnyOfFormsMatchWithoutRecording(t *testing.T) {
	rs := testRuleSet(dict.Rule{
		ID:        "broad",
		BaseScore: 0.2,
		Boosts: []dict.Condition{
			{Check: dict.CheckKeywordPresent, Keywords: []string{"ghost", "battle"}, Weight: 0.2},
			{Check: dict.CheckCategoryPresent, Categories: []string{"nope", "conflict"}, Weight: 0.1},
		},
	})
	ev := Evidence{
		Keywords:   map[string]KeywordFact{"battle": {Spread: 1, Density: 1.0}},
		Categories: map[string][]string{"conflict": {"battle"}},
	}
	res, err := ResolveGenres("n", "r", rs, ev, Config{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Resolved) != 1 || res.Resolved[0].Confidence != 0.5 {
		t.Fatalf("resolved = %+v", res.Resolved)
	}
	got := res.Resolved[0]
	if len(got.Evidence.Keywords) != 0 || len(got.Evidence.Categories) != 0 {
		t.Errorf("any-of evidence should stay unattributed, got %+v", got.Evidence)
	}
}

func TestResolveTagsRequiresGenrePass(t *testing.T) {
	rs, err := dict.LoadDefaultTagRules()
	if err != nil {
		t.Fatalf("load tag rules: %v", err)
	}
	_, err = ResolveTags("n", "r", rs, transmigrationEvidence(), Config{})
	if !faults.IsInput(err) {
		t.Fatalf("tags without genres: %v", err)
	}
}

func TestResolveTagsAgainstDefaultTable(t *testing.T) {
	genreRS, err := dict.LoadDefaultGenreRules()
	if err != nil {
		t.Fatalf("load genre rules: %v", err)
	}
	tagRS, err := dict.LoadDefaultTagRules()
	if err != nil {
		t.Fatalf("load tag rules: %v", err)
	}
	ev := transmigrationEvidence()
	genres, err := ResolveGenres("novel-1", "run-1", genreRS, ev, Config{})
	if err != nil {
		t.Fatalf("resolve genres: %v", err)
	}
	res, err := ResolveTags("novel-1", "run-1", tagRS, ev.WithGenres(genres), Config{})
	if err != nil {
		t.Fatalf("resolve tags: %v", err)
	}
	if len(res.Resolved) != 1 {
		t.Fatalf("resolved = %+v", res.Resolved)
	}
	got := res.Resolved[0]
	if got.ID != "reincarnation" || got.DisplayName != "Reincarnation" || got.Confidence != 0.75 {
		t.Fatalf("tag = %s %q %.4f", got.ID, got.DisplayName, got.Confidence)
	}
	if !reflect.DeepEqual(got.Evidence.GenresPresent, []string{"reincarnation"}) {
		t.Errorf("genre evidence = %v", got.Evidence.GenresPresent)
	}
	if len(res.Warnings) != 5 {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestGenreConfidenceCheck(t *testing.T) {
	rs := testRuleSet(dict.Rule{
		ID:        "melodrama",
		BaseScore: 0.2,
		Required: []dict.Condition{
			{Check: dict.CheckGenrePresent, Genre: "drama"},
		},
		Boosts: []dict.Condition{
			{Check: dict.CheckGenreConfidence, Genre: "drama", MinConfidence: 0.4, Weight: 0.2},
		},
	})
	ev := Evidence{}.WithGenres(&Resolution{Resolved: []Resolved{{ID: "drama", Confidence: 0.5}}})
	res, err := ResolveTags("n", "r", rs, ev, Config{})
	if err != nil {
		t.Fatalf("resolve tags: %v", err)
	}
	if len(res.Resolved) != 1 || res.Resolved[0].Confidence != 0.4 {
		t.Fatalf("resolved = %+v", res.Resolved)
	}
}

func TestBuildEvidenceFreezesArtifacts(t *testing.T) {
	kw := &keywords.Signals{
		Keywords: map[string]keywords.Signal{
			"battle": {Category: "conflict", NarrativeSpread: 3, Density: 2.0},
		},
		CategoriesFound: map[string][]string{"conflict": {"battle"}},
	}
	table := &salience.Table{Characters: []salience.Record{
		{Name: "Aldric", SalienceScore: 0.8},
		{Name: "Bronn", SalienceScore: 0.4},
	}}
	mx := &pairs.Matrix{Pairs: map[string]pairs.Signal{
		"Aldric|Bronn":  {Persistence: 0.7},
		"Aldric|Corvin": {Persistence: 0.2},
	}}

	ev := BuildEvidence(kw, table, mx)
	if ev.Keywords["battle"] != (KeywordFact{Spread: 3, Density: 2.0}) {
		t.Errorf("keyword fact = %+v", ev.Keywords["battle"])
	}
	if !reflect.DeepEqual(ev.Categories["conflict"], []string{"battle"}) {
		t.Errorf("categories = %v", ev.Categories)
	}
	if !reflect.DeepEqual(ev.Salience, []float64{0.8, 0.4}) {
		t.Errorf("salience = %v", ev.Salience)
	}
	if !reflect.DeepEqual(ev.Pairs, []float64{0.7, 0.2}) {
		t.Errorf("pairs = %v", ev.Pairs)
	}
	if ev.Genres != nil {
		t.Errorf("genres should stay nil before the genre pass")
	}

	empty := BuildEvidence(nil, nil, nil)
	if empty.Keywords == nil || empty.Categories == nil {
		t.Errorf("nil artifacts should still yield usable maps")
	}
}

func TestResolveGenresIsDeterministic(t *testing.T) {
	rs, err := dict.LoadDefaultGenreRules()
	if err != nil {
		t.Fatalf("load genre rules: %v", err)
	}
	first, err := ResolveGenres("novel-1", "run-1", rs, transmigrationEvidence(), Config{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for i := 0; i < 4; i++ {
		again, err := ResolveGenres("novel-1", "run-1", rs, transmigrationEvidence(), Config{})
		if err != nil {
			t.Fatalf("resolve repeat %d: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("repeat %d diverged", i)
		}
	}
}
