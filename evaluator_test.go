package togglekit

import (
	"os"
	"reflect"
	"strings"
	"testing"
)

func loadTestRepo(t *testing.T) *Repository {
	t.Helper()
	body, err := os.ReadFile("testdata/repo.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	repo, err := DecodeRepository(body)
	if err != nil {
		t.Fatalf("DecodeRepository() error = %v", err)
	}
	return &repo
}

func evalToggle(t *testing.T, repo *Repository, key string, user *User, isDetail bool) EvalDetail {
	t.Helper()
	tg, ok := repo.Toggles[key]
	if !ok {
		t.Fatalf("fixture has no toggle %q", key)
	}
	return tg.Eval(user, repo.Segments, repo.Toggles, isDetail, DefaultMaxPrerequisitesDeep, repo.DebugUntilTime)
}

func TestEvalDefaultServe(t *testing.T) {
	repo := loadTestRepo(t)
	d := evalToggle(t, repo, "bool_toggle", NewUser(), true)
	if d.Value != true {
		t.Fatalf("Value = %v, want true", d.Value)
	}
	if d.Reason != "default." {
		t.Fatalf("Reason = %q, want %q", d.Reason, "default.")
	}
	if d.RuleIndex != nil {
		t.Fatalf("RuleIndex = %v, want nil", *d.RuleIndex)
	}
	if d.VariationIndex == nil || *d.VariationIndex != 1 {
		t.Fatalf("VariationIndex = %v, want 1", d.VariationIndex)
	}
	if d.Version == nil || *d.Version != 1 {
		t.Fatalf("Version = %v, want 1", d.Version)
	}
}

func TestEvalDisabled(t *testing.T) {
	repo := loadTestRepo(t)
	d := evalToggle(t, repo, "disabled_toggle", NewUser(), true)
	if d.Value != false {
		t.Fatalf("Value = %v, want false", d.Value)
	}
	if d.Reason != "disabled." {
		t.Fatalf("Reason = %q, want %q", d.Reason, "disabled.")
	}
}

func TestEvalRuleMatch(t *testing.T) {
	repo := loadTestRepo(t)

	d := evalToggle(t, repo, "string_toggle", NewUser().With("city", "1"), true)
	if d.Value != "b" {
		t.Fatalf("Value = %v, want %q", d.Value, "b")
	}
	if d.Reason != "rule 0." {
		t.Fatalf("Reason = %q, want %q", d.Reason, "rule 0.")
	}
	if d.RuleIndex == nil || *d.RuleIndex != 0 {
		t.Fatalf("RuleIndex = %v, want 0", d.RuleIndex)
	}

	d = evalToggle(t, repo, "string_toggle", NewUser().With("city", "9"), true)
	if d.Value != "a" {
		t.Fatalf("Value = %v, want %q", d.Value, "a")
	}
	if d.Reason != "default." {
		t.Fatalf("Reason = %q, want %q", d.Reason, "default.")
	}
}

func TestEvalMultiConditionRule(t *testing.T) {
	repo := loadTestRepo(t)

	// rule conditions AND together
	hit := NewUser().With("city", "1").With("os", "linux")
	if d := evalToggle(t, repo, "multi_condition_toggle", hit, false); d.Value != "hit" {
		t.Fatalf("Value = %v, want %q", d.Value, "hit")
	}

	partial := NewUser().With("city", "1")
	if d := evalToggle(t, repo, "multi_condition_toggle", partial, false); d.Value != "miss" {
		t.Fatalf("Value = %v, want %q", d.Value, "miss")
	}
}

func TestEvalFirstMatchingRuleWins(t *testing.T) {
	repo := loadTestRepo(t)

	// city 1 matches rule 0; city 2 only matches the segment rule
	d := evalToggle(t, repo, "json_toggle", NewUser().With("city", "1"), true)
	want := map[string]any{"variation": float64(0)}
	if !reflect.DeepEqual(d.Value, want) {
		t.Fatalf("Value = %v, want %v", d.Value, want)
	}

	d = evalToggle(t, repo, "json_toggle", NewUser().With("city", "2"), true)
	want = map[string]any{"variation": float64(1)}
	if !reflect.DeepEqual(d.Value, want) {
		t.Fatalf("Value = %v, want %v", d.Value, want)
	}
	if d.RuleIndex == nil || *d.RuleIndex != 1 {
		t.Fatalf("RuleIndex = %v, want 1", d.RuleIndex)
	}

	// no rule matches, the default split covers the whole bucket space
	// with variation 2
	d = evalToggle(t, repo, "json_toggle", NewUser().With("city", "9"), true)
	want = map[string]any{"variation": float64(2)}
	if !reflect.DeepEqual(d.Value, want) {
		t.Fatalf("Value = %v, want %v", d.Value, want)
	}
}

func TestEvalNotInSegment(t *testing.T) {
	repo := loadTestRepo(t)

	if d := evalToggle(t, repo, "not_in_segment", NewUser().With("city", "9"), false); d.Value != "out" {
		t.Fatalf("Value = %v, want %q", d.Value, "out")
	}
	if d := evalToggle(t, repo, "not_in_segment", NewUser().With("city", "1"), false); d.Value != "in" {
		t.Fatalf("Value = %v, want %q", d.Value, "in")
	}
}

func TestEvalSplitIsStable(t *testing.T) {
	repo := loadTestRepo(t)
	user := NewUser().StableRollout("stable-user")

	first := evalToggle(t, repo, "split_toggle", user, true)
	bucket := saltHash("stable-user", "split_salt", bucketSize)
	tg := repo.Toggles["split_toggle"]
	wantIndex, ok := tg.DefaultServe.Split.lookupBucket(bucket)
	if !ok {
		t.Fatalf("bucket %d not covered", bucket)
	}
	if first.VariationIndex == nil || *first.VariationIndex != wantIndex {
		t.Fatalf("VariationIndex = %v, want %d", first.VariationIndex, wantIndex)
	}

	for i := 0; i < 10; i++ {
		again := evalToggle(t, repo, "split_toggle", NewUser().StableRollout("stable-user"), true)
		if again.Value != first.Value {
			t.Fatalf("split not stable: %v vs %v", again.Value, first.Value)
		}
	}
}

func TestEvalPrerequisiteMet(t *testing.T) {
	repo := loadTestRepo(t)
	d := evalToggle(t, repo, "prerequisite_toggle", NewUser(), true)
	if d.Value != "z" {
		t.Fatalf("Value = %v, want %q", d.Value, "z")
	}
	if d.Reason != "default." {
		t.Fatalf("Reason = %q, want %q", d.Reason, "default.")
	}
}

func TestEvalPrerequisiteNotMatch(t *testing.T) {
	repo := loadTestRepo(t)
	d := evalToggle(t, repo, "prerequisite_not_match", NewUser(), true)
	if d.Value != "off" {
		t.Fatalf("Value = %v, want %q", d.Value, "off")
	}
	if !strings.Contains(d.Reason, "disabled.") || !strings.Contains(d.Reason, "Prerequisite not match") {
		t.Fatalf("Reason = %q, want disabled with prerequisite diagnostic", d.Reason)
	}
}

func TestEvalPrerequisiteNotExist(t *testing.T) {
	repo := loadTestRepo(t)
	d := evalToggle(t, repo, "prerequisite_not_exist", NewUser(), true)
	if d.Value != "off" {
		t.Fatalf("Value = %v, want %q", d.Value, "off")
	}
	if !strings.Contains(d.Reason, "missing_toggle") {
		t.Fatalf("Reason = %q, want mention of the missing prerequisite", d.Reason)
	}
}

func TestEvalPrerequisiteCycle(t *testing.T) {
	repo := loadTestRepo(t)
	d := evalToggle(t, repo, "prerequisite_cycle_a", NewUser(), true)
	if d.Value != false {
		t.Fatalf("Value = %v, want false", d.Value)
	}
	if !strings.Contains(d.Reason, "prerequisite depth overflow") {
		t.Fatalf("Reason = %q, want depth overflow", d.Reason)
	}
}

func TestEvalPrerequisiteDepthLimit(t *testing.T) {
	repo := loadTestRepo(t)
	tg := repo.Toggles["prerequisite_toggle"]

	// depth 2 is enough for one level of prerequisites, depth 1 is not:
	// the dependency's own (empty) prerequisite scan still charges a level
	d := tg.Eval(NewUser(), repo.Segments, repo.Toggles, true, 2, nil)
	if d.Value != "z" {
		t.Fatalf("depth 2: Value = %v, want %q", d.Value, "z")
	}
	d = tg.Eval(NewUser(), repo.Segments, repo.Toggles, true, 1, nil)
	if !strings.Contains(d.Reason, "prerequisite depth overflow") {
		t.Fatalf("depth 1: Reason = %q, want depth overflow", d.Reason)
	}
}

func TestEvalServeIndexOverflow(t *testing.T) {
	repo := loadTestRepo(t)

	d := evalToggle(t, repo, "overflow_toggle", NewUser(), true)
	if d.Value != nil {
		t.Fatalf("Value = %v, want nil", d.Value)
	}
	if !strings.Contains(d.Reason, "index 5 overflow, variations count is 2") {
		t.Fatalf("Reason = %q, want index overflow diagnostic", d.Reason)
	}

	// non-detail mode trades the message for the generic error
	d = evalToggle(t, repo, "overflow_toggle", NewUser(), false)
	if d.Value != nil {
		t.Fatalf("Value = %v, want nil", d.Value)
	}
	if !strings.Contains(d.Reason, "evaluation error") {
		t.Fatalf("Reason = %q, want evaluation error", d.Reason)
	}
}

func TestEvalRuleServeErrorStopsScan(t *testing.T) {
	repo := loadTestRepo(t)
	d := evalToggle(t, repo, "rule_error_toggle", NewUser(), true)
	if d.Value != nil {
		t.Fatalf("Value = %v, want nil (default must not mask the rule error)", d.Value)
	}
	if d.RuleIndex == nil || *d.RuleIndex != 0 {
		t.Fatalf("RuleIndex = %v, want 0", d.RuleIndex)
	}
	if !strings.Contains(d.Reason, "overflow") {
		t.Fatalf("Reason = %q, want overflow diagnostic", d.Reason)
	}
}

func TestEvalCarriesTrackingFields(t *testing.T) {
	repo := loadTestRepo(t)
	d := evalToggle(t, repo, "track_toggle", NewUser(), true)
	if d.TrackAccessEvents == nil || !*d.TrackAccessEvents {
		t.Fatalf("TrackAccessEvents = %v, want true", d.TrackAccessEvents)
	}
	if d.LastModified == nil || *d.LastModified != 1700000000 {
		t.Fatalf("LastModified = %v, want 1700000000", d.LastModified)
	}
}
