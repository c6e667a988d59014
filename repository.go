package togglekit

import (
	"encoding/json"
	"fmt"
)

// Repository is the complete cached snapshot of toggle and segment
// definitions fetched from the remote service. It is immutable once
// constructed: the Synchronizer replaces it wholesale, never field by field.
type Repository struct {
	Segments       map[string]Segment `json:"segments"`
	Toggles        map[string]Toggle  `json:"toggles"`
	Events         json.RawMessage    `json:"events,omitempty"`
	Version        *uint64            `json:"version,omitempty"`
	DebugUntilTime *uint64            `json:"debugUntilTime,omitempty"`
}

// DecodeRepository parses a remote toggles payload.
func DecodeRepository(body []byte) (Repository, error) {
	var repo Repository
	if err := json.Unmarshal(body, &repo); err != nil {
		return Repository{}, &JSONError{Body: string(body), Err: err}
	}
	return repo, nil
}

func (r *Repository) versionOrZero() uint64 {
	if r == nil || r.Version == nil {
		return 0
	}
	return *r.Version
}

// Toggle is a named feature flag: enable state, targeting rules, variations
// and optional prerequisites on other toggles.
type Toggle struct {
	Key               string         `json:"key"`
	Enabled           bool           `json:"enabled"`
	TrackAccessEvents *bool          `json:"trackAccessEvents,omitempty"`
	LastModified      *uint64        `json:"lastModified,omitempty"`
	Version           uint64         `json:"version"`
	ForClient         bool           `json:"forClient"`
	DisabledServe     Serve          `json:"disabledServe"`
	DefaultServe      Serve          `json:"defaultServe"`
	Rules             []Rule         `json:"rules"`
	Variations        []any          `json:"variations"`
	Prerequisites     []Prerequisite `json:"prerequisites,omitempty"`
}

// Prerequisite gates a toggle on another toggle's resolved value.
type Prerequisite struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Rule is an ordered, conditionally-applied serve strategy. All conditions
// must hold for the rule to apply.
type Rule struct {
	Serve      Serve       `json:"serve"`
	Conditions []Condition `json:"conditions"`
}

// Serve resolves which variation to return: a fixed index or a percentage
// split. Exactly one of Select and Split is set; the wire form is the tagged
// object {"select": i} or {"split": {...}}.
type Serve struct {
	Select *int          `json:"select,omitempty"`
	Split  *Distribution `json:"split,omitempty"`
}

// Distribution maps hash buckets in [0, 10000) to variation indexes.
// Distribution[i] holds the half-open sub-ranges assigned to variation i.
type Distribution struct {
	Distribution [][]BucketRange `json:"distribution"`
	BucketBy     string          `json:"bucketBy,omitempty"`
	Salt         string          `json:"salt,omitempty"`
}

// BucketRange is a half-open bucket interval [Lower, Upper). The wire form
// is a two-element array.
type BucketRange struct {
	Lower uint32
	Upper uint32
}

func (r *BucketRange) UnmarshalJSON(b []byte) error {
	var pair []uint32
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("bucket range must have 2 elements, got %d", len(pair))
	}
	r.Lower, r.Upper = pair[0], pair[1]
	return nil
}

func (r BucketRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint32{r.Lower, r.Upper})
}

// Condition types as they appear on the wire. Anything else evaluates to
// false rather than failing deserialization.
const (
	ConditionString   = "string"
	ConditionSegment  = "segment"
	ConditionDatetime = "datetime"
	ConditionNumber   = "number"
	ConditionSemver   = "semver"
)

// Condition is a single typed predicate over a user attribute (or segment
// membership).
type Condition struct {
	Type      string   `json:"type"`
	Subject   string   `json:"subject,omitempty"`
	Predicate string   `json:"predicate"`
	Objects   []string `json:"objects"`
}

// Segment is a reusable named membership rule set. A user is a member if any
// of its rules admits them.
type Segment struct {
	UniqueID string        `json:"uniqueId"`
	Version  uint64        `json:"version"`
	Rules    []SegmentRule `json:"rules"`
}

// SegmentRule admits a user if any of its conditions matches (OR), unlike
// toggle rules which require all conditions (AND).
type SegmentRule struct {
	Conditions []Condition `json:"conditions"`
}

// EvalDetail is the full diagnostic result of one toggle evaluation. Value
// is nil when serve resolution failed; callers substitute their own default.
type EvalDetail struct {
	Value             any     `json:"value"`
	RuleIndex         *int    `json:"ruleIndex,omitempty"`
	TrackAccessEvents *bool   `json:"trackAccessEvents,omitempty"`
	DebugUntilTime    *uint64 `json:"debugUntilTime,omitempty"`
	LastModified      *uint64 `json:"lastModified,omitempty"`
	VariationIndex    *int    `json:"variationIndex,omitempty"`
	Version           *uint64 `json:"version,omitempty"`
	Reason            string  `json:"reason"`
}
