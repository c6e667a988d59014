package togglekit

import (
	timecache "github.com/agilira/go-timecache"
)

// AccessEvent describes one toggle evaluation for analytics purposes.
type AccessEvent struct {
	Time           uint64  `json:"time"`
	Key            string  `json:"key"`
	Value          any     `json:"value"`
	VariationIndex *int    `json:"variationIndex,omitempty"`
	RuleIndex      *int    `json:"ruleIndex,omitempty"`
	Version        *uint64 `json:"version,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	User           string  `json:"user"`
}

// AccessRecorder receives access events for toggles that track them.
// Implementations must not block; RecordAccess is called on the
// evaluation path.
type AccessRecorder interface {
	RecordAccess(event AccessEvent)
}

// nowUnixMilli reads the cached wall clock; evaluation-path timestamps do
// not need syscall precision.
func nowUnixMilli() uint64 {
	return uint64(timecache.CachedTimeNano() / 1e6)
}
