package togglekit

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	timecache "github.com/agilira/go-timecache"
)

// meet reports whether the condition holds for the user. Unknown condition
// types and unknown predicates are always false; a condition never errors.
// segments may be nil when segment conditions cannot apply (inside a segment
// rule, for instance).
func (c *Condition) meet(user *User, segments map[string]Segment, log *slog.Logger) bool {
	switch c.Type {
	case ConditionString:
		return c.matchString(user, c.Predicate, log)
	case ConditionSegment:
		return c.matchSegment(user, c.Predicate, segments, log)
	case ConditionNumber:
		return c.matchNumber(user, c.Predicate, log)
	case ConditionSemver:
		return c.matchSemver(user, c.Predicate, log)
	case ConditionDatetime:
		return c.matchDatetime(user, c.Predicate, log)
	default:
		return false
	}
}

func (c *Condition) matchString(user *User, predicate string, log *slog.Logger) bool {
	value, ok := user.Get(c.Subject)
	if !ok {
		log.Debug("user attribute missing", "subject", c.Subject)
		return false
	}
	switch predicate {
	case "is one of":
		return c.anyObject(func(o string) bool { return value == o })
	case "ends with":
		return c.anyObject(func(o string) bool { return strings.HasSuffix(value, o) })
	case "starts with":
		return c.anyObject(func(o string) bool { return strings.HasPrefix(value, o) })
	case "contains":
		return c.anyObject(func(o string) bool { return strings.Contains(value, o) })
	case "matches regex":
		return c.anyObject(func(o string) bool {
			re, err := regexp.Compile(o)
			if err != nil {
				// invalid patterns should be rejected at authoring time
				return false
			}
			return re.MatchString(value)
		})
	case "is not any of":
		return !c.matchString(user, "is one of", log)
	case "does not end with":
		return !c.matchString(user, "ends with", log)
	case "does not start with":
		return !c.matchString(user, "starts with", log)
	case "does not contain":
		return !c.matchString(user, "contains", log)
	case "does not match regex":
		return !c.matchString(user, "matches regex", log)
	default:
		log.Debug("unknown predicate", "predicate", predicate)
		return false
	}
}

func (c *Condition) matchNumber(user *User, predicate string, log *slog.Logger) bool {
	raw, ok := user.Get(c.Subject)
	if !ok {
		log.Debug("user attribute missing", "subject", c.Subject)
		return false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false
	}
	compare := func(want func(int) bool) bool {
		return c.anyObject(func(o string) bool {
			obj, err := strconv.ParseFloat(o, 64)
			if err != nil {
				return false
			}
			switch {
			case value < obj:
				return want(-1)
			case value > obj:
				return want(1)
			default:
				return want(0)
			}
		})
	}
	return c.matchOrdering(predicate, compare, func() bool {
		return !c.matchNumber(user, "=", log)
	}, log)
}

func (c *Condition) matchSemver(user *User, predicate string, log *slog.Logger) bool {
	raw, ok := user.Get(c.Subject)
	if !ok {
		log.Debug("user attribute missing", "subject", c.Subject)
		return false
	}
	value, err := semver.NewVersion(raw)
	if err != nil {
		return false
	}
	compare := func(want func(int) bool) bool {
		return c.anyObject(func(o string) bool {
			obj, err := semver.NewVersion(o)
			if err != nil {
				return false
			}
			return want(value.Compare(obj))
		})
	}
	return c.matchOrdering(predicate, compare, func() bool {
		return !c.matchSemver(user, "=", log)
	}, log)
}

// matchOrdering dispatches the shared comparison predicates. compare runs a
// three-way comparison against every object and reports whether any
// satisfies the wanted sign; notEqual handles "!=" as NOT "=" so that the
// negation applies to the whole any-object disjunction.
func (c *Condition) matchOrdering(predicate string, compare func(func(int) bool) bool, notEqual func() bool, log *slog.Logger) bool {
	switch predicate {
	case "=":
		return compare(func(s int) bool { return s == 0 })
	case "!=":
		return notEqual()
	case ">":
		return compare(func(s int) bool { return s > 0 })
	case ">=":
		return compare(func(s int) bool { return s >= 0 })
	case "<":
		return compare(func(s int) bool { return s < 0 })
	case "<=":
		return compare(func(s int) bool { return s <= 0 })
	default:
		log.Debug("unknown predicate", "predicate", predicate)
		return false
	}
}

func (c *Condition) matchDatetime(user *User, predicate string, log *slog.Logger) bool {
	var ts uint64
	if raw, ok := user.Get(c.Subject); ok {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return false
		}
		ts = v
	} else {
		// a datetime condition with no user attribute tests "now"
		ts = uint64(timecache.CachedTimeNano() / 1e9)
	}
	switch predicate {
	case "after":
		return c.anyObject(func(o string) bool {
			obj, err := strconv.ParseUint(o, 10, 64)
			return err == nil && ts >= obj
		})
	case "before":
		return c.anyObject(func(o string) bool {
			obj, err := strconv.ParseUint(o, 10, 64)
			return err == nil && ts < obj
		})
	default:
		log.Debug("unknown predicate", "predicate", predicate)
		return false
	}
}

func (c *Condition) matchSegment(user *User, predicate string, segments map[string]Segment, log *slog.Logger) bool {
	if segments == nil {
		return false
	}
	switch predicate {
	case "is in":
		return c.userInSegments(user, segments, log)
	case "is not in":
		return !c.userInSegments(user, segments, log)
	default:
		log.Debug("unknown predicate", "predicate", predicate)
		return false
	}
}

func (c *Condition) userInSegments(user *User, segments map[string]Segment, log *slog.Logger) bool {
	for _, key := range c.Objects {
		segment, ok := segments[key]
		if !ok {
			log.Warn("segment not found", "segment", key)
			continue
		}
		if segment.contains(user, log) {
			return true
		}
	}
	return false
}

// anyObject reports whether any object satisfies f. Negated predicates apply
// NOT to this disjunction as a whole.
func (c *Condition) anyObject(f func(string) bool) bool {
	for _, o := range c.Objects {
		if f(o) {
			return true
		}
	}
	return false
}

// contains reports whether the user is a member of the segment: any rule
// admitting the user suffices.
func (s *Segment) contains(user *User, log *slog.Logger) bool {
	for _, rule := range s.Rules {
		if rule.allow(user, log) {
			return true
		}
	}
	return false
}

// allow admits the user if any condition matches.
func (r *SegmentRule) allow(user *User, log *slog.Logger) bool {
	for _, c := range r.Conditions {
		if c.meet(user, nil, log) {
			return true
		}
	}
	return false
}
