package togglekit

import (
	"fmt"
	"log/slog"
	"reflect"
)

// DefaultMaxPrerequisitesDeep bounds prerequisite recursion when the host
// does not configure a limit.
const DefaultMaxPrerequisitesDeep = 20

// evalParams carries the borrowed repository snapshot and per-call state
// through one evaluation. Prerequisite recursion stays within the same
// snapshot, so no additional locking happens below this point.
type evalParams struct {
	key            string
	isDetail       bool
	user           *User
	variations     []any
	segments       map[string]Segment
	toggles        map[string]Toggle
	debugUntilTime *uint64
	log            *slog.Logger
}

// variation is a resolved toggle value together with its index.
type variation struct {
	value any
	index int
}

// Eval evaluates the toggle for the user against the given repository maps.
// It never fails visibly: internal errors fold into a disabled-style result
// whose reason carries the diagnostic.
func (t *Toggle) Eval(user *User, segments map[string]Segment, toggles map[string]Toggle,
	isDetail bool, maxDepth int, debugUntilTime *uint64) EvalDetail {
	return t.evalWithLogger(user, segments, toggles, isDetail, maxDepth, debugUntilTime, slog.Default())
}

func (t *Toggle) evalWithLogger(user *User, segments map[string]Segment, toggles map[string]Toggle,
	isDetail bool, maxDepth int, debugUntilTime *uint64, log *slog.Logger) EvalDetail {
	p := &evalParams{
		key:            t.Key,
		isDetail:       isDetail,
		user:           user,
		variations:     t.Variations,
		segments:       segments,
		toggles:        toggles,
		debugUntilTime: debugUntilTime,
		log:            log,
	}
	return t.eval(p, maxDepth)
}

func (t *Toggle) eval(p *evalParams, maxDepth int) EvalDetail {
	detail, err := t.doEval(p, maxDepth)
	if err != nil {
		return t.disabledVariation(p, err.Error())
	}
	return detail
}

func (t *Toggle) doEval(p *evalParams, maxDepth int) (EvalDetail, error) {
	if !t.Enabled {
		return t.disabledVariation(p, ""), nil
	}

	met, err := t.meetPrerequisites(p, maxDepth)
	if err != nil {
		return EvalDetail{}, err
	}
	if !met {
		return t.disabledVariation(p, "Prerequisite not match"), nil
	}

	for i, rule := range t.Rules {
		v, matched, err := rule.serveVariation(p)
		if err != nil {
			// a broken serve stops the scan; later rules and the default
			// must not mask it
			return t.serveVariation(nil, err.Error(), &i, p.debugUntilTime), nil
		}
		if matched {
			return t.serveVariation(&v, fmt.Sprintf("rule %d.", i), &i, p.debugUntilTime), nil
		}
	}

	return t.defaultVariation(p, ""), nil
}

// meetPrerequisites reports whether every prerequisite toggle currently
// resolves to its required value. Depth exhaustion and dangling references
// are errors; a plain value mismatch is not.
func (t *Toggle) meetPrerequisites(p *evalParams, depth int) (bool, error) {
	if depth == 0 {
		return false, ErrPrerequisiteDepthOverflow
	}
	for _, pre := range t.Prerequisites {
		dep, ok := p.toggles[pre.Key]
		if !ok {
			return false, &PrerequisiteNotExistError{Key: pre.Key}
		}
		detail, err := dep.doEval(&evalParams{
			key:            dep.Key,
			isDetail:       p.isDetail,
			user:           p.user,
			variations:     dep.Variations,
			segments:       p.segments,
			toggles:        p.toggles,
			debugUntilTime: p.debugUntilTime,
			log:            p.log,
		}, depth-1)
		if err != nil {
			return false, err
		}
		if detail.Value == nil || !reflect.DeepEqual(detail.Value, pre.Value) {
			return false, nil
		}
	}
	return true, nil
}

// serveVariation assembles an EvalDetail for the resolved (or failed)
// variation v.
func (t *Toggle) serveVariation(v *variation, reason string, ruleIndex *int, debugUntilTime *uint64) EvalDetail {
	detail := EvalDetail{
		RuleIndex:         ruleIndex,
		Version:           &t.Version,
		TrackAccessEvents: t.TrackAccessEvents,
		LastModified:      t.LastModified,
		DebugUntilTime:    debugUntilTime,
		Reason:            reason,
	}
	if v != nil {
		detail.Value = v.value
		index := v.index
		detail.VariationIndex = &index
	}
	return detail
}

func (t *Toggle) defaultVariation(p *evalParams, diagnostic string) EvalDetail {
	return t.fixedVariation(&t.DefaultServe, p, "default.", diagnostic)
}

func (t *Toggle) disabledVariation(p *evalParams, diagnostic string) EvalDetail {
	return t.fixedVariation(&t.DisabledServe, p, "disabled.", diagnostic)
}

func (t *Toggle) fixedVariation(serve *Serve, p *evalParams, reason, diagnostic string) EvalDetail {
	v, err := serve.selectVariation(p)
	if err != nil {
		return t.serveVariation(nil, concatReason(err.Error(), diagnostic), nil, p.debugUntilTime)
	}
	return t.serveVariation(&v, concatReason(reason, diagnostic), nil, p.debugUntilTime)
}

func concatReason(reason, diagnostic string) string {
	if diagnostic == "" {
		return reason
	}
	return reason + " " + diagnostic + "."
}

// serveVariation resolves the rule's serve if all conditions match. The
// second return reports whether the rule applied.
func (r *Rule) serveVariation(p *evalParams) (variation, bool, error) {
	for _, c := range r.Conditions {
		if !c.meet(p.user, p.segments, p.log) {
			return variation{}, false, nil
		}
	}
	v, err := r.Serve.selectVariation(p)
	if err != nil {
		return variation{}, false, err
	}
	return v, true, nil
}

// selectVariation maps the serve to a concrete variation value, failing on
// an out-of-range index or an unresolvable split.
func (s *Serve) selectVariation(p *evalParams) (variation, error) {
	var index int
	switch {
	case s.Select != nil:
		index = *s.Select
	case s.Split != nil:
		i, err := s.Split.findIndex(p)
		if err != nil {
			return variation{}, err
		}
		index = i
	default:
		if p.isDetail {
			return variation{}, &EvalDetailError{Message: "serve has neither select nor split"}
		}
		return variation{}, ErrEval
	}

	if index < 0 || index >= len(p.variations) {
		if p.isDetail {
			return variation{}, &EvalDetailError{Message: fmt.Sprintf(
				"index %d overflow, variations count is %d", index, len(p.variations))}
		}
		return variation{}, ErrEval
	}
	return variation{value: p.variations[index], index: index}, nil
}
