package togglekit

// Detail reports a typed evaluation result together with where it came from.
type Detail[T any] struct {
	Value          T
	RuleIndex      *int
	VariationIndex *int
	Version        *uint64
	Reason         string
}

// detailOf narrows an untyped EvalDetail into a Detail[T], substituting the
// caller's default when the value is absent or of the wrong dynamic type.
func detailOf[T any](raw EvalDetail, defaultValue T, cast func(any) (T, bool)) Detail[T] {
	detail := Detail[T]{
		Value:          defaultValue,
		RuleIndex:      raw.RuleIndex,
		VariationIndex: raw.VariationIndex,
		Version:        raw.Version,
		Reason:         raw.Reason,
	}
	if raw.Value == nil {
		return detail
	}
	v, ok := cast(raw.Value)
	if !ok {
		detail.Reason = "Value type mismatch."
		return detail
	}
	detail.Value = v
	return detail
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asNumber(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asJSON(v any) (any, bool) {
	return v, true
}
