package record

import (
	"cmp"
	"fmt"
)

// Compare orders two canonical values. Numbers compare across INT and FLOAT,
// false sorts before true.
func Compare(a, b any) (int, error) {
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return cmp.Compare(av, bv), nil
		case float64:
			return cmp.Compare(float64(av), bv), nil
		}
	case float64:
		switch bv := b.(type) {
		case int64:
			return cmp.Compare(av, float64(bv)), nil
		case float64:
			return cmp.Compare(av, bv), nil
		}
	case string:
		if bv, ok := b.(string); ok {
			return cmp.Compare(av, bv), nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, nil
			case !av:
				return -1, nil
			default:
				return 1, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: cannot compare %v (%T) with %v (%T)", ErrTypeMismatch, a, a, b, b)
}

// Equal reports whether two canonical values are equal, values of
// incomparable types are never equal.
func Equal(a, b any) bool {
	c, err := Compare(a, b)
	return err == nil && c == 0
}
