package reconcile

import "time"

// localDate renders an instant as the business's calendar day. Shifting into
// the configured zone before splitting off the date is what keeps a 7pm
// Central appointment from landing on tomorrow's date.
func localDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// firstNonNil returns the first non-nil candidate, or nil.
func firstNonNil[T any](candidates ...*T) *T {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

func ptrIf[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}
