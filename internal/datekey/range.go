package datekey

import "iter"

// Range is an inclusive span of dates. A zero Start or End leaves that side
// open.
type Range struct {
	Start Key
	End   Key
}

// Contains reports whether k falls inside r.
func (r Range) Contains(k Key) bool {
	if !r.Start.IsZero() && k.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && r.End.Before(k) {
		return false
	}
	return true
}

// IsOpen reports whether r places no restriction on dates.
func (r Range) IsOpen() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Days yields every date in r in ascending order. Both ends must be set.
func (r Range) Days() iter.Seq[Key] {
	return func(yield func(Key) bool) {
		if r.Start.IsZero() || r.End.IsZero() {
			return
		}
		for k := r.Start; !r.End.Before(k); k = k.AddDays(1) {
			if !yield(k) {
				return
			}
		}
	}
}
