package kvstore

import "strings"

// Range selects index values. The zero value matches everything.
type Range struct {
	lower, upper         any
	hasLower, hasUpper   bool
	lowerOpen, upperOpen bool
}

// All matches every record.
func All() Range { return Range{} }

// Only matches records whose indexed value equals v.
func Only(v any) Range {
	return Range{lower: v, upper: v, hasLower: true, hasUpper: true}
}

// LowerBound matches values >= v, or > v when open.
func LowerBound(v any, open bool) Range {
	return Range{lower: v, hasLower: true, lowerOpen: open}
}

// UpperBound matches values <= v, or < v when open.
func UpperBound(v any, open bool) Range {
	return Range{upper: v, hasUpper: true, upperOpen: open}
}

// Bound matches values between lo and hi.
func Bound(lo, hi any, loOpen, hiOpen bool) Range {
	return Range{
		lower: lo, upper: hi,
		hasLower: true, hasUpper: true,
		lowerOpen: loOpen, upperOpen: hiOpen,
	}
}

// where renders the range as a SQL condition over expr.
func (r Range) where(expr string) (string, []any) {
	var conds []string
	var args []any
	if r.hasLower {
		op := ">="
		if r.lowerOpen {
			op = ">"
		}
		conds = append(conds, expr+" "+op+" ?")
		args = append(args, r.lower)
	}
	if r.hasUpper {
		op := "<="
		if r.upperOpen {
			op = "<"
		}
		conds = append(conds, expr+" "+op+" ?")
		args = append(args, r.upper)
	}
	if len(conds) == 0 {
		return "1", nil
	}
	return strings.Join(conds, " AND "), args
}
