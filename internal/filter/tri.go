package filter

// Tri is a three-valued truth: comparisons against null are Unknown, and
// only True rows match.
type Tri int8

const (
	False Tri = iota
	Unknown
	True
)

func triOf(b bool) Tri {
	if b {
		return True
	}
	return False
}

func (t Tri) Not() Tri {
	switch t {
	case True:
		return False
	case False:
		return True
	}
	return Unknown
}

// And folds values with SQL AND; the empty conjunction is True.
func And(values ...Tri) Tri {
	out := True
	for _, v := range values {
		if v == False {
			return False
		}
		if v == Unknown {
			out = Unknown
		}
	}
	return out
}

// Or folds values with SQL OR; the empty disjunction is False.
func Or(values ...Tri) Tri {
	out := False
	for _, v := range values {
		if v == True {
			return True
		}
		if v == Unknown {
			out = Unknown
		}
	}
	return out
}
