package bsonvalue

import "bytes"

// typeClass buckets a Kind into the total type-order spec:
// MinKey < Null < Number < String < Document < Array < Binary <
// ObjectID < Bool < Date/Timestamp < Regex < MaxKey.
func typeClass(k Kind) int {
	switch k {
	case KindMinKey:
		return 0
	case KindNull:
		return 1
	case KindInt32, KindInt64, KindDouble:
		return 2
	case KindString:
		return 3
	case KindDocument:
		return 4
	case KindArray:
		return 5
	case KindBinary:
		return 6
	case KindObjectID:
		return 7
	case KindBool:
		return 8
	case KindDateTime, KindTimestamp:
		return 9
	case KindRegex:
		return 10
	case KindMaxKey:
		return 11
	default:
		return 12
	}
}

func numericValue(v Value) float64 {
	switch v.Kind {
	case KindInt32:
		return float64(v.Int32)
	case KindInt64:
		return float64(v.Int64)
	case KindDouble:
		return v.Double
	}
	return 0
}

// Compare implements the BSON-style total order across kinds, falling
// back to a within-kind comparison for values of the same type class.
func Compare(a, b Value) int {
	ca, cb := typeClass(a.Kind), typeClass(b.Kind)
	if ca != cb {
		if ca < cb {
			return -1
		}
		return 1
	}

	switch ca {
	case 2: // numbers compare by value across int32/int64/double
		na, nb := numericValue(a), numericValue(b)
		if na < nb {
			return -1
		}
		if na > nb {
			return 1
		}
		return 0
	case 3:
		return bytes.Compare([]byte(a.Str), []byte(b.Str))
	case 4:
		return compareDocuments(a.Doc, b.Doc)
	case 5:
		return compareArrays(a.Array, b.Array)
	case 6:
		if a.BinSubtype != b.BinSubtype {
			if a.BinSubtype < b.BinSubtype {
				return -1
			}
			return 1
		}
		return bytes.Compare(a.Bin, b.Bin)
	case 7:
		return a.OID.Compare(b.OID)
	case 8:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	case 9:
		av, bv := dateOrdinal(a), dateOrdinal(b)
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
		return 0
	case 10:
		if a.RegexPat != b.RegexPat {
			return bytes.Compare([]byte(a.RegexPat), []byte(b.RegexPat))
		}
		return bytes.Compare([]byte(a.RegexOpts), []byte(b.RegexOpts))
	default:
		return 0
	}
}

func dateOrdinal(v Value) int64 {
	if v.Kind == KindTimestamp {
		return int64(v.TimeT)*1000 + int64(v.TimeI)
	}
	return v.DateTime
}

func compareDocuments(a, b []Field) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := bytes.Compare([]byte(a[i].Name), []byte(b[i].Name)); c != 0 {
			return c
		}
		if c := Compare(a[i].Value, b[i].Value); c != 0 {
			return c
		}
	}
	if len(a) < len(b) {
		return -1
	}
	if len(a) > len(b) {
		return 1
	}
	return 0
}

func compareArrays(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	if len(a) < len(b) {
		return -1
	}
	if len(a) > len(b) {
		return 1
	}
	return 0
}

// Equal reports whether a and b compare equal under Compare.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}
