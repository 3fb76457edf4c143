package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Interval is a repeating step expressed in calendar-ish units.
// All components are non-negative. The zero value means "no interval".
type Interval struct {
	Weeks   int
	Days    int
	Hours   int
	Minutes int
}

// Zero reports whether all components are zero.
func (iv Interval) Zero() bool {
	return iv.Weeks == 0 && iv.Days == 0 && iv.Hours == 0 && iv.Minutes == 0
}

// Duration converts the interval to a flat time.Duration.
func (iv Interval) Duration() time.Duration {
	return time.Duration(iv.Weeks)*7*24*time.Hour +
		time.Duration(iv.Days)*24*time.Hour +
		time.Duration(iv.Hours)*time.Hour +
		time.Duration(iv.Minutes)*time.Minute
}

// String returns the canonical expression for the interval (see BuildExpr).
func (iv Interval) String() string { return BuildExpr(iv) }

// ParseExpr parses a token expression like "d2h4m30" into an Interval.
//
// Grammar: a sequence of unit tokens, each a letter from {w,d,h,m} followed by
// one or more digits. Parsing is case-insensitive and ignores surrounding
// whitespace. Repeated tokens accumulate ("d1d2" means 3 days). An empty or
// blank expression is the zero Interval, not an error.
func ParseExpr(expr string) (Interval, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	var iv Interval
	if s == "" {
		return iv, nil
	}
	for i := 0; i < len(s); {
		unit := s[i]
		dst, ok := iv.field(unit)
		if !ok {
			return Interval{}, fmt.Errorf("invalid token %q in expression %q", string(unit), s)
		}
		i++
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if start == i {
			return Interval{}, fmt.Errorf("missing number after %q in %q", string(unit), s)
		}
		n, err := strconv.Atoi(s[start:i])
		if err != nil {
			return Interval{}, fmt.Errorf("invalid number after %q in %q: %w", string(unit), s, err)
		}
		*dst += n
	}
	return iv, nil
}

func (iv *Interval) field(unit byte) (*int, bool) {
	switch unit {
	case 'w':
		return &iv.Weeks, true
	case 'd':
		return &iv.Days, true
	case 'h':
		return &iv.Hours, true
	case 'm':
		return &iv.Minutes, true
	default:
		return nil, false
	}
}

// BuildExpr renders an Interval in canonical form: tokens in w,d,h,m order,
// zero components omitted. The all-zero interval renders as "m0" so the
// result is always parseable.
func BuildExpr(iv Interval) string {
	var b strings.Builder
	if iv.Weeks != 0 {
		b.WriteByte('w')
		b.WriteString(strconv.Itoa(iv.Weeks))
	}
	if iv.Days != 0 {
		b.WriteByte('d')
		b.WriteString(strconv.Itoa(iv.Days))
	}
	if iv.Hours != 0 {
		b.WriteByte('h')
		b.WriteString(strconv.Itoa(iv.Hours))
	}
	if iv.Minutes != 0 {
		b.WriteByte('m')
		b.WriteString(strconv.Itoa(iv.Minutes))
	}
	if b.Len() == 0 {
		return "m0"
	}
	return b.String()
}

// ParseIntervalOffset splits a combined "<interval>@<offset>" expression.
//
// The part left of the first '@' is the repeating interval, the part right of
// it the one-time offset from the anchor. A missing '@' (or an empty right
// side) yields a zero offset. Either side may be empty.
func ParseIntervalOffset(expr string) (interval, offset Interval, err error) {
	s := strings.TrimSpace(expr)
	left, right, found := strings.Cut(s, "@")
	interval, err = ParseExpr(left)
	if err != nil {
		return Interval{}, Interval{}, err
	}
	if found {
		offset, err = ParseExpr(right)
		if err != nil {
			return Interval{}, Interval{}, err
		}
	}
	return interval, offset, nil
}
