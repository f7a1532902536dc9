// Package temporal extracts date-range constraints from natural-language
// time references. Parsing never fails: a query with no recognizable time
// reference yields a nil constraint with full confidence (certainty that no
// time reference is present).
package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

// rule pairs a precompiled matcher with its handler. Rules are evaluated in
// declaration order; the first match wins.
type rule struct {
	re      *regexp.Regexp
	handler func(m []string, ref time.Time, loc *time.Location) *types.TemporalConstraint
}

// Parser parses time references relative to a caller-supplied reference
// instant and timezone. Zero-value construction is not supported; use
// NewParser so the rule tables are compiled once.
type Parser struct {
	relative []rule
	absolute []rule
	fuzzy    []rule
}

// NewParser returns a Parser with all pattern tables compiled.
func NewParser() *Parser {
	p := &Parser{}

	p.relative = []rule{
		{regexp.MustCompile(`(?i)\byesterday\b`), p.handleYesterday},
		{regexp.MustCompile(`(?i)\btoday\b`), p.handleToday},
		{regexp.MustCompile(`(?i)\blast\s+week\b`), p.handleLastWeek},
		{regexp.MustCompile(`(?i)\blast\s+month\b`), p.handleLastMonth},
		{regexp.MustCompile(`(?i)\b(\d+)\s+days?\s+ago\b`), p.handleDaysAgo},
		{regexp.MustCompile(`(?i)\b(\d+)\s+weeks?\s+ago\b`), p.handleWeeksAgo},
		{regexp.MustCompile(`(?i)\b(\d+)\s+months?\s+ago\b`), p.handleMonthsAgo},
	}

	p.absolute = []rule{
		{regexp.MustCompile(`(?i)\b(january|february|march|april|june|july|august|september|october|november|december)\b(?:\s+(\d{4}))?`), p.handleMonth},
		// "may" doubles as a modal verb; a bare mention only counts as the
		// month with a preposition or an explicit year.
		{regexp.MustCompile(`(?i)\b(?:in|during|last|since|before|after)\s+(may)\b(?:\s+(\d{4}))?`), p.handleMonth},
		{regexp.MustCompile(`(?i)\b(may)\s+(\d{4})\b`), p.handleMonth},
	}

	p.fuzzy = []rule{
		{regexp.MustCompile(`(?i)\brecently\b`), p.handleRecently},
		{regexp.MustCompile(`(?i)\ba\s+while\s+(?:back|ago)\b`), p.handleWhileBack},
		{regexp.MustCompile(`(?i)\ba\s+few\s+months\s+ago\b`), p.handleFewMonthsAgo},
		{regexp.MustCompile(`(?i)\b(spring|summer|fall|autumn|winter)\b`), p.handleSeason},
	}

	return p
}

// Parse extracts a temporal constraint from query. The reference instant is
// interpreted in loc (UTC when nil). Returns nil when the query carries no
// time reference; that outcome has confidence 1.0 by definition.
func (p *Parser) Parse(query string, ref time.Time, loc *time.Location) *types.TemporalConstraint {
	if loc == nil {
		loc = time.UTC
	}
	ref = ref.In(loc)

	for _, table := range [][]rule{p.relative, p.absolute, p.fuzzy} {
		for _, r := range table {
			if m := r.re.FindStringSubmatch(query); m != nil {
				return r.handler(m, ref, loc)
			}
		}
	}
	return nil
}

// --- relative handlers (confidence 0.95) ---

func relativeFactors() types.ConfidenceFactors {
	return types.ConfidenceFactors{Source: 0.95, Granularity: 1.0, Interpretation: 1.0}
}

func (p *Parser) handleYesterday(m []string, ref time.Time, loc *time.Location) *types.TemporalConstraint {
	day := startOfDay(ref, loc).AddDate(0, 0, -1)
	return relativeConstraint(m[0], day, endOfDay(day, loc))
}

func (p *Parser) handleToday(m []string, ref time.Time, loc *time.Location) *types.TemporalConstraint {
	day := startOfDay(ref, loc)
	return relativeConstraint(m[0], day, endOfDay(day, loc))
}

func (p *Parser) handleLastWeek(m []string, ref time.Time, loc *time.Location) *types.TemporalConstraint {
	weekStart := startOfWeek(ref, loc).AddDate(0, 0, -7)
	return relativeConstraint(m[0], weekStart, endOfDay(weekStart.AddDate(0, 0, 6), loc))
}

func (p *Parser) handleLastMonth(m []string, ref time.Time, loc *time.Location) *types.TemporalConstraint {
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -1, 0)
	return relativeConstraint(m[0], first, endOfMonth(first, loc))
}

func (p *Parser) handleDaysAgo(m []string, ref time.Time, loc *time.Location) *types.TemporalConstraint {
	n, _ := strconv.Atoi(m[1])
	day := startOfDay(ref, loc).AddDate(0, 0, -n)
	return relativeConstraint(m[0], day, endOfDay(day, loc))
}

func (p *Parser) handleWeeksAgo(m []string, ref time.Time, loc *time.Location) *types.TemporalConstraint {
	n, _ := strconv.Atoi(m[1])
	weekStart := startOfWeek(ref.AddDate(0, 0, -7*n), loc)
	return relativeConstraint(m[0], weekStart, endOfDay(weekStart.AddDate(0, 0, 6), loc))
}

func (p *Parser) handleMonthsAgo(m []string, ref time.Time, loc *time.Location) *types.TemporalConstraint {
	n, _ := strconv.Atoi(m[1])
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -n, 0)
	return relativeConstraint(m[0], first, endOfMonth(first, loc))
}

func relativeConstraint(expr string, start, end time.Time) *types.TemporalConstraint {
	return &types.TemporalConstraint{
		RangeStart:         start,
		RangeEnd:           end,
		RangeConfidence:    relativeFactors().Combined(),
		ExpressionType:     types.ExpressionExplicitRelative,
		OriginalExpression: expr,
	}
}

// --- absolute handler (confidence 1.0) ---

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

func (p *Parser) handleMonth(m []string, ref time.Time, loc *time.Location) *types.TemporalConstraint {
	month := monthsByName[strings.ToLower(m[1])]
	year := ref.Year()
	if m[2] != "" {
		year, _ = strconv.Atoi(m[2])
	} else if month > ref.Month() {
		// A bare month later in the calendar than the reference month refers
		// to the previous year's instance.
		year--
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	factors := types.ConfidenceFactors{Source: 1.0, Granularity: 1.0, Interpretation: 1.0}
	return &types.TemporalConstraint{
		RangeStart:         first,
		RangeEnd:           endOfMonth(first, loc),
		RangeConfidence:    factors.Combined(),
		ExpressionType:     types.ExpressionExplicitAbsolute,
		OriginalExpression: m[0],
	}
}

// --- fuzzy handlers ---

func fuzzyConstraint(expr string, start, end time.Time, confidence float64) *types.TemporalConstraint {
	return &types.TemporalConstraint{
		RangeStart:         start,
		RangeEnd:           end,
		RangeConfidence:    confidence,
		ExpressionType:     types.ExpressionFuzzyPeriod,
		OriginalExpression: expr,
	}
}

func (p *Parser) handleRecently(m []string, ref time.Time, loc *time.Location) *types.TemporalConstraint {
	return fuzzyConstraint(m[0], startOfDay(ref, loc).AddDate(0, 0, -7), ref, 0.7)
}

func (p *Parser) handleWhileBack(m []string, ref time.Time, loc *time.Location) *types.TemporalConstraint {
	return fuzzyConstraint(m[0], ref.AddDate(0, -6, 0), ref.AddDate(0, -1, 0), 0.4)
}

func (p *Parser) handleFewMonthsAgo(m []string, ref time.Time, loc *time.Location) *types.TemporalConstraint {
	return fuzzyConstraint(m[0], ref.AddDate(0, -4, 0), ref.AddDate(0, -2, 0), 0.5)
}

// seasonBounds maps a season to its (startMonth, endMonth) pair. Winter spans
// two calendar years: December of yearStart through the end of February of
// the following year.
func (p *Parser) handleSeason(m []string, ref time.Time, loc *time.Location) *types.TemporalConstraint {
	season := strings.ToLower(m[1])

	var start, end time.Time
	year := ref.Year()
	compute := func(y int) (time.Time, time.Time) {
		switch season {
		case "spring":
			s := time.Date(y, time.March, 1, 0, 0, 0, 0, loc)
			return s, endOfMonth(time.Date(y, time.May, 1, 0, 0, 0, 0, loc), loc)
		case "summer":
			s := time.Date(y, time.June, 1, 0, 0, 0, 0, loc)
			return s, endOfMonth(time.Date(y, time.August, 1, 0, 0, 0, 0, loc), loc)
		case "fall", "autumn":
			s := time.Date(y, time.September, 1, 0, 0, 0, 0, loc)
			return s, endOfMonth(time.Date(y, time.November, 1, 0, 0, 0, 0, loc), loc)
		default: // winter: December y through February y+1
			s := time.Date(y, time.December, 1, 0, 0, 0, 0, loc)
			return s, endOfMonth(time.Date(y+1, time.February, 1, 0, 0, 0, 0, loc), loc)
		}
	}

	// The user means the most recent finished instance. Winter needs up to
	// two rollbacks: for a January/February reference, last year's winter is
	// still the in-progress one.
	start, end = compute(year)
	for end.After(ref) {
		year--
		start, end = compute(year)
	}
	return fuzzyConstraint(m[0], start, end, 0.6)
}

// --- calendar helpers ---

func startOfDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func endOfDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), loc)
}

// startOfWeek returns the Monday 00:00 of t's week.
func startOfWeek(t time.Time, loc *time.Location) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started the prior Monday
	}
	return startOfDay(t, loc).AddDate(0, 0, -(weekday - 1))
}

func endOfMonth(t time.Time, loc *time.Location) time.Time {
	firstNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
	return firstNext.Add(-time.Nanosecond)
}
