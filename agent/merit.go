package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "admissions-agent/errors"
)

// ProgramCategory selects which aggregate formula applies.
type ProgramCategory int

const (
	CategoryUnknown ProgramCategory = iota
	// Engineering covers the programs with an entry-test component:
	// the engineering departments plus the computing programs.
	Engineering
	// NonEngineering covers Space Science, Mathematics and the other
	// BS programs admitted on matric and intermediate marks alone.
	NonEngineering
)

func (c ProgramCategory) String() string {
	switch c {
	case Engineering:
		return "engineering"
	case NonEngineering:
		return "non-engineering"
	default:
		return "unknown"
	}
}

// MeritInput holds a caller's academic record. Matric and Intermediate
// are marks out of 1100; EntryTest is a percentage out of 100 and only
// read for engineering programs.
type MeritInput struct {
	Matric       float64
	Intermediate float64
	EntryTest    float64
	HasEntryTest bool
}

// MeritClosingRemark is spoken after every computed aggregate.
const MeritClosingRemark = "Be hopeful and check your portal for updates."

// ComputeAggregate applies the published IST merit formula for the
// category.
//
// Engineering:     matric/1100*10 + inter/1100*40 + test/100*50
// Non-engineering: matric/1100*50 + inter/1100*50
func ComputeAggregate(category ProgramCategory, in MeritInput) (float64, error) {
	if in.Matric <= 0 || in.Intermediate <= 0 {
		return 0, apperrors.WrapError(apperrors.ErrMissingInput, "matric and intermediate marks are required")
	}
	switch category {
	case Engineering:
		if !in.HasEntryTest || in.EntryTest <= 0 {
			return 0, apperrors.WrapError(apperrors.ErrMissingInput, "entry test score is required for engineering programs")
		}
		return in.Matric/1100*10 + in.Intermediate/1100*40 + in.EntryTest/100*50, nil
	case NonEngineering:
		return in.Matric/1100*50 + in.Intermediate/1100*50, nil
	default:
		return 0, apperrors.WrapError(apperrors.ErrMissingInput, "program category is required")
	}
}

// FormatAggregate renders a computed aggregate as a spoken reply.
func FormatAggregate(category ProgramCategory, aggregate float64) string {
	return fmt.Sprintf("As per IST records, your %s aggregate comes to %.2f percent. %s",
		category, aggregate, MeritClosingRemark)
}

var (
	matricRe = regexp.MustCompile(`(?i)\b(?:matric|matriculation|ssc)\D{0,20}?(\d{2,4})`)
	interRe  = regexp.MustCompile(`(?i)\b(?:inter(?:mediate)?|fsc|hssc|f\.sc)\D{0,20}?(\d{2,4})`)
	testRe   = regexp.MustCompile(`(?i)\b(?:entry\s*test|test|net|ecat)\D{0,20}?(\d{1,3})`)
	numberRe = regexp.MustCompile(`\d{2,4}`)
)

// ParseMarks extracts marks from a free-form utterance. Labeled
// figures ("matric 900, fsc 950, test 70") win; otherwise three bare
// numbers are read positionally as matric, intermediate, entry test,
// and two as matric, intermediate. Returns false when fewer than two
// usable figures are found.
func ParseMarks(utterance string) (MeritInput, bool) {
	var in MeritInput

	if m := matricRe.FindStringSubmatch(utterance); m != nil {
		in.Matric, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := interRe.FindStringSubmatch(utterance); m != nil {
		in.Intermediate, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := testRe.FindStringSubmatch(utterance); m != nil {
		in.EntryTest, _ = strconv.ParseFloat(m[1], 64)
		in.HasEntryTest = in.EntryTest > 0
	}
	if in.Matric > 0 && in.Intermediate > 0 {
		return in, true
	}

	nums := numberRe.FindAllString(utterance, 4)
	if len(nums) < 2 {
		return MeritInput{}, false
	}
	in = MeritInput{}
	in.Matric, _ = strconv.ParseFloat(nums[0], 64)
	in.Intermediate, _ = strconv.ParseFloat(nums[1], 64)
	if len(nums) >= 3 {
		in.EntryTest, _ = strconv.ParseFloat(nums[2], 64)
		in.HasEntryTest = in.EntryTest > 0 && in.EntryTest <= 100
	}
	if in.Matric <= 0 || in.Intermediate <= 0 {
		return MeritInput{}, false
	}
	return in, true
}

// Computing programs take the entry-test formula, so they group with
// engineering here.
var engineeringPrograms = []string{
	"aerospace", "avionics", "electrical", "mechanical", "materials",
	"computer science", "software", "data science", "artificial intelligence",
	"bs cs", "bs ai", "engineering",
}

var nonEngineeringPrograms = []string{
	"space science", "mathematics", "math", "physics", "astronomy",
	"biotechnology", "remote sensing", "gis",
}

// DetectCategory infers the program category from an utterance.
// Returns CategoryUnknown when no program is named.
func DetectCategory(utterance string) ProgramCategory {
	lowered := strings.ToLower(utterance)
	// Specific program names first: the generic "engineering" trigger
	// would otherwise shadow phrases like "non-engineering".
	if containsAny(lowered, nonEngineeringPrograms) {
		return NonEngineering
	}
	if containsAny(lowered, engineeringPrograms) {
		return Engineering
	}
	return CategoryUnknown
}
