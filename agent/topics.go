package agent

import "strings"

// TopicRule maps a detected subject to one extra retrieval pass. The
// table replaces the hand-coded keyword cascades of the prototype
// scripts: each rule fires independently, so a single utterance may
// trigger several augmentation passes.
type TopicRule struct {
	Tag      string
	Triggers []string
	// Secondary, when non-empty, must also match for the rule to fire
	// (e.g. a fee word plus a non-engineering program name).
	Secondary []string
	// Query is the canned retrieval query issued when the rule fires.
	// Empty means "use the first words of the utterance itself".
	Query string
	// QueryWords caps how many utterance words are used when Query is
	// empty.
	QueryWords int
}

// Matches reports whether the rule fires for the lower-cased utterance.
func (tr TopicRule) Matches(lowered string) bool {
	if !containsAny(lowered, tr.Triggers) {
		return false
	}
	if len(tr.Secondary) > 0 && !containsAny(lowered, tr.Secondary) {
		return false
	}
	return true
}

// AugmentQuery returns the retrieval query for a fired rule.
func (tr TopicRule) AugmentQuery(utterance string) string {
	if tr.Query != "" {
		return tr.Query
	}
	words := strings.Fields(utterance)
	n := tr.QueryWords
	if n <= 0 {
		n = 8
	}
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func containsAny(lowered string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

// defaultTopicRules covers the subjects callers actually ask about.
// Trigger lists include common speech-to-text mishearings ("free",
// "ees") so fee questions survive a sloppy transcript.
var defaultTopicRules = []TopicRule{
	{
		Tag:      "fees",
		Triggers: []string{"fee", "fees", "free", "ees", "structure", "cost", "tuition", "charges"},
		Query:    "fee fees tuition cost structure per semester",
	},
	{
		Tag:       "other-bs-fees",
		Triggers:  []string{"fee", "fees", "cost", "tuition"},
		Secondary: []string{"physics", "space science", "mathematics", "math ", "biotechnology", "humanities", "other bs"},
		Query:     "Other BS programs Space Science Mathematics Physics Biotechnology fee per semester",
	},
	{
		Tag:      "programs",
		Triggers: []string{"program", "programs", "offered", "degrees", "courses", "software engineering", "computer engineering", "department"},
		Query:    "programs offered degrees list software engineering computer engineering departments",
	},
	{
		Tag:      "merit",
		Triggers: []string{"merit", "aggregate", "formula", "admission chance"},
		Query:    "merit aggregate formula criteria matric fsc entry test",
	},
	{
		Tag:      "closing-merit",
		Triggers: []string{"closing", "last year", "cutoff", "cut off", "merit trend", "merit increase", "merit decrease", "merit up", "merit down"},
		Query:    "closing merit history last years trend",
	},
	{
		Tag: "logistics",
		Triggers: []string{
			"transport", "bus", "buses", "hostel", "hostels", "scholarship", "financial",
			"laundry", "dorm", "interview", "test optional", "preference", "change major",
			"edit application", "multiple program", "more than one program", "high school",
			"pre medical", "pre engineering", "ics",
		},
		Query: "transport hostel scholarship application interview laundry",
	},
	{
		Tag: "admission-process",
		Triggers: []string{
			"admission open", "admissions open", "deadline", "last date", "apply",
			"application", "portal", "arn", "eligibility", "fsc", "matric", "dae",
			"a-level", "equivalence", "ibcc", "merit list", "nat", "entry test", "hat",
			"net", "ecat", "etea", "sat", "documents", "cnic", "domicile", "attested",
			"career", "job", "orientation", "classes start", "fee refund", "installment",
			"challan",
		},
		Query: "admission FAQs deadlines eligibility entry test documents merit list",
	},
	{
		Tag: "special-programs",
		Triggers: []string{
			"foreign", "al khwarizmi", "khwarizmi", "international student", "lunar",
			"moon", "icube", "cubesat", "cube sat", "ncgsa", "gis", "placement",
			"internship", "job fair", "journal of space", "jst", "innovation",
			"commercialization", "startup", "qec", "quality enhancement", "sports",
			"student committee",
		},
		QueryWords: 8,
	},
}
