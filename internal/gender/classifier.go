// Package gender guesses a gender label for a given name using tiered
// heuristics. The output is advisory only and feeds synthetic
// demographic payloads; it never touches real user data.
package gender

import "strings"

// Label is the classifier output category.
type Label string

const (
	Male   Label = "male"
	Female Label = "female"
	Other  Label = "other"
)

// Result pairs a label with the classifier's confidence in [0,1].
type Result struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

var maleNames = map[string]struct{}{
	"james": {}, "john": {}, "robert": {}, "michael": {}, "william": {},
	"david": {}, "richard": {}, "joseph": {}, "thomas": {}, "daniel": {},
	"matthew": {}, "anthony": {}, "mark": {}, "steven": {}, "andrew": {},
	"kevin": {}, "brian": {}, "jacob": {}, "ethan": {}, "lucas": {},
	"alexander": {}, "henry": {}, "samuel": {}, "owen": {}, "leo": {},
}

var femaleNames = map[string]struct{}{
	"mary": {}, "patricia": {}, "jennifer": {}, "linda": {}, "elizabeth": {},
	"barbara": {}, "susan": {}, "jessica": {}, "sarah": {}, "karen": {},
	"emma": {}, "olivia": {}, "ava": {}, "sophia": {}, "isabella": {},
	"mia": {}, "charlotte": {}, "amelia": {}, "harper": {}, "evelyn": {},
	"emily": {}, "abigail": {}, "ella": {}, "grace": {}, "chloe": {},
}

// Affix rules are checked female-first so ambiguous endings such as
// "a" resolve the way the curated lists lean.
var femaleSuffixes = []struct {
	suffix     string
	confidence float64
}{
	{"ella", 0.8},
	{"ette", 0.8},
	{"ina", 0.75},
	{"lyn", 0.7},
	{"ie", 0.6},
	{"a", 0.65},
	{"e", 0.6},
}

var maleSuffixes = []struct {
	suffix     string
	confidence float64
}{
	{"son", 0.8},
	{"ton", 0.7},
	{"er", 0.65},
	{"o", 0.65},
	{"k", 0.6},
	{"n", 0.6},
}

var femaleTokens = []string{"girl", "queen", "princess", "lady", "miss"}
var maleTokens = []string{"boy", "king", "prince", "lord", "mister"}

// Classify maps a name to a gender label with a confidence score.
// Empty input returns the Other default at low confidence. The
// function is deterministic and side-effect free.
func Classify(name string) Result {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return Result{Label: Other, Confidence: 0.3}
	}

	// Classify on the first word so "Emma Smith" matches the curated list.
	first := normalized
	if idx := strings.IndexAny(first, " _-."); idx > 0 {
		first = first[:idx]
	}

	if _, ok := femaleNames[first]; ok {
		return Result{Label: Female, Confidence: 0.9}
	}
	if _, ok := maleNames[first]; ok {
		return Result{Label: Male, Confidence: 0.9}
	}

	for _, rule := range femaleSuffixes {
		if strings.HasSuffix(first, rule.suffix) {
			return Result{Label: Female, Confidence: rule.confidence}
		}
	}
	for _, rule := range maleSuffixes {
		if strings.HasSuffix(first, rule.suffix) {
			return Result{Label: Male, Confidence: rule.confidence}
		}
	}

	for _, token := range femaleTokens {
		if strings.Contains(normalized, token) {
			return Result{Label: Female, Confidence: 0.8}
		}
	}
	for _, token := range maleTokens {
		if strings.Contains(normalized, token) {
			return Result{Label: Male, Confidence: 0.8}
		}
	}

	return Result{Label: Other, Confidence: 0.3}
}
