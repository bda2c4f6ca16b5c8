package gender

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyExactMatches(t *testing.T) {
	tests := []struct {
		name  string
		label Label
	}{
		{"Emma", Female},
		{"emma", Female},
		{"  Olivia  ", Female},
		{"James", Male},
		{"michael", Male},
		{"Emma Smith", Female},
	}

	for _, tt := range tests {
		got := Classify(tt.name)
		assert.Equal(t, tt.label, got.Label, "name %q", tt.name)
		assert.InDelta(t, 0.9, got.Confidence, 0.001, "name %q", tt.name)
	}
}

func TestClassifySuffixRules(t *testing.T) {
	got := Classify("Marinella")
	assert.Equal(t, Female, got.Label)
	assert.GreaterOrEqual(t, got.Confidence, 0.6)
	assert.LessOrEqual(t, got.Confidence, 0.8)

	got = Classify("Jackson")
	assert.Equal(t, Male, got.Label)
	assert.GreaterOrEqual(t, got.Confidence, 0.6)
	assert.LessOrEqual(t, got.Confidence, 0.8)
}

func TestClassifyFemaleRulesCheckedFirst(t *testing.T) {
	// "ina" (female) and "n" (male) both match; female rules win.
	got := Classify("Karina")
	assert.Equal(t, Female, got.Label)
}

func TestClassifyGenderedTokens(t *testing.T) {
	got := Classify("darkprincess99")
	assert.Equal(t, Female, got.Label)
	assert.InDelta(t, 0.8, got.Confidence, 0.001)

	got = Classify("shadowking42")
	assert.Equal(t, Male, got.Label)
	assert.InDelta(t, 0.8, got.Confidence, 0.001)
}

func TestClassifyDefault(t *testing.T) {
	for _, name := range []string{"", "   ", "xqzt"} {
		got := Classify(name)
		assert.Equal(t, Other, got.Label, "name %q", name)
		assert.InDelta(t, 0.3, got.Confidence, 0.001, "name %q", name)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	first := Classify("Alexandra")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify("Alexandra"))
	}
}
