package synth

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/provio-systems/provio/internal/gender"
	"github.com/provio-systems/provio/internal/models"
)

const (
	defaultMinAge = 18
	defaultMaxAge = 45
)

// SynthesizeDemographics assembles the synthetic demographic payload
// for a platform. The base name seeds the first/last name split and the
// gender classification; everything else is generated. No field is ever
// sourced from real PII.
func (s *Synthesizer) SynthesizeDemographics(platform models.Platform, baseName string, opts models.SynthesisOptions) *models.Demographics {
	policy := models.PolicyFor(platform)

	first, last := splitName(baseName)
	if first == "" {
		first = gofakeit.FirstName()
	}
	if last == "" {
		last = gofakeit.LastName()
	}

	genderLabel := opts.GenderOverride
	if genderLabel == "" {
		genderLabel = string(gender.Classify(first).Label)
	}

	demo := &models.Demographics{
		FirstName: first,
		LastName:  last,
		Gender:    genderLabel,
	}

	if policy.RequireBirthDate || opts.MinAge > 0 || opts.MaxAge > 0 {
		demo.BirthDate = randomBirthDate(opts.MinAge, opts.MaxAge)
	}

	if policy.RequireRecovery {
		demo.RecoveryEmail = fmt.Sprintf("%s.%s%d@%s",
			strings.ToLower(first), strings.ToLower(last), rand.Intn(1000), gofakeit.DomainName())
		demo.RecoveryPhone = gofakeit.Phone()
	}

	return demo
}

// randomBirthDate picks a uniform random day for an age inside the
// range, using the correct day count for the chosen month and year.
func randomBirthDate(minAge, maxAge int) string {
	if minAge <= 0 {
		minAge = defaultMinAge
	}
	if maxAge < minAge {
		maxAge = minAge
	}
	if maxAge == minAge {
		maxAge = minAge + 1
	}

	now := time.Now()
	age := minAge + rand.Intn(maxAge-minAge)
	year := now.Year() - age
	month := time.Month(1 + rand.Intn(12))
	day := 1 + rand.Intn(daysInMonth(year, month))

	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func splitName(name string) (first, last string) {
	fields := strings.Fields(strings.TrimSpace(name))
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}
