package synth

import (
	"crypto/rand"
	"math/big"

	"github.com/provio-systems/provio/internal/models"
)

const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	specialChars = "!@#$%^&*()-_=+[]{}"

	// passwordFloor is the absolute minimum length regardless of how
	// lax the platform policy is.
	passwordFloor = 10
)

// SynthesizePassword generates a random password satisfying the
// platform policy. Length is clamped to [max(10, policy min), policy
// max]. After the random draw, each required character class missing
// from the draft is injected at a random position in a fixed order:
// uppercase, lowercase, digit, special. A later injection may overwrite
// an earlier one; this ordered-overwrite behavior is kept deliberately
// for compatibility with existing provisioned fleets.
func (s *Synthesizer) SynthesizePassword(platform models.Platform, opts models.SynthesisOptions) string {
	policy := models.PolicyFor(platform)
	useSpecial := policy.RequireSpecial || opts.RequireSpecialChars

	charset := lowerChars + upperChars + digitChars
	if useSpecial {
		charset += specialChars
	}

	minLen := policy.PasswordMinLen
	if minLen < passwordFloor {
		minLen = passwordFloor
	}
	maxLen := policy.PasswordMaxLen
	if maxLen < minLen {
		maxLen = minLen
	}
	length := minLen + secureIntn(maxLen-minLen+1)

	password := make([]byte, length)
	for i := range password {
		password[i] = charset[secureIntn(len(charset))]
	}

	// Corrective pass, not a retry loop.
	inject := func(class string) {
		if !containsAny(password, class) {
			password[secureIntn(length)] = class[secureIntn(len(class))]
		}
	}
	inject(upperChars)
	inject(lowerChars)
	inject(digitChars)
	if useSpecial {
		inject(specialChars)
	}

	return string(password)
}

func containsAny(password []byte, class string) bool {
	for _, c := range password {
		for i := 0; i < len(class); i++ {
			if c == class[i] {
				return true
			}
		}
	}
	return false
}

// secureIntn draws a uniform int in [0, n) from crypto/rand. Password
// material must not come from the math/rand stream used elsewhere for
// non-secret synthesis.
func secureIntn(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand failing is unrecoverable for secret generation.
		panic(err)
	}
	return int(v.Int64())
}
