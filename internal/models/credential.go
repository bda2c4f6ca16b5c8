package models

import "time"

// Platform identifies the target platform a credential is provisioned for.
type Platform string

const (
	PlatformRoblox    Platform = "roblox"
	PlatformDiscord   Platform = "discord"
	PlatformSteam     Platform = "steam"
	PlatformEpicGames Platform = "epicgames"
	PlatformMinecraft Platform = "minecraft"
	// PlatformGeneral is the platform-agnostic partition used as a
	// fallback when a platform-specific name pool is empty.
	PlatformGeneral Platform = "general"
)

// KnownPlatforms lists every platform credentials may be provisioned for.
var KnownPlatforms = []Platform{
	PlatformRoblox,
	PlatformDiscord,
	PlatformSteam,
	PlatformEpicGames,
	PlatformMinecraft,
	PlatformGeneral,
}

// IsKnownPlatform reports whether p is a member of the closed platform set.
func IsKnownPlatform(p Platform) bool {
	for _, known := range KnownPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

// PlatformPolicy captures the per-platform rules governing username and
// password composition.
type PlatformPolicy struct {
	UsernameMaxLen   int
	PasswordMinLen   int
	PasswordMaxLen   int
	RequireSpecial   bool
	RequireRecovery  bool
	RequireBirthDate bool
}

var platformPolicies = map[Platform]PlatformPolicy{
	PlatformRoblox:    {UsernameMaxLen: 20, PasswordMinLen: 8, PasswordMaxLen: 20, RequireSpecial: false, RequireRecovery: false, RequireBirthDate: true},
	PlatformDiscord:   {UsernameMaxLen: 32, PasswordMinLen: 8, PasswordMaxLen: 32, RequireSpecial: true, RequireRecovery: true, RequireBirthDate: true},
	PlatformSteam:     {UsernameMaxLen: 32, PasswordMinLen: 8, PasswordMaxLen: 32, RequireSpecial: true, RequireRecovery: true, RequireBirthDate: false},
	PlatformEpicGames: {UsernameMaxLen: 16, PasswordMinLen: 7, PasswordMaxLen: 32, RequireSpecial: true, RequireRecovery: true, RequireBirthDate: true},
	PlatformMinecraft: {UsernameMaxLen: 16, PasswordMinLen: 8, PasswordMaxLen: 32, RequireSpecial: false, RequireRecovery: true, RequireBirthDate: false},
	PlatformGeneral:   {UsernameMaxLen: 24, PasswordMinLen: 8, PasswordMaxLen: 24, RequireSpecial: false, RequireRecovery: false, RequireBirthDate: false},
}

// PolicyFor returns the policy for p, falling back to the general policy
// for unknown platforms so synthesis never fails on input it has not
// seen before.
func PolicyFor(p Platform) PlatformPolicy {
	if policy, ok := platformPolicies[p]; ok {
		return policy
	}
	return platformPolicies[PlatformGeneral]
}

// Credential is one provisioned identity owned by a user.
//
// Invariant: (OwnerID, Platform, Username) is unique. The uniqueness is
// enforced by the storage layer, not only by the orchestrator's
// pre-flight check.
type Credential struct {
	ID       string   `json:"id"`
	OwnerID  string   `json:"owner_id"`
	Platform Platform `json:"platform"`
	Username string   `json:"username"`

	// Password holds the encrypted envelope, never the plaintext.
	Password string `json:"password"`

	Demographics *Demographics `json:"demographics,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Demographics is the synthetic identity payload attached to a
// credential. Every field is generated, never sourced from real PII.
type Demographics struct {
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Gender        string `json:"gender,omitempty"`
	BirthDate     string `json:"birth_date,omitempty"` // YYYY-MM-DD
	RecoveryEmail string `json:"recovery_email,omitempty"`
	RecoveryPhone string `json:"recovery_phone,omitempty"`
}

// NameSource tags the provenance of a name candidate.
type NameSource string

const (
	NameSourceManual   NameSource = "manual"
	NameSourceBulk     NameSource = "bulk_import"
	NameSourceSeed     NameSource = "system_seed"
	NameSourceFallback NameSource = "fallback"
)

// NameCandidate is one entry in the name pool.
type NameCandidate struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Platform  Platform   `json:"platform"`
	Source    NameSource `json:"source"`
	CreatedAt time.Time  `json:"created_at"`
}
