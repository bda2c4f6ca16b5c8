package models

// CreateAccountRequest asks the orchestrator for one provisioned account.
type CreateAccountRequest struct {
	Platform Platform `json:"platform"`

	// Username, when set, skips synthesis and provisions the given name.
	Username string `json:"username,omitempty"`
	// Password, when set, skips password synthesis.
	Password string `json:"password,omitempty"`

	Options SynthesisOptions `json:"options"`
}

// CreateBatchRequest asks for count sequential provisioning attempts.
type CreateBatchRequest struct {
	Platform Platform         `json:"platform"`
	Count    int              `json:"count"`
	Options  SynthesisOptions `json:"options"`
}

// SynthesisOptions tunes credential synthesis per request.
type SynthesisOptions struct {
	// GenderOverride bypasses the classifier when set.
	GenderOverride string `json:"gender_override,omitempty"`

	// MinAge/MaxAge bound the synthesized birth date. Zero values fall
	// back to the 18-45 default range.
	MinAge int `json:"min_age,omitempty"`
	MaxAge int `json:"max_age,omitempty"`

	// RequireSpecialChars forces special characters into the password
	// even when the platform policy does not.
	RequireSpecialChars bool `json:"require_special_chars,omitempty"`

	// SkipDemographics omits the demographic payload entirely.
	SkipDemographics bool `json:"skip_demographics,omitempty"`
}

// UpdateAccountRequest mutates an existing credential. Empty fields are
// left untouched.
type UpdateAccountRequest struct {
	Username     string        `json:"username,omitempty"`
	Password     string        `json:"password,omitempty"`
	Demographics *Demographics `json:"demographics,omitempty"`
}

// ProvisionResult is the outcome of one provisioning attempt.
type ProvisionResult struct {
	Account *Credential `json:"account,omitempty"`

	// UsernameSource reports whether the username base came from the
	// name pool or fallback generation.
	UsernameSource string `json:"username_source,omitempty"`
}

// BatchItemError captures one failed attempt inside a batch.
type BatchItemError struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchSummary tallies batch outcomes.
type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BatchResult aggregates a whole batch run. Success is true iff at
// least one attempt succeeded.
type BatchResult struct {
	Success  bool             `json:"success"`
	Accounts []*Credential    `json:"accounts"`
	Errors   []BatchItemError `json:"errors"`
	Summary  BatchSummary     `json:"summary"`
}
