package service

import "unicode"

// MinPasswordLength is the hard floor for account passwords.
const MinPasswordLength = 8

// Password policy violation codes, machine-readable for API clients.
const (
	ViolationTooShort      = "too_short"
	ViolationMissingLower  = "missing_lowercase"
	ViolationMissingUpper  = "missing_uppercase"
	ViolationMissingDigit  = "missing_digit"
	ViolationMissingSymbol = "missing_symbol"
	ViolationRepeatedRun   = "repeated_characters"
)

// PasswordCheck is the outcome of scoring one candidate password.
type PasswordCheck struct {
	Valid      bool     `json:"valid"`
	Score      int      `json:"score"` // 0..10
	Violations []string `json:"violations,omitempty"`
}

// PasswordPolicy scores candidate passwords. The zero value is the production
// policy: minimum 8 characters with all four character classes present.
type PasswordPolicy struct{}

// Score evaluates a password. Valid means every mandatory rule passed; Score
// adds length and variety bonuses on top so clients can render a strength
// meter from the same call.
func (PasswordPolicy) Score(password string) PasswordCheck {
	var check PasswordCheck

	runes := []rune(password)
	if len(runes) < MinPasswordLength {
		check.Violations = append(check.Violations, ViolationTooShort)
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range runes {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasLower {
		check.Violations = append(check.Violations, ViolationMissingLower)
	}
	if !hasUpper {
		check.Violations = append(check.Violations, ViolationMissingUpper)
	}
	if !hasDigit {
		check.Violations = append(check.Violations, ViolationMissingDigit)
	}
	if !hasSymbol {
		check.Violations = append(check.Violations, ViolationMissingSymbol)
	}

	runs := repeatedRuns(runes)
	if runs > 0 {
		check.Violations = append(check.Violations, ViolationRepeatedRun)
	}

	check.Valid = len(check.Violations) == 0
	check.Score = score(runes, hasLower, hasUpper, hasDigit, hasSymbol, runs)
	return check
}

// score builds the 0..10 strength value: up to 5 for length, 1 per character
// class, 1 for combining all four, minus 1 per repeated run.
func score(runes []rune, lower, upper, digit, symbol bool, runs int) int {
	s := 0
	switch n := len(runes); {
	case n >= 20:
		s += 5
	case n >= 16:
		s += 4
	case n >= 12:
		s += 3
	case n >= MinPasswordLength:
		s += 2
	case n >= 6:
		s += 1
	}

	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			s++
		}
	}
	if lower && upper && digit && symbol {
		s++
	}

	s -= runs
	if s < 0 {
		s = 0
	}
	if s > 10 {
		s = 10
	}
	return s
}

// repeatedRuns counts maximal runs of three or more identical characters
// ("aaa", "111"); each run costs a point and fails the policy.
func repeatedRuns(runes []rune) int {
	runs := 0
	runLen := 1
	for i := 1; i <= len(runes); i++ {
		if i < len(runes) && runes[i] == runes[i-1] {
			runLen++
			continue
		}
		if runLen >= 3 {
			runs++
		}
		runLen = 1
	}
	return runs
}
