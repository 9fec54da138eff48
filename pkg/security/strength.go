// Package security evaluates master passwords and audits stored secret
// values for weakness and reuse. Values are only ever compared through
// keyed hashes and are never returned.
package security

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/nbutton23/zxcvbn-go"
)

// Master password length limits, in characters.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// maxEvaluated bounds the input handed to zxcvbn, whose cost grows quickly
// with length. Anything this long is already rated on length alone.
const maxEvaluated = 100

// Errors
var (
	ErrPasswordTooShort = fmt.Errorf("security: password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("security: password must be at most %d characters", MaxPasswordLength)
	ErrPasswordMismatch = errors.New("security: passwords do not match")
)

// Strength is a coarse strength rating.
type Strength int

const (
	// Weak is guessable.
	Weak Strength = iota
	// Fair is minimally acceptable.
	Fair
	// Good resists offline guessing.
	Good
	// Strong is long and unpredictable.
	Strong
)

// String returns a human-readable representation of the strength.
func (s Strength) String() string {
	switch s {
	case Weak:
		return "Weak"
	case Fair:
		return "Fair"
	case Good:
		return "Good"
	case Strong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Points returns the score contribution of this strength: Weak=0, Fair=20,
// Good=35, Strong=50.
func (s Strength) Points() int {
	switch s {
	case Fair:
		return 20
	case Good:
		return 35
	case Strong:
		return 50
	default:
		return 0
	}
}

// Evaluation is the result of rating one value.
type Evaluation struct {
	Strength  Strength
	Score     int     // zxcvbn score, 0-4
	Entropy   float64 // bits, as estimated by zxcvbn
	CrackTime string  // human-readable offline crack time
}

// Evaluate rates value. The rating is the lower of a length-based floor and
// the zxcvbn estimate; userInputs (such as the secret's name) are treated as
// known words.
func Evaluate(value string, userInputs ...string) Evaluation {
	input := value
	if utf8.RuneCountInString(input) > maxEvaluated {
		input = string([]rune(input)[:maxEvaluated])
	}

	m := zxcvbn.PasswordStrength(input, userInputs)
	byScore := fromScore(m.Score)
	byLength := fromLength(utf8.RuneCountInString(value))

	return Evaluation{
		Strength:  min(byScore, byLength),
		Score:     m.Score,
		Entropy:   m.Entropy,
		CrackTime: m.CrackTimeDisplay,
	}
}

func fromScore(score int) Strength {
	switch {
	case score >= 4:
		return Strong
	case score == 3:
		return Good
	case score == 2:
		return Fair
	default:
		return Weak
	}
}

// fromLength follows NIST SP 800-63B: length matters, composition does not.
func fromLength(n int) Strength {
	switch {
	case n >= 20:
		return Strong
	case n >= 14:
		return Good
	case n >= MinPasswordLength:
		return Fair
	default:
		return Weak
	}
}
