package services

import (
	"fmt"
	"regexp"
	"strings"
)

// Operator is a Senegalese mobile network operator, matched by the two
// leading digits of the subscriber number.
type Operator struct {
	Name     string   `json:"name"`
	Prefixes []string `json:"prefixes"`
}

var operators = []Operator{
	{Name: "Orange", Prefixes: []string{"77", "78"}},
	{Name: "Free", Prefixes: []string{"76"}},
	{Name: "Expresso", Prefixes: []string{"70"}},
	{Name: "ProMobile", Prefixes: []string{"75"}},
}

var (
	nonDigitRegex    = regexp.MustCompile(`\D`)
	phoneNumberRegex = regexp.MustCompile(`^(70|75|76|77|78)\d{7}$`)
)

func cleanPhoneNumber(phoneNumber string) string {
	return nonDigitRegex.ReplaceAllString(phoneNumber, "")
}

// IsValidPhoneNumber reports whether the input is a valid 9-digit
// Senegalese mobile number, ignoring spacing and punctuation.
func IsValidPhoneNumber(phoneNumber string) bool {
	return phoneNumberRegex.MatchString(cleanPhoneNumber(phoneNumber))
}

// GetOperator returns the operator serving the number, or false when the
// number is not a valid Senegalese mobile number.
func GetOperator(phoneNumber string) (Operator, bool) {
	clean := cleanPhoneNumber(phoneNumber)
	if !phoneNumberRegex.MatchString(clean) {
		return Operator{}, false
	}
	prefix := clean[:2]
	for _, op := range operators {
		for _, p := range op.Prefixes {
			if p == prefix {
				return op, true
			}
		}
	}
	return Operator{}, false
}

// FormatPhoneNumber renders a 9-digit number as "XX XXX XX XX"; anything
// else is returned digits-only.
func FormatPhoneNumber(phoneNumber string) string {
	digits := cleanPhoneNumber(phoneNumber)
	if len(digits) != 9 {
		return digits
	}
	return fmt.Sprintf("%s %s %s %s", digits[0:2], digits[2:5], digits[5:7], digits[7:9])
}

// NormalizePhoneNumber strips spacing and an optional +221 country code.
func NormalizePhoneNumber(phoneNumber string) string {
	digits := cleanPhoneNumber(phoneNumber)
	if len(digits) == 12 && strings.HasPrefix(digits, "221") {
		return digits[3:]
	}
	return digits
}
