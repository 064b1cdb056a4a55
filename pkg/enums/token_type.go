package enums

import "fmt"

// TokenType is the Token.type value set.
type TokenType string

const (
	TokenTypeResetPassword TokenType = "RESET_PASSWORD"
	TokenTypeVerifyEmail   TokenType = "VERIFY_EMAIL"
)

var validTokenTypes = []TokenType{
	TokenTypeResetPassword,
	TokenTypeVerifyEmail,
}

// String implements fmt.Stringer.
func (t TokenType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TokenType.
func (t TokenType) IsValid() bool {
	for _, candidate := range validTokenTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTokenType converts raw input into a TokenType.
func ParseTokenType(value string) (TokenType, error) {
	for _, candidate := range validTokenTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid token type %q", value)
}

// TokenTypeValues lists the accepted raw values.
func TokenTypeValues() []string {
	out := make([]string, 0, len(validTokenTypes))
	for _, t := range validTokenTypes {
		out = append(out, string(t))
	}
	return out
}
