package voucher

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{5}-[A-Z0-9]{3}-[A-Z0-9]-[A-Z0-9]{5}-[A-Z0-9]{3}$`)

// codeGroups is the group layout of AAAAA-AAA-A-AAAAA-AAA.
var codeGroups = []int{5, 3, 1, 5, 3}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NormalizeCode trims and uppercases user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether a normalized code has the voucher shape.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// GenerateCode returns a random code in the voucher shape.
func GenerateCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i, n := range codeGroups {
		if i > 0 {
			b.WriteByte('-')
		}
		for j := 0; j < n; j++ {
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			b.WriteByte(codeAlphabet[idx.Int64()])
		}
	}
	return b.String(), nil
}
