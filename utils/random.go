package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// GenerateCode returns n random bytes as an uppercase hex string.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateDisplayCode builds a human-presentable ticket code of the form
// BOL-XXXXXXXXXX-CCCC. The 4-hex suffix is a keyed blake2b MAC over the random
// body, so door staff can reject mistyped codes without a lookup. The code is
// not a credential; admission always goes through the verification token.
func GenerateDisplayCode(secret string) (string, error) {
	body, err := GenerateCode(5)
	if err != nil {
		return "", err
	}

	mac, err := blake2b.New(2, []byte(secret))
	if err != nil {
		return "", err
	}
	mac.Write([]byte(body))
	suffix := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))

	return fmt.Sprintf("BOL-%s-%s", body, suffix), nil
}

// ValidDisplayCode recomputes the MAC suffix of a display code.
func ValidDisplayCode(code, secret string) bool {
	parts := strings.Split(code, "-")
	if len(parts) != 3 || parts[0] != "BOL" {
		return false
	}

	mac, err := blake2b.New(2, []byte(secret))
	if err != nil {
		return false
	}
	mac.Write([]byte(parts[1]))
	return strings.EqualFold(hex.EncodeToString(mac.Sum(nil)), parts[2])
}
