package prescription

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"time"
)

const numberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var numberRe = regexp.MustCompile(`^RX-\d{6}-[A-Z0-9]{6}$`)

// NewNumber returns RX-<last six digits of the unix millisecond clock>-<six
// random characters>. The suffix is read from src, crypto/rand when nil.
func NewNumber(now time.Time, src io.Reader) (string, error) {
	if src == nil {
		src = rand.Reader
	}
	base := big.NewInt(int64(len(numberAlphabet)))
	suffix := make([]byte, 6)
	for i := range suffix {
		n, err := rand.Int(src, base)
		if err != nil {
			return "", fmt.Errorf("generate prescription number: %w", err)
		}
		suffix[i] = numberAlphabet[n.Int64()]
	}
	return fmt.Sprintf("RX-%06d-%s", now.UnixMilli()%1000000, suffix), nil
}

// ValidNumber reports whether s has the prescription number shape.
func ValidNumber(s string) bool {
	return numberRe.MatchString(s)
}
