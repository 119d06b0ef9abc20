// Package pseudonym produces the display names patients appear under in
// consultations, so a doctor never sees a phone number.
package pseudonym

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

const (
	lowest  = 1000
	highest = 9999
)

var pattern = regexp.MustCompile(`^User#[0-9]{4}$`)

// Generate returns "User#NNNN" with NNNN uniform in [1000, 9999].
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(highest-lowest+1))
	if err != nil {
		return "", fmt.Errorf("pseudonym: %w", err)
	}
	return fmt.Sprintf("User#%d", lowest+n.Int64()), nil
}

func Valid(p string) bool {
	return pattern.MatchString(p)
}
