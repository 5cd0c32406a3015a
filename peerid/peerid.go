// Package peerid generates the client's 20-byte peer identifier in the
// standard Azureus-style "-XX####-" + 12 random characters form real
// trackers and peers expect.
package peerid

import (
	"crypto/rand"
	"math/big"
)

// prefix identifies this client: "RM", version "0010".
const prefix = "-RM0010-"

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generate returns a fresh 20-byte peer id: the 8-byte prefix followed
// by 12 CSPRNG-drawn alphanumeric characters.
func Generate() ([20]byte, error) {
	var id [20]byte
	copy(id[:], prefix)

	suffixLen := 20 - len(prefix)
	for i := 0; i < suffixLen; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return [20]byte{}, err
		}
		id[len(prefix)+i] = alphabet[n.Int64()]
	}
	return id, nil
}
