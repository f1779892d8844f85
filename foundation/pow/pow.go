// Package pow provides the proof of work puzzle shared by the faucet server
// and its clients. A puzzle is solved when the hex encoded SHA256 digest of
// the challenge concatenated with the decimal nonce starts with difficulty
// number of '0' characters.
package pow

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// MaxDifficulty is the number of hex characters in a SHA256 digest.
const MaxDifficulty = sha256.Size * 2

// Hash returns the hex encoded SHA256 digest of the challenge and nonce.
func Hash(challenge string, nonce uint64) string {
	data := make([]byte, 0, len(challenge)+20)
	data = append(data, challenge...)
	data = strconv.AppendUint(data, nonce, 10)

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// IsHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func IsHashSolved(difficulty int, hash string) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty > len(hash) {
		return false
	}

	return strings.Count(hash[:difficulty], "0") == difficulty
}

// Verify recomputes the hash for the nonce and checks it against the
// difficulty. The server and every client use this same function.
func Verify(challenge string, nonce uint64, difficulty int) bool {
	return IsHashSolved(difficulty, Hash(challenge, nonce))
}
