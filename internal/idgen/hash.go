// Package idgen provides the base36 short-id rendering the CLI uses to
// name sync batch files after a change hash in a compact form.
//
// Adapted from the teacher's GenerateHashID: the original combined
// base36 encoding with bead-specific content hashing (title/description/
// creator/nonce) to mint new issue ids. A document's change hash is
// already minted by internal/change (a content hash over the change's
// canonical encoding, spec §3.1); all that is reused here is the base36
// alphabet/encoding routine, repurposed to shorten an existing hash
// rather than to mint one.
package idgen

import (
	"math/big"
	"strings"
)

// base36Alphabet is the character set for base36 encoding (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// EncodeBase36 converts a byte slice to a base36 string of the given
// length, taking the least-significant digits if the natural encoding
// is longer and left-padding with zeros if it is shorter.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	var result strings.Builder
	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	for i := len(chars) - 1; i >= 0; i-- {
		result.WriteByte(chars[i])
	}

	str := result.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// ShortHash renders a change hash's first bytes as an 8-character
// base36 string; `docctl sync` uses it in the names of the batch files
// it writes (`docctl log` prints the full hex hash).
func ShortHash(hash [32]byte) string {
	return EncodeBase36(hash[:6], 8)
}
