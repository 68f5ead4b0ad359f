package room

import "math/rand/v2"

// codeAlphabet excludes characters that read ambiguously on a shared screen
// (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 6

// newCode returns a random 6-character room code.
func newCode() string {
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(buf)
}
