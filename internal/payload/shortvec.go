package payload

import "errors"

var errShortVec = errors.New("shortvec: malformed length")

// appendShortVec appends n as a compact-u16: seven bits per byte, low bits
// first, high bit set on every byte but the last.
func appendShortVec(b []byte, n int) []byte {
	for {
		c := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

// readShortVec decodes a compact-u16 and returns it with the bytes consumed.
func readShortVec(b []byte) (int, int, error) {
	n := 0
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, errShortMessage
		}
		c := b[i]
		n |= int(c&0x7f) << (7 * i)
		if c&0x80 == 0 {
			if i > 0 && c == 0 {
				return 0, 0, errShortVec
			}
			if n > 0xffff {
				return 0, 0, errShortVec
			}
			return n, i + 1, nil
		}
	}
	return 0, 0, errShortVec
}
