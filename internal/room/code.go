// internal/room/code.go
package room

// codeAlphabet is the uppercase alphanumeric set room codes draw from.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newCode rejection-samples a fresh 6-char code against the live set.
func (s *Store) newCode() string {
	buf := make([]byte, CodeLength)
	for {
		for i := range buf {
			buf[i] = codeAlphabet[s.codes.Intn(len(codeAlphabet))]
		}
		code := string(buf)
		if _, taken := s.rooms[code]; !taken {
			return code
		}
	}
}
