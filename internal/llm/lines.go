package llm

import "strings"

// lineSplitter reassembles newline-terminated lines from arbitrary chunks.
type lineSplitter struct {
	pending strings.Builder
}

// Push adds a chunk and returns every line it completed, without the newline.
func (s *lineSplitter) Push(chunk string) []string {
	var lines []string
	for {
		i := strings.IndexByte(chunk, '\n')
		if i < 0 {
			s.pending.WriteString(chunk)
			return lines
		}
		s.pending.WriteString(chunk[:i])
		lines = append(lines, strings.TrimRight(s.pending.String(), "\r"))
		s.pending.Reset()
		chunk = chunk[i+1:]
	}
}

// Flush returns the unterminated remainder.
func (s *lineSplitter) Flush() string {
	rest := strings.TrimSpace(s.pending.String())
	s.pending.Reset()
	return rest
}
