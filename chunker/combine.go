package chunker

import "strings"

// Combine reassembles ordered overlapping chunks into a single text. For each
// consecutive pair it finds the longest suffix of the accumulated text that is
// a prefix of the next chunk and appends only the remainder, so text split by
// a Splitter round-trips through Combine.
func Combine(chunks []string) string {
	if len(chunks) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(chunks[0])
	prev := chunks[0]

	for _, chunk := range chunks[1:] {
		max := len(prev)
		if len(chunk) < max {
			max = len(chunk)
		}
		shared := 0
		for n := max; n > 0; n-- {
			if strings.HasSuffix(prev, chunk[:n]) {
				shared = n
				break
			}
		}
		b.WriteString(chunk[shared:])
		prev = chunk
	}
	return b.String()
}
