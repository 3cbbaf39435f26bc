package report

const (
	// MessageLimit is the upper bound for a single message, counted in
	// runes. Discord's 2000-character ceiling counts codepoints, not
	// bytes.
	MessageLimit = 2000

	// continuationLimit leaves headroom on follow-up chunks.
	continuationLimit = 1900
)

// Chunks splits a report into messages. Header and body are published as
// one message when they fit into MessageLimit. Otherwise the first chunk
// carries the header plus as much body as fits, and the rest of the body
// follows in continuation chunks. The header is never separated from the
// first body slice; a header at or above the limit goes out alone.
func Chunks(header, body string) []string {
	h := []rune(header)
	b := []rune(body)

	if len(h)+len(b) <= MessageLimit {
		return []string{header + body}
	}

	first := 0
	if len(h) < MessageLimit {
		first = MessageLimit - len(h)
	}
	if first > len(b) {
		first = len(b)
	}

	chunks := []string{string(h) + string(b[:first])}
	rest := b[first:]
	for len(rest) > 0 {
		n := min(continuationLimit, len(rest))
		chunks = append(chunks, string(rest[:n]))
		rest = rest[n:]
	}
	return chunks
}

// Trailing returns the last n runes of s.
func Trailing(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
