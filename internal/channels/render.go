package channels

import "unicode/utf8"

// emptyCardText fills a message whose status and body are both empty.
const emptyCardText = "思考中..."

// truncateBytes cuts s so that the result, marker included, is at most
// limit bytes. Cuts land on rune boundaries.
func truncateBytes(s string, limit int, marker string) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - len(marker)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}

// truncateRunes cuts s so that the result, marker included, is at most
// limit runes.
func truncateRunes(s string, limit int, marker string) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(marker)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	return string(runes[:keep]) + marker
}

// joinStatusBody renders status above body, separated by a blank line.
// The body is truncated so the whole text fits in limit runes; the status
// is never cut unless it alone exceeds the limit.
func joinStatusBody(status, body string, limit int, marker string) string {
	switch {
	case status == "" && body == "":
		return emptyCardText
	case status == "":
		return truncateRunes(body, limit, marker)
	case body == "":
		return truncateRunes(status, limit, marker)
	}
	const sep = "\n\n"
	room := limit - utf8.RuneCountInString(status) - len(sep)
	if room <= utf8.RuneCountInString(marker) {
		return truncateRunes(status, limit, marker)
	}
	return status + sep + truncateRunes(body, room, marker)
}
