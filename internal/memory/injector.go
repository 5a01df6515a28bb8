package memory

import (
	"strings"
)

// FormatContext renders records as a system-prompt section, stopping before
// the section would exceed maxChars. It returns "" when nothing fits.
func FormatContext(records []Record, maxChars int) string {
	if len(records) == 0 || maxChars <= 0 {
		return ""
	}

	const header = "## What you remember about the user\n\n"
	var b strings.Builder
	b.WriteString(header)
	for _, r := range records {
		line := "- [" + string(r.Category) + "] " + r.Content + "\n"
		if b.Len()+len(line) > maxChars {
			break
		}
		b.WriteString(line)
	}
	if b.Len() == len(header) {
		return ""
	}
	return b.String()
}
