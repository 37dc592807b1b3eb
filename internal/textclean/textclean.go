// Package textclean filters and normalizes lines extracted from documents.
package textclean

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

const minLineLen = 2

var (
	leaderRun     = regexp.MustCompile(`[·•.・\s]{6,}`)
	trailingPage  = regexp.MustCompile(`(?i)[ixv\d]{1,5}$`)
	sectionNumber = regexp.MustCompile(`^\d+(\.\d+)*\s`)
	symbolsOnly   = regexp.MustCompile(`^[\d\s。，！—.,=\-%&^#@!*()+_]+$`)
	multiSpace    = regexp.MustCompile(` +`)

	removePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)第?\s*\d{1,3}\s*页`),
		regexp.MustCompile(`(?i)Page\s*\d+`),
		regexp.MustCompile(`(?i)\d+\s*/\s*\d+`),
		regexp.MustCompile(`(?i)版权所有.*`),
		regexp.MustCompile(`(?i)保密.*`),
		regexp.MustCompile(`(?i)Confidential.*`),
		regexp.MustCompile(`(?i)免责声明.*`),
	}
)

// IsCatalogLine reports whether a line looks like a table-of-contents entry.
func IsCatalogLine(line string) bool {
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) < 10 {
		return false
	}
	if leaderRun.MatchString(line) && trailingPage.MatchString(line) {
		return true
	}
	return sectionNumber.MatchString(line)
}

// ValidLine reports whether a line carries content worth keeping.
// Short lines, punctuation-only lines, catalog entries, page markers and
// legal boilerplate are rejected.
func ValidLine(line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case utf8.RuneCountInString(line) <= minLineLen:
		return false
	case symbolsOnly.MatchString(line):
		return false
	case IsCatalogLine(line):
		return false
	}
	for _, p := range removePatterns {
		if p.MatchString(line) {
			return false
		}
	}
	return true
}

// CleanWhitespace trims the line, drops spaces that do not touch an ASCII
// letter and collapses the remaining runs of spaces.
func CleanWhitespace(line string) string {
	rs := []rune(strings.TrimSpace(line))
	var b strings.Builder
	b.Grow(len(rs))
	for i, r := range rs {
		if r == ' ' && !keepSpace(rs, i) {
			continue
		}
		b.WriteRune(r)
	}
	return multiSpace.ReplaceAllString(b.String(), " ")
}

func keepSpace(rs []rune, i int) bool {
	if i > 0 && isASCIILetter(rs[i-1]) {
		return true
	}
	return i+1 < len(rs) && isASCIILetter(rs[i+1])
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// CutText shortens text to maxWidth display columns, appending "..." when cut.
// Wide characters count as two columns.
func CutText(text string, maxWidth int) string {
	if runewidth.StringWidth(text) <= maxWidth {
		return text
	}
	return runewidth.Truncate(text, maxWidth, "") + "..."
}
