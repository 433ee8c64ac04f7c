package workarea

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize rewrites a source filename into the safe form used for job
// directories and work files: accents folded away, lowercased, and every
// run of non-alphanumeric characters (including interior dots) collapsed
// to a single underscore. The extension is cleaned separately and
// reattached, so "My Movie (2020).MKV" becomes "my_movie_2020.mkv".
func Normalize(filename string) string {
	base, ext := splitExt(filename)

	cleanedBase := scrub(base)
	if cleanedBase == "" {
		cleanedBase = "job"
	}
	cleanedExt := scrubExt(ext)
	if cleanedExt == "" {
		return cleanedBase
	}
	return cleanedBase + "." + cleanedExt
}

// JobName returns the job directory name for a source filename: the
// normalized base without its extension.
func JobName(filename string) string {
	normalized := Normalize(filename)
	name, _ := splitExt(normalized)
	return name
}

func splitExt(filename string) (string, string) {
	idx := strings.LastIndex(filename, ".")
	if idx <= 0 || idx == len(filename)-1 {
		return filename, ""
	}
	return filename[:idx], filename[idx+1:]
}

func fold(value string) string {
	folded, _, err := transform.String(foldTransform, value)
	if err != nil {
		return value
	}
	return folded
}

func scrub(value string) string {
	value = strings.ToLower(fold(value))
	var cleaned strings.Builder
	prevUnderscore := false
	for _, r := range value {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			cleaned.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore {
				cleaned.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(cleaned.String(), "_")
}

func scrubExt(value string) string {
	value = strings.ToLower(fold(value))
	var cleaned strings.Builder
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cleaned.WriteRune(r)
		}
	}
	return cleaned.String()
}
