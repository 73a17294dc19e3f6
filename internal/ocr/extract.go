package ocr

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	localBibPattern = regexp.MustCompile(`\d{1,4}`)
	digitRunPattern = regexp.MustCompile(`\d+`)
)

// MaxAlternatives bounds the substitution pool returned by Alternatives.
const MaxAlternatives = 5

// Clean strips everything but ASCII digits.
func Clean(text string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
}

// ExtractLocal returns the first run of one to four digits in the cleaned
// text, or "" when there is none.
func ExtractLocal(text string) string {
	return localBibPattern.FindString(Clean(text))
}

// ExtractCloud picks a bib out of free text from a cloud engine. Only digit
// runs of three to five characters qualify, runs that look like years
// (2000-2099, 20000-20999) are skipped, and the longest remaining run wins
// with ties going to the earliest one.
func ExtractCloud(text string) string {
	best := ""
	for _, run := range digitRunPattern.FindAllString(text, -1) {
		if len(run) < 3 || len(run) > 5 || looksLikeYear(run) {
			continue
		}
		if len(run) > len(best) {
			best = run
		}
	}
	return best
}

func looksLikeYear(run string) bool {
	n, err := strconv.Atoi(run)
	if err != nil {
		return false
	}
	switch len(run) {
	case 4:
		return n >= 2000 && n <= 2099
	case 5:
		return n >= 20000 && n <= 20999
	}
	return false
}

// digitConfusions lists the digits a recognizer commonly mistakes for each
// other on printed bibs, most likely first.
var digitConfusions = map[rune][]rune{
	'0': {'8', '6', '9'},
	'1': {'7', '4'},
	'2': {'7', '3'},
	'3': {'8', '5'},
	'4': {'1', '9'},
	'5': {'6', '3'},
	'6': {'5', '8', '0'},
	'7': {'1', '2'},
	'8': {'3', '0', '6'},
	'9': {'4', '0'},
}

// Alternatives returns up to MaxAlternatives readings of bib that differ from
// it in exactly one digit. The most likely confusion for each position is
// listed before the next likely confusion of any position.
func Alternatives(bib string) []string {
	if bib == "" || Clean(bib) != bib {
		return nil
	}

	digits := []rune(bib)
	seen := map[string]struct{}{bib: {}}
	var out []string

	for rank := 0; len(out) < MaxAlternatives; rank++ {
		added := false
		for i, d := range digits {
			subs := digitConfusions[d]
			if rank >= len(subs) {
				continue
			}
			added = true
			alt := make([]rune, len(digits))
			copy(alt, digits)
			alt[i] = subs[rank]
			s := string(alt)
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
			if len(out) == MaxAlternatives {
				break
			}
		}
		if !added {
			break
		}
	}
	return out
}
