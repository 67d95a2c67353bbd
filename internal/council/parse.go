package council

import "strings"

// rankingMarkers are the section headers the parser recognizes, checked
// case-insensitively. The default ranking prompt instructs backends to use
// the first one; the rest cover common paraphrases.
var rankingMarkers = []string{
	"FINAL RANKING",
	"RANKING:",
	"RANKED ORDER",
	"MY RANKING",
}

// ParseRanking extracts an ordered list of labels from a backend's free-text
// ranking reply. The strategy is deliberately tolerant:
//
//   - locate the ranking section by the first recognizable marker; no marker
//     means no ranking (empty result, not an error)
//   - collect known labels in order of appearance after the marker, so a
//     well-formed prefix survives malformed later lines
//   - a label repeated in the reply counts once, at its first occurrence
//   - tokens that are not labels of the current round are ignored; they are
//     presumed hallucinated or to reference a different round
//
// The function is pure: same text and labels, same result.
func ParseRanking(text string, labels []string) []string {
	section, ok := rankingSection(text)
	if !ok {
		return nil
	}
	lowered := strings.ToLower(section)

	type hit struct {
		pos   int
		label string
	}
	seen := make(map[string]bool, len(labels))
	var ranking []string
	offset := 0
	for {
		best := hit{pos: -1}
		for _, label := range labels {
			pos := strings.Index(lowered[offset:], strings.ToLower(label))
			if pos < 0 {
				continue
			}
			if best.pos < 0 || pos < best.pos {
				best = hit{pos: pos, label: label}
			}
		}
		if best.pos < 0 {
			break
		}
		if !seen[best.label] {
			seen[best.label] = true
			ranking = append(ranking, best.label)
		}
		offset += best.pos + len(best.label)
	}
	return ranking
}

func rankingSection(text string) (string, bool) {
	lowered := strings.ToLower(text)
	best, bestLen := -1, 0
	for _, marker := range rankingMarkers {
		pos := strings.Index(lowered, strings.ToLower(marker))
		if pos < 0 {
			continue
		}
		if best < 0 || pos < best {
			best, bestLen = pos, len(marker)
		}
	}
	if best < 0 {
		return "", false
	}
	return text[best+bestLen:], true
}
