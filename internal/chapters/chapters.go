// Package chapters carries the chapter model shared by every analysis
// stage: ordered chapter texts with stable ids, split out of a raw
// manuscript when the source does not arrive pre-segmented.
package chapters

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Chapter is an immutable unit of novel text. Seq is the 1-based
// position in narrative order; ID is stable across runs and carries the
// ordinal in its digits so downstream stages can recover ordering from
// a serialized artifact alone.
type Chapter struct {
	Seq   int
	ID    string
	Title string
	Text  string
}

var headerLinePattern = regexp.MustCompile(`(?i)^\s*(chapter|ch\.)\s+([0-9ivxlcdm]+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty)\b.*`)
var headerInlinePattern = regexp.MustCompile(`(?i)\b(chapter|ch\.)\s+([0-9ivxlcdm]+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty)\b`)

// fallbackChunkWords bounds chapter size when a manuscript has no
// recognizable headers at all.
const fallbackChunkWords = 2500

// MakeID formats the canonical chapter id for a 1-based sequence
// number.
func MakeID(seq int) string {
	return fmt.Sprintf("chapter_%04d", seq)
}

// ParseOrdinal recovers the 0-based chapter ordinal from an id by its
// digits. Ids without digits map to ordinal 0 rather than failing;
// ordering math downstream treats them as the earliest chapter.
func ParseOrdinal(id string) int {
	digits := strings.Builder{}
	for _, r := range id {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil || n <= 0 {
		return 0
	}
	return n - 1
}

// Split segments a manuscript into ordered chapters. Header lines win;
// inline headers cover manuscripts that run chapters together; a
// fixed-size word split is the last resort. The result is never empty:
// blank input yields a single empty chapter so chapter-count math never
// divides by zero.
func Split(text string) []Chapter {
	if out := splitOnHeaderLines(text); len(out) > 0 {
		return out
	}
	if out := splitOnInlineHeaders(text); len(out) >= 2 {
		return out
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []Chapter{{Seq: 1, ID: MakeID(1), Title: "Chapter 1", Text: ""}}
	}
	out := make([]Chapter, 0, len(words)/fallbackChunkWords+1)
	for start := 0; start < len(words); start += fallbackChunkWords {
		end := start + fallbackChunkWords
		if end > len(words) {
			end = len(words)
		}
		seq := len(out) + 1
		out = append(out, Chapter{
			Seq:   seq,
			ID:    MakeID(seq),
			Title: fmt.Sprintf("Chapter %d", seq),
			Text:  strings.Join(words[start:end], " "),
		})
	}
	return out
}

func splitOnHeaderLines(text string) []Chapter {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]Chapter, 0, 64)
	var title string
	var body []string
	sawHeader := false

	flush := func() {
		if len(body) == 0 {
			return
		}
		seq := len(out) + 1
		t := title
		if t == "" {
			t = fmt.Sprintf("Chapter %d", seq)
		}
		out = append(out, Chapter{Seq: seq, ID: MakeID(seq), Title: t, Text: strings.Join(body, "\n")})
		body = nil
	}

	for _, line := range lines {
		trim := strings.TrimSpace(line)
		if headerLinePattern.MatchString(trim) {
			sawHeader = true
			flush()
			title = trim
			continue
		}
		if trim != "" {
			body = append(body, trim)
		}
	}
	flush()

	if !sawHeader {
		return nil
	}
	return out
}

func splitOnInlineHeaders(text string) []Chapter {
	marks := headerInlinePattern.FindAllStringIndex(text, -1)
	if len(marks) < 2 {
		return nil
	}

	out := make([]Chapter, 0, len(marks))
	for i := range marks {
		start := marks[i][0]
		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		piece := strings.TrimSpace(text[start:end])
		if piece == "" {
			continue
		}
		seq := len(out) + 1
		out = append(out, Chapter{
			Seq:   seq,
			ID:    MakeID(seq),
			Title: titleOf(piece, seq),
			Text:  piece,
		})
	}
	return out
}

func titleOf(piece string, fallback int) string {
	words := strings.Fields(piece)
	if len(words) > 8 {
		words = words[:8]
	}
	line := strings.Join(words, " ")
	if headerLinePattern.MatchString(line) {
		return line
	}
	return fmt.Sprintf("Chapter %d", fallback)
}
