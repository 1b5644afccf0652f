package agent

import "strings"

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`i me my we our you your he she it they the a an is am are was were be been
		being have has had do does did will would could should can may might shall need want help please with for
		to of in on at by from about into through just also so but and or if then that this what which who how when
		where why all each every both few some any no not only very really much more most like get got make know
		think say tell give take`) {
		stopWords[w] = struct{}{}
	}
}

// ExtractKeywords lowercases input, drops punctuation, short words and stop
// words, and joins the rest with spaces. It falls back to the trimmed input
// when nothing survives.
func ExtractKeywords(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '\t', r == '\n', r == '\r':
			return r
		}
		return -1
	}, strings.ToLower(input))

	var words []string
	for _, w := range strings.Fields(cleaned) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		words = append(words, w)
	}
	if len(words) == 0 {
		return strings.TrimSpace(input)
	}
	return strings.Join(words, " ")
}
