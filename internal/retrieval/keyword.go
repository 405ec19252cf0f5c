package retrieval

import "strings"

const maxKeywordTokens = 20

// ExtractKeywords lowercases query, splits on whitespace, strips the
// configured stop-word set, and keeps at most maxKeywordTokens distinctive
// tokens (§4.5).
func ExtractKeywords(query string, stopWords []string) []string {
	stop := make(map[string]bool, len(stopWords))
	for _, w := range stopWords {
		stop[strings.ToLower(w)] = true
	}

	fields := strings.Fields(strings.ToLower(query))
	var keywords []string
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if f == "" || stop[f] {
			continue
		}
		keywords = append(keywords, f)
		if len(keywords) >= maxKeywordTokens {
			break
		}
	}
	return keywords
}

// keywordScore is a simple containment-fraction score in [0,1]: the
// fraction of keywords found (as substrings, case-insensitively) in text.
func keywordScore(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}
