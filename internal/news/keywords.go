package news

import "strings"

// AIKeywords mark an item as on-topic when any of them occurs in its title
// or content, case-insensitively.
var AIKeywords = []string{
	"ai", "aigc", "llm", "agent",
	"模型", "大模型", "多模态", "生成式", "人工智能", "机器学习", "深度学习", "推理",
	"token", "openai", "anthropic", "deepmind", "gpt", "claude", "gemini",
}

// CountSubstrings counts how many keywords occur in text as plain
// case-insensitive substrings. Each keyword counts once.
func CountSubstrings(text string, keywords []string) int {
	text = strings.ToLower(text)
	hits := 0
	for _, k := range keywords {
		k = strings.ToLower(k)
		if k != "" && strings.Contains(text, k) {
			hits++
		}
	}
	return hits
}

// MatchesRequired applies an allow-list: an empty list passes everything,
// otherwise any keyword must appear in the joined parts.
func MatchesRequired(keywords []string, parts ...string) bool {
	if len(keywords) == 0 {
		return true
	}
	return CountSubstrings(strings.Join(parts, " "), keywords) > 0
}
