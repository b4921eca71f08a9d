package sessionrag

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// decisionPattern matches language that commits to a choice.
var decisionPattern = regexp.MustCompile(
	`(?i)\b(decided|decision|let's go with|we'll use|agreed|settled on|going with|chose|choosing)\b`)

// actionPattern matches follow-up and commitment language.
var actionPattern = regexp.MustCompile(
	`(?i)\b(todo|to-do|action item|will do|i'll|follow up|next step|remind me|need to|should)\b`)

// stopwords excluded from topic tags.
var stopwords = map[string]bool{
	"about": true, "after": true, "also": true, "assistant": true, "because": true,
	"been": true, "before": true, "being": true, "both": true, "cannot": true,
	"could": true, "does": true, "doing": true, "down": true, "each": true,
	"from": true, "have": true, "here": true, "into": true, "just": true,
	"like": true, "make": true, "more": true, "most": true, "much": true,
	"need": true, "only": true, "other": true, "over": true, "really": true,
	"same": true, "should": true, "some": true, "such": true, "than": true,
	"that": true, "them": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "those": true, "through": true, "under": true,
	"user": true, "very": true, "want": true, "well": true, "went": true,
	"were": true, "what": true, "when": true, "where": true, "which": true,
	"while": true, "will": true, "with": true, "would": true, "your": true,
	"youre": true, "think": true, "know": true, "going": true, "right": true,
	"thing": true, "things": true, "something": true, "anything": true,
}

// annotate fills a chunk's topic tags and decision/action flags from its
// content.
func annotate(c *Chunk) {
	c.TopicTags = topicTags(c.Content, 3)
	c.HasDecision = decisionPattern.MatchString(c.Content)
	c.HasAction = actionPattern.MatchString(c.Content)
}

// topicTags picks the top-n most frequent significant words: longer than
// three characters, not a stopword, not numeric. Hyphens become
// underscores so tags survive FTS tokenisation.
func topicTags(content string, n int) []string {
	counts := make(map[string]int)
	for _, field := range strings.Fields(strings.ToLower(content)) {
		word := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
				return r
			}
			return -1
		}, field)
		word = strings.Trim(word, "-")
		if len(word) <= 3 || stopwords[word] || isNumeric(word) {
			continue
		}
		counts[strings.ReplaceAll(word, "-", "_")]++
	}

	type wordCount struct {
		word  string
		count int
	}
	var ranked []wordCount
	for w, c := range counts {
		ranked = append(ranked, wordCount{w, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	var tags []string
	for i := 0; i < len(ranked) && i < n; i++ {
		tags = append(tags, ranked[i].word)
	}
	return tags
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
