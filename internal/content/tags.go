// Package content holds the pure text functions over note bodies: tag
// extraction, wikilink detection and encoding, and Markdown rendering.
package content

import (
	"regexp"
	"sort"
	"strings"
)

var (
	fenceRe      = regexp.MustCompile("(?s)```(.*?)```")
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")
	tagRe        = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_-]*)`)
)

// ExtractTags returns the distinct lowercase #tags in text, sorted. Code
// fences and inline code spans are ignored, and a tag must start with a
// letter, so "#123" is never a tag.
func ExtractTags(text string) []string {
	if text == "" {
		return []string{}
	}
	text = fenceRe.ReplaceAllString(text, "")
	text = inlineCodeRe.ReplaceAllString(text, "")

	seen := make(map[string]struct{})
	out := []string{}
	for _, m := range tagRe.FindAllStringSubmatch(text, -1) {
		t := strings.ToLower(m[1])
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
