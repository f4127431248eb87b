package content

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ResolvePrefix is the route a wikilink target points at; the encoded
// title follows it.
const ResolvePrefix = "#/resolve/"

var wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)

// ExtractLinks returns the distinct wikilink titles in text in order of
// first appearance. [[Target|Alias]] yields Target.
func ExtractLinks(text string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// Wikilink returns the literal reference syntax for title.
func Wikilink(title string) string {
	return "[[" + title + "]]"
}

// LinkTarget encodes title into a link target.
func LinkTarget(title string) string {
	return ResolvePrefix + url.PathEscape(title)
}

// TitleFromTarget decodes a link target built by LinkTarget. A bare
// encoded title without the prefix is accepted too.
func TitleFromTarget(target string) (string, error) {
	title, err := url.PathUnescape(strings.TrimPrefix(target, ResolvePrefix))
	if err != nil {
		return "", fmt.Errorf("content: decode link target: %w", err)
	}
	return title, nil
}
