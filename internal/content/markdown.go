package content

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	markupEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

	boldRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe     = regexp.MustCompile(`\*(.+?)\*`)
	h3Re         = regexp.MustCompile(`(?m)^### (.+)$`)
	h2Re         = regexp.MustCompile(`(?m)^## (.+)$`)
	h1Re         = regexp.MustCompile(`(?m)^# (.+)$`)
	bulletRe     = regexp.MustCompile(`(?m)^- (.+)$`)
	renderLinkRe = regexp.MustCompile(`\[\[([^\[\]\n]+?)\]\]`)
	slotRe       = regexp.MustCompile("\x00([0-9]+)\x00")
)

// Render converts Markdown text to HTML markup. It supports headings
// (#, ##, ###), bold, italic, inline code, fenced code blocks, bullet
// lists, [[wikilinks]] and line breaks. All input is escaped before any
// markup is produced. Rules apply in a fixed order:
//
//	escape, code blocks, inline code, bold, italic, headings,
//	list items and list wrapping, wikilinks, line breaks.
//
// Code block and inline code contents are not touched by later rules.
func Render(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	// NUL delimits the code slots below.
	text = strings.ReplaceAll(text, "\x00", "")

	out := markupEscaper.Replace(text)

	// plain holds the escaped text of each slot for link targets.
	var slots, plain []string
	keep := func(markup, code string) string {
		slots = append(slots, markup)
		plain = append(plain, code)
		return "\x00" + strconv.Itoa(len(slots)-1) + "\x00"
	}

	out = fenceRe.ReplaceAllStringFunc(out, func(m string) string {
		code := fenceRe.FindStringSubmatch(m)[1]
		return keep(`<pre class="code-block"><code>`+code+`</code></pre>`, code)
	})
	out = inlineCodeRe.ReplaceAllStringFunc(out, func(m string) string {
		code := inlineCodeRe.FindStringSubmatch(m)[1]
		return keep(`<code class="inline-code">`+code+`</code>`, code)
	})

	out = boldRe.ReplaceAllString(out, "<strong>$1</strong>")
	out = italicRe.ReplaceAllString(out, "<em>$1</em>")

	out = h3Re.ReplaceAllString(out, "<h3>$1</h3>")
	out = h2Re.ReplaceAllString(out, "<h2>$1</h2>")
	out = h1Re.ReplaceAllString(out, "<h1>$1</h1>")

	out = bulletRe.ReplaceAllString(out, "<li>$1</li>")
	out = wrapListRuns(out)

	out = renderLinkRe.ReplaceAllStringFunc(out, func(m string) string {
		title := renderLinkRe.FindStringSubmatch(m)[1]
		// title is already escaped; the target encodes the raw title.
		raw := html.UnescapeString(fillSlots(title, plain))
		href := html.EscapeString(LinkTarget(raw))
		return `<a href="` + href + `" class="wikilink">` + title + `</a>`
	})

	out = strings.ReplaceAll(out, "\n", "<br>")

	return fillSlots(out, slots)
}

// fillSlots replaces each slot token in s with its entry in vals.
func fillSlots(s string, vals []string) string {
	return slotRe.ReplaceAllStringFunc(s, func(m string) string {
		i, err := strconv.Atoi(slotRe.FindStringSubmatch(m)[1])
		if err != nil || i >= len(vals) {
			return ""
		}
		return vals[i]
	})
}

// wrapListRuns wraps each run of consecutive <li> lines in one <ul>.
// Line breaks are kept, so they still become <br> later.
func wrapListRuns(s string) string {
	lines := strings.Split(s, "\n")
	var b strings.Builder
	inList := false
	for i, line := range lines {
		isItem := strings.HasPrefix(line, "<li>") && strings.HasSuffix(line, "</li>")
		switch {
		case isItem && inList:
			b.WriteByte('\n')
			b.WriteString(line)
		case isItem:
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("<ul>")
			b.WriteString(line)
			inList = true
		case inList:
			b.WriteString("</ul>\n")
			b.WriteString(line)
			inList = false
		default:
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(line)
		}
	}
	if inList {
		b.WriteString("</ul>")
	}
	return b.String()
}
