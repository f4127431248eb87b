package mcpserver

// NoteSyntax describes the note syntax that LLM consumers should follow
// when creating notes.
const NoteSyntax = `# zettenote Note Syntax

A note has a title and a Markdown body. At least one of them must be non-empty.
Titles are at most 500 characters.

## Markdown subset

- ` + "`" + `# ` + "`" + `, ` + "`" + `## ` + "`" + ` and ` + "`" + `### ` + "`" + ` at the start of a line make headings.
- ` + "`" + `**bold**` + "`" + ` and ` + "`" + `*italic*` + "`" + `.
- ` + "`" + "`code`" + "`" + ` spans and fenced blocks between triple backticks.
- Lines starting with ` + "`" + `- ` + "`" + ` form a bullet list.
- Every other newline is a line break. Raw HTML is escaped, never rendered.

## Tags

Write ` + "`" + `#tag` + "`" + ` anywhere in the body, after a space or at the start of a line.
A tag starts with a letter and continues with letters, digits, ` + "`" + `_` + "`" + ` or ` + "`" + `-` + "`" + `.
Tags are case-insensitive and stored lowercase. ` + "`" + `#123` + "`" + ` is not a tag, and
tags inside code are ignored.

## Wikilinks

` + "`" + `[[Note Title]]` + "`" + ` links to the note with that title. Resolution ignores case and
picks the first match. Backlinks count only the literal ` + "`" + `[[Title]]` + "`" + ` text, so
keep the title's exact spelling when you want a backlink to appear.

## Example

` + "```" + `markdown
## Reading list #books

- *Thinking in Systems*
- see [[Systems Thinking]] for notes
` + "```" + `
`
