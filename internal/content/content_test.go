package content

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractTags_SkipsCodeAndFoldsCase(t *testing.T) {
	got := ExtractTags("Body #alpha #Beta-2 ```code #notatag``` more #gamma_x")
	want := []string{"alpha", "beta-2", "gamma_x"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractTags mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractTags_DigitLed(t *testing.T) {
	got := ExtractTags("#123 #ok")
	if diff := cmp.Diff([]string{"ok"}, got); diff != "" {
		t.Errorf("ExtractTags mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractTags_InlineCodeAndDuplicates(t *testing.T) {
	got := ExtractTags("use `#define` here\n#Go and #go again, also a#b")
	if diff := cmp.Diff([]string{"go"}, got); diff != "" {
		t.Errorf("ExtractTags mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractTags_Empty(t *testing.T) {
	got := ExtractTags("")
	if got == nil || len(got) != 0 {
		t.Errorf("ExtractTags(\"\") = %#v, want empty non-nil slice", got)
	}
}

func TestExtractLinks_Basic(t *testing.T) {
	body := "See [[Note A]] and [[Note B|alias]].\nAlso [[Note A]] again."
	got := ExtractLinks(body)
	if diff := cmp.Diff([]string{"Note A", "Note B"}, got); diff != "" {
		t.Errorf("ExtractLinks mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractLinks_EmptyTarget(t *testing.T) {
	links := ExtractLinks("see [[ ]] and [[|alias]]")
	if len(links) != 0 {
		t.Errorf("expected no links, got %v", links)
	}
}

func TestLinkTarget_RoundTrip(t *testing.T) {
	for _, title := range []string{"My Note", "A & B", "100% / done?", "Ünïcode"} {
		target := LinkTarget(title)
		got, err := TitleFromTarget(target)
		if err != nil {
			t.Fatalf("TitleFromTarget(%q): %v", target, err)
		}
		if got != title {
			t.Errorf("round trip of %q = %q", title, got)
		}
	}
	if got := LinkTarget("My Note"); got != "#/resolve/My%20Note" {
		t.Errorf("LinkTarget = %q", got)
	}
	if _, err := TitleFromTarget("#/resolve/%zz"); err == nil {
		t.Error("expected error for bad escape")
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "bold italic wikilink",
			in:   "**bold** and *italic* and [[My Note]]",
			want: `<strong>bold</strong> and <em>italic</em> and <a href="#/resolve/My%20Note" class="wikilink">My Note</a>`,
		},
		{
			name: "escapes markup",
			in:   "<script>alert(1)</script> & co",
			want: "&lt;script&gt;alert(1)&lt;/script&gt; &amp; co",
		},
		{
			name: "fenced code untouched",
			in:   "```\n**x** <b>\n```",
			want: "<pre class=\"code-block\"><code>\n**x** &lt;b&gt;\n</code></pre>",
		},
		{
			name: "inline code untouched",
			in:   "`*a*` *b*",
			want: `<code class="inline-code">*a*</code> <em>b</em>`,
		},
		{
			name: "headings longest marker first",
			in:   "# One\n## Two\n### Three",
			want: "<h1>One</h1><br><h2>Two</h2><br><h3>Three</h3>",
		},
		{
			name: "list runs wrapped",
			in:   "# Title\n- a\n- b\ntext\n- c",
			want: "<h1>Title</h1><br><ul><li>a</li><br><li>b</li></ul><br>text<br><ul><li>c</li></ul>",
		},
		{
			name: "wikilink around inline code",
			in:   "[[`x`]]",
			want: `<a href="#/resolve/x" class="wikilink"><code class="inline-code">x</code></a>`,
		},
		{
			name: "wikilink around escaped inline code",
			in:   "[[`a<b`]]",
			want: `<a href="#/resolve/a%3Cb" class="wikilink"><code class="inline-code">a&lt;b</code></a>`,
		},
		{
			name: "wikilink with entity",
			in:   "[[A & B]]",
			want: `<a href="#/resolve/A%20&amp;%20B" class="wikilink">A &amp; B</a>`,
		},
		{
			name: "crlf line breaks",
			in:   "one\r\ntwo",
			want: "one<br>two",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.in); got != tt.want {
				t.Errorf("Render(%q)\n got  %q\n want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRender_Deterministic(t *testing.T) {
	in := "# Head\n- **x** [[Y]]\n`code`"
	if Render(in) != Render(in) {
		t.Error("Render is not deterministic")
	}
}
