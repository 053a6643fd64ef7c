package web

import (
	"strings"
	"testing"
)

func TestCanonicalURL(t *testing.T) {
	cases := []struct {
		name, in, want string
		wantErr        bool
	}{
		{"adds https scheme", "example.com/page", "https://example.com/page", false},
		{"lowercases host", "https://EXAMPLE.Com/Page", "https://example.com/Page", false},
		{"strips fragment", "https://example.com/page#section-2", "https://example.com/page", false},
		{"keeps query", "https://example.com/search?q=go", "https://example.com/search?q=go", false},
		{"trims whitespace", "  https://example.com  ", "https://example.com", false},
		{"empty", "", "", true},
		{"bad scheme", "ftp://example.com/file", "", true},
		{"no host", "https:///path", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CanonicalURL(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractTitle(t *testing.T) {
	if got := extractTitle("<html><head><title> My &amp; Page </title></head></html>", "example.com"); got != "My & Page" {
		t.Errorf("title tag: got %q", got)
	}
	if got := extractTitle("<body><h1>Heading <em>One</em></h1></body>", "example.com"); got != "Heading One" {
		t.Errorf("h1 fallback: got %q", got)
	}
	if got := extractTitle("<body><p>no title anywhere</p></body>", "example.com"); got != "example.com" {
		t.Errorf("host fallback: got %q", got)
	}
}

func TestStripHTML_RemovesNonContent(t *testing.T) {
	html := `<html><head><title>T</title><style>.a{}</style></head>
<body>
<nav>Home | About</nav>
<script>alert("hi")</script>
<noscript>enable js</noscript>
<!-- a comment -->
<h1>Welcome</h1>
<p>First paragraph with &quot;entities&quot;.</p>
<div>Second   block</div>
<footer>copyright</footer>
</body></html>`

	text := stripHTML(html)

	for _, banned := range []string{"alert", "enable js", "Home | About", "copyright", "a comment", ".a{}"} {
		if strings.Contains(text, banned) {
			t.Errorf("expected %q to be stripped, got:\n%s", banned, text)
		}
	}
	for _, wanted := range []string{"Welcome", `First paragraph with "entities".`, "Second block"} {
		if !strings.Contains(text, wanted) {
			t.Errorf("expected %q in output, got:\n%s", wanted, text)
		}
	}
	if strings.Contains(text, "<") {
		t.Errorf("tags left in output:\n%s", text)
	}
}

func TestStripHTML_BlockBoundariesBecomeLines(t *testing.T) {
	text := stripHTML("<p>one</p><p>two</p><div>three</div>")
	lines := strings.Split(text, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), text)
	}
}

func TestNormalizePlainText(t *testing.T) {
	got := normalizePlainText("  line one\r\n\r\n\r\n\r\nline two  \n")
	want := "line one\n\nline two"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
