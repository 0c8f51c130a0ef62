package render

import (
	"strings"
	"testing"

	"github.com/ozlistings/outreach-engine/internal/domain"
)

func TestReplaceVariables(t *testing.T) {
	data := map[string]string{
		"FirstName": "Ada",
		"company":   "Acme",
		"ROLE":      "Developer",
		"Empty":     "",
	}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"exact match", "Hi {{FirstName}}", "Hi Ada"},
		{"lowercase fallback", "At {{Company}}", "At Acme"},
		{"uppercase fallback", "As a {{Role}}", "As a Developer"},
		{"unknown left verbatim", "Hi {{Missing}}", "Hi {{Missing}}"},
		{"empty value left verbatim", "X {{Empty}} Y", "X {{Empty}} Y"},
		{"multiple placeholders", "{{FirstName}} at {{Company}}", "Ada at Acme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReplaceVariables(tt.content, data); got != tt.want {
				t.Errorf("ReplaceVariables(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestReplaceVariablesNilData(t *testing.T) {
	if got := ReplaceVariables("Hi {{Name}}", nil); got != "Hi {{Name}}" {
		t.Errorf("got %q, want placeholder untouched", got)
	}
}

func TestUnsubscribeToken(t *testing.T) {
	tok := UnsubscribeToken("secret", "Ada@Example.COM")
	if len(tok) != 16 {
		t.Errorf("token length = %d, want 16", len(tok))
	}
	// Case-insensitive on the address
	if tok != UnsubscribeToken("secret", "ada@example.com") {
		t.Error("token should be identical for case variants of the address")
	}
	if tok == UnsubscribeToken("other-secret", "ada@example.com") {
		t.Error("token should depend on the secret")
	}
	if !VerifyUnsubscribeToken("secret", "ada@example.com", tok) {
		t.Error("expected token to verify")
	}
	if VerifyUnsubscribeToken("secret", "ada@example.com", "deadbeefdeadbeef") {
		t.Error("expected bogus token to fail verification")
	}
}

func testSections() []domain.Section {
	return []domain.Section{
		{ID: "s1", Name: "Intro", Type: domain.SectionText, Mode: domain.ModeStatic,
			Content: "Hi {{FirstName}},\n\nWe work with {{Company}}."},
		{ID: "s2", Name: "Pitch", Type: domain.SectionText, Mode: domain.ModePersonalized,
			Content: "Write a pitch"},
		{ID: "s3", Name: "Book a call", Type: domain.SectionButton, Mode: domain.ModeStatic,
			Content: "Book a call", ButtonURL: "https://ozlistings.com/call"},
	}
}

func testData() map[string]string {
	return map[string]string{
		"FirstName": "Ada",
		"Company":   "Acme",
		"Email":     "ada@example.com",
	}
}

func TestRenderHTML(t *testing.T) {
	r := New("https://dash.ozlistings.com", "secret")
	generated := map[string]string{"s2": "Your Opportunity Zone project caught our eye."}

	html := r.HTML(testSections(), "Hello {{FirstName}}", testData(), generated)

	for _, want := range []string{
		"<title>Hello Ada</title>",
		"Hi Ada,",
		"We work with Acme.",
		"Your Opportunity Zone project caught our eye.",
		`href="https://ozlistings.com/call"`,
		"Book a call",
		"/api/unsubscribe?email=ada%40example.com&amp;token=",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestRenderHTMLMissingGeneratedContent(t *testing.T) {
	r := New("https://dash.ozlistings.com", "secret")

	html := r.HTML(testSections(), "Hello", testData(), nil)

	if !strings.Contains(html, "[Pitch - Missing Content]") {
		t.Error("expected visible placeholder for missing generated content")
	}
}

func TestRenderHTMLParagraphSplitting(t *testing.T) {
	r := New("https://dash.ozlistings.com", "secret")
	sections := []domain.Section{
		{ID: "s1", Type: domain.SectionText, Mode: domain.ModeStatic,
			Content: "Para one.\n\nPara two\nwith a soft break."},
	}

	html := r.HTML(sections, "", testData(), nil)

	if got := strings.Count(html, `<p style="margin: 0 0 16px 0;`); got != 2 {
		t.Errorf("paragraph count = %d, want 2", got)
	}
	if !strings.Contains(html, "with a soft break.") || !strings.Contains(html, "Para two<br>") {
		t.Error("soft line break should render as <br>")
	}
}

func TestRenderText(t *testing.T) {
	r := New("https://dash.ozlistings.com", "secret")
	generated := map[string]string{"s2": "Your project caught our eye."}

	text := r.Text(testSections(), "Hello {{FirstName}}", testData(), generated)

	for _, want := range []string{
		"Hi Ada,",
		"We work with Acme.",
		"Your project caught our eye.",
		"Book a call -> https://ozlistings.com/call",
		"----",
		"To unsubscribe, visit: https://dash.ozlistings.com/api/unsubscribe?email=ada%40example.com&token=",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q", want)
		}
	}
	if strings.Contains(text, "<") {
		t.Error("plain text body should carry no HTML tags")
	}
	if strings.HasSuffix(text, "\n") {
		t.Error("trailing blank lines should be trimmed")
	}
}
