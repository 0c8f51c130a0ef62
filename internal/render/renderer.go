// Package render turns a campaign's section list into a finished email body,
// HTML or plain text, with recipient variable substitution and a signed
// unsubscribe footer.
package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/ozlistings/outreach-engine/internal/domain"
)

// Brand palette shared with the dashboard email preview.
var brand = struct {
	primary      string
	primaryLight string
	textMuted    string
	textLight    string
	bgLight      string
	bgCard       string
	bgFooter     string
	border       string
}{
	primary:      "#1e88e5",
	primaryLight: "#bfdbfe",
	textMuted:    "#4b5563",
	textLight:    "#9ca3af",
	bgLight:      "#f3f4f6",
	bgCard:       "#ffffff",
	bgFooter:     "#f9fafb",
	border:       "#e5e7eb",
}

// Renderer builds email bodies. BaseURL points at the dashboard that serves
// the unsubscribe endpoint; UnsubscribeSecret signs the links.
type Renderer struct {
	BaseURL           string
	UnsubscribeSecret string
}

// New creates a Renderer.
func New(baseURL, unsubscribeSecret string) *Renderer {
	return &Renderer{BaseURL: baseURL, UnsubscribeSecret: unsubscribeSecret}
}

// Subject substitutes recipient variables into a subject line.
func (r *Renderer) Subject(subject string, data map[string]string) string {
	return ReplaceVariables(subject, data)
}

// sectionText resolves the final text for one section: generated content for
// personalized sections, variable substitution for static ones. A
// personalized section with no generated content gets a visible placeholder
// so a broken generation never ships silently.
func sectionText(s domain.Section, data, generated map[string]string) string {
	if s.Mode == domain.ModePersonalized {
		if txt, ok := generated[s.ID]; ok {
			return txt
		}
		return fmt.Sprintf("[%s - Missing Content]", s.Name)
	}
	return ReplaceVariables(s.Content, data)
}

// HTML renders the full branded HTML email.
func (r *Renderer) HTML(sections []domain.Section, subject string, data, generated map[string]string) string {
	processedSubject := r.Subject(subject, data)
	unsubscribeURL := r.UnsubscribeURL(data["Email"])

	var body strings.Builder
	for _, s := range sections {
		if s.Type == domain.SectionButton {
			text := sectionText(s, data, generated)
			href := s.ButtonURL
			if href == "" {
				href = "#"
			}
			fmt.Fprintf(&body, `
        <div style="margin: 24px 0; text-align: center;">
          <a href="%s" style="background-color: %s; color: #ffffff; padding: 14px 32px; border-radius: 8px; text-decoration: none; display: block; width: 100%%; box-sizing: border-box; font-weight: 600; font-size: 16px; text-align: center;">%s</a>
        </div>`, html.EscapeString(href), brand.primary, html.EscapeString(text))
			continue
		}

		for _, para := range strings.Split(sectionText(s, data, generated), "\n\n") {
			processed := strings.ReplaceAll(para, "\n", "<br>")
			fmt.Fprintf(&body, `<p style="margin: 0 0 16px 0; font-size: 15px; color: %s; line-height: 1.6;">%s</p>`,
				brand.textMuted, processed)
		}
	}

	content := body.String()
	if content == "" {
		content = `<p style="color: #9ca3af; font-style: italic;">No content available</p>`
	}
	headerTitle := processedSubject
	if headerTitle == "" {
		headerTitle = "Email Preview"
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>%s</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; background-color: %s; margin: 0; padding: 16px 0; font-size: 15px; line-height: 1.6;">
  <div style="width: 100%%; max-width: 640px; margin: 0 auto; background-color: %s; border-radius: 16px; border: 1px solid %s; overflow: hidden; box-shadow: 0 18px 45px rgba(15, 23, 42, 0.08), 0 8px 20px rgba(15, 23, 42, 0.06);">
    <div style="background-color: %s; padding: 18px 20px;">
      <table cellpadding="0" cellspacing="0" border="0" width="100%%">
        <tr>
          <td width="140" valign="middle">
            <img src="https://ozlistings.com/oz-listings-horizontal2-logo-white.webp" alt="OZListings" width="140" height="32" style="display: block; max-width: 140px; height: auto;">
          </td>
          <td valign="middle" style="padding-left: 12px;">
            <div style="margin: 0; font-size: 11px; letter-spacing: 0.14em; text-transform: uppercase; color: %s;">OZListings</div>
            <div style="margin: 2px 0 0 0; font-size: 18px; line-height: 1.4; color: #ffffff; font-weight: 800;">%s</div>
          </td>
        </tr>
      </table>
    </div>
    <div style="padding: 20px 20px 18px 20px;">
      %s
    </div>
    <div style="border-top: 1px solid %s; padding: 12px 24px 20px 24px; background-color: %s;">
      <p style="margin: 0 0 4px 0; font-size: 11px; color: %s;">
        This email was sent to you because you're listed as a developer with
        an Opportunity Zone project. If you'd prefer not to receive these
        emails, you can <a href="%s" style="color: %s; text-decoration: underline;">unsubscribe</a>.
      </p>
      <p style="margin: 0; font-size: 11px; color: %s;">&copy; 2024 OZListings. All rights reserved.</p>
    </div>
  </div>
</body>
</html>`,
		html.EscapeString(processedSubject), brand.bgLight, brand.bgCard, brand.border,
		brand.primary, brand.primaryLight, html.EscapeString(headerTitle),
		content,
		brand.border, brand.bgFooter, brand.textLight,
		html.EscapeString(unsubscribeURL), brand.primary, brand.textLight)
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// Text renders a plain text variant of the same content.
func (r *Renderer) Text(sections []domain.Section, subject string, data, generated map[string]string) string {
	unsubscribeURL := r.UnsubscribeURL(data["Email"])

	var lines []string
	for _, s := range sections {
		text := sectionText(s, data, generated)

		if s.Type == domain.SectionButton {
			href := s.ButtonURL
			if href == "" {
				href = "https://"
			}
			lines = append(lines, fmt.Sprintf("%s -> %s", text, href))
			continue
		}

		for _, para := range strings.Split(text, "\n\n") {
			lines = append(lines, htmlTagRe.ReplaceAllString(para, ""))
		}
		lines = append(lines, "")
	}

	lines = append(lines, "", "----", "To unsubscribe, visit: "+unsubscribeURL)

	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
