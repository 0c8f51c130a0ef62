package genai

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ozlistings/outreach-engine/internal/domain"
)

// buildPrompt assembles the generation prompt for one recipient: the full
// email structure for context, the list of sections to generate, and the
// recipient's fields (minus anything email-shaped).
func buildPrompt(sections []domain.Section, personalized []domain.Section, recipientData map[string]string) string {
	ordered := make([]domain.Section, len(sections))
	copy(ordered, sections)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	var structure []string
	for i, s := range ordered {
		switch {
		case s.Mode == domain.ModePersonalized:
			fields := "any available"
			if len(s.SelectedFields) > 0 {
				fields = strings.Join(s.SelectedFields, ", ")
			}
			structure = append(structure, fmt.Sprintf(
				"%d. [GENERATE - ID: %q] %q\n   Instructions: %s\n   Fields to use: %s",
				i+1, s.ID, s.Name, s.Content, fields))
		case s.Type == domain.SectionButton:
			url := s.ButtonURL
			if url == "" {
				url = "booking link"
			}
			structure = append(structure, fmt.Sprintf("%d. [CTA BUTTON] %q -> %s", i+1, s.Content, url))
		default:
			plain := strings.NewReplacer("<br>", "\n", "<p>", "", "</p>", "\n").Replace(s.Content)
			if len(plain) > 150 {
				plain = plain[:150] + "..."
			}
			structure = append(structure, fmt.Sprintf("%d. [STATIC] %q: %q", i+1, s.Name, plain))
		}
	}

	// Keep recipient addresses out of the model input
	var fieldKeys []string
	for k := range recipientData {
		if !strings.Contains(strings.ToLower(k), "email") {
			fieldKeys = append(fieldKeys, k)
		}
	}
	sort.Strings(fieldKeys)

	var fields []string
	for _, k := range fieldKeys {
		v := recipientData[k]
		if v == "" {
			v = "(not provided)"
		}
		fields = append(fields, fmt.Sprintf("  %s: %s", k, v))
	}

	var toGenerate []string
	for _, s := range personalized {
		toGenerate = append(toGenerate, fmt.Sprintf("- %q (ID: %s)", s.Name, s.ID))
	}

	return fmt.Sprintf(`You are generating personalized email content for a recipient.

EMAIL STRUCTURE (for context):
%s

---

SECTIONS TO GENERATE:
%s

---

RECIPIENT DATA:
%s

---

Generate the [GENERATE] sections for this recipient. Follow the instructions provided for each section.
Return content that flows naturally with the static sections around it.
Keep each section concise (1-3 sentences).`,
		strings.Join(structure, "\n\n"),
		strings.Join(toGenerate, "\n"),
		strings.Join(fields, "\n"))
}
