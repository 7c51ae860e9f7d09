package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DukeRupert/fieldreport/internal/domain"
)

// SummarySystemPrompt frames narrative generation.
const SummarySystemPrompt = `You are a senior field service engineer writing the narrative summary of a service visit report for the customer. Write in plain, factual prose. Do not invent findings that are not in the notes. Do not use headings or bullet points.`

// NameplateFields are the asset fields a nameplate scan can fill, by their
// document field names.
var NameplateFields = []string{
	"manufacturer",
	"model",
	"serialNumber",
	"voltage",
	"phase",
	"amperage",
	"installedYear",
}

// BuildSummaryPrompt lays out the report's facts for narrative generation.
func BuildSummaryPrompt(doc *domain.ReportDocument) string {
	var b strings.Builder

	b.WriteString("Write a 2-4 paragraph summary of this service visit.\n\n")

	if c := doc.Customer; c != nil && c.CompanyName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", c.CompanyName)
	}
	if s := doc.Site; s != nil && s.Name != "" {
		fmt.Fprintf(&b, "Site: %s\n", s.Name)
	}
	if a := doc.Asset; a != nil && (a.Manufacturer != "" || a.Model != "") {
		fmt.Fprintf(&b, "Equipment: %s %s (serial %s)\n", a.Manufacturer, a.Model, a.SerialNumber)
	}
	if v := doc.Visit; v != nil {
		if v.ServiceType != "" {
			fmt.Fprintf(&b, "Service type: %s\n", v.ServiceType)
		}
		if v.ServiceDate != "" {
			fmt.Fprintf(&b, "Service date: %s\n", v.ServiceDate)
		}
	}

	if len(doc.Issues) > 0 {
		b.WriteString("\nIssues found:\n")
		for i, issue := range doc.Issues {
			if issue == nil {
				continue
			}
			status := "open"
			if issue.Resolved {
				status = "resolved"
			}
			fmt.Fprintf(&b, "%d. %s [%s, %s urgency, %s]\n", i+1, issue.DisplayTitle(), issue.Category, issue.Urgency, status)
			if issue.ObservationText != "" {
				fmt.Fprintf(&b, "   Observed: %s\n", issue.ObservationText)
			}
			if issue.RootCause != "" {
				fmt.Fprintf(&b, "   Root cause: %s\n", issue.RootCause)
			}
			if issue.FixApplied != "" {
				fmt.Fprintf(&b, "   Fix applied: %s\n", issue.FixApplied)
			}
			for _, fix := range issue.ProposedFixes {
				if fix != nil && fix.Text != "" {
					fmt.Fprintf(&b, "   Proposed: %s\n", fix.Text)
				}
			}
		}
	}

	if len(doc.Parts) > 0 {
		b.WriteString("\nParts:\n")
		for _, p := range doc.Parts {
			if p == nil {
				continue
			}
			fmt.Fprintf(&b, "- %s %s x%s (%s)\n", p.PartNumber, p.Description, p.Quantity, p.Role)
		}
	}

	if doc.FollowUpRecommended {
		b.WriteString("\nA follow-up visit is recommended.\n")
	}
	if strings.TrimSpace(doc.NarrativeSummary) != "" {
		fmt.Fprintf(&b, "\nTechnician's draft notes:\n%s\n", doc.NarrativeSummary)
	}

	return b.String()
}

// BuildExtractionPrompt asks for a flat JSON object of the named fields.
func BuildExtractionPrompt(fields []string, hint string) string {
	prompt := fmt.Sprintf(`This photo shows an equipment nameplate or data plate. Read the following fields from it: %s.

Return ONLY a JSON object whose keys are exactly those field names and whose values are strings copied from the plate. Omit any field you cannot read with confidence. Do not guess.`, strings.Join(fields, ", "))
	if hint != "" {
		prompt += "\n\nContext from the technician: " + hint
	}
	return prompt
}

// TranscriptionPrompt asks for a verbatim transcript.
const TranscriptionPrompt = `Transcribe this field technician's voice note verbatim. Return only the transcript text, with no preamble.`

// ParseFields decodes a model's JSON reply, tolerating a surrounding code
// fence. Only requested fields with non-empty values are kept.
func ParseFields(text string, fields []string) (map[string]string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse extracted fields: %w", err)
	}

	wanted := make(map[string]bool, len(fields))
	for _, f := range fields {
		wanted[f] = true
	}

	out := make(map[string]string)
	for k, v := range raw {
		if len(wanted) > 0 && !wanted[k] {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case float64:
			s = strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", val), "0"), ".")
		case nil:
			continue
		default:
			s = fmt.Sprint(val)
		}
		if s = strings.TrimSpace(s); s != "" {
			out[k] = s
		}
	}
	return out, nil
}
