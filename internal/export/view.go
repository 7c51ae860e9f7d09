package export

import (
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/DukeRupert/fieldreport/internal/domain"
)

// field is one labelled value in a details table. Empty values are omitted
// when the view is built.
type field struct {
	Label string
	Value string
}

type album struct {
	Label       string
	Attachments []*domain.Attachment
}

type issueView struct {
	*domain.Issue
	Number int
	Color  string
	Accent template.CSS
	Albums []album
}

// reportView is the data both text templates render from.
type reportView struct {
	Doc       *domain.ReportDocument
	Title     string
	DisplayID string
	Status    string
	Author    string
	Updated   string
	Customer  []field
	Site      []field
	Asset     []field
	Visit     []field
	Tags      []string
	Issues    []issueView
	Albums    []album
	OpenCount int
}

func buildView(doc *domain.ReportDocument) *reportView {
	v := &reportView{
		Doc:       doc,
		Title:     doc.Title(),
		DisplayID: doc.DisplayID(),
		Status:    Label(strings.ToLower(doc.LifecycleState.String())),
		Author:    doc.AuthorDisplayName,
		Updated:   FormatDateTime(doc.UpdatedAt),
		Tags:      doc.ClassificationTags,
		Albums:    groupAlbums(doc.Attachments),
		OpenCount: doc.OpenIssueCount(),
	}
	if v.Author == "" {
		v.Author = doc.AuthorIdentity
	}

	if c := doc.Customer; c != nil {
		v.Customer = fields(
			"Company", c.CompanyName,
			"Contact", c.ContactName,
			"Email", c.Email,
			"Phone", c.Phone,
			"Address", c.Address,
		)
	}
	if s := doc.Site; s != nil {
		v.Site = fields(
			"Site", s.Name,
			"Address", s.Address,
			"City", s.City,
			"Region", s.Region,
			"Postal code", s.PostalCode,
			"Access notes", s.AccessNotes,
		)
	}
	if a := doc.Asset; a != nil {
		v.Asset = fields(
			"Manufacturer", a.Manufacturer,
			"Model", a.Model,
			"Serial number", a.SerialNumber,
			"Asset tag", a.AssetTag,
			"Voltage", a.Voltage,
			"Phase", a.Phase,
			"Amperage", a.Amperage,
			"Installed", a.InstalledYear,
		)
	}
	if vi := doc.Visit; vi != nil {
		v.Visit = fields(
			"Service date", vi.ServiceDate,
			"Arrival", vi.ArrivalTime,
			"Departure", vi.DepartureTime,
			"Job number", vi.JobNumber,
			"Purchase order", vi.PurchaseOrder,
			"Service type", vi.ServiceType,
		)
	}

	n := 0
	for _, issue := range doc.Issues {
		if issue == nil {
			continue
		}
		n++
		v.Issues = append(v.Issues, issueView{
			Issue:  issue,
			Number: n,
			Color:  UrgencyColor(issue.Urgency),
			Accent: template.CSS("border-left-color: " + UrgencyColor(issue.Urgency)),
			Albums: groupAlbums(issue.Attachments),
		})
	}

	// Most urgent first; the original order breaks ties.
	sort.SliceStable(v.Issues, func(i, j int) bool {
		return v.Issues[i].Urgency.SortOrder() < v.Issues[j].Urgency.SortOrder()
	})
	return v
}

func fields(pairs ...string) []field {
	var out []field
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			continue
		}
		out = append(out, field{Label: pairs[i], Value: pairs[i+1]})
	}
	return out
}

// groupAlbums buckets attachments in first-seen bucket order.
func groupAlbums(atts []*domain.Attachment) []album {
	var (
		out   []album
		index = make(map[domain.AttachmentBucket]int)
	)
	for _, a := range atts {
		if a == nil {
			continue
		}
		i, ok := index[a.Bucket]
		if !ok {
			i = len(out)
			index[a.Bucket] = i
			out = append(out, album{Label: a.Bucket.Label()})
		}
		out[i].Attachments = append(out[i].Attachments, a)
	}
	return out
}

// templateFuncs are shared by the HTML and Markdown templates.
func templateFuncs() map[string]any {
	return map[string]any{
		"label":    Label,
		"date":     FormatDate,
		"datetime": FormatDateTime,
		"add": func(a, b int) int {
			return a + b
		},
		"join": strings.Join,
		"dict": func(values ...any) map[string]any {
			if len(values)%2 != 0 {
				return nil
			}
			dict := make(map[string]any, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					return nil
				}
				dict[key] = values[i+1]
			}
			return dict
		},
		"yesno": func(b bool) string {
			if b {
				return "Yes"
			}
			return "No"
		},
		"lineItems": func(items []*domain.LineItem) []string {
			var out []string
			for _, it := range items {
				if it != nil && strings.TrimSpace(it.Text) != "" {
					out = append(out, it.Text)
				}
			}
			return out
		},
		"partRows": func(parts []*domain.PartLineItem) []*domain.PartLineItem {
			var out []*domain.PartLineItem
			for _, p := range parts {
				if p != nil {
					out = append(out, p)
				}
			}
			return out
		},
		"size": func(a *domain.Attachment) string {
			return a.FormatSize()
		},
		// imageSrc only trusts inline image payloads; anything else renders
		// as an empty, inert source.
		"imageSrc": func(a *domain.Attachment) template.URL {
			if a == nil || !strings.HasPrefix(a.EncodedPayload, "data:image/") {
				return ""
			}
			return template.URL(a.EncodedPayload)
		},
		"inlineImage": func(a *domain.Attachment) bool {
			return a != nil && strings.HasPrefix(a.EncodedPayload, "data:image/")
		},
		"mdEscape": func(s string) string {
			return mdReplacer.Replace(s)
		},
		"mdCell": func(s string) string {
			return strings.ReplaceAll(strings.ReplaceAll(mdReplacer.Replace(s), "\n", " "), "|", `\|`)
		},
		"state": func(a *domain.Attachment) string {
			if a.IngestionState == domain.IngestionFailed && a.Error != "" {
				return fmt.Sprintf("failed: %s", a.Error)
			}
			return strings.ToLower(string(a.IngestionState))
		},
	}
}

var mdReplacer = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"#", `\#`,
	"[", `\[`,
	"]", `\]`,
	"<", "&lt;",
	">", "&gt;",
)
