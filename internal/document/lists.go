package document

import (
	"fmt"
	"strings"

	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/google/uuid"
)

// List names an ordered collection of free-text line items.
type List string

const (
	ListToolsBought          List = "toolsBought"
	ListToolsUsed            List = "toolsUsed"
	ListNewNameplates        List = "newNameplates"
	ListProposedFixes        List = "proposedFixes"
	ListTroubleshootingSteps List = "troubleshootingSteps"
)

// ParseList accepts the JSON field name of a list.
func ParseList(s string) (List, error) {
	switch l := List(strings.TrimSpace(s)); l {
	case ListToolsBought, ListToolsUsed, ListNewNameplates,
		ListProposedFixes, ListTroubleshootingSteps:
		return l, nil
	}
	return "", domain.Invalid("document.parse_list", fmt.Sprintf("unknown list %q", s))
}

// IsIssueList returns true for lists that live on an issue.
func (l List) IsIssueList() bool {
	return l == ListProposedFixes || l == ListTroubleshootingSteps
}

func documentList(doc *domain.ReportDocument, list List) (*[]*domain.LineItem, error) {
	switch list {
	case ListToolsBought:
		return &doc.ToolsBought, nil
	case ListToolsUsed:
		return &doc.ToolsUsed, nil
	case ListNewNameplates:
		return &doc.NewNameplates, nil
	}
	return nil, domain.Invalid("document.list", fmt.Sprintf("%q is not a report list", list))
}

func issueList(issue *domain.Issue, list List) (*[]*domain.LineItem, error) {
	switch list {
	case ListProposedFixes:
		return &issue.ProposedFixes, nil
	case ListTroubleshootingSteps:
		return &issue.TroubleshootingSteps, nil
	}
	return nil, domain.Invalid("document.list", fmt.Sprintf("%q is not an issue list", list))
}

// =============================================================================
// Report Lists
// =============================================================================

// AddListItem appends a new line item to a report-level list.
func AddListItem(doc *domain.ReportDocument, list List, text string) (*domain.ReportDocument, *domain.LineItem, error) {
	next := doc.Clone()
	items, err := documentList(next, list)
	if err != nil {
		return nil, nil, err
	}
	item := addItem(items, text)
	next.MarkDirty()
	return next, item, nil
}

// EditListItem replaces the text of the item with the given id.
func EditListItem(doc *domain.ReportDocument, list List, itemID, text string) (*domain.ReportDocument, error) {
	next := doc.Clone()
	items, err := documentList(next, list)
	if err != nil {
		return nil, err
	}
	if err := editItem(*items, itemID, text); err != nil {
		return nil, err
	}
	next.MarkDirty()
	return next, nil
}

// RemoveListItem deletes the item with the given id. Attachments whose
// FieldRef pointed at the item are left in place.
func RemoveListItem(doc *domain.ReportDocument, list List, itemID string) (*domain.ReportDocument, error) {
	next := doc.Clone()
	items, err := documentList(next, list)
	if err != nil {
		return nil, err
	}
	if err := removeItem(items, itemID); err != nil {
		return nil, err
	}
	next.MarkDirty()
	return next, nil
}

func addItem(items *[]*domain.LineItem, text string) *domain.LineItem {
	item := domain.NewLineItem(text)
	*items = append(*items, item)
	return &domain.LineItem{ItemID: item.ItemID, Text: item.Text}
}

func editItem(items []*domain.LineItem, itemID, text string) error {
	for _, item := range items {
		if item != nil && item.ItemID == itemID {
			item.Text = text
			return nil
		}
	}
	return domain.NotFound("document.edit_list_item", "list item", itemID)
}

func removeItem(items *[]*domain.LineItem, itemID string) error {
	for i, item := range *items {
		if item != nil && item.ItemID == itemID {
			*items = append((*items)[:i:i], (*items)[i+1:]...)
			return nil
		}
	}
	return domain.NotFound("document.remove_list_item", "list item", itemID)
}

// =============================================================================
// Parts
// =============================================================================

// AddPart appends a part to the report. A missing line id is generated and
// a missing role defaults to used.
func AddPart(doc *domain.ReportDocument, part domain.PartLineItem) (*domain.ReportDocument, *domain.PartLineItem, error) {
	next := doc.Clone()
	added, err := addPart(&next.Parts, part)
	if err != nil {
		return nil, nil, err
	}
	next.MarkDirty()
	return next, added, nil
}

// EditPart replaces the part with the same line id.
func EditPart(doc *domain.ReportDocument, part domain.PartLineItem) (*domain.ReportDocument, error) {
	next := doc.Clone()
	if err := editPart(next.Parts, part); err != nil {
		return nil, err
	}
	next.MarkDirty()
	return next, nil
}

// RemovePart deletes the part with the given line id.
func RemovePart(doc *domain.ReportDocument, lineID string) (*domain.ReportDocument, error) {
	next := doc.Clone()
	if err := removePart(&next.Parts, lineID); err != nil {
		return nil, err
	}
	next.MarkDirty()
	return next, nil
}

func normalizePart(op string, part *domain.PartLineItem) error {
	if part.Role == "" {
		part.Role = domain.PartRoleUsed
	}
	if !part.Role.IsValid() {
		return domain.Invalid(op, fmt.Sprintf("unknown part role %q", part.Role))
	}
	if strings.TrimSpace(part.PartNumber) == "" && strings.TrimSpace(part.Description) == "" {
		return domain.Invalid(op, "a part needs a part number or a description")
	}
	return nil
}

func addPart(parts *[]*domain.PartLineItem, part domain.PartLineItem) (*domain.PartLineItem, error) {
	if err := normalizePart("document.add_part", &part); err != nil {
		return nil, err
	}
	if part.LineID == "" {
		part.LineID = uuid.NewString()
	}
	*parts = append(*parts, part.Clone())
	return &part, nil
}

func editPart(parts []*domain.PartLineItem, part domain.PartLineItem) error {
	if err := normalizePart("document.edit_part", &part); err != nil {
		return err
	}
	for i, p := range parts {
		if p != nil && p.LineID == part.LineID {
			parts[i] = part.Clone()
			return nil
		}
	}
	return domain.NotFound("document.edit_part", "part", part.LineID)
}

func removePart(parts *[]*domain.PartLineItem, lineID string) error {
	for i, p := range *parts {
		if p != nil && p.LineID == lineID {
			*parts = append((*parts)[:i:i], (*parts)[i+1:]...)
			return nil
		}
	}
	return domain.NotFound("document.remove_part", "part", lineID)
}
