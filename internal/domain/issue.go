// Package domain contains core business types and interfaces.
//
// This file defines the Issue aggregate nested inside a report, along with
// the line items and parts that issues and reports share.
package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// Issue Category
// =============================================================================

// IssueCategory is a fixed taxonomy for classifying problems found on site.
type IssueCategory string

const (
	IssueCategoryElectrical    IssueCategory = "electrical"
	IssueCategoryMechanical    IssueCategory = "mechanical"
	IssueCategoryControls      IssueCategory = "controls"
	IssueCategoryHydraulic     IssueCategory = "hydraulic"
	IssueCategoryPneumatic     IssueCategory = "pneumatic"
	IssueCategoryRefrigeration IssueCategory = "refrigeration"
	IssueCategorySoftware      IssueCategory = "software"
	IssueCategorySafety        IssueCategory = "safety"
	IssueCategoryOther         IssueCategory = "other"
)

// AllIssueCategories returns every category in display order.
func AllIssueCategories() []IssueCategory {
	return []IssueCategory{
		IssueCategoryElectrical,
		IssueCategoryMechanical,
		IssueCategoryControls,
		IssueCategoryHydraulic,
		IssueCategoryPneumatic,
		IssueCategoryRefrigeration,
		IssueCategorySoftware,
		IssueCategorySafety,
		IssueCategoryOther,
	}
}

// String returns the string representation of the category.
func (c IssueCategory) String() string {
	return string(c)
}

// IsValid returns true if the category is a recognized value.
func (c IssueCategory) IsValid() bool {
	for _, known := range AllIssueCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseIssueCategory normalizes user input into a category.
func ParseIssueCategory(s string) (IssueCategory, error) {
	c := IssueCategory(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", Invalid("domain.parse_issue_category", fmt.Sprintf("unknown issue category %q", s))
	}
	return c, nil
}

// =============================================================================
// Urgency
// =============================================================================

// Urgency ranks how quickly an issue needs attention.
type Urgency string

const (
	UrgencyLow      Urgency = "Low"
	UrgencyMedium   Urgency = "Medium"
	UrgencyHigh     Urgency = "High"
	UrgencyCritical Urgency = "Critical"
)

// String returns the string representation of the urgency.
func (u Urgency) String() string {
	return string(u)
}

// IsValid returns true if the urgency is a recognized value.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// SortOrder returns a numeric value for sorting (lower = more urgent).
func (u Urgency) SortOrder() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 3
	default:
		return 4
	}
}

// ParseUrgency accepts any casing ("high", "HIGH").
func ParseUrgency(s string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return UrgencyLow, nil
	case "medium":
		return UrgencyMedium, nil
	case "high":
		return UrgencyHigh, nil
	case "critical":
		return UrgencyCritical, nil
	}
	return "", Invalid("domain.parse_urgency", fmt.Sprintf("unknown urgency %q", s))
}

// =============================================================================
// Line Items and Parts
// =============================================================================

// LineItem is one free-form entry in an ordered list.
type LineItem struct {
	ItemID string `json:"itemId"`
	Text   string `json:"text"`
}

// NewLineItem creates a line item with a fresh id.
func NewLineItem(text string) *LineItem {
	return &LineItem{ItemID: uuid.NewString(), Text: text}
}

// PartRole says what a part line item is for.
type PartRole string

const (
	PartRoleUsed    PartRole = "used"
	PartRoleNeeded  PartRole = "needed"
	PartRoleWaiting PartRole = "waiting"
)

// IsValid returns true if the role is a recognized value.
func (r PartRole) IsValid() bool {
	switch r {
	case PartRoleUsed, PartRoleNeeded, PartRoleWaiting:
		return true
	}
	return false
}

// ParsePartRole normalizes user input into a role.
func ParsePartRole(s string) (PartRole, error) {
	r := PartRole(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", Invalid("domain.parse_part_role", fmt.Sprintf("part role must be used, needed or waiting, got %q", s))
	}
	return r, nil
}

// PartLineItem records one part. Quantity is free text ("2", "1 box", "TBD").
type PartLineItem struct {
	LineID      string   `json:"lineId"`
	PartNumber  string   `json:"partNumber"`
	Description string   `json:"description"`
	Quantity    string   `json:"quantity"`
	Notes       string   `json:"notes"`
	Role        PartRole `json:"role"`
}

// =============================================================================
// Issue Domain Type
// =============================================================================

// IssueFlags are per-issue reporting switches.
type IssueFlags struct {
	IncludeInManufacturerReport bool `json:"includeInManufacturerReport"`
	RequiresFollowUp            bool `json:"requiresFollowUp"`
}

// Issue is one problem record within a report. Resolution fields are only
// meaningful once Resolved is set, but nothing prevents filling them earlier.
type Issue struct {
	IssueID               string          `json:"issueId"`
	Title                 string          `json:"title"`
	Category              IssueCategory   `json:"category"`
	Urgency               Urgency         `json:"urgency"`
	Resolved              bool            `json:"resolved"`
	ObservationText       string          `json:"observationText"`
	ProposedFixes         []*LineItem     `json:"proposedFixes"`
	TroubleshootingSteps  []*LineItem     `json:"troubleshootingSteps"`
	RootCause             string          `json:"rootCause"`
	FixApplied            string          `json:"fixApplied"`
	VerifiedBy            string          `json:"verifiedBy"`
	Notes                 string          `json:"notes"`
	CustomerFacingSummary string          `json:"customerFacingSummary"`
	Attachments           []*Attachment   `json:"attachments"`
	Parts                 []*PartLineItem `json:"parts"`
	Flags                 IssueFlags      `json:"flags"`
}

// NewIssue creates an empty issue. Identity is assigned before any field
// is filled in.
func NewIssue() *Issue {
	return &Issue{
		IssueID:              uuid.NewString(),
		Category:             IssueCategoryOther,
		Urgency:              UrgencyMedium,
		ProposedFixes:        []*LineItem{},
		TroubleshootingSteps: []*LineItem{},
		Attachments:          []*Attachment{},
		Parts:                []*PartLineItem{},
	}
}

// Validate checks the enum fields. Resolution fields are not checked.
func (i *Issue) Validate() error {
	const op = "issue.validate"

	if strings.TrimSpace(i.IssueID) == "" {
		return Invalid(op, "issue id is required")
	}
	if i.Category != "" && !i.Category.IsValid() {
		return Invalid(op, fmt.Sprintf("unknown issue category %q", i.Category))
	}
	if i.Urgency != "" && !i.Urgency.IsValid() {
		return Invalid(op, fmt.Sprintf("unknown urgency %q", i.Urgency))
	}
	for _, p := range i.Parts {
		if p != nil && p.Role != "" && !p.Role.IsValid() {
			return Invalid(op, fmt.Sprintf("unknown part role %q", p.Role))
		}
	}
	return nil
}

// FindAttachment returns the issue attachment with the given id, or nil.
func (i *Issue) FindAttachment(attachmentID string) *Attachment {
	for _, a := range i.Attachments {
		if a != nil && a.AttachmentID == attachmentID {
			return a
		}
	}
	return nil
}

// DisplayTitle falls back to the category when no title was entered.
func (i *Issue) DisplayTitle() string {
	if strings.TrimSpace(i.Title) != "" {
		return i.Title
	}
	return "Untitled " + string(i.Category) + " issue"
}
