// Package domain contains core business types and interfaces.
//
// This file defines the ReportDocument aggregate root: one field-service
// report, its subject objects, and the local sync bookkeeping that travels
// with it but is never exported.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Lifecycle State
// =============================================================================

// LifecycleState represents where a report is in its one-way lifecycle.
type LifecycleState string

const (
	// LifecycleDraft indicates the report is still being filled out.
	LifecycleDraft LifecycleState = "DRAFT"

	// LifecycleCompleted indicates the report went through completion. There
	// is no transition back to draft.
	LifecycleCompleted LifecycleState = "COMPLETED"
)

// String returns the string representation of the state.
func (s LifecycleState) String() string {
	return string(s)
}

// IsValid returns true if the state is a recognized value.
func (s LifecycleState) IsValid() bool {
	switch s {
	case LifecycleDraft, LifecycleCompleted:
		return true
	}
	return false
}

// CanTransitionTo checks the monotonic DRAFT -> COMPLETED rule.
// Staying in the same state is always allowed.
func (s LifecycleState) CanTransitionTo(target LifecycleState) bool {
	if s == target {
		return true
	}
	return s == LifecycleDraft && target == LifecycleCompleted
}

// =============================================================================
// Export Format
// =============================================================================

// ExportFormat identifies one of the generated report artifacts.
type ExportFormat string

const (
	ExportFormatHTML     ExportFormat = "html"
	ExportFormatMarkdown ExportFormat = "md"
	ExportFormatJSON     ExportFormat = "json"
)

// AllExportFormats lists the artifacts produced at completion, in render order.
var AllExportFormats = []ExportFormat{ExportFormatHTML, ExportFormatMarkdown, ExportFormatJSON}

// String returns the string representation of the format.
func (f ExportFormat) String() string {
	return string(f)
}

// IsValid returns true if the format is a recognized value.
func (f ExportFormat) IsValid() bool {
	switch f {
	case ExportFormatHTML, ExportFormatMarkdown, ExportFormatJSON:
		return true
	}
	return false
}

// ContentType returns the MIME content type for the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatHTML:
		return "text/html; charset=utf-8"
	case ExportFormatMarkdown:
		return "text/markdown; charset=utf-8"
	case ExportFormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// FileExtension returns the file extension for the format.
func (f ExportFormat) FileExtension() string {
	return string(f)
}

// ParseExportFormat converts user input ("markdown", "HTML") into a format.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "html", "htm":
		return ExportFormatHTML, nil
	case "md", "markdown":
		return ExportFormatMarkdown, nil
	case "json":
		return ExportFormatJSON, nil
	}
	return "", Invalid("domain.parse_export_format", "format must be html, md or json")
}

// =============================================================================
// Subject Objects
// =============================================================================

// Customer describes who the work was performed for.
type Customer struct {
	CompanyName string `json:"companyName"`
	ContactName string `json:"contactName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
}

// Site describes where the work was performed.
type Site struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Region      string `json:"region"`
	PostalCode  string `json:"postalCode"`
	AccessNotes string `json:"accessNotes"`
}

// Asset describes the equipment that was serviced.
type Asset struct {
	Manufacturer  string `json:"manufacturer"`
	Model         string `json:"model"`
	SerialNumber  string `json:"serialNumber"`
	AssetTag      string `json:"assetTag"`
	Voltage       string `json:"voltage"`
	Phase         string `json:"phase"`
	Amperage      string `json:"amperage"`
	InstalledYear string `json:"installedYear"`
}

// Visit holds scheduling details. Dates and times are kept as entered;
// ordering between them is advisory only.
type Visit struct {
	ServiceDate   string `json:"serviceDate"`
	ArrivalTime   string `json:"arrivalTime"`
	DepartureTime string `json:"departureTime"`
	JobNumber     string `json:"jobNumber"`
	PurchaseOrder string `json:"purchaseOrder"`
	ServiceType   string `json:"serviceType"`
}

// =============================================================================
// Sync State
// =============================================================================

// SyncState is local bookkeeping. It is never serialized into exports.
type SyncState struct {
	LastPersistedAt  time.Time
	IsDirty          bool
	PendingUploadIDs map[string]struct{}
	Revision         int64
	IsOfflineHint    bool
}

// HasPendingUploads returns true while any attachment is still ingesting.
func (s SyncState) HasPendingUploads() bool {
	return len(s.PendingUploadIDs) > 0
}

// =============================================================================
// ReportDocument Domain Type
// =============================================================================

// ReportDocument is one field-service report.
type ReportDocument struct {
	LocalID           string         `json:"localId"`
	RemoteSequenceID  string         `json:"remoteSequenceId,omitempty"`
	LifecycleState    LifecycleState `json:"lifecycleState"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	AuthorIdentity    string         `json:"authorIdentity"`
	AuthorDisplayName string         `json:"authorDisplayName"`

	Customer            *Customer `json:"customer"`
	Site                *Site     `json:"site"`
	Asset               *Asset    `json:"asset"`
	Visit               *Visit    `json:"visit"`
	ClassificationTags  []string  `json:"classificationTags"`
	FollowUpRecommended bool      `json:"followUpRecommended"`
	NarrativeSummary    string    `json:"narrativeSummary"`

	Attachments   []*Attachment   `json:"attachments"`
	Issues        []*Issue        `json:"issues"`
	Parts         []*PartLineItem `json:"parts"`
	ToolsBought   []*LineItem     `json:"toolsBought"`
	ToolsUsed     []*LineItem     `json:"toolsUsed"`
	NewNameplates []*LineItem     `json:"newNameplates"`

	SyncState SyncState `json:"-"`
}

// NewReportDocument creates an empty draft authored by the given identity.
// The author is captured once here and never re-read.
func NewReportDocument(author Identity, now time.Time) *ReportDocument {
	return &ReportDocument{
		LocalID:            uuid.NewString(),
		LifecycleState:     LifecycleDraft,
		CreatedAt:          now,
		UpdatedAt:          now,
		AuthorIdentity:     author.ID,
		AuthorDisplayName:  author.DisplayName,
		Customer:           &Customer{},
		Site:               &Site{},
		Asset:              &Asset{},
		Visit:              &Visit{},
		ClassificationTags: []string{},
		Attachments:        []*Attachment{},
		Issues:             []*Issue{},
		Parts:              []*PartLineItem{},
		ToolsBought:        []*LineItem{},
		ToolsUsed:          []*LineItem{},
		NewNameplates:      []*LineItem{},
		SyncState: SyncState{
			IsDirty:  true,
			Revision: 1,
		},
	}
}

// IsCompleted returns true once the report has been through completion.
func (d *ReportDocument) IsCompleted() bool {
	return d.LifecycleState == LifecycleCompleted
}

// IsEditable returns true if the report content can still be changed.
// Attachment results still settle on completed reports.
func (d *ReportDocument) IsEditable() bool {
	return d.LifecycleState == LifecycleDraft
}

// MarkDirty records a content mutation.
func (d *ReportDocument) MarkDirty() {
	d.SyncState.IsDirty = true
	d.SyncState.Revision++
}

// MarkPersisted clears the dirty flag after a successful store write.
func (d *ReportDocument) MarkPersisted(at time.Time) {
	d.SyncState.IsDirty = false
	d.SyncState.LastPersistedAt = at
}

// TransitionTo moves the report to the target lifecycle state.
func (d *ReportDocument) TransitionTo(target LifecycleState) error {
	if !target.IsValid() {
		return Invalid("report.transition", fmt.Sprintf("unknown lifecycle state %q", target))
	}
	if !d.LifecycleState.CanTransitionTo(target) {
		return Conflict("report.transition", fmt.Sprintf("cannot transition from %s to %s", d.LifecycleState, target))
	}
	d.LifecycleState = target
	return nil
}

// DisplayID returns the human-facing identifier: the sequence id once
// assigned, otherwise a short form of the local id.
func (d *ReportDocument) DisplayID() string {
	if d.RemoteSequenceID != "" {
		return d.RemoteSequenceID
	}
	if len(d.LocalID) > 8 {
		return d.LocalID[:8]
	}
	return d.LocalID
}

// Title returns a one-line description for listings.
func (d *ReportDocument) Title() string {
	var parts []string
	if d.Customer != nil && d.Customer.CompanyName != "" {
		parts = append(parts, d.Customer.CompanyName)
	}
	if d.Site != nil && d.Site.Name != "" {
		parts = append(parts, d.Site.Name)
	}
	if d.Asset != nil && d.Asset.Model != "" {
		parts = append(parts, d.Asset.Model)
	}
	if len(parts) == 0 {
		return "Untitled report"
	}
	return strings.Join(parts, " / ")
}

// FindIssue returns the issue with the given id, or nil.
func (d *ReportDocument) FindIssue(issueID string) *Issue {
	for _, issue := range d.Issues {
		if issue != nil && issue.IssueID == issueID {
			return issue
		}
	}
	return nil
}

// FindAttachment searches the document and every issue for an attachment.
func (d *ReportDocument) FindAttachment(attachmentID string) *Attachment {
	for _, a := range d.Attachments {
		if a != nil && a.AttachmentID == attachmentID {
			return a
		}
	}
	for _, issue := range d.Issues {
		if issue == nil {
			continue
		}
		if a := issue.FindAttachment(attachmentID); a != nil {
			return a
		}
	}
	return nil
}

// AllAttachments returns document-level then issue-level attachments in order.
func (d *ReportDocument) AllAttachments() []*Attachment {
	var out []*Attachment
	for _, a := range d.Attachments {
		if a != nil {
			out = append(out, a)
		}
	}
	for _, issue := range d.Issues {
		if issue == nil {
			continue
		}
		for _, a := range issue.Attachments {
			if a != nil {
				out = append(out, a)
			}
		}
	}
	return out
}

// OpenIssueCount returns the number of issues not yet resolved.
func (d *ReportDocument) OpenIssueCount() int {
	n := 0
	for _, issue := range d.Issues {
		if issue != nil && !issue.Resolved {
			n++
		}
	}
	return n
}
