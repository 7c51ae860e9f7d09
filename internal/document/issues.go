package document

import (
	"github.com/DukeRupert/fieldreport/internal/domain"
)

// MergeIssue folds a sub-editor's issue back into the report. An existing
// issue with the same id is replaced in place, keeping its position;
// otherwise the issue is appended. Every other field of doc is carried over
// from the latest value, so edits made while the sub-editor was open survive.
func MergeIssue(doc *domain.ReportDocument, issue *domain.Issue) (*domain.ReportDocument, error) {
	if issue == nil {
		return nil, domain.Invalid("document.merge_issue", "issue is required")
	}
	if err := issue.Validate(); err != nil {
		return nil, err
	}

	next := doc.Clone()
	merged := issue.Clone()
	merged.Sanitize()

	replaced := false
	for i, existing := range next.Issues {
		if existing != nil && existing.IssueID == merged.IssueID {
			next.Issues[i] = merged
			replaced = true
			break
		}
	}
	if !replaced {
		next.Issues = append(next.Issues, merged)
	}

	refreshPending(next)
	next.MarkDirty()
	return next, nil
}

// RemoveIssue deletes the issue with the given id along with its attachments
// and parts.
func RemoveIssue(doc *domain.ReportDocument, issueID string) (*domain.ReportDocument, error) {
	next := doc.Clone()
	for i, existing := range next.Issues {
		if existing != nil && existing.IssueID == issueID {
			next.Issues = append(next.Issues[:i:i], next.Issues[i+1:]...)
			refreshPending(next)
			next.MarkDirty()
			return next, nil
		}
	}
	return nil, domain.NotFound("document.remove_issue", "issue", issueID)
}
