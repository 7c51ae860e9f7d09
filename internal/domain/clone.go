package domain

// Clone returns a deep copy of the document, including sync state.
// Nil collection entries are copied as nil; Sanitize removes them.
func (d *ReportDocument) Clone() *ReportDocument {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Customer = cloneCustomer(d.Customer)
	cp.Site = cloneSite(d.Site)
	cp.Asset = cloneAsset(d.Asset)
	cp.Visit = cloneVisit(d.Visit)
	cp.ClassificationTags = cloneStrings(d.ClassificationTags)
	cp.Attachments = cloneAttachments(d.Attachments)
	cp.Issues = cloneIssues(d.Issues)
	cp.Parts = cloneParts(d.Parts)
	cp.ToolsBought = cloneLineItems(d.ToolsBought)
	cp.ToolsUsed = cloneLineItems(d.ToolsUsed)
	cp.NewNameplates = cloneLineItems(d.NewNameplates)
	cp.SyncState.PendingUploadIDs = clonePending(d.SyncState.PendingUploadIDs)
	return &cp
}

// Clone returns a deep copy of the issue.
func (i *Issue) Clone() *Issue {
	if i == nil {
		return nil
	}
	cp := *i
	cp.ProposedFixes = cloneLineItems(i.ProposedFixes)
	cp.TroubleshootingSteps = cloneLineItems(i.TroubleshootingSteps)
	cp.Attachments = cloneAttachments(i.Attachments)
	cp.Parts = cloneParts(i.Parts)
	return &cp
}

// Clone returns a copy of the attachment.
func (a *Attachment) Clone() *Attachment {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// Clone returns a copy of the part.
func (p *PartLineItem) Clone() *PartLineItem {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func cloneCustomer(c *Customer) *Customer {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func cloneSite(s *Site) *Site {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

func cloneAsset(a *Asset) *Asset {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

func cloneVisit(v *Visit) *Visit {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneLineItems(in []*LineItem) []*LineItem {
	if in == nil {
		return nil
	}
	out := make([]*LineItem, len(in))
	for i, item := range in {
		if item != nil {
			cp := *item
			out[i] = &cp
		}
	}
	return out
}

func cloneAttachments(in []*Attachment) []*Attachment {
	if in == nil {
		return nil
	}
	out := make([]*Attachment, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

func cloneParts(in []*PartLineItem) []*PartLineItem {
	if in == nil {
		return nil
	}
	out := make([]*PartLineItem, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func cloneIssues(in []*Issue) []*Issue {
	if in == nil {
		return nil
	}
	out := make([]*Issue, len(in))
	for i, issue := range in {
		out[i] = issue.Clone()
	}
	return out
}

func clonePending(in map[string]struct{}) map[string]struct{} {
	if in == nil {
		return nil
	}
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
