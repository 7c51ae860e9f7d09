package domain

// Sanitize normalizes a possibly partial or legacy document in place:
// missing subject objects become empty values, nil collections become empty
// ones, and nil entries are dropped from every collection including each
// issue's own. It returns the number of entries dropped.
func (d *ReportDocument) Sanitize() int {
	if d.Customer == nil {
		d.Customer = &Customer{}
	}
	if d.Site == nil {
		d.Site = &Site{}
	}
	if d.Asset == nil {
		d.Asset = &Asset{}
	}
	if d.Visit == nil {
		d.Visit = &Visit{}
	}
	if d.ClassificationTags == nil {
		d.ClassificationTags = []string{}
	}
	if d.LifecycleState == "" {
		d.LifecycleState = LifecycleDraft
	}

	dropped := 0
	d.Attachments, dropped = compact(d.Attachments, dropped)
	d.Parts, dropped = compact(d.Parts, dropped)
	d.ToolsBought, dropped = compact(d.ToolsBought, dropped)
	d.ToolsUsed, dropped = compact(d.ToolsUsed, dropped)
	d.NewNameplates, dropped = compact(d.NewNameplates, dropped)
	d.Issues, dropped = compact(d.Issues, dropped)

	for _, issue := range d.Issues {
		dropped += issue.Sanitize()
	}
	return dropped
}

// Sanitize drops nil entries from the issue's collections and returns how
// many were removed.
func (i *Issue) Sanitize() int {
	dropped := 0
	i.ProposedFixes, dropped = compact(i.ProposedFixes, dropped)
	i.TroubleshootingSteps, dropped = compact(i.TroubleshootingSteps, dropped)
	i.Attachments, dropped = compact(i.Attachments, dropped)
	i.Parts, dropped = compact(i.Parts, dropped)
	return dropped
}

// compact returns a non-nil slice without nil entries, adding the number of
// removed entries to dropped.
func compact[T any](in []*T, dropped int) ([]*T, int) {
	out := make([]*T, 0, len(in))
	for _, v := range in {
		if v == nil {
			dropped++
			continue
		}
		out = append(out, v)
	}
	return out, dropped
}
