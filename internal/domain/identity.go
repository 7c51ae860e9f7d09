package domain

// Identity is the active session as reported by the auth collaborator.
type Identity struct {
	ID          string
	DisplayName string
}

// IsZero returns true when no session is present.
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// Name returns the display name, falling back to the id.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.ID
}
