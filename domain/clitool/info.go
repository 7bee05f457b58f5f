package clitool

// Info is the read-only snapshot of a tool published to consumers.
type Info struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	DisplayName   string        `json:"displayName"`
	Description   string        `json:"description"`
	State         State         `json:"state"`
	Images        Images        `json:"images"`
	ExtensionInfo ExtensionInfo `json:"extensionInfo"`
	Version       string        `json:"version,omitempty"`
	Path          string        `json:"path,omitempty"`

	// NewVersion is set only when a predefined strategy is attached.
	NewVersion string `json:"newVersion,omitempty"`

	// CanUpdate is true when a strategy is attached and the binary was
	// installed by the extension.
	CanUpdate bool `json:"canUpdate"`
}

// NewInfo builds the snapshot of r. updater is nil when no strategy is attached.
func NewInfo(r Record, updater *Updater) Info {
	info := Info{
		ID:            r.ID(),
		Name:          r.Name(),
		DisplayName:   r.DisplayName(),
		Description:   r.MarkdownDescription(),
		State:         r.State(),
		Images:        r.Images(),
		ExtensionInfo: r.ExtensionInfo(),
		Version:       r.Version(),
		Path:          r.Path(),
	}
	if updater == nil {
		return info
	}
	if v, ok := updater.FixedVersion(); ok {
		info.NewVersion = v
	}
	info.CanUpdate = r.InstallationSource() == SourceExtension
	return info
}
