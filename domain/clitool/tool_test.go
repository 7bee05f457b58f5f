package clitool

import (
	"errors"
	"testing"
)

// stubRecord is a fixed Record for snapshot tests.
type stubRecord struct {
	id     string
	source InstallationSource
}

func (s stubRecord) ID() string                             { return s.id }
func (s stubRecord) Name() string                           { return "kubectl" }
func (s stubRecord) DisplayName() string                    { return "Kubectl" }
func (s stubRecord) MarkdownDescription() string            { return "**kubectl** CLI" }
func (s stubRecord) State() State                           { return StateFound }
func (s stubRecord) Images() Images                         { return Images{Icon: "icon.png"} }
func (s stubRecord) ExtensionInfo() ExtensionInfo           { return ExtensionInfo{ID: "ext", Label: "Ext"} }
func (s stubRecord) Version() string                        { return "1.0.0" }
func (s stubRecord) Path() string                           { return "/bin/kubectl" }
func (s stubRecord) InstallationSource() InstallationSource { return s.source }
func (s stubRecord) OnDidUpdateVersion(func(string)) *Disposable {
	return NewDisposable(nil)
}

func TestCreateOptions_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ext     ExtensionInfo
		opts    CreateOptions
		wantErr error
	}{
		{"valid", ExtensionInfo{ID: "ext"}, CreateOptions{Name: "kubectl"}, nil},
		{"empty name", ExtensionInfo{ID: "ext"}, CreateOptions{Name: "  "}, ErrEmptyName},
		{"empty extension", ExtensionInfo{}, CreateOptions{Name: "kubectl"}, ErrEmptyExtension},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.opts.Validate(tt.ext)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestToolID(t *testing.T) {
	t.Parallel()

	if got := ToolID(ExtensionInfo{ID: "podman-desktop.kind"}, "kind"); got != "podman-desktop.kind.kind" {
		t.Errorf("ToolID() = %q", got)
	}
}

func TestNewInfo(t *testing.T) {
	t.Parallel()

	predefined := NewPredefinedUpdater(PredefinedFunc{Target: "2.0.0"})
	selectable := NewSelectableUpdater(SelectableFunc{})

	tests := []struct {
		name           string
		source         InstallationSource
		updater        *Updater
		wantNewVersion string
		wantCanUpdate  bool
	}{
		{"no strategy", SourceExtension, nil, "", false},
		{"predefined from extension", SourceExtension, &predefined, "2.0.0", true},
		{"selectable from extension", SourceExtension, &selectable, "", true},
		{"predefined external", SourceExternal, &predefined, "2.0.0", false},
		{"selectable unknown source", "", &selectable, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info := NewInfo(stubRecord{id: "ext.kubectl", source: tt.source}, tt.updater)
			if info.NewVersion != tt.wantNewVersion {
				t.Errorf("NewVersion = %q, want %q", info.NewVersion, tt.wantNewVersion)
			}
			if info.CanUpdate != tt.wantCanUpdate {
				t.Errorf("CanUpdate = %v, want %v", info.CanUpdate, tt.wantCanUpdate)
			}
			if info.Description != "**kubectl** CLI" {
				t.Errorf("Description = %q, want markdown description", info.Description)
			}
			if info.ID != "ext.kubectl" || info.Version != "1.0.0" || info.Path != "/bin/kubectl" {
				t.Errorf("unexpected identity fields: %+v", info)
			}
		})
	}
}
