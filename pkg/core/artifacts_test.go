package core

import "testing"

func TestShouldCapture(t *testing.T) {
	tests := []struct {
		name   string
		cfg    ArtifactConfig
		status TapStatus
		want   bool
	}{
		{"failure with default config", DefaultArtifactConfig(), TapFailed, true},
		{"not resolved counts as failure", DefaultArtifactConfig(), TapNotResolved, true},
		{"success with default config", DefaultArtifactConfig(), TapExecuted, false},
		{"success when enabled", ArtifactConfig{CaptureOnSuccess: true}, TapExecuted, true},
		{"skipped never captures", DefaultArtifactConfig(), TapSkipped, false},
		{"pending never captures", DefaultArtifactConfig(), TapPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ShouldCapture(tt.status); got != tt.want {
				t.Errorf("ShouldCapture(%v) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestAttachmentConstructors(t *testing.T) {
	h := NewHierarchyAttachment("run/hierarchy.xml", []byte("<hierarchy/>"))
	if h.Name != AttachmentHierarchy || h.ContentType != ContentTypeXML {
		t.Errorf("unexpected hierarchy attachment: %+v", h)
	}

	c := NewCandidatesAttachment("run/candidates.json", []byte("[]"))
	if c.Name != AttachmentCandidates || c.ContentType != ContentTypeJSON {
		t.Errorf("unexpected candidates attachment: %+v", c)
	}

	r := NewRunResultAttachment("run/result.json", []byte("{}"))
	if r.Name != AttachmentRunResult || r.ContentType != ContentTypeJSON {
		t.Errorf("unexpected result attachment: %+v", r)
	}
}
