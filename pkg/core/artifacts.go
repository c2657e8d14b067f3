package core

// Attachment is a debug artifact captured during a resolution run.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Path        string `json:"path"`
	Body        []byte `json:"-"`
}

// Common attachment names
const (
	AttachmentHierarchy  = "hierarchy"
	AttachmentCandidates = "candidates"
	AttachmentRunResult  = "run_result"
)

// Common content types
const (
	ContentTypeJSON = "application/json"
	ContentTypeXML  = "application/xml"
	ContentTypeText = "text/plain"
)

// NewHierarchyAttachment wraps a raw UI hierarchy dump.
func NewHierarchyAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentHierarchy,
		ContentType: ContentTypeXML,
		Path:        path,
		Body:        data,
	}
}

// NewCandidatesAttachment wraps the scored candidate list as JSON.
func NewCandidatesAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentCandidates,
		ContentType: ContentTypeJSON,
		Path:        path,
		Body:        data,
	}
}

// NewRunResultAttachment wraps the executor result as JSON.
func NewRunResultAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentRunResult,
		ContentType: ContentTypeJSON,
		Path:        path,
		Body:        data,
	}
}

// ArtifactConfig controls when and what artifacts are captured.
type ArtifactConfig struct {
	CaptureOnFailure bool `yaml:"captureOnFailure" json:"captureOnFailure"`
	CaptureOnSuccess bool `yaml:"captureOnSuccess" json:"captureOnSuccess"`

	Hierarchy  bool `yaml:"hierarchy" json:"hierarchy"`
	Candidates bool `yaml:"candidates" json:"candidates"`
}

// DefaultArtifactConfig captures the hierarchy and candidate scores on
// failed runs only.
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		CaptureOnFailure: true,
		CaptureOnSuccess: false,
		Hierarchy:        true,
		Candidates:       true,
	}
}

// ShouldCapture reports whether artifacts apply to the given tap
// outcome.
func (c ArtifactConfig) ShouldCapture(status TapStatus) bool {
	switch status {
	case TapFailed, TapNotResolved:
		return c.CaptureOnFailure
	case TapExecuted:
		return c.CaptureOnSuccess
	default:
		return false
	}
}
