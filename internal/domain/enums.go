package domain

// Stage is a step of the per-payload state machine.
type Stage string

const (
	StageDiscovered      Stage = "discovered"
	StageExtracting      Stage = "extracting"
	StageRecognizing     Stage = "recognizing"
	StageFieldExtracting Stage = "field_extracting"
	StageValidating      Stage = "validating"
	StageUploading       Stage = "uploading"
	StageCommitted       Stage = "committed"
	StageRejected        Stage = "rejected"
	StageFailed          Stage = "failed"
)

var stageOrder = map[Stage]int{
	StageDiscovered:      0,
	StageExtracting:      1,
	StageRecognizing:     2,
	StageFieldExtracting: 3,
	StageValidating:      4,
	StageUploading:       5,
	StageCommitted:       6,
	StageRejected:        6,
	StageFailed:          6,
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Stage) IsTerminal() bool {
	return s == StageCommitted || s == StageRejected || s == StageFailed
}

// CanAdvanceTo reports whether next is a legal forward transition from s.
// Terminal states are reachable from any non-terminal state.
func (s Stage) CanAdvanceTo(next Stage) bool {
	if s.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	return stageOrder[next] == stageOrder[s]+1
}

// EventStatus is the status carried by a PipelineEvent.
type EventStatus string

const (
	EventStarted          EventStatus = "started"
	EventSucceeded        EventStatus = "succeeded"
	EventFailed           EventStatus = "failed"
	EventSkippedDuplicate EventStatus = "skipped-duplicate"
	EventSkipped          EventStatus = "skipped"
)

// VerdictOutcome is the tagged outcome of validation.
type VerdictOutcome string

const (
	VerdictAccepted             VerdictOutcome = "accepted"
	VerdictAcceptedWithWarnings VerdictOutcome = "accepted_with_warnings"
	VerdictRejected             VerdictOutcome = "rejected"
)

// ValidationSeverity controls whether a failed rule rejects the record.
type ValidationSeverity string

const (
	ValidationSeverityError   ValidationSeverity = "error"
	ValidationSeverityWarning ValidationSeverity = "warning"
)

// ValidationRuleType groups rules by what they check.
type ValidationRuleType string

const (
	ValidationRuleRequired ValidationRuleType = "required_field"
	ValidationRuleDate     ValidationRuleType = "date_range"
	ValidationRuleSum      ValidationRuleType = "sum_check"
	ValidationRuleCurrency ValidationRuleType = "currency"
)

// ArtifactKind names one of the three items committed per payload.
type ArtifactKind string

const (
	ArtifactRecord   ArtifactKind = "record"
	ArtifactAudit    ArtifactKind = "audit"
	ArtifactOriginal ArtifactKind = "original"
)

// ArtifactKinds lists artifacts in commit order.
var ArtifactKinds = []ArtifactKind{ArtifactOriginal, ArtifactAudit, ArtifactRecord}

// Supported media types for document attachments.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
	MediaTypeTIFF = "image/tiff"
)

// DefaultAllowedMediaTypes is the attachment allow-list used when none is configured.
var DefaultAllowedMediaTypes = []string{MediaTypePDF, MediaTypeJPEG, MediaTypePNG, MediaTypeTIFF}

// extensionMediaTypes maps filename extensions to media types for parts sent as
// application/octet-stream.
var extensionMediaTypes = map[string]string{
	".pdf":  MediaTypePDF,
	".jpg":  MediaTypeJPEG,
	".jpeg": MediaTypeJPEG,
	".png":  MediaTypePNG,
	".tif":  MediaTypeTIFF,
	".tiff": MediaTypeTIFF,
}

// MediaTypeForExtension returns the media type for ext (lowercase, with dot), or "".
func MediaTypeForExtension(ext string) string {
	return extensionMediaTypes[ext]
}

// ExtensionForMediaType returns the canonical filename extension for a media type.
func ExtensionForMediaType(mediaType string) string {
	switch mediaType {
	case MediaTypePDF:
		return ".pdf"
	case MediaTypeJPEG:
		return ".jpg"
	case MediaTypePNG:
		return ".png"
	case MediaTypeTIFF:
		return ".tiff"
	default:
		return ".bin"
	}
}
