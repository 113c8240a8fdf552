package domain

import (
	"image"
	"time"
)

// MaskMode selects the destructive pixel transform applied to face regions.
type MaskMode string

const (
	MaskModeNone     MaskMode = "none"
	MaskModeBlackout MaskMode = "blackout"
	MaskModePixelate MaskMode = "pixelate"
	MaskModeBlur     MaskMode = "blur"
	MaskModeNoise    MaskMode = "noise"
)

// ValidMaskMode reports whether m is a known mask mode.
func ValidMaskMode(m MaskMode) bool {
	switch m {
	case MaskModeNone, MaskModeBlackout, MaskModePixelate, MaskModeBlur, MaskModeNoise:
		return true
	}
	return false
}

// FaceRegion is an axis-aligned rectangle in the pixel coordinate space of
// the original full-resolution image. Coordinates are absolute pixels,
// never normalized; conversion to display space is a presentation concern.
type FaceRegion struct {
	X             int  `json:"x"`
	Y             int  `json:"y"`
	Width         int  `json:"width"`
	Height        int  `json:"height"`
	IsSelected    bool `json:"isSelected"`
	IsUserCreated bool `json:"isUserCreated"`
}

// Bounds returns the region as an image.Rectangle.
func (f FaceRegion) Bounds() image.Rectangle {
	return image.Rect(f.X, f.Y, f.X+f.Width, f.Y+f.Height)
}

// PhotoMetadata is the persisted per-photo record. Exactly one record and
// at most one content blob exist per ID; a record without a blob is an
// inconsistency that loads must report, never silently repair.
type PhotoMetadata struct {
	ID               string            `json:"id"`
	CreationDate     time.Time         `json:"creationDate"`
	ModificationDate time.Time         `json:"modificationDate"`
	FileSizeBytes    int64             `json:"fileSizeBytes"`
	Faces            []FaceRegion      `json:"faces"`
	MaskMode         MaskMode          `json:"maskMode"`
	IsDecoy          bool              `json:"isDecoy"`
	LocationTags     map[string]string `json:"locationTags,omitempty"`
}

// HasFaces reports whether at least one face region is recorded.
func (m *PhotoMetadata) HasFaces() bool {
	return len(m.Faces) > 0
}

// SelectedFaces returns only the regions flagged as masking targets.
func (m *PhotoMetadata) SelectedFaces() []FaceRegion {
	var out []FaceRegion
	for _, f := range m.Faces {
		if f.IsSelected {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns a deep copy, used for read-modify-write updates so the
// caller never mutates a record shared with another goroutine.
func (m *PhotoMetadata) Clone() *PhotoMetadata {
	cp := *m
	if m.Faces != nil {
		cp.Faces = make([]FaceRegion, len(m.Faces))
		copy(cp.Faces, m.Faces)
	}
	if m.LocationTags != nil {
		cp.LocationTags = make(map[string]string, len(m.LocationTags))
		for k, v := range m.LocationTags {
			cp.LocationTags[k] = v
		}
	}
	return &cp
}

// SecurePhoto is the transient runtime handle composed by the repository.
// The decoded image and thumbnail are owned by the memory cache and may be
// nil or cleared independently of this handle's lifetime.
type SecurePhoto struct {
	ID         string
	Metadata   *PhotoMetadata
	Image      image.Image
	Thumbnail  image.Image
	IsVisible  bool
	LastAccess time.Time
}

// PhotoPredicate is a conjunctive filter over metadata records. All
// supplied clauses must hold; omitted (nil) clauses impose no constraint.
// The date range is inclusive on both ends.
type PhotoPredicate struct {
	From     *time.Time
	To       *time.Time
	HasFaces *bool
	MaskMode *MaskMode
}

// Matches reports whether m satisfies every supplied clause.
func (p PhotoPredicate) Matches(m *PhotoMetadata) bool {
	if p.From != nil && m.CreationDate.Before(*p.From) {
		return false
	}
	if p.To != nil && m.CreationDate.After(*p.To) {
		return false
	}
	if p.HasFaces != nil && m.HasFaces() != *p.HasFaces {
		return false
	}
	if p.MaskMode != nil && m.MaskMode != *p.MaskMode {
		return false
	}
	return true
}

// ExportFormat names a re-encoding target for ExportPhoto.
type ExportFormat string

const (
	ExportJPEG ExportFormat = "jpeg"
	ExportPNG  ExportFormat = "png"
	// ExportHEIC is a placeholder; exporting it fails with ErrExportFailed
	// rather than silently falling back to another codec.
	ExportHEIC ExportFormat = "heic"
)
