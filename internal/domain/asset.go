package domain

import (
	"strings"
	"time"
)

// Role selects which compliance rubric and instruction template apply to an asset.
type Role string

const (
	RolePrimary   Role = "PRIMARY"
	RoleSecondary Role = "SECONDARY"
)

// ParseRole normalizes free-form input into a supported role.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(RolePrimary), "HERO", "MAIN":
		return RolePrimary, true
	case string(RoleSecondary), "GALLERY", "SUPPORTING":
		return RoleSecondary, true
	default:
		return "", false
	}
}

// Image carries raw image bytes together with their MIME type.
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
}

// IsZero reports whether the image carries no bytes.
func (i Image) IsZero() bool {
	return len(i.Data) == 0
}

// Asset is one image under evaluation. Secondary assets point at the primary
// asset of the same listing through ReferenceID.
type Asset struct {
	ID           string
	Role         Role
	ReferenceID  string
	Subject      string
	Original     Image
	Candidate    Image
	StorageKey   string
	CandidateKey string
	Analysis     *ComplianceAnalysis
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BestImage returns the accepted candidate when one exists, otherwise the original.
func (a *Asset) BestImage() Image {
	if a == nil {
		return Image{}
	}
	if !a.Candidate.IsZero() {
		return a.Candidate
	}
	return a.Original
}

// Validate checks the fields the refinement engine reads.
func (a *Asset) Validate() error {
	if a == nil || a.Original.IsZero() {
		return ErrInvalidAsset
	}
	switch a.Role {
	case RolePrimary, RoleSecondary:
	default:
		return ErrInvalidAsset
	}
	return nil
}
