package types

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactKind classifies a staged distribution file.
type ArtifactKind string

const (
	// ArtifactKindWheel is a built wheel distribution
	ArtifactKindWheel ArtifactKind = "wheel"

	// ArtifactKindSdist is a source distribution tarball or zip
	ArtifactKindSdist ArtifactKind = "sdist"

	// ArtifactKindFile is any other staged file
	ArtifactKindFile ArtifactKind = "file"
)

// Artifact is a distribution file staged from a leg workspace.
type Artifact struct {
	// Unique identifier for the artifact
	ID string `json:"id" yaml:"id"`

	// ID of the run that produced the artifact
	RunID string `json:"runId" yaml:"runId"`

	// ID of the leg run that produced the artifact
	LegID string `json:"legId,omitempty" yaml:"legId,omitempty"`

	// File name of the distribution (e.g. pkg-1.0.0-py3-none-any.whl)
	Name string `json:"name" yaml:"name"`

	// Path of the staged copy on disk
	Path string `json:"path" yaml:"path"`

	// Kind of distribution file
	Kind ArtifactKind `json:"kind" yaml:"kind"`

	// Package name parsed from the file name
	Package string `json:"package,omitempty" yaml:"package,omitempty"`

	// Package version parsed from the file name
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Size of the file in bytes
	Size int64 `json:"size" yaml:"size"`

	// MD5 digest of the file, hex encoded
	MD5 string `json:"md5,omitempty" yaml:"md5,omitempty"`

	// SHA256 digest of the file, hex encoded
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`

	// Blake2b256 digest of the file, hex encoded
	Blake2b256 string `json:"blake2b256,omitempty" yaml:"blake2b256,omitempty"`

	// Creation timestamp
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// NewArtifact creates an artifact record for a staged file.
func NewArtifact(runID, legID, name, path string, kind ArtifactKind) *Artifact {
	return &Artifact{
		ID:        uuid.New().String(),
		RunID:     runID,
		LegID:     legID,
		Name:      name,
		Path:      path,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
}
