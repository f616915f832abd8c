package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	artifactExt   = ".mp4"
	partialSuffix = ".partial"
)

var artifactSuffixes = map[TaskType]string{
	TaskTypeCaption:         "captioned",
	TaskTypeMerge:           "merged",
	TaskTypeBackgroundMusic: "with_music",
}

// ArtifactSuffix returns the filename suffix used for outputs of taskType.
func ArtifactSuffix(taskType TaskType) string {
	return artifactSuffixes[taskType]
}

// ArtifactName returns the deterministic output filename {task_id}_{suffix}.mp4.
// Uniqueness of task ids makes names collision-free across workers.
func ArtifactName(id uuid.UUID, taskType TaskType) string {
	return fmt.Sprintf("%s_%s%s", id, ArtifactSuffix(taskType), artifactExt)
}

// PartialArtifactName is the name an artifact carries while it is being placed.
func PartialArtifactName(id uuid.UUID, taskType TaskType) string {
	return ArtifactName(id, taskType) + partialSuffix
}

// ParseArtifactName validates name against the artifact naming scheme and returns
// the owning task id and type. Anything else, including path separators, is rejected.
func ParseArtifactName(name string) (uuid.UUID, TaskType, error) {
	if strings.ContainsAny(name, `/\`) || !strings.HasSuffix(name, artifactExt) {
		return uuid.Nil, "", fmt.Errorf("%w: %q", ErrInvalidArtifactName, name)
	}
	base := strings.TrimSuffix(name, artifactExt)
	idPart, suffix, ok := strings.Cut(base, "_")
	if !ok {
		return uuid.Nil, "", fmt.Errorf("%w: %q", ErrInvalidArtifactName, name)
	}
	// uuid.Parse accepts braces and urn prefixes; require the canonical form.
	id, err := uuid.Parse(idPart)
	if err != nil || id.String() != idPart {
		return uuid.Nil, "", fmt.Errorf("%w: %q", ErrInvalidArtifactName, name)
	}
	for taskType, s := range artifactSuffixes {
		if s == suffix {
			return id, taskType, nil
		}
	}
	return uuid.Nil, "", fmt.Errorf("%w: %q", ErrInvalidArtifactName, name)
}

// ParsePartialArtifactName is ParseArtifactName for in-progress placement files.
func ParsePartialArtifactName(name string) (uuid.UUID, TaskType, error) {
	if !strings.HasSuffix(name, partialSuffix) {
		return uuid.Nil, "", fmt.Errorf("%w: %q", ErrInvalidArtifactName, name)
	}
	return ParseArtifactName(strings.TrimSuffix(name, partialSuffix))
}
