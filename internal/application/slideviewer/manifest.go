package slideviewer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/application/caseviewer"
	"github.com/wsiviewer/backend/internal/domain/shared"
	"github.com/wsiviewer/backend/internal/domain/slide"
	"github.com/wsiviewer/backend/internal/domain/viewer"
	"github.com/wsiviewer/backend/internal/infrastructure/telemetry"
)

const manifestContentType = "application/json"

// manifestDocument is the JSON document written to object storage.
type manifestDocument struct {
	StudyInstanceUID string         `json:"study_instance_uid"`
	GeneratedAt      time.Time      `json:"generated_at"`
	Slides           []*slide.Slide `json:"slides"`
}

// Manifest locates an exported manifest.
type Manifest struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Slides    int       `json:"slides"`
}

// ExportManifest writes the slides of a study as a JSON document to object
// storage and returns a presigned download URL.
func (s *Service) ExportManifest(ctx context.Context, studyInstanceUID string) (*Manifest, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "slide_viewer", "export_manifest",
		telemetry.SpanAttrStudyUID, studyInstanceUID,
	)
	defer span.End()

	if s.deps.Manifests == nil {
		err := shared.NewDomainError(shared.CodeConfigurationError, "Object storage is not configured.")
		telemetry.RecordError(span, err)
		return nil, err
	}

	cv := s.deps.Cases.LoadCase(ctx, viewer.Route{StudyInstanceUID: studyInstanceUID})
	if cv.Status != caseviewer.StatusLoaded {
		err := shared.NewDomainError(shared.CodeUpstreamError, cv.Error)
		telemetry.RecordError(span, err)
		return nil, err
	}

	now := s.deps.Now().UTC()
	data, err := json.Marshal(manifestDocument{
		StudyInstanceUID: studyInstanceUID,
		GeneratedAt:      now,
		Slides:           cv.Slides,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	key := fmt.Sprintf("manifests/%s/%s.json", studyInstanceUID, s.deps.NewID())
	if err := s.deps.Manifests.Upload(ctx, key, data, manifestContentType); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to upload manifest: %w", err)
	}
	url, expiresAt, err := s.deps.Manifests.GenerateDownloadURL(ctx, key, s.deps.ManifestExpiry)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to generate manifest download URL: %w", err)
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrSlideCount, len(cv.Slides))
	s.deps.Metrics.ManifestExported(ctx)
	s.logger.Info("manifest exported",
		zap.String("study_instance_uid", studyInstanceUID),
		zap.String("key", key),
		zap.Int("slides", len(cv.Slides)),
	)
	return &Manifest{Key: key, URL: url, ExpiresAt: expiresAt, Slides: len(cv.Slides)}, nil
}
