// Package archive stores instances in the archive responsible for their
// storage class.
package archive

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/domain/shared"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomfile"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomweb"
	"github.com/wsiviewer/backend/internal/infrastructure/telemetry"
)

// Store is an archive accepting STOW-RS requests. Instances are batched per
// Store value, so implementations must be comparable.
type Store interface {
	ID() string
	Writable() bool
	StoreInstances(ctx context.Context, opts dicomweb.StoreOptions) error
}

// Resolver returns the store of a storage class
type Resolver func(sopClassUID dicom.StorageClass) Store

// StoredInstance describes an accepted instance
type StoredInstance struct {
	SOPInstanceUID string `json:"sop_instance_uid"`
	SOPClassUID    string `json:"sop_class_uid"`
	ServerID       string `json:"server_id"`
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithParser replaces the Part-10 parser
func WithParser(parse func([]byte) (dicom.Dataset, error)) Option {
	return func(s *Service) {
		s.parse = parse
	}
}

// Service stores instances
type Service struct {
	resolve Resolver
	parse   func([]byte) (dicom.Dataset, error)
	logger  *zap.Logger
}

// NewService creates a new archive service
func NewService(resolve Resolver, opts ...Option) *Service {
	s := &Service{
		resolve: resolve,
		parse:   dicomfile.ParseDataset,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type batch struct {
	store     Store
	datasets  [][]byte
	instances []StoredInstance
}

// StoreInstances sends Part-10 encoded instances of the study to the stores
// of their storage classes. Nothing is sent unless every instance belongs to
// the study and every addressed store is writable.
func (s *Service) StoreInstances(ctx context.Context, studyInstanceUID string, instances [][]byte) ([]StoredInstance, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "archive", "store_instances",
		telemetry.SpanAttrStudyUID, studyInstanceUID)
	defer span.End()

	if len(instances) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "At least one instance must be provided.")
	}

	var batches []*batch
	byStore := make(map[Store]*batch)
	for i, data := range instances {
		ds, err := s.parse(data)
		if err != nil {
			return nil, shared.NewDomainError(shared.CodeInvalidInput,
				fmt.Sprintf("Instance %d could not be parsed: %v", i+1, err))
		}
		if uid := ds.String(dicom.TagStudyInstanceUID); uid != studyInstanceUID {
			return nil, shared.NewDomainError(shared.CodeInvalidInput,
				fmt.Sprintf("Instance %d belongs to study %q.", i+1, uid))
		}

		sopClass := ds.String(dicom.TagSOPClassUID)
		store := s.resolve(dicom.StorageClass(sopClass))
		if !store.Writable() {
			return nil, shared.NewDomainError(shared.CodeNotWritable,
				fmt.Sprintf("Server %q is not writable.", store.ID()))
		}

		b, ok := byStore[store]
		if !ok {
			b = &batch{store: store}
			byStore[store] = b
			batches = append(batches, b)
		}
		b.datasets = append(b.datasets, data)
		b.instances = append(b.instances, StoredInstance{
			SOPInstanceUID: ds.String(dicom.TagSOPInstanceUID),
			SOPClassUID:    sopClass,
			ServerID:       store.ID(),
		})
	}

	var stored []StoredInstance
	for _, b := range batches {
		if err := b.store.StoreInstances(ctx, dicomweb.StoreOptions{
			StudyInstanceUID: studyInstanceUID,
			Datasets:         b.datasets,
		}); err != nil {
			telemetry.RecordError(span, err)
			return stored, fmt.Errorf("failed to store instances on server %q: %w", b.store.ID(), err)
		}
		stored = append(stored, b.instances...)
		s.logger.Info("instances stored",
			zap.String("server_id", b.store.ID()),
			zap.String("study_instance_uid", studyInstanceUID),
			zap.Int("instances", len(b.instances)),
		)
	}
	return stored, nil
}
