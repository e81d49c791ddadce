// Package service ties loading, validation and indexing together and is the
// single entry point the CLI and the watcher use.
//
// The current index is held behind an atomic pointer. Reload builds a
// complete new index off to the side and swaps it in only on success, so
// readers always see either the previous index or the new one, never a
// partial build. A failed reload keeps serving the previous index.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dpshade/pocket-kb/internal/consistency"
	"github.com/dpshade/pocket-kb/internal/errors"
	"github.com/dpshade/pocket-kb/internal/index"
	"github.com/dpshade/pocket-kb/internal/logging"
	"github.com/dpshade/pocket-kb/internal/models"
	"github.com/dpshade/pocket-kb/internal/renderer"
	"github.com/dpshade/pocket-kb/internal/storage"
	"github.com/dpshade/pocket-kb/internal/validation"
)

// ErrIndexNotBuilt is returned by read operations before a successful build.
// It is distinct from an empty result.
var ErrIndexNotBuilt = errors.NewAppError(errors.ErrCodeIndexNotBuilt, "Knowledge base index has not been built")

// Options configures a Service
type Options struct {
	ContentPath     string
	Policy          validation.Policy
	Logger          *logging.Logger
	LoadConcurrency int
}

// BuildReport describes the outcome of one load and build
type BuildReport struct {
	Source     string                      `json:"source"`
	Loaded     int                         `json:"loaded"`
	Indexed    int                         `json:"indexed"`
	Validation validation.CollectionReport `json:"validation"`
	Duration   time.Duration               `json:"duration"`
	BuiltAt    time.Time                   `json:"built_at"`
}

// Service provides business logic for the knowledge base
type Service struct {
	storage     *storage.Storage
	logger      *logging.Logger
	policy      validation.Policy
	contentPath string

	index      atomic.Pointer[index.Index]
	lastReport atomic.Pointer[BuildReport]
	reloadMu   sync.Mutex // Serializes reloads; reads never take it
}

// NewService creates a new service instance. Nothing is loaded until Reload.
func NewService(opts Options) (*Service, error) {
	if opts.ContentPath == "" {
		return nil, errors.InvalidInputError("content path is required")
	}
	if opts.Policy == "" {
		opts.Policy = validation.PolicyExclude
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	return &Service{
		storage:     storage.NewStorage(opts.Logger, opts.LoadConcurrency),
		logger:      opts.Logger,
		policy:      opts.Policy,
		contentPath: opts.ContentPath,
	}, nil
}

// Reload loads the content source, applies the validation policy, builds a
// new index and swaps it in. On any error the previous index stays active.
func (s *Service) Reload(ctx context.Context) (BuildReport, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	report := BuildReport{Source: s.contentPath}

	collection, err := s.storage.Load(ctx, s.contentPath)
	if err != nil {
		s.logger.Error("failed to load content", "source", s.contentPath, "error", err)
		return report, err
	}
	report.Loaded = len(collection.Records)

	records, validationReport, err := validation.Apply(collection.Records, s.policy)
	report.Validation = validationReport
	for _, diag := range validationReport.Invalid {
		s.logger.Warn("invalid record", "index", diag.Index, "id", diag.ID, "violations", len(diag.Errors))
	}
	if err != nil {
		s.logger.Error("index build aborted by validation policy", "policy", string(s.policy), "invalid", len(validationReport.Invalid))
		return report, err
	}

	idx, err := index.Build(records)
	if err != nil {
		appErr := errors.GetAppError(err)
		s.logger.Error("index build failed", "code", string(appErr.Code), "details", appErr.Details)
		return report, appErr
	}

	report.Indexed = idx.Len()
	report.Duration = time.Since(start)
	report.BuiltAt = time.Now()

	s.index.Store(idx)
	s.lastReport.Store(&report)

	s.logger.Info("index built", "source", s.contentPath, "records", report.Indexed,
		"excluded", len(validationReport.Invalid), "duration", report.Duration)
	return report, nil
}

// LastReport returns the report of the last successful build
func (s *Service) LastReport() (BuildReport, bool) {
	report := s.lastReport.Load()
	if report == nil {
		return BuildReport{}, false
	}
	return *report, true
}

// Index returns the active index
func (s *Service) Index() (*index.Index, error) {
	idx := s.index.Load()
	if idx == nil {
		return nil, ErrIndexNotBuilt
	}
	return idx, nil
}

// ListRecords returns every indexed record in id order
func (s *Service) ListRecords() ([]models.TemplateRecord, error) {
	idx, err := s.Index()
	if err != nil {
		return nil, err
	}
	return idx.Records(), nil
}

// Query returns matching ids in rank order
func (s *Service) Query(q models.Query) ([]string, error) {
	idx, err := s.Index()
	if err != nil {
		return nil, err
	}
	return idx.Query(q), nil
}

// Search returns ranked hits for q
func (s *Service) Search(q models.Query) ([]index.Hit, error) {
	idx, err := s.Index()
	if err != nil {
		return nil, err
	}
	return idx.Search(q), nil
}

// GetRecord returns the record with the given id. A missing id is reported
// through the bool, not as an error.
func (s *Service) GetRecord(id string) (models.TemplateRecord, bool, error) {
	idx, err := s.Index()
	if err != nil {
		return models.TemplateRecord{}, false, err
	}
	record, ok := idx.Get(id)
	return record, ok, nil
}

// requireRecord is GetRecord for operations that cannot proceed without one
func (s *Service) requireRecord(id string) (models.TemplateRecord, error) {
	record, ok, err := s.GetRecord(id)
	if err != nil {
		return models.TemplateRecord{}, err
	}
	if !ok {
		return models.TemplateRecord{}, errors.NotFoundError(fmt.Sprintf("record %q", id)).WithContext("id", id)
	}
	return record, nil
}

// Renderer returns a renderer for the record with the given id
func (s *Service) Renderer(id string) (*renderer.Renderer, error) {
	record, err := s.requireRecord(id)
	if err != nil {
		return nil, err
	}
	return renderer.NewRenderer(record), nil
}

// Tokens returns the placeholders of a record with confidence marks
func (s *Service) Tokens(id string) ([]models.Placeholder, error) {
	r, err := s.Renderer(id)
	if err != nil {
		return nil, err
	}
	return r.Tokens(), nil
}

// Fill substitutes values into a record's full text
func (s *Service) Fill(id string, values map[string]string) (renderer.FillResult, error) {
	r, err := s.Renderer(id)
	if err != nil {
		return renderer.FillResult{}, err
	}
	return r.Fill(values), nil
}

// Facets lists the values of every facet
type Facets struct {
	Tags          []index.FacetCount `json:"tags"`
	CountryPairs  []index.FacetCount `json:"country_pairs"`
	ResourceTypes []index.FacetCount `json:"resource_types"`
	EntryTypes    []index.FacetCount `json:"entry_types"`
}

// Facets returns the facet listing of the active index
func (s *Service) Facets() (Facets, error) {
	idx, err := s.Index()
	if err != nil {
		return Facets{}, err
	}
	return Facets{
		Tags:          idx.Tags(),
		CountryPairs:  idx.CountryPairs(),
		ResourceTypes: idx.ResourceTypes(),
		EntryTypes:    idx.EntryTypes(),
	}, nil
}

// Suggest returns "did you mean" candidates for an id or facet value
func (s *Service) Suggest(facet index.Facet, value string, limit int) ([]string, error) {
	idx, err := s.Index()
	if err != nil {
		return nil, err
	}
	return idx.Suggest(facet, value, limit), nil
}

// CheckReport is the outcome of validating the content source without
// building from it
type CheckReport struct {
	Source       string                      `json:"source"`
	Validation   validation.CollectionReport `json:"validation"`
	DuplicateIDs []string                    `json:"duplicate_ids,omitempty"`
}

// Clean reports whether the content would build with no exclusions
func (c CheckReport) Clean() bool {
	return c.Validation.Valid() && len(c.DuplicateIDs) == 0
}

// Check validates every record of the content source and looks for
// duplicate ids. It does not touch the active index.
func (s *Service) Check(ctx context.Context) (CheckReport, error) {
	collection, err := s.storage.Load(ctx, s.contentPath)
	if err != nil {
		return CheckReport{}, err
	}

	report := CheckReport{
		Source:     s.contentPath,
		Validation: validation.ValidateCollection(collection.Records),
	}
	if _, err := index.Build(collection.Records); err != nil {
		var dupErr *errors.DuplicateIDError
		if !stderrors.As(err, &dupErr) {
			return report, err
		}
		report.DuplicateIDs = dupErr.IDs
	}
	return report, nil
}

// Diff loads two collections and compares them
func (s *Service) Diff(ctx context.Context, pathA, pathB string) (consistency.DriftReport, error) {
	a, err := s.storage.Load(ctx, pathA)
	if err != nil {
		return consistency.DriftReport{}, err
	}
	b, err := s.storage.Load(ctx, pathB)
	if err != nil {
		return consistency.DriftReport{}, err
	}

	report := consistency.Diff(a.Records, b.Records)
	s.logger.Info("collections compared", "a", pathA, "b", pathB,
		"drifted", report.Summary.Drifted, "only_in_a", report.Summary.OnlyInA, "only_in_b", report.Summary.OnlyInB)
	return report, nil
}

// Export writes the records that pass the validation policy to out. The
// exported collection is a generated secondary representation of the
// content source, so a later Diff against the source is a publishing gate.
func (s *Service) Export(ctx context.Context, out string, format storage.Format) (int, error) {
	collection, err := s.storage.Load(ctx, s.contentPath)
	if err != nil {
		return 0, err
	}

	records, _, err := validation.Apply(collection.Records, s.policy)
	if err != nil {
		return 0, err
	}

	exported := &models.Collection{
		Name:    collection.Name,
		Version: collection.Version,
		Records: records,
	}
	if err := s.storage.Export(exported, out, format); err != nil {
		return 0, err
	}
	return len(records), nil
}
