// Package storage loads record collections from disk and writes exports.
//
// A collection source is one of:
//   - a directory of markdown files, each with YAML frontmatter holding the
//     record fields and a body holding full_text
//   - a .yaml/.yml file with a list of records or {name, version, records}
//   - a .json file with the same two shapes
//
// Loading is the only I/O in pocket-kb. The loaded order is deterministic:
// markdown files are read in path order regardless of parse concurrency.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/dpshade/pocket-kb/internal/errors"
	"github.com/dpshade/pocket-kb/internal/logging"
	"github.com/dpshade/pocket-kb/internal/models"
)

// Format names an export representation
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "md"
)

// ParseFormat converts a flag value to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", errors.InvalidInputError(fmt.Sprintf("unknown export format %q (want json, yaml or md)", s))
	}
}

// Storage handles all file system operations for record collections
type Storage struct {
	logger      *logging.Logger
	cache       *ParseCache
	concurrency int
}

// NewStorage creates a new storage instance. concurrency bounds parallel
// file parsing; values below 1 mean one file at a time.
func NewStorage(logger *logging.Logger, concurrency int) *Storage {
	if logger == nil {
		logger = logging.Nop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Storage{
		logger:      logger,
		cache:       NewParseCache(),
		concurrency: concurrency,
	}
}

// Cache exposes the parse cache, mainly for reporting hit rates
func (s *Storage) Cache() *ParseCache {
	return s.cache
}

// Load reads the collection at path
func (s *Storage) Load(ctx context.Context, path string) (*models.Collection, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrCodeFileNotFound, fmt.Sprintf("Content source %s does not exist", path))
		}
		return nil, errors.StorageError("stat "+path, err)
	}

	var records []models.TemplateRecord
	collection := &models.Collection{Name: path, Source: path}

	switch {
	case info.IsDir():
		records, err = s.loadDir(ctx, path)
	case isDataFile(path):
		collection, err = s.loadDataFile(path)
		if collection != nil {
			records = collection.Records
		}
	default:
		return nil, errors.NewAppError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("Unsupported content source %s (want a directory, .yaml, .yml or .json)", path))
	}
	if err != nil {
		return nil, err
	}

	collection.Records = records
	collection.Source = path
	if collection.Name == "" {
		collection.Name = path
	}

	s.logger.Debug("collection loaded", "source", path, "records", len(records),
		"cache_hits", s.cache.Hits(), "cache_misses", s.cache.Misses())
	return collection, nil
}

func isDataFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// loadDir parses every markdown file under root. Unparseable files are
// skipped with a warning, like any other hand-authoring mistake.
func (s *Storage) loadDir(ctx context.Context, root string) ([]models.TemplateRecord, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.StorageError("walk "+root, err)
	}
	// WalkDir visits in lexical order, so paths is already sorted

	results := make([][]models.TemplateRecord, len(paths))
	existing := make(map[string]bool, len(paths))
	for _, p := range paths {
		existing[p] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			record, err := s.loadMarkdown(path)
			if err != nil {
				rel, _ := filepath.Rel(root, path)
				s.logger.Warn("skipping unreadable record file", "file", rel, "error", err)
				return nil
			}
			results[i] = []models.TemplateRecord{record}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.cache.Cleanup(root, existing)

	var records []models.TemplateRecord
	for _, r := range results {
		records = append(records, r...)
	}
	return records, nil
}

// loadMarkdown loads one record from a markdown file with YAML frontmatter
func (s *Storage) loadMarkdown(path string) (models.TemplateRecord, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return models.TemplateRecord{}, fmt.Errorf("failed to read record file: %w", err)
	}

	hash := calculateHash(content)
	if cached, ok := s.cache.Get(path, hash); ok && len(cached.Records) == 1 {
		return cached.Records[0], nil
	}

	record, err := parseRecordFile(content)
	if err != nil {
		return models.TemplateRecord{}, errors.CorruptedFileError(path, err)
	}
	if record.ID == "" {
		record.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	s.cache.Set(path, hash, models.Collection{Records: []models.TemplateRecord{record}})
	return record, nil
}

// loadDataFile loads a whole collection from a YAML or JSON file
func (s *Storage) loadDataFile(path string) (*models.Collection, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.StorageError("read "+path, err)
	}

	hash := calculateHash(content)
	if cached, ok := s.cache.Get(path, hash); ok {
		return &cached, nil
	}

	var collection *models.Collection
	if strings.EqualFold(filepath.Ext(path), ".json") {
		collection, err = parseJSONCollection(content)
	} else {
		collection, err = parseYAMLCollection(content)
	}
	if err != nil {
		return nil, errors.CorruptedFileError(path, err)
	}

	s.cache.Set(path, hash, *collection)
	return collection, nil
}

func parseYAMLCollection(content []byte) (*models.Collection, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return &models.Collection{}, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var records []models.TemplateRecord
		if err := root.Decode(&records); err != nil {
			return nil, err
		}
		return &models.Collection{Records: records}, nil
	case yaml.MappingNode:
		var collection models.Collection
		if err := root.Decode(&collection); err != nil {
			return nil, err
		}
		return &collection, nil
	default:
		return nil, fmt.Errorf("expected a list of records or a mapping with a records key")
	}
}

func parseJSONCollection(content []byte) (*models.Collection, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return &models.Collection{}, nil
	}

	switch trimmed[0] {
	case '[':
		var records []models.TemplateRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return &models.Collection{Records: records}, nil
	case '{':
		var collection models.Collection
		if err := json.Unmarshal(trimmed, &collection); err != nil {
			return nil, err
		}
		return &collection, nil
	default:
		return nil, fmt.Errorf("expected a JSON array of records or an object with a records key")
	}
}

// Export writes collection to path in the given format. Markdown exports
// write one file per record into the directory at path.
func (s *Storage) Export(collection *models.Collection, path string, format Format) error {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(collection, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	case FormatYAML:
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err = encoder.Encode(collection); err == nil {
			err = encoder.Close()
		}
		data = buf.Bytes()
	case FormatMarkdown:
		return s.exportMarkdown(collection, path)
	default:
		return errors.InvalidInputError(fmt.Sprintf("unknown export format %q", format))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to encode collection")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.StorageError("create "+dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.StorageError("write "+path, err)
	}

	s.logger.Info("collection exported", "path", path, "format", string(format), "records", len(collection.Records))
	return nil
}

func (s *Storage) exportMarkdown(collection *models.Collection, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return errors.StorageError("read "+dir, err)
	}
	if len(entries) > 0 {
		return errors.InvalidInputError(fmt.Sprintf("export directory %s is not empty", dir))
	}

	// Names are compared case-folded so exports survive case-insensitive filesystems
	owners := make(map[string]string, len(collection.Records))
	for _, record := range collection.Records {
		name := recordFileName(record.ID)
		key := strings.ToLower(name)
		if other, ok := owners[key]; ok {
			return errors.InvalidInputError(fmt.Sprintf("records %q and %q both export to %s", other, record.ID, name))
		}
		owners[key] = record.ID
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.StorageError("create "+dir, err)
	}

	for _, record := range collection.Records {
		content, err := serializeRecord(record)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to serialize record "+record.ID)
		}
		path := filepath.Join(dir, recordFileName(record.ID))
		if err := os.WriteFile(path, content, 0644); err != nil {
			return errors.StorageError("write "+path, err)
		}
	}

	s.logger.Info("collection exported", "path", dir, "format", string(FormatMarkdown), "records", len(collection.Records))
	return nil
}

// recordFileName maps an id to a safe file name
func recordFileName(id string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, id)
	return name + ".md"
}

// Helper functions

func parseRecordFile(content []byte) (models.TemplateRecord, error) {
	lines := strings.SplitAfter(string(content), "\n")

	// Check for frontmatter delimiter
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r\n") != "---" {
		return models.TemplateRecord{}, fmt.Errorf("missing frontmatter delimiter")
	}

	closing := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r\n") == "---" {
			closing = i
			break
		}
	}
	if closing < 0 {
		return models.TemplateRecord{}, fmt.Errorf("unterminated frontmatter")
	}

	var record models.TemplateRecord
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:closing], "")), &record); err != nil {
		return models.TemplateRecord{}, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	// One blank separator line and the file's final newline are layout
	newline := "\n"
	if strings.HasSuffix(lines[closing], "\r\n") {
		newline = "\r\n"
	}
	body := strings.Join(lines[closing+1:], "")
	body = strings.TrimPrefix(body, newline)
	body = strings.TrimSuffix(body, newline)
	if body != "" {
		record.FullText = body
	}
	return record, nil
}

// serializeRecord writes the record as YAML frontmatter with full_text as
// the markdown body. parseRecordFile reads it back unchanged.
func serializeRecord(record models.TemplateRecord) ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(record); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "full_text" {
			node.Content = append(node.Content[:i], node.Content[i+2:]...)
			break
		}
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&node); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	buf.WriteString("---\n")

	if record.FullText != "" {
		buf.WriteString("\n")
		buf.WriteString(record.FullText)
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

func calculateHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}
