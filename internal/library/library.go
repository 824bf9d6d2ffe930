// Package library stores conversation documents as markdown files in one
// directory.
package library

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/csheth/promptbook/internal/document"
)

const docExt = ".md"

// ErrExists is returned by Create when the target file is already present.
var ErrExists = errors.New("document already exists")

// ErrNotFound is returned by Find when no document matches.
var ErrNotFound = errors.New("document not found")

var seedDocument = document.Document{
	Name:        "why-sky-is-blue",
	Description: "Explain the color of the sky.",
	Instruction: []string{"Use one sentence for answer."},
	Question:    []string{"Why sky is blue?"},
}

// NewQuestion is the placeholder question written into created documents.
const NewQuestion = "Ask your question"

// Store reads and writes documents under one directory.
type Store struct {
	dir          string
	defaultModel string
	logger       *zap.Logger
}

// New returns a store rooted at dir. Documents without a model get defaultModel.
func New(dir, defaultModel string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultModel == "" {
		defaultModel = document.DefaultModel
	}
	return &Store{dir: dir, defaultModel: defaultModel, logger: logger.Named("library")}
}

// Dir returns the library directory.
func (s *Store) Dir() string {
	return s.dir
}

// List returns every document in the library sorted by file name. A missing
// or empty library is seeded with an example document first.
func (s *Store) List() ([]document.Document, error) {
	paths, err := s.paths()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		if err := s.seed(); err != nil {
			return nil, err
		}
		if paths, err = s.paths(); err != nil {
			return nil, err
		}
	}
	docs := make([]document.Document, 0, len(paths))
	for _, path := range paths {
		doc, err := s.Load(path)
		if err != nil {
			s.logger.Warn("skipping unreadable document", zap.String("path", path), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	s.logger.Debug("library loaded", zap.String("dir", s.dir), zap.Int("documents", len(docs)))
	return docs, nil
}

// Load parses one document file.
func (s *Store) Load(path string) (document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return document.Document{}, errors.Wrapf(err, "read %s", path)
	}
	return document.Parse(path, string(data), s.defaultModel), nil
}

// Save writes doc to its path, or to a path derived from its name.
func (s *Store) Save(doc document.Document) error {
	if doc.Path == "" {
		doc.Path = s.pathFor(doc.Name)
	}
	if err := s.write(doc.Path, document.Serialize(doc)); err != nil {
		return err
	}
	s.logger.Info("document saved", zap.String("path", doc.Path))
	return nil
}

// Create writes a new document whose question is a placeholder, so opening
// it asks for input before anything is generated.
func (s *Store) Create(name string) (document.Document, error) {
	name = strings.TrimSpace(name)
	slug := Slug(name)
	if slug == "" {
		return document.Document{}, errors.Errorf("invalid document name %q", name)
	}
	path := s.pathFor(slug)
	if _, err := os.Stat(path); err == nil {
		return document.Document{}, errors.Wrap(ErrExists, path)
	}
	doc := document.Document{
		Name:     name,
		Model:    s.defaultModel,
		Question: []string{document.Placeholder(NewQuestion)},
		Path:     path,
	}
	if err := s.write(path, document.Serialize(doc)); err != nil {
		return document.Document{}, err
	}
	s.logger.Info("document created", zap.String("path", path))
	return doc, nil
}

// Find returns the document whose name or file name matches name.
func (s *Store) Find(name string) (document.Document, error) {
	docs, err := s.List()
	if err != nil {
		return document.Document{}, err
	}
	want := strings.TrimSpace(name)
	for _, doc := range docs {
		base := strings.TrimSuffix(filepath.Base(doc.Path), docExt)
		if doc.Name == want || base == want || base == Slug(want) {
			return doc, nil
		}
	}
	return document.Document{}, errors.Wrap(ErrNotFound, name)
}

func (s *Store) seed() error {
	doc := seedDocument
	doc.Model = s.defaultModel
	doc.Path = s.pathFor(doc.Name)
	if err := s.write(doc.Path, document.Serialize(doc)); err != nil {
		return err
	}
	s.logger.Info("library seeded", zap.String("path", doc.Path))
	return nil
}

func (s *Store) paths() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read library %s", s.dir)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), docExt) {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Store) write(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func (s *Store) pathFor(name string) string {
	return filepath.Join(s.dir, Slug(name)+docExt)
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a display name into a file name stem.
func Slug(name string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}
