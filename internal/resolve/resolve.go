// Package resolve turns fragment references (web links and local files) into
// the text they point at.
package resolve

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultCacheTTL    = 30 * time.Minute
	maxBodyBytes       = 2 << 20
	userAgent          = "Mozilla/5.0 (compatible; promptbook/1.0)"
)

// ErrNotArticle is returned when a page has no extractable text.
var ErrNotArticle = errors.New("no article content")

// ErrRead wraps I/O failures of ReadFile.
var ErrRead = errors.New("read error")

// Optional scheme, a dotted host name or IPv4 address, then optional port,
// path, query and fragment.
var urlPattern = regexp.MustCompile(`(?i)^(https?://)?` +
	`((([a-z\d]([a-z\d-]*[a-z\d])?)\.)+[a-z]{2,}|((\d{1,3}\.){3}\d{1,3}))` +
	`(:\d+)?` +
	`(/[-a-z\d%_.~+@:]*)*` +
	`(\?[;&a-z\d%_.~+=\-]*)?` +
	`(#[-a-z\d_]*)?$`)

var schemePattern = regexp.MustCompile(`(?i)^https?://`)

// Article is the readable part of a web page.
type Article struct {
	Title   string
	Content string
}

// Text renders the article as title followed by body.
func (a Article) Text() string {
	title := strings.TrimSpace(a.Title)
	content := strings.TrimSpace(a.Content)
	if title == "" {
		return content
	}
	if content == "" {
		return title
	}
	return title + "\n\n" + content
}

// Resolver is the content collaborator used while building prompts.
type Resolver interface {
	IsURL(value string) bool
	FetchArticle(ctx context.Context, url string) (*Article, error)
	IsExistingFile(value string) bool
	ReadFile(path string) (string, error)
}

// Options configures the default resolver.
type Options struct {
	// BaseDir anchors relative file references; empty means the process working directory.
	BaseDir    string
	HTTPClient *http.Client
	CacheTTL   time.Duration
	Logger     *zap.Logger
}

// Web resolves links over HTTP and files from the local disk.
type Web struct {
	baseDir string
	client  *http.Client
	cache   *cache.Cache
	logger  *zap.Logger
}

// New returns a resolver with an in-memory article cache.
func New(opts Options) *Web {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Web{
		baseDir: opts.BaseDir,
		client:  client,
		cache:   cache.New(ttl, 2*ttl),
		logger:  logger.Named("resolve"),
	}
}

// IsURL reports whether value looks like a web address.
func (w *Web) IsURL(value string) bool {
	return IsURL(value)
}

// IsURL reports whether value looks like a web address.
func IsURL(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || strings.ContainsAny(value, " \t\n") {
		return false
	}
	return urlPattern.MatchString(value)
}

// HasScheme reports whether value starts with an explicit http or https scheme.
func HasScheme(value string) bool {
	return schemePattern.MatchString(strings.TrimSpace(value))
}

// IsExistingFile reports whether value names a regular file.
func (w *Web) IsExistingFile(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || strings.Contains(value, "\n") {
		return false
	}
	info, err := os.Stat(w.path(value))
	return err == nil && info.Mode().IsRegular()
}

// ReadFile returns the file contents, extracting text from PDF documents.
func (w *Web) ReadFile(path string) (string, error) {
	full := w.path(strings.TrimSpace(path))
	if strings.EqualFold(filepath.Ext(full), ".pdf") {
		text, err := readPDFText(full)
		if err != nil {
			return "", errors.Wrapf(ErrRead, "%s: %v", path, err)
		}
		return text, nil
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", errors.Wrapf(ErrRead, "%s: %v", path, err)
	}
	return string(data), nil
}

func (w *Web) path(value string) string {
	if filepath.IsAbs(value) || w.baseDir == "" {
		return value
	}
	return filepath.Join(w.baseDir, value)
}
