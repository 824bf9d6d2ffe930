package resolve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsURL(t *testing.T) {
	valid := []string{
		"https://example.com",
		"http://example.com/path/to/post?id=3&x=y#intro",
		"example.org/blog",
		"sub.domain.example.co.uk",
		"http://127.0.0.1:8080/health",
		"192.168.0.1",
	}
	for _, value := range valid {
		assert.True(t, IsURL(value), value)
	}
	invalid := []string{
		"",
		"plain",
		"Why sky is blue?",
		"./notes.txt",
		"/etc/hosts",
		"https://exa mple.com",
		"ftp://example.com",
	}
	for _, value := range invalid {
		assert.False(t, IsURL(value), value)
	}
}

const articleHTML = `<html><head><title>Ignored title</title>
<meta property="og:title" content="Why the sky is blue"></head>
<body>
<nav><p>Home | About</p></nav>
<article>
  <h1>Rayleigh scattering</h1>
  <p>Sunlight   scatters off
     air molecules.</p>
  <ul><li><p>Blue scatters more.</p></li></ul>
  <script>var tracking = 1;</script>
</article>
<footer><p>Copyright</p></footer>
</body></html>`

func TestHasScheme(t *testing.T) {
	assert.True(t, HasScheme("https://example.com"))
	assert.True(t, HasScheme(" HTTP://example.com"))
	assert.False(t, HasScheme("example.com"))
	assert.False(t, HasScheme("notes.txt"))
	assert.False(t, HasScheme("ftp://example.com"))
}

func TestFetchArticleExtractsTitleAndBody(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a user agent")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	resolver := New(Options{HTTPClient: server.Client()})
	article, err := resolver.FetchArticle(context.Background(), server.URL+"/post")
	require.NoError(t, err)
	assert.Equal(t, "Why the sky is blue", article.Title)
	assert.Equal(t, "Rayleigh scattering\n\nSunlight scatters off air molecules.\n\nBlue scatters more.", article.Content)
	assert.NotContains(t, article.Content, "Home")
	assert.NotContains(t, article.Content, "tracking")

	_, err = resolver.FetchArticle(context.Background(), server.URL+"/post")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second fetch should come from cache")
}

func TestFetchArticleFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/empty":
			w.Write([]byte(`<html><body><script>x()</script></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	resolver := New(Options{HTTPClient: server.Client()})
	_, err := resolver.FetchArticle(context.Background(), server.URL+"/empty")
	assert.ErrorIs(t, err, ErrNotArticle)

	_, err = resolver.FetchArticle(context.Background(), server.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchArticlePlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("  just text  \n"))
	}))
	defer server.Close()

	article, err := New(Options{HTTPClient: server.Client()}).FetchArticle(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "just text", article.Text())
}

func TestFilesResolveRelativeToBaseDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "context.txt"), []byte("file body"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder"), 0o755))

	resolver := New(Options{BaseDir: dir})
	assert.True(t, resolver.IsExistingFile("context.txt"))
	assert.True(t, resolver.IsExistingFile(filepath.Join(dir, "context.txt")))
	assert.False(t, resolver.IsExistingFile("folder"), "directories are not regular files")
	assert.False(t, resolver.IsExistingFile("missing.txt"))
	assert.False(t, resolver.IsExistingFile(""))

	text, err := resolver.ReadFile("context.txt")
	require.NoError(t, err)
	assert.Equal(t, "file body", text)

	_, err = resolver.ReadFile("missing.txt")
	assert.ErrorIs(t, err, ErrRead)
}

func TestReadFileRejectsBrokenPDF(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "paper.pdf"), []byte("not a pdf"), 0o644))

	_, err := New(Options{BaseDir: dir}).ReadFile("paper.pdf")
	assert.ErrorIs(t, err, ErrRead)
}

func TestArticleText(t *testing.T) {
	assert.Equal(t, "T\n\nC", Article{Title: "T", Content: "C"}.Text())
	assert.Equal(t, "C", Article{Content: "C"}.Text())
	assert.Equal(t, "T", Article{Title: "T"}.Text())
}
