package resolve

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var extraneousWhitespace = regexp.MustCompile(`[ \t\r\f\v]+`)

var (
	noiseSelectors   = "script, style, noscript, iframe, svg, nav, header, footer, aside, form"
	contentSelectors = []string{"article", "main", "[role=main]", "body"}
	blockSelectors   = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote"
)

// FetchArticle downloads url and extracts its title and readable body.
// Results are cached per URL for the resolver's lifetime.
func (w *Web) FetchArticle(ctx context.Context, url string) (*Article, error) {
	url = normalizeURL(url)
	if cached, ok := w.cache.Get(url); ok {
		article := cached.(Article)
		return &article, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8,*/*;q=0.5")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("fetch %s: %s", url, resp.Status)
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	var article Article
	if strings.Contains(resp.Header.Get("Content-Type"), "text/plain") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", url)
		}
		article = Article{Content: strings.TrimSpace(string(raw))}
	} else {
		article, err = extractArticle(body)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", url)
		}
	}
	if article.Content == "" {
		return nil, errors.Wrap(ErrNotArticle, url)
	}
	w.cache.SetDefault(url, article)
	w.logger.Debug("article fetched", zap.String("url", url), zap.Int("chars", len(article.Content)))
	return &article, nil
}

func extractArticle(r io.Reader) (Article, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Article{}, err
	}
	doc.Find(noiseSelectors).Remove()

	title := strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	if title == "" {
		title = normalizeText(doc.Find("title").First().Text())
	}
	if title == "" {
		title = normalizeText(doc.Find("h1").First().Text())
	}

	var root *goquery.Selection
	for _, selector := range contentSelectors {
		if found := doc.Find(selector).First(); found.Length() > 0 {
			root = found
			break
		}
	}
	if root == nil {
		return Article{Title: title}, nil
	}

	var blocks []string
	root.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		// nested blocks (p inside li) are covered by their outermost ancestor
		if s.ParentsFiltered(blockSelectors).Length() > 0 {
			return
		}
		if text := normalizeText(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	content := strings.Join(blocks, "\n\n")
	if content == "" {
		content = normalizeText(root.Text())
	}
	return Article{Title: title, Content: content}, nil
}

func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(extraneousWhitespace.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, " ")
}

func normalizeURL(url string) string {
	url = strings.TrimSpace(url)
	lower := strings.ToLower(url)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return url
	}
	return "https://" + url
}
