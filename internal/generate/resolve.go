package generate

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/csheth/promptbook/internal/resolve"
)

const (
	// ArticleUnavailable replaces a link whose article could not be extracted.
	ArticleUnavailable = "The linked article could not be retrieved."
	// FileUnavailable replaces a file reference that could not be read.
	FileUnavailable = "The referenced file could not be read."
)

// Resolve expands every fragment value that is an existing file or a link
// and joins the results with a single space, preserving order. A failing
// reference is replaced by a fixed sentence instead of failing the prompt.
func Resolve(ctx context.Context, resolver resolve.Resolver, values []string, logger *zap.Logger) string {
	if logger == nil {
		logger = zap.NewNop()
	}
	parts := make([]string, 0, len(values))
	for _, value := range values {
		parts = append(parts, resolveOne(ctx, resolver, value, logger))
	}
	return strings.Join(parts, " ")
}

func resolveOne(ctx context.Context, resolver resolve.Resolver, value string, logger *zap.Logger) string {
	if resolver == nil {
		return value
	}
	// A bare name such as notes.txt also looks like a host, so an existing
	// file wins unless the value carries an explicit scheme.
	if !resolve.HasScheme(value) && resolver.IsExistingFile(value) {
		return readFile(resolver, value, logger)
	}
	if resolver.IsURL(value) {
		article, err := resolver.FetchArticle(ctx, value)
		if err != nil || article == nil {
			logger.Warn("article resolution failed", zap.String("url", value), zap.Error(err))
			return ArticleUnavailable
		}
		return article.Text()
	}
	return value
}

func readFile(resolver resolve.Resolver, value string, logger *zap.Logger) string {
	text, err := resolver.ReadFile(value)
	if err != nil {
		logger.Warn("file resolution failed", zap.String("path", value), zap.Error(err))
		return FileUnavailable
	}
	return text
}
