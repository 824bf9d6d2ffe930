package resolve

import (
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

var pdfWhitespace = regexp.MustCompile(`\s+`)

func readPDFText(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open pdf")
	}
	defer file.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", errors.Wrap(err, "extract pdf text")
	}

	var builder strings.Builder
	if _, err := io.Copy(&builder, content); err != nil {
		return "", err
	}
	return strings.TrimSpace(pdfWhitespace.ReplaceAllString(builder.String(), " ")), nil
}
