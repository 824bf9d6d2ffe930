package document

import (
	"strings"
)

// DefaultModel is used when a document does not name a model.
const DefaultModel = "llama3"

const (
	headerName        = "# Name"
	headerModel       = "# Model"
	headerDescription = "# Description"
	headerInstruction = "# Instruction"
	headerQuestion    = "# Question"

	// older libraries wrote the instruction section in plural form
	headerInstructionLegacy = "# Instructions"
)

var headers = map[string]string{
	headerName:              headerName,
	headerModel:             headerModel,
	headerDescription:       headerDescription,
	headerInstruction:       headerInstruction,
	headerQuestion:          headerQuestion,
	headerInstructionLegacy: headerInstruction,
}

// Document is one conversation template stored in the library.
type Document struct {
	Name        string
	Model       string
	Description string
	Instruction []string
	Question    []string
	Path        string
}

// Title returns the display title of the document.
func (d Document) Title() string {
	if strings.TrimSpace(d.Name) != "" {
		return d.Name
	}
	return d.Path
}

// Parse reads a sectioned document. Parsing never fails: text without any
// recognized header yields a document with empty sections, and callers that
// need strict validation must check the fields themselves.
func Parse(path, text, defaultModel string) Document {
	if defaultModel == "" {
		defaultModel = DefaultModel
	}
	lines := strings.Split(text, "\n")
	sections := map[string][]string{}
	current := ""
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if header, ok := headerOf(line); ok {
			current = header
			if _, seen := sections[current]; !seen {
				sections[current] = []string{}
			}
			continue
		}
		if current == "" {
			continue
		}
		sections[current] = append(sections[current], line)
	}

	doc := Document{
		Name:        joinScalar(sections[headerName]),
		Model:       joinScalar(sections[headerModel]),
		Description: joinScalar(sections[headerDescription]),
		Instruction: SplitParagraphs(sections[headerInstruction]),
		Question:    SplitParagraphs(sections[headerQuestion]),
		Path:        path,
	}
	if doc.Name == "" {
		doc.Name = path
	}
	if doc.Model == "" {
		doc.Model = defaultModel
	}
	return doc
}

func joinScalar(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// SplitParagraphs groups body lines into fragments separated by blank lines.
// Every maximal run of non-blank lines becomes one trimmed fragment.
func SplitParagraphs(lines []string) []string {
	result := []string{}
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		if paragraph := strings.TrimSpace(strings.Join(current, "\n")); paragraph != "" {
			result = append(result, paragraph)
		}
		current = nil
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return result
}

// Paragraphs turns free text into fragment values that Parse reads back
// unchanged after Serialize: one value per blank-line separated paragraph,
// with any line that would read as a section header escaped by a backslash.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	paragraphs := SplitParagraphs(strings.Split(text, "\n"))
	for i, paragraph := range paragraphs {
		lines := strings.Split(paragraph, "\n")
		for j, line := range lines {
			if _, ok := headerOf(line); ok {
				lines[j] = `\` + line
			}
		}
		paragraphs[i] = strings.Join(lines, "\n")
	}
	return paragraphs
}

// headerOf reports the canonical header a line opens. Trailing blanks are
// ignored; anything else on the line makes it body text.
func headerOf(line string) (string, bool) {
	header, ok := headers[strings.TrimRight(line, " \t")]
	return header, ok
}

// Serialize renders the document in canonical section order.
func Serialize(doc Document) string {
	var b strings.Builder
	writeSection(&b, headerName, doc.Name)
	writeSection(&b, headerModel, doc.Model)
	writeSection(&b, headerDescription, doc.Description)
	writeSection(&b, headerInstruction, joinFragments(doc.Instruction))
	writeSection(&b, headerQuestion, joinFragments(doc.Question))
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeSection(b *strings.Builder, header, body string) {
	b.WriteString(header)
	b.WriteString("\n\n")
	body = strings.TrimSpace(body)
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}
}

func joinFragments(fragments []string) string {
	parts := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		parts = append(parts, fragment)
	}
	return strings.Join(parts, "\n\n")
}
