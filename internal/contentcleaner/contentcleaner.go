// Package contentcleaner strips markup from fetched disclosure documents
// and reduces them to plain, LLM-friendly text while preserving the
// paragraph and table structure a reader needs.
package contentcleaner

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	pkgstrings "github.com/myeongjunkim/dart-deep-search/pkg/strings"
)

const defaultMaxLength = 10000

var (
	repeatedSpaces  = regexp.MustCompile(`[ \t]+`)
	tripleNewlines  = regexp.MustCompile(`\n{3,}`)
	disallowedChars = regexp.MustCompile(`[^\w\s\-.,;:!?()\[\]{}'"/₩%@#&*+=~` + "`" + `|\\가-힣]`)
)

// Clean strips HTML/XML markup from content and returns readable text.
// When preserveStructure is true, tables are rendered as pipe-delimited
// rows and paragraph breaks are kept (collapsed to at most one blank
// line); when false, the result is a single flattened line.
func Clean(content string, preserveStructure bool) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	decoded := html.UnescapeString(content)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(decoded))
	if err != nil {
		return simpleClean(decoded)
	}

	doc.Find("script, style").Remove()

	if preserveStructure {
		doc.Find("table").Each(func(_ int, table *goquery.Selection) {
			table.ReplaceWithHtml("\n" + formatTable(table) + "\n")
		})
	}

	var text string
	if preserveStructure {
		text = extractTextWithNewlines(doc.Selection)
	} else {
		text = doc.Text()
	}

	return cleanText(text, preserveStructure)
}

// extractTextWithNewlines walks block-level elements and joins their text
// with newlines, mirroring BeautifulSoup's get_text(separator='\n').
func extractTextWithNewlines(sel *goquery.Selection) string {
	var sb strings.Builder
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		if goquery.NodeName(node) == "#text" {
			sb.WriteString(node.Text())
			return
		}
		sb.WriteString(extractTextWithNewlines(node))
		sb.WriteString("\n")
	})
	return sb.String()
}

// formatTable renders a table selection as pipe-delimited rows, one per
// <tr>, cells taken from both <td> and <th>.
func formatTable(table *goquery.Selection) string {
	var rows []string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) > 0 {
			rows = append(rows, strings.Join(cells, " | "))
		}
	})
	return strings.Join(rows, "\n")
}

func cleanText(text string, preserveStructure bool) string {
	text = repeatedSpaces.ReplaceAllString(text, " ")

	if preserveStructure {
		text = tripleNewlines.ReplaceAllString(text, "\n\n")
		text = collapseBlankLines(text)
	} else {
		text = strings.Join(strings.Fields(text), " ")
	}

	text = disallowedChars.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// collapseBlankLines trims each line and keeps at most one consecutive
// blank line, preserving paragraph breaks without runs of empty lines.
func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	prevEmpty := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
			prevEmpty = false
			continue
		}
		if !prevEmpty {
			cleaned = append(cleaned, "")
			prevEmpty = true
		}
	}
	return strings.Join(cleaned, "\n")
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// simpleClean is the regex-only fallback used when goquery fails to parse
// malformed markup.
func simpleClean(content string) string {
	text := tagPattern.ReplaceAllString(content, "")
	text = html.UnescapeString(text)
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(text)
}

// CleanForLLM cleans content and trims it to maxLength, keeping the head
// and tail of the document with an elision marker in between when it would
// otherwise exceed the budget. maxLength<=0 uses the default of 10000.
func CleanForLLM(content string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}

	cleaned := Clean(content, true)
	cleaned = pkgstrings.TrimAdjacentBlankLines(cleaned)

	if len([]rune(cleaned)) <= maxLength {
		return cleaned
	}

	runes := []rune(cleaned)
	half := maxLength/2 - 50
	if half <= 0 {
		half = maxLength / 2
	}

	head := string(runes[:half])
	tail := string(runes[len(runes)-half:])
	return head + "\n\n... [중간 내용 생략] ...\n\n" + tail
}
