package tables

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// detector identifies the kind of candidate; lower values win ties.
type detector int

const (
	detectorMarkdown detector = iota
	detectorAligned
)

// line is one line of the document with its byte offsets.
// end excludes the newline.
type line struct {
	start, end int
	text       string
}

// candidate is a run of lines that passed a detector's validation.
type candidate struct {
	first, last int // line indexes, inclusive
	start, end  int // byte offsets
	kind        detector
}

func (c candidate) size() int { return c.end - c.start }

func (c candidate) overlaps(o candidate) bool {
	return c.first <= o.last && o.first <= c.last
}

var (
	separatorCell = regexp.MustCompile(`^[\-\s:]+$`)
	alignedSplit  = regexp.MustCompile(`\t+|\s{2,}`)
	numericCell   = regexp.MustCompile(`^[\(\-+$€£]*\d[\d,.]*%?\)?$`)
)

// splitLines splits text into lines, keeping byte offsets into text.
func splitLines(text string) []line {
	var lines []line
	start := 0
	for start <= len(text) {
		idx := strings.IndexByte(text[start:], '\n')
		end := len(text)
		if idx >= 0 {
			end = start + idx
		}
		lines = append(lines, line{
			start: start,
			end:   end,
			text:  strings.TrimSuffix(text[start:end], "\r"),
		})
		if idx < 0 {
			break
		}
		start = end + 1
	}
	return lines
}

// pipeCells splits a markdown table row into trimmed cells.
func pipeCells(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "|")
	s = strings.TrimSuffix(s, "|")
	parts := strings.Split(s, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func nonEmpty(cells []string) int {
	n := 0
	for _, c := range cells {
		if c != "" {
			n++
		}
	}
	return n
}

func isSeparatorRow(s string) bool {
	t := strings.TrimSpace(s)
	if !strings.Contains(t, "|") || !strings.Contains(t, "-") {
		return false
	}
	for _, cell := range pipeCells(t) {
		if cell != "" && !separatorCell.MatchString(cell) {
			return false
		}
	}
	return true
}

func isPipeRow(s string) bool {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "|") && !strings.HasSuffix(t, "|") {
		return false
	}
	if strings.Count(t, "|") < 2 {
		return false
	}
	return nonEmpty(pipeCells(t)) >= 2
}

// alignedCells splits a whitespace-aligned row into cells.
func alignedCells(s string) []string {
	t := strings.TrimSpace(s)
	if t == "" || strings.Contains(t, "|") {
		return nil
	}
	parts := alignedSplit.Split(t, -1)
	cells := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

func hasNumericCell(cells []string) bool {
	for _, c := range cells {
		if numericCell.MatchString(strings.ReplaceAll(c, " ", "")) {
			return true
		}
	}
	return false
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

// detectMarkdown finds runs of pipe-delimited rows.
func (e *Extractor) detectMarkdown(lines []line) []candidate {
	var out []candidate
	for i := 0; i < len(lines); {
		if !isPipeRow(lines[i].text) && !isSeparatorRow(lines[i].text) {
			i++
			continue
		}
		j := i
		for j+1 < len(lines) && (isPipeRow(lines[j+1].text) || isSeparatorRow(lines[j+1].text)) {
			j++
		}
		if c, ok := e.validateMarkdown(lines, i, j); ok {
			out = append(out, c)
		}
		i = j + 1
	}
	return out
}

func (e *Extractor) validateMarkdown(lines []line, first, last int) (candidate, bool) {
	rows, cells, longest := 0, 0, 0
	minCols, maxCols := -1, 0
	for i := first; i <= last; i++ {
		text := lines[i].text
		if isSeparatorRow(text) {
			continue
		}
		row := pipeCells(text)
		filled := nonEmpty(row)
		if filled < 2 {
			continue
		}
		rows++
		cells += filled
		if minCols < 0 || len(row) < minCols {
			minCols = len(row)
		}
		if len(row) > maxCols {
			maxCols = len(row)
		}
		if n := utf8.RuneCountInString(strings.TrimSpace(text)); n > longest {
			longest = n
		}
	}
	if rows < e.config.MinRows || maxCols < e.config.MinColumns || cells < e.config.MinCells {
		return candidate{}, false
	}
	if maxCols-minCols > e.config.MaxColumnSpread || longest <= e.config.MinLineLength {
		return candidate{}, false
	}
	return candidate{
		first: first,
		last:  last,
		start: lines[first].start,
		end:   lines[last].end,
		kind:  detectorMarkdown,
	}, true
}

// detectAligned finds runs of rows whose cells are separated by tabs
// or runs of two or more spaces.
func (e *Extractor) detectAligned(lines []line) []candidate {
	var out []candidate
	for i := 0; i < len(lines); {
		if len(alignedCells(lines[i].text)) < 2 {
			i++
			continue
		}
		j := i
		for j+1 < len(lines) && len(alignedCells(lines[j+1].text)) >= 2 {
			j++
		}
		if c, ok := e.validateAligned(lines, i, j); ok {
			out = append(out, c)
		}
		i = j + 1
	}
	return out
}

func (e *Extractor) validateAligned(lines []line, first, last int) (candidate, bool) {
	rows := last - first + 1
	if rows < e.config.AlignedMinRows {
		return candidate{}, false
	}
	cells, numeric, longest := 0, 0, 0
	minCols, maxCols := -1, 0
	for i := first; i <= last; i++ {
		row := alignedCells(lines[i].text)
		for _, c := range row {
			if utf8.RuneCountInString(c) > e.config.MaxCellLength {
				return candidate{}, false
			}
		}
		cells += len(row)
		if minCols < 0 || len(row) < minCols {
			minCols = len(row)
		}
		if len(row) > maxCols {
			maxCols = len(row)
		}
		if hasNumericCell(row) {
			numeric++
		}
		if n := utf8.RuneCountInString(strings.TrimSpace(lines[i].text)); n > longest {
			longest = n
		}
	}
	if maxCols-minCols > 1 || cells < e.config.MinCells || numeric*2 < rows {
		return candidate{}, false
	}
	if longest <= e.config.MinLineLength || !hasLetter(lines[first].text) {
		return candidate{}, false
	}
	return candidate{
		first: first,
		last:  last,
		start: lines[first].start,
		end:   lines[last].end,
		kind:  detectorAligned,
	}, true
}
