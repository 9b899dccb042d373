// Package selector reads batch files naming the courses a run acts on.
package selector

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"isites_migrator/internal/domain"
)

// RowError describes a row that was skipped.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Batch is the parsed content of a batch file.
type Batch struct {
	Selectors []domain.CourseSelector
	Skipped   []RowError
}

// ReadExportFile reads a single-column file of iSites keywords.
func ReadExportFile(path string) (*Batch, error) {
	return readFile(path, 1)
}

// ReadImportFile reads keyword,canvas_course_id pairs.
func ReadImportFile(path string) (*Batch, error) {
	return readFile(path, 2)
}

func readFile(path string, columns int) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	batch, err := Parse(f, columns)
	if err != nil {
		return nil, fmt.Errorf("read batch file %s: %w", path, err)
	}
	return batch, nil
}

// Parse reads every row before returning, so a syntax error anywhere in the
// input fails the whole batch before any course is touched. Rows with the
// wrong shape are collected in Skipped.
func Parse(r io.Reader, columns int) (*Batch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	batch := &Batch{}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		line, _ := cr.FieldPos(0)
		sel, rowErr := toSelector(record, columns)
		if rowErr != "" {
			batch.Skipped = append(batch.Skipped, RowError{Line: line, Reason: rowErr})
			continue
		}
		batch.Selectors = append(batch.Selectors, sel)
	}
	return batch, nil
}

func toSelector(record []string, columns int) (domain.CourseSelector, string) {
	if len(record) < columns {
		return domain.CourseSelector{}, fmt.Sprintf("expected %d columns, got %d", columns, len(record))
	}

	fields := make([]string, columns)
	for i := range fields {
		fields[i] = strings.TrimSpace(record[i])
		if fields[i] == "" {
			return domain.CourseSelector{}, fmt.Sprintf("column %d is empty", i+1)
		}
	}

	sel := domain.CourseSelector{Keyword: fields[0]}
	if columns > 1 {
		sel.CanvasCourseID = fields[1]
	}
	return sel, ""
}
