package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"reqtrack/internal/models"
)

// CSVHeader is the column layout used for import, export and the template.
var CSVHeader = []string{"category", "requirement", "product", "doc_link", "tenant_link"}

// ParseRequirementsCSV reads a header row followed by requirement rows.
// Columns may appear in any order; unknown columns are ignored. Any row
// missing category or requirement fails the whole parse.
func ParseRequirementsCSV(r io.Reader) ([]RequirementInput, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, validationf("csv is empty")
	}
	if err != nil {
		return nil, validationf("malformed csv header: %v", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[h] = i
	}
	for _, required := range CSVHeader[:2] {
		if _, ok := cols[required]; !ok {
			return nil, validationf("csv header missing column %q", required)
		}
	}

	get := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []RequirementInput
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, validationf("row %d: malformed csv: %v", n, err)
		}
		in := RequirementInput{
			Category:    get(rec, "category"),
			Requirement: get(rec, "requirement"),
			Product:     get(rec, "product"),
			DocLink:     get(rec, "doc_link"),
			TenantLink:  get(rec, "tenant_link"),
		}
		if in.Category == "" || in.Requirement == "" {
			return nil, validationf("Row %d missing required fields: category and requirement", n)
		}
		rows = append(rows, in)
	}
	return rows, nil
}

func WriteRequirementsCSV(w io.Writer, reqs []models.Requirement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range reqs {
		if err := cw.Write([]string{r.Category, r.Requirement, r.Product, r.DocLink, r.TenantLink}); err != nil {
			return fmt.Errorf("write requirement %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
