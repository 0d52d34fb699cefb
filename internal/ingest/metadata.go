package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// Origin records where a metadata row came from. CSV rows accompany a
// directory ingest; form rows come with a single uploaded document.
type Origin string

const (
	OriginCSV  Origin = "csv"
	OriginForm Origin = "form"
)

// ArticleMetadata identifies an article being ingested. PMID is the
// stable identifier everything downstream keys on.
type ArticleMetadata struct {
	PMID      int64  `json:"pmid"`
	Title     string `json:"title"`
	SourceURL string `json:"source_url"`
	Origin    Origin `json:"origin"`
}

func (m ArticleMetadata) Validate() error {
	if m.PMID <= 0 {
		return fmt.Errorf("metadata requires a positive pmid, got %d", m.PMID)
	}
	if m.Origin != OriginCSV && m.Origin != OriginForm {
		return fmt.Errorf("unknown metadata origin %q", m.Origin)
	}
	return nil
}

// ParseCSV reads article metadata rows from a file with a header line of
// pmid,title,source_url (source_url optional). Rows with a bad PMID are
// rejected rather than skipped.
func ParseCSV(r io.Reader) ([]ArticleMetadata, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	pmidCol, ok := col["pmid"]
	if !ok {
		return nil, fmt.Errorf("metadata csv has no pmid column")
	}

	var rows []ArticleMetadata
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read metadata line %d: %w", line, err)
		}
		pmid, err := strconv.ParseInt(strings.TrimSpace(record[pmidCol]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("metadata line %d: bad pmid %q", line, record[pmidCol])
		}
		row := ArticleMetadata{PMID: pmid, Origin: OriginCSV}
		if i, ok := col["title"]; ok && i < len(record) {
			row.Title = strings.TrimSpace(record[i])
		}
		if i, ok := col["source_url"]; ok && i < len(record) {
			row.SourceURL = strings.TrimSpace(record[i])
		}
		if err := row.Validate(); err != nil {
			return nil, fmt.Errorf("metadata line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FromForm builds metadata for a single uploaded document.
func FromForm(pmid, title, sourceURL string) (ArticleMetadata, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(pmid), 10, 64)
	if err != nil {
		return ArticleMetadata{}, fmt.Errorf("bad pmid %q", pmid)
	}
	m := ArticleMetadata{
		PMID:      id,
		Title:     strings.TrimSpace(title),
		SourceURL: strings.TrimSpace(sourceURL),
		Origin:    OriginForm,
	}
	if err := m.Validate(); err != nil {
		return ArticleMetadata{}, err
	}
	return m, nil
}

// PMIDFromFilename extracts the PMID from a corpus file named after it,
// e.g. 31452104.pdf or pmid_31452104.txt.
func PMIDFromFilename(path string) (int64, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	start := strings.IndexFunc(stem, isDigit)
	if start < 0 {
		return 0, fmt.Errorf("no pmid in filename %q", filepath.Base(path))
	}
	end := start
	for end < len(stem) && isDigit(rune(stem[end])) {
		end++
	}
	pmid, err := strconv.ParseInt(stem[start:end], 10, 64)
	if err != nil || pmid <= 0 {
		return 0, fmt.Errorf("no pmid in filename %q", filepath.Base(path))
	}
	return pmid, nil
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
