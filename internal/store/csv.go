package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Yoriyari/e621-Tags-by-Year/internal/domain"
)

const tagColumn = "Tag"

// CSV is the file-backed result table: a Tag column followed by one
// column per year in run order. Every upsert rewrites the whole file.
type CSV struct {
	path string
	log  *slog.Logger
}

// NewCSV creates a CSV store at the given path. The file is created on
// first upsert; a missing file reads as an empty table.
func NewCSV(path string, log *slog.Logger) *CSV {
	if log == nil {
		log = slog.Default()
	}
	return &CSV{path: path, log: log}
}

func (c *CSV) Close() error { return nil }

// Known reports whether a tag already has a row, compared
// case-insensitively.
func (c *CSV) Known(tag string) (bool, error) {
	_, rows, err := c.load()
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if strings.EqualFold(row[tagColumn], tag) {
			return true, nil
		}
	}
	return false, nil
}

// Upsert merges one record into the table and rewrites it with the
// column set of the current run. Columns a stored row had under an
// older schema are dropped, with a warning: that migration is lossy.
func (c *CSV) Upsert(rec domain.Record, years []int) error {
	header := make([]string, 0, len(years)+1)
	header = append(header, tagColumn)
	for _, y := range years {
		header = append(header, strconv.Itoa(y))
	}

	newRow := map[string]string{tagColumn: rec.Tag}
	for _, y := range years {
		newRow[strconv.Itoa(y)] = strconv.Itoa(rec.Counts[y])
	}

	_, rows, err := c.load()
	if err != nil {
		return err
	}

	merged := false
	out := make([]map[string]string, 0, len(rows)+1)
	for _, row := range rows {
		if strings.EqualFold(row[tagColumn], rec.Tag) {
			c.warnDroppedColumns(row, header)
			// Keep the casing the tag was first recorded with.
			replacement := make(map[string]string, len(newRow))
			for k, v := range newRow {
				replacement[k] = v
			}
			replacement[tagColumn] = row[tagColumn]
			out = append(out, replacement)
			merged = true
			continue
		}
		c.warnDroppedColumns(row, header)
		out = append(out, row)
	}
	if !merged {
		out = append(out, newRow)
	}

	return c.write(header, out)
}

func (c *CSV) load() ([]string, []map[string]string, error) {
	f, err := os.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open result table: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read result table: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, fields := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(fields) {
				row[col] = fields[i]
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func (c *CSV) write(header []string, rows []map[string]string) error {
	f, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("rewrite result table: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		fields := make([]string, len(header))
		for i, col := range header {
			fields[i] = row[col]
		}
		if err := w.Write(fields); err != nil {
			f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush result table: %w", err)
	}
	return f.Close()
}

func (c *CSV) warnDroppedColumns(row map[string]string, header []string) {
	keep := make(map[string]bool, len(header))
	for _, col := range header {
		keep[col] = true
	}
	for col := range row {
		if !keep[col] {
			c.log.Warn("dropping year column not in current run schema",
				"tag", row[tagColumn], "column", col)
		}
	}
}

