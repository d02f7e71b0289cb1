// Package importer loads CSV files into relational tables through the
// driver's statement interface.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/debug"
	"github.com/peternagy/tablemoins/internal/types"
)

const (
	DefaultBatchSize = 500
	maxBatchSize     = 5000
	maxErrors        = 10
	previewRows      = 10
	EventProgress    = "import:progress"
)

// Inserter is the part of driver.SQLDriver an import needs.
type Inserter interface {
	ExecuteStatement(ctx context.Context, statement string) (*types.QueryResult, error)
	QuoteIdentifier(name string) string
	QuoteValue(v any) string
}

// Service runs CSV imports.
type Service struct {
	emitter core.EventEmitter
}

// NewService creates an import service. A nil emitter discards progress.
func NewService(emitter core.EventEmitter) *Service {
	if emitter == nil {
		emitter = &core.NoopEventEmitter{}
	}
	return &Service{emitter: emitter}
}

// Preview reads the delimiter, header and first rows of the file at path.
func (s *Service) Preview(path string, opts types.CSVImportOptions) (*types.CSVImportPreview, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	r, delim, err := newReader(f, opts.Delimiter)
	if err != nil {
		return nil, err
	}
	preview := &types.CSVImportPreview{Delimiter: string(delim)}
	for len(preview.Rows) < previewRows {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		if preview.Headers == nil && opts.HasHeader {
			preview.Headers = rec
			continue
		}
		preview.Rows = append(preview.Rows, rec)
	}
	if len(opts.Columns) > 0 {
		preview.Headers = opts.Columns
	}
	return preview, nil
}

// ImportFile imports the file named in opts.FilePath into target.
func (s *Service) ImportFile(ctx context.Context, db Inserter, target string, opts types.CSVImportOptions) (*types.ImportResult, error) {
	f, err := os.Open(opts.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return s.Import(ctx, db, target, f, opts)
}

// Import inserts every record of src into target ("table" or
// "schema.table") with multi-row INSERT statements. A failed batch is
// counted and the import goes on. With DryRun set nothing is executed.
func (s *Service) Import(ctx context.Context, db Inserter, target string, src io.Reader, opts types.CSVImportOptions) (*types.ImportResult, error) {
	start := time.Now()
	r, _, err := newReader(src, opts.Delimiter)
	if err != nil {
		return nil, err
	}

	columns := opts.Columns
	if opts.HasHeader {
		header, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv file is empty")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
		if len(columns) == 0 {
			columns = header
		}
	}
	if len(columns) == 0 {
		return nil, errors.New("column names are required when the file has no header")
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	batchSize = min(batchSize, maxBatchSize)

	res := &types.ImportResult{Target: target, DryRun: opts.DryRun}
	prefix := insertPrefix(db, target, columns)
	batch := make([][]string, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		res.Batches++
		n := int64(len(batch))
		if opts.DryRun {
			res.Inserted += n
		} else if _, err := db.ExecuteStatement(ctx, buildInsert(db, prefix, batch)); err != nil {
			res.Failed += n
			if len(res.Errors) < maxErrors {
				res.Errors = append(res.Errors, fmt.Sprintf("batch %d: %v", res.Batches, err))
			}
		} else {
			res.Inserted += n
		}
		batch = batch[:0]
		s.emitter.Emit(EventProgress, *res)
	}

	line := 0
	for {
		if err := ctx.Err(); err != nil {
			res.ElapsedMs = core.ElapsedMs(start)
			return res, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return res, fmt.Errorf("failed to parse record %d: %w", line, err)
		}
		if len(rec) != len(columns) {
			res.Failed++
			if len(res.Errors) < maxErrors {
				res.Errors = append(res.Errors, fmt.Sprintf("record %d: expected %d fields, got %d", line, len(columns), len(rec)))
			}
			continue
		}
		batch = append(batch, rec)
		if len(batch) == batchSize {
			flush()
		}
	}
	flush()

	res.ElapsedMs = core.ElapsedMs(start)
	debug.LogQuery("CSV import finished", map[string]interface{}{
		"target": target, "inserted": res.Inserted, "failed": res.Failed, "dryRun": opts.DryRun,
	})
	return res, nil
}

func insertPrefix(db Inserter, target string, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	if i := strings.IndexByte(target, '.'); i > 0 && i < len(target)-1 {
		b.WriteString(db.QuoteIdentifier(target[:i]))
		b.WriteByte('.')
		b.WriteString(db.QuoteIdentifier(target[i+1:]))
	} else {
		b.WriteString(db.QuoteIdentifier(target))
	}
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(db.QuoteIdentifier(strings.TrimSpace(c)))
	}
	b.WriteString(") VALUES ")
	return b.String()
}

func buildInsert(db Inserter, prefix string, batch [][]string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for i, rec := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, v := range rec {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(db.QuoteValue(InferValue(v)))
		}
		b.WriteByte(')')
	}
	return b.String()
}

// InferValue converts a CSV field to the value it most likely holds. Empty
// fields become NULL. Numbers with leading zeros stay strings.
func InferValue(value string) any {
	if value == "" {
		return nil
	}
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if len(value) > 1 && value[0] == '0' && value[1] != '.' {
		return value
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return value
}

// newReader strips a UTF-8 BOM and returns a csv reader using delimiter, or
// the detected one when delimiter is empty.
func newReader(src io.Reader, delimiter string) (*csv.Reader, rune, error) {
	br := bufio.NewReader(skipBOM(src))

	var delim rune
	if delimiter == "" {
		sample, _ := br.Peek(64 * 1024)
		delim = DetectDelimiter(sample)
	} else {
		d, size := utf8.DecodeRuneInString(delimiter)
		if size != len(delimiter) || d == '"' || d == '\n' || d == '\r' {
			return nil, 0, errors.New("delimiter must be a single character")
		}
		delim = d
	}

	r := csv.NewReader(br)
	r.Comma = delim
	r.FieldsPerRecord = -1
	return r, delim, nil
}

// DetectDelimiter picks the candidate among , tab and ; that splits the
// first lines of sample into the most consistent number of fields.
func DetectDelimiter(sample []byte) rune {
	var lines []string
	for _, line := range strings.Split(string(sample), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimRight(line, "\r"))
		}
		if len(lines) == 10 {
			break
		}
	}

	best, bestScore := ',', -1
	for _, c := range []rune{',', '\t', ';'} {
		var counts []int
		for _, line := range lines {
			r := csv.NewReader(strings.NewReader(line))
			r.Comma = c
			r.LazyQuotes = true
			fields, err := r.Read()
			if err != nil {
				continue
			}
			counts = append(counts, len(fields))
		}
		if len(counts) == 0 || counts[0] <= 1 {
			continue
		}
		score := counts[0]
		for _, n := range counts[1:] {
			if n != counts[0] {
				score /= 2
				break
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// skipBOM drops a leading UTF-8 byte order mark.
func skipBOM(r io.Reader) io.Reader {
	buf := make([]byte, 3)
	n, _ := io.ReadFull(r, buf)
	if n == 3 && bytes.Equal(buf, []byte{0xEF, 0xBB, 0xBF}) {
		return r
	}
	return io.MultiReader(bytes.NewReader(buf[:n]), r)
}
