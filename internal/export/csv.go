// Package export writes table contents to CSV by paging through a driver.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/debug"
	"github.com/peternagy/tablemoins/internal/types"
)

// Event names emitted while exporting.
const (
	EventProgress = "export:progress"
	EventDone     = "export:complete"
)

// DefaultPageSize is the number of rows fetched per paged read.
const DefaultPageSize = 1000

// ErrCancelled is returned when an export is cancelled part way.
var ErrCancelled = errors.New("export cancelled")

// PageReader is the part of driver.Driver an export needs.
type PageReader interface {
	PagedRead(ctx context.Context, target string, opts types.PageOptions) (*types.PageResult, error)
}

// Service runs exports and keeps their cancel functions.
type Service struct {
	emitter  core.EventEmitter
	pageSize int

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewService creates an export service. A nil emitter discards progress.
func NewService(emitter core.EventEmitter) *Service {
	if emitter == nil {
		emitter = &core.NoopEventEmitter{}
	}
	return &Service{
		emitter:  emitter,
		pageSize: DefaultPageSize,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// ExportToFile writes target to opts.FilePath, adding a .csv extension when
// missing. A failed export removes the partial file.
func (s *Service) ExportToFile(ctx context.Context, r PageReader, target string, opts types.CSVExportOptions) (int64, error) {
	path := opts.FilePath
	if path == "" {
		return 0, errors.New("file path is required")
	}
	if !strings.HasSuffix(strings.ToLower(path), ".csv") {
		path += ".csv"
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	rows, err := s.Export(ctx, r, target, opts, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close file: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return rows, err
	}
	return rows, nil
}

// Export pages through target and writes every row to w. The header row
// carries the column names. It returns the number of data rows written.
func (s *Service) Export(ctx context.Context, r PageReader, target string, opts types.CSVExportOptions, w io.Writer) (int64, error) {
	delimiter := ','
	if opts.Delimiter != "" {
		d, size := utf8.DecodeRuneInString(opts.Delimiter)
		if size != len(opts.Delimiter) || d == '"' || d == '\n' || d == '\r' {
			return 0, errors.New("delimiter must be a single character")
		}
		delimiter = d
	}

	exportID := fmt.Sprintf("csv-%s-%d", SanitizeFilename(target), time.Now().UnixNano())
	ctx, cancel := context.WithCancel(ctx)
	s.setCancel(exportID, cancel)
	defer s.clearCancel(exportID)

	sortSpec, err := stableSort(ctx, r, target, opts)
	if err != nil {
		if ctx.Err() != nil {
			s.emit(exportID, target, "cancelled", 0, 0)
			return 0, ErrCancelled
		}
		return 0, err
	}

	out := csv.NewWriter(w)
	out.Comma = delimiter

	var (
		written int64
		offset  int
		header  bool
	)
	for {
		if err := ctx.Err(); err != nil {
			s.emit(exportID, target, "cancelled", written, 0)
			return written, ErrCancelled
		}

		page, err := r.PagedRead(ctx, target, types.PageOptions{
			Filter: opts.Filter,
			Sort:   sortSpec,
			Limit:  s.pageSize,
			Offset: offset,
		})
		if err != nil {
			if ctx.Err() != nil {
				s.emit(exportID, target, "cancelled", written, 0)
				return written, ErrCancelled
			}
			return written, fmt.Errorf("failed to read rows at offset %d: %w", offset, err)
		}

		if !header && opts.IncludeHeader {
			names := make([]string, len(page.Columns))
			for i, c := range page.Columns {
				names[i] = c.Name
			}
			if err := out.Write(names); err != nil {
				return written, err
			}
			header = true
		}

		record := make([]string, 0, len(page.Columns))
		for _, row := range page.Rows {
			record = record[:0]
			for _, v := range row {
				record = append(record, FormatValue(v, opts.FlattenArrays))
			}
			if err := out.Write(record); err != nil {
				return written, err
			}
		}
		written += int64(len(page.Rows))
		offset += len(page.Rows)

		out.Flush()
		if err := out.Error(); err != nil {
			return written, fmt.Errorf("failed to write csv: %w", err)
		}
		s.emit(exportID, target, "writing", written, page.Total)

		if len(page.Rows) == 0 || int64(offset) >= page.Total {
			break
		}
	}

	s.emit(exportID, target, "done", written, written)
	debug.LogQuery("CSV export finished", map[string]interface{}{"target": target, "rows": written})
	return written, nil
}

// stableSort returns the caller's sort, or an ascending sort on the first
// column so that OFFSET paging sees one consistent row order.
func stableSort(ctx context.Context, r PageReader, target string, opts types.CSVExportOptions) (*types.SortSpec, error) {
	if opts.Sort != nil && opts.Sort.Column != "" {
		return opts.Sort, nil
	}
	head, err := r.PagedRead(ctx, target, types.PageOptions{Filter: opts.Filter, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	if len(head.Columns) == 0 {
		return nil, nil
	}
	return &types.SortSpec{Column: head.Columns[0].Name}, nil
}

// Cancel stops one running export. Unknown ids are ignored.
func (s *Service) Cancel(exportID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[exportID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelAll stops every running export.
func (s *Service) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.cancels {
		cancel()
		log.Debug().Str("export", id).Msg("Export cancelled")
	}
}

func (s *Service) setCancel(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()
}

func (s *Service) clearCancel(id string) {
	s.mu.Lock()
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()
}

func (s *Service) emit(id, target, phase string, rows, total int64) {
	name := EventProgress
	if phase != "writing" {
		name = EventDone
	}
	s.emitter.Emit(name, types.ExportProgress{ExportID: id, Target: target, Phase: phase, Rows: rows, Total: total})
}

// SanitizeFilename keeps letters, digits, dashes and underscores; spaces
// become underscores.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
	}
	return b.String()
}

// DefaultFilename returns "<target>_<date>.csv" with target sanitized and
// capped at 30 characters.
func DefaultFilename(target string, now time.Time) string {
	name := SanitizeFilename(target)
	if len(name) > 30 {
		name = name[:30]
	}
	if name == "" {
		name = "export"
	}
	return fmt.Sprintf("%s_%s.csv", name, now.Format("2006-01-02"))
}

// FormatValue renders one cell.
func FormatValue(value any, flattenArrays bool) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v)
	case []string:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = item
		}
		return formatList(items, flattenArrays)
	case []any:
		return formatList(v, flattenArrays)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

func formatList(items []any, flatten bool) string {
	if !flatten {
		b, err := json.Marshal(items)
		if err != nil {
			return fmt.Sprint(items)
		}
		return string(b)
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = FormatValue(item, true)
	}
	return strings.Join(parts, ";")
}
