package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peternagy/tablemoins/internal/driver/sqlutil"
	"github.com/peternagy/tablemoins/internal/types"
)

// fakeDB records statements and quotes with the PostgreSQL dialect.
type fakeDB struct {
	statements []string
	failOn     int // 1-based statement index that fails
}

func (f *fakeDB) ExecuteStatement(ctx context.Context, statement string) (*types.QueryResult, error) {
	f.statements = append(f.statements, statement)
	if len(f.statements) == f.failOn {
		return nil, errors.New("duplicate key")
	}
	return &types.QueryResult{Statement: statement}, nil
}

func (f *fakeDB) QuoteIdentifier(name string) string { return sqlutil.Postgres.QuoteIdentifier(name) }
func (f *fakeDB) QuoteValue(v any) string            { return sqlutil.Postgres.QuoteValue(v) }

func TestImport_BuildsBatches(t *testing.T) {
	db := &fakeDB{}
	src := "id,label,price\n1,O'Brien,9.5\n2,,007\n3,plain,true\n"

	res, err := NewService(nil).Import(context.Background(), db, "public.order items", strings.NewReader(src),
		types.CSVImportOptions{HasHeader: true, BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Inserted)
	assert.Equal(t, 2, res.Batches)
	require.Len(t, db.statements, 2)
	assert.Equal(t,
		`INSERT INTO "public"."order items" ("id", "label", "price") VALUES (1, 'O''Brien', 9.5), (2, NULL, '007')`,
		db.statements[0])
	assert.Equal(t, `INSERT INTO "public"."order items" ("id", "label", "price") VALUES (3, 'plain', TRUE)`, db.statements[1])
}

// mysqlDB quotes with the MySQL dialect.
type mysqlDB struct{ fakeDB }

func (m *mysqlDB) QuoteIdentifier(name string) string { return sqlutil.MySQL.QuoteIdentifier(name) }
func (m *mysqlDB) QuoteValue(v any) string            { return sqlutil.MySQL.QuoteValue(v) }

func TestImport_MySQLEscapesBackslashes(t *testing.T) {
	db := &mysqlDB{}
	src := "path,note\n" + `C:\dir\,a\nb` + "\n" + `x\' OR 1=1 -- ,ok` + "\n"

	res, err := NewService(nil).Import(context.Background(), db, "files", strings.NewReader(src),
		types.CSVImportOptions{HasHeader: true, Delimiter: ","})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Inserted)
	require.Len(t, db.statements, 1)
	assert.Equal(t,
		"INSERT INTO `files` (`path`, `note`) VALUES ('C:\\\\dir\\\\', 'a\\\\nb'), ('x\\\\'' OR 1=1 -- ', 'ok')",
		db.statements[0])
}

func TestImport_FailuresAreCounted(t *testing.T) {
	db := &fakeDB{failOn: 1}
	src := "a;b\n1;2\n3\n4;5\n"

	res, err := NewService(nil).Import(context.Background(), db, "t", strings.NewReader(src),
		types.CSVImportOptions{HasHeader: true, BatchSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Inserted)
	assert.Equal(t, int64(2), res.Failed, "one short record plus one failed batch")
	assert.Len(t, res.Errors, 2)
}

func TestImport_DryRunAndColumns(t *testing.T) {
	db := &fakeDB{}
	res, err := NewService(nil).Import(context.Background(), db, "t", strings.NewReader("1\t2\n3\t4\n"),
		types.CSVImportOptions{Columns: []string{"x", "y"}, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Inserted)
	assert.True(t, res.DryRun)
	assert.Empty(t, db.statements)

	_, err = NewService(nil).Import(context.Background(), db, "t", strings.NewReader("1,2\n"), types.CSVImportOptions{})
	assert.Error(t, err, "columns are required without a header")

	_, err = NewService(nil).Import(context.Background(), db, "t", strings.NewReader(""), types.CSVImportOptions{HasHeader: true})
	assert.Error(t, err)
}

func TestImport_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewService(nil).Import(ctx, &fakeDB{}, "t", strings.NewReader("a\n1\n"), types.CSVImportOptions{HasHeader: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPreview(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	content := "\xEF\xBB\xBFname;age\n"
	for i := 0; i < 15; i++ {
		content += "x;1\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := NewService(nil).Preview(path, types.CSVImportOptions{HasHeader: true})
	require.NoError(t, err)
	assert.Equal(t, ";", p.Delimiter)
	assert.Equal(t, []string{"name", "age"}, p.Headers)
	assert.Len(t, p.Rows, 10)
}

func TestInferValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"", nil},
		{"TRUE", true},
		{"false", false},
		{"42", int64(42)},
		{"-3", int64(-3)},
		{"0", int64(0)},
		{"0.25", 0.25},
		{"00123", "00123"},
		{"1e3", 1000.0},
		{"NaN", "NaN"},
		{"2026-01-02", "2026-01-02"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferValue(tt.in), tt.in)
	}
}

func TestDetectDelimiter(t *testing.T) {
	assert.Equal(t, ',', DetectDelimiter([]byte("a,b,c\n1,2,3\n")))
	assert.Equal(t, '\t', DetectDelimiter([]byte("a\tb\n1\t2\n")))
	assert.Equal(t, ';', DetectDelimiter([]byte("a;b;c\n\"x;y\";2;3\n")))
	assert.Equal(t, ',', DetectDelimiter([]byte("single\n")))
	assert.Equal(t, ',', DetectDelimiter(nil))
}
