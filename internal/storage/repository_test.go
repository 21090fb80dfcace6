package storage_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/tripsync/internal/destination"
	"github.com/neexbeast/tripsync/internal/storage"
)

// ---- mock Querier ----

type mockQuerier struct {
	queryFn func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFn  func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return m.queryFn(ctx, sql, args...)
}
func (m *mockQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return m.execFn(ctx, sql, args...)
}

// ---- mock pgx.Rows ----

type fakeRows struct {
	rows    [][]any
	idx     int
	rowErr  error
	scanErr error
}

func (f *fakeRows) Next() bool                                   { f.idx++; return f.idx <= len(f.rows) }
func (f *fakeRows) Err() error                                   { return f.rowErr }
func (f *fakeRows) Close()                                       {}
func (f *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (f *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (f *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (f *fakeRows) RawValues() [][]byte                          { return nil }
func (f *fakeRows) Conn() *pgx.Conn                              { return nil }

func (f *fakeRows) Scan(dest ...any) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	row := f.rows[f.idx-1]
	for i, d := range dest {
		if i >= len(row) {
			break
		}
		switch v := d.(type) {
		case *int:
			*v = row[i].(int)
		case *string:
			*v = row[i].(string)
		case *[]byte:
			*v = row[i].([]byte)
		case **time.Time:
			if row[i] == nil {
				*v = nil
			} else {
				t := row[i].(time.Time)
				*v = &t
			}
		case *time.Time:
			*v = row[i].(time.Time)
		}
	}
	return nil
}

// ---- mock MigrationPool ----

type mockMigrationPool struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (m *mockMigrationPool) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.beginFn(ctx)
}

// mockTx is a minimal pgx.Tx implementation for testing migrations.
type mockTx struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
}

func (t *mockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.execFn(ctx, sql, args...)
}
func (t *mockTx) Commit(ctx context.Context) error   { return t.commitFn(ctx) }
func (t *mockTx) Rollback(ctx context.Context) error { return t.rollbackFn(ctx) }

// pgx.Tx has many more methods â€” stub them all out.
func (t *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (t *mockTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *mockTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *mockTx) LargeObjects() pgx.LargeObjects                             { return pgx.LargeObjects{} }
func (t *mockTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *mockTx) Conn() *pgx.Conn { return nil }

// ---- helpers ----

func marshalDestination(t *testing.T, d destination.Destination) []byte {
	t.Helper()
	b, err := json.Marshal(d)
	require.NoError(t, err)
	return b
}

func writeSQLFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// ---- RecordSearch tests ----

func TestRecordSearch_Success(t *testing.T) {
	var capturedArgs []any
	q := &mockQuerier{
		execFn: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
			capturedArgs = args
			return pgconn.CommandTag{}, nil
		},
	}

	top := destination.Destination{ID: "place-1", Name: "Paris"}
	repo := storage.NewRepositoryWithQuerier(q)
	err := repo.RecordSearch(context.Background(), destination.SearchEvent{
		Query:           "paris",
		Source:          destination.SourcePrimary,
		ResultCount:     3,
		TopResult:       &top,
		ClientKeyPrefix: "203.0.11...",
	})
	require.NoError(t, err)
	require.Len(t, capturedArgs, 5)
	assert.Equal(t, "paris", capturedArgs[0])
	assert.Equal(t, "google", capturedArgs[1])
	assert.Equal(t, 3, capturedArgs[2])
	assert.JSONEq(t, string(marshalDestination(t, top)), string(capturedArgs[3].([]byte)))
	assert.Equal(t, "203.0.11...", capturedArgs[4])
}

func TestRecordSearch_NoTopResult(t *testing.T) {
	var capturedArgs []any
	q := &mockQuerier{
		execFn: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
			capturedArgs = args
			return pgconn.CommandTag{}, nil
		},
	}

	repo := storage.NewRepositoryWithQuerier(q)
	err := repo.RecordSearch(context.Background(), destination.SearchEvent{Query: "qqq", Source: destination.SourceFallback})
	require.NoError(t, err)
	assert.Nil(t, capturedArgs[3])
}

func TestRecordSearch_DBError(t *testing.T) {
	q := &mockQuerier{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, fmt.Errorf("db error")
		},
	}

	repo := storage.NewRepositoryWithQuerier(q)
	err := repo.RecordSearch(context.Background(), destination.SearchEvent{Query: "paris"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording search")
}

// ---- PopularDestinations tests ----

func TestPopularDestinations_Found(t *testing.T) {
	paris := marshalDestination(t, destination.Destination{ID: "p", Name: "Paris", Kind: destination.KindCity})
	tokyo := marshalDestination(t, destination.Destination{ID: "t", Name: "Tokyo", Kind: destination.KindCity, Photos: []string{"ref"}})

	var capturedArgs []any
	q := &mockQuerier{
		queryFn: func(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
			capturedArgs = args
			return &fakeRows{rows: [][]any{{paris, 12}, {tokyo, 4}}}, nil
		},
	}

	since := time.Now().Add(-7 * 24 * time.Hour)
	repo := storage.NewRepositoryWithQuerier(q)
	results, err := repo.PopularDestinations(context.Background(), since, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Paris", results[0].Name)
	assert.Equal(t, 12, results[0].SearchCount)
	assert.NotNil(t, results[0].Photos)
	assert.Equal(t, []string{"ref"}, results[1].Photos)
	assert.Equal(t, since, capturedArgs[0])
	assert.Equal(t, 5, capturedArgs[1])
}

func TestPopularDestinations_Empty(t *testing.T) {
	q := &mockQuerier{
		queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
			return &fakeRows{}, nil
		},
	}

	repo := storage.NewRepositoryWithQuerier(q)
	results, err := repo.PopularDestinations(context.Background(), time.Now(), 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPopularDestinations_QueryError(t *testing.T) {
	q := &mockQuerier{
		queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
			return nil, fmt.Errorf("query failed")
		},
	}

	repo := storage.NewRepositoryWithQuerier(q)
	_, err := repo.PopularDestinations(context.Background(), time.Now(), 5)
	require.Error(t, err)
}

func TestPopularDestinations_ScanError(t *testing.T) {
	rows := &fakeRows{
		rows:    [][]any{{[]byte("{}"), 1}},
		scanErr: fmt.Errorf("scan failed"),
	}
	q := &mockQuerier{
		queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return rows, nil },
	}

	repo := storage.NewRepositoryWithQuerier(q)
	_, err := repo.PopularDestinations(context.Background(), time.Now(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanning")
}

func TestPopularDestinations_RowsErr(t *testing.T) {
	rows := &fakeRows{rowErr: fmt.Errorf("rows iteration error")}
	q := &mockQuerier{
		queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return rows, nil },
	}

	repo := storage.NewRepositoryWithQuerier(q)
	_, err := repo.PopularDestinations(context.Background(), time.Now(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iterating")
}

func TestPopularDestinations_BadJSON(t *testing.T) {
	rows := &fakeRows{rows: [][]any{{[]byte("not-json"), 1}}}
	q := &mockQuerier{
		queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return rows, nil },
	}

	repo := storage.NewRepositoryWithQuerier(q)
	_, err := repo.PopularDestinations(context.Background(), time.Now(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshaling")
}

// ---- NewRepository ----

func TestNewRepository_NotNil(t *testing.T) {
	repo := storage.NewRepository(nil)
	assert.NotNil(t, repo)
}

// ---- RunMigrations tests ----

func TestRunMigrations_MissingDir(t *testing.T) {
	err := storage.RunMigrations(context.Background(), nil, "/nonexistent/dir")
	require.Error(t, err)
}

func TestRunMigrations_EmptyDir(t *testing.T) {
	err := storage.RunMigrations(context.Background(), nil, t.TempDir())
	require.NoError(t, err)
}

func TestRunMigrations_Success(t *testing.T) {
	dir := t.TempDir()
	writeSQLFile(t, dir, "001_test.sql", "SELECT 1;")

	tx := &mockTx{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, nil
		},
		commitFn:   func(_ context.Context) error { return nil },
		rollbackFn: func(_ context.Context) error { return nil },
	}
	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil },
	}

	err := storage.RunMigrations(context.Background(), pool, dir)
	require.NoError(t, err)
}

func TestRunMigrations_SkipsBlankFiles(t *testing.T) {
	dir := t.TempDir()
	writeSQLFile(t, dir, "001_blank.sql", "  \n")

	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) {
			t.Fatal("no transaction should be opened for a blank migration")
			return nil, nil
		},
	}

	err := storage.RunMigrations(context.Background(), pool, dir)
	require.NoError(t, err)
}

func TestRunMigrations_RepositoryMigrations(t *testing.T) {
	var executed []string
	tx := &mockTx{
		execFn: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			executed = append(executed, sql)
			return pgconn.CommandTag{}, nil
		},
		commitFn:   func(_ context.Context) error { return nil },
		rollbackFn: func(_ context.Context) error { return nil },
	}
	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil },
	}

	err := storage.RunMigrations(context.Background(), pool, filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, executed)
	assert.Contains(t, executed[0], "CREATE TABLE IF NOT EXISTS search_events")
}

func TestRunMigrations_BeginError(t *testing.T) {
	dir := t.TempDir()
	writeSQLFile(t, dir, "001_test.sql", "SELECT 1;")

	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) { return nil, fmt.Errorf("cannot begin") },
	}

	err := storage.RunMigrations(context.Background(), pool, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executing migration")
}

func TestRunMigrations_ExecError(t *testing.T) {
	dir := t.TempDir()
	writeSQLFile(t, dir, "001_test.sql", "INVALID SQL;")

	tx := &mockTx{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, fmt.Errorf("syntax error")
		},
		commitFn:   func(_ context.Context) error { return nil },
		rollbackFn: func(_ context.Context) error { return nil },
	}
	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil },
	}

	err := storage.RunMigrations(context.Background(), pool, dir)
	require.Error(t, err)
}

func TestRunMigrations_CommitError(t *testing.T) {
	dir := t.TempDir()
	writeSQLFile(t, dir, "001_test.sql", "SELECT 1;")

	tx := &mockTx{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, nil
		},
		commitFn:   func(_ context.Context) error { return fmt.Errorf("commit failed") },
		rollbackFn: func(_ context.Context) error { return nil },
	}
	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil },
	}

	err := storage.RunMigrations(context.Background(), pool, dir)
	require.Error(t, err)
}

func TestRunMigrations_SortsFilesLexicographically(t *testing.T) {
	dir := t.TempDir()
	var order []string
	writeSQLFile(t, dir, "003_c.sql", "SELECT 3;")
	writeSQLFile(t, dir, "001_a.sql", "SELECT 1;")
	writeSQLFile(t, dir, "002_b.sql", "SELECT 2;")

	tx := &mockTx{
		execFn: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			order = append(order, sql)
			return pgconn.CommandTag{}, nil
		},
		commitFn:   func(_ context.Context) error { return nil },
		rollbackFn: func(_ context.Context) error { return nil },
	}
	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil },
	}

	err := storage.RunMigrations(context.Background(), pool, dir)
	require.NoError(t, err)
	require.Len(t, order, 3)
	assert.Equal(t, "SELECT 1;", order[0])
	assert.Equal(t, "SELECT 2;", order[1])
	assert.Equal(t, "SELECT 3;", order[2])
}

// ---- Connect tests ----

func TestConnect_BadURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := storage.Connect(ctx, "postgres://invalid-host-xyz:5432/db?sslmode=disable")
	require.Error(t, err)
}
