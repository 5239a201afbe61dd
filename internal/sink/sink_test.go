package sink

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx записывает SQL и строки COPY. Методы, не нужные пакету,
// остаются от встроенного nil-интерфейса.
type fakeTx struct {
	pgx.Tx

	execs      []string
	copyTable  pgx.Identifier
	copyCols   []string
	copyRows   [][]any
	committed  bool
	rolledBack bool
	copyErr    error
}

func (tx *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, sql)
	return pgconn.NewCommandTag("OK"), nil
}

func (tx *fakeTx) CopyFrom(_ context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	if tx.copyErr != nil {
		return 0, tx.copyErr
	}
	tx.copyTable, tx.copyCols = table, cols
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return 0, err
		}
		tx.copyRows = append(tx.copyRows, values)
	}
	return int64(len(tx.copyRows)), src.Err()
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx    *fakeTx
	execs []string
	args  [][]any
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) { return db.tx, nil }

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, sql)
	db.args = append(db.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

const authorsTSV = "email\tname\tstate\n" +
	"a@x\tAnn\tLA\n" +
	"b@x\t\n" +
	"\n" +
	"c@x\tCid\tNY\r\n"

func TestParseTSV(t *testing.T) {
	cols, rows, err := ParseTSV(strings.NewReader(authorsTSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"email", "name", "state"}, cols)
	require.Len(t, rows, 3)
	assert.Equal(t, []any{"a@x", "Ann", "LA"}, rows[0])
	assert.Equal(t, []any{"b@x", nil, nil}, rows[1])
	assert.Equal(t, []any{"c@x", "Cid", "NY"}, rows[2])
}

func TestParseTSV_Errors(t *testing.T) {
	_, _, err := ParseTSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, _, err = ParseTSV(strings.NewReader("a\ta\n"))
	assert.ErrorIs(t, err, ErrDuplicateColumn)

	_, _, err = ParseTSV(strings.NewReader("a\tb\n1\t2\t3\n"))
	assert.ErrorIs(t, err, ErrRowTooWide)
}

func TestParseTSV_UnnamedColumns(t *testing.T) {
	cols, _, err := ParseTSV(strings.NewReader("id\t\t\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "column_2", "column_3"}, cols)
}

func TestTableIdentifier(t *testing.T) {
	id, err := TableIdentifier("public.authors")
	require.NoError(t, err)
	assert.Equal(t, `"public"."authors"`, id.Sanitize())

	for _, bad := range []string{"", "a..b", "a.b.c", ".x"} {
		_, err := TableIdentifier(bad)
		assert.ErrorIs(t, err, ErrInvalidTable, bad)
	}
}

func TestCreateTableSQL(t *testing.T) {
	sql := createTableSQL(pgx.Identifier{"authors"}, []string{"Column 1", `we"ird`})
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "authors" ("Column 1" text, "we""ird" text)`, sql)
}

func TestLoadTSV(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{}}
	s := New(db, nil)

	n, err := s.LoadTSV(context.Background(), "authors", strings.NewReader(authorsTSV), LoadOptions{Truncate: true})
	require.NoError(t, err)

	assert.EqualValues(t, 3, n)
	tx := db.tx
	require.Len(t, tx.execs, 2)
	assert.Contains(t, tx.execs[0], `CREATE TABLE IF NOT EXISTS "authors"`)
	assert.Equal(t, `TRUNCATE "authors"`, tx.execs[1])
	assert.Equal(t, pgx.Identifier{"authors"}, tx.copyTable)
	assert.Equal(t, []string{"email", "name", "state"}, tx.copyCols)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestLoadTSV_CopyFailureRollsBack(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{copyErr: errors.New("boom")}}

	_, err := New(db, nil).LoadTSV(context.Background(), "authors", strings.NewReader(authorsTSV), LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy into authors")
	assert.True(t, db.tx.rolledBack)
	assert.Len(t, db.tx.execs, 1, "no truncate without option")
}

func TestRunLog_Record(t *testing.T) {
	db := &fakeDB{}
	log := NewRunLog(db)

	require.NoError(t, log.EnsureSchema(context.Background()))
	assert.Contains(t, db.execs[0], "refinery_job_runs")

	started := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	run := JobRun{
		ID:         uuid.New(),
		Job:        "authors-clean",
		Status:     RunSucceeded,
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
	}
	require.NoError(t, log.Record(context.Background(), run))

	args := db.args[1]
	require.Len(t, args, 7)
	assert.Equal(t, run.ID, args[0])
	assert.Nil(t, args[2], "empty project id is NULL")
	assert.Nil(t, args[4], "empty error is NULL")
	assert.Equal(t, 2*time.Second, run.Duration())
}

// fakeSession — соединение с advisory lock. Ping падает, пока задан pingErr.
type fakeSession struct {
	locked   bool
	pingErr  error
	released bool
	execs    []string
}

type boolRow bool

func (r boolRow) Scan(dest ...any) error {
	*dest[0].(*bool) = bool(r)
	return nil
}

func (s *fakeSession) QueryRow(context.Context, string, ...any) pgx.Row { return boolRow(s.locked) }

func (s *fakeSession) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (s *fakeSession) Ping(context.Context) error { return s.pingErr }

func (s *fakeSession) Release() { s.released = true }

func TestLeader_ReacquiresLostSession(t *testing.T) {
	sessions := []*fakeSession{{locked: true}, {locked: true}}
	acquired := 0
	l := newLeader(func(context.Context) (lockSession, error) {
		s := sessions[acquired]
		acquired++
		return s, nil
	}, SchedulerLockKey)
	ctx := context.Background()

	ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, acquired, "live session is reused")

	sessions[0].pingErr = errors.New("connection reset")
	ok, err = l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, acquired)
	assert.True(t, sessions[0].released)

	require.NoError(t, l.Release(ctx))
	assert.True(t, sessions[1].released)
	assert.Equal(t, []string{"select pg_advisory_unlock($1)"}, sessions[1].execs)
}

func TestLeader_LostSessionAndLockTaken(t *testing.T) {
	first := &fakeSession{locked: true}
	other := &fakeSession{locked: false}
	next := []*fakeSession{first, other}
	l := newLeader(func(context.Context) (lockSession, error) {
		s := next[0]
		next = next[1:]
		return s, nil
	}, SchedulerLockKey)
	ctx := context.Background()

	ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	first.pingErr = errors.New("connection reset")
	ok, err = l.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "another instance took the lock")
	assert.True(t, other.released)
	assert.NoError(t, l.Release(ctx))
}
