package sync

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/sqlutil"
)

// execCall is one recorded write statement.
type execCall struct {
	query  string
	params []any
}

// fakeSQL is a scriptable SQLConnector. queryFn and execFn default to
// empty results and one row affected.
type fakeSQL struct {
	dialect  sqlutil.Dialect
	pingErr  error
	beginErr error
	queryFn  func(query string, params ...any) ([]models.Row, []string, error)
	execFn   func(query string, params ...any) (int64, error)
	queries  []execCall
	execs    []execCall
	tx       *fakeTx
}

func (f *fakeSQL) Ping(context.Context) error  { return f.pingErr }
func (f *fakeSQL) Kind() models.BackendType    { return models.BackendPostgres }
func (f *fakeSQL) Close() error                { return nil }
func (f *fakeSQL) Dialect() sqlutil.Dialect    { return f.dialect }

func (f *fakeSQL) Query(_ context.Context, query string, params ...any) ([]models.Row, []string, error) {
	f.queries = append(f.queries, execCall{query: query, params: params})
	if f.queryFn != nil {
		return f.queryFn(query, params...)
	}
	return nil, nil, nil
}

func (f *fakeSQL) Exec(_ context.Context, query string, params ...any) (int64, error) {
	f.execs = append(f.execs, execCall{query: query, params: params})
	if f.execFn != nil {
		return f.execFn(query, params...)
	}
	return 1, nil
}

func (f *fakeSQL) BeginTx(context.Context) (connector.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	f.tx = &fakeTx{execFn: f.execFn}
	return f.tx, nil
}

type fakeTx struct {
	execFn     func(query string, params ...any) (int64, error)
	execs      []execCall
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Query(context.Context, string, ...any) ([]models.Row, []string, error) {
	return nil, nil, nil
}

func (t *fakeTx) Exec(_ context.Context, query string, params ...any) (int64, error) {
	t.execs = append(t.execs, execCall{query: query, params: params})
	if t.execFn != nil {
		return t.execFn(query, params...)
	}
	return 1, nil
}

func (t *fakeTx) Commit() error   { t.committed = true; return nil }
func (t *fakeTx) Rollback() error { t.rolledBack = true; return nil }

// fakeFile is a scriptable FileConnector.
type fakeFile struct {
	pingErr    error
	rows       []models.Row
	columns    []string
	readErr    error
	replaceErr error
	replaced   []models.Row
	replCols   []string
}

func (f *fakeFile) Ping(context.Context) error { return f.pingErr }
func (f *fakeFile) Kind() models.BackendType   { return models.BackendFile }
func (f *fakeFile) Close() error               { return nil }
func (f *fakeFile) Path() string               { return "/tmp/fake.csv" }

func (f *fakeFile) ReadAll(context.Context) ([]models.Row, []string, error) {
	return f.rows, f.columns, f.readErr
}

func (f *fakeFile) ReplaceAll(_ context.Context, columns []string, rows []models.Row) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replCols = columns
	f.replaced = rows
	return nil
}

// fakeTables is an in-memory TableConfigRepository.
type fakeTables struct {
	configs   []*models.TableConfiguration
	overrides map[string]map[string]string
}

func (f *fakeTables) ListEnabled(context.Context) ([]*models.TableConfiguration, error) {
	var enabled []*models.TableConfiguration
	for _, cfg := range f.configs {
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}
	return enabled, nil
}

func (f *fakeTables) GetByTable(_ context.Context, tableName string) (*models.TableConfiguration, error) {
	for _, cfg := range f.configs {
		if cfg.TableName == tableName {
			return cfg, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeTables) Upsert(context.Context, *models.TableConfiguration) error { return nil }

func (f *fakeTables) FieldOverrides(_ context.Context, tableName string) (map[string]string, error) {
	return f.overrides[tableName], nil
}

func (f *fakeTables) UpsertFieldOverride(context.Context, *models.FieldConfiguration) error {
	return nil
}

// fakeSettings is an in-memory SettingsRepository.
type fakeSettings struct {
	values     map[string]string
	watermarks map[string]time.Time
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: map[string]string{}, watermarks: map[string]time.Time{}}
}

func (f *fakeSettings) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return v, nil
}

func (f *fakeSettings) Set(_ context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

func (f *fakeSettings) GetLastSyncTime(_ context.Context, tableName string) (time.Time, error) {
	return f.watermarks[tableName], nil
}

func (f *fakeSettings) SetLastSyncTime(_ context.Context, tableName string, t time.Time) error {
	f.watermarks[tableName] = t
	return nil
}

// fakeLogs is an in-memory LogRepository.
type fakeLogs struct {
	entries []*models.SyncLog
}

func (f *fakeLogs) Insert(_ context.Context, log *models.SyncLog) error {
	f.entries = append(f.entries, log)
	return nil
}

func (f *fakeLogs) ListByJob(_ context.Context, jobID uuid.UUID, limit int) ([]*models.SyncLog, error) {
	var out []*models.SyncLog
	for _, e := range f.entries {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeChanges is an in-memory ChangeRepository.
type fakeChanges struct {
	pending    []*models.ChangeRecord
	archived   []int64
	archiveErr error
}

func (f *fakeChanges) Append(_ context.Context, change *models.ChangeRecord) error {
	change.ID = int64(len(f.pending) + 1)
	f.pending = append(f.pending, change)
	return nil
}

func (f *fakeChanges) ListUnprocessed(_ context.Context, limit int) ([]*models.ChangeRecord, error) {
	if limit <= 0 {
		limit = 1000 // mirror the repository's default cap
	}
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeChanges) ListUnprocessedForRecord(_ context.Context, tableName, recordKey string) ([]*models.ChangeRecord, error) {
	var matched []*models.ChangeRecord
	for _, c := range f.pending {
		if c.TableName == tableName && c.RecordKey == recordKey {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

func (f *fakeChanges) CountUnprocessed(context.Context) (int, error) {
	return len(f.pending), nil
}

func (f *fakeChanges) Archive(_ context.Context, ids []int64) error {
	if f.archiveErr != nil {
		return f.archiveErr
	}
	f.archived = append(f.archived, ids...)
	moved := make(map[int64]bool, len(ids))
	for _, id := range ids {
		moved[id] = true
	}
	var remaining []*models.ChangeRecord
	for _, c := range f.pending {
		if !moved[c.ID] {
			remaining = append(remaining, c)
		}
	}
	f.pending = remaining
	return nil
}

func (f *fakeChanges) ListArchived(context.Context, int, int) ([]*models.ArchivedChange, error) {
	return nil, nil
}

// fakeConflicts is an in-memory ConflictRepository.
type fakeConflicts struct {
	created    []*models.SyncConflict
	byID       map[uuid.UUID]*models.SyncConflict
	pendingFor map[string]bool // tableName + "\x00" + recordKey
	resolveErr error
}

func newFakeConflicts() *fakeConflicts {
	return &fakeConflicts{
		byID:       map[uuid.UUID]*models.SyncConflict{},
		pendingFor: map[string]bool{},
	}
}

func (f *fakeConflicts) Create(_ context.Context, conflict *models.SyncConflict) error {
	conflict.ID = uuid.New()
	conflict.ResolutionStatus = models.ResolutionStatusPending
	f.created = append(f.created, conflict)
	f.byID[conflict.ID] = conflict
	f.pendingFor[conflict.TableName+"\x00"+conflict.RecordKey] = true
	return nil
}

func (f *fakeConflicts) GetByID(_ context.Context, id uuid.UUID) (*models.SyncConflict, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

func (f *fakeConflicts) List(context.Context, uuid.UUID, string, int, int) ([]*models.SyncConflict, error) {
	var out []*models.SyncConflict
	for _, c := range f.created {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeConflicts) Resolve(_ context.Context, id uuid.UUID, strategy models.ResolutionStrategy, resolved models.Row, resolvedBy string) error {
	if f.resolveErr != nil {
		return f.resolveErr
	}
	c, ok := f.byID[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if c.ResolutionStatus != models.ResolutionStatusPending {
		return apperrors.ErrConflictAlreadyResolved
	}
	now := time.Now()
	c.ResolutionStatus = models.ResolutionStatusResolved
	c.ResolutionType = strategy
	c.ResolvedData = resolved
	c.ResolvedBy = resolvedBy
	c.ResolvedAt = &now
	delete(f.pendingFor, c.TableName+"\x00"+c.RecordKey)
	return nil
}

func (f *fakeConflicts) HasPending(_ context.Context, tableName, recordKey string) (bool, error) {
	return f.pendingFor[tableName+"\x00"+recordKey], nil
}

// fakeAudit is an in-memory AuditRepository.
type fakeAudit struct {
	entries []*models.AuditEntry
}

func (f *fakeAudit) Insert(_ context.Context, entry *models.AuditEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) InsertBatch(_ context.Context, entries []*models.AuditEntry) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeAudit) Query(context.Context, models.AuditQuery) ([]*models.AuditEntry, error) {
	return nil, nil
}

// execsContaining filters recorded statements by substring.
func execsContaining(calls []execCall, substr string) []execCall {
	var out []execCall
	for _, c := range calls {
		if strings.Contains(c.query, substr) {
			out = append(out, c)
		}
	}
	return out
}

func strptr(s string) *string { return &s }
