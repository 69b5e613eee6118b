package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"funnelbot/internal/model"
	logx "funnelbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- tenants ----

func (s *sqliteStore) Tenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, bot_token, admin_id FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Tenant
	for rows.Next() {
		var t model.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.BotToken, &t.AdminID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CreateTenant(ctx context.Context, t model.Tenant) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants(name, bot_token, admin_id, created_at) VALUES(?,?,?,?)`,
		t.Name, t.BotToken, t.AdminID, formatTime(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ---- recipients ----

const recipientCols = `id, tenant_id, chat_id, username, first_name, last_name, step_cursor, last_advance, enrolled_at, status`

func (s *sqliteStore) Recipients(ctx context.Context, tenantID int64, target model.BroadcastTarget) ([]model.Recipient, error) {
	if model.NormalizeTarget(target) == model.TargetActive {
		return s.ActiveRecipients(ctx, tenantID)
	}
	return s.queryRecipients(ctx, `SELECT `+recipientCols+` FROM recipients WHERE tenant_id = ? ORDER BY id`, tenantID)
}

func (s *sqliteStore) ActiveRecipients(ctx context.Context, tenantID int64) ([]model.Recipient, error) {
	return s.queryRecipients(ctx,
		`SELECT `+recipientCols+` FROM recipients WHERE tenant_id = ? AND LOWER(status) = ? ORDER BY id`,
		tenantID, string(model.RecipientActive),
	)
}

func (s *sqliteStore) queryRecipients(ctx context.Context, q string, args ...any) ([]model.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecipient(sc scanner) (model.Recipient, error) {
	var (
		r                     model.Recipient
		user, first, last     sql.NullString
		lastAdvance, enrolled sql.NullString
		status                string
	)
	if err := sc.Scan(&r.ID, &r.TenantID, &r.ChatID, &user, &first, &last, &r.Cursor, &lastAdvance, &enrolled, &status); err != nil {
		return model.Recipient{}, err
	}
	r.Username, r.FirstName, r.LastName = user.String, first.String, last.String
	r.Status = model.RecipientStatus(strings.ToLower(status))
	if t, ok := parseTime(enrolled.String); ok {
		r.EnrolledAt = t
	}
	if t, ok := parseTime(lastAdvance.String); ok {
		r.LastAdvance = &t
	}
	return r, nil
}

func (s *sqliteStore) Enroll(ctx context.Context, tenantID int64, p Profile, at time.Time) (model.Recipient, EnrollOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Recipient{}, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		outcome EnrollOutcome
		prev    string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM recipients WHERE tenant_id = ? AND chat_id = ?`, tenantID, p.ChatID,
	).Scan(&prev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		outcome = EnrollCreated
		_, err = tx.ExecContext(ctx,
			`INSERT INTO recipients(tenant_id, chat_id, username, first_name, last_name, step_cursor, enrolled_at, status)
			 VALUES(?,?,?,?,?,0,?,?)`,
			tenantID, p.ChatID, nullStr(p.Username), nullStr(p.FirstName), nullStr(p.LastName),
			formatTime(at), string(model.RecipientActive),
		)
	case err == nil:
		outcome = EnrollReturned
		if strings.EqualFold(prev, string(model.RecipientBlocked)) {
			outcome = EnrollReactivated
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE recipients SET username = ?, first_name = ?, last_name = ?, status = ?
			 WHERE tenant_id = ? AND chat_id = ?`,
			nullStr(p.Username), nullStr(p.FirstName), nullStr(p.LastName), string(model.RecipientActive),
			tenantID, p.ChatID,
		)
	}
	if err != nil {
		return model.Recipient{}, 0, err
	}

	r, err := scanRecipient(tx.QueryRowContext(ctx,
		`SELECT `+recipientCols+` FROM recipients WHERE tenant_id = ? AND chat_id = ?`, tenantID, p.ChatID))
	if err != nil {
		return model.Recipient{}, 0, err
	}
	return r, outcome, tx.Commit()
}

func (s *sqliteStore) SetRecipientStatus(ctx context.Context, recipientID int64, st model.RecipientStatus) error {
	return s.execOne(ctx, `UPDATE recipients SET status = ? WHERE id = ?`, string(st), recipientID)
}

func (s *sqliteStore) CommitProgress(ctx context.Context, recipientID int64, cursor int, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recipients SET step_cursor = ?, last_advance = ? WHERE id = ? AND step_cursor < ?`,
		cursor, formatTime(at), recipientID, cursor,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ---- steps ----

func (s *sqliteStore) Step(ctx context.Context, stepID int64) (model.Step, error) {
	return s.loadStep(ctx, `SELECT id, tenant_id, step_index, delay_seconds, kind, body, buttons FROM steps WHERE id = ?`, stepID)
}

func (s *sqliteStore) StepByIndex(ctx context.Context, tenantID int64, index int) (model.Step, error) {
	return s.loadStep(ctx,
		`SELECT id, tenant_id, step_index, delay_seconds, kind, body, buttons FROM steps WHERE tenant_id = ? AND step_index = ?`,
		tenantID, index,
	)
}

func (s *sqliteStore) loadStep(ctx context.Context, q string, args ...any) (model.Step, error) {
	var (
		st      model.Step
		delay   int64
		kind    string
		body    sql.NullString
		buttons sql.NullString
	)
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&st.ID, &st.TenantID, &st.Index, &delay, &kind, &body, &buttons)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Step{}, ErrNotFound
	}
	if err != nil {
		return model.Step{}, err
	}
	st.Delay = time.Duration(delay) * time.Second
	st.Content = model.Content{Kind: model.ContentKind(kind), Text: body.String, StepID: st.ID}
	if strings.TrimSpace(buttons.String) != "" {
		if err := json.Unmarshal([]byte(buttons.String), &st.Content.Buttons); err != nil {
			// A corrupt button column should not make the step undeliverable.
			s.log.Warn("step buttons unreadable", logx.Int64("step_id", st.ID), logx.Err(err))
			st.Content.Buttons = nil
		}
	}
	assets, err := s.assets(ctx,
		`SELECT m.id, m.tenant_id, m.storage_path, m.kind, m.remote_ref
		 FROM media_assets m JOIN step_media sm ON sm.media_id = m.id
		 WHERE sm.step_id = ? ORDER BY sm.position, m.id`, st.ID)
	if err != nil {
		return model.Step{}, err
	}
	st.Content.Assets = assets
	return st, nil
}

func (s *sqliteStore) CreateStep(ctx context.Context, st model.Step) (int64, error) {
	var buttons any
	if len(st.Content.Buttons) > 0 {
		b, err := json.Marshal(st.Content.Buttons)
		if err != nil {
			return 0, err
		}
		buttons = string(b)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO steps(tenant_id, step_index, delay_seconds, kind, body, buttons) VALUES(?,?,?,?,?,?)`,
		st.TenantID, st.Index, int64(st.Delay/time.Second), string(st.Content.Kind), nullStr(st.Content.Text), buttons,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for i, a := range st.Content.Assets {
		if _, err := tx.ExecContext(ctx, `INSERT INTO step_media(step_id, media_id, position) VALUES(?,?,?)`, id, a.ID, i); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

func (s *sqliteStore) DeleteStep(ctx context.Context, stepID int64) error {
	return s.execOne(ctx, `DELETE FROM steps WHERE id = ?`, stepID)
}

// ---- media ----

func (s *sqliteStore) assets(ctx context.Context, q string, args ...any) ([]model.MediaAsset, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.MediaAsset
	for rows.Next() {
		var (
			a    model.MediaAsset
			kind string
			ref  sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &a.StoragePath, &kind, &ref); err != nil {
			return nil, err
		}
		a.Kind = model.MediaKind(kind)
		a.RemoteRef = ref.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CreateAsset(ctx context.Context, a model.MediaAsset) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO media_assets(tenant_id, storage_path, kind, remote_ref) VALUES(?,?,?,?)`,
		a.TenantID, a.StoragePath, string(a.Kind), nullStr(a.RemoteRef),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) AssetRef(ctx context.Context, assetID int64) (string, error) {
	var ref sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT remote_ref FROM media_assets WHERE id = ?`, assetID).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return ref.String, nil
}

func (s *sqliteStore) SetAssetRef(ctx context.Context, assetID int64, ref string) (bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE media_assets SET remote_ref = ? WHERE id = ? AND (remote_ref IS NULL OR remote_ref = '')`,
		ref, assetID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ---- broadcasts ----

func (s *sqliteStore) Broadcast(ctx context.Context, id int64) (model.Broadcast, error) {
	var (
		b                    model.Broadcast
		kind, target, status string
		body                 sql.NullString
		created              string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, kind, body, target, status, sent_count, created_at FROM broadcasts WHERE id = ?`, id,
	).Scan(&b.ID, &b.TenantID, &b.Name, &kind, &body, &target, &status, &b.SentCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Broadcast{}, ErrNotFound
	}
	if err != nil {
		return model.Broadcast{}, err
	}
	b.Content = model.Content{Kind: model.ContentKind(kind), Text: body.String}
	b.Target = model.NormalizeTarget(model.BroadcastTarget(target))
	b.Status = model.BroadcastStatus(strings.ToLower(status))
	if t, ok := parseTime(created); ok {
		b.CreatedAt = t
	}
	assets, err := s.assets(ctx,
		`SELECT m.id, m.tenant_id, m.storage_path, m.kind, m.remote_ref
		 FROM media_assets m JOIN broadcast_media bm ON bm.media_id = m.id
		 WHERE bm.broadcast_id = ? ORDER BY bm.position, m.id`, b.ID)
	if err != nil {
		return model.Broadcast{}, err
	}
	b.Content.Assets = assets
	return b, nil
}

func (s *sqliteStore) CreateBroadcast(ctx context.Context, b model.Broadcast) (int64, error) {
	status := b.Status
	if status == "" {
		status = model.BroadcastDraft
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO broadcasts(tenant_id, name, kind, body, target, status, sent_count, created_at) VALUES(?,?,?,?,?,?,?,?)`,
		b.TenantID, b.Name, string(b.Content.Kind), nullStr(b.Content.Text), string(model.NormalizeTarget(b.Target)),
		string(status), b.SentCount, formatTime(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for i, a := range b.Content.Assets {
		if _, err := tx.ExecContext(ctx, `INSERT INTO broadcast_media(broadcast_id, media_id, position) VALUES(?,?,?)`, id, a.ID, i); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

func (s *sqliteStore) SetBroadcastState(ctx context.Context, id int64, st model.BroadcastStatus, sent int) error {
	return s.execOne(ctx, `UPDATE broadcasts SET status = ?, sent_count = ? WHERE id = ?`, string(st), sent, id)
}

func (s *sqliteStore) SetBroadcastStatus(ctx context.Context, id int64, st model.BroadcastStatus) error {
	return s.execOne(ctx, `UPDATE broadcasts SET status = ? WHERE id = ?`, string(st), id)
}

func (s *sqliteStore) IncrementBroadcastSent(ctx context.Context, id int64) error {
	return s.execOne(ctx, `UPDATE broadcasts SET sent_count = sent_count + 1 WHERE id = ?`, id)
}

// ---- helpers ----

func (s *sqliteStore) execOne(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Layouts accepted when reading timestamps. The CRUD layer may write the
// plain "2006-01-02 15:04:05" form (interpreted as UTC).
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05"}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
