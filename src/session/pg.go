package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"github.com/gorilla/securecookie"
)

const pgValuesName = "webhelp-session-values"

// Record is a row of the sessions table.
type Record struct {
	tableName struct{} `pg:"sessions"`

	ID        string    `pg:"id,pk"`
	Data      string    `pg:"data,notnull"`
	ExpiresAt time.Time `pg:"expires_at,notnull"`
}

// PGBackend keeps session values in postgres so that several server
// processes can share sessions.
//
// Values are serialized with securecookie, so a row edited outside the
// server fails to decode instead of granting access.
type PGBackend struct {
	db         *pg.DB
	codecs     []securecookie.Codec
	defaultTTL time.Duration
}

var _ Backend = (*PGBackend)(nil)

// NewPGBackend returns a PGBackend. keyPairs sign the stored values.
func NewPGBackend(db *pg.DB, defaultTTL time.Duration, keyPairs ...[]byte) *PGBackend {
	codecs := securecookie.CodecsFromPairs(keyPairs...)
	for _, codec := range codecs {
		if sc, ok := codec.(*securecookie.SecureCookie); ok {
			// Rows are not bound by cookie size limits, and expires_at
			// already bounds their lifetime.
			sc.MaxLength(0)
			sc.MaxAge(0)
		}
	}

	return &PGBackend{db: db, codecs: codecs, defaultTTL: defaultTTL}
}

// CreateSchema creates the sessions table if it does not exist.
func (b *PGBackend) CreateSchema(ctx context.Context) error {
	return b.db.ModelContext(ctx, (*Record)(nil)).CreateTable(&orm.CreateTableOptions{
		IfNotExists: true,
	})
}

func (b *PGBackend) Load(ctx context.Context, id string) (Values, error) {
	rec := new(Record)
	err := b.db.ModelContext(ctx, rec).
		Where("id = ?", id).
		Where("expires_at > ?", time.Now()).
		Select()
	if err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	values := make(Values)
	if err := securecookie.DecodeMulti(pgValuesName, rec.Data, &values, b.codecs...); err != nil {
		return nil, fmt.Errorf("failed to decode stored session %s: %w", id, err)
	}
	return values, nil
}

// Save upserts the values under id. A ttl of zero uses the backend default.
func (b *PGBackend) Save(ctx context.Context, id string, values Values, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = b.defaultTTL
	}

	data, err := securecookie.EncodeMulti(pgValuesName, values, b.codecs...)
	if err != nil {
		return fmt.Errorf("failed to encode session values: %w", err)
	}

	rec := &Record{
		ID:        id,
		Data:      data,
		ExpiresAt: time.Now().Add(ttl),
	}

	_, err = b.db.ModelContext(ctx, rec).
		OnConflict("(id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("expires_at = EXCLUDED.expires_at").
		Insert()
	return err
}

func (b *PGBackend) Delete(ctx context.Context, id string) error {
	_, err := b.db.ModelContext(ctx, (*Record)(nil)).Where("id = ?", id).Delete()
	return err
}

// DeleteExpired removes rows past their expiry and returns how many were
// removed.
func (b *PGBackend) DeleteExpired(ctx context.Context) (int, error) {
	res, err := b.db.ModelContext(ctx, (*Record)(nil)).Where("expires_at <= ?", time.Now()).Delete()
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
