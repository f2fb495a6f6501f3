package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
)

type TriggerStat struct {
	World      string `db:"world" json:"world"`
	Trigger    string `db:"trigger_name" json:"trigger"`
	Count      int64  `db:"count" json:"count"`
	Rejections int64  `db:"rejections" json:"rejections"`
	Removals   int64  `db:"removals" json:"removals"`
	UpdatedAt  string `db:"updated_at" json:"updated_at"`
}

type KeyStat struct {
	World      string `db:"world" json:"world"`
	Key        string `db:"limit_key" json:"key"`
	Rejections int64  `db:"rejections" json:"rejections"`
	Evictions  int64  `db:"evictions" json:"evictions"`
	Removals   int64  `db:"removals" json:"removals"`
	Forced     int64  `db:"forced" json:"forced"`
	UpdatedAt  string `db:"updated_at" json:"updated_at"`
}

type ConfigVersion struct {
	LoadedAt string `db:"loaded_at" json:"loaded_at"`
	Version  int64  `db:"version" json:"version"`
	Path     string `db:"path" json:"path"`
	Digest   string `db:"digest" json:"digest"`
	Warnings int    `db:"warnings" json:"warnings"`
}

// Reader queries an index written by SQLiteIndex.
type Reader struct {
	db *sqlx.DB
}

// ErrNoIndex is returned by OpenReader when nothing has been written at path.
var ErrNoIndex = eris.New("no usage index")

// OpenReader opens an existing index. It never creates one.
func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrNoIndex, "no usage index at %s", path)
		}
		return nil, eris.Wrapf(err, "open %s", path)
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, eris.Wrapf(err, "open %s", path)
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

// TriggerStats returns per-trigger totals; world "" means every world.
func (r *Reader) TriggerStats(ctx context.Context, world string) ([]TriggerStat, error) {
	var out []TriggerStat
	err := r.db.SelectContext(ctx, &out,
		`SELECT world,trigger_name,count,rejections,removals,updated_at FROM evaluations
		 WHERE (?='' OR world=?) ORDER BY world, trigger_name`, world, world)
	return out, eris.Wrap(err, "query evaluations")
}

// KeyStats returns per-key totals ordered by removals, most first.
func (r *Reader) KeyStats(ctx context.Context, world string, limit int) ([]KeyStat, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []KeyStat
	err := r.db.SelectContext(ctx, &out,
		`SELECT world,limit_key,rejections,evictions,removals,forced,updated_at FROM key_stats
		 WHERE (?='' OR world=?) ORDER BY removals+rejections DESC, world, limit_key LIMIT ?`, world, world, limit)
	return out, eris.Wrap(err, "query key_stats")
}

func (r *Reader) LatestConfig(ctx context.Context) (ConfigVersion, bool, error) {
	var cv ConfigVersion
	err := r.db.GetContext(ctx, &cv,
		`SELECT loaded_at,version,path,digest,warnings FROM config_versions ORDER BY loaded_at DESC, version DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return cv, false, nil
	}
	if err != nil {
		return cv, false, eris.Wrap(err, "query config_versions")
	}
	return cv, true, nil
}
