package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"spawnlimiter.ai/internal/sim/limiter"
	"spawnlimiter.ai/internal/sim/tuning"
)

// SQLiteIndex keeps aggregated limiter usage counters. Writes are queued and
// applied by a single goroutine so the caller never blocks on disk.
type SQLiteIndex struct {
	db  *sql.DB
	log zerolog.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// chMu orders sends on ch against its close.
	chMu    sync.RWMutex
	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqOutcome reqKind = iota + 1
	reqConfig
)

type req struct {
	kind reqKind

	outcome outcomeRow
	config  configRow
}

type outcomeRow struct {
	World     string
	Trigger   string
	Rejected  bool
	RejectKey string
	Removed   int
	Evictions []limiter.Eviction
	At        string
}

type configRow struct {
	Version  uint64
	Path     string
	Digest   string
	JSON     string
	Warnings int
	LoadedAt string
}

func OpenSQLite(path string, logger zerolog.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, eris.New("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrap(err, "create index dir")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "open index")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "index pragmas")
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "index schema")
	}

	s := &SQLiteIndex{
		db:  db,
		log: logger.With().Str("component", "indexdb").Logger(),
		ch:  make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS evaluations (
			world TEXT NOT NULL,
			trigger_name TEXT NOT NULL,
			count INTEGER NOT NULL,
			rejections INTEGER NOT NULL,
			removals INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (world, trigger_name)
		);`,
		`CREATE TABLE IF NOT EXISTS key_stats (
			world TEXT NOT NULL,
			limit_key TEXT NOT NULL,
			rejections INTEGER NOT NULL,
			evictions INTEGER NOT NULL,
			removals INTEGER NOT NULL,
			forced INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (world, limit_key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_key_stats_key ON key_stats(limit_key);`,
		`CREATE TABLE IF NOT EXISTS config_versions (
			loaded_at TEXT NOT NULL,
			version INTEGER NOT NULL,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			warnings INTEGER NOT NULL,
			json TEXT NOT NULL,
			PRIMARY KEY (loaded_at, version)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.chMu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.chMu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts records discarded because the writer fell behind.
func (s *SQLiteIndex) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

func (s *SQLiteIndex) enqueue(r req) {
	s.chMu.RLock()
	defer s.chMu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

// Record implements limiter.Recorder.
func (s *SQLiteIndex) Record(o limiter.Outcome) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqOutcome, outcome: outcomeRow{
		World:     o.World,
		Trigger:   string(o.Trigger),
		Rejected:  o.Decision.Reject,
		RejectKey: o.Decision.RejectKey,
		Removed:   o.Applied,
		Evictions: o.Decision.Evictions,
		At:        time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

// RecordConfig stores the effective configuration each time one is loaded.
func (s *SQLiteIndex) RecordConfig(snap *tuning.Snapshot) {
	if s == nil || s.closed.Load() || snap == nil {
		return
	}
	b, _ := json.Marshal(snap.Tuning)
	sum := sha256.Sum256(b)
	s.enqueue(req{kind: reqConfig, config: configRow{
		Version:  snap.Version,
		Path:     snap.Path,
		Digest:   hex.EncodeToString(sum[:]),
		JSON:     string(b),
		Warnings: len(snap.Warnings),
		LoadedAt: snap.LoadedAt.Format(time.RFC3339Nano),
	}})
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsertEval, _ := s.db.Prepare(`INSERT INTO evaluations(world,trigger_name,count,rejections,removals,updated_at) VALUES(?,?,1,?,?,?)
		ON CONFLICT(world,trigger_name) DO UPDATE SET
			count=count+1,
			rejections=rejections+excluded.rejections,
			removals=removals+excluded.removals,
			updated_at=excluded.updated_at`)
	upsertKey, _ := s.db.Prepare(`INSERT INTO key_stats(world,limit_key,rejections,evictions,removals,forced,updated_at) VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(world,limit_key) DO UPDATE SET
			rejections=rejections+excluded.rejections,
			evictions=evictions+excluded.evictions,
			removals=removals+excluded.removals,
			forced=forced+excluded.forced,
			updated_at=excluded.updated_at`)
	insertConfig, _ := s.db.Prepare(`INSERT OR REPLACE INTO config_versions(loaded_at,version,path,digest,warnings,json) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertEval, upsertKey, insertConfig} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 1000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.Warn().Err(err).Msg("begin tx")
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.Warn().Err(err).Msg("commit")
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.log.Warn().Err(err).Msg("index write failed; batch rolled back")
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqOutcome:
			o := r.outcome
			if upsertEval == nil || upsertKey == nil {
				continue
			}
			if _, err := tx.Stmt(upsertEval).Exec(o.World, o.Trigger, boolInt(o.Rejected), o.Removed, o.At); err != nil {
				rollback(err)
				continue
			}
			opCount++
			if o.Rejected && o.RejectKey != "" {
				if _, err := tx.Stmt(upsertKey).Exec(o.World, o.RejectKey, 1, 0, 0, 0, o.At); err != nil {
					rollback(err)
					continue
				}
				opCount++
			}
			for _, ev := range o.Evictions {
				if _, err := tx.Stmt(upsertKey).Exec(o.World, ev.Key, 0, 1, ev.Removed, ev.Forced, o.At); err != nil {
					rollback(err)
					break
				}
				opCount++
			}

		case reqConfig:
			c := r.config
			if insertConfig == nil {
				continue
			}
			if _, err := tx.Stmt(insertConfig).Exec(c.LoadedAt, int64(c.Version), c.Path, c.Digest, c.Warnings, c.JSON); err != nil {
				rollback(err)
				continue
			}
			opCount++
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
