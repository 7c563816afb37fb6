// Package store is the persistence layer for tagdir: typed rows for Attr,
// Tag, Entity and the tag-entity membership relation, behind a
// transactional session handle.
//
// Grounded on rclone's backend/sqlite, which drives SQLite the same plain
// way: a schema constant applied with CREATE TABLE IF NOT EXISTS, then
// parameterized Exec/Query calls through database/sql. No ORM.
package store

import (
	"database/sql"
	"fmt"
	"os/user"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tagdir-project/tagdir/internal/tlog"
)

// EntinfoName is the basename of the reserved side-channel file.
const EntinfoName = ".tagdir_entinfo"

// EntinfoPath is its absolute virtual path.
const EntinfoPath = "/" + EntinfoName

const schema = `
CREATE TABLE IF NOT EXISTS attrs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	mode INTEGER NOT NULL,
	uid INTEGER NOT NULL,
	gid INTEGER NOT NULL,
	atime INTEGER NOT NULL,
	mtime INTEGER NOT NULL,
	ctime INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	attr_id INTEGER NOT NULL REFERENCES attrs(id)
);

CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	path TEXT UNIQUE NOT NULL,
	attr_id INTEGER NOT NULL REFERENCES attrs(id)
);

CREATE TABLE IF NOT EXISTS taggings (
	entity_id INTEGER NOT NULL REFERENCES entities(id),
	tag_id INTEGER NOT NULL REFERENCES tags(id),
	PRIMARY KEY (entity_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_taggings_tag ON taggings(tag_id);
CREATE INDEX IF NOT EXISTS idx_taggings_entity ON taggings(entity_id);
`

// rootAttrID is the id of the singleton root Attr row (spec: "root Attr
// row exists and has id = 1").
const rootAttrID = 1

// Store owns the database handle. One Store per mount.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at dbURL and
// ensures its schema and singleton rows exist.
func Open(dbURL string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver + our own tx serialization
	s := &Store{db: db}
	if err := s.bootstrap(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func currentOwner() (uid, gid uint32) {
	u, err := user.Current()
	if err != nil {
		return 0, 0
	}
	id, _ := strconv.Atoi(u.Uid)
	gd, _ := strconv.Atoi(u.Gid)
	return uint32(id), uint32(gd)
}

// bootstrap creates the schema on first mount and inserts the singleton
// root attr row (id=1) and the reserved entinfo file's attr if absent.
func (s *Store) bootstrap() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	uid, gid := currentOwner()

	var count int
	row := s.db.QueryRow("SELECT COUNT(*) FROM attrs WHERE id = ?", rootAttrID)
	if err := row.Scan(&count); err != nil {
		return fmt.Errorf("failed to check root attr: %w", err)
	}
	if count == 0 {
		root := newAttr(dirMode, uid, gid)
		if _, err := s.db.Exec(
			"INSERT INTO attrs (id, mode, uid, gid, atime, mtime, ctime) VALUES (?, ?, ?, ?, ?, ?, ?)",
			rootAttrID, root.Mode, root.UID, root.GID, root.Atime, root.Mtime, root.Ctime,
		); err != nil {
			return fmt.Errorf("failed to insert root attr: %w", err)
		}
		tlog.Logf("store", "bootstrapped root attr")
	}

	var entinfoCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM entinfo_attr").Scan(&entinfoCount); err != nil {
		// table doesn't exist yet, create it lazily: the entinfo attr is
		// small enough to live in its own one-row table rather than be
		// threaded through the Entity uniqueness constraints.
		if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS entinfo_attr (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			attr_id INTEGER NOT NULL REFERENCES attrs(id)
		)`); err != nil {
			return fmt.Errorf("failed to create entinfo_attr table: %w", err)
		}
		entinfoCount = 0
	}
	if entinfoCount == 0 {
		fileAttr := newAttr(fileMode, uid, gid)
		res, err := s.db.Exec(
			"INSERT INTO attrs (mode, uid, gid, atime, mtime, ctime) VALUES (?, ?, ?, ?, ?, ?)",
			fileAttr.Mode, fileAttr.UID, fileAttr.GID, fileAttr.Atime, fileAttr.Mtime, fileAttr.Ctime,
		)
		if err != nil {
			return fmt.Errorf("failed to insert entinfo attr: %w", err)
		}
		attrID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read entinfo attr id: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO entinfo_attr (id, attr_id) VALUES (1, ?)", attrID); err != nil {
			return fmt.Errorf("failed to link entinfo attr: %w", err)
		}
		tlog.Logf("store", "bootstrapped entinfo attr")
	}

	return nil
}

// Session is a single short-lived transaction, minted fresh for every
// handler invocation (see internal/tagfs). It is not shared across
// goroutines.
type Session struct {
	tx *sql.Tx
}

// WithSession begins a transaction, runs fn, and commits on success or
// rolls back on error. Mutating handlers commit before returning success;
// on any store error they roll back and the caller maps it to an errno
// (ENOENT for ErrNotFound, EEXIST for ErrExists, EIO otherwise).
func (s *Store) WithSession(fn func(*Session) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	sess := &Session{tx: tx}
	if err := fn(sess); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			tlog.Errorf("store", "rollback failed: %v (original error: %v)", rerr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
