package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups for a tag or entity that doesn't exist.
var ErrNotFound = errors.New("not found")

// ErrExists is returned when creating a tag that already exists.
var ErrExists = errors.New("already exists")

// GetAttr fetches the Attr row owned by id.
func (sess *Session) GetAttr(id int64) (Attr, error) {
	var a Attr
	a.ID = id
	row := sess.tx.QueryRow("SELECT mode, uid, gid, atime, mtime, ctime FROM attrs WHERE id = ?", id)
	if err := row.Scan(&a.Mode, &a.UID, &a.GID, &a.Atime, &a.Mtime, &a.Ctime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attr{}, ErrNotFound
		}
		return Attr{}, fmt.Errorf("get attr %d: %w", id, err)
	}
	return a, nil
}

// SetAttr overwrites the mutable fields of an Attr row (used by
// chmod/chown/utimens on synthetic nodes).
func (sess *Session) SetAttr(a Attr) error {
	_, err := sess.tx.Exec(
		"UPDATE attrs SET mode = ?, uid = ?, gid = ?, atime = ?, mtime = ?, ctime = ? WHERE id = ?",
		a.Mode, a.UID, a.GID, a.Atime, a.Mtime, a.Ctime, a.ID,
	)
	if err != nil {
		return fmt.Errorf("set attr %d: %w", a.ID, err)
	}
	return nil
}

// RootAttr returns the singleton root Attr (id=1).
func (sess *Session) RootAttr() (Attr, error) {
	return sess.GetAttr(rootAttrID)
}

// EntinfoAttr returns the singleton Attr for the reserved entinfo file.
func (sess *Session) EntinfoAttr() (Attr, error) {
	var attrID int64
	row := sess.tx.QueryRow("SELECT attr_id FROM entinfo_attr WHERE id = 1")
	if err := row.Scan(&attrID); err != nil {
		return Attr{}, fmt.Errorf("get entinfo attr id: %w", err)
	}
	return sess.GetAttr(attrID)
}

// GetTag fetches a tag by name.
func (sess *Session) GetTag(name string) (Tag, error) {
	var t Tag
	t.Name = name
	row := sess.tx.QueryRow("SELECT id, attr_id FROM tags WHERE name = ?", name)
	if err := row.Scan(&t.ID, &t.AttrID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tag{}, ErrNotFound
		}
		return Tag{}, fmt.Errorf("get tag %q: %w", name, err)
	}
	return t, nil
}

// AllTags returns every tag, satisfying "the set of Tag rows equals the
// set of visible top-level entries under /".
func (sess *Session) AllTags() ([]Tag, error) {
	rows, err := sess.tx.Query("SELECT id, name, attr_id FROM tags ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.AttrID); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// CreateTag creates a new tag with its own Attr row. Fails with ErrExists
// if a tag with that name already exists.
func (sess *Session) CreateTag(name string, uid, gid uint32) (Tag, error) {
	if _, err := sess.GetTag(name); err == nil {
		return Tag{}, ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return Tag{}, err
	}

	attr := NewTagAttr(uid, gid)
	res, err := sess.tx.Exec(
		"INSERT INTO attrs (mode, uid, gid, atime, mtime, ctime) VALUES (?, ?, ?, ?, ?, ?)",
		attr.Mode, attr.UID, attr.GID, attr.Atime, attr.Mtime, attr.Ctime,
	)
	if err != nil {
		return Tag{}, fmt.Errorf("insert tag attr: %w", err)
	}
	attrID, err := res.LastInsertId()
	if err != nil {
		return Tag{}, fmt.Errorf("read tag attr id: %w", err)
	}

	res, err = sess.tx.Exec("INSERT INTO tags (name, attr_id) VALUES (?, ?)", name, attrID)
	if err != nil {
		return Tag{}, fmt.Errorf("insert tag %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Tag{}, fmt.Errorf("read tag id: %w", err)
	}
	return Tag{ID: id, Name: name, AttrID: attrID}, nil
}

// DeleteTag removes a tag, cascading per spec: remove this tag from every
// entity, and delete any entity left with zero tags.
func (sess *Session) DeleteTag(name string) error {
	tag, err := sess.GetTag(name)
	if err != nil {
		return err
	}

	orphans, err := sess.entitiesOrphanedByTagRemoval(tag.ID)
	if err != nil {
		return err
	}

	if _, err := sess.tx.Exec("DELETE FROM taggings WHERE tag_id = ?", tag.ID); err != nil {
		return fmt.Errorf("remove taggings for tag %q: %w", name, err)
	}
	if _, err := sess.tx.Exec("DELETE FROM tags WHERE id = ?", tag.ID); err != nil {
		return fmt.Errorf("delete tag %q: %w", name, err)
	}
	if _, err := sess.tx.Exec("DELETE FROM attrs WHERE id = ?", tag.AttrID); err != nil {
		return fmt.Errorf("delete tag attr %q: %w", name, err)
	}

	for _, e := range orphans {
		if err := sess.deleteEntity(e); err != nil {
			return err
		}
	}
	return nil
}

// entitiesOrphanedByTagRemoval returns the entities whose only tag is
// tagID, i.e. those that would become orphaned if it were removed.
func (sess *Session) entitiesOrphanedByTagRemoval(tagID int64) ([]Entity, error) {
	rows, err := sess.tx.Query(`
		SELECT e.id, e.name, e.path, e.attr_id
		FROM entities e
		WHERE e.id IN (SELECT entity_id FROM taggings WHERE tag_id = ?)
		  AND (SELECT COUNT(*) FROM taggings t2 WHERE t2.entity_id = e.id) = 1
	`, tagID)
	if err != nil {
		return nil, fmt.Errorf("find orphaned entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Path, &e.AttrID); err != nil {
			return nil, fmt.Errorf("scan orphaned entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
