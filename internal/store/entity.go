package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// GetEntity fetches an entity by name.
func (sess *Session) GetEntity(name string) (Entity, error) {
	var e Entity
	e.Name = name
	row := sess.tx.QueryRow("SELECT id, path, attr_id FROM entities WHERE name = ?", name)
	if err := row.Scan(&e.ID, &e.Path, &e.AttrID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entity{}, ErrNotFound
		}
		return Entity{}, fmt.Errorf("get entity %q: %w", name, err)
	}
	return e, nil
}

// EntityTags returns the names of the tags an entity carries.
func (sess *Session) EntityTags(entityID int64) ([]string, error) {
	rows, err := sess.tx.Query(`
		SELECT t.name FROM tags t
		JOIN taggings tg ON tg.tag_id = t.id
		WHERE tg.entity_id = ?
		ORDER BY t.name
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list entity tags: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan entity tag: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// HasTags reports whether entity's tag set is a superset of tags. An empty
// tags slice is trivially satisfied.
func (sess *Session) HasTags(entityID int64, tags []string) (bool, error) {
	if len(tags) == 0 {
		return true, nil
	}
	placeholders := make([]string, len(tags))
	args := make([]interface{}, 0, len(tags)+1)
	args = append(args, entityID)
	for i, t := range tags {
		placeholders[i] = "?"
		args = append(args, t)
	}
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM taggings tg
		JOIN tags t ON t.id = tg.tag_id
		WHERE tg.entity_id = ? AND t.name IN (%s)
	`, strings.Join(placeholders, ","))
	var count int
	if err := sess.tx.QueryRow(query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check entity tags: %w", err)
	}
	return count == len(tags), nil
}

// EntitiesWithTags returns every entity whose tag set is a superset of
// tags. An empty tags slice is trivially satisfied and returns every
// entity, the same as AllEntities.
func (sess *Session) EntitiesWithTags(tags []string) ([]Entity, error) {
	if len(tags) == 0 {
		return sess.allEntities()
	}
	placeholders := make([]string, len(tags))
	args := make([]interface{}, len(tags))
	for i, t := range tags {
		placeholders[i] = "?"
		args[i] = t
	}
	query := fmt.Sprintf(`
		SELECT e.id, e.name, e.path, e.attr_id
		FROM entities e
		WHERE (
			SELECT COUNT(DISTINCT t.name) FROM taggings tg
			JOIN tags t ON t.id = tg.tag_id
			WHERE tg.entity_id = e.id AND t.name IN (%s)
		) = ?
		ORDER BY e.name
	`, strings.Join(placeholders, ","))
	args = append(args, len(tags))

	rows, err := sess.tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities with tags %v: %w", tags, err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Path, &e.AttrID); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AllEntities returns every entity row, used by the reserved file's
// listxattr (the side-channel "list all entities" command, §4.4).
func (sess *Session) AllEntities() ([]Entity, error) {
	return sess.allEntities()
}

func (sess *Session) allEntities() ([]Entity, error) {
	rows, err := sess.tx.Query("SELECT id, name, path, attr_id FROM entities ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list all entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Path, &e.AttrID); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertEntity creates or updates an entity with the given name, path and
// tag set, creating any missing tag rows. This is the side-channel
// setxattr command (§4.4) and is the only place a previously-unknown
// entity comes into existence.
func (sess *Session) UpsertEntity(name, path string, tagNames []string, uid, gid uint32) error {
	if len(tagNames) == 0 {
		return fmt.Errorf("entity %q must have at least one tag", name)
	}

	tagIDs := make([]int64, 0, len(tagNames))
	for _, tn := range tagNames {
		tag, err := sess.GetTag(tn)
		if errors.Is(err, ErrNotFound) {
			tag, err = sess.CreateTag(tn, uid, gid)
		}
		if err != nil {
			return fmt.Errorf("resolve tag %q: %w", tn, err)
		}
		tagIDs = append(tagIDs, tag.ID)
	}

	existing, err := sess.GetEntity(name)
	var entityID int64
	switch {
	case errors.Is(err, ErrNotFound):
		attr := NewEntityAttr(uid, gid)
		res, err := sess.tx.Exec(
			"INSERT INTO attrs (mode, uid, gid, atime, mtime, ctime) VALUES (?, ?, ?, ?, ?, ?)",
			attr.Mode, attr.UID, attr.GID, attr.Atime, attr.Mtime, attr.Ctime,
		)
		if err != nil {
			return fmt.Errorf("insert entity attr: %w", err)
		}
		attrID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read entity attr id: %w", err)
		}
		res, err = sess.tx.Exec("INSERT INTO entities (name, path, attr_id) VALUES (?, ?, ?)", name, path, attrID)
		if err != nil {
			return fmt.Errorf("insert entity %q: %w", name, err)
		}
		entityID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read entity id: %w", err)
		}
	case err != nil:
		return err
	default:
		entityID = existing.ID
		if existing.Path != path {
			if _, err := sess.tx.Exec("UPDATE entities SET path = ? WHERE id = ?", path, entityID); err != nil {
				return fmt.Errorf("update entity path %q: %w", name, err)
			}
		}
		if _, err := sess.tx.Exec("DELETE FROM taggings WHERE entity_id = ?", entityID); err != nil {
			return fmt.Errorf("reset taggings for %q: %w", name, err)
		}
	}

	for _, tagID := range tagIDs {
		if _, err := sess.tx.Exec(
			"INSERT OR IGNORE INTO taggings (entity_id, tag_id) VALUES (?, ?)", entityID, tagID,
		); err != nil {
			return fmt.Errorf("tag entity %q: %w", name, err)
		}
	}
	return nil
}

// AddTags adds tags to an entity's tag set, idempotently. Used by mkdir on
// an existing entity.
func (sess *Session) AddTags(entityID int64, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		if _, err := sess.tx.Exec(
			"INSERT OR IGNORE INTO taggings (entity_id, tag_id) VALUES (?, ?)", entityID, tagID,
		); err != nil {
			return fmt.Errorf("add tag to entity: %w", err)
		}
	}
	return nil
}

// RemoveTags removes the given tags from an entity's tag set, deleting the
// entity if it becomes orphaned.
func (sess *Session) RemoveTags(entity Entity, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		if _, err := sess.tx.Exec(
			"DELETE FROM taggings WHERE entity_id = ? AND tag_id = ?", entity.ID, tagID,
		); err != nil {
			return fmt.Errorf("untag entity %q: %w", entity.Name, err)
		}
	}
	var remaining int
	if err := sess.tx.QueryRow(
		"SELECT COUNT(*) FROM taggings WHERE entity_id = ?", entity.ID,
	).Scan(&remaining); err != nil {
		return fmt.Errorf("count remaining tags: %w", err)
	}
	if remaining == 0 {
		return sess.deleteEntity(entity)
	}
	return nil
}

// DeleteEntity removes an entity row entirely (side-channel removexattr).
func (sess *Session) DeleteEntity(name string) error {
	e, err := sess.GetEntity(name)
	if err != nil {
		return err
	}
	return sess.deleteEntity(e)
}

func (sess *Session) deleteEntity(e Entity) error {
	if _, err := sess.tx.Exec("DELETE FROM taggings WHERE entity_id = ?", e.ID); err != nil {
		return fmt.Errorf("remove taggings for entity %q: %w", e.Name, err)
	}
	if _, err := sess.tx.Exec("DELETE FROM entities WHERE id = ?", e.ID); err != nil {
		return fmt.Errorf("delete entity %q: %w", e.Name, err)
	}
	if _, err := sess.tx.Exec("DELETE FROM attrs WHERE id = ?", e.AttrID); err != nil {
		return fmt.Errorf("delete entity attr %q: %w", e.Name, err)
	}
	return nil
}

// UpdateEntityPath updates an entity's real path in place (used by the
// watcher on a Renamed event). entity remains reachable under the same
// name, as spec'd.
func (sess *Session) UpdateEntityPath(entityID int64, newPath string) error {
	_, err := sess.tx.Exec("UPDATE entities SET path = ? WHERE id = ?", newPath, entityID)
	if err != nil {
		return fmt.Errorf("update entity path: %w", err)
	}
	return nil
}

// DeleteEntityByPath deletes the entity currently registered at path, if
// any (used by the watcher on a Deleted event). Returns ErrNotFound if no
// entity has that path.
func (sess *Session) DeleteEntityByPath(path string) error {
	var e Entity
	e.Path = path
	row := sess.tx.QueryRow("SELECT id, name, attr_id FROM entities WHERE path = ?", path)
	if err := row.Scan(&e.ID, &e.Name, &e.AttrID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("find entity by path %q: %w", path, err)
	}
	return sess.deleteEntity(e)
}

// EntityByPath looks up an entity by its real path (used by the watcher).
func (sess *Session) EntityByPath(path string) (Entity, error) {
	var e Entity
	e.Path = path
	row := sess.tx.QueryRow("SELECT id, name, attr_id FROM entities WHERE path = ?", path)
	if err := row.Scan(&e.ID, &e.Name, &e.AttrID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entity{}, ErrNotFound
		}
		return Entity{}, fmt.Errorf("find entity by path %q: %w", path, err)
	}
	return e, nil
}

// AllEntityPaths returns every tracked entity's id and real path, used by
// the watcher to seed its in-memory index at startup.
func (sess *Session) AllEntityPaths() (map[int64]string, error) {
	rows, err := sess.tx.Query("SELECT id, path FROM entities")
	if err != nil {
		return nil, fmt.Errorf("list entity paths: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, fmt.Errorf("scan entity path: %w", err)
		}
		out[id] = path
	}
	return out, rows.Err()
}

// TagIDsByName resolves tag names to ids, erroring with ErrNotFound if any
// is unknown.
func (sess *Session) TagIDsByName(names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, n := range names {
		t, err := sess.GetTag(n)
		if err != nil {
			return nil, err
		}
		ids = append(ids, t.ID)
	}
	return ids, nil
}
