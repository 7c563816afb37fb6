package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "tagdir.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenBootstrapsSingletonAttrs(t *testing.T) {
	s := openTestStore(t)

	err := s.WithSession(func(sess *Session) error {
		root, err := sess.RootAttr()
		require.NoError(t, err)
		assert.Equal(t, int64(rootAttrID), root.ID)
		assert.True(t, int64(root.ID) > 0)

		_, err = sess.EntinfoAttr()
		require.NoError(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tagdir.db")

	s1, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	err = s2.WithSession(func(sess *Session) error {
		_, err := sess.RootAttr()
		return err
	})
	require.NoError(t, err)
}

func TestWithSessionRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	sentinel := assert.AnError

	err := s.WithSession(func(sess *Session) error {
		_, cerr := sess.CreateTag("work", 1, 1)
		require.NoError(t, cerr)
		return sentinel
	})
	require.Equal(t, sentinel, err)

	err = s.WithSession(func(sess *Session) error {
		_, err := sess.GetTag("work")
		return err
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTagDuplicateFails(t *testing.T) {
	s := openTestStore(t)

	err := s.WithSession(func(sess *Session) error {
		_, err := sess.CreateTag("work", 1, 1)
		require.NoError(t, err)
		_, err = sess.CreateTag("work", 1, 1)
		return err
	})
	require.ErrorIs(t, err, ErrExists)
}

func TestTagEntityLifecycle(t *testing.T) {
	s := openTestStore(t)

	var entityID int64
	err := s.WithSession(func(sess *Session) error {
		require.NoError(t, sess.UpsertEntity("report", "/abs/report.txt", []string{"work", "urgent"}, 1, 1))
		e, err := sess.GetEntity("report")
		if err != nil {
			return err
		}
		entityID = e.ID

		tags, err := sess.EntityTags(entityID)
		if err != nil {
			return err
		}
		assert.ElementsMatch(t, []string{"work", "urgent"}, tags)

		ok, err := sess.HasTags(entityID, []string{"work"})
		if err != nil {
			return err
		}
		assert.True(t, ok)

		ok, err = sess.HasTags(entityID, []string{"work", "nonexistent"})
		if err != nil {
			return err
		}
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	// Dropping "work" leaves the entity visible under "urgent" alone.
	err = s.WithSession(func(sess *Session) error {
		e, err := sess.GetEntity("report")
		if err != nil {
			return err
		}
		ids, err := sess.TagIDsByName([]string{"work"})
		if err != nil {
			return err
		}
		return sess.RemoveTags(e, ids)
	})
	require.NoError(t, err)

	err = s.WithSession(func(sess *Session) error {
		entities, err := sess.EntitiesWithTags([]string{"urgent"})
		if err != nil {
			return err
		}
		require.Len(t, entities, 1)
		assert.Equal(t, "report", entities[0].Name)
		return nil
	})
	require.NoError(t, err)

	// Dropping the last tag deletes the entity outright.
	err = s.WithSession(func(sess *Session) error {
		e, err := sess.GetEntity("report")
		if err != nil {
			return err
		}
		ids, err := sess.TagIDsByName([]string{"urgent"})
		if err != nil {
			return err
		}
		return sess.RemoveTags(e, ids)
	})
	require.NoError(t, err)

	err = s.WithSession(func(sess *Session) error {
		_, err := sess.GetEntity("report")
		return err
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteTagCascadesOrphanedEntities(t *testing.T) {
	s := openTestStore(t)

	err := s.WithSession(func(sess *Session) error {
		require.NoError(t, sess.UpsertEntity("lonely", "/abs/lonely", []string{"solo"}, 1, 1))
		require.NoError(t, sess.UpsertEntity("shared", "/abs/shared", []string{"solo", "other"}, 1, 1))
		return nil
	})
	require.NoError(t, err)

	err = s.WithSession(func(sess *Session) error {
		return sess.DeleteTag("solo")
	})
	require.NoError(t, err)

	err = s.WithSession(func(sess *Session) error {
		_, err := sess.GetEntity("lonely")
		if !assert.ErrorIs(t, err, ErrNotFound) {
			return err
		}
		shared, err := sess.GetEntity("shared")
		if err != nil {
			return err
		}
		tags, err := sess.EntityTags(shared.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, []string{"other"}, tags)
		return nil
	})
	require.NoError(t, err)
}

func TestUpsertEntityUpdatesPathAndResetsTags(t *testing.T) {
	s := openTestStore(t)

	err := s.WithSession(func(sess *Session) error {
		return sess.UpsertEntity("report", "/abs/report.txt", []string{"work"}, 1, 1)
	})
	require.NoError(t, err)

	err = s.WithSession(func(sess *Session) error {
		return sess.UpsertEntity("report", "/abs/report-v2.txt", []string{"urgent"}, 1, 1)
	})
	require.NoError(t, err)

	err = s.WithSession(func(sess *Session) error {
		e, err := sess.GetEntity("report")
		if err != nil {
			return err
		}
		assert.Equal(t, "/abs/report-v2.txt", e.Path)
		tags, err := sess.EntityTags(e.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, []string{"urgent"}, tags)
		return nil
	})
	require.NoError(t, err)
}

func TestWatcherHelpers(t *testing.T) {
	s := openTestStore(t)

	err := s.WithSession(func(sess *Session) error {
		return sess.UpsertEntity("report", "/abs/report.txt", []string{"work"}, 1, 1)
	})
	require.NoError(t, err)

	err = s.WithSession(func(sess *Session) error {
		paths, err := sess.AllEntityPaths()
		if err != nil {
			return err
		}
		require.Len(t, paths, 1)

		e, err := sess.EntityByPath("/abs/report.txt")
		if err != nil {
			return err
		}
		if err := sess.UpdateEntityPath(e.ID, "/abs/renamed.txt"); err != nil {
			return err
		}
		_, err = sess.EntityByPath("/abs/report.txt")
		assert.ErrorIs(t, err, ErrNotFound)

		moved, err := sess.EntityByPath("/abs/renamed.txt")
		if err != nil {
			return err
		}
		assert.Equal(t, e.ID, moved.ID)

		if err := sess.DeleteEntityByPath("/abs/renamed.txt"); err != nil {
			return err
		}
		err = sess.DeleteEntityByPath("/abs/renamed.txt")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}
