package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cubeworks/cuberepo/internal/cube"
	cuberr "github.com/cubeworks/cuberepo/internal/errors"
	"github.com/cubeworks/cuberepo/pkg/models"
)

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nextRevision(last *row) int64 {
	if last == nil {
		return 1
	}
	if last.Revision < 0 {
		return -last.Revision + 1
	}
	return last.Revision + 1
}

func (s *Store) insert(ctx context.Context, q querier, appID models.AppID, name string, revision int64, sha1, headSHA1 string, changed bool, cubeJSON *string, notes, testData, user string) (*row, error) {
	r := &row{
		ID:        uuid.NewString(),
		Tenant:    appID.Tenant,
		App:       appID.App,
		Version:   appID.Version,
		Status:    string(appID.Status),
		Branch:    appID.Branch,
		Name:      name,
		Revision:  revision,
		SHA1:      sha1,
		HeadSHA1:  headSHA1,
		Changed:   changed,
		Notes:     notes,
		TestData:  testData,
		CubeJSON:  cubeJSON,
		CreatedAt: time.Now().UTC(),
		CreatedBy: user,
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO cube_revisions
			(id, tenant, app, version, status, branch, name, name_lc, revision,
			 sha1, head_sha1, changed, notes, test_data, cube_json, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, lower($7), $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.ID, r.Tenant, r.App, r.Version, r.Status, r.Branch, r.Name, r.Revision,
		r.SHA1, r.HeadSHA1, r.Changed, r.Notes, r.TestData, r.CubeJSON, r.CreatedAt, r.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to insert cube revision: %w", err)
	}
	return r, nil
}

// UpdateCube persists a new revision unless the content is unchanged
func (s *Store) UpdateCube(ctx context.Context, appID models.AppID, c cube.Cube, user string) error {
	defer s.observe(time.Now())
	data, err := s.codec.Marshal(c)
	if err != nil {
		return err
	}
	blob := string(data)
	sha := c.SHA1()
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		last, err := s.latest(ctx, tx, appID, c.Name())
		if err != nil {
			return err
		}
		var headSHA1 string
		if last != nil {
			if !last.isTombstone() && last.SHA1 == sha {
				return nil
			}
			headSHA1 = last.HeadSHA1
		}
		_, err = s.insert(ctx, tx, appID, c.Name(), nextRevision(last), sha, headSHA1, !appID.IsHead(), &blob, "", "", user)
		return err
	})
}

// DuplicateCube copies the live revision of one cube under a new identity
func (s *Store) DuplicateCube(ctx context.Context, oldAppID models.AppID, oldName string, newAppID models.AppID, newName, user string) error {
	defer s.observe(time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		src, err := s.latest(ctx, tx, oldAppID, oldName)
		if err != nil {
			return err
		}
		if src == nil || src.isTombstone() {
			return cuberr.NotFoundf("cube %s does not exist in %s", oldName, oldAppID)
		}
		dst, err := s.latest(ctx, tx, newAppID, newName)
		if err != nil {
			return err
		}
		if dst != nil && !dst.isTombstone() {
			return cuberr.Inputf("cube %s already exists in %s", newName, newAppID)
		}
		c, err := s.decode(src, oldAppID)
		if err != nil {
			return err
		}
		renamed := c.Duplicate(newName)
		data, err := s.codec.Marshal(renamed)
		if err != nil {
			return err
		}
		blob := string(data)
		_, err = s.insert(ctx, tx, newAppID, newName, nextRevision(dst), renamed.SHA1(), "", !newAppID.IsHead(), &blob, "", "", user)
		return err
	})
}

// RenameCube moves a cube to a new name, tombstoning the old one
func (s *Store) RenameCube(ctx context.Context, appID models.AppID, oldName, newName, user string) error {
	defer s.observe(time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		src, err := s.latest(ctx, tx, appID, oldName)
		if err != nil {
			return err
		}
		if src == nil || src.isTombstone() {
			return cuberr.NotFoundf("cube %s does not exist in %s", oldName, appID)
		}
		dst, err := s.latest(ctx, tx, appID, newName)
		if err != nil {
			return err
		}
		if dst != nil && !dst.isTombstone() {
			return cuberr.Inputf("cube %s already exists in %s", newName, appID)
		}
		c, err := s.decode(src, appID)
		if err != nil {
			return err
		}
		renamed := c.Duplicate(newName)
		data, err := s.codec.Marshal(renamed)
		if err != nil {
			return err
		}
		blob := string(data)
		if _, err := s.insert(ctx, tx, appID, oldName, -nextRevision(src), src.SHA1, src.HeadSHA1, !appID.IsHead(), src.CubeJSON, "", "", user); err != nil {
			return err
		}
		_, err = s.insert(ctx, tx, appID, newName, nextRevision(dst), renamed.SHA1(), "", !appID.IsHead(), &blob, "", "", user)
		return err
	})
}

// DeleteCubes tombstones each named cube; allowHard removes history outright
func (s *Store) DeleteCubes(ctx context.Context, appID models.AppID, names []string, allowHard bool, user string) error {
	defer s.observe(time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, name := range names {
			last, err := s.latest(ctx, tx, appID, name)
			if err != nil {
				return err
			}
			if last == nil || last.isTombstone() {
				return cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
			}
			if allowHard {
				_, err = tx.ExecContext(ctx, `
					DELETE FROM cube_revisions WHERE `+identityWhere+` AND name_lc = lower($6)`,
					appID.Tenant, appID.App, appID.Version, string(appID.Status), appID.Branch, name)
				if err != nil {
					return fmt.Errorf("failed to hard delete cube: %w", err)
				}
				continue
			}
			if _, err := s.insert(ctx, tx, appID, last.Name, -nextRevision(last), last.SHA1, last.HeadSHA1, !appID.IsHead(), last.CubeJSON, "", "", user); err != nil {
				return err
			}
		}
		return nil
	})
}

// RestoreCubes re-inserts a positive revision for each tombstoned cube
func (s *Store) RestoreCubes(ctx context.Context, appID models.AppID, names []string, user string) error {
	defer s.observe(time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, name := range names {
			last, err := s.latest(ctx, tx, appID, name)
			if err != nil {
				return err
			}
			if last == nil {
				return cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
			}
			if !last.isTombstone() {
				return cuberr.Inputf("cube %s is not deleted in %s", name, appID)
			}
			if _, err := s.insert(ctx, tx, appID, last.Name, nextRevision(last), last.SHA1, last.HeadSHA1, !appID.IsHead(), last.CubeJSON, "", "", user); err != nil {
				return err
			}
		}
		return nil
	})
}

// RollbackCubes reverts each branch cube to the head state it diverged from
func (s *Store) RollbackCubes(ctx context.Context, appID models.AppID, names []string, user string) error {
	defer s.observe(time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, name := range names {
			last, err := s.latest(ctx, tx, appID, name)
			if err != nil {
				return err
			}
			if last == nil {
				return cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
			}
			if last.HeadSHA1 == "" {
				_, err = tx.ExecContext(ctx, `
					DELETE FROM cube_revisions WHERE `+identityWhere+` AND name_lc = lower($6)`,
					appID.Tenant, appID.App, appID.Version, string(appID.Status), appID.Branch, name)
				if err != nil {
					return fmt.Errorf("failed to remove uncommitted cube: %w", err)
				}
				continue
			}
			base, err := s.findBySHA1(ctx, tx, appID, name, last.HeadSHA1)
			if err != nil {
				return err
			}
			if base == nil {
				return cuberr.NotFoundf("no revision of %s with sha1 %s to roll back to", name, last.HeadSHA1)
			}
			if _, err := s.insert(ctx, tx, appID, last.Name, nextRevision(last), base.SHA1, last.HeadSHA1, false, base.CubeJSON, "", "", user); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) findBySHA1(ctx context.Context, q querier, appID models.AppID, name, sha1 string) (*row, error) {
	for _, candidate := range []models.AppID{appID, appID.AsHead()} {
		var rows []row
		err := q.SelectContext(ctx, &rows, `
			SELECT * FROM cube_revisions
			WHERE `+identityWhere+` AND name_lc = lower($6) AND sha1 = $7
			ORDER BY abs(revision) DESC LIMIT 1`,
			candidate.Tenant, candidate.App, candidate.Version, string(candidate.Status), candidate.Branch, name, sha1)
		if err != nil {
			return nil, fmt.Errorf("failed to find revision by sha1: %w", err)
		}
		if len(rows) > 0 {
			return &rows[0], nil
		}
	}
	return nil, nil
}

// writeHead appends a head revision unless the head already carries the state
func (s *Store) writeHead(ctx context.Context, tx *sqlx.Tx, head models.AppID, name string, sha1 string, tombstone bool, cubeJSON *string, user string) (*row, error) {
	last, err := s.latest(ctx, tx, head, name)
	if err != nil {
		return nil, err
	}
	if last != nil && last.SHA1 == sha1 && last.isTombstone() == tombstone {
		return last, nil
	}
	rev := nextRevision(last)
	if tombstone {
		rev = -rev
	}
	return s.insert(ctx, tx, head, name, rev, sha1, "", false, cubeJSON, "", "", user)
}

// CommitCubes pushes the identified branch revisions to the head
func (s *Store) CommitCubes(ctx context.Context, appID models.AppID, ids []string, user string) ([]models.CubeInfo, error) {
	defer s.observe(time.Now())
	var out []models.CubeInfo
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		head := appID.AsHead()
		for _, id := range ids {
			rec, err := s.byID(ctx, tx, id)
			if err != nil {
				return err
			}
			committed, err := s.writeHead(ctx, tx, head, rec.Name, rec.SHA1, rec.isTombstone(), rec.CubeJSON, user)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE cube_revisions SET changed = FALSE, head_sha1 = sha1 WHERE id = $1`, rec.ID); err != nil {
				return fmt.Errorf("failed to fast-forward branch record: %w", err)
			}
			out = append(out, committed.info(models.SearchOptions{}))
		}
		return nil
	})
	return out, err
}

// CommitMergedCubeToHead pushes a merged cube to the head and fast-forwards
// the branch to the merged state
func (s *Store) CommitMergedCubeToHead(ctx context.Context, appID models.AppID, c cube.Cube, user string) (*models.CubeInfo, error) {
	defer s.observe(time.Now())
	data, err := s.codec.Marshal(c)
	if err != nil {
		return nil, err
	}
	blob := string(data)
	sha := c.SHA1()
	var out *models.CubeInfo
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		committed, err := s.writeHead(ctx, tx, appID.AsHead(), c.Name(), sha, false, &blob, user)
		if err != nil {
			return err
		}
		last, err := s.latest(ctx, tx, appID, c.Name())
		if err != nil {
			return err
		}
		if _, err := s.insert(ctx, tx, appID, c.Name(), nextRevision(last), sha, sha, false, &blob, "", "", user); err != nil {
			return err
		}
		info := committed.info(models.SearchOptions{})
		out = &info
		return nil
	})
	return out, err
}

// CommitMergedCubeToBranch stores a merged cube as a new branch change based
// on the given head fingerprint
func (s *Store) CommitMergedCubeToBranch(ctx context.Context, appID models.AppID, c cube.Cube, headSHA1, user string) (*models.CubeInfo, error) {
	defer s.observe(time.Now())
	data, err := s.codec.Marshal(c)
	if err != nil {
		return nil, err
	}
	blob := string(data)
	var out *models.CubeInfo
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		last, err := s.latest(ctx, tx, appID, c.Name())
		if err != nil {
			return err
		}
		rec, err := s.insert(ctx, tx, appID, c.Name(), nextRevision(last), c.SHA1(), headSHA1, true, &blob, "", "", user)
		if err != nil {
			return err
		}
		info := rec.info(models.SearchOptions{})
		out = &info
		return nil
	})
	return out, err
}

// PullToBranch copies the identified head revisions into the branch. An
// unchanged branch record fast-forwards in place; only branches with no
// record of the name grow a new revision.
func (s *Store) PullToBranch(ctx context.Context, appID models.AppID, ids []string, user string) ([]models.CubeInfo, error) {
	defer s.observe(time.Now())
	var out []models.CubeInfo
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, id := range ids {
			rec, err := s.byID(ctx, tx, id)
			if err != nil {
				return err
			}
			last, err := s.latest(ctx, tx, appID, rec.Name)
			if err != nil {
				return err
			}
			if last != nil && !last.Changed {
				rev := last.Revision
				if rec.isTombstone() != last.isTombstone() {
					rev = -rev
				}
				if _, err := tx.ExecContext(ctx, `
					UPDATE cube_revisions
					SET sha1 = $1, head_sha1 = $1, cube_json = $2, revision = $3, changed = FALSE
					WHERE id = $4`, rec.SHA1, rec.CubeJSON, rev, last.ID); err != nil {
					return fmt.Errorf("failed to fast-forward branch record: %w", err)
				}
				last.SHA1 = rec.SHA1
				last.HeadSHA1 = rec.SHA1
				last.Revision = rev
				out = append(out, last.info(models.SearchOptions{}))
				continue
			}
			rev := nextRevision(last)
			if rec.isTombstone() {
				rev = -rev
			}
			pulled, err := s.insert(ctx, tx, appID, rec.Name, rev, rec.SHA1, rec.SHA1, false, rec.CubeJSON, "", "", user)
			if err != nil {
				return err
			}
			out = append(out, pulled.info(models.SearchOptions{}))
		}
		return nil
	})
	return out, err
}

// UpdateBranchCubeHeadSHA1 fast-forwards a branch record in place
func (s *Store) UpdateBranchCubeHeadSHA1(ctx context.Context, id, headSHA1 string) error {
	defer s.observe(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE cube_revisions SET head_sha1 = $1, changed = FALSE WHERE id = $2`, headSHA1, id)
	if err != nil {
		return fmt.Errorf("failed to update head sha1: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cuberr.NotFoundf("no cube revision with id %s", id)
	}
	return nil
}

// MergeAcceptMine keeps the branch content and marks the head state as merged
func (s *Store) MergeAcceptMine(ctx context.Context, appID models.AppID, name, user string) (*models.CubeInfo, error) {
	defer s.observe(time.Now())
	var out *models.CubeInfo
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		rec, err := s.latest(ctx, tx, appID, name)
		if err != nil {
			return err
		}
		if rec == nil {
			return cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
		}
		headRec, err := s.latest(ctx, tx, appID.AsHead(), name)
		if err != nil {
			return err
		}
		if headRec == nil {
			return cuberr.NotFoundf("cube %s does not exist in %s", name, appID.AsHead())
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE cube_revisions SET head_sha1 = $1, changed = TRUE WHERE id = $2`, headRec.SHA1, rec.ID); err != nil {
			return fmt.Errorf("failed to accept branch content: %w", err)
		}
		rec.HeadSHA1 = headRec.SHA1
		rec.Changed = true
		info := rec.info(models.SearchOptions{})
		out = &info
		return nil
	})
	return out, err
}

// MergeAcceptTheirs replaces the branch content with the head state
func (s *Store) MergeAcceptTheirs(ctx context.Context, appID models.AppID, name, headSHA1, user string) (*models.CubeInfo, error) {
	defer s.observe(time.Now())
	var out *models.CubeInfo
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		headRec, err := s.latest(ctx, tx, appID.AsHead(), name)
		if err != nil {
			return err
		}
		if headRec == nil {
			return cuberr.NotFoundf("cube %s does not exist in %s", name, appID.AsHead())
		}
		if headSHA1 != "" && headRec.SHA1 != headSHA1 {
			headRec, err = s.findBySHA1(ctx, tx, appID.AsHead(), name, headSHA1)
			if err != nil {
				return err
			}
			if headRec == nil {
				return cuberr.NotFoundf("no head revision of %s with sha1 %s", name, headSHA1)
			}
		}
		last, err := s.latest(ctx, tx, appID, name)
		if err != nil {
			return err
		}
		rev := nextRevision(last)
		if headRec.isTombstone() {
			rev = -rev
		}
		rec, err := s.insert(ctx, tx, appID, headRec.Name, rev, headRec.SHA1, headRec.SHA1, false, headRec.CubeJSON, "", "", user)
		if err != nil {
			return err
		}
		info := rec.info(models.SearchOptions{})
		out = &info
		return nil
	})
	return out, err
}

// CopyBranch copies the newest revision of every cube to an empty branch
func (s *Store) CopyBranch(ctx context.Context, srcAppID, dstAppID models.AppID, user string) (int, error) {
	defer s.observe(time.Now())
	count := 0
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.latestRows(ctx, tx, dstAppID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return cuberr.Inputf("branch %s already has cubes", dstAppID)
		}
		rows, err := s.latestRows(ctx, tx, srcAppID)
		if err != nil {
			return err
		}
		for i := range rows {
			r := &rows[i]
			rev := int64(1)
			if r.isTombstone() {
				rev = -1
			}
			if _, err := s.insert(ctx, tx, dstAppID, r.Name, rev, r.SHA1, r.HeadSHA1, r.Changed, r.CubeJSON, r.Notes, r.TestData, user); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// MoveBranch rekeys every revision of the branch to a new version
func (s *Store) MoveBranch(ctx context.Context, appID models.AppID, newVersion, user string) (int, error) {
	defer s.observe(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE cube_revisions SET version = $6 WHERE `+identityWhere,
		appID.Tenant, appID.App, appID.Version, string(appID.Status), appID.Branch, newVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to move branch: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ReleaseCubes freezes the HEAD snapshot of the version as a RELEASE
func (s *Store) ReleaseCubes(ctx context.Context, appID models.AppID, user string) error {
	defer s.observe(time.Now())
	head := appID.AsSnapshot().AsHead()
	res, err := s.db.ExecContext(ctx, `
		UPDATE cube_revisions SET status = $6, changed = FALSE WHERE `+identityWhere,
		head.Tenant, head.App, head.Version, string(head.Status), head.Branch, string(models.StatusRelease))
	if err != nil {
		return fmt.Errorf("failed to release cubes: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cuberr.NotFoundf("no cubes to release in %s", head)
	}
	return nil
}

// DeleteBranch removes every revision of a non-HEAD branch
func (s *Store) DeleteBranch(ctx context.Context, appID models.AppID, user string) error {
	defer s.observe(time.Now())
	if appID.IsHead() {
		return cuberr.Inputf("cannot delete HEAD branch of %s", appID)
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM cube_revisions WHERE `+identityWhere,
		appID.Tenant, appID.App, appID.Version, string(appID.Status), appID.Branch)
	if err != nil {
		return fmt.Errorf("failed to delete branch: %w", err)
	}
	return nil
}

// UpdateTestData attaches test data to the live revision
func (s *Store) UpdateTestData(ctx context.Context, appID models.AppID, name, testData string) error {
	return s.updateAux(ctx, appID, name, "test_data", testData)
}

// UpdateNotes attaches notes to the live revision
func (s *Store) UpdateNotes(ctx context.Context, appID models.AppID, name, notes string) error {
	return s.updateAux(ctx, appID, name, "notes", notes)
}

func (s *Store) updateAux(ctx context.Context, appID models.AppID, name, column, value string) error {
	defer s.observe(time.Now())
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		last, err := s.latest(ctx, tx, appID, name)
		if err != nil {
			return err
		}
		if last == nil {
			return cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
		}
		_, err = tx.ExecContext(ctx, `UPDATE cube_revisions SET `+column+` = $1 WHERE id = $2`, value, last.ID)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", column, err)
		}
		return nil
	})
}
