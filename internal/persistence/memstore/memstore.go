// Package memstore is the embedded Persister: a complete in-memory revision
// store honoring tombstones, headSha1 bookkeeping and commit/pull semantics.
// It backs the test suite and embedders that run without a database.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cubeworks/cuberepo/internal/cube"
	cuberr "github.com/cubeworks/cuberepo/internal/errors"
	"github.com/cubeworks/cuberepo/internal/glob"
	"github.com/cubeworks/cuberepo/pkg/models"
)

type record struct {
	id       string
	appID    models.AppID
	name     string
	revision int64
	sha1     string
	headSHA1 string
	changed  bool
	notes    string
	testData string
	cube     cube.Cube
	created  time.Time
}

func (r *record) isTombstone() bool { return r.revision < 0 }

func (r *record) info(opts models.SearchOptions) models.CubeInfo {
	info := models.CubeInfo{
		ID:       r.id,
		Name:     r.name,
		AppID:    r.appID,
		Revision: r.revision,
		SHA1:     r.sha1,
		HeadSHA1: r.headSHA1,
		Changed:  r.changed,
	}
	if opts.IncludeNotes {
		info.Notes = r.notes
	}
	if opts.IncludeTestData {
		info.TestData = r.testData
	}
	return info
}

type bucket struct {
	appID models.AppID
	names map[string][]*record // lowercase name -> revisions in append order
}

// Store is the in-memory Persister implementation
type Store struct {
	mu      sync.RWMutex
	buckets map[string]*bucket // AppID cache key -> revisions
	byID    map[string]*record
}

// New creates an empty store
func New() *Store {
	return &Store{
		buckets: map[string]*bucket{},
		byID:    map[string]*record{},
	}
}

func (s *Store) bucket(appID models.AppID, create bool) *bucket {
	key := appID.CacheKey()
	b := s.buckets[key]
	if b == nil && create {
		b = &bucket{appID: appID, names: map[string][]*record{}}
		s.buckets[key] = b
	}
	return b
}

func (s *Store) latest(appID models.AppID, name string) *record {
	b := s.bucket(appID, false)
	if b == nil {
		return nil
	}
	history := b.names[strings.ToLower(name)]
	if len(history) == 0 {
		return nil
	}
	return history[len(history)-1]
}

func nextRevision(history []*record) int64 {
	if len(history) == 0 {
		return 1
	}
	last := history[len(history)-1].revision
	if last < 0 {
		return -last + 1
	}
	return last + 1
}

func (s *Store) append(appID models.AppID, name string, rev *record) *record {
	b := s.bucket(appID, true)
	rev.id = uuid.NewString()
	rev.appID = appID
	rev.name = name
	rev.created = time.Now()
	b.names[strings.ToLower(name)] = append(b.names[strings.ToLower(name)], rev)
	s.byID[rev.id] = rev
	return rev
}

func dup(c cube.Cube) cube.Cube {
	if c == nil {
		return nil
	}
	return c.Duplicate(c.Name())
}

// LoadCube returns the live revision of a cube, or nil when absent or
// tombstoned
func (s *Store) LoadCube(ctx context.Context, appID models.AppID, name string) (cube.Cube, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.latest(appID, name)
	if rec == nil || rec.isTombstone() {
		return nil, nil
	}
	out := dup(rec.cube)
	out.SetAppID(appID)
	return out, nil
}

// LoadCubeByID returns the revision carrying the identifier
func (s *Store) LoadCubeByID(ctx context.Context, id string) (cube.Cube, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, cuberr.NotFoundf("no cube revision with id %s", id)
	}
	out := dup(rec.cube)
	out.SetAppID(rec.appID)
	return out, nil
}

// LoadCubeBySHA1 returns the revision carrying the fingerprint, searching the
// given AppID's history and then the HEAD history of the same version
func (s *Store) LoadCubeBySHA1(ctx context.Context, appID models.AppID, name, sha1 string) (cube.Cube, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, candidate := range []models.AppID{appID, appID.AsHead()} {
		b := s.bucket(candidate, false)
		if b == nil {
			continue
		}
		history := b.names[strings.ToLower(name)]
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].sha1 == sha1 && history[i].cube != nil {
				out := dup(history[i].cube)
				out.SetAppID(appID)
				return out, nil
			}
		}
	}
	return nil, nil
}

// Search lists the newest revision of every matching cube
func (s *Store) Search(ctx context.Context, appID models.AppID, namePattern, contentPattern string, opts models.SearchOptions) ([]models.CubeInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.bucket(appID, false)
	if b == nil {
		return nil, nil
	}
	var out []models.CubeInfo
	for _, history := range b.names {
		rec := history[len(history)-1]
		if !matchName(rec.name, namePattern, opts.ExactMatchName) {
			continue
		}
		if opts.DeletedRecordsOnly && !rec.isTombstone() {
			continue
		}
		if opts.ActiveRecordsOnly && rec.isTombstone() {
			continue
		}
		if opts.ChangedRecordsOnly && !rec.changed {
			continue
		}
		if contentPattern != "" && !contentMatches(rec.cube, contentPattern) {
			continue
		}
		out = append(out, rec.info(opts))
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func matchName(name, pattern string, exact bool) bool {
	if pattern == "" {
		return true
	}
	if exact {
		return strings.EqualFold(name, pattern)
	}
	return glob.Match(pattern, name)
}

func contentMatches(c cube.Cube, pattern string) bool {
	if c == nil {
		return false
	}
	needle := strings.ToLower(pattern)
	for _, entry := range c.Cells() {
		if strings.Contains(strings.ToLower(fmt.Sprintf("%v", entry.Value)), needle) {
			return true
		}
	}
	return false
}

// GetRevisions lists the full history of one cube
func (s *Store) GetRevisions(ctx context.Context, appID models.AppID, name string) ([]models.CubeInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.bucket(appID, false)
	if b == nil {
		return nil, cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
	}
	history := b.names[strings.ToLower(name)]
	if len(history) == 0 {
		return nil, cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
	}
	opts := models.SearchOptions{IncludeNotes: true, IncludeTestData: true}
	out := make([]models.CubeInfo, len(history))
	for i, rec := range history {
		out[i] = rec.info(opts)
	}
	return out, nil
}

// UpdateCube persists a new revision unless the content is unchanged
func (s *Store) UpdateCube(ctx context.Context, appID models.AppID, c cube.Cube, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := c.Name()
	b := s.bucket(appID, true)
	history := b.names[strings.ToLower(name)]
	sha := c.SHA1()
	var headSHA1 string
	if len(history) > 0 {
		last := history[len(history)-1]
		if !last.isTombstone() && last.sha1 == sha {
			return nil
		}
		headSHA1 = last.headSHA1
	}
	s.append(appID, name, &record{
		revision: nextRevision(history),
		sha1:     sha,
		headSHA1: headSHA1,
		changed:  !appID.IsHead(),
		cube:     dup(c),
	})
	return nil
}

// DuplicateCube copies the live revision of one cube under a new identity
func (s *Store) DuplicateCube(ctx context.Context, oldAppID models.AppID, oldName string, newAppID models.AppID, newName, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.latest(oldAppID, oldName)
	if src == nil || src.isTombstone() {
		return cuberr.NotFoundf("cube %s does not exist in %s", oldName, oldAppID)
	}
	if dst := s.latest(newAppID, newName); dst != nil && !dst.isTombstone() {
		return cuberr.Inputf("cube %s already exists in %s", newName, newAppID)
	}
	copied := src.cube.Duplicate(newName)
	history := s.historyOf(newAppID, newName)
	s.append(newAppID, newName, &record{
		revision: nextRevision(history),
		sha1:     copied.SHA1(),
		changed:  !newAppID.IsHead(),
		cube:     copied,
	})
	return nil
}

func (s *Store) historyOf(appID models.AppID, name string) []*record {
	b := s.bucket(appID, false)
	if b == nil {
		return nil
	}
	return b.names[strings.ToLower(name)]
}

// RenameCube moves a cube's history to a new name, tombstoning the old one
func (s *Store) RenameCube(ctx context.Context, appID models.AppID, oldName, newName, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.latest(appID, oldName)
	if src == nil || src.isTombstone() {
		return cuberr.NotFoundf("cube %s does not exist in %s", oldName, appID)
	}
	if dst := s.latest(appID, newName); dst != nil && !dst.isTombstone() {
		return cuberr.Inputf("cube %s already exists in %s", newName, appID)
	}
	renamed := src.cube.Duplicate(newName)
	oldHistory := s.historyOf(appID, oldName)
	s.append(appID, oldName, &record{
		revision: -nextRevision(oldHistory),
		sha1:     src.sha1,
		headSHA1: src.headSHA1,
		changed:  !appID.IsHead(),
		cube:     dup(src.cube),
	})
	newHistory := s.historyOf(appID, newName)
	s.append(appID, newName, &record{
		revision: nextRevision(newHistory),
		sha1:     renamed.SHA1(),
		changed:  !appID.IsHead(),
		cube:     renamed,
	})
	return nil
}

// DeleteCubes tombstones each named cube
func (s *Store) DeleteCubes(ctx context.Context, appID models.AppID, names []string, allowHard bool, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		rec := s.latest(appID, name)
		if rec == nil || rec.isTombstone() {
			return cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
		}
		if allowHard {
			s.dropHistory(appID, name)
			continue
		}
		history := s.historyOf(appID, name)
		s.append(appID, name, &record{
			revision: -nextRevision(history),
			sha1:     rec.sha1,
			headSHA1: rec.headSHA1,
			changed:  !appID.IsHead(),
			cube:     dup(rec.cube),
		})
	}
	return nil
}

func (s *Store) dropHistory(appID models.AppID, name string) {
	b := s.bucket(appID, false)
	if b == nil {
		return
	}
	for _, rec := range b.names[strings.ToLower(name)] {
		delete(s.byID, rec.id)
	}
	delete(b.names, strings.ToLower(name))
}

// RestoreCubes re-inserts a positive revision for each tombstoned cube
func (s *Store) RestoreCubes(ctx context.Context, appID models.AppID, names []string, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		rec := s.latest(appID, name)
		if rec == nil {
			return cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
		}
		if !rec.isTombstone() {
			return cuberr.Inputf("cube %s is not deleted in %s", name, appID)
		}
		history := s.historyOf(appID, name)
		s.append(appID, name, &record{
			revision: nextRevision(history),
			sha1:     rec.sha1,
			headSHA1: rec.headSHA1,
			changed:  !appID.IsHead(),
			cube:     dup(rec.cube),
		})
	}
	return nil
}

// RollbackCubes reverts each branch cube to the head state it diverged from.
// A cube that never reached the head is removed outright.
func (s *Store) RollbackCubes(ctx context.Context, appID models.AppID, names []string, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		rec := s.latest(appID, name)
		if rec == nil {
			return cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
		}
		if rec.headSHA1 == "" {
			s.dropHistory(appID, name)
			continue
		}
		base := s.findBySHA1(appID, name, rec.headSHA1)
		if base == nil {
			return cuberr.NotFoundf("no revision of %s with sha1 %s to roll back to", name, rec.headSHA1)
		}
		history := s.historyOf(appID, name)
		s.append(appID, name, &record{
			revision: nextRevision(history),
			sha1:     base.sha1,
			headSHA1: rec.headSHA1,
			changed:  false,
			cube:     dup(base.cube),
		})
	}
	return nil
}

func (s *Store) findBySHA1(appID models.AppID, name, sha1 string) *record {
	for _, candidate := range []models.AppID{appID, appID.AsHead()} {
		b := s.bucket(candidate, false)
		if b == nil {
			continue
		}
		history := b.names[strings.ToLower(name)]
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].sha1 == sha1 {
				return history[i]
			}
		}
	}
	return nil
}

// CommitCubes pushes the identified branch revisions to the head, returning
// the committed head records
func (s *Store) CommitCubes(ctx context.Context, appID models.AppID, ids []string, user string) ([]models.CubeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	head := appID.AsHead()
	var out []models.CubeInfo
	for _, id := range ids {
		rec, ok := s.byID[id]
		if !ok {
			return out, cuberr.NotFoundf("no cube revision with id %s", id)
		}
		committed := s.writeHead(head, rec.name, rec.cube, rec.sha1, rec.isTombstone())
		rec.changed = false
		rec.headSHA1 = rec.sha1
		out = append(out, committed.info(models.SearchOptions{}))
	}
	return out, nil
}

// writeHead appends a head revision unless the head already carries the state
func (s *Store) writeHead(head models.AppID, name string, c cube.Cube, sha1 string, tombstone bool) *record {
	last := s.latest(head, name)
	if last != nil && last.sha1 == sha1 && last.isTombstone() == tombstone {
		return last
	}
	history := s.historyOf(head, name)
	rev := nextRevision(history)
	if tombstone {
		rev = -rev
	}
	return s.append(head, name, &record{
		revision: rev,
		sha1:     sha1,
		changed:  false,
		cube:     dup(c),
	})
}

// CommitMergedCubeToHead pushes a merged cube to the head and fast-forwards
// the branch to the merged state
func (s *Store) CommitMergedCubeToHead(ctx context.Context, appID models.AppID, c cube.Cube, user string) (*models.CubeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sha := c.SHA1()
	committed := s.writeHead(appID.AsHead(), c.Name(), c, sha, false)
	history := s.historyOf(appID, c.Name())
	s.append(appID, c.Name(), &record{
		revision: nextRevision(history),
		sha1:     sha,
		headSHA1: sha,
		changed:  false,
		cube:     dup(c),
	})
	info := committed.info(models.SearchOptions{})
	return &info, nil
}

// CommitMergedCubeToBranch stores a merged cube as a new branch change based
// on the given head fingerprint
func (s *Store) CommitMergedCubeToBranch(ctx context.Context, appID models.AppID, c cube.Cube, headSHA1, user string) (*models.CubeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.historyOf(appID, c.Name())
	rec := s.append(appID, c.Name(), &record{
		revision: nextRevision(history),
		sha1:     c.SHA1(),
		headSHA1: headSHA1,
		changed:  true,
		cube:     dup(c),
	})
	info := rec.info(models.SearchOptions{})
	return &info, nil
}

// PullToBranch copies the identified head revisions into the branch. An
// unchanged branch record fast-forwards in place; only branches with no
// record of the name grow a new revision.
func (s *Store) PullToBranch(ctx context.Context, appID models.AppID, ids []string, user string) ([]models.CubeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CubeInfo
	for _, id := range ids {
		rec, ok := s.byID[id]
		if !ok {
			return out, cuberr.NotFoundf("no cube revision with id %s", id)
		}
		if last := s.latest(appID, rec.name); last != nil && !last.changed {
			last.sha1 = rec.sha1
			last.headSHA1 = rec.sha1
			last.cube = dup(rec.cube)
			if rec.isTombstone() != last.isTombstone() {
				last.revision = -last.revision
			}
			out = append(out, last.info(models.SearchOptions{}))
			continue
		}
		history := s.historyOf(appID, rec.name)
		rev := nextRevision(history)
		if rec.isTombstone() {
			rev = -rev
		}
		pulled := s.append(appID, rec.name, &record{
			revision: rev,
			sha1:     rec.sha1,
			headSHA1: rec.sha1,
			changed:  false,
			cube:     dup(rec.cube),
		})
		out = append(out, pulled.info(models.SearchOptions{}))
	}
	return out, nil
}

// UpdateBranchCubeHeadSHA1 fast-forwards a branch record in place
func (s *Store) UpdateBranchCubeHeadSHA1(ctx context.Context, id, headSHA1 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return cuberr.NotFoundf("no cube revision with id %s", id)
	}
	rec.headSHA1 = headSHA1
	rec.changed = false
	return nil
}

// MergeAcceptMine keeps the branch content and marks the head state as merged
func (s *Store) MergeAcceptMine(ctx context.Context, appID models.AppID, name, user string) (*models.CubeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.latest(appID, name)
	if rec == nil {
		return nil, cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
	}
	headRec := s.latest(appID.AsHead(), name)
	if headRec == nil {
		return nil, cuberr.NotFoundf("cube %s does not exist in %s", name, appID.AsHead())
	}
	rec.headSHA1 = headRec.sha1
	rec.changed = true
	info := rec.info(models.SearchOptions{})
	return &info, nil
}

// MergeAcceptTheirs replaces the branch content with the head state
func (s *Store) MergeAcceptTheirs(ctx context.Context, appID models.AppID, name, headSHA1, user string) (*models.CubeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	headRec := s.latest(appID.AsHead(), name)
	if headRec == nil {
		return nil, cuberr.NotFoundf("cube %s does not exist in %s", name, appID.AsHead())
	}
	if headSHA1 != "" && headRec.sha1 != headSHA1 {
		found := s.findBySHA1(appID.AsHead(), name, headSHA1)
		if found == nil {
			return nil, cuberr.NotFoundf("no head revision of %s with sha1 %s", name, headSHA1)
		}
		headRec = found
	}
	history := s.historyOf(appID, name)
	rev := nextRevision(history)
	if headRec.isTombstone() {
		rev = -rev
	}
	rec := s.append(appID, name, &record{
		revision: rev,
		sha1:     headRec.sha1,
		headSHA1: headRec.sha1,
		changed:  false,
		cube:     dup(headRec.cube),
	})
	info := rec.info(models.SearchOptions{})
	return &info, nil
}

// CopyBranch copies the newest revision of every cube to an empty branch
func (s *Store) CopyBranch(ctx context.Context, srcAppID, dstAppID models.AppID, user string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dst := s.bucket(dstAppID, false); dst != nil && len(dst.names) > 0 {
		return 0, cuberr.Inputf("branch %s already has cubes", dstAppID)
	}
	src := s.bucket(srcAppID, false)
	if src == nil {
		return 0, nil
	}
	count := 0
	for _, history := range src.names {
		rec := history[len(history)-1]
		rev := int64(1)
		if rec.isTombstone() {
			rev = -1
		}
		s.append(dstAppID, rec.name, &record{
			revision: rev,
			sha1:     rec.sha1,
			headSHA1: rec.headSHA1,
			changed:  rec.changed,
			notes:    rec.notes,
			testData: rec.testData,
			cube:     dup(rec.cube),
		})
		count++
	}
	return count, nil
}

// MoveBranch rekeys every revision of the branch to a new version
func (s *Store) MoveBranch(ctx context.Context, appID models.AppID, newVersion, user string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucket(appID, false)
	if b == nil {
		return 0, nil
	}
	delete(s.buckets, appID.CacheKey())
	newAppID := appID.AsVersion(newVersion)
	target := s.bucket(newAppID, true)
	count := 0
	for name, history := range b.names {
		for _, rec := range history {
			rec.appID = newAppID
		}
		target.names[name] = append(target.names[name], history...)
		count++
	}
	return count, nil
}

// ReleaseCubes freezes the HEAD snapshot of the version as a RELEASE
func (s *Store) ReleaseCubes(ctx context.Context, appID models.AppID, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	head := appID.AsSnapshot().AsHead()
	b := s.bucket(head, false)
	if b == nil {
		return cuberr.NotFoundf("no cubes to release in %s", head)
	}
	delete(s.buckets, head.CacheKey())
	release := head.AsRelease()
	target := s.bucket(release, true)
	for name, history := range b.names {
		for _, rec := range history {
			rec.appID = release
			rec.changed = false
		}
		target.names[name] = append(target.names[name], history...)
	}
	return nil
}

// DeleteBranch removes every revision of a non-HEAD branch
func (s *Store) DeleteBranch(ctx context.Context, appID models.AppID, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appID.IsHead() {
		return cuberr.Inputf("cannot delete HEAD branch of %s", appID)
	}
	b := s.bucket(appID, false)
	if b == nil {
		return nil
	}
	for name := range b.names {
		s.dropHistory(appID, name)
	}
	delete(s.buckets, appID.CacheKey())
	return nil
}

// GetAppNames lists the application names of a tenant
func (s *Store) GetAppNames(ctx context.Context, tenant string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]string{}
	for _, b := range s.buckets {
		if strings.EqualFold(b.appID.Tenant, tenant) && len(b.names) > 0 {
			seen[strings.ToLower(b.appID.App)] = b.appID.App
		}
	}
	var out []string
	for _, app := range seen {
		out = append(out, app)
	}
	sort.Strings(out)
	return out, nil
}

// GetVersions lists the versions of an application, grouped by status
func (s *Store) GetVersions(ctx context.Context, tenant, app string) (map[models.ReleaseStatus][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grouped := map[models.ReleaseStatus]map[string]bool{
		models.StatusSnapshot: {},
		models.StatusRelease:  {},
	}
	for _, b := range s.buckets {
		if strings.EqualFold(b.appID.Tenant, tenant) && strings.EqualFold(b.appID.App, app) && len(b.names) > 0 {
			grouped[b.appID.Status][b.appID.Version] = true
		}
	}
	out := map[models.ReleaseStatus][]string{}
	for status, versions := range grouped {
		for v := range versions {
			out[status] = append(out[status], v)
		}
		sort.Strings(out[status])
	}
	return out, nil
}

// GetBranches lists the branches of the AppID's version
func (s *Store) GetBranches(ctx context.Context, appID models.AppID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]string{}
	for _, b := range s.buckets {
		if strings.EqualFold(b.appID.Tenant, appID.Tenant) &&
			strings.EqualFold(b.appID.App, appID.App) &&
			strings.EqualFold(b.appID.Version, appID.Version) &&
			b.appID.Status == appID.Status && len(b.names) > 0 {
			seen[strings.ToLower(b.appID.Branch)] = b.appID.Branch
		}
	}
	var out []string
	for _, branch := range seen {
		out = append(out, branch)
	}
	sort.Strings(out)
	return out, nil
}

// UpdateTestData attaches test data to the live revision
func (s *Store) UpdateTestData(ctx context.Context, appID models.AppID, name, testData string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.latest(appID, name)
	if rec == nil {
		return cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
	}
	rec.testData = testData
	return nil
}

// GetTestData reads the live revision's test data
func (s *Store) GetTestData(ctx context.Context, appID models.AppID, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.latest(appID, name)
	if rec == nil {
		return "", cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
	}
	return rec.testData, nil
}

// UpdateNotes attaches notes to the live revision
func (s *Store) UpdateNotes(ctx context.Context, appID models.AppID, name, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.latest(appID, name)
	if rec == nil {
		return cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
	}
	rec.notes = notes
	return nil
}

// GetNotes reads the live revision's notes
func (s *Store) GetNotes(ctx context.Context, appID models.AppID, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.latest(appID, name)
	if rec == nil {
		return "", cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
	}
	return rec.notes, nil
}
