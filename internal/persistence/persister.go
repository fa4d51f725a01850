// Package persistence defines the contract of the durable cube store. The
// manager consumes it; implementations live in sub-packages (sqlstore for
// PostgreSQL, memstore for embedded and test use).
package persistence

import (
	"context"

	"github.com/cubeworks/cuberepo/internal/cube"
	"github.com/cubeworks/cuberepo/pkg/models"
)

// Persister is the durable store of cube revisions, keyed by AppID and cube
// name. Every mutating call names the acting user. Loads of absent cubes
// return (nil, nil); hard failures return errors.
type Persister interface {
	LoadCube(ctx context.Context, appID models.AppID, name string) (cube.Cube, error)
	LoadCubeByID(ctx context.Context, id string) (cube.Cube, error)
	// LoadCubeBySHA1 fetches the revision carrying the fingerprint; the
	// three-way merge base fetch
	LoadCubeBySHA1(ctx context.Context, appID models.AppID, name, sha1 string) (cube.Cube, error)

	Search(ctx context.Context, appID models.AppID, namePattern, contentPattern string, opts models.SearchOptions) ([]models.CubeInfo, error)
	GetRevisions(ctx context.Context, appID models.AppID, name string) ([]models.CubeInfo, error)

	UpdateCube(ctx context.Context, appID models.AppID, c cube.Cube, user string) error
	DuplicateCube(ctx context.Context, oldAppID models.AppID, oldName string, newAppID models.AppID, newName, user string) error
	RenameCube(ctx context.Context, appID models.AppID, oldName, newName, user string) error
	DeleteCubes(ctx context.Context, appID models.AppID, names []string, allowHard bool, user string) error
	RestoreCubes(ctx context.Context, appID models.AppID, names []string, user string) error
	RollbackCubes(ctx context.Context, appID models.AppID, names []string, user string) error

	CommitCubes(ctx context.Context, appID models.AppID, ids []string, user string) ([]models.CubeInfo, error)
	CommitMergedCubeToHead(ctx context.Context, appID models.AppID, c cube.Cube, user string) (*models.CubeInfo, error)
	CommitMergedCubeToBranch(ctx context.Context, appID models.AppID, c cube.Cube, headSHA1, user string) (*models.CubeInfo, error)
	PullToBranch(ctx context.Context, appID models.AppID, ids []string, user string) ([]models.CubeInfo, error)
	UpdateBranchCubeHeadSHA1(ctx context.Context, id, headSHA1 string) error

	MergeAcceptMine(ctx context.Context, appID models.AppID, name, user string) (*models.CubeInfo, error)
	MergeAcceptTheirs(ctx context.Context, appID models.AppID, name, headSHA1, user string) (*models.CubeInfo, error)

	CopyBranch(ctx context.Context, srcAppID, dstAppID models.AppID, user string) (int, error)
	MoveBranch(ctx context.Context, appID models.AppID, newVersion, user string) (int, error)
	ReleaseCubes(ctx context.Context, appID models.AppID, user string) error
	DeleteBranch(ctx context.Context, appID models.AppID, user string) error

	GetAppNames(ctx context.Context, tenant string) ([]string, error)
	GetVersions(ctx context.Context, tenant, app string) (map[models.ReleaseStatus][]string, error)
	GetBranches(ctx context.Context, appID models.AppID) ([]string, error)

	UpdateTestData(ctx context.Context, appID models.AppID, name, testData string) error
	GetTestData(ctx context.Context, appID models.AppID, name string) (string, error)
	UpdateNotes(ctx context.Context, appID models.AppID, name, notes string) error
	GetNotes(ctx context.Context, appID models.AppID, name string) (string, error)
}
