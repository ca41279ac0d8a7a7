package service

import (
	"context"
	"testing"
	"time"

	"github.com/fosslighting/fossapp/internal/config"
	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/fosslighting/fossapp/internal/fossapp/testutil"
	"github.com/fosslighting/fossapp/internal/shared/gdrive"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dbFixture struct {
	repos     *repository.Repositories
	aps       *fakeAPS
	drive     *fakeDrive
	objects   *fakeObjects
	projects  *ProjectService
	documents *DocumentService
	areas    *AreaService
	products *ProjectProductService
	viewer   *ViewerService
	catalog  *CatalogService
}

func newDBFixture(t *testing.T) *dbFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	f := &dbFixture{repos: repos, aps: newFakeAPS(), drive: newFakeDrive(), objects: newFakeObjects()}

	apsCfg := config.APSConfig{BucketPrefix: "fossapp_prj_", ViewerBucket: "fossapp_viewer"}
	f.projects = NewProjectService(repos, f.drive, f.aps, f.objects, nil, apsCfg, nil)
	f.documents = NewDocumentService(repos, f.objects, nil)
	f.areas = NewAreaService(repos, f.drive, f.aps, nil)
	f.products = NewProjectProductService(repos)
	f.catalog = NewCatalogService(repos)
	f.viewer = NewViewerService(repos, f.aps, f.drive, NewMemoryURNCache(), apsCfg,
		config.ViewerConfig{PollInterval: time.Millisecond, MaxPollAttempts: 3, CacheTTL: time.Hour}, nil)
	return f
}

func TestAreaVersionLifecycle(t *testing.T) {
	f := newDBFixture(t)
	ctx := context.Background()
	db := f.repos.DB()

	project, err := f.projects.CreateProject(ctx, testutil.DefaultUserID, &CreateProjectRequest{Name: "Hotel Lobby"})
	require.NoError(t, err)
	require.NotNil(t, project.GoogleDriveFolderID)
	require.NotNil(t, project.OSSBucket)

	area, err := f.areas.CreateArea(ctx, project.ID, testutil.DefaultUserID, &CreateAreaRequest{AreaCode: "lobby", AreaName: "Lobby"})
	require.NoError(t, err)
	assert.Equal(t, "LOBBY", area.AreaCode)
	assert.Equal(t, 1, area.CurrentVersion)
	require.Len(t, area.Versions, 1)
	require.NotNil(t, area.GoogleDriveFolderID)
	v1 := area.Versions[0]
	require.NotNil(t, v1.GoogleDriveFolderID)

	_, err = f.areas.CreateArea(ctx, project.ID, testutil.DefaultUserID, &CreateAreaRequest{AreaCode: "LOBBY", AreaName: "Again"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	downlight := testutil.SeedProduct(t, db, "DL-100", "Downlight", 40)
	spot := testutil.SeedProduct(t, db, "SP-200", "Spot", 25)

	line, err := f.products.AddProduct(ctx, v1.ID, &AddProductRequest{ProductID: downlight.ID, Quantity: 4, DiscountPercent: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(40).Equal(line.UnitPrice))
	require.True(t, line.TotalPrice.Valid)
	assert.True(t, decimal.NewFromInt(144).Equal(line.TotalPrice.Decimal))

	price := decimal.NewFromInt(20)
	_, err = f.products.AddProduct(ctx, v1.ID, &AddProductRequest{ProductID: spot.ID, Quantity: 2, UnitPrice: &price})
	require.NoError(t, err)

	_, err = f.products.AddProduct(ctx, v1.ID, &AddProductRequest{ProductID: spot.ID, Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	_, err = f.viewer.UploadFloorPlan(ctx, v1.ID, "ground.dwg", []byte("dwg"))
	require.NoError(t, err)
	working := f.drive.folders[*area.GoogleDriveFolderID+"/v1/"+gdrive.WorkingFolder]
	require.NotEmpty(t, working)
	assert.Equal(t, []string{working + "/ground.dwg"}, f.drive.uploaded)

	one := 1
	v2, err := f.areas.CreateVersion(ctx, area.ID, testutil.DefaultUserID, &CreateVersionRequest{CopyFromVersion: &one})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	require.NotNil(t, v2.FloorPlanObjectKey)
	assert.Equal(t, "v2_ground.dwg", *v2.FloorPlanObjectKey)
	assert.Equal(t, entity.FloorPlanPending, v2.FloorPlanStatus)
	assert.Len(t, f.drive.copied, 1)

	copied, err := f.products.ListVersionProducts(ctx, v2.ID)
	require.NoError(t, err)
	assert.Len(t, copied, 2)

	summary, err := f.areas.GetVersionSummary(ctx, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.ProductCount)
	assert.Equal(t, int64(6), summary.TotalQuantity)
	assert.True(t, decimal.NewFromInt(184).Equal(summary.TotalValue))

	reloaded, err := f.areas.GetArea(ctx, area.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.CurrentVersion)

	missing := 9
	_, err = f.areas.CreateVersion(ctx, area.ID, testutil.DefaultUserID, &CreateVersionRequest{CopyFromVersion: &missing})
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, f.areas.DeleteVersion(ctx, v2.ID))
	reloaded, err = f.areas.GetArea(ctx, area.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.CurrentVersion)

	err = f.areas.DeleteVersion(ctx, v1.ID)
	assert.ErrorIs(t, err, ErrInvalidInput)

	file, name, err := f.areas.ExportVersionSchedule(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Schedule_LOBBY_v1.xlsx", name)
	fossPID, err := file.GetCellValue("Schedule", "B2")
	require.NoError(t, err)
	assert.Equal(t, "DL-100", fossPID)
	total, err := file.GetCellValue("Schedule", "A4")
	require.NoError(t, err)
	assert.Equal(t, "Total", total)
}

func TestCatalogSearchAndImport(t *testing.T) {
	f := newDBFixture(t)
	ctx := context.Background()

	result, err := f.catalog.importRows(ctx, [][]string{
		{"foss_pid", "description", "family", "price"},
		{"GR-1", "Φωτιστικό οροφής", "Ceiling", "99"},
		{"GR-2", "Downlight", "Downlights", "30"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)

	found, err := f.catalog.SearchProducts(ctx, "ΦΩΤΙΣΤΙΚΟ", "", 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(1), found.Total)
	assert.Equal(t, "GR-1", found.Items[0].FossPID)

	families, err := f.catalog.ListFamilies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ceiling", "Downlights"}, families)

	_, err = f.catalog.importRows(ctx, [][]string{
		{"foss_pid", "family", "price"},
		{"GR-2", "Downlights", "35"},
	})
	require.NoError(t, err)
	byFamily, err := f.catalog.SearchProducts(ctx, "", "Downlights", 1, 20)
	require.NoError(t, err)
	require.Len(t, byFamily.Items, 1)
	assert.True(t, decimal.NewFromInt(35).Equal(byFamily.Items[0].Price))
}
