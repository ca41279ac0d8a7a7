package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/fosslighting/fossapp/internal/shared/gdrive"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var areaCodePattern = regexp.MustCompile(`^[A-Z0-9_-]{1,32}$`)

// AreaService areas and their independently numbered versions
type AreaService struct {
	repos  *repository.Repositories
	drive  DriveClient
	aps    APSClient
	logger *zap.Logger
}

func NewAreaService(repos *repository.Repositories, drive DriveClient, apsClient APSClient, logger *zap.Logger) *AreaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AreaService{repos: repos, drive: drive, aps: apsClient, logger: logger.Named("area")}
}

type CreateAreaRequest struct {
	AreaCode     string           `json:"area_code" binding:"required"`
	AreaName     string           `json:"area_name" binding:"required"`
	AreaNameEn   string           `json:"area_name_en"`
	AreaType     string           `json:"area_type"`
	FloorLevel   *int             `json:"floor_level"`
	AreaSqm      *decimal.Decimal `json:"area_sqm"`
	DisplayOrder int              `json:"display_order"`
	Description  string           `json:"description"`
}

type UpdateAreaRequest struct {
	AreaName     *string          `json:"area_name"`
	AreaNameEn   *string          `json:"area_name_en"`
	AreaType     *string          `json:"area_type"`
	FloorLevel   *int             `json:"floor_level"`
	AreaSqm      *decimal.Decimal `json:"area_sqm"`
	DisplayOrder *int             `json:"display_order"`
	IsActive     *bool            `json:"is_active"`
	Description  *string          `json:"description"`
}

// NormalizeAreaCode uppercases and validates an area code
func NormalizeAreaCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !areaCodePattern.MatchString(code) {
		return "", invalidf("area code must be 1-32 characters of A-Z, 0-9, '_' or '-'")
	}
	return code, nil
}

func (s *AreaService) ListAreas(ctx context.Context, projectID string) ([]entity.ProjectArea, error) {
	if _, err := s.repos.Project.FindPlain(ctx, projectID); err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	return s.repos.Area.ListByProject(ctx, projectID)
}

func (s *AreaService) GetArea(ctx context.Context, id string) (*entity.ProjectArea, error) {
	area, err := s.repos.Area.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find area: %w", err)
	}
	return area, nil
}

// CreateArea inserts the area with version 1 and builds
// 02_Areas/{code}/v1/{Working,Output} when the project has a Drive folder.
func (s *AreaService) CreateArea(ctx context.Context, projectID, userID string, req *CreateAreaRequest) (*entity.ProjectArea, error) {
	code, err := NormalizeAreaCode(req.AreaCode)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.AreaName)
	if name == "" {
		return nil, invalidf("area name is required")
	}
	if req.AreaSqm != nil && req.AreaSqm.IsNegative() {
		return nil, invalidf("area size must not be negative")
	}

	project, err := s.repos.Project.FindPlain(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}

	area := &entity.ProjectArea{
		ID:             uuid.New().String(),
		ProjectID:      projectID,
		AreaCode:       code,
		AreaName:       name,
		AreaNameEn:     req.AreaNameEn,
		AreaType:       req.AreaType,
		FloorLevel:     req.FloorLevel,
		DisplayOrder:   req.DisplayOrder,
		CurrentVersion: 1,
		IsActive:       true,
		Description:    req.Description,
	}
	if req.AreaSqm != nil {
		area.AreaSqm = decimal.NewNullDecimal(*req.AreaSqm)
	}
	version := &entity.AreaVersion{
		ID:              uuid.New().String(),
		AreaID:          area.ID,
		VersionNumber:   1,
		VersionName:     "Initial",
		Status:          entity.VersionStatusDraft,
		FloorPlanStatus: entity.FloorPlanNone,
		CreatedBy:       userID,
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Area.Create(ctx, area); err != nil {
			return err
		}
		return tx.Area.CreateVersion(ctx, version)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, duplicate(fmt.Sprintf("area code %s already exists in this project", code))
		}
		return nil, fmt.Errorf("create area: %w", err)
	}

	if s.drive != nil && project.GoogleDriveFolderID != nil && *project.GoogleDriveFolderID != "" {
		s.createAreaFolders(ctx, *project.GoogleDriveFolderID, area, version)
	} else {
		s.logger.Warn("project has no drive folder, skipping area folders",
			zap.String("project_id", projectID), zap.String("area_code", code))
	}

	return s.repos.Area.FindByID(ctx, area.ID)
}

func (s *AreaService) createAreaFolders(ctx context.Context, projectFolderID string, area *entity.ProjectArea, version *entity.AreaVersion) {
	log := s.logger.With(zap.String("area_id", area.ID), zap.String("area_code", area.AreaCode))

	areaFolderID, err := s.drive.CreateAreaFolder(ctx, projectFolderID, area.AreaCode)
	if err != nil {
		log.Warn("create area folder failed", zap.Error(err))
		return
	}
	if err := s.repos.Area.UpdateFields(ctx, area.ID, map[string]interface{}{"google_drive_folder_id": areaFolderID}); err != nil {
		log.Warn("store area folder id failed", zap.Error(err))
	}

	folders, err := s.drive.CreateVersionFolders(ctx, areaFolderID, version.VersionNumber)
	if err != nil {
		log.Warn("create version folders failed", zap.Error(err))
		return
	}
	if err := s.repos.Area.UpdateVersionFields(ctx, version.ID, map[string]interface{}{"google_drive_folder_id": folders.VersionID}); err != nil {
		log.Warn("store version folder id failed", zap.Error(err))
	}
}

// UpdateArea area_code is immutable because it names the Drive folder
func (s *AreaService) UpdateArea(ctx context.Context, id string, req *UpdateAreaRequest) (*entity.ProjectArea, error) {
	fields := map[string]interface{}{}
	if req.AreaName != nil {
		name := strings.TrimSpace(*req.AreaName)
		if name == "" {
			return nil, invalidf("area name is required")
		}
		fields["area_name"] = name
	}
	if req.AreaNameEn != nil {
		fields["area_name_en"] = *req.AreaNameEn
	}
	if req.AreaType != nil {
		fields["area_type"] = *req.AreaType
	}
	if req.FloorLevel != nil {
		fields["floor_level"] = *req.FloorLevel
	}
	if req.AreaSqm != nil {
		if req.AreaSqm.IsNegative() {
			return nil, invalidf("area size must not be negative")
		}
		fields["area_sqm"] = *req.AreaSqm
	}
	if req.DisplayOrder != nil {
		fields["display_order"] = *req.DisplayOrder
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}

	if len(fields) > 0 {
		if err := s.repos.Area.UpdateFields(ctx, id, fields); err != nil {
			return nil, fmt.Errorf("update area: %w", err)
		}
	}
	return s.GetArea(ctx, id)
}

// DeleteArea removes products, versions and the area in one transaction,
// then the Drive folder and floor plan objects best-effort.
func (s *AreaService) DeleteArea(ctx context.Context, id string) error {
	area, err := s.repos.Area.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("find area: %w", err)
	}
	project, err := s.repos.Project.FindPlain(ctx, area.ProjectID)
	if err != nil {
		return fmt.Errorf("find project: %w", err)
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		return tx.Area.DeleteCascade(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete area: %w", err)
	}

	log := s.logger.With(zap.String("area_id", id), zap.String("area_code", area.AreaCode))
	if s.drive != nil && area.GoogleDriveFolderID != nil && *area.GoogleDriveFolderID != "" {
		if err := s.drive.Delete(ctx, *area.GoogleDriveFolderID); err != nil {
			log.Warn("delete area folder failed", zap.Error(err))
		}
	}
	for i := range area.Versions {
		s.deleteFloorPlanObject(ctx, project, &area.Versions[i], log)
	}
	return nil
}

func (s *AreaService) deleteFloorPlanObject(ctx context.Context, project *entity.Project, v *entity.AreaVersion, log *zap.Logger) {
	if s.aps == nil || !v.HasFloorPlan() || project.OSSBucket == nil || *project.OSSBucket == "" {
		return
	}
	if err := s.aps.DeleteObject(ctx, *project.OSSBucket, *v.FloorPlanObjectKey); err != nil {
		log.Warn("delete floor plan object failed",
			zap.String("version_id", v.ID), zap.String("object_key", *v.FloorPlanObjectKey), zap.Error(err))
	}
}

// ============================================================
// Versions
// ============================================================

type CreateVersionRequest struct {
	VersionName     string `json:"version_name"`
	Notes           string `json:"notes"`
	CopyFromVersion *int   `json:"copy_from_version"`
}

func (s *AreaService) ListVersions(ctx context.Context, areaID string) ([]entity.AreaVersion, error) {
	if _, err := s.repos.Area.FindByID(ctx, areaID); err != nil {
		return nil, fmt.Errorf("find area: %w", err)
	}
	return s.repos.Area.ListVersions(ctx, areaID)
}

func (s *AreaService) GetVersion(ctx context.Context, versionID string) (*entity.AreaVersion, error) {
	v, err := s.repos.Area.FindVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("find version: %w", err)
	}
	return v, nil
}

// CreateVersion appends version max+1 and makes it current. With
// CopyFromVersion the source's product rows are copied in the same
// transaction; its floor plan and Drive folder are copied afterwards.
func (s *AreaService) CreateVersion(ctx context.Context, areaID, userID string, req *CreateVersionRequest) (*entity.AreaVersion, error) {
	area, err := s.repos.Area.FindByID(ctx, areaID)
	if err != nil {
		return nil, fmt.Errorf("find area: %w", err)
	}

	var source *entity.AreaVersion
	if req.CopyFromVersion != nil {
		source, err = s.repos.Area.FindVersionByNumber(ctx, areaID, *req.CopyFromVersion)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalidf("version %d does not exist in area %s", *req.CopyFromVersion, area.AreaCode)
		}
		if err != nil {
			return nil, fmt.Errorf("find source version: %w", err)
		}
	}

	version := &entity.AreaVersion{
		ID:              uuid.New().String(),
		AreaID:          areaID,
		VersionName:     strings.TrimSpace(req.VersionName),
		Notes:           req.Notes,
		Status:          entity.VersionStatusDraft,
		FloorPlanStatus: entity.FloorPlanNone,
		CreatedBy:       userID,
	}

	copied := 0
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		maxNumber, err := tx.Area.MaxVersionNumber(ctx, areaID)
		if err != nil {
			return err
		}
		version.VersionNumber = maxNumber + 1
		if version.VersionName == "" {
			version.VersionName = fmt.Sprintf("Version %d", version.VersionNumber)
		}
		if err := tx.Area.CreateVersion(ctx, version); err != nil {
			return err
		}
		if err := tx.Area.SetCurrentVersion(ctx, areaID, version.VersionNumber); err != nil {
			return err
		}
		if source != nil {
			copied, err = tx.ProjectProduct.CopyVersion(ctx, source.ID, version.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, duplicate("another version was created at the same time, please retry")
		}
		return nil, fmt.Errorf("create version: %w", err)
	}

	log := s.logger.With(zap.String("area_id", areaID), zap.Int("version", version.VersionNumber))
	log.Info("area version created", zap.Int("copied_products", copied))

	if source != nil && source.HasFloorPlan() {
		s.copyFloorPlan(ctx, area, source, version, log)
	}
	if s.drive != nil && area.GoogleDriveFolderID != nil && *area.GoogleDriveFolderID != "" {
		s.createVersionFolders(ctx, *area.GoogleDriveFolderID, source, version, log)
	}

	return s.repos.Area.FindVersion(ctx, version.ID)
}

// copyFloorPlan copies the source object to v{N}_{filename} and starts a
// fresh translation of the copy.
func (s *AreaService) copyFloorPlan(ctx context.Context, area *entity.ProjectArea, source, version *entity.AreaVersion, log *zap.Logger) {
	if s.aps == nil {
		return
	}
	project, err := s.repos.Project.FindPlain(ctx, area.ProjectID)
	if err != nil || project.OSSBucket == nil || *project.OSSBucket == "" {
		log.Warn("project has no oss bucket, floor plan not copied", zap.Error(err))
		return
	}

	fileName := ""
	if source.FloorPlanFilename != nil {
		fileName = *source.FloorPlanFilename
	}
	newKey := FloorPlanObjectKey(version.VersionNumber, fileName)

	obj, err := s.aps.CopyObject(ctx, *project.OSSBucket, *source.FloorPlanObjectKey, newKey)
	if err != nil {
		log.Warn("copy floor plan object failed", zap.Error(err))
		return
	}
	urn := obj.URN()
	status := entity.FloorPlanPending
	if err := s.aps.Translate(ctx, urn); err != nil {
		log.Warn("start floor plan translation failed", zap.Error(err))
		status = entity.FloorPlanFailed
	}
	err = s.repos.Area.UpdateVersionFields(ctx, version.ID, map[string]interface{}{
		"floor_plan_urn":        urn,
		"floor_plan_filename":   fileName,
		"floor_plan_object_key": newKey,
		"floor_plan_status":     status,
		"floor_plan_progress":   "",
	})
	if err != nil {
		log.Warn("store copied floor plan failed", zap.Error(err))
	}
}

func (s *AreaService) createVersionFolders(ctx context.Context, areaFolderID string, source, version *entity.AreaVersion, log *zap.Logger) {
	name := gdrive.VersionFolderName(version.VersionNumber)
	if source != nil && source.GoogleDriveFolderID != nil && *source.GoogleDriveFolderID != "" {
		if _, err := s.drive.CopyFolder(ctx, *source.GoogleDriveFolderID, areaFolderID, name); err != nil {
			log.Warn("copy version folder failed", zap.Error(err))
		}
	}
	// find-or-create, so after a copy this only fills in missing subfolders
	folders, err := s.drive.CreateVersionFolders(ctx, areaFolderID, version.VersionNumber)
	if err != nil {
		log.Warn("create version folders failed", zap.Error(err))
		return
	}
	if err := s.repos.Area.UpdateVersionFields(ctx, version.ID, map[string]interface{}{"google_drive_folder_id": folders.VersionID}); err != nil {
		log.Warn("store version folder id failed", zap.Error(err))
	}
}

// FloorPlanObjectKey v{N}_{filename}
func FloorPlanObjectKey(versionNumber int, fileName string) string {
	return fmt.Sprintf("v%d_%s", versionNumber, SafeFileName(fileName))
}

func (s *AreaService) SetCurrentVersion(ctx context.Context, areaID string, versionNumber int) (*entity.ProjectArea, error) {
	if _, err := s.repos.Area.FindVersionByNumber(ctx, areaID, versionNumber); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(fmt.Sprintf("version %d does not exist", versionNumber))
		}
		return nil, fmt.Errorf("find version: %w", err)
	}
	if err := s.repos.Area.SetCurrentVersion(ctx, areaID, versionNumber); err != nil {
		return nil, fmt.Errorf("set current version: %w", err)
	}
	return s.GetArea(ctx, areaID)
}

// DeleteVersion refuses to delete an area's only version. Deleting the
// current version moves the pointer to the highest remaining number.
func (s *AreaService) DeleteVersion(ctx context.Context, versionID string) error {
	version, err := s.repos.Area.FindVersion(ctx, versionID)
	if err != nil {
		return fmt.Errorf("find version: %w", err)
	}
	area := version.Area
	if area == nil {
		if area, err = s.repos.Area.FindByID(ctx, version.AreaID); err != nil {
			return fmt.Errorf("find area: %w", err)
		}
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		count, err := tx.Area.CountVersions(ctx, version.AreaID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return invalidf("cannot delete the only version of an area")
		}
		if err := tx.Area.DeleteVersion(ctx, versionID); err != nil {
			return err
		}
		if area.CurrentVersion == version.VersionNumber {
			maxNumber, err := tx.Area.MaxVersionNumber(ctx, version.AreaID)
			if err != nil {
				return err
			}
			return tx.Area.SetCurrentVersion(ctx, version.AreaID, maxNumber)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete version: %w", err)
	}

	log := s.logger.With(zap.String("version_id", versionID), zap.Int("version", version.VersionNumber))
	if s.drive != nil && version.GoogleDriveFolderID != nil && *version.GoogleDriveFolderID != "" {
		if err := s.drive.Delete(ctx, *version.GoogleDriveFolderID); err != nil {
			log.Warn("delete version folder failed", zap.Error(err))
		}
	}
	if version.HasFloorPlan() {
		project, err := s.repos.Project.FindPlain(ctx, area.ProjectID)
		if err != nil {
			log.Warn("find project for floor plan cleanup", zap.Error(err))
			return nil
		}
		s.deleteFloorPlanObject(ctx, project, version, log)
	}
	return nil
}

func (s *AreaService) GetVersionSummary(ctx context.Context, versionID string) (*entity.AreaVersionSummary, error) {
	if _, err := s.repos.Area.FindVersion(ctx, versionID); err != nil {
		return nil, fmt.Errorf("find version: %w", err)
	}
	summary, err := s.repos.Area.VersionSummary(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("version summary: %w", err)
	}
	summary.AreaVersionID = versionID
	return summary, nil
}

var scheduleExportHeaders = []string{
	"#", "FOSS PID", "Description", "Family", "Room", "Mounting height (m)",
	"Qty", "Unit price", "Discount %", "Total", "Status", "Notes",
}

// ExportVersionSchedule renders the version's products as an xlsx schedule
func (s *AreaService) ExportVersionSchedule(ctx context.Context, versionID string) (*excelize.File, string, error) {
	version, err := s.repos.Area.FindVersion(ctx, versionID)
	if err != nil {
		return nil, "", fmt.Errorf("find version: %w", err)
	}
	items, err := s.repos.ProjectProduct.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, "", fmt.Errorf("list products: %w", err)
	}

	f := excelize.NewFile()
	sheet := "Schedule"
	f.SetSheetName("Sheet1", sheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range scheduleExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	total := decimal.Zero
	quantity := 0
	for i := range items {
		item := &items[i]
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), i+1)
		if item.Product != nil {
			f.SetCellValue(sheet, fmt.Sprintf("B%d", row), item.Product.FossPID)
			f.SetCellValue(sheet, fmt.Sprintf("C%d", row), item.Product.DescriptionShort)
			f.SetCellValue(sheet, fmt.Sprintf("D%d", row), item.Product.Family)
		}
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), item.RoomLocation)
		if item.MountingHeight.Valid {
			f.SetCellValue(sheet, fmt.Sprintf("F%d", row), item.MountingHeight.Decimal.InexactFloat64())
		}
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), item.Quantity)
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), item.UnitPrice.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), item.DiscountPercent.InexactFloat64())

		line := item.LineTotal()
		if item.TotalPrice.Valid {
			line = item.TotalPrice.Decimal
		}
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), line.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("K%d", row), item.Status)
		f.SetCellValue(sheet, fmt.Sprintf("L%d", row), item.Notes)

		total = total.Add(line)
		quantity += item.Quantity
	}

	summaryRow := len(items) + 2
	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "Total")
	f.SetCellValue(sheet, fmt.Sprintf("C%d", summaryRow), fmt.Sprintf("%d products", len(items)))
	f.SetCellValue(sheet, fmt.Sprintf("G%d", summaryRow), quantity)
	f.SetCellValue(sheet, fmt.Sprintf("J%d", summaryRow), total.Round(2).InexactFloat64())
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("L%d", summaryRow), summaryStyle)

	colWidths := []float64{5, 16, 40, 16, 16, 10, 6, 12, 10, 12, 12, 30}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	areaCode := "area"
	if version.Area != nil {
		areaCode = version.Area.AreaCode
	}
	filename := fmt.Sprintf("Schedule_%s_v%d.xlsx", areaCode, version.VersionNumber)
	return f, filename, nil
}
