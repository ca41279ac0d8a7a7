package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/datatypes"
)

// CatalogService products, customers and dashboard figures
type CatalogService struct {
	repos *repository.Repositories
}

func NewCatalogService(repos *repository.Repositories) *CatalogService {
	return &CatalogService{repos: repos}
}

// Fold lowercases s, strips diacritics and collapses whitespace so that
// "Φωτιστικό" matches "φωτιστικο".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

type ProductListResult struct {
	Items      []entity.Product `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

type CustomerListResult struct {
	Items      []entity.Customer `json:"items"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func (s *CatalogService) SearchProducts(ctx context.Context, query, family string, page, pageSize int) (*ProductListResult, error) {
	page, pageSize = normalizePage(page, pageSize)
	products, total, err := s.repos.Catalog.SearchProducts(ctx, Fold(query), strings.TrimSpace(family), page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	if products == nil {
		products = []entity.Product{}
	}
	return &ProductListResult{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*entity.Product, error) {
	product, err := s.repos.Catalog.FindProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	return product, nil
}

func (s *CatalogService) ListFamilies(ctx context.Context) ([]string, error) {
	families, err := s.repos.Catalog.ListFamilies(ctx)
	if err != nil {
		return nil, err
	}
	if families == nil {
		families = []string{}
	}
	return families, nil
}

func (s *CatalogService) SearchCustomers(ctx context.Context, keyword string, page, pageSize int) (*CustomerListResult, error) {
	page, pageSize = normalizePage(page, pageSize)
	customers, total, err := s.repos.Catalog.SearchCustomers(ctx, strings.TrimSpace(keyword), page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}
	if customers == nil {
		customers = []entity.Customer{}
	}
	return &CustomerListResult{
		Items:      customers,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

func (s *CatalogService) GetCustomer(ctx context.Context, id string) (*entity.Customer, error) {
	customer, err := s.repos.Catalog.FindCustomer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	return customer, nil
}

// CreateCustomerRequest body of POST /customers
type CreateCustomerRequest struct {
	CustomerCode string `json:"customer_code" binding:"required"`
	Name         string `json:"name" binding:"required"`
	NameEn       string `json:"name_en"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	City         string `json:"city"`
	Country      string `json:"country"`
}

func (s *CatalogService) CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (*entity.Customer, error) {
	code := strings.ToUpper(strings.TrimSpace(req.CustomerCode))
	name := strings.TrimSpace(req.Name)
	if code == "" || name == "" {
		return nil, invalidf("customer code and name are required")
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		return nil, invalidf("invalid email %q", req.Email)
	}
	now := time.Now()
	customer := &entity.Customer{
		ID:           uuid.New().String(),
		CustomerCode: code,
		Name:         name,
		NameEn:       strings.TrimSpace(req.NameEn),
		Email:        req.Email,
		Phone:        req.Phone,
		City:         req.City,
		Country:      req.Country,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repos.Catalog.CreateCustomer(ctx, customer); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, duplicate(fmt.Sprintf("customer code %s already exists", code))
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return customer, nil
}

// parsePrice accepts 1234.56, 1234,56, 1.234,56 and 1,234.56. The
// separator that appears last is the decimal one.
func parsePrice(cell string) (decimal.Decimal, error) {
	cell = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cell)
	comma, dot := strings.LastIndex(cell, ","), strings.LastIndex(cell, ".")
	switch {
	case comma > dot:
		cell = strings.ReplaceAll(cell, ".", "")
		if strings.Count(cell, ",") > 1 {
			cell = strings.ReplaceAll(cell, ",", "")
		} else {
			cell = strings.Replace(cell, ",", ".", 1)
		}
	case dot > comma:
		cell = strings.ReplaceAll(cell, ",", "")
		if strings.Count(cell, ".") > 1 {
			cell = strings.ReplaceAll(cell, ".", "")
		}
	}
	return decimal.NewFromString(cell)
}

func (s *CatalogService) GetDashboardStats(ctx context.Context) (*entity.DashboardStats, error) {
	stats, err := s.repos.Catalog.DashboardStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return stats, nil
}

// ============================================================
// Catalog import
// ============================================================

// ImportResult outcome of a catalog import
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// Supported CSV charsets
const (
	CharsetUTF8        = "utf-8"
	CharsetWindows1253 = "windows-1253"
)

// header aliases onto product columns; anything else lands in specs
var productColumns = map[string]string{
	"foss_pid":          "foss_pid",
	"pid":               "foss_pid",
	"supplier":          "supplier_name",
	"supplier_name":     "supplier_name",
	"description":       "description_short",
	"description_short": "description_short",
	"description_long":  "description_long",
	"family":            "family",
	"class":             "class_name",
	"class_name":        "class_name",
	"price":             "price",
	"currency":          "currency",
	"image_url":         "image_url",
}

func headerKey(h string) string {
	return strings.ReplaceAll(Fold(strings.TrimPrefix(h, "\ufeff")), " ", "_")
}

// ImportProductsXLSX reads the first sheet; row 1 is the header
func (s *CatalogService) ImportProductsXLSX(ctx context.Context, f *excelize.File) (*ImportResult, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, invalidf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	return s.importRows(ctx, rows)
}

// ImportProductsCSV decodes the given charset to UTF-8 before parsing
func (s *CatalogService) ImportProductsCSV(ctx context.Context, reader io.Reader, charset string) (*ImportResult, error) {
	rows, err := ReadCSVRows(reader, charset)
	if err != nil {
		return nil, err
	}
	return s.importRows(ctx, rows)
}

// ReadCSVRows reads every record, decoding utf-8 or windows-1253 input
func ReadCSVRows(reader io.Reader, charset string) ([][]string, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", CharsetUTF8, "utf8":
	case CharsetWindows1253, "cp1253":
		reader = transform.NewReader(reader, charmap.Windows1253.NewDecoder())
	default:
		return nil, invalidf("unsupported charset %q", charset)
	}

	br := bufio.NewReader(reader)
	r := csv.NewReader(br)
	// spreadsheets saved with a Greek locale separate fields with ';'
	if head, _ := br.Peek(4096); detectSemicolon(head) {
		r.Comma = ';'
	}
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, invalidf("invalid csv: %v", err)
	}
	return rows, nil
}

func detectSemicolon(head []byte) bool {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	return bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(","))
}

func (s *CatalogService) importRows(ctx context.Context, rows [][]string) (*ImportResult, error) {
	products, result, err := ParseProductRows(rows)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Catalog.UpsertProducts(ctx, products); err != nil {
		return nil, fmt.Errorf("upsert products: %w", err)
	}
	result.Imported = len(products)
	return result, nil
}

// ParseProductRows maps header + data rows onto products. Rows without a
// FOSS PID or with an unparsable price are skipped and reported.
func ParseProductRows(rows [][]string) ([]entity.Product, *ImportResult, error) {
	if len(rows) == 0 {
		return nil, nil, invalidf("file is empty")
	}

	header := rows[0]
	columns := make([]string, len(header))
	specNames := make([]string, len(header))
	hasPID := false
	for i, h := range header {
		if col, ok := productColumns[headerKey(h)]; ok {
			columns[i] = col
			if col == "foss_pid" {
				hasPID = true
			}
			continue
		}
		specNames[i] = strings.TrimSpace(h)
	}
	if !hasPID {
		return nil, nil, invalidf("header must contain a foss_pid column")
	}

	result := &ImportResult{}
	seen := make(map[string]int)
	var products []entity.Product
	now := time.Now()

	for n, row := range rows[1:] {
		lineNo := n + 2
		p := entity.Product{
			ID:        uuid.New().String(),
			Currency:  "EUR",
			Specs:     datatypes.JSONMap{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		var rowErr error
		for i, cell := range row {
			if i >= len(header) {
				break
			}
			cell = strings.TrimSpace(cell)
			switch columns[i] {
			case "foss_pid":
				p.FossPID = cell
			case "supplier_name":
				p.SupplierName = cell
			case "description_short":
				p.DescriptionShort = cell
			case "description_long":
				p.DescriptionLong = cell
			case "family":
				p.Family = cell
			case "class_name":
				p.ClassName = cell
			case "price":
				if cell == "" {
					continue
				}
				price, err := parsePrice(cell)
				if err != nil || price.IsNegative() {
					rowErr = fmt.Errorf("line %d: invalid price %q", lineNo, cell)
					continue
				}
				p.Price = price
			case "currency":
				if cell != "" {
					p.Currency = strings.ToUpper(cell)
				}
			case "image_url":
				p.ImageURL = cell
			default:
				if specNames[i] != "" && cell != "" {
					p.Specs[specNames[i]] = cell
				}
			}
		}

		if p.FossPID == "" {
			if !rowIsEmpty(row) {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: missing foss_pid", lineNo))
			}
			continue
		}
		if rowErr != nil {
			result.Skipped++
			result.Errors = append(result.Errors, rowErr.Error())
			continue
		}
		p.SearchText = Fold(strings.Join([]string{p.FossPID, p.SupplierName, p.DescriptionShort, p.DescriptionLong, p.Family, p.ClassName}, " "))

		// last row wins; a batch upsert cannot touch the same key twice
		if idx, ok := seen[p.FossPID]; ok {
			products[idx] = p
			result.Skipped++
			continue
		}
		seen[p.FossPID] = len(products)
		products = append(products, p)
	}
	return products, result, nil
}

func rowIsEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
