package handler

import (
	"path/filepath"
	"strings"

	"github.com/fosslighting/fossapp/internal/fossapp/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// CatalogHandler product catalog, customers, dashboard and currency
type CatalogHandler struct {
	svc      *service.CatalogService
	currency *service.CurrencyService
}

func NewCatalogHandler(svc *service.CatalogService, currency *service.CurrencyService) *CatalogHandler {
	return &CatalogHandler{svc: svc, currency: currency}
}

// SearchProducts GET /products?q=&family=&page=&page_size=
func (h *CatalogHandler) SearchProducts(c *gin.Context) {
	page, pageSize := GetPagination(c)
	result, err := h.svc.SearchProducts(c.Request.Context(), c.Query("q"), c.Query("family"), page, pageSize)
	if err != nil {
		handleError(c, err, "failed to search products")
		return
	}
	Success(c, result)
}

func (h *CatalogHandler) GetProduct(c *gin.Context) {
	product, err := h.svc.GetProduct(c.Request.Context(), c.Param("productId"))
	if err != nil {
		handleError(c, err, "failed to load product")
		return
	}
	Success(c, product)
}

func (h *CatalogHandler) ListFamilies(c *gin.Context) {
	families, err := h.svc.ListFamilies(c.Request.Context())
	if err != nil {
		handleError(c, err, "failed to list families")
		return
	}
	Success(c, gin.H{"items": families})
}

// ImportProducts POST /products/import (multipart: file, charset)
// .xlsx reads the first sheet; .csv is decoded with charset (utf-8 or
// windows-1253).
func (h *CatalogHandler) ImportProducts(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "file is required")
		return
	}
	defer file.Close()

	var result *service.ImportResult
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".xlsx":
		f, err := excelize.OpenReader(file)
		if err != nil {
			BadRequest(c, "cannot read workbook: "+err.Error())
			return
		}
		defer f.Close()
		result, err = h.svc.ImportProductsXLSX(c.Request.Context(), f)
		if err != nil {
			handleError(c, err, "failed to import products")
			return
		}
	case ".csv":
		charset := c.DefaultPostForm("charset", service.CharsetUTF8)
		result, err = h.svc.ImportProductsCSV(c.Request.Context(), file, charset)
		if err != nil {
			handleError(c, err, "failed to import products")
			return
		}
	default:
		BadRequest(c, "only .xlsx and .csv files can be imported")
		return
	}
	Success(c, result)
}

// SearchCustomers GET /customers?keyword=
func (h *CatalogHandler) SearchCustomers(c *gin.Context) {
	page, pageSize := GetPagination(c)
	result, err := h.svc.SearchCustomers(c.Request.Context(), c.Query("keyword"), page, pageSize)
	if err != nil {
		handleError(c, err, "failed to search customers")
		return
	}
	Success(c, result)
}

// CreateCustomer POST /customers
func (h *CatalogHandler) CreateCustomer(c *gin.Context) {
	var req service.CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	customer, err := h.svc.CreateCustomer(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err, "failed to create customer")
		return
	}
	Created(c, customer)
}

func (h *CatalogHandler) GetCustomer(c *gin.Context) {
	customer, err := h.svc.GetCustomer(c.Request.Context(), c.Param("customerId"))
	if err != nil {
		handleError(c, err, "failed to load customer")
		return
	}
	Success(c, customer)
}

func (h *CatalogHandler) Dashboard(c *gin.Context) {
	stats, err := h.svc.GetDashboardStats(c.Request.Context())
	if err != nil {
		handleError(c, err, "failed to load dashboard")
		return
	}
	Success(c, stats)
}

// ============================================================
// Currency
// ============================================================

func (h *CatalogHandler) Rates(c *gin.Context) {
	rates, err := h.currency.GetRates(c.Request.Context())
	if err != nil {
		handleError(c, err, "failed to load rates")
		return
	}
	Success(c, rates)
}

// Convert GET /currency/convert?amount=&from=&to=
func (h *CatalogHandler) Convert(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		BadRequest(c, "amount must be a number")
		return
	}
	from, to := strings.ToUpper(c.Query("from")), strings.ToUpper(c.Query("to"))
	if from == "" || to == "" {
		BadRequest(c, "from and to are required")
		return
	}

	converted, err := h.currency.ConvertCurrency(c.Request.Context(), amount, from, to)
	if err != nil {
		handleError(c, err, "failed to convert")
		return
	}
	Success(c, gin.H{
		"amount":    amount,
		"from":      from,
		"to":        to,
		"converted": converted,
	})
}
