package handler

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fosslighting/fossapp/internal/config"
	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/fosslighting/fossapp/internal/fossapp/service"
	"github.com/fosslighting/fossapp/internal/fossapp/sse"
	"github.com/fosslighting/fossapp/internal/fossapp/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMemoryRouter routes backed only by in-memory state: no database,
// no external systems.
func setupMemoryRouter(t *testing.T) *gin.Engine {
	t.Helper()
	hub := sse.NewHub(nil)
	svc := service.NewServices(service.Deps{
		Hub: hub,
		Config: &config.Config{
			Currency: config.CurrencyConfig{Base: "EUR", Rates: map[string]float64{"USD": 1.1}},
		},
	})
	t.Cleanup(svc.Tile.Close)

	router := testutil.SetupRouter()
	RegisterRoutes(router, NewHandlers(svc, hub, nil), testutil.JWTSecret)
	return router
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		err    error
		status int
		code   int
		msg    string
	}{
		{"user invalid", &service.UserError{Kind: service.ErrInvalidInput, Msg: "quantity must be at least 1"}, 400, 40000, "quantity must be at least 1"},
		{"wrapped not found", fmt.Errorf("find area: %w", repository.ErrNotFound), 404, 40400, "resource not found"},
		{"user duplicate", &service.UserError{Kind: repository.ErrDuplicate, Msg: "area code X already exists"}, 409, 40900, "area code X already exists"},
		{"referenced", fmt.Errorf("delete: %w", repository.ErrReferenced), 409, 40900, "resource is still referenced"},
		{"unavailable", fmt.Errorf("viewer: %w", service.ErrUnavailable), 503, 50300, "viewer: external service not configured"},
		{"other", errors.New("boom"), 500, 50000, "failed: boom"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			handleError(c, tc.err, "failed")

			assert.Equal(t, tc.status, w.Code)
			resp := testutil.ParseResponse(w)
			assert.Equal(t, float64(tc.code), resp["code"])
			assert.Equal(t, tc.msg, resp["message"])
		})
	}
}

func TestRoutes_RequireToken(t *testing.T) {
	router := setupMemoryRouter(t)

	w := testutil.DoRequest(router, "GET", "/api/v1/tiles/board", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = testutil.DoRequest(router, "GET", "/api/v1/tiles/board", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = testutil.DoRequest(router, "GET", "/api/v1/nope", nil, testutil.DefaultTestToken())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTileBoardRoutes(t *testing.T) {
	router := setupMemoryRouter(t)
	token := testutil.DefaultTestToken()

	for _, id := range []string{"p1", "p2"} {
		w := testutil.DoRequest(router, "POST", "/api/v1/tiles/board/bucket",
			map[string]string{"product_id": id, "foss_pid": "PID-" + id}, token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := testutil.DoRequest(router, "POST", "/api/v1/tiles/board/bucket", map[string]string{"product_id": "p1"}, token)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutil.DoRequest(router, "POST", "/api/v1/tiles/board/move", map[string]string{"active": "p1", "over": "new-tile"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	board := data["board"].(map[string]interface{})
	groups := board["tile_groups"].([]interface{})
	require.Len(t, groups, 1)
	groupID := groups[0].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(router, "PATCH", "/api/v1/tiles/board/tiles/"+groupID, map[string]string{"name": "Corridor"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutil.DoRequest(router, "POST", "/api/v1/tiles/board/move", map[string]string{"active": "p2"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoRequest(router, "GET", "/api/v1/tiles/board", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	board = testutil.ParseResponse(w)["data"].(map[string]interface{})
	assert.Len(t, board["bucket_items"].([]interface{}), 1)
	group := board["tile_groups"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Corridor", group["name"])

	// another user sees an empty board
	other := testutil.GenerateTestToken("user-2", "Other", "other@test.com", "user")
	w = testutil.DoRequest(router, "GET", "/api/v1/tiles/board", nil, other)
	require.Equal(t, http.StatusOK, w.Code)
	board = testutil.ParseResponse(w)["data"].(map[string]interface{})
	assert.Empty(t, board["bucket_items"])

	w = testutil.DoRequest(router, "DELETE", "/api/v1/tiles/board/tiles/tile-missing", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.DoRequest(router, "DELETE", "/api/v1/tiles/board/tiles/"+groupID, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	w = testutil.DoRequest(router, "DELETE", "/api/v1/tiles/board/bucket/p1", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	w = testutil.DoRequest(router, "DELETE", "/api/v1/tiles/board", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	board = testutil.ParseResponse(w)["data"].(map[string]interface{})["board"].(map[string]interface{})
	assert.Empty(t, board["bucket_items"])
}

func TestGenerateTile_UnavailableWithoutGenerator(t *testing.T) {
	router := setupMemoryRouter(t)

	w := testutil.DoRequest(router, "POST", "/api/v1/tiles/tile-1/generate", nil, testutil.DefaultTestToken())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, float64(50300), testutil.ParseResponse(w)["code"])
}

func TestViewerRoutes_WithoutAPS(t *testing.T) {
	router := setupMemoryRouter(t)

	w := testutil.DoRequest(router, "GET", "/api/viewer/auth", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = testutil.DoRequest(router, "POST", "/api/viewer/upload", map[string]string{"urn": "dXJuOmFkc2s"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	assert.Equal(t, "dXJuOmFkc2s", data["urn"])
	assert.Equal(t, true, data["cached"])

	w = testutil.DoRequest(router, "POST", "/api/v1/viewer/upload", map[string]string{"drive_file_id": "f1"}, testutil.DefaultTestToken())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCurrencyRoutes(t *testing.T) {
	router := setupMemoryRouter(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(router, "GET", "/api/v1/currency/convert?amount=100&from=eur&to=usd", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	assert.Equal(t, "110", data["converted"])
	assert.Equal(t, "USD", data["to"])

	w = testutil.DoRequest(router, "GET", "/api/v1/currency/convert?amount=1&from=EUR&to=JPY", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoRequest(router, "GET", "/api/v1/currency/convert?amount=abc&from=EUR&to=USD", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoRequest(router, "GET", "/api/v1/currency/rates", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	rates := testutil.ParseResponse(w)["data"].(map[string]interface{})
	assert.Equal(t, "EUR", rates["base"])
}

func TestImportProducts_RequiresAdmin(t *testing.T) {
	router := setupMemoryRouter(t)
	token := testutil.GenerateTestToken("user-2", "Sales", "sales@test.com", "sales")

	w := testutil.DoRequest(router, "POST", "/api/v1/products/import", nil, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestViewerUpload_RejectsOversizedBody(t *testing.T) {
	router := setupMemoryRouter(t)
	limit := maxDrawingSize
	maxDrawingSize = 1024
	t.Cleanup(func() { maxDrawingSize = limit })

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "huge.dwg")
	require.NoError(t, err)
	part.Write(bytes.Repeat([]byte("x"), 2*multipartOverhead))
	writer.Close()

	req := httptest.NewRequest("POST", "/api/viewer/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, float64(41300), testutil.ParseResponse(w)["code"])
}
