package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/fosslighting/fossapp/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	JWTSecret     = "fossapp-test-jwt-secret"
	DefaultUserID = "test-user-001"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Repos  *repository.Repositories
	Router *gin.Engine
	T      *testing.T
}

// projectRoot returns the directory holding go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func loadEnv() {
	if root := projectRoot(); root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB returns a migrated database that only this test uses.
// With FOSSAPP_TESTCONTAINERS=1 a throwaway Postgres container is started;
// otherwise a fresh database is created on TEST_DB_* and dropped on
// cleanup. The test is skipped when neither is reachable.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	var dsn string
	if os.Getenv("FOSSAPP_TESTCONTAINERS") == "1" {
		dsn = startPostgres(t)
	} else {
		dsn = createDatabase(t)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
	})

	if err := repository.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func baseDSN(dbname string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("TEST_DB_HOST", "127.0.0.1"),
		getEnv("TEST_DB_PORT", "5432"),
		getEnv("TEST_DB_USER", "fossapp"),
		getEnv("TEST_DB_PASSWORD", "fossapp"),
		dbname)
}

// createDatabase creates fossapp_test_<n> next to the admin database
func createDatabase(t *testing.T) string {
	t.Helper()
	adminDSN := baseDSN(getEnv("TEST_DB_NAME", "postgres"))

	admin, err := gorm.Open(postgres.Open(adminDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err == nil {
		if sqlDB, dbErr := admin.DB(); dbErr == nil {
			err = sqlDB.Ping()
		}
	}
	if err != nil {
		t.Skipf("postgres not available (set TEST_DB_* or FOSSAPP_TESTCONTAINERS=1): %v", err)
	}

	name := fmt.Sprintf("fossapp_test_%d", time.Now().UnixNano())
	if err := admin.Exec("CREATE DATABASE " + name).Error; err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		admin.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", name))
		if sqlDB, _ := admin.DB(); sqlDB != nil {
			sqlDB.Close()
		}
	})
	return baseDSN(name)
}

// startPostgres runs postgres:16-alpine for the duration of the test
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "fossapp",
				"POSTGRES_PASSWORD": "fossapp",
				"POSTGRES_DB":       "fossapp",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}
	return fmt.Sprintf("host=%s port=%s user=fossapp password=fossapp dbname=fossapp sslmode=disable", host, port.Port())
}

// SetupRouter gin router in test mode
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup API group behind the JWT middleware
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken signs a token the way the auth provider does
func GenerateTestToken(userID, name, email, role string) string {
	now := time.Now()
	claims := middleware.JWTClaims{
		Email: email,
		Name:  name,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    "fossapp",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			ID:        fmt.Sprintf("test-jti-%d", now.UnixNano()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken token of the default admin user
func DefaultTestToken() string {
	return GenerateTestToken(DefaultUserID, "Test Admin", "admin@test.com", "admin")
}

// DoRequest executes a JSON request against the router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse decodes the {code, message, data} envelope
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedProduct inserts a catalog product
func SeedProduct(t *testing.T, db *gorm.DB, fossPID, description string, price int64) *entity.Product {
	t.Helper()
	now := time.Now()
	product := &entity.Product{
		ID:               uuid.New().String(),
		FossPID:          fossPID,
		SupplierName:     "Test Supplier",
		DescriptionShort: description,
		Family:           "Downlights",
		Price:            decimal.NewFromInt(price),
		Currency:         "EUR",
		SearchText:       fossPID + " " + description,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}
	return product
}

// SeedCustomer inserts a customer
func SeedCustomer(t *testing.T, db *gorm.DB, code, name string) *entity.Customer {
	t.Helper()
	customer := &entity.Customer{
		ID:           uuid.New().String(),
		CustomerCode: code,
		Name:         name,
		City:         "Athens",
		Country:      "GR",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := db.Create(customer).Error; err != nil {
		t.Fatalf("Failed to seed customer: %v", err)
	}
	return customer
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
