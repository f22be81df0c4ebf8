package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/cloudguard/internal/auth"
	"github.com/hugh/cloudguard/internal/database"
	"github.com/hugh/cloudguard/internal/database/models"
	"github.com/hugh/cloudguard/pkg/crypto"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestJWTSecret = "test-secret-key-for-testing"
	TestAudience  = "authenticated"
)

// SetupTestDB creates a private in-memory SQLite database. A single
// connection keeps every goroutine on the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func CreateTestOrg(t *testing.T, db *gorm.DB) *models.Organization {
	t.Helper()

	org := &models.Organization{
		Name: "Test Organization",
		Slug: "test-organization-" + uuid.New().String()[:8],
	}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}
	return org
}

func CreateTestUser(t *testing.T, db *gorm.DB, org *models.Organization) *models.User {
	t.Helper()

	user := &models.User{
		Base:           models.Base{ID: uuid.New()},
		Email:          "test-" + uuid.New().String()[:8] + "@example.com",
		FullName:       "Test User",
		OrganizationID: org.ID,
		Role:           models.RoleOwner,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	user.Organization = org
	return user
}

func CreateTestEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()

	enc, err := crypto.NewEncryptor("")
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}
	return enc
}

// CreateTestCloudAccount stores creds sealed with enc.
func CreateTestCloudAccount(t *testing.T, db *gorm.DB, enc *crypto.Encryptor, orgID uuid.UUID, provider models.CloudProvider, name string, creds map[string]string) *models.CloudAccount {
	t.Helper()

	sealed, err := enc.SealJSON(creds)
	if err != nil {
		t.Fatalf("failed to seal credentials: %v", err)
	}

	account := &models.CloudAccount{
		OrganizationID: orgID,
		Provider:       provider,
		AccountName:    name,
		AccountID:      models.UnknownAccountID,
		Credentials:    sealed,
		IsActive:       true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test cloud account: %v", err)
	}
	return account
}

func CreateTestScanResult(t *testing.T, db *gorm.DB, accountID uuid.UUID, scanType models.ScanType, status models.ScanStatus) *models.ScanResult {
	t.Helper()

	scan := &models.ScanResult{
		CloudAccountID:  accountID,
		ScanType:        scanType,
		Status:          status,
		Findings:        datatypes.JSON(`{}`),
		Recommendations: datatypes.JSON(`{}`),
		SeverityCounts:  datatypes.NewJSONType(models.SeverityCounts{}),
	}
	if err := db.Create(scan).Error; err != nil {
		t.Fatalf("failed to create test scan result: %v", err)
	}
	return scan
}

func CreateTestVerifier() *auth.SessionVerifier {
	return auth.NewSessionVerifier(TestJWTSecret, TestAudience, time.Hour)
}

// GenerateTestToken issues a session token for an arbitrary identity.
func GenerateTestToken(t *testing.T, verifier *auth.SessionVerifier, id auth.Identity) string {
	t.Helper()

	token, err := verifier.IssueToken(id)
	if err != nil {
		t.Fatalf("failed to issue test token: %v", err)
	}
	return token
}

// AuthenticatedRequest creates an HTTP request with a bearer token.
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB        *gorm.DB
	Verifier  *auth.SessionVerifier
	Encryptor *crypto.Encryptor
	Org       *models.Organization
	User      *models.User
	Token     string
}

// NewTestContext creates a provisioned org and owner with a valid session.
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	verifier := CreateTestVerifier()
	org := CreateTestOrg(t, db)
	user := CreateTestUser(t, db, org)
	token := GenerateTestToken(t, verifier, auth.Identity{ID: user.ID, Email: user.Email})

	return &TestSetup{
		DB:        db,
		Verifier:  verifier,
		Encryptor: CreateTestEncryptor(t),
		Org:       org,
		User:      user,
		Token:     token,
	}
}

// AddOtherOrgUser creates a user in a fresh organization and returns its token.
func (ts *TestSetup) AddOtherOrgUser(t *testing.T) (*models.User, string) {
	t.Helper()

	org := CreateTestOrg(t, ts.DB)
	user := CreateTestUser(t, ts.DB, org)
	return user, GenerateTestToken(t, ts.Verifier, auth.Identity{ID: user.ID, Email: user.Email})
}

// UnprovisionedToken is a valid session for an identity with no User row.
func (ts *TestSetup) UnprovisionedToken(t *testing.T) string {
	t.Helper()
	return GenerateTestToken(t, ts.Verifier, auth.Identity{ID: uuid.New(), Email: "new@example.com"})
}
