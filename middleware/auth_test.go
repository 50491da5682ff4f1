package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"biscuit-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", "test-secret-key-for-unit-tests")
}

func principalHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	c.JSON(http.StatusOK, gin.H{
		"user_id":       p.UserID.String(),
		"authenticated": p.Authenticated,
	})
}

func setupTestRouter() *gin.Engine {
	r := gin.New()

	protected := r.Group("/api")
	protected.Use(AuthMiddleware())
	protected.GET("/test", principalHandler)

	optional := r.Group("/api/optional")
	optional.Use(OptionalAuth())
	optional.GET("/test", principalHandler)

	return r
}

func decodePrincipal(t *testing.T, w *httptest.ResponseRecorder) (string, bool) {
	t.Helper()
	var body struct {
		UserID        string `json:"user_id"`
		Authenticated bool   `json:"authenticated"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return body.UserID, body.Authenticated
}

func expiredToken(t *testing.T) string {
	t.Helper()
	claims := utils.Claims{
		UserID: uuid.New(),
		Email:  "expired@test.com",
		Role:   "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			Issuer:    "biscuit-backend",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	router := setupTestRouter()

	userID := uuid.New()
	token, err := utils.GenerateToken(userID, "test@test.com", "customer")
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	id, authed := decodePrincipal(t, w)
	if !authed || id != userID.String() {
		t.Errorf("expected principal %s, got %s (authenticated=%v)", userID, id, authed)
	}
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	router := setupTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/test", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuthMiddlewareMalformedToken(t *testing.T) {
	router := setupTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/test", nil)
	req.Header.Set("Authorization", "Bearer not-a-valid-token")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	router := setupTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/test", nil)
	req.Header.Set("Authorization", "Bearer "+expiredToken(t))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuthMiddlewareInvalidFormatNoBearer(t *testing.T) {
	router := setupTestRouter()

	token, _ := utils.GenerateToken(uuid.New(), "test@test.com", "customer")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/test", nil)
	// Missing "Bearer " prefix
	req.Header.Set("Authorization", token)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOptionalAuthAnonymous(t *testing.T) {
	router := setupTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/optional/test", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, authed := decodePrincipal(t, w); authed {
		t.Error("expected anonymous principal")
	}
}

func TestOptionalAuthWithToken(t *testing.T) {
	router := setupTestRouter()

	userID := uuid.New()
	token, _ := utils.GenerateToken(userID, "shopper@test.com", "customer")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/optional/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	id, authed := decodePrincipal(t, w)
	if !authed || id != userID.String() {
		t.Errorf("expected principal %s, got %s", userID, id)
	}
}

func TestOptionalAuthExpiredTokenFallsBackToGuest(t *testing.T) {
	router := setupTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/optional/test", nil)
	req.Header.Set("Authorization", "Bearer "+expiredToken(t))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, authed := decodePrincipal(t, w); authed {
		t.Error("expired token must not authenticate")
	}
}

func TestCurrentPrincipalIgnoresForeignValues(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set("user_id", "not-a-uuid")
	if CurrentPrincipal(c).Authenticated {
		t.Error("non-UUID user_id must read as anonymous")
	}

	c.Set("user_id", uuid.Nil)
	if CurrentPrincipal(c).Authenticated {
		t.Error("nil UUID must read as anonymous")
	}
}
