package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-house/internal/auth"
	bidding "auction-house/internal/biddingService"
	model "auction-house/internal/models"
	"auction-house/internal/server"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// TestUser is a signed up and logged in account.
type TestUser struct {
	ID      string
	Cookies []*http.Cookie
}

// SetupTestApp assembles the application on in-memory stores.
func SetupTestApp() *server.App {
	gin.SetMode(gin.TestMode)
	return server.NewApp(server.MemoryStores(), server.Options{
		Tokens: auth.Config{
			Secret:     "integration-test-secret-long-enough",
			Issuer:     "auction-house",
			AccessTTL:  time.Minute,
			RefreshTTL: time.Hour,
		},
		Cookies:    auth.NewCookies(false, ""),
		BcryptCost: bcrypt.MinCost,
	})
}

// ExecuteRequest executes an HTTP request with the given cookies and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url string, body []byte, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any, cookies []*http.Cookie) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := ExecuteRequest(t, router, method, url, reqBody, cookies)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// SignupAndLogin creates an account for name and logs it in.
func SignupAndLogin(t *testing.T, router *gin.Engine, name string) TestUser {
	t.Helper()
	resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/signup", map[string]any{
		"username":         name,
		"email":            name + "@example.com",
		"password":         "password-" + name,
		"confirm_password": "password-" + name,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup %s: %d %s", name, w.Code, w.Body.String())
	}
	id := resp["data"].(map[string]any)["user_id"].(string)

	_, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/login", map[string]any{
		"email":    name + "@example.com",
		"password": "password-" + name,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", name, w.Code, w.Body.String())
	}
	return TestUser{ID: id, Cookies: w.Result().Cookies()}
}

// SeedOpenAuction creates an auction for seller through the service and lets
// the sweep open it.
func SeedOpenAuction(t *testing.T, app *server.App, seller TestUser, in bidding.AuctionInput) model.Auction {
	t.Helper()
	ctx := context.Background()
	if in.Title == "" {
		in.Title = "title1"
	}
	if in.Description == "" {
		in.Description = "description1"
	}
	if in.StartTime.IsZero() {
		in.StartTime = time.Now().Add(-time.Minute)
	}
	if in.EndTime.IsZero() {
		in.EndTime = time.Now().Add(time.Hour)
	}
	a, err := app.Bidding.CreateAuction(ctx, seller.ID, in)
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}
	if opened, err := app.Bidding.OpenAuction(ctx, a.AuctionID); err != nil || !opened {
		t.Fatalf("open auction: opened=%v err=%v", opened, err)
	}
	a, err = app.Bidding.GetAuction(ctx, a.AuctionID)
	if err != nil {
		t.Fatalf("get auction: %v", err)
	}
	return a
}
