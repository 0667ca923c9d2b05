package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/events"
	"expense-tracker/internal/models"
	"expense-tracker/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ExpenseEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.ExpenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// APITestSuite exercises the HTTP API against an in-memory database.
type APITestSuite struct {
	suite.Suite
	db        *storage.DB
	router    http.Handler
	now       time.Time
	publisher *recordingPublisher
}

// SetupTest runs before each test
func (suite *APITestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	suite.now = time.Now()
	tokens := auth.NewTokenIssuer("test-secret", auth.TokenTTL, func() time.Time { return suite.now })
	suite.publisher = &recordingPublisher{}

	h := NewHandlers(db, tokens, bcrypt.MinCost, suite.publisher)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	suite.router = r
}

// TearDownTest runs after each test
func (suite *APITestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *APITestSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(suite.T(), err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *APITestSuite) decode(w *httptest.ResponseRecorder, v any) {
	require.NoError(suite.T(), json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}

func (suite *APITestSuite) errorMessage(w *httptest.ResponseRecorder) string {
	var body map[string]string
	suite.decode(w, &body)
	return body["error"]
}

func (suite *APITestSuite) register(username, password string) int64 {
	w := suite.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": username, "password": password})
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())

	var body struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	suite.decode(w, &body)
	require.Equal(suite.T(), username, body.Username)
	return body.ID
}

func (suite *APITestSuite) login(username, password string) string {
	w := suite.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())

	var body map[string]string
	suite.decode(w, &body)
	require.NotEmpty(suite.T(), body["token"])
	return body["token"]
}

func (suite *APITestSuite) userToken(username string) string {
	suite.register(username, "pw-"+username)
	return suite.login(username, "pw-"+username)
}

func (suite *APITestSuite) createExpense(token string, body any) int64 {
	w := suite.do(http.MethodPost, "/api/expenses", token, body)
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())

	var out map[string]int64
	suite.decode(w, &out)
	require.NotZero(suite.T(), out["id"])
	return out["id"]
}

func (suite *APITestSuite) list(token string) []map[string]any {
	w := suite.do(http.MethodGet, "/api/expenses", token, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())

	var out []map[string]any
	suite.decode(w, &out)
	return out
}

func (suite *APITestSuite) TestHealth() {
	w := suite.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.JSONEq(suite.T(), `{"status":"ok"}`, w.Body.String())
}

func (suite *APITestSuite) TestReady() {
	w := suite.do(http.MethodGet, "/api/ready", "", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.JSONEq(suite.T(), `{"status":"ready"}`, w.Body.String())

	require.NoError(suite.T(), suite.db.Close())
	suite.db = nil

	w = suite.do(http.MethodGet, "/api/ready", "", nil)
	assert.Equal(suite.T(), http.StatusServiceUnavailable, w.Code)
	assert.Equal(suite.T(), "database unavailable", suite.errorMessage(w))

	w = suite.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code, "liveness does not depend on the database")
}

func (suite *APITestSuite) TestRegisterRequiresFields() {
	for _, body := range []any{
		map[string]string{"username": "alice"},
		map[string]string{"password": "secret"},
		map[string]string{"username": "   ", "password": "secret"},
		nil,
	} {
		w := suite.do(http.MethodPost, "/api/auth/register", "", body)
		assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
		assert.Equal(suite.T(), "username and password required", suite.errorMessage(w))
	}
}

func (suite *APITestSuite) TestRegisterMalformedBody() {
	w := suite.do(http.MethodPost, "/api/auth/register", "", `{"username":`)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Contains(suite.T(), suite.errorMessage(w), "invalid request body")
}

func (suite *APITestSuite) TestRegisterTwiceFails() {
	suite.register("alice", "secret")

	w := suite.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": "alice", "password": "other"})
	assert.Equal(suite.T(), http.StatusInternalServerError, w.Code)
	assert.Contains(suite.T(), suite.errorMessage(w), "UNIQUE")

	count, err := suite.db.UserCount(context.Background())
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)
}

func (suite *APITestSuite) TestRegisterStoresHash() {
	id := suite.register("alice", "secret")

	user, err := suite.db.GetUserByUsername(context.Background(), "alice")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), id, user.ID)
	assert.NotEqual(suite.T(), "secret", user.PasswordHash)
	assert.True(suite.T(), auth.CheckPassword("secret", user.PasswordHash))
}

func (suite *APITestSuite) TestLogin() {
	id := suite.register("alice", "secret")
	token := suite.login("alice", "secret")

	identity, err := auth.NewTokenIssuer("test-secret", 0, func() time.Time { return suite.now }).Verify(token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.Identity{UserID: id, Username: "alice"}, identity)
}

func (suite *APITestSuite) TestLoginRequiresFields() {
	w := suite.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice"})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Equal(suite.T(), "username and password required", suite.errorMessage(w))
}

func (suite *APITestSuite) TestLoginFailuresAreUniform() {
	suite.register("alice", "secret")

	wrongPassword := suite.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
	unknownUser := suite.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "mallory", "password": "nope"})

	assert.Equal(suite.T(), http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(suite.T(), http.StatusUnauthorized, unknownUser.Code)
	assert.Equal(suite.T(), "invalid credentials", suite.errorMessage(wrongPassword))
	assert.Equal(suite.T(), wrongPassword.Body.String(), unknownUser.Body.String())
}

func (suite *APITestSuite) TestAuthGuard() {
	token := suite.userToken("alice")

	expired := token
	suite.now = suite.now.Add(auth.TokenTTL + time.Minute)
	defer func() { suite.now = suite.now.Add(-auth.TokenTTL - time.Minute) }()

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"absent", "", "missing authorization"},
		{"no scheme", token, "invalid authorization"},
		{"wrong scheme", "Basic " + token, "invalid authorization"},
		{"extra part", "Bearer " + token + " extra", "invalid authorization"},
		{"empty token", "Bearer ", "invalid authorization"},
		{"garbage token", "Bearer abc.def.ghi", "invalid token"},
		{"expired token", "Bearer " + expired, "invalid token"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			req := httptest.NewRequest(http.MethodGet, "/api/expenses", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			suite.router.ServeHTTP(w, req)

			assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
			assert.Equal(suite.T(), tt.want, suite.errorMessage(w))
		})
	}
}

func (suite *APITestSuite) TestForeignSecretRejected() {
	suite.register("alice", "secret")
	user, err := suite.db.GetUserByUsername(context.Background(), "alice")
	require.NoError(suite.T(), err)

	forged, err := auth.NewTokenIssuer("other-secret", 0, nil).Issue(user)
	require.NoError(suite.T(), err)

	w := suite.do(http.MethodGet, "/api/expenses", forged, nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
	assert.Equal(suite.T(), "invalid token", suite.errorMessage(w))
}

func (suite *APITestSuite) TestCreateAndListRoundTrip() {
	token := suite.userToken("alice")

	id := suite.createExpense(token, map[string]any{"title": "Coffee", "amount": 3.50, "category": "Food"})

	expenses := suite.list(token)
	require.Len(suite.T(), expenses, 1)
	e := expenses[0]
	assert.EqualValues(suite.T(), id, e["id"])
	assert.Equal(suite.T(), "Coffee", e["title"])
	assert.InDelta(suite.T(), 3.50, e["amount"], 1e-9)
	assert.Equal(suite.T(), "Food", e["category"])
	assert.Nil(suite.T(), e["incurred_at"])
	assert.NotEmpty(suite.T(), e["created_at"])

	w := suite.do(http.MethodGet, "/api/expenses", token, nil)
	assert.Contains(suite.T(), w.Body.String(), `"amount":3.50`)
}

func (suite *APITestSuite) TestCreateAcceptsStringAmountAndDate() {
	token := suite.userToken("alice")

	suite.createExpense(token, map[string]any{"title": "Lunch", "amount": "12.40", "incurred_at": "2024-03-09"})

	expenses := suite.list(token)
	require.Len(suite.T(), expenses, 1)
	assert.InDelta(suite.T(), 12.40, expenses[0]["amount"], 1e-9)
	assert.Equal(suite.T(), "2024-03-09", expenses[0]["incurred_at"])
	assert.Nil(suite.T(), expenses[0]["category"])
}

func (suite *APITestSuite) TestCreateRequiresTitleAndAmount() {
	token := suite.userToken("alice")

	for _, body := range []any{
		map[string]any{"title": "Coffee"},
		map[string]any{"amount": 3.5},
		map[string]any{"title": "", "amount": 3.5},
		map[string]any{"title": "Coffee", "amount": 0},
	} {
		w := suite.do(http.MethodPost, "/api/expenses", token, body)
		assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
		assert.Equal(suite.T(), "title and amount required", suite.errorMessage(w))
	}

	w := suite.do(http.MethodPost, "/api/expenses", token, map[string]any{"title": "Coffee", "amount": "lots"})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	assert.Empty(suite.T(), suite.list(token))
}

func (suite *APITestSuite) TestListOrdering() {
	token := suite.userToken("alice")

	suite.createExpense(token, map[string]any{"title": "undated", "amount": 1})
	suite.createExpense(token, map[string]any{"title": "january", "amount": 1, "incurred_at": "2024-01-15"})
	suite.createExpense(token, map[string]any{"title": "march", "amount": 1, "incurred_at": "2024-03-01"})

	var titles []string
	for _, e := range suite.list(token) {
		titles = append(titles, e["title"].(string))
	}
	assert.Equal(suite.T(), []string{"march", "january", "undated"}, titles)
}

func (suite *APITestSuite) TestUpdateOverwritesAllFields() {
	token := suite.userToken("alice")
	id := suite.createExpense(token, map[string]any{"title": "Coffee", "amount": 3.5, "category": "Food", "incurred_at": "2024-03-09"})

	w := suite.do(http.MethodPut, fmt.Sprintf("/api/expenses/%d", id), token, map[string]any{"title": "Tea", "amount": 2})
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(suite.T(), fmt.Sprintf(`{"id":%d}`, id), w.Body.String())

	expenses := suite.list(token)
	require.Len(suite.T(), expenses, 1)
	assert.Equal(suite.T(), "Tea", expenses[0]["title"])
	assert.InDelta(suite.T(), 2.0, expenses[0]["amount"], 1e-9)
	assert.Nil(suite.T(), expenses[0]["category"])
	assert.Nil(suite.T(), expenses[0]["incurred_at"])
}

func (suite *APITestSuite) TestUpdateWithMissingTitleIsStoreError() {
	token := suite.userToken("alice")
	id := suite.createExpense(token, map[string]any{"title": "Coffee", "amount": 3.5})

	w := suite.do(http.MethodPut, fmt.Sprintf("/api/expenses/%d", id), token, map[string]any{"amount": 2})
	assert.Equal(suite.T(), http.StatusInternalServerError, w.Code)
	assert.Contains(suite.T(), suite.errorMessage(w), "NOT NULL")
}

func (suite *APITestSuite) TestInvalidExpenseID() {
	token := suite.userToken("alice")

	w := suite.do(http.MethodDelete, "/api/expenses/abc", token, nil)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Equal(suite.T(), "invalid expense id", suite.errorMessage(w))
}

// Acting on another user's expense affects nothing yet still reports success.
func (suite *APITestSuite) TestCrossUserIsolation() {
	alice := suite.userToken("alice")
	bob := suite.userToken("bob")

	id := suite.createExpense(alice, map[string]any{"title": "Coffee", "amount": 3.5, "category": "Food"})

	assert.Empty(suite.T(), suite.list(bob))

	path := fmt.Sprintf("/api/expenses/%d", id)
	w := suite.do(http.MethodPut, path, bob, map[string]any{"title": "Hijacked", "amount": 999})
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.JSONEq(suite.T(), fmt.Sprintf(`{"id":%d}`, id), w.Body.String())

	w = suite.do(http.MethodDelete, path, bob, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)

	expenses := suite.list(alice)
	require.Len(suite.T(), expenses, 1)
	assert.Equal(suite.T(), "Coffee", expenses[0]["title"])
	assert.InDelta(suite.T(), 3.5, expenses[0]["amount"], 1e-9)

	assert.Equal(suite.T(), []string{events.TypeExpenseCreated}, suite.publisher.types(),
		"no-op update and delete publish nothing")
}

func (suite *APITestSuite) TestDeleteExpense() {
	token := suite.userToken("alice")
	id := suite.createExpense(token, map[string]any{"title": "Coffee", "amount": 3.5})

	w := suite.do(http.MethodDelete, fmt.Sprintf("/api/expenses/%d", id), token, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.JSONEq(suite.T(), fmt.Sprintf(`{"id":%d}`, id), w.Body.String())
	assert.Empty(suite.T(), suite.list(token))

	// Deleting again is a silent no-op.
	w = suite.do(http.MethodDelete, fmt.Sprintf("/api/expenses/%d", id), token, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
}

func (suite *APITestSuite) TestEventsPublished() {
	token := suite.userToken("alice")
	id := suite.createExpense(token, map[string]any{"title": "Coffee", "amount": 3.5})
	suite.do(http.MethodPut, fmt.Sprintf("/api/expenses/%d", id), token, map[string]any{"title": "Tea", "amount": 2})
	suite.do(http.MethodDelete, fmt.Sprintf("/api/expenses/%d", id), token, nil)

	assert.Equal(suite.T(), []string{
		events.TypeExpenseCreated,
		events.TypeExpenseUpdated,
		events.TypeExpenseDeleted,
	}, suite.publisher.types())
	for _, e := range suite.publisher.events {
		assert.Equal(suite.T(), id, e.ExpenseID)
	}
}

func (suite *APITestSuite) TestPublishFailureDoesNotFailRequest() {
	suite.publisher.err = errors.New("broker unavailable")
	token := suite.userToken("alice")

	suite.createExpense(token, map[string]any{"title": "Coffee", "amount": 3.5})
	assert.Len(suite.T(), suite.list(token), 1)
}

func (suite *APITestSuite) TestStatistics() {
	token := suite.userToken("alice")
	suite.createExpense(token, map[string]any{"title": "Coffee", "amount": 3, "category": "Food", "incurred_at": "2024-03-02"})
	suite.createExpense(token, map[string]any{"title": "Lunch", "amount": 9, "category": "Food", "incurred_at": "2024-03-03"})
	suite.createExpense(token, map[string]any{"title": "Bus", "amount": 4, "category": "Transport", "incurred_at": "2024-03-04"})
	suite.createExpense(token, map[string]any{"title": "Later", "amount": 50, "category": "Food", "incurred_at": "2024-04-01"})

	w := suite.do(http.MethodGet, "/api/expenses/stats?year=2024&month=3", token, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())

	var stats StatsResponse
	suite.decode(w, &stats)
	assert.Equal(suite.T(), 2024, stats.Year)
	assert.Equal(suite.T(), 3, stats.Month)
	assert.Equal(suite.T(), "March", stats.MonthName)
	assert.Equal(suite.T(), models.Amount(1600), stats.Total)
	require.Len(suite.T(), stats.Categories, 2)
	assert.Equal(suite.T(), "Food", stats.Categories[0].Category)
	assert.Equal(suite.T(), 2, stats.Categories[0].Count)
	assert.InDelta(suite.T(), 75.0, stats.Categories[0].Percentage, 1e-9)
	assert.Equal(suite.T(), "Transport", stats.Categories[1].Category)
}

func (suite *APITestSuite) TestStatisticsEmptyMonth() {
	token := suite.userToken("alice")

	w := suite.do(http.MethodGet, "/api/expenses/stats?year=2020&month=13", token, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code)

	var stats StatsResponse
	suite.decode(w, &stats)
	assert.Equal(suite.T(), 2020, stats.Year)
	assert.Equal(suite.T(), int(time.Now().Month()), stats.Month, "invalid month falls back to the current one")
	assert.Zero(suite.T(), stats.Total)
	assert.Empty(suite.T(), stats.Categories)
	assert.True(suite.T(), strings.Contains(w.Body.String(), `"categories":[]`))
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
