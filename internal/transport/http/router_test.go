package http

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	stdhttp "net/http"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ecoaction/internal/config"
	"ecoaction/internal/database"
	"ecoaction/internal/handler"
	"ecoaction/internal/service"
)

// =============================================================================
// TEST SERVER
// =============================================================================

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

var otpPattern = regexp.MustCompile(`\b\d{6}\b`)

func (m *captureMailer) Send(_ context.Context, to, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[to] = otpPattern.FindString(body)
	return nil
}

func (m *captureMailer) code(addr string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[addr]
}

type testServer struct {
	t      *testing.T
	router stdhttp.Handler
	mailer *captureMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		DBDriver:      config.DriverSQLite,
		JWTSecret:     "router-test-secret",
		SessionMaxAge: 3600,
		OTPTTL:        10 * time.Minute,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mailer := &captureMailer{codes: make(map[string]string)}

	svc := newServices(db, cfg, logger, mailer, nil, nil, nil, nil, service.WithOTPCost(bcrypt.MinCost))

	router := NewRouter(RouterConfig{
		AuthHandler:       handler.NewAuthHandler(svc.auth, svc.user, false),
		UserHandler:       handler.NewUserHandler(svc.user, svc.media),
		FriendshipHandler: handler.NewFriendshipHandler(svc.friendship),
		ActionHandler:     handler.NewActionHandler(svc.ledger),
		ImageHandler:      handler.NewImageHandler(svc.image, svc.ledger),
		Tokens:            svc.auth,
		Logger:            logger,
		Registry:          prometheus.NewRegistry(),
	})

	return &testServer{t: t, router: router, mailer: mailer}
}

func (s *testServer) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(method, path, token string, payload any) *httptest.ResponseRecorder {
	s.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(s.t, err)
		body = bytes.NewReader(raw)
	}
	return s.do(method, path, token, body, "application/json")
}

// login runs the OTP flow and returns the session token and user id.
func (s *testServer) login(email string) (string, int64) {
	s.t.Helper()

	rec := s.doJSON(stdhttp.MethodPost, "/auth/otp", "", map[string]string{"email": email})
	require.Equal(s.t, stdhttp.StatusOK, rec.Code, rec.Body.String())

	code := s.mailer.code(email)
	require.Len(s.t, code, 6)

	rec = s.doJSON(stdhttp.MethodPost, "/auth/otp/verify", "", map[string]string{"email": email, "otp": code})
	require.Equal(s.t, stdhttp.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID int64 `json:"user_id"`
		} `json:"user"`
	}
	decode(s.t, rec, &resp)
	require.NotEmpty(s.t, resp.Token)
	return resp.Token, resp.User.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func photoForm(t *testing.T, actionType, points string) (*bytes.Buffer, string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, img))

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("action_type", actionType))
	require.NoError(t, w.WriteField("points", points))

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="bottle.png"`)
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(encoded.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return &body, w.FormDataContentType()
}

// =============================================================================
// TESTS
// =============================================================================

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(stdhttp.MethodGet, "/health", "", nil, "")

	assert.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_MetricsExposeRequestCounter(t *testing.T) {
	s := newTestServer(t)
	s.do(stdhttp.MethodGet, "/health", "", nil, "")

	rec := s.do(stdhttp.MethodGet, "/metrics", "", nil, "")

	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ecoaction_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestRouter_LoginSetsSessionCookie(t *testing.T) {
	s := newTestServer(t)

	rec := s.doJSON(stdhttp.MethodPost, "/auth/otp", "", map[string]string{"email": "ada@example.com"})
	require.Equal(t, stdhttp.StatusOK, rec.Code)

	rec = s.doJSON(stdhttp.MethodPost, "/auth/otp/verify", "", map[string]string{
		"email": "ada@example.com",
		"otp":   s.mailer.code("ada@example.com"),
	})
	require.Equal(t, stdhttp.StatusOK, rec.Code)

	var session *stdhttp.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == service.SessionCookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	// The cookie alone authenticates browser clients.
	req := httptest.NewRequest(stdhttp.MethodGet, "/me", nil)
	req.AddCookie(session)
	me := httptest.NewRecorder()
	s.router.ServeHTTP(me, req)

	require.Equal(t, stdhttp.StatusOK, me.Code, me.Body.String())
	assert.Contains(t, me.Body.String(), `"user_name":"ada"`)
}

func TestRouter_VerifyRejectsWrongCode(t *testing.T) {
	s := newTestServer(t)
	s.doJSON(stdhttp.MethodPost, "/auth/otp", "", map[string]string{"email": "ada@example.com"})

	wrong := "000000"
	if s.mailer.code("ada@example.com") == wrong {
		wrong = "111111"
	}
	rec := s.doJSON(stdhttp.MethodPost, "/auth/otp/verify", "", map[string]string{"email": "ada@example.com", "otp": wrong})

	assert.Equal(t, stdhttp.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`)
}

func TestRouter_RequestOTPValidatesEmail(t *testing.T) {
	s := newTestServer(t)

	rec := s.doJSON(stdhttp.MethodPost, "/auth/otp", "", map[string]string{"email": "not-an-email"})

	assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"email"`)
}

func TestRouter_LoginTrimsPaddedInput(t *testing.T) {
	s := newTestServer(t)

	rec := s.doJSON(stdhttp.MethodPost, "/auth/otp", "", map[string]string{"email": " Ada@Example.com "})
	require.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())

	rec = s.doJSON(stdhttp.MethodPost, "/auth/otp/verify", "", map[string]string{
		"email": "ada@example.com ",
		"otp":   " " + s.mailer.code("ada@example.com"),
	})
	require.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"email":"ada@example.com"`)
}

func TestRouter_ProtectedRoutesRequireSession(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{stdhttp.MethodGet, "/me"},
		{stdhttp.MethodPost, "/actions"},
		{stdhttp.MethodPost, "/images"},
		{stdhttp.MethodGet, "/friends"},
		{stdhttp.MethodPost, "/friends/requests"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, "", nil, "")
			assert.Equal(t, stdhttp.StatusUnauthorized, rec.Code)
		})
	}

	rec := s.do(stdhttp.MethodGet, "/me", "garbage", nil, "")
	assert.Equal(t, stdhttp.StatusUnauthorized, rec.Code)
}

func TestRouter_ActionsAndLeaderboard(t *testing.T) {
	s := newTestServer(t)
	token, userID := s.login("grace@example.com")
	_, _ = s.login("alan@example.com")

	rec := s.doJSON(stdhttp.MethodPost, "/actions", token, map[string]any{
		"action_type": "recycle",
		"points":      10,
		"timestamp":   "2024-03-10T08:30:00Z",
	})
	require.Equal(t, stdhttp.StatusCreated, rec.Code, rec.Body.String())

	rec = s.doJSON(stdhttp.MethodPut, "/me/points", token, map[string]any{"points": 42})
	require.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(stdhttp.MethodGet, "/leaderboard?limit=5", "", nil, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	var board struct {
		Leaderboard []struct {
			Rank   int   `json:"rank"`
			UserID int64 `json:"user_id"`
			Points int64 `json:"points"`
		} `json:"leaderboard"`
	}
	decode(t, rec, &board)
	require.Len(t, board.Leaderboard, 2)
	assert.Equal(t, userID, board.Leaderboard[0].UserID)
	assert.Equal(t, int64(42), board.Leaderboard[0].Points)
	assert.Equal(t, 1, board.Leaderboard[0].Rank)

	rec = s.do(stdhttp.MethodGet, "/actions/recent", "", nil, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_name":"grace"`)

	rec = s.do(stdhttp.MethodGet, "/users/"+itoa(userID)+"/activity", "", nil, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"2024-03-10":10`)

	rec = s.do(stdhttp.MethodGet, "/users/"+itoa(userID)+"/actions/count", "", nil, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestRouter_LogActionRejectsNegativePoints(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.login("grace@example.com")

	rec := s.doJSON(stdhttp.MethodPost, "/actions", token, map[string]any{"action_type": "recycle", "points": -1})

	assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"VALIDATION_ERROR"`)
}

func TestRouter_PhotoUploadAwardsBonus(t *testing.T) {
	s := newTestServer(t)
	token, userID := s.login("grace@example.com")

	body, contentType := photoForm(t, "cleanup", "10")
	rec := s.do(stdhttp.MethodPost, "/images", token, body, contentType)
	require.Equal(t, stdhttp.StatusCreated, rec.Code, rec.Body.String())

	var res struct {
		ImageID      int64 `json:"image_id"`
		ActionPoints int64 `json:"action_points"`
	}
	decode(t, rec, &res)
	assert.Equal(t, int64(15), res.ActionPoints)

	rec = s.do(stdhttp.MethodGet, "/users/"+itoa(userID), "", nil, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"points":15`)

	rec = s.do(stdhttp.MethodGet, "/images/"+itoa(res.ImageID), "", nil, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = s.do(stdhttp.MethodGet, "/images/"+itoa(res.ImageID)+"/thumbnail", "", nil, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	rec = s.do(stdhttp.MethodGet, "/users/"+itoa(userID)+"/photos", "", nil, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bottle.png"`)
}

func TestRouter_ImageNotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(stdhttp.MethodGet, "/images/999", "", nil, "")

	assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"NOT_FOUND"`)
}

func TestRouter_AvatarUnavailableWithoutStorage(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.login("grace@example.com")

	rec := s.do(stdhttp.MethodPost, "/me/avatar", token, strings.NewReader(""), "multipart/form-data; boundary=x")

	assert.Equal(t, stdhttp.StatusServiceUnavailable, rec.Code)
}

func TestRouter_FriendshipLifecycle(t *testing.T) {
	s := newTestServer(t)
	graceToken, graceID := s.login("grace@example.com")
	alanToken, alanID := s.login("alan@example.com")

	rec := s.doJSON(stdhttp.MethodPost, "/friends/requests", graceToken, map[string]any{"friend_id": alanID})
	require.Equal(t, stdhttp.StatusCreated, rec.Code, rec.Body.String())
	var sent struct {
		Friendship struct {
			ID int64 `json:"friendship_id"`
		} `json:"friendship"`
	}
	decode(t, rec, &sent)

	// Duplicate in the other direction.
	rec = s.doJSON(stdhttp.MethodPost, "/friends/requests", alanToken, map[string]any{"friend_id": graceID})
	assert.Equal(t, stdhttp.StatusConflict, rec.Code)

	// Only the addressee may accept.
	acceptPath := "/friends/requests/" + itoa(sent.Friendship.ID) + "/accept"
	rec = s.do(stdhttp.MethodPost, acceptPath, graceToken, nil, "")
	assert.Equal(t, stdhttp.StatusForbidden, rec.Code)

	rec = s.do(stdhttp.MethodGet, "/friends/requests", alanToken, nil, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"friend_id":`+itoa(graceID))

	rec = s.do(stdhttp.MethodPost, acceptPath, alanToken, nil, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(stdhttp.MethodGet, "/friends?accepted_only=true", graceToken, nil, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"accepted"`)

	rec = s.do(stdhttp.MethodDelete, "/friends/"+itoa(alanID), graceToken, nil, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(stdhttp.MethodDelete, "/friends/"+itoa(alanID), graceToken, nil, "")
	assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
}

func TestRouter_FriendsRejectsBadFlag(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.login("grace@example.com")

	rec := s.do(stdhttp.MethodGet, "/friends?accepted_only=maybe", token, nil, "")

	assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)
}

func TestRouter_ChangeProfileConflict(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.login("grace@example.com")
	s.login("alan@example.com")

	rec := s.doJSON(stdhttp.MethodPatch, "/me", token, map[string]any{"username": "alan"})
	assert.Equal(t, stdhttp.StatusConflict, rec.Code)

	rec = s.doJSON(stdhttp.MethodPatch, "/me", token, map[string]any{"username": "GraceH"})
	require.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"user_name":"graceh"`)
}

func TestRouter_DeviceRegistration(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.login("grace@example.com")

	rec := s.doJSON(stdhttp.MethodPost, "/me/devices", token, map[string]string{
		"token":    "ExponentPushToken[abc]",
		"platform": "ios",
	})
	require.Equal(t, stdhttp.StatusCreated, rec.Code, rec.Body.String())

	rec = s.doJSON(stdhttp.MethodPost, "/me/devices", token, map[string]string{
		"token":    "ExponentPushToken[abc]",
		"platform": "windows",
	})
	assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)

	rec = s.doJSON(stdhttp.MethodDelete, "/me/devices", token, map[string]string{"token": "ExponentPushToken[abc]"})
	assert.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
