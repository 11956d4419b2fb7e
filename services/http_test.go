package services

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varnstead/gatewall/shared"
)

func TestPassthrough_EchoesResolvedClientIP(t *testing.T) {
	cls, _, _ := newTestClassifier(t, testSettings())
	h := &HttpService{}

	app := fiber.New()
	app.Use(cls.Guard())
	app.All("/*", h.passthrough)

	req := httptest.NewRequest("GET", "/some/origin/path", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.60")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"client_ip":"203.0.113.60"`)
	assert.Contains(t, string(body), `"status":"allowed"`)
}

func TestLimitStatus_ReportsEveryStatWindow(t *testing.T) {
	eventSvc := newTestEventStore(t)
	h := &HttpService{counterSvc: newTestCounter(eventSvc)}
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.Add(-time.Minute))
	}

	app := fiber.New()
	app.Get("/limits/:ip", h.limitStatus)

	resp, err := app.Test(httptest.NewRequest("GET", "/limits/1.2.3.4", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	for _, window := range []string{"5", "10", "15", "30", "60"} {
		assert.Contains(t, string(body), `"`+window+`":3`)
	}
}

func TestTestNotification_UnconfiguredSMTPFails(t *testing.T) {
	h := &HttpService{emailSvc: &EmailService{}}

	app := fiber.New(fiber.Config{ErrorHandler: h.handleError})
	app.Post("/notifications/test", h.testNotification)

	resp, err := app.Test(httptest.NewRequest("POST", "/notifications/test", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestRequiredAuth_RejectsBadCredentials(t *testing.T) {
	auth := &AuthService{
		jwtSvc: &JWTService{TokenDuration: time.Hour, jwtSecretKey: "test-secret"},
	}

	app := fiber.New()
	app.Get("/protected", auth.RequiredAuth(), func(c *fiber.Ctx) error {
		return shared.ResponseOK(c, nil)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/protected", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequiredAuth_AcceptsIssuedToken(t *testing.T) {
	jwtSvc := &JWTService{TokenDuration: time.Hour, jwtSecretKey: "test-secret"}
	auth := &AuthService{jwtSvc: jwtSvc}

	token, err := jwtSvc.ToJWT("operator")
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/protected", auth.RequiredAuth(), func(c *fiber.Ctx) error {
		return shared.ResponseOK(c, c.Locals(shared.OperatorID))
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "operator")
}
