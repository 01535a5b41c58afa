package serverutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMissing = errors.New("missing thing")

func TestStatusFor(t *testing.T) {
	mappings := []StatusMapping{{Err: errMissing, Code: 404}}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"fiber error", fiber.NewError(fiber.StatusBadRequest, "bad"), 400},
		{"validation", &ValidationError{Fields: map[string]string{"Query": "required"}}, 400},
		{"mapped and wrapped", fmt.Errorf("load: %w", errMissing), 404},
		{"unknown", errors.New("boom"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err, mappings))
		})
	}
}

func TestValidateRequest(t *testing.T) {
	type req struct {
		DataID string `validate:"required,uuid4"`
		Query  string `validate:"required"`
	}

	assert.NoError(t, ValidateRequest(req{DataID: "8c1c9f4e-2d53-4b8b-9d7e-5a4f2c1b0a9d", Query: "q"}))

	err := ValidateRequest(req{DataID: "nope"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, map[string]string{"DataID": "uuid4", "Query": "required"}, ve.Fields)
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware(StatusMapping{Err: errMissing, Code: 404}))
	app.Get("/missing", func(c *fiber.Ctx) error { return errMissing })
	app.Get("/crash", func(c *fiber.Ctx) error { return errors.New("secret detail") })

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	var body BaseResponse[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "missing thing", body.Message)

	resp, err = app.Test(httptest.NewRequest("GET", "/crash", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.NotContains(t, string(raw), "secret detail")
}

func TestJwtMiddleware(t *testing.T) {
	const secret = "s3cret"
	app := fiber.New()
	app.Use(JwtMiddleware(secret))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(fmt.Sprint(c.Locals("user_id")))
	})

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "analyst-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", 401},
		{"garbage", "Bearer abc", 401},
		{"valid", "Bearer " + signed, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	open := fiber.New()
	open.Use(JwtMiddleware(""))
	open.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(204) })
	resp, err := open.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
}
