package middleware

import (
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/itz4blitz/glimmr-api-sub005/internal/auth"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := auth.ConfigureJWTSecret("test-jwt-secret-that-is-32-chars!", false); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
