package handlers

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openAPISpec []byte

// OpenAPI serves the API description. Clients render it themselves.
func OpenAPI(ctx *gin.Context) {
	ctx.Header("Cache-Control", "public, max-age=300")
	ctx.Data(http.StatusOK, "application/yaml; charset=utf-8", openAPISpec)
}
