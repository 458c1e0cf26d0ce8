package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// LocalFiles is the read side of the in-memory storage backend.
type LocalFiles interface {
	ReadObject(objectKey string) ([]byte, string, bool)
}

// ServeLocalFile godoc
// @Summary Download a locally stored file
// @Description Only mounted when no object store is configured. The expires query parameter is ignored.
// @Tags Files
// @Produce application/pdf
// @Param key path string true "Object key"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /files/{key} [get]
func ServeLocalFile(files LocalFiles) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		body, contentType, ok := files.ReadObject(key)
		if !ok || key == "" {
			abortWithError(c, http.StatusNotFound, "File not found")
			return
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, contentType, body)
	}
}
