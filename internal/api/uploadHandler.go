package api

import (
	"errors"
	"net/http"

	"whisper/internal/types"
	"whisper/internal/uploads"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func UploadHandler(store *uploads.Store, maxBody int64, log *zap.Logger) gin.HandlerFunc {
	log = log.Named("upload")
	return func(c *gin.Context) {
		if maxBody > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		}
		form, err := c.MultipartForm()
		if err != nil {
			fail(c, http.StatusBadRequest, "expected multipart form with files")
			return
		}

		urls, err := store.SaveAll(form.File["files"])
		if err != nil {
			uploadFailed(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, types.UploadResponse{URLs: urls})
	}
}

// Base64UploadHandler accepts a single file inlined in a JSON body.
func Base64UploadHandler(store *uploads.Store, maxBody int64, log *zap.Logger) gin.HandlerFunc {
	log = log.Named("upload")
	return func(c *gin.Context) {
		if maxBody > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		}
		var payload types.Base64UploadRequest
		if !bind(c, &payload) {
			return
		}

		url, err := store.SaveBase64(payload.File)
		if err != nil {
			uploadFailed(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, types.UploadResponse{URLs: []string{url}})
	}
}

func uploadFailed(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, uploads.ErrTooLarge):
		fail(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, uploads.ErrNoFiles),
		errors.Is(err, uploads.ErrTooManyFiles),
		errors.Is(err, uploads.ErrUnsupportedType),
		errors.Is(err, uploads.ErrBadEncoding):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		log.Error("upload failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to store attachment")
	}
}
