package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/menta2k/brochure-composer/pkg/annotate"
	"github.com/menta2k/brochure-composer/pkg/loader"
	"github.com/menta2k/brochure-composer/pkg/products"
	"github.com/menta2k/brochure-composer/pkg/region"
	"github.com/menta2k/brochure-composer/pkg/session"
	"github.com/menta2k/brochure-composer/pkg/store"
)

// Response is the envelope of every successful JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the envelope of every failed JSON reply.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func ok(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string, err error) {
	resp := ErrorResponse{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrTextNotFound),
		errors.Is(err, region.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, region.ErrKindMismatch),
		errors.Is(err, annotate.ErrTooFewPoints),
		errors.Is(err, session.ErrNoZoomTarget),
		errors.Is(err, products.ErrTooMany),
		errors.Is(err, products.ErrInvalidImage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, loader.ErrLocalFile):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func failErr(c *gin.Context, message string, err error) {
	fail(c, statusOf(err), message, err)
}
