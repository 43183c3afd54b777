package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paperquery/paperquery/internal/faults"
	"github.com/paperquery/paperquery/internal/repository"
)

// respondError maps a pipeline fault to its HTTP status. Untranslated errors
// fall through to 500 so internals never leak a raw stack to callers with a
// misleading 4xx.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch faults.KindOf(err) {
	case faults.KindValidation:
		status = http.StatusBadRequest
		if errors.Is(err, faults.ErrTooManyChunks) {
			status = http.StatusRequestEntityTooLarge
		}
	case faults.KindTransient:
		status = http.StatusBadGateway
	case faults.KindMalformedResponse, faults.KindEmptyGeneration, faults.KindUnsupportedModel:
		status = http.StatusInternalServerError
	}
	if errors.Is(err, repository.ErrNotFound) {
		status = http.StatusNotFound
	}

	c.JSON(status, ErrorResponse{
		Error: err.Error(),
		Kind:  faults.KindOf(err).String(),
	})
}
