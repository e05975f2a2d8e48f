package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/greenmission/internal/common"
)

// envelope wraps every response body.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: msg})
}

// failErr maps service errors onto status codes. Internal details never
// reach the client.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		fail(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, common.ErrTokenExpired):
		fail(c, http.StatusUnauthorized, "token expired")
	case errors.Is(err, common.ErrTokenRevoked):
		fail(c, http.StatusUnauthorized, "token revoked")
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		fail(c, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, common.ErrorAlreadyExists):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		fail(c, http.StatusNotFound, "not found")
	default:
		fail(c, http.StatusInternalServerError, "internal error")
	}
}
