// Package httpapi exposes the service over HTTP: gin handlers, the request
// authentication middleware, and the response envelope shared by every
// endpoint.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/cropwise/auth-service/internal/apperr"
)

// envelope is the uniform response body. code is 0 on success; on failure it
// mirrors the HTTP status so clients can branch on either.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Code: 0, Message: "success", Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Code: status, Message: message, Data: nil})
}

// respondAppError maps a taxonomy error onto the wire. Internal detail stays
// out of the body; callers log it separately.
func respondAppError(c *gin.Context, err error) {
	respondError(c, apperr.HTTPStatus(err), apperr.ClientMessage(err))
}
