package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAuthFailure is the single opaque reply for every launch protocol
// failure. The specific failure kind goes to the logs, never to the caller.
func RespondAuthFailure(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, ErrorEnvelope{
		Error: APIError{
			Message: "authentication failed",
			Code:    "authentication_failed",
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
