package gateway

import (
	"errors"
	"net/http"

	"github.com/example/lensshop/pkg/usererr"
	"github.com/example/lensshop/pkg/verification"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

var errBadRequest = usererr.Validation(map[string]string{"form": "The request could not be read."})

func (g *Gateway) classify(c *gin.Context, err error) (int, errorBody) {
	if ue, ok := usererr.As(err); ok {
		return usererr.HTTPStatus(ue.Kind()), errorBody{
			Code:    string(ue.Kind()),
			Message: ue.Message(),
			Fields:  ue.Fields(),
		}
	}
	switch {
	case errors.Is(err, verification.ErrInFlight):
		return http.StatusConflict, errorBody{Code: "IN_FLIGHT", Message: "This request is already in progress."}
	case errors.Is(err, verification.ErrCooldownActive):
		return http.StatusTooManyRequests, errorBody{Code: "COOLDOWN", Message: "Please wait before requesting another code."}
	case errors.Is(err, verification.ErrWrongPhase):
		return http.StatusConflict, errorBody{Code: "WRONG_STEP", Message: "This action is not available right now."}
	case errors.Is(err, verification.ErrClosed):
		return http.StatusGone, errorBody{Code: "SESSION_EXPIRED", Message: "Your session has expired. Please reload the page."}
	}
	g.logger.Error("Unhandled request error", zap.String("path", c.Request.URL.Path), zap.Error(err))
	return http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: usererr.MsgUnexpected}
}

func (g *Gateway) fail(c *gin.Context, err error) {
	status, body := g.classify(c, err)
	g.metrics.Error(body.Code)
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}
