// controllers/srv.go
package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"hardware_ledger/app"
	"hardware_ledger/ledger"
	"hardware_ledger/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Srv struct {
	Registry  *ledger.Registry
	Tracker   *ledger.Tracker
	Logger    *zap.Logger
	AppSess   *session.AppSessionStore // nil without redis
	WebOrigin string
}

func GetSrv(a *app.App) *Srv {
	registerJSONTagNames()
	origin := ""
	if len(a.Config.WebOrigins) > 0 {
		origin = a.Config.WebOrigins[0]
	}
	return &Srv{
		Registry:  a.Registry,
		Tracker:   a.Tracker,
		Logger:    a.Logger.Named("http"),
		AppSess:   a.AppSessions(),
		WebOrigin: origin,
	}
}

// --- helpers ---

// fail 统一错误响应：业务错误 4xx；存储/未知错误记日志后返回通用信息
func (s *Srv) fail(c *gin.Context, err error, internalMsg string, fields ...zap.Field) {
	var ve *ledger.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, app.H{"message": ve.Msg})
	case errors.Is(err, ledger.ErrItemNotFound):
		c.JSON(http.StatusNotFound, app.H{"message": "Hardware not found."})
	case errors.Is(err, ledger.ErrLoanNotFound):
		c.JSON(http.StatusNotFound, app.H{"message": "Issue record not found."})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, app.H{"message": "Not found."})
	case errors.Is(err, ledger.ErrDuplicateCode):
		c.JSON(http.StatusBadRequest, app.H{"message": "Hardware code already exists."})
	case errors.Is(err, ledger.ErrAlreadyReturned):
		c.JSON(http.StatusBadRequest, app.H{"message": "Hardware already returned."})
	case errors.Is(err, ledger.ErrItemHasOpenLoans):
		c.JSON(http.StatusBadRequest, app.H{"message": "Hardware has units on loan. Return them before deleting."})
	case errors.Is(err, ledger.ErrConflict):
		c.JSON(http.StatusBadRequest, app.H{"message": "Request conflicts with current state."})
	case errors.Is(err, ledger.ErrCapacity):
		c.JSON(http.StatusBadRequest, app.H{"message": "No available units to issue."})
	default:
		fields = append(fields,
			zap.String("request_id", app.GetRequestID(c)),
			zap.Error(err),
		)
		s.Logger.Error(internalMsg, fields...)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, app.H{"message": internalMsg})
	}
}

// bindFailed 请求体解析/校验失败
func bindFailed(c *gin.Context, err error, missingMsg string) {
	fields := FormatValidationError(err)
	msg := "Invalid request body."
	for _, reason := range fields {
		if reason == reasonRequired {
			msg = missingMsg
			break
		}
	}
	if _, ok := fields["error"]; ok {
		c.JSON(http.StatusBadRequest, app.H{"message": msg})
		return
	}
	c.JSON(http.StatusBadRequest, app.H{"message": msg, "fields": fields})
}

// 可选日期字段：nil/空串表示未提供
func optionalDate(field string, s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := ledger.ParseDate(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
