package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fuzzy-reconciliation-service/internal/fx"
	"fuzzy-reconciliation-service/internal/models"
	"fuzzy-reconciliation-service/internal/reconciler"
	recerrors "fuzzy-reconciliation-service/pkg/errors"
)

// ReconcileRequest is the body of POST /api/v1/reconcile.
type ReconcileRequest struct {
	Bank         []*models.Transaction `json:"bank"`
	Accounts     []*models.Transaction `json:"accounts"`
	BaseCurrency string                `json:"baseCurrency"`
	Normalize    bool                  `json:"normalize"`
	Semantic     bool                  `json:"semantic"`
	StartDate    string                `json:"startDate,omitempty"`
	EndDate      string                `json:"endDate,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"normalization": s.service.CanNormalize(),
		"rates":         s.rates != nil,
	})
}

func (s *Server) reconcile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)

	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, recerrors.Wrap(err, recerrors.CategoryInput, recerrors.CodeInvalidInput, "malformed request body"))
		return
	}

	opts := reconciler.RunOptions{
		BaseCurrency: req.BaseCurrency,
		Normalize:    req.Normalize,
		UseSemantic:  req.Semantic,
	}
	var err error
	if opts.StartDate, err = optionalDate(req.StartDate, "startDate"); err != nil {
		s.fail(c, err)
		return
	}
	if opts.EndDate, err = optionalDate(req.EndDate, "endDate"); err != nil {
		s.fail(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	result, err := s.service.Run(ctx, s.loader.ApplyDefaults(req.Bank), s.loader.ApplyDefaults(req.Accounts), opts)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) rate(c *gin.Context) {
	if s.rates == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "exchange rates are not configured"})
		return
	}

	from := strings.ToUpper(strings.TrimSpace(c.Query("from")))
	to := strings.ToUpper(strings.TrimSpace(c.Query("to")))
	for name, code := range map[string]string{"from": from, "to": to} {
		if !fx.IsValidCode(code) {
			s.fail(c, recerrors.New(recerrors.CategoryInput, recerrors.CodeInvalidCurrency,
				"query parameter '"+name+"' must be a three-letter currency code"))
			return
		}
	}

	date, err := models.ParseDate(c.Query("date"))
	if err != nil {
		s.fail(c, recerrors.Wrap(err, recerrors.CategoryInput, recerrors.CodeInvalidInput,
			"query parameter 'date' must be a calendar date such as 2024-01-31"))
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	rate, err := s.rates.Rate(ctx, date, from, to)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rate)
}

func (s *Server) currencies(c *gin.Context) {
	c.JSON(http.StatusOK, fx.SupportedCurrencies)
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
}

// fail writes err as an ErrorResponse with a status derived from its category.
func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)

	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	if rerr, ok := recerrors.AsReconcilerError(err); ok {
		resp.Error = rerr.Message
		resp.Code = string(rerr.Code)
		resp.Suggestion = rerr.Suggestion
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	}

	rerr, ok := recerrors.AsReconcilerError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch rerr.Category {
	case recerrors.CategoryInput, recerrors.CategoryParse:
		return http.StatusBadRequest
	case recerrors.CategoryRate, recerrors.CategoryNetwork:
		return http.StatusBadGateway
	case recerrors.CategoryConfiguration:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func optionalDate(value, field string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	d, err := models.ParseDate(value)
	if err != nil {
		return nil, recerrors.Wrap(err, recerrors.CategoryInput, recerrors.CodeInvalidInput, "invalid "+field)
	}
	return &d, nil
}
