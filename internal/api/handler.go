package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"exchange-service/internal/apperr"
	"exchange-service/internal/identity"
	"exchange-service/internal/service"
	"exchange-service/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	facade      *service.Facade
	verifier    *identity.TokenVerifier
	corsOrigins []string
	checks      map[string]ReadinessCheck
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(facade *service.Facade, verifier *identity.TokenVerifier, corsOrigins []string) *Handler {
	return &Handler{
		facade:      facade,
		verifier:    verifier,
		corsOrigins: corsOrigins,
		checks:      make(map[string]ReadinessCheck),
		logger:      util.ComponentLogger("http"),
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(h.corsMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(identity.RequireIdentity(h.verifier))
	{
		v1.POST("/requests", h.createRequest)
		v1.GET("/requests", h.listRequests)
		v1.POST("/requests/:id/fulfill", h.fulfillRequest)

		v1.POST("/transactions", h.createTransaction)
		v1.GET("/transactions", h.listTransactions)
		v1.POST("/transactions/:id/accept", h.decide(service.DecisionAccept))
		v1.POST("/transactions/:id/reject", h.decide(service.DecisionReject))
		v1.POST("/transactions/:id/complete", h.completeTransaction)
		v1.POST("/transactions/:id/feedback", h.submitFeedback)
		v1.GET("/transactions/:id/feedback", h.transactionFeedback)
		v1.POST("/transactions/:id/reports", h.reportBuyer)

		v1.GET("/sellers/:id/rating", h.sellerRating)
		v1.GET("/sellers/:id/feedback", h.sellerFeedback)
		v1.GET("/reports", h.listReports)

		v1.GET("/notifications", h.listNotifications)
		v1.POST("/notifications/:id/read", h.markNotificationRead)

		v1.GET("/stats", h.activityStats)
	}
}

func (h *Handler) corsMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(h.corsOrigins) == 0 || (len(h.corsOrigins) == 1 && h.corsOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = h.corsOrigins
	}
	return cors.New(cfg)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck probes every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failing := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failing[name] = err.Error()
		}
	}
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"failing": failing,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createRequest(c *gin.Context) {
	var req service.CreateRequestRequest
	if !bindJSON(c, &req) {
		return
	}

	mr, err := h.facade.RequestMaterial(c.Request.Context(), identity.FromGin(c), &req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mr)
}

func (h *Handler) listRequests(c *gin.Context) {
	reqs, err := h.facade.BuyerRequests(c.Request.Context(), identity.FromGin(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

type fulfillBody struct {
	MaterialID string `json:"material_id"`
}

func (h *Handler) fulfillRequest(c *gin.Context) {
	var body fulfillBody
	if c.Request.ContentLength > 0 && !bindJSON(c, &body) {
		return
	}

	mr, err := h.facade.LinkListing(c.Request.Context(), identity.FromGin(c), c.Param("id"), body.MaterialID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, mr)
}

func (h *Handler) createTransaction(c *gin.Context) {
	var req service.CreateTransactionRequest
	if !bindJSON(c, &req) {
		return
	}

	tx, err := h.facade.InquireAboutMaterial(c.Request.Context(), identity.FromGin(c), &req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// listTransactions lists the buyer's transactions, or for sellers the
// inquiries addressed to their organization (?material_id= narrows to one listing)
func (h *Handler) listTransactions(c *gin.Context) {
	actor := identity.FromGin(c)

	var (
		txs interface{}
		err error
	)
	if actor.IsSeller() {
		txs, err = h.facade.SellerTransactions(c.Request.Context(), actor, c.Query("material_id"))
	} else {
		txs, err = h.facade.BuyerTransactions(c.Request.Context(), actor)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *Handler) decide(decision service.Decision) gin.HandlerFunc {
	return func(c *gin.Context) {
		tx, err := h.facade.RespondToInquiry(c.Request.Context(), identity.FromGin(c), c.Param("id"), decision)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, tx)
	}
}

func (h *Handler) completeTransaction(c *gin.Context) {
	tx, err := h.facade.ConfirmDelivery(c.Request.Context(), identity.FromGin(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *Handler) submitFeedback(c *gin.Context) {
	var req service.SubmitFeedbackRequest
	if !bindJSON(c, &req) {
		return
	}

	fb, err := h.facade.RateSeller(c.Request.Context(), identity.FromGin(c), c.Param("id"), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"feedback":        fb,
		"display_comment": fb.DisplayComment(),
	})
}

func (h *Handler) transactionFeedback(c *gin.Context) {
	fbs, err := h.facade.TransactionFeedback(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": fbs})
}

func (h *Handler) reportBuyer(c *gin.Context) {
	var req service.ReportBuyerRequest
	if !bindJSON(c, &req) {
		return
	}

	report, err := h.facade.ReportBuyer(c.Request.Context(), identity.FromGin(c), c.Param("id"), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (h *Handler) listReports(c *gin.Context) {
	reports, err := h.facade.SellerReports(c.Request.Context(), identity.FromGin(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (h *Handler) sellerRating(c *gin.Context) {
	summary, err := h.facade.SellerRating(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) sellerFeedback(c *gin.Context) {
	fbs, err := h.facade.SellerFeedback(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": fbs})
}

func (h *Handler) listNotifications(c *gin.Context) {
	inbox, err := h.facade.Notifications(c.Request.Context(), identity.FromGin(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inbox)
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	n, err := h.facade.AcknowledgeNotification(c.Request.Context(), identity.FromGin(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) activityStats(c *gin.Context) {
	stats, err := h.facade.ActivityStats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(apperr.KindValidation),
			"details": err.Error(),
		})
		return false
	}
	return true
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidState:
		return http.StatusConflict
	case apperr.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	details := err.Error()
	if kind == apperr.KindInternal {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		details = "internal error"
	}

	c.JSON(status, gin.H{
		"error":   string(kind),
		"details": details,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
