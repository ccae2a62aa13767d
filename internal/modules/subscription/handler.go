package subscription

import (
	"errors"
	"html/template"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/braingame/waitlist-core/internal/models"
	"github.com/braingame/waitlist-core/internal/pkg/emailrisk"
	"github.com/braingame/waitlist-core/internal/pkg/ratelimit"
	"github.com/braingame/waitlist-core/internal/pkg/response"
	"github.com/braingame/waitlist-core/internal/pkg/tracking"
)

const (
	msgInvalidFormat     = "Invalid request format"
	msgProvideValidEmail = "Please provide a valid email address"
	msgTooManyRequests   = "Too many requests. Please try again later."
)

// Handler translates HTTP requests into service calls. The subscribe path
// runs the full chain: parse, email presence, rate limit, validation,
// service, response mapping. Confirm and unsubscribe skip the limiter and
// validator; their inputs are tokens and already-recorded addresses.
type Handler struct {
	svc     *Service
	limiter *ratelimit.Limiter
	tracker *tracking.Service
	logger  *zap.Logger

	validate func(string) emailrisk.Result
}

func NewHandler(svc *Service, limiter *ratelimit.Limiter, tracker *tracking.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc:      svc,
		limiter:  limiter,
		tracker:  tracker,
		logger:   logger,
		validate: emailrisk.Validate,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/subscribe")
	g.POST("", h.subscribe)
	g.GET("/confirm", h.confirm) // ?token=...
	g.POST("/confirm", h.confirm)
	g.GET("/unsubscribe", h.unsubscribe) // ?email=..., the mailed link
	g.POST("/unsubscribe", h.unsubscribe)
	g.GET("/subscribers", authMW, h.listSubscribers)
	g.GET("/subscribers/count", h.subscriberCount)
	g.POST("/broadcast", authMW, h.broadcast)
}

func (h *Handler) subscribe(c *gin.Context) {
	var body struct {
		Email interface{} `json:"email"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, msgInvalidFormat)
		return
	}

	raw, _ := body.Email.(string)
	email := strings.TrimSpace(raw)
	if email == "" {
		// Rejected before the limiter is consulted: malformed requests must
		// not consume a rate-limit slot.
		response.BadRequest(c, msgProvideValidEmail)
		return
	}

	clientID := clientIdentifier(c)
	limit := h.limiter.Check(c.Request.Context(), clientID)
	if !limit.Allowed {
		response.TooManyRequests(c, msgTooManyRequests, limit.RetryAfterSeconds)
		return
	}

	if v := h.validate(email); !v.IsValid {
		// The specific reason stays server-side.
		h.logger.Info("email rejected by validator",
			zap.String("reason", v.Reason), zap.Int("risk_score", v.RiskScore))
		h.tracker.Track("email_validation_failed", map[string]interface{}{
			"reason":    v.Reason,
			"riskScore": v.RiskScore,
		})
		response.BadRequest(c, msgProvideValidEmail)
		return
	}

	h.tracker.Track("email_subscribe_attempt", map[string]interface{}{
		"email":  email,
		"source": "api",
		"ip":     clientID,
	})

	metadata := map[string]interface{}{
		"userAgent": c.Request.UserAgent(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	result, err := h.svc.Subscribe(c.Request.Context(), email, "api", metadata)
	if err != nil {
		h.logger.Error("subscribe failed", zap.String("email", email), zap.Error(err))
		h.tracker.Track("email_subscribe_error", map[string]interface{}{
			"email":  email,
			"error":  err.Error(),
			"source": "api",
		})
		response.InternalError(c)
		return
	}

	if result.Success {
		h.tracker.Track("email_subscribe_success", map[string]interface{}{
			"email":                email,
			"source":               "api",
			"requiresConfirmation": result.RequiresConfirmation,
		})
	}
	response.Outcome(c, result.Success, result.Message)
}

func (h *Handler) confirm(c *gin.Context) {
	token := c.Query("token")
	if token == "" && c.Request.Method != "GET" {
		var body struct {
			Token string `json:"token"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			token = body.Token
		}
	}
	if strings.TrimSpace(token) == "" {
		response.BadRequest(c, "Missing confirmation token")
		return
	}

	result, err := h.svc.Confirm(c.Request.Context(), token)
	if err != nil {
		h.logger.Error("confirm failed", zap.Error(err))
		response.InternalError(c)
		return
	}
	response.Outcome(c, result.Success, result.Message)
}

func (h *Handler) unsubscribe(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		var body struct {
			Email string `json:"email"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			email = body.Email
		}
	}
	if strings.TrimSpace(email) == "" {
		response.BadRequest(c, "Missing email address")
		return
	}

	result, err := h.svc.Unsubscribe(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("unsubscribe failed", zap.Error(err))
		response.InternalError(c)
		return
	}
	response.Outcome(c, result.Success, result.Message)
}

func (h *Handler) listSubscribers(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !models.ValidStatus(status) {
		response.BadRequest(c, "Unknown status filter")
		return
	}

	subs, err := h.svc.ExportSubscribers(c.Request.Context(), status)
	if err != nil {
		h.logger.Error("export subscribers failed", zap.Error(err))
		response.InternalError(c)
		return
	}
	response.OK(c, gin.H{"data": subs, "count": len(subs)})
}

func (h *Handler) broadcast(c *gin.Context) {
	var body struct {
		Title string `json:"title"`
		HTML  string `json:"html"`
		Text  string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, msgInvalidFormat)
		return
	}
	if strings.TrimSpace(body.Title) == "" || strings.TrimSpace(body.HTML) == "" {
		response.BadRequest(c, "Missing update title or content")
		return
	}

	sent, err := h.svc.Broadcast(c.Request.Context(), body.Title, template.HTML(body.HTML), body.Text)
	if err != nil {
		if errors.Is(err, ErrMailDisabled) {
			response.BadRequest(c, "Mail delivery is not configured")
			return
		}
		h.logger.Error("broadcast failed", zap.Error(err))
		response.InternalError(c)
		return
	}
	response.OK(c, gin.H{"success": true, "sent": sent})
}

func (h *Handler) subscriberCount(c *gin.Context) {
	n, err := h.svc.CountConfirmed(c.Request.Context())
	if err != nil {
		h.logger.Error("subscriber count failed", zap.Error(err))
		response.InternalError(c)
		return
	}
	response.OK(c, gin.H{"count": n})
}

// clientIdentifier derives the rate-limit key: first X-Forwarded-For entry,
// else X-Real-IP, else a constant sentinel.
func clientIdentifier(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
		return "unknown"
	}
	if real := strings.TrimSpace(c.GetHeader("X-Real-IP")); real != "" {
		return real
	}
	return "unknown"
}
