package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"tenapay/internal/config"
	"tenapay/internal/gateway"
	"tenapay/internal/infrastructure/ws"
	"tenapay/internal/repository"
	"tenapay/internal/service"
	"tenapay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler holds all service dependencies.
type Handler struct {
	userService         *service.UserService
	claimService        *service.ClaimService
	paymentService      *service.PaymentService
	webhookService      *service.WebhookService
	notificationService *service.NotificationService
	adminService        *service.AdminService
	hub                 *ws.Hub
	upgrader            websocket.Upgrader
}

func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, hub *ws.Hub, dispatcher *service.NotificationService, claimService *service.ClaimService) *Handler {
	gatewayClient := gateway.NewClient(&cfg.Gateway)
	return &Handler{
		userService:         service.NewUserService(db, cfg),
		claimService:        claimService,
		paymentService:      service.NewPaymentService(cfg, gatewayClient),
		webhookService:      service.NewWebhookService(db, rdb, cfg, dispatcher),
		notificationService: dispatcher,
		adminService:        service.NewAdminService(db),
		hub:                 hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ============================================================
// User endpoints
// ============================================================

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register creates a member account.
// POST /api/v1/users/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.userService.Register(c.Request.Context(), req.Email, req.Phone, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"account": result.Account,
		"token":   result.Token,
	})
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and returns a session token.
// POST /api/v1/users/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.userService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"account": result.Account,
		"token":   result.Token,
	})
}

// Me returns the authenticated member's profile with the current balance.
// GET /api/v1/users/me
func (h *Handler) Me(c *gin.Context) {
	account, err := h.userService.Profile(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, account)
}

// ============================================================
// Claim endpoints
// ============================================================

type ClaimRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Phone  string          `json:"phone" binding:"required"`
}

// RequestClaim debits the member's fund and pays the amount out to their
// Telebirr number. One claim per member at a time; the amount is debited
// atomically and reversed if the transfer permanently fails.
// POST /api/v1/claims
func (h *Handler) RequestClaim(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.claimService.RequestPayout(c.Request.Context(), currentUserID(c), req.Amount, req.Phone)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, result)
}

// ClaimHistory lists the member's ledger entries, newest first.
// GET /api/v1/claims/history?page=1&page_size=10
func (h *Handler) ClaimHistory(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	transactions, total, err := h.claimService.History(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// Payment endpoints
// ============================================================

type CheckoutRequest struct {
	Phone          string                 `json:"phone" binding:"required"`
	Email          string                 `json:"email"`
	Items          []gateway.CheckoutItem `json:"items" binding:"required,min=1"`
	PaymentMethods []string               `json:"payment_methods"`
}

// Checkout opens a hosted gateway session for a premium top-up. The balance
// is credited later, when the gateway reports the outcome on the webhook.
// POST /api/v1/payments/checkout
func (h *Handler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	session, err := h.paymentService.Checkout(c.Request.Context(), req.Phone, req.Email, req.Items, req.PaymentMethods)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"session_id":   session.SessionID,
		"checkout_url": session.CheckoutURL,
	})
}

// ============================================================
// Webhook endpoint
// ============================================================

type WebhookRequest struct {
	SessionID string          `json:"sessionId"`
	Phone     string          `json:"phone"`
	Email     string          `json:"email"`
	Amount    decimal.Decimal `json:"totalAmount"`
	Status    string          `json:"transactionStatus"`
}

// PaymentWebhook receives the gateway's payment outcome. Unauthenticated and
// retried by the gateway, so every answer for a processable event is HTTP 200;
// duplicates and non-success statuses are acknowledged without a new credit.
// POST /api/v1/webhook/arifpay
func (h *Handler) PaymentWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid payload: "+err.Error())
		return
	}

	result, err := h.webhookService.Ingest(c.Request.Context(), &service.WebhookEvent{
		SessionID: req.SessionID,
		Phone:     req.Phone,
		Email:     req.Email,
		Amount:    req.Amount,
		Status:    req.Status,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	if result.Ignored {
		response.Success(c, gin.H{"ignored": true})
		return
	}
	if !result.Applied {
		response.BusinessError(c, response.CodeDuplicateSession, "session already processed")
		return
	}

	response.Success(c, gin.H{
		"transaction_no": result.Transaction.TransactionNo,
		"balance":        result.Balance,
	})
}

// ============================================================
// Notification endpoints
// ============================================================

// ListNotifications returns the member's notification feed.
// GET /api/v1/notifications?limit=50
func (h *Handler) ListNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	notes, err := h.notificationService.List(c.Request.Context(), currentUserID(c), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, notes)
}

// MarkNotificationRead flips the read flag on one of the member's
// notifications.
// POST /api/v1/notifications/:id/read
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	noteID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid notification id")
		return
	}

	updated, err := h.notificationService.MarkRead(c.Request.Context(), currentUserID(c), noteID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !updated {
		response.NotFound(c, "notification not found")
		return
	}
	response.Success(c, gin.H{"read": true})
}

// DeleteNotification removes one of the member's notifications.
// DELETE /api/v1/notifications/:id
func (h *Handler) DeleteNotification(c *gin.Context) {
	noteID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid notification id")
		return
	}

	if err := h.notificationService.Delete(c.Request.Context(), currentUserID(c), noteID); err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// ============================================================
// Admin endpoints
// ============================================================

// AdminOverview returns the platform-wide financial snapshot.
// GET /api/v1/admin/overview
func (h *Handler) AdminOverview(c *gin.Context) {
	overview, err := h.adminService.Overview(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, overview)
}

// AdminUserDetail returns one member's account and ledger aggregates.
// GET /api/v1/admin/users/:id?page=1&page_size=20
func (h *Handler) AdminUserDetail(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid user id")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	detail, err := h.adminService.UserDetail(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, detail)
}

// AdminAudits lists recent audit trail entries.
// GET /api/v1/admin/audits?limit=50
func (h *Handler) AdminAudits(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	audits, err := h.adminService.Audits(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, audits)
}

// AdminReconcile re-checks one account against its ledger.
// POST /api/v1/admin/reconcile/:id
func (h *Handler) AdminReconcile(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid user id")
		return
	}

	diff, err := h.adminService.ReconcileAccount(c.Request.Context(), currentUserID(c), userID)
	if err != nil {
		if errors.Is(err, service.ErrLedgerDivergence) {
			response.BusinessError(c, response.CodeLedgerDivergence, "balance diverges from ledger by "+diff.StringFixed(2))
			return
		}
		h.respondError(c, err)
		return
	}
	response.Success(c, gin.H{"consistent": true})
}

// ============================================================
// Websocket endpoint
// ============================================================

// Notify upgrades the connection and streams notifications to the member
// until the client disconnects.
// GET /api/v1/ws?token=...
func (h *Handler) Notify(c *gin.Context) {
	userID := currentUserID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Handler] websocket upgrade failed: userID=%d, err=%v", userID, err)
		return
	}

	h.hub.Register(userID, conn)
	defer func() {
		h.hub.Unregister(userID, conn)
		conn.Close()
	}()

	// Server push only; the read loop just detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ============================================================
// Error mapping
// ============================================================

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidPhone),
		errors.Is(err, service.ErrInvalidPayload):
		response.ParamError(c, err.Error())
	case errors.Is(err, repository.ErrInsufficientFunds):
		response.BusinessError(c, response.CodeInsufficientFunds, "insufficient funds")
	case errors.Is(err, repository.ErrAccountNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, response.CodeAccountNotFound, "account not found")
	case errors.Is(err, repository.ErrClaimNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, response.CodeClaimNotFound, "claim not found")
	case errors.Is(err, service.ErrReconciliationRequired):
		response.BusinessError(c, response.CodeTransferFailed, "transfer failed, the debited amount is being refunded")
	case errors.Is(err, service.ErrEmailTaken):
		response.BusinessError(c, response.CodeEmailTaken, "email already registered")
	case errors.Is(err, service.ErrInvalidCredentials):
		response.ErrorWithStatus(c, http.StatusUnauthorized, response.CodeInvalidCredentials, "invalid credentials")
	case errors.Is(err, service.ErrLedgerDivergence):
		response.BusinessError(c, response.CodeLedgerDivergence, "ledger divergence detected")
	default:
		response.ServerError(c, err.Error())
	}
}
