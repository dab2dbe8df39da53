package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicpulse/receipts/internal/auth"
	"github.com/civicpulse/receipts/internal/intake/model"
	"github.com/civicpulse/receipts/internal/intake/repository"
	"github.com/civicpulse/receipts/internal/intake/service"
	"github.com/civicpulse/receipts/internal/receiptchain"
)

// ReceiptHandler serves the kiosk, citizen verification and operator routes.
type ReceiptHandler struct {
	svc    *service.ReceiptService
	tokens *auth.TokenIssuer // nil = operator routes are open
	logger *zap.Logger
}

// NewReceiptHandler creates a new ReceiptHandler.
// tokens may be nil to leave operator routes unauthenticated in development.
func NewReceiptHandler(svc *service.ReceiptService, tokens *auth.TokenIssuer, logger *zap.Logger) *ReceiptHandler {
	return &ReceiptHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts all receipt routes on the given router group.
func (h *ReceiptHandler) Register(rg *gin.RouterGroup) {
	operator := auth.RequireOperator(h.tokens)

	subs := rg.Group("/submissions")
	{
		subs.POST("", h.Submit)
		subs.GET("", operator, h.ListSubmissions)
		subs.PATCH("/:id/status", operator, h.UpdateStatus)
		subs.DELETE("/:id", operator, h.Withdraw)
	}

	receipts := rg.Group("/receipts")
	{
		receipts.GET("/:id", h.GetReceipt)
		receipts.GET("/:id/verify", h.VerifyByID)
		receipts.GET("/code/:code", h.GetByShortCode)
		receipts.GET("/verify-shortcode/:code", h.VerifyByShortCode)
	}

	rg.GET("/verify/:ref", h.Verify)

	ledger := rg.Group("/ledger")
	{
		ledger.GET("", h.Overview)
		ledger.GET("/links/:seq", operator, h.GetLink)
		ledger.GET("/audit", operator, h.Audit)
	}
}

// Submit handles POST /submissions. It files a complaint and returns its receipt.
func (h *ReceiptHandler) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.svc.Submit(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, "submission failed", err)
		return
	}
	RecordReceiptIssued(receipt.ChainPosition)
	c.JSON(http.StatusCreated, receipt)
}

// GetReceipt handles GET /receipts/:id.
func (h *ReceiptHandler) GetReceipt(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt ID"})
		return
	}
	receipt, err := h.svc.Fetch(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "failed to get receipt", err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// GetByShortCode handles GET /receipts/code/:code.
func (h *ReceiptHandler) GetByShortCode(c *gin.Context) {
	code, err := receiptchain.NormalizeShortCode(c.Param("code"))
	if err != nil {
		h.writeError(c, "", err)
		return
	}
	receipt, err := h.svc.FetchByShortCode(c.Request.Context(), code)
	if err != nil {
		h.writeError(c, "failed to get receipt", err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// VerifyByID handles GET /receipts/:id/verify.
func (h *ReceiptHandler) VerifyByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt ID"})
		return
	}
	h.verify(c, id.String())
}

// VerifyByShortCode handles GET /receipts/verify-shortcode/:code.
func (h *ReceiptHandler) VerifyByShortCode(c *gin.Context) {
	code, err := receiptchain.NormalizeShortCode(c.Param("code"))
	if err != nil {
		h.writeError(c, "", err)
		return
	}
	h.verify(c, code)
}

// Verify handles GET /verify/:ref where ref is a receipt ID or a short code.
func (h *ReceiptHandler) Verify(c *gin.Context) {
	h.verify(c, c.Param("ref"))
}

// verify always answers 200 once the receipt is found; integrity failures are
// reported in the body.
func (h *ReceiptHandler) verify(c *gin.Context, ref string) {
	res, err := h.svc.Verify(c.Request.Context(), ref)
	if err != nil {
		h.writeError(c, "verification failed", err)
		return
	}
	RecordVerification(res.Verified)
	c.JSON(http.StatusOK, res)
}

// Overview handles GET /ledger: chain length, head hash and the latest anchor.
func (h *ReceiptHandler) Overview(c *gin.Context) {
	head, err := h.svc.Head(c.Request.Context())
	if err != nil {
		h.writeError(c, "failed to query ledger", err)
		return
	}
	SetLedgerLength(head.Length)
	c.JSON(http.StatusOK, head)
}

// GetLink handles GET /ledger/links/:seq, returning the raw link at a zero-based sequence.
func (h *ReceiptHandler) GetLink(c *gin.Context) {
	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil || seq < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seq must be a non-negative integer"})
		return
	}
	link, err := h.svc.Link(c.Request.Context(), seq)
	if err != nil {
		if errors.Is(err, receiptchain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "link not found"})
			return
		}
		h.writeError(c, "failed to query ledger", err)
		return
	}
	c.JSON(http.StatusOK, link)
}

// Audit handles GET /ledger/audit by walking the full chain.
func (h *ReceiptHandler) Audit(c *gin.Context) {
	report, err := h.svc.Audit(c.Request.Context())
	if err != nil {
		h.writeError(c, "ledger audit failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListSubmissions handles GET /submissions (the operator queue).
func (h *ReceiptHandler) ListSubmissions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	subs, err := h.svc.ListSubmissions(c.Request.Context(), model.Status(c.Query("status")), limit, offset)
	if err != nil {
		h.writeError(c, "failed to list submissions", err)
		return
	}
	if subs == nil {
		subs = []*model.Submission{}
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs, "count": len(subs)})
}

// UpdateStatus handles PATCH /submissions/:id/status.
func (h *ReceiptHandler) UpdateStatus(c *gin.Context) {
	id, ok := submissionID(c)
	if !ok {
		return
	}
	var req model.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.svc.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.writeError(c, "failed to update submission", err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Withdraw handles DELETE /submissions/:id. This is a soft delete; the receipt stays verifiable.
func (h *ReceiptHandler) Withdraw(c *gin.Context) {
	id, ok := submissionID(c)
	if !ok {
		return
	}
	if err := h.svc.Withdraw(c.Request.Context(), id); err != nil {
		h.writeError(c, "failed to withdraw submission", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func submissionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission ID"})
		return 0, false
	}
	return id, true
}

// writeError maps service errors onto HTTP responses. msg is the body for
// unexpected failures, which are logged.
func (h *ReceiptHandler) writeError(c *gin.Context, msg string, err error) {
	var valErr *model.ErrValidation
	var chainValErr *receiptchain.ValidationError
	switch {
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Msg})
	case errors.As(err, &chainValErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": chainValErr.Msg})
	case errors.Is(err, receiptchain.ErrInvalidShortCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt ID or short code"})
	case errors.Is(err, receiptchain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "receipt not found"})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
	case errors.Is(err, receiptchain.ErrAllocationExhausted):
		RecordShortCodeExhausted()
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "receipt could not be issued, please retry"})
	default:
		h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
