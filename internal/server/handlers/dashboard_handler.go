package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/scheduler"
	"github.com/mamadbah2/farmledger/internal/service/dashboard"
	"github.com/mamadbah2/farmledger/internal/service/export"
	"github.com/mamadbah2/farmledger/internal/service/notify"
	"github.com/mamadbah2/farmledger/pkg/clients/whatsapp"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DigestRunner triggers the analytics digest outside its schedule.
type DigestRunner interface {
	RunDigest(ctx context.Context) (models.AnalyticsReport, error)
}

// DashboardHandler exposes the dashboard orchestrator over HTTP.
type DashboardHandler struct {
	dash     *dashboard.Orchestrator
	exporter *export.Exporter
	digest   DigestRunner
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewDashboardHandler constructs the HTTP handler adapter. digest and notifier may be nil.
func NewDashboardHandler(dash *dashboard.Orchestrator, exporter *export.Exporter, digest DigestRunner, notifier notify.Notifier, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{dash: dash, exporter: exporter, digest: digest, notifier: notifier, logger: logger}
}

// Register mounts every dashboard route on r.
func (h *DashboardHandler) Register(r gin.IRouter) {
	r.POST("/session/connect", h.Connect)
	r.DELETE("/session", h.Disconnect)
	r.GET("/session", h.Session)
	r.POST("/register", h.RegisterProducer)
	r.PUT("/profile", h.UpdateProfile)

	r.GET("/overview", h.Overview)
	r.GET("/views/:view", h.Activate)
	r.POST("/views/:view/refresh", h.Refresh)
	r.PUT("/views/:view/page", h.SetPage)

	r.POST("/produce", h.PostProduce)
	r.PUT("/produce/:id/quantity", h.UpdateQuantity)
	r.POST("/sales", h.RecordSale)
	r.GET("/sales/:position/receipt", h.Receipt)

	r.GET("/ledger/export.xlsx", h.ExportXLSX)
	r.POST("/ledger/export/sheet", h.ExportSheet)

	r.POST("/reports/digest", h.RunDigest)
	r.POST("/send-message", h.SendMessage)
}

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(err error) int {
	switch errs.Kind(err) {
	case "validation_failed":
		return http.StatusBadRequest
	case "identity_unavailable":
		return http.StatusUnauthorized
	case "not_registered":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "busy", "already_registered":
		return http.StatusConflict
	case "ledger_rejected":
		return http.StatusUnprocessableEntity
	case "ledger_unavailable", "join_unresolved", "stale_after_write":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *DashboardHandler) fail(c *gin.Context, err error, extra gin.H) {
	status := StatusFor(err)
	body := gin.H{"error": err.Error(), "kind": errs.Kind(err)}
	var verr *dashboard.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	for k, v := range extra {
		body[k] = v
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		h.logger.Warn("request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, body)
}

func (h *DashboardHandler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.logger.Warn("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "kind": errs.Kind(errs.ErrValidationFailed)})
		return false
	}
	return true
}

// Connect binds the identity provider's account and reports the session phase.
func (h *DashboardHandler) Connect(c *gin.Context) {
	state, err := h.dash.Connect(c.Request.Context())
	if err != nil {
		h.fail(c, err, gin.H{"session": state})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *DashboardHandler) Disconnect(c *gin.Context) {
	h.dash.Disconnect()
	c.Status(http.StatusNoContent)
}

func (h *DashboardHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.dash.State())
}

func (h *DashboardHandler) RegisterProducer(c *gin.Context) {
	var form dashboard.RegistrationForm
	if !h.bind(c, &form) {
		return
	}
	state, err := h.dash.Register(c.Request.Context(), form)
	if err != nil {
		h.fail(c, err, gin.H{"session": state})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *DashboardHandler) UpdateProfile(c *gin.Context) {
	var form dashboard.ProfileForm
	if !h.bind(c, &form) {
		return
	}
	if err := h.dash.UpdateProfile(c.Request.Context(), form); err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, h.dash.State())
}

func (h *DashboardHandler) Overview(c *gin.Context) {
	overview, err := h.dash.Overview()
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *DashboardHandler) view(c *gin.Context) (dashboard.View, bool) {
	view, err := dashboard.ParseView(c.Param("view"))
	if err != nil {
		h.fail(c, err, nil)
		return "", false
	}
	return view, true
}

// Activate switches to a view, loading it on first use.
func (h *DashboardHandler) Activate(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}
	snap, err := h.dash.Activate(c.Request.Context(), view)
	if err != nil {
		h.fail(c, err, gin.H{"snapshot": snap})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *DashboardHandler) Refresh(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}
	snap, err := h.dash.Refresh(c.Request.Context(), view)
	if err != nil {
		h.fail(c, err, gin.H{"snapshot": snap})
		return
	}
	c.JSON(http.StatusOK, snap)
}

type pageRequest struct {
	Page int `json:"page"`
}

func (h *DashboardHandler) SetPage(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}
	var req pageRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.dash.SetPage(view, req.Page); err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, h.dash.Snapshot(view))
}

func (h *DashboardHandler) PostProduce(c *gin.Context) {
	var form dashboard.ProduceForm
	if !h.bind(c, &form) {
		return
	}
	if err := h.dash.PostProduce(c.Request.Context(), form); err != nil {
		h.fail(c, err, gin.H{"snapshot": h.dash.Snapshot(dashboard.ViewInventory)})
		return
	}
	c.JSON(http.StatusCreated, h.dash.Snapshot(dashboard.ViewInventory))
}

type quantityRequest struct {
	Quantity *int64 `json:"quantity" binding:"required"`
}

func (h *DashboardHandler) UpdateQuantity(c *gin.Context) {
	index, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: produce id %q", errs.ErrValidationFailed, c.Param("id")), nil)
		return
	}
	var req quantityRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.dash.UpdateQuantity(c.Request.Context(), index, *req.Quantity); err != nil {
		h.fail(c, err, gin.H{"snapshot": h.dash.Snapshot(dashboard.ViewInventory)})
		return
	}
	c.JSON(http.StatusOK, h.dash.Snapshot(dashboard.ViewInventory))
}

func (h *DashboardHandler) RecordSale(c *gin.Context) {
	var form dashboard.SaleForm
	if !h.bind(c, &form) {
		return
	}
	if err := h.dash.RecordSale(c.Request.Context(), form); err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, h.dash.Snapshot(dashboard.ViewSales))
}

// Receipt downloads the plain-text receipt of a fetched sale.
func (h *DashboardHandler) Receipt(c *gin.Context) {
	position, err := strconv.Atoi(c.Param("position"))
	if err != nil {
		h.fail(c, fmt.Errorf("%w: sale position %q", errs.ErrValidationFailed, c.Param("position")), nil)
		return
	}
	filename, body, err := h.dash.Receipt(position)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(body))
}

// ExportXLSX downloads the loaded ledger report as a workbook.
func (h *DashboardHandler) ExportXLSX(c *gin.Context) {
	entries, err := h.dash.LedgerEntries()
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.WriteXLSX(&buf, entries); err != nil {
		h.fail(c, err, nil)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="ledger.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ExportSheet appends the loaded ledger report to the configured spreadsheet.
func (h *DashboardHandler) ExportSheet(c *gin.Context) {
	entries, err := h.dash.LedgerEntries()
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	appended, err := h.exporter.SyncSheet(c.Request.Context(), entries)
	if errors.Is(err, export.ErrSheetsDisabled) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "unable to export ledger"})
		h.logger.Error("sheet export failed", zap.Error(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"appended": appended})
}

// RunDigest builds and delivers the analytics digest immediately.
func (h *DashboardHandler) RunDigest(c *gin.Context) {
	if h.digest == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "digest is not configured"})
		return
	}
	report, err := h.digest.RunDigest(c.Request.Context())
	if errors.Is(err, scheduler.ErrNoProducer) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("manual digest failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// SendMessage allows operators to push a manual notification.
func (h *DashboardHandler) SendMessage(c *gin.Context) {
	var req models.OutboundMessageRequest
	if !h.bind(c, &req) {
		return
	}
	if !notify.Enabled(h.notifier) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "notifications are not configured"})
		return
	}
	if err := h.notifier.SendOutbound(c.Request.Context(), req); err != nil {
		h.logger.Error("failed sending outbound", zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, whatsapp.ErrRejected) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": "unable to send message"})
		return
	}
	c.Status(http.StatusAccepted)
}
