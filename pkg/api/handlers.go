package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	errs "printbridge/pkg/errors"
	"printbridge/pkg/health"
	"printbridge/pkg/logger"
	"printbridge/pkg/pool"
	"printbridge/pkg/protocol"
	"printbridge/pkg/session"
	"printbridge/pkg/spool"
	"printbridge/pkg/storage"
)

// Handler encapsulates the bridge API handlers
type Handler struct {
	spooler spool.Deliverer
	pools   *pool.Manager
	store   storage.Store
	sess    *session.Session
	monitor *health.Monitor
	token   string
	log     *logger.Logger
}

// NewHandler creates a new API handler. store and sess may be nil when
// the bridge runs without a registry or without an uplink.
func NewHandler(spooler spool.Deliverer, pools *pool.Manager, store storage.Store, sess *session.Session, monitor *health.Monitor, token string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Get()
	}
	return &Handler{
		spooler: spooler,
		pools:   pools,
		store:   store,
		sess:    sess,
		monitor: monitor,
		token:   token,
		log:     log.Component("api"),
	}
}

// RegisterRoutes registers all bridge API routes
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(CORSMiddleware())

	api := router.Group("/api", AuthMiddleware(h.token))
	api.POST("/print", h.HandlePrint)

	api.GET("/printers", h.HandleListPrinters)
	api.POST("/printers", h.HandleSavePrinter)
	api.DELETE("/printers/:name", h.HandleDeletePrinter)
	api.PUT("/printers/:name/default", h.HandleSetDefaultPrinter)
	api.GET("/printers/default", h.HandleGetDefaultPrinter)

	api.GET("/health", h.HandleHealth)
	api.GET("/session", h.HandleSession)
	api.GET("/pool/stats", h.HandlePoolStats)
}

// PrintRequest is a locally submitted print job. The target is either a
// direct host and port, a registered printer name, or the default
// printer when both are absent.
type PrintRequest struct {
	Printer  string `json:"printer"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Payload  string `json:"payload"`
	Format   string `json:"format"`
	Encoding string `json:"encoding"`
}

// HandlePrint delivers one payload to a printer
func (h *Handler) HandlePrint(c *gin.Context) {
	var req PrintRequest
	if err := c.BindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	data, err := protocol.DecodePayload(req.Payload, req.Format, req.Encoding)
	if err != nil {
		RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	host, port := req.Host, req.Port
	if host == "" || port == 0 {
		p, err := h.lookupPrinter(req.Printer)
		if err != nil {
			h.respondLookupError(c, err)
			return
		}
		host, port = p.Host, p.Port
	}

	started := time.Now()
	result := h.spooler.Deliver(c.Request.Context(), host, port, data)
	if !result.Success {
		h.log.Error("local print failed", "host", host, "port", port, "reason", result.Message)
		RespondError(c, http.StatusBadGateway, result.Message)
		return
	}

	RespondSuccess(c, gin.H{
		"host":        host,
		"port":        port,
		"bytes":       len(data),
		"duration_ms": time.Since(started).Milliseconds(),
	}, "job delivered")
}

func (h *Handler) lookupPrinter(name string) (*storage.Printer, error) {
	if h.store == nil {
		return nil, errs.ErrStorageNotInitialized
	}
	if name == "" {
		return h.store.GetDefaultPrinter()
	}
	return h.store.GetPrinter(name)
}

func (h *Handler) respondLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrStorageNotInitialized):
		RespondError(c, http.StatusServiceUnavailable, ErrRegistryDisabled)
	case errors.Is(err, errs.ErrPrinterNotFound), errors.Is(err, errs.ErrNoDefaultPrinter):
		RespondError(c, http.StatusNotFound, err.Error())
	default:
		h.log.ErrorWithErr("printer lookup failed", err)
		RespondError(c, http.StatusInternalServerError, ErrInternalServer)
	}
}

// SavePrinterRequest registers or updates a printer
type SavePrinterRequest struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	IsDefault bool   `json:"is_default"`
}

// HandleListPrinters returns all registered printers
func (h *Handler) HandleListPrinters(c *gin.Context) {
	if h.store == nil {
		RespondError(c, http.StatusServiceUnavailable, ErrRegistryDisabled)
		return
	}

	printers, err := h.store.GetAllPrinters()
	if err != nil {
		h.log.ErrorWithErr("failed to list printers", err)
		RespondError(c, http.StatusInternalServerError, ErrInternalServer)
		return
	}

	c.JSON(http.StatusOK, printers)
}

// HandleSavePrinter registers or updates a printer
func (h *Handler) HandleSavePrinter(c *gin.Context) {
	if h.store == nil {
		RespondError(c, http.StatusServiceUnavailable, ErrRegistryDisabled)
		return
	}

	var req SavePrinterRequest
	if err := c.BindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, ErrInvalidRequest)
		return
	}
	if req.Name == "" || req.Host == "" || req.Port <= 0 || req.Port > 65535 {
		RespondError(c, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	printer := &storage.Printer{
		Name:      req.Name,
		Host:      req.Host,
		Port:      req.Port,
		IsDefault: req.IsDefault,
	}
	if err := h.store.SavePrinter(printer); err != nil {
		h.log.ErrorWithErr("failed to save printer", err, "name", req.Name)
		RespondError(c, http.StatusInternalServerError, ErrInternalServer)
		return
	}
	if req.IsDefault {
		if err := h.store.SetDefaultPrinter(req.Name); err != nil {
			h.log.ErrorWithErr("failed to set default printer", err, "name", req.Name)
			RespondError(c, http.StatusInternalServerError, ErrInternalServer)
			return
		}
	}

	h.log.Info("printer saved", "name", req.Name, "host", req.Host, "port", req.Port)
	RespondSuccess(c, printer, "printer saved")
}

// HandleDeletePrinter removes a printer from the registry
func (h *Handler) HandleDeletePrinter(c *gin.Context) {
	if h.store == nil {
		RespondError(c, http.StatusServiceUnavailable, ErrRegistryDisabled)
		return
	}

	name := c.Param("name")
	if err := h.store.DeletePrinter(name); err != nil {
		if errors.Is(err, errs.ErrPrinterNotFound) {
			RespondError(c, http.StatusNotFound, ErrPrinterNotFound)
			return
		}
		h.log.ErrorWithErr("failed to delete printer", err, "name", name)
		RespondError(c, http.StatusInternalServerError, ErrInternalServer)
		return
	}

	RespondSuccess(c, nil, "printer deleted")
}

// HandleSetDefaultPrinter marks a registered printer as the default
func (h *Handler) HandleSetDefaultPrinter(c *gin.Context) {
	if h.store == nil {
		RespondError(c, http.StatusServiceUnavailable, ErrRegistryDisabled)
		return
	}

	name := c.Param("name")
	if err := h.store.SetDefaultPrinter(name); err != nil {
		if errors.Is(err, errs.ErrPrinterNotFound) {
			RespondError(c, http.StatusNotFound, ErrPrinterNotFound)
			return
		}
		h.log.ErrorWithErr("failed to set default printer", err, "name", name)
		RespondError(c, http.StatusInternalServerError, ErrInternalServer)
		return
	}

	RespondSuccess(c, nil, "default printer set")
}

// HandleGetDefaultPrinter returns the default printer
func (h *Handler) HandleGetDefaultPrinter(c *gin.Context) {
	if h.store == nil {
		RespondError(c, http.StatusServiceUnavailable, ErrRegistryDisabled)
		return
	}

	printer, err := h.store.GetDefaultPrinter()
	if err != nil {
		if errors.Is(err, errs.ErrNoDefaultPrinter) {
			RespondError(c, http.StatusNotFound, err.Error())
			return
		}
		h.log.ErrorWithErr("failed to get default printer", err)
		RespondError(c, http.StatusInternalServerError, ErrInternalServer)
		return
	}

	c.JSON(http.StatusOK, printer)
}

// HandleHealth returns the aggregated bridge health
func (h *Handler) HandleHealth(c *gin.Context) {
	if h.monitor == nil {
		RespondError(c, http.StatusServiceUnavailable, ErrInternalServer)
		return
	}

	report := h.monitor.GetHealth()
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// HandleSession returns the uplink session status
func (h *Handler) HandleSession(c *gin.Context) {
	if h.sess == nil {
		RespondError(c, http.StatusServiceUnavailable, ErrSessionsDisabled)
		return
	}
	c.JSON(http.StatusOK, h.sess.Status())
}

// HandlePoolStats returns per-endpoint connection pool statistics
func (h *Handler) HandlePoolStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.pools.Stats())
}
