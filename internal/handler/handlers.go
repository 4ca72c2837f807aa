package handler

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"content-api/internal/config"
	"content-api/internal/domain"
	"content-api/internal/middleware"
)

// Handlers contém os handlers da API que consomem a camada de proteção
type Handlers struct {
	store      domain.CounterStore
	dispatcher domain.Dispatcher
	cfg        *config.Config
	logger     domain.Logger
	startTime  time.Time
}

// NewHandlers cria uma nova instância dos handlers
func NewHandlers(store domain.CounterStore, dispatcher domain.Dispatcher, cfg *config.Config, logger domain.Logger) *Handlers {
	return &Handlers{
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		startTime:  time.Now(),
	}
}

// SetupRoutes configura as rotas da API com os limiters por classe de rota
func (h *Handlers) SetupRoutes(router *gin.Engine, guard *middleware.DDoSGuard) {
	router.Use(middleware.RequestID())
	router.Use(guard.Middleware())

	// Rotas públicas de observabilidade (sem rate limiting)
	router.GET("/health", h.HealthHandler)
	router.GET("/stats", h.StatsHandler)

	// Assets estáticos: isentos de contagem pelos prefixos configurados
	router.Static("/static", "./static")

	// Cada classe de rota recebe o seu limiter com prefixo de chave próprio
	api := router.Group("/api/v1")
	api.Use(h.limiter(h.cfg.APILimiter))
	{
		api.GET("/categories", h.ListCategoriesHandler)
		api.GET("/prompts", h.ListPromptsHandler)
	}

	auth := router.Group("/api/v1/auth")
	auth.Use(h.limiter(h.cfg.AuthLimiter))
	{
		auth.POST("/login", h.LoginHandler)
	}

	upload := router.Group("/api/v1/uploads")
	upload.Use(h.limiter(h.cfg.UploadLimiter))
	{
		upload.POST("/images", h.OptimizeImagesHandler)
		upload.POST("/spreadsheets", h.ImportSpreadsheetHandler)
	}

	payment := router.Group("/api/v1/payments")
	payment.Use(h.limiter(h.cfg.PaymentLimiter))
	{
		payment.POST("/checkout", h.CheckoutHandler)
	}

	// Rotas administrativas (sem rate limiting)
	admin := router.Group("/admin")
	{
		admin.GET("/bans", h.ListBansHandler)
		admin.POST("/limits/reset", h.ResetLimitsHandler)
	}
}

// limiter monta o middleware de rate limiting para uma classe de rota
func (h *Handlers) limiter(cfg config.LimiterConfig) gin.HandlerFunc {
	return middleware.NewRateLimiter(middleware.RateLimiterOptions{
		MaxRequests:    cfg.MaxRequests,
		Window:         cfg.Window,
		KeyPrefix:      cfg.KeyPrefix,
		SendHeaders:    true,
		Enforce:        h.cfg.RateLimitEnforce,
		ExemptPrefixes: h.cfg.ExemptPrefixes,
	}, h.store, h.logger)
}

// HealthHandler implementa health check básico
func (h *Handlers) HealthHandler(c *gin.Context) {
	status := "healthy"
	storeStatus := "up"

	if err := h.store.Health(c.Request.Context()); err != nil {
		// Store indisponível degrada o serviço, mas não o derruba
		status = "degraded"
		storeStatus = "down"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        status,
		"counter_store": storeStatus,
		"uptime":        time.Since(h.startTime).String(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// StatsHandler expõe o estado do counter store ativo
func (h *Handlers) StatsHandler(c *gin.Context) {
	response := gin.H{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.startTime).String(),
	}

	type infoProvider interface {
		Info() map[string]interface{}
	}
	if provider, ok := h.store.(infoProvider); ok {
		response["store"] = provider.Info()
	}

	c.JSON(http.StatusOK, response)
}

// ListCategoriesHandler é uma rota de conteúdo representativa; a persistência
// de CRUD é um colaborador externo, aqui interessa passar pelos middlewares
func (h *Handlers) ListCategoriesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"categories": []gin.H{
			{"id": 1, "name": "marketing"},
			{"id": 2, "name": "engineering"},
		},
	})
}

// ListPromptsHandler é uma rota de conteúdo representativa
func (h *Handlers) ListPromptsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"prompts": []gin.H{
			{"id": 1, "category_id": 1, "title": "launch announcement"},
			{"id": 2, "category_id": 2, "title": "code review checklist"},
		},
	})
}

// LoginHandler é o placeholder da classe de rota auth
func (h *Handlers) LoginHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "authenticated",
	})
}

// CheckoutHandler é o placeholder da classe de rota payment
func (h *Handlers) CheckoutHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "payment accepted",
	})
}

// optimizeImagesRequest é o corpo aceito pelo endpoint de otimização
type optimizeImagesRequest struct {
	Paths []string `json:"paths" binding:"required,min=1"`
}

// OptimizeImagesHandler despacha a otimização do lote para o worker e espera
// o resultado. Em falha do worker a resposta degrada para os arquivos
// originais em vez de propagar um 500.
func (h *Handlers) OptimizeImagesHandler(c *gin.Context) {
	ctx := c.Request.Context()
	logger := h.logger.WithContext(ctx)

	var req optimizeImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paths is required"})
		return
	}

	protocol := "http"
	if c.Request.TLS != nil {
		protocol = "https"
	}

	promise := h.dispatcher.Dispatch(ctx, domain.TaskOptimizeImages, domain.ImagePayload{
		Paths:    req.Paths,
		Protocol: protocol,
		Host:     c.Request.Host,
		MaxWidth: h.cfg.ImageMaxWidth,
		Quality:  h.cfg.ImageQuality,
	})

	result, err := promise.Await(ctx)
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "image optimization timed out"})
		return
	}

	if !result.Success {
		logger.Warn("Image optimization failed, serving originals", map[string]interface{}{
			"error": result.Error,
			"files": len(req.Paths),
		})

		urls := make([]string, len(req.Paths))
		for i, path := range req.Paths {
			urls[i] = protocol + "://" + c.Request.Host + "/static/uploads/" + filepath.Base(path)
		}

		c.JSON(http.StatusOK, gin.H{
			"urls":      urls,
			"optimized": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"urls":      result.Data["urls"],
		"optimized": true,
	})
}

// importSpreadsheetRequest é o corpo aceito pelo endpoint de importação
type importSpreadsheetRequest struct {
	Path     string `json:"path" binding:"required"`
	TenantID string `json:"tenant_id" binding:"required"`
}

// ImportSpreadsheetHandler despacha a ingestão da planilha e espera o
// resultado; a transação no worker garante tudo-ou-nada
func (h *Handlers) ImportSpreadsheetHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req importSpreadsheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path and tenant_id are required"})
		return
	}

	promise := h.dispatcher.Dispatch(ctx, domain.TaskImportSpreadsheet, domain.SpreadsheetPayload{
		Path:     req.Path,
		TenantID: req.TenantID,
	})

	result, err := promise.Await(ctx)
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "spreadsheet import timed out"})
		return
	}

	if !result.Success {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error})
		return
	}

	c.JSON(http.StatusOK, result.Data)
}

// ListBansHandler lista os banimentos ativos; não existe caminho de unban,
// os registros expiram apenas por TTL
func (h *Handlers) ListBansHandler(c *gin.Context) {
	banPrefix := string(domain.ScopeBan) + ":"

	keys, err := h.store.Keys(c.Request.Context(), banPrefix)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "counter store unavailable"})
		return
	}

	bans := make([]string, 0, len(keys))
	for _, key := range keys {
		bans = append(bans, strings.TrimPrefix(key, banPrefix))
	}

	c.JSON(http.StatusOK, gin.H{
		"banned_ips": bans,
		"count":      len(bans),
	})
}

// resetLimitsRequest é o corpo aceito pelo reset administrativo
type resetLimitsRequest struct {
	Scope      string `json:"scope" binding:"required"`
	Identifier string `json:"identifier" binding:"required"`
}

// ResetLimitsHandler remove os contadores de um identificador em um escopo.
// Registros de banimento não são afetados por aqui.
func (h *Handlers) ResetLimitsHandler(c *gin.Context) {
	var req resetLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope and identifier are required"})
		return
	}

	if strings.HasPrefix(req.Scope, string(domain.ScopeBan)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "ban records expire by TTL only"})
		return
	}

	deleted, err := h.store.DeleteByPrefix(c.Request.Context(), req.Scope+":"+req.Identifier)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "counter store unavailable"})
		return
	}

	h.logger.Info("Rate limit counters reset", map[string]interface{}{
		"scope":      req.Scope,
		"identifier": req.Identifier,
		"deleted":    deleted,
	})

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
