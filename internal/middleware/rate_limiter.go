package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"content-api/internal/domain"
)

// IdentifierFn extrai o identificador a ser limitado de uma requisição
type IdentifierFn func(c *gin.Context) string

// RateLimiterOptions configura uma instância do rate limiter.
// Cada classe de rota (api, auth, upload, payment) recebe a sua instância com
// prefixo próprio, de modo que os contadores de um cliente nunca colidam
// entre classes.
type RateLimiterOptions struct {
	MaxRequests    int
	Window         time.Duration
	KeyPrefix      string
	IdentifierFn   IdentifierFn // padrão: IP do cliente
	SendHeaders    bool
	Enforce        bool // false = soft admission: headers informam, requisição passa
	ExemptPrefixes []string
}

// RateLimiter implementa o middleware de janela fixa sobre o counter store
type RateLimiter struct {
	opts   RateLimiterOptions
	store  domain.CounterStore
	logger domain.Logger
}

// NewRateLimiter cria o middleware de rate limiting para uma classe de rota
func NewRateLimiter(opts RateLimiterOptions, store domain.CounterStore, logger domain.Logger) gin.HandlerFunc {
	if opts.IdentifierFn == nil {
		opts.IdentifierFn = ClientIP
	}

	limiter := &RateLimiter{
		opts:   opts,
		store:  store,
		logger: logger,
	}

	return limiter.Handle
}

// Handle é o handler principal do middleware
func (rl *RateLimiter) Handle(c *gin.Context) {
	// Assets estáticos não contam para o rate limit
	if rl.isExempt(c.Request.URL.Path) {
		c.Next()
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	identifier := rl.opts.IdentifierFn(c)
	key := rl.opts.KeyPrefix + ":" + identifier

	count, ok := rl.touchCounter(ctx, c, key)
	if !ok {
		// Falha no counter store: fail-open, a requisição segue sem contar
		c.Next()
		return
	}

	remaining := int64(rl.opts.MaxRequests) - count
	if remaining < 0 {
		remaining = 0
	}

	saturated := count >= int64(rl.opts.MaxRequests)

	if rl.opts.SendHeaders {
		rl.setHeaders(ctx, c, key, remaining, saturated)
	}

	// Acima do limite: em modo soft apenas os headers sinalizam o excesso,
	// a rejeição dura fica a cargo do DDoS guard
	if count > int64(rl.opts.MaxRequests) {
		rl.logger.Info("Rate limit exceeded", map[string]interface{}{
			"key":      key,
			"count":    count,
			"limit":    rl.opts.MaxRequests,
			"enforced": rl.opts.Enforce,
			"path":     c.Request.URL.Path,
		})

		if rl.opts.Enforce {
			c.JSON(http.StatusTooManyRequests, domain.RejectionResponse{
				Message: "you have reached the maximum number of requests allowed within this window",
				Code:    domain.CodeRateLimitExceeded,
			})
			c.Abort()
			return
		}
	}

	c.Next()
}

// touchCounter aplica a convenção de janela fixa: Set com TTL na primeira
// ocorrência, Increment puro nas seguintes (o TTL nunca é renovado, então a
// janela fica congelada até expirar). Retorna ok=false em falha de storage.
func (rl *RateLimiter) touchCounter(ctx context.Context, c *gin.Context, key string) (int64, bool) {
	_, exists, err := rl.store.Get(ctx, key)
	if err != nil {
		rl.failOpen(c, key, err)
		return 0, false
	}

	if !exists {
		if err := rl.store.Set(ctx, key, 1, rl.opts.Window); err != nil {
			rl.failOpen(c, key, err)
			return 0, false
		}
		return 1, true
	}

	count, err := rl.store.Increment(ctx, key)
	if err != nil {
		rl.failOpen(c, key, err)
		return 0, false
	}

	return count, true
}

// setHeaders preenche os headers informativos de rate limiting
func (rl *RateLimiter) setHeaders(ctx context.Context, c *gin.Context, key string, remaining int64, saturated bool) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(rl.opts.MaxRequests))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

	// O reset vem do TTL restante da chave; em falha o header é omitido
	ttl, ok, err := rl.store.TTL(ctx, key)
	if err == nil && ok {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))
		if saturated {
			retryAfter := int(ttl.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
		}
	}
}

// failOpen registra a falha de storage; a requisição segue sem throttling
func (rl *RateLimiter) failOpen(c *gin.Context, key string, err error) {
	rl.logger.Error("Counter store unavailable, failing open", err, map[string]interface{}{
		"key":  key,
		"path": c.Request.URL.Path,
	})
}

// isExempt verifica se o caminho está sob um prefixo isento
func (rl *RateLimiter) isExempt(path string) bool {
	for _, prefix := range rl.opts.ExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
