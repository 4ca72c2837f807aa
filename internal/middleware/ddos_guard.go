package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"content-api/internal/domain"
)

// banKeyPrefix é o prefixo das chaves de banimento no counter store
const banKeyPrefix = string(domain.ScopeBan) + ":"

// DDoSGuardConfig configura o filtro de admissão
type DDoSGuardConfig struct {
	// BanThreshold é o número de requisições por janela local a partir do
	// qual o IP é banido (contagem anterior > threshold dispara o ban)
	BanThreshold int

	// BanDuration é o TTL do registro de banimento no counter store
	BanDuration time.Duration

	// SweepInterval é o período da limpeza global do contador local
	SweepInterval time.Duration

	// BlockedIPs é a deny-list estática
	BlockedIPs []string

	// MinUserAgentLength é o tamanho mínimo aceito para o header User-Agent
	MinUserAgentLength int
}

// DDoSGuard combina a lista de banimento persistida, a deny-list estática,
// a validação de formato da requisição e o contador local por IP.
//
// O contador local é por processo: instâncias escaladas horizontalmente não
// coordenam esta contagem, então a taxa global real de um IP é a soma entre
// processos. O registro de banimento, por outro lado, vive no counter store
// compartilhado e vale para todas as instâncias.
type DDoSGuard struct {
	config  DDoSGuardConfig
	store   domain.CounterStore
	logger  domain.Logger
	blocked map[string]struct{}

	// Janela local de requisições por IP, zerada integralmente a cada sweep
	mutex  sync.Mutex
	counts map[string]int

	stopSweep chan struct{}
	stopOnce  sync.Once
	started   bool
}

// NewDDoSGuard cria o filtro de admissão; Start deve ser chamado em seguida
func NewDDoSGuard(config DDoSGuardConfig, store domain.CounterStore, logger domain.Logger) *DDoSGuard {
	blocked := make(map[string]struct{}, len(config.BlockedIPs))
	for _, ip := range config.BlockedIPs {
		blocked[ip] = struct{}{}
	}

	return &DDoSGuard{
		config:    config,
		store:     store,
		logger:    logger,
		blocked:   blocked,
		counts:    make(map[string]int),
		stopSweep: make(chan struct{}),
	}
}

// Start inicia a limpeza periódica da janela local
func (g *DDoSGuard) Start() {
	if g.started {
		return
	}
	g.started = true

	go g.sweepLoop()

	g.logger.Info("DDoS guard started", map[string]interface{}{
		"ban_threshold":  g.config.BanThreshold,
		"ban_duration":   g.config.BanDuration.String(),
		"sweep_interval": g.config.SweepInterval.String(),
		"blocked_ips":    len(g.blocked),
	})
}

// Stop encerra a limpeza periódica
func (g *DDoSGuard) Stop() {
	g.stopOnce.Do(func() {
		close(g.stopSweep)
	})
}

// Middleware retorna o handler de admissão para o gin
func (g *DDoSGuard) Middleware() gin.HandlerFunc {
	return g.handle
}

// handle executa o pipeline de admissão, curto-circuitando na primeira recusa
func (g *DDoSGuard) handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	ip := ClientIP(c)

	// 1. Banimento persistido no counter store
	if g.isBanned(ctx, ip) {
		g.reject(c, http.StatusForbidden, "your address is temporarily banned", domain.CodeIPBanned, ip)
		return
	}

	// 2. Deny-list estática
	if _, denied := g.blocked[ip]; denied {
		g.reject(c, http.StatusForbidden, "your address is not allowed", domain.CodeIPBlocked, ip)
		return
	}

	// 3. Formato da requisição
	userAgent := c.GetHeader("User-Agent")
	if len(userAgent) < g.config.MinUserAgentLength {
		g.reject(c, http.StatusForbidden, "request rejected: missing or invalid user agent", domain.CodeInvalidUserAgent, ip)
		return
	}

	// 4. Contador local por IP
	if g.bumpLocalCount(ip) {
		g.banIP(ctx, ip)
		g.reject(c, http.StatusTooManyRequests, "too many requests from your address", domain.CodeTooManyRequests, ip)
		return
	}

	c.Next()
}

// isBanned consulta o registro de banimento; em falha de storage a política
// é fail-open: trata como não banido e segue para as demais verificações
func (g *DDoSGuard) isBanned(ctx context.Context, ip string) bool {
	_, banned, err := g.store.Get(ctx, banKeyPrefix+ip)
	if err != nil {
		g.logger.Error("Ban list unavailable, failing open", err, map[string]interface{}{
			"ip": ip,
		})
		return false
	}
	return banned
}

// bumpLocalCount incrementa a janela local e informa se o limite foi estourado.
// A comparação usa a contagem anterior ao incremento.
func (g *DDoSGuard) bumpLocalCount(ip string) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	prior := g.counts[ip]
	g.counts[ip] = prior + 1

	return prior > g.config.BanThreshold
}

// banIP grava o registro de banimento com o TTL configurado
func (g *DDoSGuard) banIP(ctx context.Context, ip string) {
	if err := g.store.Set(ctx, banKeyPrefix+ip, 1, g.config.BanDuration); err != nil {
		g.logger.Error("Failed to persist ban record", err, map[string]interface{}{
			"ip": ip,
		})
		return
	}

	g.logger.Warn("IP banned for exceeding local request threshold", map[string]interface{}{
		"ip":           ip,
		"threshold":    g.config.BanThreshold,
		"ban_duration": g.config.BanDuration.String(),
	})
}

// reject encerra a requisição com o corpo JSON padrão de recusa
func (g *DDoSGuard) reject(c *gin.Context, status int, message, code, ip string) {
	g.logger.Info("Request rejected by DDoS guard", map[string]interface{}{
		"ip":     ip,
		"code":   code,
		"status": status,
		"path":   c.Request.URL.Path,
	})

	c.JSON(status, domain.RejectionResponse{
		Message: message,
		Code:    code,
	})
	c.Abort()
}

// sweepLoop zera a janela local a cada intervalo configurado
func (g *DDoSGuard) sweepLoop() {
	ticker := time.NewTicker(g.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Sweep()
		case <-g.stopSweep:
			return
		}
	}
}

// Sweep descarta todas as contagens locais, independente da idade de cada
// chave. A janela efetiva de um IP fica entre zero e o intervalo do sweep.
func (g *DDoSGuard) Sweep() {
	g.mutex.Lock()
	size := len(g.counts)
	g.counts = make(map[string]int)
	g.mutex.Unlock()

	if size > 0 {
		g.logger.Debug("Local request window cleared", map[string]interface{}{
			"entries": size,
		})
	}
}

// LocalCount retorna a contagem local atual de um IP (observabilidade/testes)
func (g *DDoSGuard) LocalCount(ip string) int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.counts[ip]
}
