package domain

// Scope define os escopos de chave usados no counter store. O valor de cada
// escopo é o prefixo literal das chaves correspondentes.
type Scope string

const (
	ScopeAPI     Scope = "api"
	ScopeAuth    Scope = "auth"
	ScopeUpload  Scope = "upload"
	ScopePayment Scope = "payment"
	ScopeBan     Scope = "banned_ip"
)

// Códigos de rejeição retornados ao cliente
const (
	CodeIPBanned          = "IP_BANNED"
	CodeIPBlocked         = "IP_BLOCKED"
	CodeInvalidUserAgent  = "INVALID_USER_AGENT"
	CodeTooManyRequests   = "TOO_MANY_REQUESTS"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

// RejectionResponse é o corpo JSON enviado quando uma requisição é recusada
type RejectionResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// TaskKind identifica qual transformação o dispatcher deve executar
type TaskKind string

const (
	TaskOptimizeImages    TaskKind = "optimize_images"
	TaskImportSpreadsheet TaskKind = "import_spreadsheet"
)

// TaskResult é a única mensagem terminal que um worker produz
type TaskResult struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// ImagePayload é a entrada do worker de otimização de imagens
type ImagePayload struct {
	Paths    []string `json:"paths"`
	Protocol string   `json:"protocol"`
	Host     string   `json:"host"`
	MaxWidth int      `json:"maxWidth"`
	Quality  int      `json:"quality"`
}

// SpreadsheetPayload é a entrada do worker de ingestão de planilhas
type SpreadsheetPayload struct {
	Path     string `json:"path"`
	TenantID string `json:"tenantId"`
}

// PromptRow representa uma linha de planilha já validada
type PromptRow struct {
	Category string
	Title    string
	Body     string
}
