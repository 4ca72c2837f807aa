package domain

import (
	"context"
	"time"
)

// CounterStore define o contrato do armazenamento compartilhado de contadores.
// Toda coordenação entre processos passa por esta interface; as implementações
// devem garantir atomicidade do Increment entre chamadores concorrentes.
type CounterStore interface {
	// Get recupera o valor de uma chave; ok=false quando ausente ou expirada
	Get(ctx context.Context, key string) (value int64, ok bool, err error)

	// Set grava o valor com TTL; o TTL é fixado na primeira escrita da janela
	// e não é renovado por incrementos posteriores
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error

	// Increment incrementa atomicamente o contador e retorna o novo valor.
	// Chave ausente é criada sem TTL (semântica do INCR do Redis); quem cria
	// janelas deve usar Set na primeira ocorrência
	Increment(ctx context.Context, key string) (int64, error)

	// TTL retorna o tempo restante de uma chave; ok=false quando ausente
	TTL(ctx context.Context, key string) (remaining time.Duration, ok bool, err error)

	// Keys lista as chaves existentes com o prefixo informado
	Keys(ctx context.Context, prefix string) ([]string, error)

	// DeleteByPrefix remove todas as chaves com o prefixo e retorna quantas
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// Health verifica se o storage está saudável
	Health(ctx context.Context) error

	// Close fecha a conexão com o storage
	Close() error
}

// Logger define a interface para logging estruturado
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
	WithContext(ctx context.Context) Logger
}

// TaskFunc executa uma transformação dentro de um contexto isolado.
// Recebe o payload por valor (já copiado) e produz exatamente um resultado.
type TaskFunc func(ctx context.Context, payload interface{}) TaskResult

// Dispatcher define o contrato de despacho de tarefas pesadas
type Dispatcher interface {
	// Dispatch inicia a tarefa em um contexto isolado e retorna a promise
	Dispatch(ctx context.Context, kind TaskKind, payload interface{}) *Promise
}

// Promise representa o resultado pendente de uma tarefa despachada.
// O canal recebe exatamente uma mensagem terminal e é fechado em seguida.
type Promise struct {
	ch chan TaskResult
}

// NewPromise cria uma promise com capacidade para a mensagem terminal
func NewPromise() *Promise {
	return &Promise{ch: make(chan TaskResult, 1)}
}

// Resolve publica o resultado terminal da tarefa
func (p *Promise) Resolve(result TaskResult) {
	p.ch <- result
	close(p.ch)
}

// Await bloqueia até o resultado terminal ou o cancelamento do contexto
func (p *Promise) Await(ctx context.Context) (TaskResult, error) {
	select {
	case result := <-p.ch:
		return result, nil
	case <-ctx.Done():
		return TaskResult{}, ctx.Err()
	}
}
