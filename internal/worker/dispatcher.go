package worker

import (
	"context"
	"fmt"

	"content-api/internal/domain"
)

// Dispatcher executa tarefas pesadas fora do caminho das requisições.
//
// Cada despacho roda em uma goroutine própria com o payload copiado antes de
// cruzar a fronteira, sem memória compartilhada com o chamador. Não há pool,
// fila nem cancelamento: a concorrência é limitada apenas pelos recursos do
// processo e cada tarefa termina publicando exatamente um resultado.
type Dispatcher struct {
	logger domain.Logger
	tasks  map[domain.TaskKind]domain.TaskFunc
}

// NewDispatcher cria um dispatcher vazio; as tarefas são registradas depois
func NewDispatcher(logger domain.Logger) *Dispatcher {
	return &Dispatcher{
		logger: logger,
		tasks:  make(map[domain.TaskKind]domain.TaskFunc),
	}
}

// Register associa uma TaskFunc a um tipo de tarefa
func (d *Dispatcher) Register(kind domain.TaskKind, fn domain.TaskFunc) {
	d.tasks[kind] = fn
}

// Dispatch inicia a tarefa em contexto isolado e retorna a promise do
// resultado. Tarefas não são canceláveis depois de iniciadas: o contexto do
// chamador vale apenas para o Await.
func (d *Dispatcher) Dispatch(ctx context.Context, kind domain.TaskKind, payload interface{}) *domain.Promise {
	promise := domain.NewPromise()

	fn, exists := d.tasks[kind]
	if !exists {
		promise.Resolve(domain.TaskResult{
			Success: false,
			Error:   fmt.Sprintf("unknown task kind: %s", kind),
		})
		return promise
	}

	// Cópia do payload antes de cruzar a fronteira da goroutine
	isolated := clonePayload(payload)

	go func() {
		// Um worker que estoura não pode derrubar o processo nem deixar o
		// chamador pendurado: o panic vira um resultado de falha genérico
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Task crashed", fmt.Errorf("panic: %v", r), map[string]interface{}{
					"task_kind": string(kind),
				})
				promise.Resolve(domain.TaskResult{
					Success: false,
					Error:   fmt.Sprintf("task %s crashed: %v", kind, r),
				})
			}
		}()

		d.logger.Debug("Task started", map[string]interface{}{
			"task_kind": string(kind),
		})

		result := fn(context.Background(), isolated)

		d.logger.Debug("Task finished", map[string]interface{}{
			"task_kind": string(kind),
			"success":   result.Success,
		})

		promise.Resolve(result)
	}()

	return promise
}

// clonePayload copia o payload por valor para que worker e chamador nunca
// compartilhem referências mutáveis
func clonePayload(payload interface{}) interface{} {
	switch p := payload.(type) {
	case domain.ImagePayload:
		paths := make([]string, len(p.Paths))
		copy(paths, p.Paths)
		p.Paths = paths
		return p
	case domain.SpreadsheetPayload:
		return p
	default:
		return payload
	}
}
