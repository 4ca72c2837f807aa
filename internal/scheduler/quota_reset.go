package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"content-api/internal/domain"
)

// QuotaStore define a mutação em lote executada pela manutenção diária
type QuotaStore interface {
	// ResetDailyQuota define a cota de todos os registros ativos para um
	// valor absoluto e retorna quantos foram afetados
	ResetDailyQuota(ctx context.Context, value int) (int64, error)
}

// PostgresQuotaStore implementa QuotaStore sobre database/sql
type PostgresQuotaStore struct {
	db *sql.DB
}

// NewPostgresQuotaStore cria o store de cotas sobre o banco relacional
func NewPostgresQuotaStore(db *sql.DB) *PostgresQuotaStore {
	return &PostgresQuotaStore{db: db}
}

// ResetDailyQuota grava o valor absoluto nos usuários ativos. A atribuição é
// idempotente: executar duas vezes no mesmo dia produz o mesmo estado final.
func (s *PostgresQuotaStore) ResetDailyQuota(ctx context.Context, value int) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET daily_quota = $1 WHERE status = 'active'`,
		value,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily quota: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected, nil
}

// QuotaResetJob dispara a redefinição diária de cotas em um agendamento de
// calendário, fora do caminho das requisições. Falhas são registradas e
// nunca derrubam o processo.
type QuotaResetJob struct {
	store    QuotaStore
	logger   domain.Logger
	schedule string
	value    int

	cron *cron.Cron
}

// NewQuotaResetJob cria o job com o agendamento cron informado
func NewQuotaResetJob(store QuotaStore, logger domain.Logger, schedule string, value int) *QuotaResetJob {
	return &QuotaResetJob{
		store:    store,
		logger:   logger,
		schedule: schedule,
		value:    value,
		cron:     cron.New(),
	}
}

// Start registra e inicia o agendamento
func (j *QuotaResetJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.Run); err != nil {
		return fmt.Errorf("invalid quota reset schedule %q: %w", j.schedule, err)
	}

	j.cron.Start()

	j.logger.Info("Quota reset job scheduled", map[string]interface{}{
		"schedule":    j.schedule,
		"reset_value": j.value,
	})

	return nil
}

// Stop interrompe o agendamento; a execução em andamento termina sozinha
func (j *QuotaResetJob) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}

// Run executa uma redefinição imediata; é o corpo chamado pelo cron
func (j *QuotaResetJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	affected, err := j.store.ResetDailyQuota(ctx, j.value)
	if err != nil {
		j.logger.Error("Daily quota reset failed", err, map[string]interface{}{
			"reset_value": j.value,
		})
		return
	}

	j.logger.Info("Daily quota reset completed", map[string]interface{}{
		"reset_value":  j.value,
		"rows_updated": affected,
	})
}
