package worker

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"content-api/internal/domain"
)

// SpreadsheetImporter ingere planilhas de prompts: faz o upsert das
// categorias encontradas e insere os prompts derivados, tudo dentro de uma
// única transação. Ou todas as linhas entram, ou nenhuma.
type SpreadsheetImporter struct {
	db     *sql.DB
	logger domain.Logger
}

// NewSpreadsheetImporter cria o importador de planilhas
func NewSpreadsheetImporter(db *sql.DB, logger domain.Logger) *SpreadsheetImporter {
	return &SpreadsheetImporter{
		db:     db,
		logger: logger,
	}
}

// Task retorna a TaskFunc registrável no dispatcher
func (s *SpreadsheetImporter) Task() domain.TaskFunc {
	return func(ctx context.Context, payload interface{}) domain.TaskResult {
		input, ok := payload.(domain.SpreadsheetPayload)
		if !ok {
			return domain.TaskResult{
				Success: false,
				Error:   fmt.Sprintf("import_spreadsheet: unexpected payload type %T", payload),
			}
		}

		return s.importFile(ctx, input)
	}
}

// importFile faz o parse da planilha e persiste as linhas em uma transação
func (s *SpreadsheetImporter) importFile(ctx context.Context, input domain.SpreadsheetPayload) domain.TaskResult {
	rows, err := s.parse(input.Path)
	if err != nil {
		return domain.TaskResult{Success: false, Error: err.Error()}
	}

	if len(rows) == 0 {
		return domain.TaskResult{Success: false, Error: "import_spreadsheet: no valid rows found"}
	}

	imported, categories, err := s.persist(ctx, input.TenantID, rows)
	if err != nil {
		s.logger.Error("Spreadsheet import rolled back", err, map[string]interface{}{
			"tenant_id": input.TenantID,
			"rows":      len(rows),
		})
		return domain.TaskResult{Success: false, Error: err.Error()}
	}

	s.logger.Info("Spreadsheet imported", map[string]interface{}{
		"tenant_id":  input.TenantID,
		"prompts":    imported,
		"categories": categories,
	})

	return domain.TaskResult{
		Success: true,
		Data: map[string]interface{}{
			"prompts":    imported,
			"categories": categories,
		},
	}
}

// parse lê a primeira aba da planilha; cabeçalho é descartado e linhas
// incompletas invalidam o arquivo inteiro
func (s *SpreadsheetImporter) parse(path string) ([]domain.PromptRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}

	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	var rows []domain.PromptRow
	for i, cells := range raw {
		// Primeira linha é o cabeçalho
		if i == 0 {
			continue
		}

		if len(cells) < 3 {
			return nil, fmt.Errorf("row %d: expected 3 columns (category, title, body), got %d", i+1, len(cells))
		}

		row := domain.PromptRow{
			Category: strings.TrimSpace(cells[0]),
			Title:    strings.TrimSpace(cells[1]),
			Body:     strings.TrimSpace(cells[2]),
		}

		if row.Category == "" || row.Title == "" || row.Body == "" {
			return nil, fmt.Errorf("row %d: category, title and body are required", i+1)
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// persist grava categorias e prompts em uma única transação all-or-nothing
func (s *SpreadsheetImporter) persist(ctx context.Context, tenantID string, rows []domain.PromptRow) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback é no-op depois do commit
	defer tx.Rollback()

	categoryIDs := make(map[string]int64)

	for _, row := range rows {
		if _, exists := categoryIDs[row.Category]; exists {
			continue
		}

		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO categories (tenant_id, name)
			 VALUES ($1, $2)
			 ON CONFLICT (tenant_id, name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			tenantID, row.Category,
		).Scan(&id)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to upsert category %q: %w", row.Category, err)
		}

		categoryIDs[row.Category] = id
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO prompts (tenant_id, category_id, title, body)
		 VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare prompt insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, tenantID, categoryIDs[row.Category], row.Title, row.Body); err != nil {
			return 0, 0, fmt.Errorf("failed to insert prompt %q: %w", row.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit import: %w", err)
	}

	return len(rows), len(categoryIDs), nil
}
