package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"crossarb/internal/config"
	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// Ошибки репозитория исполнений
var (
	ErrExecutionNotFound = stderrors.New("execution not found")
	ErrExecutionExists   = stderrors.New("execution already archived")
)

// uniqueViolation код ошибки PostgreSQL для нарушения уникальности
const uniqueViolation = "23505"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Schema таблица архива исполнений
const Schema = `
CREATE TABLE IF NOT EXISTS executions (
	id              TEXT PRIMARY KEY,
	symbol          TEXT        NOT NULL,
	buy_venue       TEXT        NOT NULL,
	sell_venue      TEXT        NOT NULL,
	volume          NUMERIC     NOT NULL,
	spread_bps      NUMERIC     NOT NULL,
	expected_profit NUMERIC     NOT NULL,
	actual_profit   NUMERIC,
	status          TEXT        NOT NULL,
	reason          TEXT        NOT NULL DEFAULT '',
	dry_run         BOOLEAN     NOT NULL,
	details         JSONB       NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS executions_created_at_idx ON executions (created_at DESC);
CREATE INDEX IF NOT EXISTS executions_status_idx ON executions (status);`

const executionColumns = `id, symbol, buy_venue, sell_venue, volume, spread_bps, expected_profit, actual_profit, status, reason, dry_run, details, created_at, completed_at`

// executionDetails возможность и ноги, хранятся одним JSONB
type executionDetails struct {
	Opportunity models.ArbitrageOpportunity `json:"opportunity"`
	BuyOrder    *models.TradeOrder          `json:"buy_order,omitempty"`
	SellOrder   *models.TradeOrder          `json:"sell_order,omitempty"`
}

// Open подключение к PostgreSQL с настройками пула и проверкой связи
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to ping database %s", cfg.DSNWithoutPassword())
	}
	return db, nil
}

// ExecutionRepository - архив завершённых исполнений (таблица executions)
//
// Пишется только движком после перехода в терминальное состояние,
// читается API. История сделок здесь не ведётся.
type ExecutionRepository struct {
	db *sql.DB
}

// NewExecutionRepository создает новый экземпляр репозитория
func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// EnsureSchema создаёт таблицу и индексы, если их нет
func (r *ExecutionRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return errors.Wrap(err, "create executions schema")
	}
	return nil
}

// SaveExecution записывает завершённое исполнение
func (r *ExecutionRepository) SaveExecution(ctx context.Context, exec *models.ArbitrageExecution) error {
	if exec == nil || !exec.Status.IsTerminal() {
		return errors.Errorf("only terminal executions are archived")
	}

	details, err := json.Marshal(executionDetails{
		Opportunity: exec.Opportunity,
		BuyOrder:    exec.BuyOrder,
		SellOrder:   exec.SellOrder,
	})
	if err != nil {
		return errors.Wrap(err, "marshal execution details")
	}

	var actual decimal.NullDecimal
	if exec.ActualProfit != nil {
		actual = decimal.NullDecimal{Decimal: *exec.ActualProfit, Valid: true}
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	opp := exec.Opportunity
	_, err = r.db.ExecContext(ctx, query,
		exec.ID,
		opp.Symbol,
		string(opp.BuyVenue),
		string(opp.SellVenue),
		opp.Volume,
		opp.SpreadBps,
		exec.ExpectedProfit,
		actual,
		string(exec.Status),
		exec.Reason,
		exec.DryRun,
		details,
		exec.CreatedAt,
		exec.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrExecutionExists
		}
		return errors.Wrapf(err, "insert execution %s", exec.ID)
	}
	return nil
}

// GetByID возвращает исполнение по ID
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.ArbitrageExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	exec, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, err
	}
	return exec, nil
}

// GetRecent возвращает последние N исполнений, новые первыми
func (r *ExecutionRepository) GetRecent(ctx context.Context, limit int) ([]*models.ArbitrageExecution, error) {
	query := `SELECT ` + executionColumns + `
		FROM executions
		ORDER BY created_at DESC
		LIMIT $1`

	return r.query(ctx, query, limit)
}

// GetByStatuses исполнения с одним из статусов (например PARTIAL для разбора)
func (r *ExecutionRepository) GetByStatuses(ctx context.Context, statuses []models.ExecutionStatus, limit int) ([]*models.ArbitrageExecution, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	query := `SELECT ` + executionColumns + `
		FROM executions
		WHERE status = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2`

	return r.query(ctx, query, pq.Array(names), limit)
}

// ProfitSummary агрегаты по архиву
type ProfitSummary struct {
	Executions     int64           `json:"executions"`
	Successful     int64           `json:"successful"`
	Partial        int64           `json:"partial"`
	ExpectedProfit decimal.Decimal `json:"expected_profit"`
	ActualProfit   decimal.Decimal `json:"actual_profit"`
}

// Summary считает итоги по исполнениям начиная с since
func (r *ExecutionRepository) Summary(ctx context.Context, since time.Time) (*ProfitSummary, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'SUCCESS'),
			COUNT(*) FILTER (WHERE status = 'PARTIAL'),
			COALESCE(SUM(expected_profit) FILTER (WHERE status = 'SUCCESS'), 0),
			COALESCE(SUM(actual_profit) FILTER (WHERE status = 'SUCCESS'), 0)
		FROM executions
		WHERE created_at >= $1`

	s := &ProfitSummary{}
	err := r.db.QueryRowContext(ctx, query, since).Scan(
		&s.Executions,
		&s.Successful,
		&s.Partial,
		&s.ExpectedProfit,
		&s.ActualProfit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "execution summary")
	}
	return s, nil
}

// DeleteOlderThan чистит архив, возвращает число удалённых записей
func (r *ExecutionRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM executions WHERE created_at < $1`, before)
	if err != nil {
		return 0, errors.Wrap(err, "delete old executions")
	}
	return res.RowsAffected()
}

// RunRetention раз в interval удаляет исполнения старше keep.
// Ошибки очистки логируются, цикл продолжается до отмены ctx.
func (r *ExecutionRepository) RunRetention(ctx context.Context, keep, interval time.Duration, log *utils.Logger) error {
	if log == nil {
		log = utils.L()
	}
	log = log.WithComponent("archive_retention")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			n, err := r.DeleteOlderThan(ctx, now.Add(-keep))
			if err != nil {
				log.Warn("archive cleanup failed", utils.Err(err))
				continue
			}
			if n > 0 {
				log.Info("archive cleaned up",
					utils.Int64("deleted", n),
					utils.String("keep", utils.FormatDuration(keep)))
			}
		}
	}
}

func (r *ExecutionRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.ArbitrageExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*models.ArbitrageExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return execs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row rowScanner) (*models.ArbitrageExecution, error) {
	var (
		exec                        models.ArbitrageExecution
		symbol, buyVenue, sellVenue string
		volume, spread              decimal.Decimal
		actual                      decimal.NullDecimal
		status                      string
		details                     []byte
		completedAt                 sql.NullTime
	)

	err := row.Scan(
		&exec.ID,
		&symbol,
		&buyVenue,
		&sellVenue,
		&volume,
		&spread,
		&exec.ExpectedProfit,
		&actual,
		&status,
		&exec.Reason,
		&exec.DryRun,
		&details,
		&exec.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	var d executionDetails
	if err := json.Unmarshal(details, &d); err != nil {
		return nil, errors.Wrapf(err, "execution %s details", exec.ID)
	}

	exec.Opportunity = d.Opportunity
	exec.Opportunity.Symbol = symbol
	exec.Opportunity.BuyVenue = models.Venue(buyVenue)
	exec.Opportunity.SellVenue = models.Venue(sellVenue)
	exec.Opportunity.Volume = volume
	exec.Opportunity.SpreadBps = spread
	exec.BuyOrder = d.BuyOrder
	exec.SellOrder = d.SellOrder
	exec.Status = models.ExecutionStatus(status)
	if actual.Valid {
		v := actual.Decimal
		exec.ActualProfit = &v
	}
	if completedAt.Valid {
		t := completedAt.Time
		exec.CompletedAt = &t
	}
	return &exec, nil
}
