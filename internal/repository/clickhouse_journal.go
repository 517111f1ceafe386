package repository

import (
	"context"
	"fmt"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/domain/repository"
	pkgch "OptEdge/pkg/clickhouse"
	applogger "OptEdge/pkg/logger"
)

const (
	ordersTable = "engine_orders"
	alertsTable = "engine_alerts"
)

var (
	orderColumns = []string{"ts", "action", "ticker", "quantity", "price", "order_id", "rule", "reason", "delta", "gamma", "vega"}
	alertColumns = []string{"ts", "kind", "level", "ticker", "greek", "value", "limit_value", "message"}
)

// JournalSchema returns the idempotent DDL of the journal tables.
func JournalSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			ts DateTime64(3),
			action LowCardinality(String),
			ticker LowCardinality(String),
			quantity Int64,
			price Float64,
			order_id String,
			rule LowCardinality(String),
			reason String,
			delta Float64,
			gamma Float64,
			vega Float64
		) ENGINE = MergeTree ORDER BY (ticker, ts)`, database, ordersTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			ts DateTime64(3),
			kind LowCardinality(String),
			level LowCardinality(String),
			ticker String,
			greek String,
			value Float64,
			limit_value Float64,
			message String
		) ENGINE = MergeTree ORDER BY (kind, ts)`, database, alertsTable),
	}
}

// ClickHouseJournal appends orders and alerts for post-session analysis.
// The engine never reads it back.
type ClickHouseJournal struct {
	db       pkgch.Execer
	database string
	l        *applogger.Logger
}

func NewClickHouseJournal(db pkgch.Execer, database string, l *applogger.Logger) *ClickHouseJournal {
	return &ClickHouseJournal{db: db, database: database, l: l}
}

func (j *ClickHouseJournal) RecordOrders(ctx context.Context, actions []models.OrderAction) error {
	if len(actions) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, []any{
			a.CreatedAt, string(a.Kind), a.Ticker, a.Quantity, a.Price, a.OrderID,
			string(a.Rule), a.Reason, a.Greeks.Delta, a.Greeks.Gamma, a.Greeks.Vega,
		})
	}
	if err := pkgch.InsertRows(ctx, j.db, j.table(ordersTable), orderColumns, rows); err != nil {
		j.l.Error("clickhouse record_orders error", applogger.Int("rows", len(rows)), applogger.Error(err))
		return fmt.Errorf("record orders: %w", err)
	}
	return nil
}

func (j *ClickHouseJournal) RecordAlert(ctx context.Context, a models.Alert) error {
	row := []any{a.At, string(a.Kind), a.Level, a.Ticker, a.Greek, a.Value, a.Limit, a.Message}
	if err := pkgch.InsertRows(ctx, j.db, j.table(alertsTable), alertColumns, [][]any{row}); err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	return nil
}

func (j *ClickHouseJournal) Close() error {
	return nil // pool is owned by pkg/clickhouse.Client
}

func (j *ClickHouseJournal) table(name string) string {
	if j.database == "" {
		return name
	}
	return j.database + "." + name
}

// NopJournal is used when ClickHouse is disabled.
type NopJournal struct{}

func (NopJournal) RecordOrders(context.Context, []models.OrderAction) error { return nil }
func (NopJournal) RecordAlert(context.Context, models.Alert) error          { return nil }
func (NopJournal) Close() error                                             { return nil }

var (
	_ repository.Journal = (*ClickHouseJournal)(nil)
	_ repository.Journal = NopJournal{}
)
