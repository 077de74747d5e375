package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowbotio/flowbot/pkg/models"
)

// NewPool opens a pgx connection pool and verifies connectivity.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PostgresRepository implements TenantRepository and UserStateRepository on
// a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) BotIDByTenant(ctx context.Context, tenantID string) (int64, error) {
	var botID int64
	err := r.pool.QueryRow(ctx,
		`SELECT bot_id FROM tenants WHERE id = $1`, tenantID).Scan(&botID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("query tenant bot id: %w", err)
	}
	return botID, nil
}

func (r *PostgresRepository) BotByID(ctx context.Context, id int64) (*Bot, error) {
	var b Bot
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, username, token, webhook_url, active
		   FROM bots WHERE id = $1`, id).
		Scan(&b.ID, &b.TenantID, &b.Username, &b.Token, &b.WebhookURL, &b.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("bot %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query bot: %w", err)
	}
	return &b, nil
}

// TenantConfig returns the tenant row as a column map. Every column comes
// back, including system ones and nulls; the tenant directory filters.
func (r *PostgresRepository) TenantConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	rows, err := r.pool.Query(ctx, `SELECT * FROM tenants WHERE id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query tenant config: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query tenant config: %w", err)
		}
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}

	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("read tenant config row: %w", err)
	}
	fields := rows.FieldDescriptions()
	out := make(map[string]any, len(fields))
	for i, fd := range fields {
		out[fd.Name] = values[i]
	}
	return out, nil
}

func (r *PostgresRepository) TenantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) UserState(ctx context.Context, tenantID string, userID int64) (*models.UserState, error) {
	var (
		st      models.UserState
		rawData []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT state_type, state_data, expires_at
		   FROM user_states WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID).
		Scan(&st.StateType, &rawData, &st.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user state %s/%d: %w", tenantID, userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user state: %w", err)
	}
	if len(rawData) > 0 {
		if err := json.Unmarshal(rawData, &st.StateData); err != nil {
			return nil, fmt.Errorf("decode state_data: %w", err)
		}
	}
	return &st, nil
}

func (r *PostgresRepository) SaveUserState(ctx context.Context, tenantID string, userID int64, state *models.UserState) error {
	rawData, err := json.Marshal(state.StateData)
	if err != nil {
		return fmt.Errorf("encode state_data: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO user_states (tenant_id, user_id, state_type, state_data, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tenant_id, user_id) DO UPDATE
		 SET state_type = EXCLUDED.state_type,
		     state_data = EXCLUDED.state_data,
		     expires_at = EXCLUDED.expires_at`,
		tenantID, userID, state.StateType, rawData, state.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save user state: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ClearUserState(ctx context.Context, tenantID string, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_states WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID)
	if err != nil {
		return fmt.Errorf("clear user state: %w", err)
	}
	return nil
}
