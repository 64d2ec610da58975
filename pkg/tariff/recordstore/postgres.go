package recordstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tournevent/tarif/pkg/tariff"
)

// Schema creates the two reference tables. Rates are keyed by the normalized
// commune name; the empty name holds the province default.
const Schema = `
CREATE TABLE IF NOT EXISTS tariff_provinces (
	code INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	zone INTEGER NOT NULL CHECK (zone >= 1)
);
CREATE TABLE IF NOT EXISTS tariff_rates (
	province_code INTEGER NOT NULL REFERENCES tariff_provinces(code),
	commune_key TEXT NOT NULL,
	commune_name TEXT NOT NULL,
	home_price DOUBLE PRECISION NOT NULL,
	office_price DOUBLE PRECISION,
	overweight_threshold_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
	overweight_rate_per_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
	cod_fee_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
	cod_fee_fixed DOUBLE PRECISION NOT NULL DEFAULT 0,
	insurance_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (province_code, commune_key)
);`

const foreignKeyViolationCode = "23503"

// PostgresStore is a Postgres implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping record store: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) ListProvinces(ctx context.Context) ([]tariff.Province, error) {
	if s.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := s.pool.Query(ctx, `SELECT code, name, zone FROM tariff_provinces ORDER BY code`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (tariff.Province, error) {
		var p tariff.Province
		err := row.Scan(&p.Code, &p.Name, &p.Zone)
		return p, err
	})
}

func (s *PostgresStore) ListRates(ctx context.Context, provinceCode int) ([]Rate, error) {
	if s.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT province_code, commune_name, home_price, office_price,
		       overweight_threshold_kg, overweight_rate_per_kg,
		       cod_fee_percentage, cod_fee_fixed, insurance_percentage, updated_at
		FROM tariff_rates
		WHERE $1 = 0 OR province_code = $1
		ORDER BY province_code, commune_key
	`, provinceCode)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Rate, error) {
		var r Rate
		err := row.Scan(
			&r.ProvinceCode,
			&r.CommuneName,
			&r.HomePrice,
			&r.OfficePrice,
			&r.OverweightThresholdKg,
			&r.OverweightRatePerKg,
			&r.CODFeePercentage,
			&r.CODFeeFixed,
			&r.InsurancePercentage,
			&r.UpdatedAt,
		)
		r.UpdatedAt = r.UpdatedAt.UTC()
		return r, err
	})
}

func (s *PostgresStore) UpsertProvince(ctx context.Context, p tariff.Province) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tariff_provinces (code, name, zone) VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, zone = EXCLUDED.zone
	`, p.Code, p.Name, p.Zone)
	return err
}

func (s *PostgresStore) UpsertRate(ctx context.Context, r Rate) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	updatedAt := r.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tariff_rates (
			province_code,
			commune_key,
			commune_name,
			home_price,
			office_price,
			overweight_threshold_kg,
			overweight_rate_per_kg,
			cod_fee_percentage,
			cod_fee_fixed,
			insurance_percentage,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (province_code, commune_key)
		DO UPDATE SET
			commune_name = EXCLUDED.commune_name,
			home_price = EXCLUDED.home_price,
			office_price = EXCLUDED.office_price,
			overweight_threshold_kg = EXCLUDED.overweight_threshold_kg,
			overweight_rate_per_kg = EXCLUDED.overweight_rate_per_kg,
			cod_fee_percentage = EXCLUDED.cod_fee_percentage,
			cod_fee_fixed = EXCLUDED.cod_fee_fixed,
			insurance_percentage = EXCLUDED.insurance_percentage,
			updated_at = EXCLUDED.updated_at
	`,
		r.ProvinceCode,
		tariff.NormalizeName(r.CommuneName),
		r.CommuneName,
		r.HomePrice,
		r.OfficePrice,
		r.OverweightThresholdKg,
		r.OverweightRatePerKg,
		r.CODFeePercentage,
		r.CODFeeFixed,
		r.InsurancePercentage,
		updatedAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode {
			return fmt.Errorf("%w: %d", ErrUnknownProvince, r.ProvinceCode)
		}
		return err
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
