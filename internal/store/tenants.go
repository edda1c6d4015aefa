package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// Tenant is the persisted tenant row. Salt and iteration count are the
// published key-derivation input contract; the key itself never exists
// here.
type Tenant struct {
	ID            int
	Name          string
	Salt          string
	KDFIterations int
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type TenantStore struct {
	client *Client
}

var tenantColumns = []string{"id", "name", "salt", "kdf_iterations", "status", "created_at", "updated_at"}

func (s *TenantStore) scan(row interface{ Scan(...any) error }) (*Tenant, error) {
	var (
		t                    Tenant
		createdAt, updatedAt int64
	)

	err := row.Scan(&t.ID, &t.Name, &t.Salt, &t.KDFIterations, &t.Status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	t.CreatedAt = unixToTime(createdAt)
	t.UpdatedAt = unixToTime(updatedAt)

	return &t, nil
}

func (s *TenantStore) Create(ctx context.Context, name, salt string, kdfIterations int) (*Tenant, error) {
	now := time.Now().UTC().Truncate(time.Second)

	b := s.client.builder().Insert("tenants").
		Columns("name", "salt", "kdf_iterations", "status", "created_at", "updated_at").
		Values(name, salt, kdfIterations, "active", now.Unix(), now.Unix())

	id, err := s.client.insertID(ctx, b)
	if err != nil {
		return nil, err
	}

	return &Tenant{
		ID:            id,
		Name:          name,
		Salt:          salt,
		KDFIterations: kdfIterations,
		Status:        "active",
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *TenantStore) ByID(ctx context.Context, id int) (*Tenant, error) {
	query, args := s.client.builder().Select(tenantColumns...).
		From(entsql.Table("tenants")).
		Where(entsql.EQ("id", id)).
		Query()

	return s.scan(s.client.conn.QueryRowContext(ctx, query, args...))
}

func (s *TenantStore) ByName(ctx context.Context, name string) (*Tenant, error) {
	query, args := s.client.builder().Select(tenantColumns...).
		From(entsql.Table("tenants")).
		Where(entsql.EQ("name", name)).
		Query()

	return s.scan(s.client.conn.QueryRowContext(ctx, query, args...))
}

func (s *TenantStore) List(ctx context.Context) ([]*Tenant, error) {
	query, args := s.client.builder().Select(tenantColumns...).
		From(entsql.Table("tenants")).
		OrderBy("id").
		Query()

	rows, err := s.client.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*Tenant

	for rows.Next() {
		t, err := s.scan(rows)
		if err != nil {
			return nil, err
		}

		tenants = append(tenants, t)
	}

	return tenants, rows.Err()
}

// ListActive returns tenants eligible for maintenance.
func (s *TenantStore) ListActive(ctx context.Context) ([]*Tenant, error) {
	query, args := s.client.builder().Select(tenantColumns...).
		From(entsql.Table("tenants")).
		Where(entsql.EQ("status", "active")).
		OrderBy("id").
		Query()

	rows, err := s.client.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*Tenant

	for rows.Next() {
		t, err := s.scan(rows)
		if err != nil {
			return nil, err
		}

		tenants = append(tenants, t)
	}

	return tenants, rows.Err()
}

func (s *TenantStore) UpdateStatus(ctx context.Context, id int, status string) error {
	query, args := s.client.builder().Update("tenants").
		Set("status", status).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(entsql.EQ("id", id)).
		Query()

	res, err := s.client.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}
