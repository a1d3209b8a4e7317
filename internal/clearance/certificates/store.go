package certificates

import (
	"context"
	"database/sql"
	"errors"

	mysql "github.com/go-sql-driver/mysql"

	"LECS-backend/internal/audit"
	"LECS-backend/internal/platform/db"
)

// ErrDuplicate: UNIQUE(request_ulid) 違反。発行レースで負けた側が踏む
var ErrDuplicate = errors.New("certificate already exists for request")

type Store interface {
	GetByRequest(ctx context.Context, requestULID string) (*Certificate, error)
	GetByNumber(ctx context.Context, number string) (*Certificate, error)
	Insert(ctx context.Context, cert *Certificate, entry *audit.Entry) error
}

type mysqlStore struct {
	db    *sql.DB
	audit *audit.Store
}

func NewStore(conn *sql.DB, auditStore *audit.Store) Store {
	return &mysqlStore{db: conn, audit: auditStore}
}

const selectCols = `
SELECT cert_id, cert_number, request_ulid, user_id, issued_at, eligibility_snapshot
FROM certificates
`

func (s *mysqlStore) scanOne(row *sql.Row) (*Certificate, error) {
	var (
		c        Certificate
		snapshot sql.NullString
	)
	err := row.Scan(&c.CertID, &c.Number, &c.RequestULID, &c.UserID, &c.IssuedAt, &snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if snapshot.Valid {
		c.Snapshot = []byte(snapshot.String)
	}
	return &c, nil
}

func (s *mysqlStore) GetByRequest(ctx context.Context, requestULID string) (*Certificate, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectCols+`WHERE request_ulid = ? LIMIT 1`, requestULID))
}

func (s *mysqlStore) GetByNumber(ctx context.Context, number string) (*Certificate, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectCols+`WHERE cert_number = ? LIMIT 1`, number))
}

func (s *mysqlStore) Insert(ctx context.Context, cert *Certificate, entry *audit.Entry) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const q = `
INSERT INTO certificates (cert_number, request_ulid, user_id, issued_at, eligibility_snapshot)
VALUES (?, ?, ?, ?, ?)`

		var snapshot any
		if len(cert.Snapshot) > 0 {
			snapshot = string(cert.Snapshot)
		}

		res, err := tx.ExecContext(ctx, q, cert.Number, cert.RequestULID, cert.UserID, cert.IssuedAt, snapshot)
		if err != nil {
			var me *mysql.MySQLError
			if errors.As(err, &me) && me.Number == 1062 {
				return ErrDuplicate
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		cert.CertID = id

		if entry != nil {
			return s.audit.InsertTx(ctx, tx, entry)
		}
		return nil
	})
}
