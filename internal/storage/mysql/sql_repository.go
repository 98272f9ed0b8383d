package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	xerrors "InkaSwap-Provider/internal/errors"
)

const (
	insertDeploymentSQL = `INSERT INTO deployments
    (id, network, contract, args_hash, address, tx_hash, deployer, block_number, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectDeploymentColumns = `SELECT id, network, contract, args_hash, address, tx_hash, deployer, block_number, created_at
    FROM deployments`

	upsertTransactionSQL = `INSERT INTO transactions
    (hash, network, from_address, to_address, method, value, nonce, status, block_number, revert_reason, attempts, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON DUPLICATE KEY UPDATE status = VALUES(status), block_number = VALUES(block_number),
    revert_reason = VALUES(revert_reason), attempts = VALUES(attempts), updated_at = VALUES(updated_at)`

	selectTransactionColumns = `SELECT hash, network, from_address, to_address, method, value, nonce, status, block_number, revert_reason, attempts, created_at, updated_at
    FROM transactions`
)

// mysqlDuplicateEntry 是主键冲突的错误号。
const mysqlDuplicateEntry = 1062

// SQLRepository 使用真实的 MySQL 数据库存储部署与交易记录。
type SQLRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository 创建连接池并执行内置迁移。
func NewSQLRepository(ctx context.Context, cfg Config) (*SQLRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行数据库迁移失败")
	}
	return &SQLRepository{db: db}, nil
}

// SaveDeployment 写入部署记录。
func (s *SQLRepository) SaveDeployment(ctx context.Context, record *DeploymentRecord) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "部署记录不能为空")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}

	if _, err := s.db.ExecContext(ctx, insertDeploymentSQL,
		record.ID,
		record.Network,
		record.Contract,
		record.ArgsHash,
		record.Address,
		record.TxHash,
		record.Deployer,
		record.BlockNumber,
		record.CreatedAt,
	); err != nil {
		var myErr *mysqldrv.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("部署记录 %s 已存在", record.ID))
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入部署记录失败")
	}
	return nil
}

// FindDeployment 查询最近一次匹配的部署。
func (s *SQLRepository) FindDeployment(ctx context.Context, network, contract, argsHash string) (*DeploymentRecord, error) {
	row := s.db.QueryRowContext(ctx, selectDeploymentColumns+`
    WHERE network = ? AND contract = ? AND args_hash = ? ORDER BY created_at DESC LIMIT 1`, network, contract, argsHash)

	rec, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("网络 %s 上没有 %s 的部署记录", network, contract))
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询部署记录失败")
	}
	return rec, nil
}

// ListDeployments 按时间倒序查询部署记录。
func (s *SQLRepository) ListDeployments(ctx context.Context, network string, limit int) ([]DeploymentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if network == "" {
		rows, err = s.db.QueryContext(ctx, selectDeploymentColumns+` ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, selectDeploymentColumns+` WHERE network = ? ORDER BY created_at DESC LIMIT ?`, network, limit)
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询部署记录失败")
	}
	defer rows.Close()

	var records []DeploymentRecord
	for rows.Next() {
		rec, err := scanDeployment(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析部署记录失败")
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历部署记录失败")
	}
	return records, nil
}

// SaveTransaction 按哈希插入或更新交易状态。
func (s *SQLRepository) SaveTransaction(ctx context.Context, record TransactionRecord) error {
	if record.Hash == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "交易哈希不能为空")
	}
	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	if record.UpdatedAt == 0 {
		record.UpdatedAt = now
	}

	if _, err := s.db.ExecContext(ctx, upsertTransactionSQL,
		record.Hash,
		record.Network,
		record.From,
		record.To,
		record.Method,
		record.Value,
		record.Nonce,
		record.Status,
		record.BlockNumber,
		record.RevertReason,
		record.Attempts,
		record.CreatedAt,
		record.UpdatedAt,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入交易记录失败")
	}
	return nil
}

// GetTransaction 按哈希查询交易。
func (s *SQLRepository) GetTransaction(ctx context.Context, hash string) (*TransactionRecord, error) {
	row := s.db.QueryRowContext(ctx, selectTransactionColumns+` WHERE hash = ?`, hash)
	rec, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("交易 %s 不存在", hash))
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询交易记录失败")
	}
	return rec, nil
}

// ListTransactions 按更新时间倒序查询交易。
func (s *SQLRepository) ListTransactions(ctx context.Context, status string, limit int) ([]TransactionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.QueryContext(ctx, selectTransactionColumns+` ORDER BY updated_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, selectTransactionColumns+` WHERE status = ? ORDER BY updated_at DESC LIMIT ?`, status, limit)
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询交易记录失败")
	}
	defer rows.Close()

	var records []TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析交易记录失败")
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历交易记录失败")
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row scanner) (*DeploymentRecord, error) {
	var rec DeploymentRecord
	if err := row.Scan(&rec.ID, &rec.Network, &rec.Contract, &rec.ArgsHash, &rec.Address, &rec.TxHash, &rec.Deployer, &rec.BlockNumber, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanTransaction(row scanner) (*TransactionRecord, error) {
	var rec TransactionRecord
	if err := row.Scan(&rec.Hash, &rec.Network, &rec.From, &rec.To, &rec.Method, &rec.Value, &rec.Nonce, &rec.Status, &rec.BlockNumber, &rec.RevertReason, &rec.Attempts, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
