package mysql

import (
	"context"
	"errors"
	"time"
)

// 交易记录状态。
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusReverted  = "reverted"
	// StatusAbandoned 表示超过重查次数仍未获得回执，需要人工处理。
	StatusAbandoned = "abandoned"
)

// ErrUnsupportedDriver 表示配置了未知的存储驱动。
var ErrUnsupportedDriver = errors.New("暂不支持的存储驱动")

// DeploymentRecord 记录一次合约迁移的结果。
type DeploymentRecord struct {
	ID       string `json:"id"`
	Network  string `json:"network"`
	Contract string `json:"contract"`
	// ArgsHash 是构造参数 ABI 编码的 keccak256，用于判断迁移是否已执行。
	ArgsHash    string `json:"args_hash"`
	Address     string `json:"address"`
	TxHash      string `json:"tx_hash"`
	Deployer    string `json:"deployer"`
	BlockNumber uint64 `json:"block_number"`
	CreatedAt   int64  `json:"created_at"`
}

// TransactionRecord 记录一笔已广播交易的最终或当前状态。
type TransactionRecord struct {
	Hash         string `json:"hash"`
	Network      string `json:"network"`
	From         string `json:"from"`
	To           string `json:"to"`
	Method       string `json:"method"`
	Value        string `json:"value"`
	Nonce        uint64 `json:"nonce"`
	Status       string `json:"status"`
	BlockNumber  uint64 `json:"block_number"`
	RevertReason string `json:"revert_reason"`
	Attempts     int    `json:"attempts"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// DeploymentRepository 抽象部署记录的持久化接口。
type DeploymentRepository interface {
	SaveDeployment(ctx context.Context, record *DeploymentRecord) error
	// FindDeployment 在记录不存在时返回 NOT_FOUND 错误。
	FindDeployment(ctx context.Context, network, contract, argsHash string) (*DeploymentRecord, error)
	ListDeployments(ctx context.Context, network string, limit int) ([]DeploymentRecord, error)
}

// TransactionRepository 抽象交易记录的持久化接口，按哈希覆盖写入。
type TransactionRepository interface {
	SaveTransaction(ctx context.Context, record TransactionRecord) error
	GetTransaction(ctx context.Context, hash string) (*TransactionRecord, error)
	ListTransactions(ctx context.Context, status string, limit int) ([]TransactionRecord, error)
}

// Repository 同时提供两类记录，并持有底层资源。
type Repository interface {
	DeploymentRepository
	TransactionRepository
	Close() error
}

// Config 描述 MySQL 连接池参数。
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open 根据驱动名称创建仓库，memory 驱动的数据写入 dataDir。
func Open(ctx context.Context, driver, dataDir string, cfg Config) (Repository, error) {
	switch driver {
	case "", "memory":
		return NewMemoryRepository(dataDir)
	case "mysql":
		return NewSQLRepository(ctx, cfg)
	default:
		return nil, ErrUnsupportedDriver
	}
}
