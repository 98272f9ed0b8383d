package mysql

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "InkaSwap-Provider/internal/errors"
)

const (
	deploymentsFile  = "deployments.log"
	transactionsFile = "transactions.log"
)

// MemoryRepository 使用本地 JSON 行文件模拟 MySQL 的效果，方便本地迁移与调试。
// 交易记录以追加方式写入，加载时同一哈希以最后一行为准。
type MemoryRepository struct {
	mu           sync.RWMutex
	dir          string
	deployments  []DeploymentRecord
	transactions map[string]TransactionRecord
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository 创建文件仓库并恢复已有记录。
func NewMemoryRepository(dataDir string) (*MemoryRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建数据目录失败")
	}
	repo := &MemoryRepository{dir: dataDir, transactions: make(map[string]TransactionRecord)}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// SaveDeployment 追加一条部署记录，并补齐 ID 与时间。
func (m *MemoryRepository) SaveDeployment(_ context.Context, record *DeploymentRecord) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "部署记录不能为空")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.append(deploymentsFile, record); err != nil {
		return err
	}
	m.deployments = append(m.deployments, *record)
	return nil
}

// FindDeployment 返回同一网络、合约与构造参数的最近一次部署。
func (m *MemoryRepository) FindDeployment(_ context.Context, network, contract, argsHash string) (*DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.deployments) - 1; i >= 0; i-- {
		rec := m.deployments[i]
		if rec.Network == network && rec.Contract == contract && rec.ArgsHash == argsHash {
			return &rec, nil
		}
	}
	return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("网络 %s 上没有 %s 的部署记录", network, contract))
}

// ListDeployments 按时间倒序返回部署记录，network 为空时不过滤。
func (m *MemoryRepository) ListDeployments(_ context.Context, network string, limit int) ([]DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []DeploymentRecord
	for i := len(m.deployments) - 1; i >= 0; i-- {
		if network != "" && m.deployments[i].Network != network {
			continue
		}
		results = append(results, m.deployments[i])
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, nil
}

// SaveTransaction 按哈希覆盖交易记录。
func (m *MemoryRepository) SaveTransaction(_ context.Context, record TransactionRecord) error {
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

	m.mu.Lock()
	defer m.mu.Unlock()

	if previous, ok := m.transactions[record.Hash]; ok && previous.CreatedAt < record.CreatedAt {
		record.CreatedAt = previous.CreatedAt
	}
	if err := m.append(transactionsFile, record); err != nil {
		return err
	}
	m.transactions[record.Hash] = record
	return nil
}

// GetTransaction 返回指定哈希的交易记录。
func (m *MemoryRepository) GetTransaction(_ context.Context, hash string) (*TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.transactions[hash]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("交易 %s 不存在", hash))
	}
	return &rec, nil
}

// ListTransactions 按更新时间倒序返回交易，status 为空时不过滤。
func (m *MemoryRepository) ListTransactions(_ context.Context, status string, limit int) ([]TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]TransactionRecord, 0, len(m.transactions))
	for _, rec := range m.transactions {
		if status == "" || rec.Status == status {
			results = append(results, rec)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].UpdatedAt == results[j].UpdatedAt {
			return results[i].Hash < results[j].Hash
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close 文件仓库无需释放资源。
func (m *MemoryRepository) Close() error {
	return nil
}

func (m *MemoryRepository) append(name string, record any) error {
	file, err := os.OpenFile(filepath.Join(m.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开记录文件失败")
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化记录失败")
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入记录文件失败")
	}
	return nil
}

func (m *MemoryRepository) loadFromDisk() error {
	if err := scanLines(filepath.Join(m.dir, deploymentsFile), func(line []byte) {
		var rec DeploymentRecord
		if json.Unmarshal(line, &rec) == nil {
			m.deployments = append(m.deployments, rec)
		}
	}); err != nil {
		return err
	}
	return scanLines(filepath.Join(m.dir, transactionsFile), func(line []byte) {
		var rec TransactionRecord
		if json.Unmarshal(line, &rec) == nil && rec.Hash != "" {
			m.transactions[rec.Hash] = rec
		}
	})
}

func scanLines(path string, fn func([]byte)) error {
	file, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取记录文件失败")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fn(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析记录文件失败")
	}
	return nil
}
