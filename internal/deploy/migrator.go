package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/storage/mysql"
	"InkaSwap-Provider/internal/submit"
	"InkaSwap-Provider/internal/web3"
	"InkaSwap-Provider/pkg/logger"
)

// Deployer is the account that signs creation transactions. *wallet.Wallet
// satisfies it.
type Deployer interface {
	Address() common.Address
	TransactOpts(chainID *big.Int) (*bind.TransactOpts, error)
}

// MigrateRequest describes one contract migration.
type MigrateRequest struct {
	Artifact *Artifact
	// Args are the constructor arguments, coerced through the constructor
	// entry of the artifact ABI.
	Args []any
	// Force redeploys even when the same migration is already recorded.
	Force bool
	// DryRun only estimates the creation gas.
	DryRun bool
}

// MigrateResult reports what a migration did.
type MigrateResult struct {
	Network     string
	Contract    string
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
	GasEstimate uint64
	ArgsHash    string
	// Skipped is set when a recorded deployment was reused.
	Skipped bool
	DryRun  bool
}

// Migrator deploys build artifacts to one network and records the result.
type Migrator struct {
	client    web3.Client
	deployer  Deployer
	repo      mysql.DeploymentRepository
	submitter *submit.Submitter
	network   web3.NetworkDefinition
	log       *slog.Logger
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithNetworkDefinition applies gas, gas price, dry-run and timeout settings
// of the target network.
func WithNetworkDefinition(def web3.NetworkDefinition) Option {
	return func(m *Migrator) { m.network = def }
}

// WithSubmitter overrides the submitter used to wait for receipts.
func WithSubmitter(s *submit.Submitter) Option {
	return func(m *Migrator) {
		if s != nil {
			m.submitter = s
		}
	}
}

// NewMigrator creates a migrator. repo may be nil, in which case every run
// deploys.
func NewMigrator(client web3.Client, deployer Deployer, repo mysql.DeploymentRepository, opts ...Option) *Migrator {
	m := &Migrator{
		client:   client,
		deployer: deployer,
		repo:     repo,
		log:      logger.Named("deploy"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.submitter == nil && client != nil {
		m.submitter = submit.New(client, submit.WithNetwork(client.Name()))
	}
	return m
}

// Run executes req: skip if already recorded, optionally estimate gas,
// deploy, wait for the receipt, verify the code and record the deployment.
func (m *Migrator) Run(ctx context.Context, req MigrateRequest) (MigrateResult, error) {
	if m.client == nil || m.deployer == nil {
		return MigrateResult{}, xerrors.New(xerrors.CodeInvalidArgument, "迁移缺少网络客户端或部署账户")
	}
	if req.Artifact == nil {
		return MigrateResult{}, xerrors.New(xerrors.CodeInvalidArgument, "未提供合约构建产物")
	}
	artifact := req.Artifact
	network := m.client.Name()

	input, err := artifact.constructor(req.Args)
	if err != nil {
		return MigrateResult{}, err
	}
	result := MigrateResult{Network: network, Contract: artifact.ContractName, ArgsHash: input.argsHash}

	if !req.Force && !req.DryRun && m.repo != nil {
		existing, err := m.repo.FindDeployment(ctx, network, artifact.ContractName, input.argsHash)
		switch {
		case err == nil:
			m.log.Info("迁移已执行，跳过部署", "network", network, "contract", artifact.ContractName, "address", existing.Address)
			result.Address = common.HexToAddress(existing.Address)
			result.TxHash = common.HexToHash(existing.TxHash)
			result.BlockNumber = existing.BlockNumber
			result.Skipped = true
			return result, nil
		case !errors.Is(err, xerrors.ErrNotFound):
			return MigrateResult{}, err
		}
	}

	if req.DryRun || !m.network.SkipDryRun {
		gas, err := m.client.EstimateGas(ctx, gethcore.CallMsg{
			From: m.deployer.Address(),
			Data: artifact.creationData(input),
		})
		if err != nil {
			return MigrateResult{}, xerrors.Annotate(web3.ClassifyError(err), xerrors.MetaMethod, "constructor")
		}
		result.GasEstimate = gas
		if req.DryRun {
			result.DryRun = true
			m.log.Info("试运行完成", "network", network, "contract", artifact.ContractName, "gas", gas)
			return result, nil
		}
	}

	auth, err := m.transactOpts(ctx)
	if err != nil {
		return MigrateResult{}, err
	}
	deployed, err := m.client.DeployContract(ctx, auth, artifact.Definition.ABI(), artifact.Bytecode, input.values...)
	if err != nil {
		return MigrateResult{}, err
	}
	result.Address = deployed.ContractAddress
	result.TxHash = deployed.Transaction.Hash()
	logger.Audit().Info("contract creation submitted",
		"network", network,
		"contract", artifact.ContractName,
		"tx_hash", result.TxHash.Hex(),
		"address", result.Address.Hex(),
		"deployer", m.deployer.Address().Hex(),
	)

	timeout, err := m.network.Timeout()
	if err != nil {
		return result, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "confirm_timeout 配置无效")
	}
	receipt, err := m.submitter.Wait(ctx, deployed.Transaction, submit.WaitOptions{Timeout: timeout})
	if err != nil {
		return result, err
	}
	result.BlockNumber = receipt.BlockNumber.Uint64()

	code, err := m.client.CodeAt(ctx, result.Address, nil)
	if err != nil {
		return result, web3.ClassifyError(err)
	}
	if len(code) == 0 {
		return result, xerrors.New(xerrors.CodeReverted, fmt.Sprintf("部署完成但地址 %s 上没有合约代码", result.Address.Hex()),
			xerrors.WithMetadata(xerrors.MetaTxHash, result.TxHash.Hex()))
	}

	if m.repo != nil {
		if err := m.repo.SaveDeployment(ctx, &mysql.DeploymentRecord{
			Network:     network,
			Contract:    artifact.ContractName,
			ArgsHash:    input.argsHash,
			Address:     result.Address.Hex(),
			TxHash:      result.TxHash.Hex(),
			Deployer:    m.deployer.Address().Hex(),
			BlockNumber: result.BlockNumber,
			CreatedAt:   time.Now().Unix(),
		}); err != nil {
			return result, err
		}
	}
	logger.Audit().Info("contract deployed",
		"network", network,
		"contract", artifact.ContractName,
		"address", result.Address.Hex(),
		"block", result.BlockNumber,
	)
	return result, nil
}

func (m *Migrator) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	chainID, err := m.client.ChainID(ctx)
	if err != nil {
		return nil, web3.ClassifyError(err)
	}
	auth, err := m.deployer.TransactOpts(chainID)
	if err != nil {
		return nil, err
	}
	auth.Context = ctx
	if m.network.Gas > 0 {
		auth.GasLimit = m.network.Gas
	}
	gasPrice, err := m.network.GasPrice()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "gas_price_gwei 配置无效")
	}
	if gasPrice != nil {
		auth.GasPrice = gasPrice
	}
	return auth, nil
}
