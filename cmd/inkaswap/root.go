package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"InkaSwap-Provider/internal/config"
	"InkaSwap-Provider/internal/contract"
	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/observability/metrics"
	"InkaSwap-Provider/internal/storage/mysql"
	"InkaSwap-Provider/internal/submit"
	"InkaSwap-Provider/internal/txtrack"
	"InkaSwap-Provider/internal/wallet"
	"InkaSwap-Provider/internal/web3"
	"InkaSwap-Provider/internal/web3/provider"
	"InkaSwap-Provider/pkg/logger"
)

// app 保存所有子命令共享的配置与依赖。
type app struct {
	out        io.Writer
	configPath string
	envFiles   []string
	network    string

	cfg      *config.Config
	defs     web3.NetworkDefinitions
	secrets  config.Secrets
	recorder *metrics.Recorder
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "inkaswap",
		Short:         "InkaPancakeSwapProvider 部署与调用工具",
		Long:          "部署 InkaPancakeSwapProvider 合约，调用其读写方法，执行代币兑换并跟踪未确认的交易。",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "配置文件路径 (默认读取 $"+config.EnvConfigPath+" 或 "+config.DefaultPath+")")
	flags.StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "加载助记词的 .env 文件，已存在的环境变量优先")
	flags.StringVarP(&a.network, "network", "n", "", "目标网络，默认使用 networks.yaml 中的 default")

	root.AddCommand(
		newMigrateCommand(a),
		newWalletCommand(a),
		newCallCommand(a),
		newSendCommand(a),
		newSwapCommand(a),
		newTrackCommand(a),
		newNetworksCommand(a),
		newEventsCommand(a),
	)
	return root
}

// load 读取配置、初始化日志并解析网络定义与凭据。
func (a *app) load() error {
	path := config.ResolvePath(a.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		if a.configPath != "" || !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		cfg = config.Default(".")
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	defs, err := web3.LoadNetworkDefinitions(cfg.Networks.File)
	if err != nil {
		return err
	}
	if cfg.Networks.Default != "" {
		defs.Default = cfg.Networks.Default
	}

	secrets, err := config.LoadSecrets(a.envFiles...)
	if err != nil {
		return err
	}

	a.cfg, a.defs, a.secrets = cfg, defs, secrets
	a.recorder = metrics.NewRecorder()
	return nil
}

// definition 返回目标网络的定义与解析后的名称。
func (a *app) definition() (web3.NetworkDefinition, string, error) {
	def, name, err := a.defs.Lookup(a.network)
	if err != nil {
		return web3.NetworkDefinition{}, "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "查找网络配置失败")
	}
	return def, name, nil
}

// dial 连接目标网络，返回的 closer 负责释放连接。
func (a *app) dial(ctx context.Context) (web3.Client, web3.NetworkDefinition, func(), error) {
	def, name, err := a.definition()
	if err != nil {
		return nil, def, nil, err
	}
	registry, err := provider.NewRegistry(ctx, a.defs, name)
	if err != nil {
		return nil, def, nil, err
	}
	client, err := registry.Client(name)
	if err != nil {
		registry.Close()
		return nil, def, nil, err
	}
	return client, def, registry.Close, nil
}

// wallet 从网络配置指定的环境变量派生签名钱包。
func (a *app) wallet(def web3.NetworkDefinition) (*wallet.Wallet, error) {
	phrase, err := a.secrets.Mnemonic(def.MnemonicEnv)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidMnemonic, err, "无法读取助记词")
	}
	w, err := wallet.Derive(phrase, wallet.WithAddressIndex(def.AddressIndex))
	if err != nil {
		return nil, err
	}
	if def.From != "" {
		from, err := contract.ParseAddress(def.From)
		if err != nil {
			return nil, err
		}
		if from != w.Address() {
			return nil, xerrors.New(xerrors.CodeConstraintViolation,
				fmt.Sprintf("配置的 from %s 与助记词派生的地址 %s 不一致", from.Hex(), w.Address().Hex()))
		}
	}
	return w, nil
}

func (a *app) openRepository(ctx context.Context) (mysql.Repository, error) {
	rc := a.cfg.Storage.Records
	return mysql.Open(ctx, rc.Driver, a.cfg.Runtime.DataDir, mysql.Config{
		DSN:             rc.DSN,
		MaxOpenConns:    rc.MaxOpenConns,
		MaxIdleConns:    rc.MaxIdleConns,
		ConnMaxLifetime: time.Duration(rc.ConnMaxLifetimeSeconds) * time.Second,
		ConnMaxIdleTime: time.Duration(rc.ConnMaxIdleTimeSeconds) * time.Second,
	})
}

func (a *app) openQueue(ctx context.Context) (txtrack.Queue, error) {
	tc := a.cfg.Tracker
	switch tc.Driver {
	case "", "memory":
		return txtrack.NewMemoryQueue(1024), nil
	case "redis":
		return txtrack.NewRedisQueue(ctx, txtrack.RedisQueueConfig{
			Address:   tc.Redis.Address,
			Password:  tc.Redis.Password,
			DB:        tc.Redis.DB,
			Queue:     tc.Redis.Queue,
			BlockWait: time.Duration(tc.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return txtrack.NewRabbitMQQueue(txtrack.RabbitMQConfig{
			URL:        tc.RabbitMQ.URL,
			Queue:      tc.RabbitMQ.Queue,
			Exchange:   tc.RabbitMQ.Exchange,
			RoutingKey: tc.RabbitMQ.RoutingKey,
			Prefetch:   tc.RabbitMQ.Prefetch,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", tc.Driver)
	}
}

// session 是一次写操作所需的全部依赖。
type session struct {
	client     web3.Client
	def        web3.NetworkDefinition
	wallet     *wallet.Wallet
	repo       mysql.Repository
	queue      txtrack.Queue
	submitter  *submit.Submitter
	transactor *submit.Transactor
	close      func()
}

// openSession 连接网络、派生钱包，并把超时交易交给跟踪队列。
func (a *app) openSession(ctx context.Context) (*session, error) {
	client, def, closeClient, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	w, err := a.wallet(def)
	if err != nil {
		closeClient()
		return nil, err
	}
	repo, err := a.openRepository(ctx)
	if err != nil {
		closeClient()
		return nil, err
	}
	queue, err := a.openQueue(ctx)
	if err != nil {
		repo.Close()
		closeClient()
		return nil, err
	}

	timeout, err := def.Timeout()
	if err != nil {
		queue.Close()
		repo.Close()
		closeClient()
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "confirm_timeout 配置无效")
	}
	if timeout == 0 {
		timeout = time.Duration(a.cfg.Deploy.ConfirmTimeoutSeconds) * time.Second
	}

	submitter := submit.New(client,
		submit.WithNetwork(client.Name()),
		submit.WithDefaultTimeout(timeout),
		submit.WithRecorder(a.recorder),
		submit.WithTracker(txtrack.NewTracker(queue, repo, a.pollInterval())),
		submit.WithLogger(logger.Named("submit")),
	)
	return &session{
		client:     client,
		def:        def,
		wallet:     w,
		repo:       repo,
		queue:      queue,
		submitter:  submitter,
		transactor: submit.NewTransactor(submitter, w, submit.WithChainID(def.ChainIDBig())),
		close: func() {
			queue.Close()
			repo.Close()
			closeClient()
		},
	}, nil
}

func (a *app) pollInterval() time.Duration {
	return time.Duration(a.cfg.Tracker.PollIntervalSeconds) * time.Second
}

// startMetrics 在配置启用时后台暴露 /metrics。
func (a *app) startMetrics(ctx context.Context) {
	if !a.cfg.Metrics.Enabled {
		return
	}
	go func() {
		if err := metrics.StartServer(ctx, a.cfg.Metrics.Address, a.recorder); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("指标服务异常退出", "error", err)
		}
	}()
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
