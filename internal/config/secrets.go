package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Secrets 保存从环境变量读取的钱包凭据，绝不写入配置文件或日志。
type Secrets struct {
	MnemonicTestnet string `envconfig:"MNEMONIC_TESTNET"`
	MnemonicMainnet string `envconfig:"MNEMONIC_MAINNET"`
	AddressMainnet  string `envconfig:"ADDRESS_MAINNET"`
}

// LoadSecrets 先尝试加载 .env 文件（已存在的环境变量优先），再解析凭据。
func LoadSecrets(envFiles ...string) (Secrets, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("加载环境文件 %s 失败: %w", file, err)
		}
	}

	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return Secrets{}, fmt.Errorf("解析环境变量失败: %w", err)
	}
	return s, nil
}

// Mnemonic 返回 env 指定的助记词。常用变量直接取自 Secrets，其余从进程环境读取。
func (s Secrets) Mnemonic(env string) (string, error) {
	env = strings.TrimSpace(env)
	var value string
	switch env {
	case "":
		return "", errors.New("网络未配置 mnemonic_env")
	case "MNEMONIC_TESTNET":
		value = s.MnemonicTestnet
	case "MNEMONIC_MAINNET":
		value = s.MnemonicMainnet
	default:
		value = os.Getenv(env)
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("环境变量 %s 未设置", env)
	}
	return value, nil
}

// String 隐藏助记词内容。
func (s Secrets) String() string {
	return fmt.Sprintf("Secrets{testnet:%t mainnet:%t address:%q}",
		s.MnemonicTestnet != "", s.MnemonicMainnet != "", s.AddressMainnet)
}
