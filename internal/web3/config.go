package web3

import (
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkDefinitions models the structure of configs/networks.yaml.
type NetworkDefinitions struct {
	Default  string                       `yaml:"default"`
	Networks map[string]NetworkDefinition `yaml:"networks"`
}

// NetworkDefinition describes a single network endpoint together with the
// signing wallet and deployment parameters used on it.
type NetworkDefinition struct {
	Type        string `yaml:"type"`
	RPCURL      string `yaml:"rpc_url"`
	WSURL       string `yaml:"ws_url"`
	BatchRPCURL string `yaml:"batch_rpc_url"`
	ChainID     int64  `yaml:"chain_id"`
	Description string `yaml:"description"`

	// MnemonicEnv names the environment variable holding the wallet phrase.
	MnemonicEnv  string `yaml:"mnemonic_env"`
	AddressIndex uint32 `yaml:"address_index"`
	From         string `yaml:"from"`

	Gas            uint64 `yaml:"gas"`
	GasPriceGwei   string `yaml:"gas_price_gwei"`
	SkipDryRun     bool   `yaml:"skip_dry_run"`
	ConfirmTimeout string `yaml:"confirm_timeout"`

	WrappedNative string `yaml:"wrapped_native"`
	Factory       string `yaml:"factory"`
}

// LoadNetworkDefinitions parses the YAML file containing network metadata.
func LoadNetworkDefinitions(path string) (NetworkDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return NetworkDefinitions{Networks: map[string]NetworkDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return NetworkDefinitions{}, fmt.Errorf("读取网络配置失败: %w", err)
	}
	return ParseNetworkDefinitions(content)
}

// ParseNetworkDefinitions decodes network metadata from YAML bytes.
func ParseNetworkDefinitions(content []byte) (NetworkDefinitions, error) {
	var defs NetworkDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return NetworkDefinitions{}, fmt.Errorf("解析网络配置失败: %w", err)
	}
	if defs.Networks == nil {
		defs.Networks = map[string]NetworkDefinition{}
	}
	for name, def := range defs.Networks {
		if _, err := def.GasPrice(); err != nil {
			return NetworkDefinitions{}, fmt.Errorf("网络 %s: %w", name, err)
		}
		if _, err := def.Timeout(); err != nil {
			return NetworkDefinitions{}, fmt.Errorf("网络 %s: %w", name, err)
		}
	}
	if defs.Default != "" {
		if _, ok := defs.Networks[defs.Default]; !ok {
			return NetworkDefinitions{}, fmt.Errorf("默认网络 %s 未在配置中找到", defs.Default)
		}
	}
	return defs, nil
}

// Names returns the configured network names in sorted order.
func (d NetworkDefinitions) Names() []string {
	names := make([]string, 0, len(d.Networks))
	for name := range d.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named definition, falling back to the default network
// when name is empty.
func (d NetworkDefinitions) Lookup(name string) (NetworkDefinition, string, error) {
	if name == "" {
		name = d.Default
	}
	if name == "" {
		names := d.Names()
		if len(names) == 0 {
			return NetworkDefinition{}, "", fmt.Errorf("未配置任何网络")
		}
		name = names[0]
	}
	def, ok := d.Networks[name]
	if !ok {
		return NetworkDefinition{}, "", fmt.Errorf("网络 %s 未在配置中找到", name)
	}
	return def, name, nil
}

// GasPrice converts the configured gwei amount to wei. An empty value yields
// nil so the endpoint suggestion is used.
func (n NetworkDefinition) GasPrice() (*big.Int, error) {
	raw := strings.TrimSpace(n.GasPriceGwei)
	if raw == "" {
		return nil, nil
	}
	return ParseUnits(raw, 9)
}

// ParseUnits converts a decimal amount such as "0.0863" into an integer
// scaled by 10^decimals. Fractions finer than the unit are rejected.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	value, ok := new(big.Rat).SetString(strings.TrimSpace(amount))
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("无效的数量: %q", amount)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	value.Mul(value, new(big.Rat).SetInt(scale))
	if !value.IsInt() {
		return nil, fmt.Errorf("数量 %q 超出 %d 位精度", amount, decimals)
	}
	return new(big.Int).Set(value.Num()), nil
}

// FormatUnits renders amount divided by 10^decimals without trailing zeros,
// the inverse of ParseUnits.
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(new(big.Int).Abs(amount), scale, new(big.Int))

	out := whole.String()
	if frac.Sign() != 0 {
		digits := frac.String()
		digits = strings.Repeat("0", decimals-len(digits)) + digits
		out += "." + strings.TrimRight(digits, "0")
	}
	if amount.Sign() < 0 {
		out = "-" + out
	}
	return out
}

// Timeout parses the receipt confirmation timeout; empty means zero.
func (n NetworkDefinition) Timeout() (time.Duration, error) {
	raw := strings.TrimSpace(n.ConfirmTimeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("无效的 confirm_timeout: %w", err)
	}
	return d, nil
}

// ChainIDBig returns the configured chain ID or nil when unset.
func (n NetworkDefinition) ChainIDBig() *big.Int {
	if n.ChainID == 0 {
		return nil
	}
	return big.NewInt(n.ChainID)
}
