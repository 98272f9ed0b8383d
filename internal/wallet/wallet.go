// Package wallet derives signing accounts from BIP-39 mnemonics and signs
// transaction requests with them. Derivation and signing are pure: no I/O,
// no randomness, and no key material leaves the Wallet value.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/web3"
)

// DefaultPath is m/44'/60'/0'/0/0, the first account of the standard
// Ethereum derivation used by HD wallet providers.
var DefaultPath = accounts.DefaultBaseDerivationPath

type options struct {
	passphrase string
	path       accounts.DerivationPath
}

// Option customises derivation.
type Option func(*options)

// WithPassphrase sets the optional BIP-39 passphrase.
func WithPassphrase(passphrase string) Option {
	return func(o *options) { o.passphrase = passphrase }
}

// WithPath derives at an explicit path.
func WithPath(path accounts.DerivationPath) Option {
	return func(o *options) {
		o.path = append(accounts.DerivationPath(nil), path...)
	}
}

// WithAddressIndex derives the index-th account below the default base path.
func WithAddressIndex(index uint32) Option {
	return func(o *options) { o.path = indexPath(index) }
}

// ParsePath parses a textual derivation path such as m/44'/60'/0'/0/3.
func ParsePath(raw string) (accounts.DerivationPath, error) {
	path, err := accounts.ParseDerivationPath(strings.TrimSpace(raw))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("派生路径 %q 无效", raw))
	}
	return path, nil
}

// Wallet holds one derived key pair.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	path    accounts.DerivationPath
}

var _ web3.Signer = (*Wallet)(nil)

// Derive validates mnemonic and derives the account at the configured path.
// The same mnemonic and options always yield the same wallet.
func Derive(mnemonic string, opts ...Option) (*Wallet, error) {
	o := options{path: indexPath(0)}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	master, err := masterKey(mnemonic, o.passphrase)
	if err != nil {
		return nil, err
	}
	return deriveAt(master, o.path)
}

// DeriveAccounts derives count consecutive accounts starting at index below
// the default base path.
func DeriveAccounts(mnemonic string, index, count uint32, opts ...Option) ([]*Wallet, error) {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	master, err := masterKey(mnemonic, o.passphrase)
	if err != nil {
		return nil, err
	}

	wallets := make([]*Wallet, 0, count)
	for i := uint32(0); i < count; i++ {
		w, err := deriveAt(master, indexPath(index+i))
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, nil
}

func masterKey(mnemonic, passphrase string) (*hdkeychain.ExtendedKey, error) {
	phrase := strings.Join(strings.Fields(mnemonic), " ")
	if phrase == "" {
		return nil, xerrors.New(xerrors.CodeInvalidMnemonic, "助记词不能为空")
	}
	seed, err := bip39.NewSeedWithErrorChecking(phrase, passphrase)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidMnemonic, err, "助记词校验失败")
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidMnemonic, err, "生成主密钥失败")
	}
	return master, nil
}

func deriveAt(master *hdkeychain.ExtendedKey, path accounts.DerivationPath) (*Wallet, error) {
	child := master
	for _, index := range path {
		next, err := child.Derive(index)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("按路径 %s 派生失败", path))
		}
		child = next
	}

	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "读取派生私钥失败")
	}
	key, err := crypto.ToECDSA(priv.Serialize())
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "转换派生私钥失败")
	}

	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		path:    append(accounts.DerivationPath(nil), path...),
	}, nil
}

func indexPath(index uint32) accounts.DerivationPath {
	path := append(accounts.DerivationPath(nil), accounts.DefaultBaseDerivationPath[:4]...)
	return append(path, index)
}

// Address returns the account address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// Path returns the derivation path, nil for raw keys.
func (w *Wallet) Path() accounts.DerivationPath {
	return append(accounts.DerivationPath(nil), w.path...)
}

// PrivateKey returns the 32-byte secret as 0x-prefixed hex. Callers must
// never log or persist it.
func (w *Wallet) PrivateKey() string {
	return hexutil.Encode(crypto.FromECDSA(w.key))
}

// Sign signs req as a legacy transaction with the EIP-155 signer of
// chainID. The request is not modified; nonce, gas and gas price must
// already be set.
func (w *Wallet) Sign(req web3.TransactionRequest, chainID *big.Int) (*types.Transaction, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "签名需要有效的链 ID")
	}
	if req.From != (common.Address{}) && req.From != w.address {
		return nil, xerrors.New(xerrors.CodeConstraintViolation,
			fmt.Sprintf("交易发送方 %s 与钱包地址 %s 不一致", req.From.Hex(), w.address.Hex()))
	}
	if req.Nonce == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "交易缺少 nonce")
	}
	if req.GasPrice == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "交易缺少 gas price")
	}
	if req.Gas == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "交易缺少 gas limit")
	}

	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	var to *common.Address
	if req.To != nil {
		addr := *req.To
		to = &addr
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    *req.Nonce,
		GasPrice: new(big.Int).Set(req.GasPrice),
		Gas:      req.Gas,
		To:       to,
		Value:    value,
		Data:     common.CopyBytes(req.Data),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "交易签名失败")
	}
	return signed, nil
}

// TransactOpts returns go-ethereum transact options signing with this
// wallet, used for contract deployment.
func (w *Wallet) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, chainID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "创建交易签名器失败")
	}
	return opts, nil
}

// String never includes key material.
func (w *Wallet) String() string {
	return fmt.Sprintf("wallet(%s)", w.address.Hex())
}

// LogValue implements slog.LogValuer and exposes only public data.
func (w *Wallet) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("address", w.address.Hex())}
	if len(w.path) > 0 {
		attrs = append(attrs, slog.String("path", w.path.String()))
	}
	return slog.GroupValue(attrs...)
}
