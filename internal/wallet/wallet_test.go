package wallet

import (
	"bytes"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/web3"
)

// Public test vectors; never use these phrases for real funds.
const (
	hardhatMnemonic = "test test test test test test test test test test test junk"
	abandonMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	badChecksum     = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon"
	hardhatAccount0 = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	hardhatKey0     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatAccount1 = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	hardhatKey1     = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	hardhatAccount2 = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	abandonAccount0 = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
)

func TestDeriveKnownVectors(t *testing.T) {
	t.Parallel()

	w, err := Derive(hardhatMnemonic)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if w.Address().Hex() != hardhatAccount0 {
		t.Fatalf("unexpected address %s", w.Address().Hex())
	}
	if w.PrivateKey() != hardhatKey0 {
		t.Fatalf("unexpected private key")
	}
	if w.Path().String() != "m/44'/60'/0'/0/0" {
		t.Fatalf("unexpected path %s", w.Path())
	}

	second, err := Derive(hardhatMnemonic, WithAddressIndex(1))
	if err != nil {
		t.Fatalf("derive index 1: %v", err)
	}
	if second.Address().Hex() != hardhatAccount1 || second.PrivateKey() != hardhatKey1 {
		t.Fatalf("unexpected second account %s", second.Address().Hex())
	}

	path, err := ParsePath("m/44'/60'/0'/0/1")
	if err != nil {
		t.Fatalf("parse path: %v", err)
	}
	explicit, err := Derive(hardhatMnemonic, WithPath(path))
	if err != nil {
		t.Fatalf("derive explicit path: %v", err)
	}
	if explicit.Address() != second.Address() {
		t.Fatalf("explicit path and address index disagree")
	}

	abandon, err := Derive(abandonMnemonic)
	if err != nil {
		t.Fatalf("derive abandon: %v", err)
	}
	if abandon.Address().Hex() != abandonAccount0 {
		t.Fatalf("unexpected address %s", abandon.Address().Hex())
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	t.Parallel()

	first, err := Derive(hardhatMnemonic)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, err := Derive("  test test test test test test\ttest test test test test junk \n")
	if err != nil {
		t.Fatalf("derive with extra whitespace: %v", err)
	}
	if first.PrivateKey() != second.PrivateKey() || first.Address() != second.Address() {
		t.Fatalf("derivation is not deterministic")
	}

	salted, err := Derive(hardhatMnemonic, WithPassphrase("inka"))
	if err != nil {
		t.Fatalf("derive with passphrase: %v", err)
	}
	if salted.Address() == first.Address() {
		t.Fatalf("passphrase must change the derived account")
	}
}

func TestDeriveRejectsInvalidMnemonic(t *testing.T) {
	t.Parallel()

	for _, phrase := range []string{
		badChecksum,
		"",
		"test test test test test test test test test test test pancake0",
		"test test test",
	} {
		w, err := Derive(phrase)
		if w != nil {
			t.Fatalf("%q: expected no wallet", phrase)
		}
		if !errors.Is(err, xerrors.ErrInvalidMnemonic) {
			t.Fatalf("%q: expected INVALID_MNEMONIC, got %v", phrase, err)
		}
	}

	if _, err := ParsePath("m/44'/x"); err == nil {
		t.Fatalf("expected invalid path error")
	}
}

func TestDeriveAccounts(t *testing.T) {
	t.Parallel()

	wallets, err := DeriveAccounts(hardhatMnemonic, 0, 3)
	if err != nil {
		t.Fatalf("derive accounts: %v", err)
	}
	want := []string{hardhatAccount0, hardhatAccount1, hardhatAccount2}
	if len(wallets) != len(want) {
		t.Fatalf("expected %d wallets, got %d", len(want), len(wallets))
	}
	for i, w := range wallets {
		if w.Address().Hex() != want[i] {
			t.Fatalf("account %d: want %s got %s", i, want[i], w.Address().Hex())
		}
	}

	if _, err := DeriveAccounts(badChecksum, 0, 1); !errors.Is(err, xerrors.ErrInvalidMnemonic) {
		t.Fatalf("expected INVALID_MNEMONIC, got %v", err)
	}
}

func TestSignIsPureAndRecoverable(t *testing.T) {
	t.Parallel()

	w, err := Derive(hardhatMnemonic)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	nonce := uint64(7)
	to := common.HexToAddress("0xCD1a49064887e25f8741aA43E1fb2b4852D08181")
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	req := web3.TransactionRequest{
		From:     w.Address(),
		To:       &to,
		Value:    big.NewInt(86_304_673_077_633_939),
		Gas:      260_000,
		GasPrice: big.NewInt(21_000_000_000),
		Nonce:    &nonce,
		Data:     data,
	}
	chainID := big.NewInt(97)

	first, err := w.Sign(req, chainID)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	second, err := w.Sign(req, chainID)
	if err != nil {
		t.Fatalf("sign again: %v", err)
	}
	if first.Hash() != second.Hash() {
		t.Fatalf("signing is not deterministic")
	}

	if nonce != 7 || !bytes.Equal(req.Data, []byte{0xde, 0xad, 0xbe, 0xef}) || req.Value.Int64() != 86_304_673_077_633_939 {
		t.Fatalf("request was mutated")
	}

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), first)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != w.Address() {
		t.Fatalf("recovered %s, want %s", sender.Hex(), w.Address().Hex())
	}
	if first.ChainId().Cmp(chainID) != 0 || first.Type() != types.LegacyTxType {
		t.Fatalf("unexpected tx envelope chain=%s type=%d", first.ChainId(), first.Type())
	}
	if *first.To() != to || first.Gas() != 260_000 || first.Nonce() != 7 {
		t.Fatalf("signed fields differ from request")
	}

	other, err := w.Sign(req, big.NewInt(56))
	if err != nil {
		t.Fatalf("sign mainnet: %v", err)
	}
	if other.Hash() == first.Hash() {
		t.Fatalf("chain id must be part of the signature")
	}
}

func TestSignRejectsIncompleteRequests(t *testing.T) {
	t.Parallel()

	w, err := Derive(hardhatMnemonic)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	nonce := uint64(0)
	complete := web3.TransactionRequest{Gas: 21_000, GasPrice: big.NewInt(1), Nonce: &nonce}

	if _, err := w.Sign(complete, nil); !errors.Is(err, xerrors.New(xerrors.CodeInvalidArgument, "")) {
		t.Fatalf("expected INVALID_ARGUMENT without chain id, got %v", err)
	}

	missingNonce := complete
	missingNonce.Nonce = nil
	if _, err := w.Sign(missingNonce, big.NewInt(97)); err == nil {
		t.Fatalf("expected error without nonce")
	}

	foreign := complete
	foreign.From = common.HexToAddress(hardhatAccount1)
	if _, err := w.Sign(foreign, big.NewInt(97)); !errors.Is(err, xerrors.ErrConstraintViolation) {
		t.Fatalf("expected CONSTRAINT_VIOLATION for foreign sender, got %v", err)
	}
}

func TestWalletNeverRendersKey(t *testing.T) {
	t.Parallel()

	w, err := Derive(hardhatMnemonic)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	secret := strings.TrimPrefix(hardhatKey0, "0x")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("derived", "wallet", w)

	for _, rendered := range []string{w.String(), buf.String()} {
		if strings.Contains(rendered, secret) {
			t.Fatalf("key material leaked: %s", rendered)
		}
		if !strings.Contains(rendered, hardhatAccount0) {
			t.Fatalf("address missing from %s", rendered)
		}
	}
}
