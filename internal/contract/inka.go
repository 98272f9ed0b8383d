package contract

import (
	_ "embed"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

//go:embed abi/InkaPancakeSwapProvider.json
var inkaProviderABI []byte

// InkaProviderName is the contract name used in artifacts and records.
const InkaProviderName = "InkaPancakeSwapProvider"

// Method names of the InkaPancakeSwapProvider contract.
const (
	MethodFeeDenominator    = "FEE_DENOMINATOR"
	MethodWBNB              = "WBNB"
	MethodOwner             = "owner"
	MethodPancakeFactory    = "pancakeFactory"
	MethodProviderFee       = "providerFee"
	MethodRenounceOwnership = "renounceOwnership"
	MethodTransferOwnership = "transferOwnership"
	MethodSwap              = "swapBNBForTokenSupportingFee"
	MethodWithdraw          = "withdraw"
	MethodSetFee            = "setFee"
	MethodSetPancakeFactory = "setPancakeFactory"
	MethodSetWBNB           = "setWBNB"
)

// EventInkaSwapOperation is emitted by every successful swap.
const EventInkaSwapOperation = "InkaSwapOperation"

// InkaProviderABI returns a copy of the embedded provider ABI document.
func InkaProviderABI() []byte {
	return common.CopyBytes(inkaProviderABI)
}

// InkaProvider is a binding to a deployed InkaPancakeSwapProvider with
// typed helpers for its most used methods.
type InkaProvider struct {
	*Binding
}

// BindInkaProvider binds the embedded provider ABI to address.
func BindInkaProvider(address string) (*InkaProvider, error) {
	b, err := BindJSON(inkaProviderABI, address)
	if err != nil {
		return nil, err
	}
	return &InkaProvider{Binding: b}, nil
}

// Swap encodes swapBNBForTokenSupportingFee. The native value to swap is
// passed separately as TxParams.Value when sending.
func (p *InkaProvider) Swap(amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (*PendingCall, error) {
	return p.Invoke(MethodSwap, amountOutMin, path, to, big.NewInt(deadline))
}

// ProviderFee encodes the providerFee view.
func (p *InkaProvider) ProviderFee() (*PendingCall, error) {
	return p.Invoke(MethodProviderFee)
}

// SetFee encodes setFee.
func (p *InkaProvider) SetFee(fee *big.Int) (*PendingCall, error) {
	return p.Invoke(MethodSetFee, fee)
}

// Withdraw encodes withdraw of the given token balance to the owner.
func (p *InkaProvider) Withdraw(token common.Address) (*PendingCall, error) {
	return p.Invoke(MethodWithdraw, token)
}
