package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"InkaSwap-Provider/internal/contract"
	xerrors "InkaSwap-Provider/internal/errors"
)

// Artifact is a compiled contract as written by truffle's build step.
type Artifact struct {
	ContractName string
	Definition   *contract.Definition
	Bytecode     []byte
}

type artifactFile struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// LoadArtifact reads a build artifact from disk.
func LoadArtifact(path string) (*Artifact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("读取合约构建产物 %s 失败", path))
	}
	return ParseArtifact(content)
}

// ParseArtifact decodes a build artifact. The ABI goes through the same
// validation as contract bindings, and the creation bytecode must be fully
// linked.
func ParseArtifact(content []byte) (*Artifact, error) {
	var file artifactFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "合约构建产物不是有效的 JSON")
	}
	if file.ContractName == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "合约构建产物缺少 contractName")
	}
	if len(file.ABI) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidABI, fmt.Sprintf("合约 %s 缺少 ABI", file.ContractName))
	}
	def, err := contract.ParseJSON(file.ABI)
	if err != nil {
		return nil, err
	}

	if strings.Contains(file.Bytecode, "__") {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("合约 %s 的字节码包含未链接的库占位符", file.ContractName))
	}
	bytecode, err := hexutil.Decode(file.Bytecode)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("合约 %s 的字节码无效", file.ContractName))
	}
	if len(bytecode) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("合约 %s 没有可部署的字节码", file.ContractName))
	}

	return &Artifact{ContractName: file.ContractName, Definition: def, Bytecode: bytecode}, nil
}

// constructorInput is the coerced constructor arguments together with their
// encoding and its keccak256, which identifies a migration.
type constructorInput struct {
	values   []any
	packed   []byte
	argsHash string
}

func (a *Artifact) constructor(args []any) (constructorInput, error) {
	values, err := a.Definition.CoerceConstructor(args...)
	if err != nil {
		return constructorInput{}, err
	}
	packed, err := a.Definition.ABI().Pack("", values...)
	if err != nil {
		return constructorInput{}, xerrors.Wrap(xerrors.CodeArgumentType, err, "构造参数编码失败")
	}
	return constructorInput{
		values:   values,
		packed:   packed,
		argsHash: crypto.Keccak256Hash(packed).Hex(),
	}, nil
}

// creationData is the bytecode followed by the encoded constructor
// arguments, as sent in the deployment transaction.
func (a *Artifact) creationData(in constructorInput) []byte {
	data := make([]byte, 0, len(a.Bytecode)+len(in.packed))
	data = append(data, a.Bytecode...)
	return append(data, in.packed...)
}
