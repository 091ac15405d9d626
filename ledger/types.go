// Package ledger 是游戏逻辑依赖的账本副本：按确认顺序保存已签名交易，
// 串行执行合约调用，并向订阅者按序回放已确认交易。共识不在此处实现。
package ledger

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"strconv"
)

// Address 账本身份（由公钥派生），合约地址同样是 Address
type Address uint64

func (a Address) String() string { return strconv.FormatUint(uint64(a), 10) }

// ParseAddress 解析十进制地址
func ParseAddress(s string) (Address, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Address(v), nil
}

// Value 合约参数与返回值的线上表示，只有无符号 64 位
type Value uint64

// Hash 交易哈希
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Call 合约调用数据
type Call struct {
	Contract Address `json:"contract"`
	Function string  `json:"function"`
	Args     []Value `json:"args"`
}

// Deploy 合约部署数据，Program 为副本上注册的程序名
type Deploy struct {
	Program string `json:"program"`
}

// Transaction 已签名交易；Call 与 Deploy 二选一
type Transaction struct {
	Hash      Hash              `json:"hash"`
	Sender    Address           `json:"sender"`
	PublicKey ed25519.PublicKey `json:"public_key"`
	Timestamp uint64            `json:"timestamp"` // ms
	Nonce     uint64            `json:"nonce"`
	Prev      Hash              `json:"prev"` // 执行时该发送方最后一笔已确认交易，首笔为零值
	Call      *Call             `json:"call,omitempty"`
	Deploy    *Deploy           `json:"deploy,omitempty"`
	Signature []byte            `json:"signature"`
}

// ContractCall 若交易为合约调用则返回调用数据
func (t *Transaction) ContractCall() (*Call, bool) {
	if t == nil || t.Call == nil {
		return nil, false
	}
	return t.Call, true
}

// Update 一次合约存储写入
type Update struct {
	Contract Address `json:"contract"`
	Mapping  uint8   `json:"mapping"`
	Key      uint64  `json:"key"`
	Value    int64   `json:"value"`
}

// Updates 一笔交易产生的全部写入，按执行顺序排列
type Updates []Update

// Result 合约执行结果：只读调用没有交易
type Result struct {
	Value   *Value
	Tx      *Transaction
	Updates Updates
}

var (
	ErrUnknownContract  = errors.New("unknown contract")
	ErrUnknownProgram   = errors.New("unknown program")
	ErrUnknownFunction  = errors.New("unknown contract function")
	ErrBadSignature     = errors.New("transaction signature invalid")
	ErrBadHash          = errors.New("transaction hash mismatch")
	ErrNilKey           = errors.New("nil key pair")
	ErrContractExists   = errors.New("contract already deployed")
	ErrStaleTransaction = errors.New("transaction executed against stale state")
)
