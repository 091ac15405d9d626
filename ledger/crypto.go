package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// KeyPair ed25519 签名身份
type KeyPair struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NewKeyPair 生成随机身份
func NewKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeyPair{Public: pub, private: priv}, nil
}

// KeyPairFromSeed 由 32 字节种子派生身份（测试与机器人使用）
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{Public: priv.Public().(ed25519.PublicKey), private: priv}, nil
}

// Address 身份对应的账本地址
func (k *KeyPair) Address() Address { return AddressOf(k.Public) }

// AddressOf 公钥 SHA-256 的前 8 字节（大端）
func AddressOf(pub ed25519.PublicKey) Address {
	sum := sha256.Sum256(pub)
	return Address(binary.BigEndian.Uint64(sum[:8]))
}

func uint64ToBytes(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

// signingBytes 交易的确定性字节布局（不含哈希与签名）
func signingBytes(tx *Transaction) []byte {
	h := sha256.New()
	h.Write(tx.PublicKey)
	h.Write(uint64ToBytes(uint64(tx.Sender)))
	h.Write(uint64ToBytes(tx.Timestamp))
	h.Write(uint64ToBytes(tx.Nonce))
	h.Write(tx.Prev[:])
	switch {
	case tx.Call != nil:
		h.Write([]byte{1})
		h.Write(uint64ToBytes(uint64(tx.Call.Contract)))
		h.Write(uint64ToBytes(uint64(len(tx.Call.Function))))
		h.Write([]byte(tx.Call.Function))
		h.Write(uint64ToBytes(uint64(len(tx.Call.Args))))
		for _, a := range tx.Call.Args {
			h.Write(uint64ToBytes(uint64(a)))
		}
	case tx.Deploy != nil:
		h.Write([]byte{2})
		h.Write([]byte(tx.Deploy.Program))
	}
	return h.Sum(nil)
}

// HashTransaction 交易哈希
func HashTransaction(tx *Transaction) Hash {
	var out Hash
	copy(out[:], signingBytes(tx))
	return out
}

// sign 填充哈希与签名
func (k *KeyPair) sign(tx *Transaction) {
	tx.Hash = HashTransaction(tx)
	tx.Signature = ed25519.Sign(k.private, tx.Hash[:])
}

// VerifyTransaction 校验哈希、发送方地址与签名
func VerifyTransaction(tx *Transaction) error {
	if len(tx.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad public key length %d", ErrBadSignature, len(tx.PublicKey))
	}
	if AddressOf(tx.PublicKey) != tx.Sender {
		return fmt.Errorf("%w: sender %s does not match public key", ErrBadSignature, tx.Sender)
	}
	if HashTransaction(tx) != tx.Hash {
		return ErrBadHash
	}
	if !ed25519.Verify(tx.PublicKey, tx.Hash[:], tx.Signature) {
		return ErrBadSignature
	}
	return nil
}
