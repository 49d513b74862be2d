package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/pem"
	"errors"
	"fmt"
	"github.com/btcsuite/btcd/btcec"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"os"
	"strings"
)

// Offsets into an OpenSSL secp256k1 "EC PRIVATE KEY" (SEC1 DER) block.
const (
	privateKeyStart = 7
	privateKeyEnd   = 39
	pemType         = "EC PRIVATE KEY"
)

var (
	sec1Prefix = []byte{0x30, 0x74, 0x02, 0x01, 0x01, 0x04, 0x20}
	// [0] { OID secp256k1 } [1] { BIT STRING, 0 unused bits }
	sec1Params = []byte{0xa0, 0x07, 0x06, 0x05, 0x2b, 0x81, 0x04, 0x00, 0x0a, 0xa1, 0x44, 0x03, 0x42, 0x00}
)

// LoadSigningKey reads the node's secp256k1 key. The file is either a PEM
// block as written by `openssl ecparam -name secp256k1 -genkey` or a hex
// encoded scalar as exported by Ethereum wallets.
func LoadSigningKey(file string) (*ecdsa.PrivateKey, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	if block, _ := pem.Decode(content); block != nil {
		return parsePEM(block)
	}
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(string(content)), "0x"))
	if err != nil {
		return nil, fmt.Errorf("key file %s is neither PEM nor hex: %w", file, err)
	}
	return key, nil
}

func parsePEM(block *pem.Block) (*ecdsa.PrivateKey, error) {
	if block.Type != pemType {
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
	if len(block.Bytes) < privateKeyEnd || !bytes.HasPrefix(block.Bytes, sec1Prefix) {
		return nil, errors.New("PEM block is not a secp256k1 private key")
	}
	privKey, _ := btcec.PrivKeyFromBytes(btcec.S256(), block.Bytes[privateKeyStart:privateKeyEnd])
	if privKey.D.Sign() == 0 {
		return nil, errors.New("zero private key")
	}
	return privKey.ToECDSA(), nil
}

// SaveSigningKey writes key in the PEM layout LoadSigningKey reads.
func SaveSigningKey(file string, key *ecdsa.PrivateKey) error {
	privKey, pubKey := btcec.PrivKeyFromBytes(btcec.S256(), ethcrypto.FromECDSA(key))
	der := make([]byte, 0, 118)
	der = append(der, sec1Prefix...)
	der = append(der, privKey.Serialize()...)
	der = append(der, sec1Params...)
	der = append(der, pubKey.SerializeUncompressed()...)
	encoded := pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: der})
	return os.WriteFile(file, encoded, 0600)
}

func GenerateSigningKey() (*ecdsa.PrivateKey, error) {
	privKey, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, err
	}
	return privKey.ToECDSA(), nil
}

func Address(key *ecdsa.PrivateKey) common.Address {
	return ethcrypto.PubkeyToAddress(key.PublicKey)
}
