package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// LocalProvider signs with an in-process private key. It stands in for a
// browser wallet in development and operational tooling; transactions are
// broadcast through an upstream RPC node when one is configured.
type LocalProvider struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID int64
	client  *ethclient.Client
}

type LocalProviderConfig struct {
	PrivateKeyHex string
	ChainID       int64
	RPCURL        string
}

func NewLocalProvider(ctx context.Context, cfg LocalProviderConfig) (*LocalProvider, error) {
	hexKey := strings.TrimPrefix(cfg.PrivateKeyHex, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	p := &LocalProvider{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: cfg.ChainID,
	}

	if cfg.RPCURL != "" {
		cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial rpc: %w", err)
		}
		p.client = cli
		if cfg.ChainID == 0 {
			id, err := cli.ChainID(ctx)
			if err != nil {
				return nil, fmt.Errorf("fetch chain id: %w", err)
			}
			p.chainID = id.Int64()
		}
	}
	return p, nil
}

// Session builds the signing context backed by this provider.
func (p *LocalProvider) Session() *Session {
	return &Session{Address: p.address, ChainID: p.chainID, Provider: p}
}

func (p *LocalProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_accounts":
		return json.Marshal([]string{p.address.Hex()})
	case "eth_chainId":
		return json.Marshal(hexutil.EncodeBig(big.NewInt(p.chainID)))
	case "personal_sign":
		return p.personalSign(params)
	case "eth_sendTransaction":
		return p.sendTransaction(ctx, params)
	default:
		return nil, &RPCError{Code: 4200, Message: "unsupported method " + method}
	}
}

// personal_sign params are [data, address]; data may be raw text or 0x-hex.
func (p *LocalProvider) personalSign(params []any) (json.RawMessage, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("personal_sign: missing message")
	}
	data, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("personal_sign: message must be a string")
	}

	msg := []byte(data)
	if strings.HasPrefix(data, "0x") {
		if decoded, err := hexutil.Decode(data); err == nil {
			msg = decoded
		}
	}

	sig, err := crypto.Sign(accounts.TextHash(msg), p.key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	// Ethereum wallets report V as 27/28.
	sig[64] += 27
	return json.Marshal(hexutil.Encode(sig))
}

func (p *LocalProvider) sendTransaction(ctx context.Context, params []any) (json.RawMessage, error) {
	if p.client == nil {
		return nil, fmt.Errorf("eth_sendTransaction: no upstream rpc configured")
	}
	if len(params) < 1 {
		return nil, fmt.Errorf("eth_sendTransaction: missing tx params")
	}

	raw, err := json.Marshal(params[0])
	if err != nil {
		return nil, fmt.Errorf("encode tx params: %w", err)
	}
	var txp TxParams
	if err := json.Unmarshal(raw, &txp); err != nil {
		return nil, fmt.Errorf("decode tx params: %w", err)
	}

	from := common.HexToAddress(txp.From)
	if from != p.address {
		return nil, fmt.Errorf("eth_sendTransaction: from %s is not the provider account", txp.From)
	}
	if !common.IsHexAddress(txp.To) {
		return nil, fmt.Errorf("eth_sendTransaction: invalid to address %q", txp.To)
	}
	value, err := hexutil.DecodeBig(txp.Value)
	if err != nil {
		return nil, fmt.Errorf("eth_sendTransaction: invalid value %q: %w", txp.Value, err)
	}

	nonce, err := p.client.PendingNonceAt(ctx, p.address)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	to := common.HexToAddress(txp.To)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      21000,
		GasPrice: gasPrice,
	})

	signer := types.LatestSignerForChainID(big.NewInt(p.chainID))
	signed, err := types.SignTx(tx, signer, p.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := p.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("broadcast tx: %w", err)
	}
	return json.Marshal(signed.Hash().Hex())
}

// Ping checks connectivity to the upstream chain RPC.
func (p *LocalProvider) Ping(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := p.client.BlockNumber(ctx)
	return err
}

// RecoverSigner returns the address that produced a personal_sign signature
// over msg. Used to sanity-check settlement artifacts.
func RecoverSigner(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	cp := make([]byte, len(sig))
	copy(cp, sig)
	if cp[64] >= 27 {
		cp[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), cp)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover pubkey: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
