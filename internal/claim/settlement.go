package claim

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fluxgate/internal/fault"
	"fluxgate/internal/wallet"
)

// settlementLabel is the fixed protocol/action line of every claim message.
const settlementLabel = "FLUX Faucet Claim"

// Settlement is the proof artifact accompanying one faucet claim attempt:
// either a signed off-chain message or an on-chain transaction, never both.
// The interface is sealed so every consumption site can switch exhaustively.
type Settlement interface {
	Kind() string
	sealed()
}

// MessageSettlement is a gas-free EIP-191 message signature. Chosen for the
// recurring faucet claim because a transaction per daily claim would cost
// gas; the signature still binds the claim to the wallet's private key.
type MessageSettlement struct {
	SignedMessage string
	Signature     string
	MessageNonce  string
	ChainID       int64
}

func (MessageSettlement) Kind() string { return "offchain_message" }
func (MessageSettlement) sealed()      {}

// TransactionSettlement is an on-chain proof, kept for claim flows that
// settle through a transaction instead of a signature.
type TransactionSettlement struct {
	TxHash  string
	ChainID int64
	Status  string
}

func (TransactionSettlement) Kind() string { return "onchain_transaction" }
func (TransactionSettlement) sealed()      {}

// BuildSettlement constructs the canonical claim message, has the wallet
// sign it and returns the immutable artifact. The nonce is cryptographically
// random, never time-derived, so every message is unique and non-replayable.
func BuildSettlement(ctx context.Context, session *wallet.Session, walletAddress, claimAmount string, cooldownSeconds int, now time.Time) (MessageSettlement, error) {
	nonce, err := newNonce()
	if err != nil {
		return MessageSettlement{}, fmt.Errorf("generate nonce: %w", err)
	}

	message := claimMessage(walletAddress, claimAmount, cooldownSeconds, session.ChainID, nonce, now)

	raw, err := session.Provider.Request(ctx, "personal_sign", message, session.Address.Hex())
	if err != nil {
		if wallet.IsUserRejection(err) {
			return MessageSettlement{}, fault.New(fault.WalletRejected, "sign claim", err)
		}
		return MessageSettlement{}, fault.New(fault.Unknown, "sign claim", err)
	}

	var signature string
	if err := json.Unmarshal(raw, &signature); err != nil {
		return MessageSettlement{}, fmt.Errorf("decode signature: %w", err)
	}
	if !strings.HasPrefix(signature, "0x") {
		return MessageSettlement{}, fmt.Errorf("wallet returned malformed signature %q", signature)
	}

	return MessageSettlement{
		SignedMessage: message,
		Signature:     signature,
		MessageNonce:  nonce,
		ChainID:       session.ChainID,
	}, nil
}

func claimMessage(walletAddress, claimAmount string, cooldownSeconds int, chainID int64, nonce string, now time.Time) string {
	return strings.Join([]string{
		settlementLabel,
		"Wallet: " + walletAddress,
		"Amount: " + claimAmount + " FLUX",
		fmt.Sprintf("Cooldown: %d seconds", cooldownSeconds),
		fmt.Sprintf("Chain ID: %d", chainID),
		"Nonce: " + nonce,
		"Issued At: " + now.UTC().Format(time.RFC3339),
	}, "\n")
}

func newNonce() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
