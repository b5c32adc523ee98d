package chain

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"gatekeeper-api/models"
	"gatekeeper-api/utils"
)

const DefaultReceiptTimeout = 60 * time.Second

// Backend is what the relayer needs from a node. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// ClaimSubmitter relays claimDrop transactions signed by the gatekeeper key.
type ClaimSubmitter struct {
	backend        Backend
	vault          *bind.BoundContract
	vaultAddress   common.Address
	key            *ecdsa.PrivateKey
	relayer        common.Address
	chainID        *big.Int
	receiptTimeout time.Duration

	// mu serializes sends so two claims never race for the same pending nonce.
	mu sync.Mutex
}

func NewClaimSubmitter(ctx context.Context, backend Backend, vault common.Address, privateKeyHex string, receiptTimeout time.Duration) (*ClaimSubmitter, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse relayer key: %w", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	if receiptTimeout <= 0 {
		receiptTimeout = DefaultReceiptTimeout
	}
	return &ClaimSubmitter{
		backend:        backend,
		vault:          bind.NewBoundContract(vault, parsedVaultABI, backend, backend, backend),
		vaultAddress:   vault,
		key:            key,
		relayer:        crypto.PubkeyToAddress(key.PublicKey),
		chainID:        chainID,
		receiptTimeout: receiptTimeout,
	}, nil
}

// Relayer is the gatekeeper address a drop must name for the agent path to pass.
func (s *ClaimSubmitter) Relayer() common.Address { return s.relayer }

// AgentSignature signs keccak256(uint256 dropId ‖ address receiver) as an EIP-191
// personal message. The result is 65 bytes r‖s‖v with v in {27, 28}.
func AgentSignature(key *ecdsa.PrivateKey, dropID *big.Int, receiver common.Address) ([]byte, error) {
	digest := crypto.Keccak256(common.LeftPadBytes(dropID.Bytes(), 32), receiver.Bytes())
	sig, err := crypto.Sign(accounts.TextHash(digest), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// BiometricPayload returns the compact signature and sha256(clientDataJSON) for the
// vault's P-256 path. Mock or absent assertions yield two empty slices.
func BiometricPayload(bio *models.BiometricData) (sig, hash []byte, err error) {
	if !bio.Present() {
		return []byte{}, []byte{}, nil
	}
	if len(bio.ClientDataJSON) == 0 {
		return nil, nil, sigErr("clientDataJSON is required with a signature")
	}
	sig, err = DecodeDER(bio.Signature)
	if err != nil {
		return nil, nil, err
	}
	sum := sha256.Sum256(bio.ClientDataJSON)
	return sig, sum[:], nil
}

// SubmitClaim sends one claimDrop transaction and waits for its receipt. A revert,
// at estimation or on chain, is a *ChainError. Nothing is retried.
func (s *ClaimSubmitter) SubmitClaim(ctx context.Context, dropID, receiver string, bio *models.BiometricData) (string, error) {
	id, err := ParseDropID(dropID)
	if err != nil {
		return "", err
	}
	to, err := ParseReceiver(receiver)
	if err != nil {
		return "", err
	}

	bioSig, msgHash, err := BiometricPayload(bio)
	if err != nil {
		return "", err
	}
	agentSig, err := AgentSignature(s.key, id, to)
	if err != nil {
		return "", fmt.Errorf("failed to sign claim authorization: %w", err)
	}

	tx, err := s.send(ctx, id, to, agentSig, bioSig, msgHash)
	if err != nil {
		return "", err
	}
	utils.Log.Infof("📤 [CLAIM] drop %s -> %s sent in %s", id, to.Hex(), tx.Hash().Hex())

	waitCtx, cancel := context.WithTimeout(ctx, s.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, s.backend, tx)
	if err != nil {
		return tx.Hash().Hex(), &ChainError{Op: "receipt", Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash().Hex(), &ChainError{Op: "claimDrop", Reason: s.replayReason(ctx, tx, receipt)}
	}

	utils.Log.Infof("✅ [CLAIM] drop %s claimed in block %s", id, receipt.BlockNumber)
	return tx.Hash().Hex(), nil
}

func (s *ClaimSubmitter) send(ctx context.Context, id *big.Int, to common.Address, agentSig, bioSig, msgHash []byte) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := s.vault.Transact(opts, "claimDrop", id, to, agentSig, bioSig, msgHash)
	if err != nil {
		cerr := chainErr("claimDrop", err)
		utils.Log.Warnf("⛔ [CLAIM] drop %s rejected: %v", id, cerr)
		return nil, cerr
	}
	return tx, nil
}

// replayReason re-runs a reverted transaction as a call at its block to recover
// the revert string.
func (s *ClaimSubmitter) replayReason(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) string {
	msg := ethereum.CallMsg{From: s.relayer, To: tx.To(), Data: tx.Data(), Gas: tx.Gas()}
	_, err := s.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if reason := revertReason(err); reason != "" {
		return reason
	}
	return "transaction reverted"
}

// IsClientError reports errors caused by the request rather than the chain.
func IsClientError(err error) bool {
	return errors.Is(err, ErrBadClaim)
}
