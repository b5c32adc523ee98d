// services/claim_service.go
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"gatekeeper-api/chain"
	"gatekeeper-api/models"
	"gatekeeper-api/utils"
)

// ClaimSubmitter is satisfied by *chain.ClaimSubmitter.
type ClaimSubmitter interface {
	SubmitClaim(ctx context.Context, dropID, receiver string, bio *models.BiometricData) (string, error)
}

// StatusReader is satisfied by *chain.StatusReader.
type StatusReader interface {
	ReadStatus(ctx context.Context, dropID string) (*models.DropStatus, error)
}

// ClaimService relays claims and reports drop status. A nil submitter or reader
// disables the matching endpoint.
type ClaimService struct {
	submitter    ClaimSubmitter
	status       StatusReader
	proofs       *ProofIssuer
	requireProof bool
}

func NewClaimService(submitter ClaimSubmitter, status StatusReader, proofs *ProofIssuer, requireProof bool) *ClaimService {
	return &ClaimService{submitter: submitter, status: status, proofs: proofs, requireProof: requireProof}
}

// Claim handles POST /api/claim.
func (s *ClaimService) Claim(c *fiber.Ctx) error {
	if s.submitter == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Claims are disabled on this server"})
	}

	var req models.ClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	dropID := strings.TrimSpace(string(req.DropID))
	receiver := strings.TrimSpace(req.Receiver)
	if dropID == "" || receiver == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "dropId and receiver are required"})
	}

	ctx := c.UserContext()
	token := strings.TrimSpace(req.ProofToken)
	checkProof := s.requireProof || token != ""
	if checkProof {
		if err := s.proofs.Redeem(ctx, token, dropID, receiver); err != nil {
			return proofFailure(c, err)
		}
	}

	utils.Log.Infof("📤 [CLAIM] Relaying claim for drop %s to %s (biometric=%t)", dropID, receiver, req.BiometricData.Present())
	txHash, err := s.submitter.SubmitClaim(ctx, dropID, receiver, req.BiometricData)
	if err != nil {
		if checkProof && neverLanded(txHash, err) {
			if rerr := s.proofs.Release(context.WithoutCancel(ctx), token); rerr != nil {
				utils.Log.Warnf("⚠️ [CLAIM] Drop %s failed and proof token could not be released: %v", dropID, rerr)
			}
		}
		return claimFailure(c, dropID, txHash, err)
	}

	utils.Log.Infof("✅ [CLAIM] Drop %s claimed in %s", dropID, txHash)
	return c.JSON(fiber.Map{"success": true, "txHash": txHash})
}

// neverLanded is true when the claim was not sent or was mined and reverted. A
// receipt timeout may still land, so its token stays used.
func neverLanded(txHash string, err error) bool {
	if txHash == "" {
		return true
	}
	var chainErr *chain.ChainError
	return errors.As(err, &chainErr) && chainErr.Op == "claimDrop"
}

func proofFailure(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrProofInvalid) || errors.Is(err, ErrProofConsumed) {
		utils.Log.Warnf("🚫 [CLAIM] Rejected proof token: %v", err)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	}
	utils.Log.Errorf("❌ [CLAIM] Proof lookup failed: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to check proof token"})
}

func claimFailure(c *fiber.Ctx, dropID, txHash string, err error) error {
	if chain.IsClientError(err) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var sigErr *chain.SignatureError
	var chainErr *chain.ChainError
	body := fiber.Map{"error": err.Error()}
	switch {
	case errors.As(err, &sigErr):
		utils.Log.Warnf("⚠️ [CLAIM] Drop %s: %v", dropID, sigErr)
	case errors.As(err, &chainErr):
		utils.Log.Errorf("❌ [CLAIM] Drop %s: %v", dropID, chainErr)
		if chainErr.Reason != "" {
			body["reason"] = chainErr.Reason
		}
		if txHash != "" {
			body["txHash"] = txHash
		}
	default:
		utils.Log.Errorf("❌ [CLAIM] Drop %s: %v", dropID, err)
		body["error"] = "Claim failed"
	}
	return c.Status(fiber.StatusInternalServerError).JSON(body)
}

// CheckClaim handles GET /api/check-claim/:dropId.
func (s *ClaimService) CheckClaim(c *fiber.Ctx) error {
	if s.status == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Drop status is unavailable on this server"})
	}

	dropID := strings.TrimSpace(c.Params("dropId"))
	status, err := s.status.ReadStatus(c.UserContext(), dropID)
	if err != nil {
		if chain.IsClientError(err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		utils.Log.Errorf("❌ [STATUS] Drop %s: %v", dropID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to read drop status"})
	}
	return c.JSON(status)
}
