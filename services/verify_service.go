// services/verify_service.go
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"gatekeeper-api/gatekeeper"
	"gatekeeper-api/models"
	"gatekeeper-api/utils"
)

// UnavailableExplanation is returned when no model could evaluate the rule. It
// never carries the underlying failure.
const UnavailableExplanation = "Verification is unavailable right now. Please try again later."

const (
	defaultVerifyTimeout = 2 * time.Minute
	auditTimeout         = 5 * time.Second
	maxRuleLength        = 4000
)

// Evaluator is satisfied by *gatekeeper.RuleEvaluator.
type Evaluator interface {
	Evaluate(ctx context.Context, rule string, uc models.UserContext) (*gatekeeper.Evaluation, error)
}

type VerifyService struct {
	evaluator Evaluator
	proofs    *ProofIssuer
	audit     Auditor
	timeout   time.Duration
}

func NewVerifyService(evaluator Evaluator, proofs *ProofIssuer, audit Auditor, timeout time.Duration) *VerifyService {
	if audit == nil {
		audit = LogAuditor{}
	}
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	return &VerifyService{evaluator: evaluator, proofs: proofs, audit: audit, timeout: timeout}
}

type verifyRequest struct {
	Rule     string             `json:"rule"`
	DropID   models.FlexID      `json:"dropId"`
	UserData models.UserContext `json:"user_data"`
}

// Verify handles POST /api/verify.
func (s *VerifyService) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	rule := strings.TrimSpace(req.Rule)
	if rule == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rule is required"})
	}
	if len(rule) > maxRuleLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rule is too long"})
	}
	dropID := strings.TrimSpace(string(req.DropID))

	ctx, cancel := context.WithTimeout(c.UserContext(), s.timeout)
	defer cancel()

	decision, ev, exhausted := s.decide(ctx, rule, req.UserData)

	if decision.Approved {
		token, err := s.proofs.Issue(ctx, dropID, req.UserData.Address)
		if err != nil {
			utils.Log.Errorf("❌ [VERIFY] Failed to issue proof token: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to issue proof token"})
		}
		decision.ProofToken = token
	}

	auditCtx, cancelAudit := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	s.audit.Record(auditCtx, BuildAudit(rule, dropID, ev, decision, exhausted))
	cancelAudit()

	utils.Log.Infof("⚖️ [VERIFY] drop=%q approved=%t", dropID, decision.Approved)
	return c.JSON(decision)
}

func (s *VerifyService) decide(ctx context.Context, rule string, uc models.UserContext) (models.VerificationDecision, *gatekeeper.Evaluation, bool) {
	ev, err := s.evaluator.Evaluate(ctx, rule, uc)
	if err != nil {
		var ex *gatekeeper.ExhaustedError
		if errors.As(err, &ex) {
			utils.Log.Errorf("❌ [VERIFY] %v", ex)
		} else {
			utils.Log.Errorf("❌ [VERIFY] Evaluation failed: %v", err)
		}
		return models.Reject(UnavailableExplanation), nil, true
	}
	return gatekeeper.Parse(ev.Text, ev.Calls, rule), ev, false
}
