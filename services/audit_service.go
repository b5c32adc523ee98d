package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"gatekeeper-api/gatekeeper"
	"gatekeeper-api/models"
	"gatekeeper-api/utils"
)

// Auditor records one /verify outcome. Implementations must not fail the request.
type Auditor interface {
	Record(ctx context.Context, entry models.VerificationAudit)
}

// Archiver is satisfied by *utils.R2Archive.
type Archiver interface {
	PutJSON(ctx context.Context, key string, v any) error
}

// AuditService writes audits to Postgres and, when configured, archives them to R2.
// Either sink may be nil.
type AuditService struct {
	DB      *gorm.DB
	archive Archiver
	clock   clockwork.Clock
}

func NewAuditService(db *gorm.DB, archive Archiver, clock clockwork.Clock) *AuditService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AuditService{DB: db, archive: archive, clock: clock}
}

// BuildAudit condenses an evaluation. The rule is kept only as a hash and the user's
// answer is never included.
func BuildAudit(rule, dropID string, ev *gatekeeper.Evaluation, d models.VerificationDecision, exhausted bool) models.VerificationAudit {
	sum := sha256.Sum256([]byte(rule))
	entry := models.VerificationAudit{
		ID:          uuid.NewString(),
		RuleHash:    hex.EncodeToString(sum[:]),
		DropID:      dropID,
		Approved:    d.Approved,
		Explanation: d.Explanation,
		Exhausted:   exhausted,
	}
	if ev != nil {
		entry.Model = ev.Model
		entry.Turns = ev.Turns
		names := make([]string, 0, len(ev.Calls))
		for _, c := range ev.Calls {
			names = append(names, c.ToolName)
		}
		entry.ToolNames = strings.Join(names, ",")
	}
	return entry
}

func (a *AuditService) Record(ctx context.Context, entry models.VerificationAudit) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.clock.Now().UTC()
	}

	if a.DB != nil {
		if err := a.DB.WithContext(ctx).Create(&entry).Error; err != nil {
			utils.Log.Errorf("❌ [AUDIT] Failed to store audit %s: %v", entry.ID, err)
		}
	}

	if a.archive != nil {
		if err := a.archive.PutJSON(ctx, archiveKey(entry), entry); err != nil {
			utils.Log.Errorf("❌ [AUDIT] Failed to archive audit %s: %v", entry.ID, err)
		}
	}
}

func archiveKey(entry models.VerificationAudit) string {
	return fmt.Sprintf("audits/%s/%s.json", entry.CreatedAt.Format("2006/01/02"), entry.ID)
}

// LogAuditor only logs. It is used when neither Postgres nor R2 is configured.
type LogAuditor struct{}

func (LogAuditor) Record(_ context.Context, entry models.VerificationAudit) {
	utils.Log.Infow("📝 [AUDIT] verification",
		"id", entry.ID,
		"approved", entry.Approved,
		"drop_id", entry.DropID,
		"model", entry.Model,
		"turns", entry.Turns,
		"tools", entry.ToolNames,
		"exhausted", entry.Exhausted,
	)
}
