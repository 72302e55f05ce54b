package goMFA

import (
	"context"

	internalflows "github.com/MrEthical07/goMFA/internal/flows"
)

// GenerateBackupCodes mints a fresh batch of recovery codes for userID,
// revoking every earlier code. The plaintext codes are returned once and are
// never retrievable again.
func (e *Engine) GenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	return internalflows.RunGenerateBackupCodes(ctx, userID, e.backupCodeFlowDeps())
}

// ConsumeBackupCode burns a matching unused code and returns how many remain.
// Formatting is forgiving: case, spaces and dashes are ignored.
func (e *Engine) ConsumeBackupCode(ctx context.Context, userID, code string) (int, error) {
	return internalflows.RunConsumeBackupCode(ctx, userID, code, e.backupCodeFlowDeps())
}

// CountBackupCodes returns the number of live codes of userID.
func (e *Engine) CountBackupCodes(ctx context.Context, userID string) (int, error) {
	if e == nil || e.backupCodes == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.backupCodes.CountBackupCodes(ctx, userID)
	if err != nil {
		return 0, ErrBackendUnavailable
	}
	return n, nil
}

func (e *Engine) backupCodeFlowDeps() internalflows.BackupCodeDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.BackupCodeDeps{
		Count: cfg.BackupCodes.Count,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		Metrics: internalflows.BackupCodeMetrics{
			BackupCodeUsed:        int(MetricBackupCodeUsed),
			BackupCodeFailed:      int(MetricBackupCodeFailed),
			BackupCodeRegenerated: int(MetricBackupCodeRegenerated),
		},
		Events: internalflows.BackupCodeEvents{
			BackupCodesGenerated: auditEventBackupCodesGenerated,
			BackupCodeUsed:       auditEventBackupCodeUsed,
			BackupCodeFailed:     auditEventBackupCodeFailed,
		},
		Errors: internalflows.BackupCodeErrors{
			EngineNotReady:        ErrEngineNotReady,
			BackupCodeInvalid:     ErrBackupCodeInvalid,
			BackupCodeUnavailable: ErrBackendUnavailable,
		},
	}

	if e != nil {
		deps.Now = e.now
		deps.EmitAudit = e.flowAudit
	}
	if e != nil && e.backupCodes != nil {
		deps.ReplaceBackupCodes = e.backupCodes.ReplaceBackupCodes
		deps.ConsumeBackupCode = e.backupCodes.ConsumeBackupCode
	}

	return deps
}
