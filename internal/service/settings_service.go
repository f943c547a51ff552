package service

import (
	"context"
	"fmt"
	"time"

	"gstbooks/internal/apperror"
	"gstbooks/internal/ledger"
	"gstbooks/internal/logger"
	"gstbooks/internal/model"
	"gstbooks/internal/repository"

	"github.com/rs/zerolog"
)

// --- DTOs ---

type SettingsResponse struct {
	CompanyName     string             `json:"company_name"`
	GSTIN           string             `json:"gstin"`
	StateCode       string             `json:"state_code"`
	LedgerPostingOn string             `json:"ledger_posting_on"`
	EnableTDS       bool               `json:"enable_tds"`
	EnableTCS       bool               `json:"enable_tcs"`
	DefaultAccounts map[string]*string `json:"default_accounts"`
	UpdatedAt       string             `json:"updated_at"`
}

// UpdateSettingsRequest patches the settings row. Nil fields are left unchanged; an empty
// string in DefaultAccounts clears that default.
type UpdateSettingsRequest struct {
	CompanyName     *string           `json:"company_name"`
	GSTIN           *string           `json:"gstin" binding:"omitempty,len=15"`
	StateCode       *string           `json:"state_code" binding:"omitempty,len=2"`
	LedgerPostingOn *string           `json:"ledger_posting_on" binding:"omitempty,oneof=ON_CREATE ON_SENT"`
	EnableTDS       *bool             `json:"enable_tds"`
	EnableTCS       *bool             `json:"enable_tcs"`
	DefaultAccounts map[string]string `json:"default_accounts"`
}

// --- Interface ---

type SettingsService interface {
	GetSettings(ctx context.Context) (SettingsResponse, error)
	UpdateSettings(ctx context.Context, req UpdateSettingsRequest, userID string) (SettingsResponse, error)
}

type settingsService struct {
	settingsRepo repository.SettingsRepository
	accountRepo  repository.AccountRepository
	txManager    repository.TransactionManager
	audit        auditTrail
	log          zerolog.Logger
}

func NewSettingsService(
	settingsRepo repository.SettingsRepository,
	accountRepo repository.AccountRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) SettingsService {
	log := logger.WithComponent("settings")
	return &settingsService{
		settingsRepo: settingsRepo,
		accountRepo:  accountRepo,
		txManager:    txManager,
		audit:        auditTrail{repo: auditRepo, txManager: txManager, log: log},
		log:          log,
	}
}

// --- Implementation ---

func (s *settingsService) GetSettings(ctx context.Context) (SettingsResponse, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return SettingsResponse{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return toSettingsResponse(settings), nil
}

func (s *settingsService) UpdateSettings(ctx context.Context, req UpdateSettingsRequest, userID string) (SettingsResponse, error) {
	const op = "UpdateSettings"

	var settings *model.CompanySettings
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		settings, err = s.settingsRepo.Get(txCtx)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}

		if req.CompanyName != nil {
			settings.CompanyName = *req.CompanyName
		}
		if req.GSTIN != nil {
			settings.GSTIN = *req.GSTIN
		}
		if req.StateCode != nil {
			settings.StateCode = *req.StateCode
		}
		if req.LedgerPostingOn != nil {
			if *req.LedgerPostingOn != model.PostOnCreate && *req.LedgerPostingOn != model.PostOnSent {
				return apperror.NewValidationError(op, "ledger_posting_on", "must be ON_CREATE or ON_SENT")
			}
			settings.LedgerPostingOn = *req.LedgerPostingOn
		}
		if req.EnableTDS != nil {
			settings.EnableTDS = *req.EnableTDS
		}
		if req.EnableTCS != nil {
			settings.EnableTCS = *req.EnableTCS
		}

		for name, raw := range req.DefaultAccounts {
			slot := ledger.SettingSlot(settings, name)
			if slot == nil {
				return apperror.NewValidationError(op, "default_accounts."+name, "unknown setting")
			}
			if raw == "" {
				*slot = nil
				continue
			}
			id, err := parseID(op, "default_accounts."+name, raw)
			if err != nil {
				return err
			}
			account, err := s.accountRepo.FindByID(txCtx, id)
			if err != nil {
				return loadErr(op, "account", err)
			}
			if !account.IsActive {
				return apperror.NewValidationError(op, "default_accounts."+name, "account is inactive")
			}
			*slot = &id
		}

		if err := s.settingsRepo.Save(txCtx, settings); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}

		s.audit.record(txCtx, userID, model.ActionUpdateSettings, "settings", settings.ID.String(), settings.CompanyName,
			map[string]interface{}{"ledger_posting_on": settings.LedgerPostingOn, "enable_tds": settings.EnableTDS, "enable_tcs": settings.EnableTCS})
		return nil
	})
	if err != nil {
		return SettingsResponse{}, err
	}

	s.log.Info().Str("ledger_posting_on", settings.LedgerPostingOn).Msg("settings updated")
	return toSettingsResponse(settings), nil
}

// --- Mapping ---

func toSettingsResponse(s *model.CompanySettings) SettingsResponse {
	defaults := make(map[string]*string)
	for _, acct := range ledger.DefaultAccounts {
		if acct.Setting == "" {
			continue
		}
		if slot := ledger.SettingSlot(s, acct.Setting); slot != nil {
			defaults[acct.Setting] = idString(*slot)
		}
	}
	return SettingsResponse{
		CompanyName:     s.CompanyName,
		GSTIN:           s.GSTIN,
		StateCode:       s.StateCode,
		LedgerPostingOn: s.LedgerPostingOn,
		EnableTDS:       s.EnableTDS,
		EnableTCS:       s.EnableTCS,
		DefaultAccounts: defaults,
		UpdatedAt:       s.UpdatedAt.Format(time.RFC3339),
	}
}
