package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gstbooks/internal/apperror"
	"gstbooks/internal/ledger"
	"gstbooks/internal/logger"
	"gstbooks/internal/model"
	"gstbooks/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateAccountRequest struct {
	Code         string  `json:"code" binding:"required,max=20"`
	Name         string  `json:"name" binding:"required,max=200"`
	AccountType  string  `json:"account_type" binding:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	AccountGroup string  `json:"account_group"`
	ParentID     *string `json:"parent_id"`
	Description  string  `json:"description"`
}

type UpdateAccountRequest struct {
	Code         *string `json:"code" binding:"omitempty,max=20"`
	Name         *string `json:"name" binding:"omitempty,max=200"`
	AccountType  *string `json:"account_type" binding:"omitempty,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	AccountGroup *string `json:"account_group"`
	ParentID     *string `json:"parent_id"` // empty string detaches from the parent
	Description  *string `json:"description"`
	IsActive     *bool   `json:"is_active"`
}

type AccountResponse struct {
	ID           string            `json:"id"`
	Code         string            `json:"code"`
	Name         string            `json:"name"`
	AccountType  string            `json:"account_type"`
	AccountGroup string            `json:"account_group"`
	ParentID     *string           `json:"parent_id"`
	Description  string            `json:"description"`
	IsActive     bool              `json:"is_active"`
	IsSystem     bool              `json:"is_system"`
	Children     []AccountResponse `json:"children,omitempty"`
	CreatedAt    string            `json:"created_at"`
}

type SeedAccountsResponse struct {
	Created         int `json:"created"`
	Existing        int `json:"existing"`
	SettingsUpdated int `json:"settings_updated"`
}

// --- Interface ---

type AccountService interface {
	ListAccounts(ctx context.Context, accountType string, activeOnly bool) ([]AccountResponse, error)
	AccountTree(ctx context.Context) ([]AccountResponse, error)
	CreateAccount(ctx context.Context, req CreateAccountRequest, userID string) (AccountResponse, error)
	UpdateAccount(ctx context.Context, id string, req UpdateAccountRequest, userID string) (AccountResponse, error)
	DeactivateAccount(ctx context.Context, id string, userID string) (AccountResponse, error)
	DeleteAccount(ctx context.Context, id string, userID string) error
	SeedDefaultAccounts(ctx context.Context, userID string) (SeedAccountsResponse, error)
}

type accountService struct {
	accountRepo  repository.AccountRepository
	ledgerRepo   repository.LedgerRepository
	settingsRepo repository.SettingsRepository
	txManager    repository.TransactionManager
	audit        auditTrail
	log          zerolog.Logger
}

func NewAccountService(
	accountRepo repository.AccountRepository,
	ledgerRepo repository.LedgerRepository,
	settingsRepo repository.SettingsRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) AccountService {
	log := logger.WithComponent("accounts")
	return &accountService{
		accountRepo:  accountRepo,
		ledgerRepo:   ledgerRepo,
		settingsRepo: settingsRepo,
		txManager:    txManager,
		audit:        auditTrail{repo: auditRepo, txManager: txManager, log: log},
		log:          log,
	}
}

// --- Implementation ---

func (s *accountService) ListAccounts(ctx context.Context, accountType string, activeOnly bool) ([]AccountResponse, error) {
	accounts, err := s.accountRepo.List(ctx, repository.AccountFilter{AccountType: accountType, ActiveOnly: activeOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch accounts: %w", err)
	}
	res := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		res = append(res, toAccountResponse(a))
	}
	return res, nil
}

func (s *accountService) AccountTree(ctx context.Context) ([]AccountResponse, error) {
	accounts, err := s.accountRepo.List(ctx, repository.AccountFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch accounts: %w", err)
	}
	roots := ledger.BuildTree(accounts)
	res := make([]AccountResponse, 0, len(roots))
	for _, n := range roots {
		res = append(res, toAccountNode(n))
	}
	return res, nil
}

func (s *accountService) CreateAccount(ctx context.Context, req CreateAccountRequest, userID string) (AccountResponse, error) {
	const op = "CreateAccount"

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return AccountResponse{}, apperror.NewValidationError(op, "code", "is required")
	}
	if !ledger.IsAccountType(req.AccountType) {
		return AccountResponse{}, apperror.NewValidationError(op, "account_type", "is not a known account type")
	}
	parentID, err := parseOptionalID(op, "parent_id", req.ParentID)
	if err != nil {
		return AccountResponse{}, err
	}

	account := model.ChartOfAccount{
		Code:         code,
		Name:         strings.TrimSpace(req.Name),
		AccountType:  req.AccountType,
		AccountGroup: req.AccountGroup,
		ParentID:     parentID,
		Description:  req.Description,
		IsActive:     true,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureCodeFree(txCtx, op, code, uuid.Nil); err != nil {
			return err
		}
		if parentID != nil {
			if err := s.checkParent(txCtx, op, *parentID, account.AccountType); err != nil {
				return err
			}
		}
		if err := s.accountRepo.Create(txCtx, &account); err != nil {
			return saveErr(op, "account", err)
		}
		s.audit.record(txCtx, userID, model.ActionCreateAccount, "account", account.ID.String(), account.Code,
			map[string]interface{}{"name": account.Name, "account_type": account.AccountType})
		return nil
	})
	if err != nil {
		return AccountResponse{}, err
	}
	return toAccountResponse(account), nil
}

func (s *accountService) UpdateAccount(ctx context.Context, id string, req UpdateAccountRequest, userID string) (AccountResponse, error) {
	const op = "UpdateAccount"

	accountID, err := parseID(op, "id", id)
	if err != nil {
		return AccountResponse{}, err
	}

	var account *model.ChartOfAccount
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		account, err = s.accountRepo.FindByID(txCtx, accountID)
		if err != nil {
			return loadErr(op, "account", err)
		}

		structural := req.Code != nil && *req.Code != account.Code ||
			req.AccountType != nil && *req.AccountType != account.AccountType ||
			req.ParentID != nil
		if account.IsSystem && structural {
			return apperror.NewValidationError(op, "", "system accounts cannot change code, type or parent")
		}

		if req.Code != nil && *req.Code != account.Code {
			code := strings.TrimSpace(*req.Code)
			if code == "" {
				return apperror.NewValidationError(op, "code", "is required")
			}
			if err := s.ensureCodeFree(txCtx, op, code, account.ID); err != nil {
				return err
			}
			account.Code = code
		}
		if req.AccountType != nil && *req.AccountType != account.AccountType {
			if !ledger.IsAccountType(*req.AccountType) {
				return apperror.NewValidationError(op, "account_type", "is not a known account type")
			}
			account.AccountType = *req.AccountType
		}
		if req.ParentID != nil {
			parentID, err := parseOptionalID(op, "parent_id", req.ParentID)
			if err != nil {
				return err
			}
			if parentID != nil {
				if err := s.checkParent(txCtx, op, *parentID, account.AccountType); err != nil {
					return err
				}
				if err := s.checkCycle(txCtx, op, account.ID, *parentID); err != nil {
					return err
				}
			}
			account.ParentID = parentID
		} else if account.ParentID != nil && req.AccountType != nil {
			if err := s.checkParent(txCtx, op, *account.ParentID, account.AccountType); err != nil {
				return err
			}
		}
		if req.Name != nil {
			account.Name = strings.TrimSpace(*req.Name)
		}
		if req.AccountGroup != nil {
			account.AccountGroup = *req.AccountGroup
		}
		if req.Description != nil {
			account.Description = *req.Description
		}
		if req.IsActive != nil {
			account.IsActive = *req.IsActive
		}

		if err := s.accountRepo.Update(txCtx, account); err != nil {
			return saveErr(op, "account", err)
		}
		s.audit.record(txCtx, userID, model.ActionUpdateAccount, "account", account.ID.String(), account.Code,
			map[string]interface{}{"name": account.Name, "is_active": account.IsActive})
		return nil
	})
	if err != nil {
		return AccountResponse{}, err
	}
	return toAccountResponse(*account), nil
}

func (s *accountService) DeactivateAccount(ctx context.Context, id string, userID string) (AccountResponse, error) {
	const op = "DeactivateAccount"

	accountID, err := parseID(op, "id", id)
	if err != nil {
		return AccountResponse{}, err
	}

	var account *model.ChartOfAccount
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		account, err = s.accountRepo.FindByID(txCtx, accountID)
		if err != nil {
			return loadErr(op, "account", err)
		}
		if !account.IsActive {
			return nil
		}
		account.IsActive = false
		if err := s.accountRepo.Update(txCtx, account); err != nil {
			return saveErr(op, "account", err)
		}
		s.audit.record(txCtx, userID, model.ActionDeactivateAccount, "account", account.ID.String(), account.Code, nil)
		return nil
	})
	if err != nil {
		return AccountResponse{}, err
	}
	return toAccountResponse(*account), nil
}

func (s *accountService) DeleteAccount(ctx context.Context, id string, userID string) error {
	const op = "DeleteAccount"

	accountID, err := parseID(op, "id", id)
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		account, err := s.accountRepo.FindByID(txCtx, accountID)
		if err != nil {
			return loadErr(op, "account", err)
		}
		if account.IsSystem {
			return apperror.NewValidationError(op, "", "system accounts cannot be deleted")
		}
		count, err := s.ledgerRepo.CountByAccount(txCtx, accountID)
		if err != nil {
			return fmt.Errorf("failed to count ledger entries: %w", err)
		}
		if count > 0 {
			return apperror.NewConflictError(op, fmt.Sprintf("account %s has %d ledger entries; deactivate it instead", account.Code, count), nil)
		}
		all, err := s.accountRepo.List(txCtx, repository.AccountFilter{})
		if err != nil {
			return fmt.Errorf("failed to fetch accounts: %w", err)
		}
		for _, a := range all {
			if a.ParentID != nil && *a.ParentID == accountID {
				return apperror.NewConflictError(op, fmt.Sprintf("account %s has child accounts", account.Code), nil)
			}
		}
		if err := s.accountRepo.Delete(txCtx, accountID); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		s.audit.record(txCtx, userID, model.ActionDeleteAccount, "account", account.ID.String(), account.Code, nil)
		return nil
	})
}

// SeedDefaultAccounts installs the default chart and fills unset default account settings.
// Running it again changes nothing.
func (s *accountService) SeedDefaultAccounts(ctx context.Context, userID string) (SeedAccountsResponse, error) {
	const op = "SeedDefaultAccounts"

	var res SeedAccountsResponse
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		res = SeedAccountsResponse{}
		settings, err := s.settingsRepo.Get(txCtx)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}

		for _, def := range ledger.DefaultAccounts {
			account, err := s.accountRepo.FindByCode(txCtx, def.Code)
			switch {
			case err == nil:
				res.Existing++
			case errors.Is(err, gorm.ErrRecordNotFound):
				account = &model.ChartOfAccount{
					Code:         def.Code,
					Name:         def.Name,
					AccountType:  def.Type,
					AccountGroup: def.Group,
					IsActive:     true,
					IsSystem:     true,
				}
				if err := s.accountRepo.Create(txCtx, account); err != nil {
					return saveErr(op, "account "+def.Code, err)
				}
				res.Created++
			default:
				return fmt.Errorf("failed to load account %s: %w", def.Code, err)
			}

			if def.Setting == "" {
				continue
			}
			if slot := ledger.SettingSlot(settings, def.Setting); slot != nil && *slot == nil {
				accountID := account.ID
				*slot = &accountID
				res.SettingsUpdated++
			}
		}

		if res.SettingsUpdated > 0 {
			if err := s.settingsRepo.Save(txCtx, settings); err != nil {
				return fmt.Errorf("failed to save settings: %w", err)
			}
		}
		s.audit.record(txCtx, userID, model.ActionSeedAccounts, "account", "", "",
			map[string]interface{}{"created": res.Created, "existing": res.Existing, "settings_updated": res.SettingsUpdated})
		return nil
	})
	if err != nil {
		return SeedAccountsResponse{}, err
	}

	s.log.Info().Int("created", res.Created).Int("settings_updated", res.SettingsUpdated).Msg("default accounts seeded")
	return res, nil
}

// --- Helpers ---

func (s *accountService) ensureCodeFree(ctx context.Context, op, code string, self uuid.UUID) error {
	existing, err := s.accountRepo.FindByCode(ctx, code)
	if err == nil && existing.ID != self {
		return apperror.NewConflictError(op, fmt.Sprintf("account code %s already exists", code), nil)
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check account code: %w", err)
	}
	return nil
}

func (s *accountService) checkParent(ctx context.Context, op string, parentID uuid.UUID, accountType string) error {
	parent, err := s.accountRepo.FindByID(ctx, parentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NewValidationError(op, "parent_id", "parent account does not exist")
	}
	if err != nil {
		return fmt.Errorf("failed to load parent account: %w", err)
	}
	if parent.AccountType != accountType {
		return apperror.NewValidationError(op, "parent_id",
			fmt.Sprintf("parent is %s but account is %s", parent.AccountType, accountType))
	}
	return nil
}

func (s *accountService) checkCycle(ctx context.Context, op string, id, parentID uuid.UUID) error {
	all, err := s.accountRepo.List(ctx, repository.AccountFilter{})
	if err != nil {
		return fmt.Errorf("failed to fetch accounts: %w", err)
	}
	parents := make(map[uuid.UUID]*uuid.UUID, len(all))
	for _, a := range all {
		parents[a.ID] = a.ParentID
	}
	if ledger.CreatesCycle(parents, id, parentID) {
		return apperror.NewValidationError(op, "parent_id", "re-parenting would create a cycle")
	}
	return nil
}

// --- Mapping ---

func toAccountResponse(a model.ChartOfAccount) AccountResponse {
	return AccountResponse{
		ID:           a.ID.String(),
		Code:         a.Code,
		Name:         a.Name,
		AccountType:  a.AccountType,
		AccountGroup: a.AccountGroup,
		ParentID:     idString(a.ParentID),
		Description:  a.Description,
		IsActive:     a.IsActive,
		IsSystem:     a.IsSystem,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
	}
}

func toAccountNode(n *ledger.Node) AccountResponse {
	resp := toAccountResponse(n.Account)
	for _, c := range n.Children {
		resp.Children = append(resp.Children, toAccountNode(c))
	}
	return resp
}
