package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gstbooks/internal/apperror"
	"gstbooks/internal/model"
	"gstbooks/internal/repository"

	"github.com/divan/num2words"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// EventPublisher pushes ledger events to live clients. The websocket hub implements it.
type EventPublisher interface {
	Publish(eventType string, data interface{})
}

func publish(pub EventPublisher, eventType string, data interface{}) {
	if pub != nil {
		pub.Publish(eventType, data)
	}
}

// auditTrail writes audit rows inside the caller's transaction. Each write runs in its
// own savepoint so a failed insert does not abort the surrounding posting.
type auditTrail struct {
	repo      repository.AuditRepository
	txManager repository.TransactionManager
	log       zerolog.Logger
}

func (a auditTrail) record(ctx context.Context, userID, action, entityType, entityID, entityName string, details map[string]interface{}) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}
	entry := model.AuditLog{
		UserID:     optionalUUID(userID),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	err = a.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		return a.repo.Log(txCtx, &entry)
	})
	if err != nil {
		a.log.Warn().Err(err).Str("action", action).Str("entity_id", entityID).Msg("failed to write audit log")
	}
}

// --- Parsing helpers ---

func parseID(op, field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperror.NewValidationError(op, field, "must be a valid uuid")
	}
	return id, nil
}

func parseOptionalID(op, field string, raw *string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := parseID(op, field, *raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// optionalUUID tolerates malformed ids; it is only used for audit attribution.
func optionalUUID(raw string) *uuid.UUID {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func parseDate(op, field, raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperror.NewValidationError(op, field, "must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

func parseOptionalDate(op, field string, raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := parseDate(op, field, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseAmount reads a decimal string. An empty string is zero.
func parseAmount(op, field, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, apperror.NewValidationError(op, field, "must be a decimal number")
	}
	return d, nil
}

// loadErr translates a missing row into NOT_FOUND and wraps anything else.
func loadErr(op, what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NewNotFoundError(op, what+" not found")
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// saveErr turns unique-key violations into CONFLICT.
func saveErr(op, what string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperror.NewConflictError(op, what+" already exists", err)
	}
	return fmt.Errorf("failed to save %s: %w", what, err)
}

// --- Formatting helpers ---

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// startOfDay truncates t to midnight UTC, the granularity of every document date.
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func formatOptionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func idString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// amountInWords renders whole rupees, e.g. "Rupees One Thousand One Hundred Eighty Only".
func amountInWords(amount decimal.Decimal) string {
	rupees := amount.Round(0).IntPart()
	words := num2words.Convert(int(rupees))
	parts := strings.Fields(strings.ReplaceAll(words, "-", " "))
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return "Rupees " + strings.Join(parts, " ") + " Only"
}
