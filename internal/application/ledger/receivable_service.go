package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceivableService handles receivable issuance from billing and annotations
type ReceivableService struct {
	txScope         TransactionScope
	defaultCurrency valueobject.Currency
	now             func() time.Time
}

// NewReceivableService creates a new ReceivableService
func NewReceivableService(txScope TransactionScope, defaultCurrency valueobject.Currency) *ReceivableService {
	if defaultCurrency == "" {
		defaultCurrency = valueobject.DefaultCurrency
	}
	return &ReceivableService{
		txScope:         txScope,
		defaultCurrency: defaultCurrency,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// CreateReceivableCommand is the inbound creation request of the billing process
type CreateReceivableCommand struct {
	Actor          shared.Actor
	DocumentNumber string
	PayerID        uuid.UUID
	PayerName      string
	Description    string
	FaceValue      decimal.Decimal
	Currency       string
	DueDate        time.Time
}

// CreateReceivable issues an open receivable; document numbers are unique per tenant
func (s *ReceivableService) CreateReceivable(ctx context.Context, cmd CreateReceivableCommand) (*ledger.Receivable, error) {
	ctx, op := telemetry.Start(ctx, "ledger", "create_receivable",
		telemetry.AttrTenantID.String(cmd.Actor.TenantID.String()))
	defer op.End()

	cur := s.defaultCurrency
	if cmd.Currency != "" {
		parsed, err := valueobject.ParseCurrency(cmd.Currency)
		if err != nil {
			return nil, shared.NewValidationError("INVALID_CURRENCY", err.Error())
		}
		cur = parsed
	}

	r, err := ledger.NewReceivable(cmd.Actor, ledger.NewReceivableInput{
		DocumentNumber: cmd.DocumentNumber,
		PayerID:        cmd.PayerID,
		PayerName:      cmd.PayerName,
		Description:    cmd.Description,
		FaceValue:      cmd.FaceValue,
		Currency:       cur,
		DueDate:        cmd.DueDate,
	})
	if err != nil {
		return nil, op.Fail(err)
	}

	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		exists, err := repos.Receivables().ExistsByDocumentNumber(ctx, r.TenantID, r.DocumentNumber)
		if err != nil {
			return err
		}
		if exists {
			return shared.NewConflictError("DUPLICATE_DOCUMENT",
				fmt.Sprintf("Receivable with document number %s already exists", r.DocumentNumber))
		}
		if err := repos.Receivables().Create(ctx, r); err != nil {
			return err
		}
		note, err := ledger.NewNoteHistory(cmd.Actor, r,
			fmt.Sprintf("Receivable %s issued for %s", r.DocumentNumber, valueobject.FormatAmount(r.FaceValue, r.Currency, ledgerLanguage)),
			"", s.now())
		if err != nil {
			return err
		}
		return repos.History().Append(ctx, note)
	})
	if err != nil {
		return nil, op.Fail(err)
	}
	op.Annotate(telemetry.AttrReceivableID.String(r.ID.String()))
	return r, nil
}

// AddNoteCommand annotates a receivable's audit trail
type AddNoteCommand struct {
	Actor         shared.Actor
	ReceivableID  uuid.UUID
	Text          string
	AttachmentRef string
}

// AddNote appends a NOTE entry; it never changes balances
func (s *ReceivableService) AddNote(ctx context.Context, cmd AddNoteCommand) (*ledger.HistoryEntry, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, err
	}
	var entry *ledger.HistoryEntry
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		r, err := repos.Receivables().FindByID(ctx, cmd.Actor.TenantID, cmd.ReceivableID)
		if err != nil {
			return err
		}
		entry, err = ledger.NewNoteHistory(cmd.Actor, r, cmd.Text, cmd.AttachmentRef, s.now())
		if err != nil {
			return err
		}
		return repos.History().Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
