package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/token-contests/internal/models"
	repo "github.com/baharkarakas/token-contests/internal/repository"
)

// TransferService moves tokens across the platform boundary (deposit,
// withdraw) and between users. The boundary is the (MINT, token) feature
// account, so the ledger stays closed: the MINT balance is minus the net
// external funding of the token.
type TransferService struct {
	store repo.Store
	agg   *Aggregator
	log   *slog.Logger
}

func NewTransferService(store repo.Store, agg *Aggregator, log *slog.Logger) *TransferService {
	return &TransferService{store: store, agg: agg, log: log.With("component", "transfers")}
}

func mintKey(tokenID string) models.BalanceKey {
	return models.FeatureKey(tokenID, models.FeatureMint, tokenID)
}

func validateMove(op, userID, tokenID string, amount decimal.Decimal) error {
	var fields []models.FieldError
	if strings.TrimSpace(userID) == "" {
		fields = append(fields, models.FieldError{Field: "user_id", Msg: "required"})
	}
	if strings.TrimSpace(tokenID) == "" {
		fields = append(fields, models.FieldError{Field: "token_id", Msg: "required"})
	}
	if !amount.IsPositive() {
		fields = append(fields, models.FieldError{Field: "amount", Msg: "must be > 0"})
	}
	if len(fields) > 0 {
		return models.Validation(op, fields...)
	}
	return nil
}

// ----------------- DEPOSIT -----------------

func (s *TransferService) Deposit(ctx context.Context, userID, tokenID string, amount decimal.Decimal, reference string) (models.TransferRecord, error) {
	amount = models.NormalizeAmount(amount)
	if err := validateMove("transfer.deposit", userID, tokenID, amount); err != nil {
		return models.TransferRecord{}, err
	}
	mint := mintKey(tokenID)
	user := models.UserKey(userID, tokenID)
	rec := models.TransferRecord{
		Amount: amount, TokenID: tokenID,
		From: mint.Account(), To: user.Account(),
		Kind: models.KindDeposit, Reference: reference,
	}
	return s.move(ctx, rec, nil, mint, user)
}

// ----------------- WITHDRAW -----------------

func (s *TransferService) Withdraw(ctx context.Context, userID, tokenID string, amount decimal.Decimal, reference string) (models.TransferRecord, error) {
	amount = models.NormalizeAmount(amount)
	if err := validateMove("transfer.withdraw", userID, tokenID, amount); err != nil {
		return models.TransferRecord{}, err
	}
	mint := mintKey(tokenID)
	user := models.UserKey(userID, tokenID)
	rec := models.TransferRecord{
		Amount: amount, TokenID: tokenID,
		From: user.Account(), To: mint.Account(),
		Kind: models.KindWithdrawal, Reference: reference,
	}
	return s.move(ctx, rec, &user, mint, user)
}

// ----------------- TRANSFER -----------------

func (s *TransferService) Transfer(ctx context.Context, fromID, toID, tokenID string, amount decimal.Decimal, reference string) (models.TransferRecord, error) {
	amount = models.NormalizeAmount(amount)
	if err := validateMove("transfer.transfer", fromID, tokenID, amount); err != nil {
		return models.TransferRecord{}, err
	}
	if strings.TrimSpace(toID) == "" {
		return models.TransferRecord{}, models.Validation("transfer.transfer", models.FieldError{Field: "to_user_id", Msg: "required"})
	}
	if fromID == toID {
		return models.TransferRecord{}, models.Validation("transfer.transfer", models.FieldError{Field: "to_user_id", Msg: "cannot transfer to self"})
	}
	from := models.UserKey(fromID, tokenID)
	to := models.UserKey(toID, tokenID)
	rec := models.TransferRecord{
		Amount: amount, TokenID: tokenID,
		From: from.Account(), To: to.Account(),
		Kind: models.KindTransfer, Reference: reference,
	}
	return s.move(ctx, rec, &from, from, to)
}

// move appends rec and refreshes the touched rows in one locked unit. When
// debit is set its balance must cover the amount.
func (s *TransferService) move(ctx context.Context, rec models.TransferRecord, debit *models.BalanceKey, touched ...models.BalanceKey) (models.TransferRecord, error) {
	locks := make([]string, 0, len(touched))
	for _, k := range touched {
		locks = append(locks, k.LockKey())
	}
	err := s.store.WithTx(ctx, locks, func(tx repo.Tx) error {
		if debit != nil {
			bal, err := s.agg.RefreshUserBalance(ctx, tx, debit.UserID, debit.TokenID)
			if err != nil {
				return err
			}
			if bal.LessThan(rec.Amount) {
				return models.InsufficientBalance("transfer."+string(rec.Kind),
					"balance "+bal.String()+" < amount "+rec.Amount.String())
			}
		}
		id, err := appendTransfer(ctx, tx, rec)
		if err != nil {
			return err
		}
		for _, k := range touched {
			if _, err := s.agg.Refresh(ctx, tx, k); err != nil {
				return err
			}
		}
		rec, err = tx.Ledger().Get(ctx, id)
		return err
	})
	if err != nil {
		s.log.Debug("transfer rejected", "kind", rec.Kind, "token_id", rec.TokenID, "err", err)
		return models.TransferRecord{}, err
	}
	s.log.Info("transfer applied", "id", rec.ID, "kind", rec.Kind, "token_id", rec.TokenID, "amount", rec.Amount.String())
	return rec, nil
}

// ----------------- Queries -----------------

func (s *TransferService) GetByID(ctx context.Context, id string) (rec models.TransferRecord, err error) {
	err = s.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		rec, err = tx.Ledger().Get(ctx, id)
		return err
	})
	return rec, err
}

// List materialises at most limit records matching f, in append order.
func (s *TransferService) List(ctx context.Context, f models.TransferFilter, limit int) ([]models.TransferRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	out := []models.TransferRecord{}
	err := s.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		for r, err := range tx.Ledger().Query(ctx, f) {
			if err != nil {
				return err
			}
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
