package services

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/token-contests/internal/metrics"
	"github.com/baharkarakas/token-contests/internal/models"
	repo "github.com/baharkarakas/token-contests/internal/repository"
)

// ContestService runs the contest escrow state machine. Funding, payout and
// refund are ledger appends against the (CONTEST, token) feature account.
//
// With strict off the service keeps the legacy behaviour: winners can be paid
// repeatedly and beyond the winner count, closing refunds the full prize, and
// entries are accepted on closed contests. Strict mode rejects those with
// ErrState and refunds only what is left in escrow for the contest.
type ContestService struct {
	store  repo.Store
	agg    *Aggregator
	strict bool
	log    *slog.Logger
}

func NewContestService(store repo.Store, agg *Aggregator, strict bool, log *slog.Logger) *ContestService {
	return &ContestService{store: store, agg: agg, strict: strict, log: log.With("component", "contests")}
}

type CreateContestInput struct {
	TokenID     string
	PrizeAmount decimal.Decimal
	WinnerCount int
	EndDate     time.Time
	Title       string
	Description string
}

// Nil fields are left unchanged.
type UpdateContestInput struct {
	Title       *string
	Description *string
	EndDate     *time.Time
}

func escrowKey(tokenID string) models.BalanceKey {
	return models.FeatureKey(tokenID, models.FeatureContest, tokenID)
}

func (s *ContestService) Create(ctx context.Context, creator string, in CreateContestInput) (c models.Contest, err error) {
	defer func() { observe("create", err) }()

	in.PrizeAmount = models.NormalizeAmount(in.PrizeAmount)
	var fields []models.FieldError
	if strings.TrimSpace(creator) == "" {
		fields = append(fields, models.FieldError{Field: "creator", Msg: "required"})
	}
	if strings.TrimSpace(in.TokenID) == "" {
		fields = append(fields, models.FieldError{Field: "token_id", Msg: "required"})
	}
	if !in.PrizeAmount.IsPositive() {
		fields = append(fields, models.FieldError{Field: "prize_token_amount", Msg: "must be > 0"})
	}
	if in.WinnerCount <= 0 {
		fields = append(fields, models.FieldError{Field: "prize_token_winners", Msg: "must be > 0"})
	}
	if len(fields) > 0 {
		return models.Contest{}, models.Validation("contest.create", fields...)
	}

	creatorKey := models.UserKey(creator, in.TokenID)
	escrow := escrowKey(in.TokenID)
	err = s.store.WithTx(ctx, []string{creatorKey.LockKey(), escrow.LockKey()}, func(tx repo.Tx) error {
		bal, err := s.agg.RefreshUserBalance(ctx, tx, creator, in.TokenID)
		if err != nil {
			return err
		}
		if bal.LessThan(in.PrizeAmount) {
			return models.InsufficientBalance("contest.create",
				"balance "+bal.String()+" < prize "+in.PrizeAmount.String())
		}

		c, err = tx.Contests().Create(ctx, models.Contest{
			ID:           uuid.NewString(),
			Creator:      creator,
			Title:        strings.TrimSpace(in.Title),
			Description:  in.Description,
			PrizeTokenID: in.TokenID,
			PrizeAmount:  in.PrizeAmount,
			PrizeWinners: in.WinnerCount,
			Status:       models.ContestOpen,
			EndDate:      in.EndDate,
		})
		if err != nil {
			return err
		}
		if _, err := appendTransfer(ctx, tx, models.TransferRecord{
			Amount:    in.PrizeAmount,
			TokenID:   in.TokenID,
			From:      models.UserAccount(creator),
			To:        c.EscrowAccount(),
			Kind:      models.KindEscrowFund,
			Reference: c.Reference(),
		}); err != nil {
			return err
		}
		if _, err := s.agg.RefreshUserBalance(ctx, tx, creator, in.TokenID); err != nil {
			return err
		}
		_, err = s.agg.RefreshFeatureBalance(ctx, tx, escrow.TokenID, escrow.Feature, escrow.FeatureTokenID)
		return err
	})
	if err != nil {
		return models.Contest{}, err
	}
	s.log.Info("contest created", "contest_id", c.ID, "creator", creator, "token_id", c.PrizeTokenID, "prize", c.PrizeAmount.String(), "winners", c.PrizeWinners)
	return c, nil
}

func (s *ContestService) Update(ctx context.Context, actor, contestID string, in UpdateContestInput) (c models.Contest, err error) {
	defer func() { observe("update", err) }()

	c, err = s.Get(ctx, contestID)
	if err != nil {
		return models.Contest{}, err
	}
	// the escrow lock orders this rewrite against Close
	escrow := escrowKey(c.PrizeTokenID)
	err = s.store.WithTx(ctx, []string{escrow.LockKey()}, func(tx repo.Tx) error {
		c, err = tx.Contests().GetByID(ctx, contestID)
		if err != nil {
			return err
		}
		if s.strict {
			if c.Creator != actor {
				return models.StateErr("contest.update", "only the creator may update the contest")
			}
			if c.Status == models.ContestClosed {
				return models.StateErr("contest.update", "contest is closed")
			}
		}
		if in.Title != nil {
			c.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			c.Description = *in.Description
		}
		if in.EndDate != nil {
			c.EndDate = *in.EndDate
		}
		if err := tx.Contests().Update(ctx, c); err != nil {
			return err
		}
		c, err = tx.Contests().GetByID(ctx, contestID)
		return err
	})
	if err != nil {
		return models.Contest{}, err
	}
	return c, nil
}

func (s *ContestService) SubmitEntry(ctx context.Context, submitter, contestID, submissionURL string) (e models.ContestEntry, err error) {
	defer func() { observe("submit_entry", err) }()

	var fields []models.FieldError
	if strings.TrimSpace(submitter) == "" {
		fields = append(fields, models.FieldError{Field: "submitter", Msg: "required"})
	}
	if !validURI(submissionURL) {
		fields = append(fields, models.FieldError{Field: "submission_url", Msg: "not a valid URI"})
	}
	if len(fields) > 0 {
		return models.ContestEntry{}, models.Validation("contest.submit_entry", fields...)
	}

	err = s.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		c, err := tx.Contests().GetByID(ctx, contestID)
		if err != nil {
			return err
		}
		if s.strict && c.Status == models.ContestClosed {
			return models.StateErr("contest.submit_entry", "contest is closed")
		}
		e, err = tx.Entries().Create(ctx, models.ContestEntry{
			ContestID:     c.ID,
			Submitter:     submitter,
			SubmissionURL: strings.TrimSpace(submissionURL),
		})
		return err
	})
	if err != nil {
		return models.ContestEntry{}, err
	}
	return e, nil
}

// AssignWinner pays floor(prize / winners) from escrow to the entry's
// submitter and records the payout on the entry.
func (s *ContestService) AssignWinner(ctx context.Context, entryID string) (e models.ContestEntry, err error) {
	defer func() { observe("assign_winner", err) }()

	entry, c, err := s.entryWithContest(ctx, entryID)
	if err != nil {
		return models.ContestEntry{}, err
	}
	escrow := escrowKey(c.PrizeTokenID)
	winnerKey := models.UserKey(entry.Submitter, c.PrizeTokenID)

	err = s.store.WithTx(ctx, []string{escrow.LockKey(), winnerKey.LockKey()}, func(tx repo.Tx) error {
		// re-read under the escrow lock
		e, err = tx.Entries().GetByID(ctx, entryID)
		if err != nil {
			return err
		}
		c, err = tx.Contests().GetByID(ctx, e.ContestID)
		if err != nil {
			return err
		}
		prize, err := c.PrizePerWinner()
		if err != nil {
			return err
		}
		if !prize.IsPositive() {
			return models.Arithmetic("contest.assign_winner", "prize per winner truncates to zero")
		}
		if s.strict {
			if err := s.checkPayable(ctx, tx, c, e); err != nil {
				return err
			}
		}

		id, err := appendTransfer(ctx, tx, models.TransferRecord{
			Amount:    prize,
			TokenID:   c.PrizeTokenID,
			From:      c.EscrowAccount(),
			To:        models.UserAccount(e.Submitter),
			Kind:      models.KindEscrowPayout,
			Reference: c.Reference(),
		})
		if err != nil {
			return err
		}
		if err := tx.Entries().MarkWinner(ctx, e.ID, id); err != nil {
			return err
		}
		e.IsWinner = true
		e.WinnerTransferID = &id

		if _, err := s.agg.RefreshUserBalance(ctx, tx, e.Submitter, c.PrizeTokenID); err != nil {
			return err
		}
		_, err = s.agg.RefreshFeatureBalance(ctx, tx, escrow.TokenID, escrow.Feature, escrow.FeatureTokenID)
		return err
	})
	if err != nil {
		return models.ContestEntry{}, err
	}
	s.log.Info("winner assigned", "contest_id", c.ID, "entry_id", e.ID, "winner", e.Submitter, "transfer_id", *e.WinnerTransferID)
	return e, nil
}

func (s *ContestService) checkPayable(ctx context.Context, tx repo.Tx, c models.Contest, e models.ContestEntry) error {
	if c.Status == models.ContestClosed {
		return models.StateErr("contest.assign_winner", "contest is closed")
	}
	if e.IsWinner {
		return models.StateErr("contest.assign_winner", "entry already paid")
	}
	all, err := tx.Entries().ListByContest(ctx, c.ID)
	if err != nil {
		return err
	}
	winners := 0
	for _, x := range all {
		if x.IsWinner {
			winners++
		}
	}
	if winners >= c.PrizeWinners {
		return models.StateErr("contest.assign_winner", "winner count exhausted")
	}
	return nil
}

// Close refunds the escrow to actor if the contest is still open, then marks
// it closed. Closing a closed contest succeeds without a refund.
func (s *ContestService) Close(ctx context.Context, actor, contestID string) (c models.Contest, err error) {
	defer func() { observe("close", err) }()

	if strings.TrimSpace(actor) == "" {
		return models.Contest{}, models.Validation("contest.close", models.FieldError{Field: "actor", Msg: "required"})
	}
	err = s.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		c, err = tx.Contests().GetByID(ctx, contestID)
		return err
	})
	if err != nil {
		return models.Contest{}, err
	}
	escrow := escrowKey(c.PrizeTokenID)
	actorKey := models.UserKey(actor, c.PrizeTokenID)

	var refunded decimal.Decimal
	err = s.store.WithTx(ctx, []string{escrow.LockKey(), actorKey.LockKey()}, func(tx repo.Tx) error {
		c, err = tx.Contests().GetByID(ctx, contestID)
		if err != nil {
			return err
		}
		if s.strict && c.Creator != actor {
			return models.StateErr("contest.close", "only the creator may close the contest")
		}
		if c.Status == models.ContestOpen {
			refunded = c.PrizeAmount
			if s.strict {
				paid, err := s.paidOut(ctx, tx, c)
				if err != nil {
					return err
				}
				refunded = refunded.Sub(paid)
			}
			if refunded.IsPositive() {
				if _, err := appendTransfer(ctx, tx, models.TransferRecord{
					Amount:    refunded,
					TokenID:   c.PrizeTokenID,
					From:      c.EscrowAccount(),
					To:        models.UserAccount(actor),
					Kind:      models.KindEscrowRefund,
					Reference: c.Reference(),
				}); err != nil {
					return err
				}
			}
			if _, err := s.agg.RefreshUserBalance(ctx, tx, actor, c.PrizeTokenID); err != nil {
				return err
			}
			if _, err := s.agg.RefreshFeatureBalance(ctx, tx, escrow.TokenID, escrow.Feature, escrow.FeatureTokenID); err != nil {
				return err
			}
		}
		c.Status = models.ContestClosed
		if err := tx.Contests().Update(ctx, c); err != nil {
			return err
		}
		c, err = tx.Contests().GetByID(ctx, contestID)
		return err
	})
	if err != nil {
		return models.Contest{}, err
	}
	s.log.Info("contest closed", "contest_id", c.ID, "actor", actor, "refunded", refunded.String())
	return c, nil
}

// paidOut sums the escrow payouts the ledger holds under the contest's
// reference, whatever entry they were recorded against.
func (s *ContestService) paidOut(ctx context.Context, tx repo.Tx, c models.Contest) (decimal.Decimal, error) {
	escrow := c.EscrowAccount()
	paid := decimal.Zero
	for r, err := range tx.Ledger().Query(ctx, models.TransferFilter{
		TokenID: c.PrizeTokenID, Account: &escrow, Kind: models.KindEscrowPayout,
	}) {
		if err != nil {
			return decimal.Zero, err
		}
		if r.Reference != c.Reference() || r.From != escrow {
			continue
		}
		paid = paid.Add(r.Amount)
	}
	return paid, nil
}

func (s *ContestService) Get(ctx context.Context, id string) (c models.Contest, err error) {
	err = s.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		c, err = tx.Contests().GetByID(ctx, id)
		return err
	})
	return c, err
}

func (s *ContestService) ListEntries(ctx context.Context, contestID string) (out []models.ContestEntry, err error) {
	err = s.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		if _, err := tx.Contests().GetByID(ctx, contestID); err != nil {
			return err
		}
		out, err = tx.Entries().ListByContest(ctx, contestID)
		return err
	})
	return out, err
}

func (s *ContestService) entryWithContest(ctx context.Context, entryID string) (e models.ContestEntry, c models.Contest, err error) {
	err = s.store.WithTx(ctx, nil, func(tx repo.Tx) error {
		e, err = tx.Entries().GetByID(ctx, entryID)
		if err != nil {
			return err
		}
		c, err = tx.Contests().GetByID(ctx, e.ContestID)
		return err
	})
	return e, c, err
}

// validURI accepts absolute URIs with a scheme and either an authority or an
// opaque part, e.g. https://host/path or mailto:someone@example.com.
func validURI(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t\n") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != ""
}

func appendTransfer(ctx context.Context, tx repo.Tx, r models.TransferRecord) (string, error) {
	id, err := tx.Ledger().Append(ctx, r)
	if err != nil {
		return "", err
	}
	metrics.LedgerAppends.WithLabelValues(string(r.Kind)).Inc()
	return id, nil
}

func observe(op string, err error) {
	metrics.ContestOps.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrState):
		return "state"
	case errors.Is(err, models.ErrArithmetic):
		return "arithmetic"
	}
	return "error"
}
