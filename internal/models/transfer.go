package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits persisted for amounts.
const AmountScale = 10

// NormalizeAmount truncates v to AmountScale fractional digits. Callers
// normalise before validating so that sub-scale amounts fail as zero.
func NormalizeAmount(v decimal.Decimal) decimal.Decimal {
	return v.Truncate(AmountScale)
}

const (
	FeatureContest = "CONTEST"
	FeatureMint    = "MINT"
)

type TransferKind string

const (
	KindEscrowFund   TransferKind = "escrow_fund"
	KindEscrowPayout TransferKind = "escrow_payout"
	KindEscrowRefund TransferKind = "escrow_refund"
	KindDeposit      TransferKind = "deposit"
	KindWithdrawal   TransferKind = "withdrawal"
	KindTransfer     TransferKind = "transfer"
)

func (k TransferKind) Valid() bool {
	switch k {
	case KindEscrowFund, KindEscrowPayout, KindEscrowRefund, KindDeposit, KindWithdrawal, KindTransfer:
		return true
	}
	return false
}

// Account is one side of a transfer: a user or a feature-tagged pseudo-account.
type Account struct {
	UserID         string `json:"user_id,omitempty"`
	Feature        string `json:"feature,omitempty"`
	FeatureTokenID string `json:"feature_token_id,omitempty"`
}

func UserAccount(userID string) Account { return Account{UserID: userID} }

func FeatureAccount(feature, tokenID string) Account {
	return Account{Feature: feature, FeatureTokenID: tokenID}
}

func (a Account) IsUser() bool    { return a.UserID != "" }
func (a Account) IsFeature() bool { return a.Feature != "" || a.FeatureTokenID != "" }

// Resolvable reports whether exactly one side of the account is set and a
// feature account names both its feature and its token.
func (a Account) Resolvable() bool {
	if a.IsUser() == a.IsFeature() {
		return false
	}
	if a.IsFeature() {
		return strings.TrimSpace(a.Feature) != "" && strings.TrimSpace(a.FeatureTokenID) != ""
	}
	return strings.TrimSpace(a.UserID) != ""
}

// Key is a stable identifier of the account scoped to a token, used for locking.
func (a Account) Key(tokenID string) string {
	if a.IsUser() {
		return "user:" + a.UserID + "|" + tokenID
	}
	return "feature:" + a.Feature + ":" + a.FeatureTokenID + "|" + tokenID
}

func (a Account) String() string {
	if a.IsUser() {
		return "user:" + a.UserID
	}
	return "feature:" + a.Feature + "/" + a.FeatureTokenID
}

// TransferRecord is a ledger entry. It is never modified after append.
type TransferRecord struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	TokenID   string          `json:"token_id"`
	From      Account         `json:"from"`
	To        Account         `json:"to"`
	Kind      TransferKind    `json:"kind"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Validate checks the append preconditions of a record.
func (r TransferRecord) Validate() error {
	var fields []FieldError
	if !NormalizeAmount(r.Amount).IsPositive() {
		fields = append(fields, FieldError{Field: "amount", Msg: "must be > 0"})
	}
	if strings.TrimSpace(r.TokenID) == "" {
		fields = append(fields, FieldError{Field: "token_id", Msg: "required"})
	}
	if !r.From.Resolvable() {
		fields = append(fields, FieldError{Field: "from", Msg: "unresolvable account"})
	}
	if !r.To.Resolvable() {
		fields = append(fields, FieldError{Field: "to", Msg: "unresolvable account"})
	}
	if !r.Kind.Valid() {
		fields = append(fields, FieldError{Field: "kind", Msg: "unknown transfer kind"})
	}
	if len(fields) > 0 {
		return Validation("ledger.append", fields...)
	}
	return nil
}

// TransferFilter selects ledger records. Zero fields match everything.
type TransferFilter struct {
	TokenID string
	Account *Account
	Kind    TransferKind
}

// Match evaluates the filter against a record in process.
func (f TransferFilter) Match(r TransferRecord) bool {
	if f.TokenID != "" && r.TokenID != f.TokenID {
		return false
	}
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Account != nil && r.From != *f.Account && r.To != *f.Account {
		return false
	}
	return true
}
