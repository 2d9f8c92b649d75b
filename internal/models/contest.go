package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ContestStatus string

const (
	ContestOpen   ContestStatus = "OPEN"
	ContestClosed ContestStatus = "CLOSED"
)

type Contest struct {
	ID           string          `json:"id"`
	Creator      string          `json:"creator"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	PrizeTokenID string          `json:"prize_token_id"`
	PrizeAmount  decimal.Decimal `json:"prize_token_amount"`
	PrizeWinners int             `json:"prize_token_winners"`
	Status       ContestStatus   `json:"status"`
	EndDate      time.Time       `json:"end_date"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// EscrowAccount is the feature account holding this contest's prize.
func (c Contest) EscrowAccount() Account {
	return FeatureAccount(FeatureContest, c.PrizeTokenID)
}

// PrizePerWinner splits the prize evenly, truncated to a whole token. The
// remainder stays in escrow.
func (c Contest) PrizePerWinner() (decimal.Decimal, error) {
	if c.PrizeWinners <= 0 {
		return decimal.Zero, Arithmetic("contest.prize_per_winner", "winner count is zero")
	}
	// QuoRem at precision 0 is exact; Div rounds to DivisionPrecision first.
	q, _ := c.PrizeAmount.QuoRem(decimal.NewFromInt(int64(c.PrizeWinners)), 0)
	return q, nil
}

func (c Contest) Reference() string { return "contest:" + c.ID }

type ContestEntry struct {
	ID               string    `json:"id"`
	ContestID        string    `json:"contest_id"`
	Submitter        string    `json:"submitter"`
	SubmissionURL    string    `json:"submission_url"`
	IsWinner         bool      `json:"is_winner"`
	WinnerTransferID *string   `json:"winner_transfer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
