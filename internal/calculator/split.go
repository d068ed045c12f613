package calculator

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/mmynk/limitly/internal/apperr"
	"github.com/mmynk/limitly/internal/models"
)

// ShareInput is one caller-supplied entry of an EXACT split.
type ShareInput struct {
	UserID string
	Amount *float64
}

// SplitInput is the tagged split payload: Participants is read for EQUAL,
// Shares for EXACT. Supplying the field of the other mode is an error.
type SplitInput struct {
	Mode         models.SplitType
	Participants []string
	Shares       []ShareInput
}

// Equal builds an EQUAL split input.
func Equal(participants ...string) SplitInput {
	return SplitInput{Mode: models.SplitEqual, Participants: participants}
}

// Exact builds an EXACT split input.
func Exact(shares ...ShareInput) SplitInput {
	return SplitInput{Mode: models.SplitExact, Shares: shares}
}

// Owes is a convenience constructor for an EXACT share entry.
func Owes(userID string, amount float64) ShareInput {
	return ShareInput{UserID: userID, Amount: &amount}
}

func invalidSplit(format string, args ...any) error {
	return apperr.Validation(format, args...).WithReason(apperr.ReasonInvalidSplit)
}

// ComputeSplit produces the shares for total under the given split.
//
// EQUAL gives every participant total/N with no remainder redistribution.
// EXACT passes the caller's amounts through after checking that they sum to
// total within models.ShareTolerance; a mismatch is a validation error with
// reason SPLIT_MISMATCH.
func ComputeSplit(total float64, in SplitInput) ([]models.Share, error) {
	if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 {
		return nil, apperr.Validation("amount must be a positive number")
	}

	switch in.Mode {
	case models.SplitEqual:
		if len(in.Shares) > 0 {
			return nil, invalidSplit("EQUAL split takes participants, not shares")
		}
		if err := checkParticipants(in.Participants); err != nil {
			return nil, err
		}
		return equalShares(total, in.Participants), nil

	case models.SplitExact:
		if len(in.Participants) > 0 {
			return nil, invalidSplit("EXACT split takes shares, not participants")
		}
		return exactShares(total, in.Shares)
	}

	return nil, invalidSplit("unknown split mode %q", in.Mode)
}

// RecomputeForAmount re-derives shares after an amount-only edit.
// EQUAL shares are re-divided over the existing participants; EXACT shares
// cannot be inferred, so the caller must resupply them (SPLIT_REQUIRED).
func RecomputeForAmount(mode models.SplitType, existing []models.Share, total float64) ([]models.Share, error) {
	if mode == models.SplitExact {
		return nil, apperr.Validation("changing the amount of an EXACT split requires new shares").
			WithReason(apperr.ReasonSplitRequired)
	}

	participants := make([]string, len(existing))
	for i, s := range existing {
		participants[i] = s.UserID
	}
	return ComputeSplit(total, Equal(participants...))
}

// ScaleShares rescales shares proportionally so they sum exactly to total,
// as when shares entered in a foreign currency are normalized to the base
// amount. The rounding residual lands on the last share.
func ScaleShares(shares []models.Share, total float64) []models.Share {
	out := make([]models.Share, len(shares))
	copy(out, shares)
	if len(out) == 0 {
		return out
	}

	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(decimal.NewFromFloat(s.Amount))
	}
	target := decimal.NewFromFloat(total)
	last := len(out) - 1
	if sum.IsZero() {
		out[last].Amount = total
		return out
	}

	ratio := target.Div(sum)
	assigned := decimal.Zero
	for i := range out[:last] {
		v := decimal.NewFromFloat(out[i].Amount).Mul(ratio)
		out[i].Amount = v.InexactFloat64()
		assigned = assigned.Add(v)
	}
	rest := target.Sub(assigned)
	if rest.IsNegative() {
		rest = decimal.Zero
	}
	out[last].Amount = rest.InexactFloat64()
	return out
}

// ValidateShares checks the share-sum invariant for an expense amount.
func ValidateShares(total float64, shares []models.Share) error {
	if len(shares) == 0 {
		return invalidSplit("an expense needs at least one share")
	}
	sum := decimal.Zero
	for _, s := range shares {
		if s.Amount < 0 {
			return invalidSplit("share for %s is negative", s.UserID)
		}
		sum = sum.Add(decimal.NewFromFloat(s.Amount))
	}
	return checkSum(sum, total)
}

func checkSum(sum decimal.Decimal, total float64) error {
	diff := sum.Sub(decimal.NewFromFloat(total)).Abs()
	if diff.GreaterThan(decimal.NewFromFloat(models.ShareTolerance)) {
		return apperr.Validation("shares sum to %s but the amount is %s",
			sum.StringFixed(2), decimal.NewFromFloat(total).StringFixed(2)).
			WithReason(apperr.ReasonSplitMismatch)
	}
	return nil
}

func checkParticipants(ids []string) error {
	if len(ids) == 0 {
		return invalidSplit("must have at least one participant")
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return invalidSplit("participant id is required")
		}
		if seen[id] {
			return invalidSplit("participant %s listed twice", id)
		}
		seen[id] = true
	}
	return nil
}

func equalShares(total float64, participants []string) []models.Share {
	per := total / float64(len(participants))
	shares := make([]models.Share, len(participants))
	for i, id := range participants {
		shares[i] = models.Share{UserID: id, Amount: per}
	}
	return shares
}

func exactShares(total float64, in []ShareInput) ([]models.Share, error) {
	if len(in) == 0 {
		return nil, invalidSplit("must have at least one share")
	}

	ids := make([]string, len(in))
	sum := decimal.Zero
	shares := make([]models.Share, len(in))
	for i, s := range in {
		ids[i] = s.UserID
		if s.Amount == nil || math.IsNaN(*s.Amount) || math.IsInf(*s.Amount, 0) {
			return nil, invalidSplit("share %d needs a numeric amount", i+1)
		}
		if *s.Amount < 0 {
			return nil, invalidSplit("share for %s is negative", s.UserID)
		}
		sum = sum.Add(decimal.NewFromFloat(*s.Amount))
		shares[i] = models.Share{UserID: s.UserID, Amount: *s.Amount}
	}
	if err := checkParticipants(ids); err != nil {
		return nil, err
	}
	if err := checkSum(sum, total); err != nil {
		return nil, err
	}
	return shares, nil
}
