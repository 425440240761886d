package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"wallet-core/internal/domain"
)

// formatCents renders minor units as a decimal string, e.g. 12550 -> "125.50".
func formatCents(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func categoryTitle(c domain.Category, credit bool) string {
	switch c {
	case domain.CategoryDeposit:
		return "Deposit confirmed"
	case domain.CategoryWithdrawal:
		return "Withdrawal processed"
	case domain.CategoryAdminAdjustment:
		return "Balance adjustment"
	case domain.CategoryROICredit:
		return "ROI credited"
	case domain.CategorySignupBonus:
		return "Signup bonus"
	case domain.CategoryTrade:
		return "Trade settled"
	case domain.CategoryGiftcardBuy:
		return "Gift card purchase"
	case domain.CategoryGiftcardSell:
		return "Gift card sale"
	}
	if credit {
		return "Funds credited"
	}
	return "Funds debited"
}

func categorySeverity(c domain.Category, credit bool) domain.Severity {
	switch {
	case c == domain.CategoryAdminAdjustment:
		return domain.SeverityHigh
	case !credit:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// mutationNotification summarizes one applied mutation for the wallet owner.
func mutationNotification(acct domain.Account, rec domain.TransactionRecord) domain.Notification {
	credit := rec.DeltaCents > 0
	verb := "credited"
	if !credit {
		verb = "debited"
	}
	amount := rec.DeltaCents
	if amount < 0 {
		amount = -amount
	}

	return domain.Notification{
		ID:       uuid.New(),
		OwnerID:  acct.OwnerID,
		Title:    categoryTitle(rec.Category, credit),
		Severity: categorySeverity(rec.Category, credit),
		Body: fmt.Sprintf("Your %s wallet was %s %s. New balance: %s.",
			acct.CurrencyClass, verb, formatCents(amount), formatCents(rec.ResultingBalance)),
	}
}
