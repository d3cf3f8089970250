package ledger

import "github.com/cafizzio/ledger/internal/app/domain/client"

// Receipt summarises a successful purchase.
type Receipt struct {
	ClientID         int64                   `json:"client_id"`
	TotalCost        float64                 `json:"total_cost"`
	RemainingCredits float64                 `json:"remaining_credits"`
	Lines            []client.PurchaseRecord `json:"lines"`
}
