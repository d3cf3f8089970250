package client

import "time"

// TimestampLayout is the wall-clock format recorded on purchase history
// entries. Second precision, local time.
const TimestampLayout = "2006-01-02 15:04:05"

// Client is a prepaid account holder. Code and Name are stored lowercase and
// looked up case-insensitively; Code is unique across clients.
type Client struct {
	ID        int64            `json:"id"`
	Code      string           `json:"code"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Phone     string           `json:"phone"`
	Credits   float64          `json:"credits"`
	History   []PurchaseRecord `json:"history"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// PurchaseRecord is one line of a completed purchase. UnitPrice is the
// catalog price at purchase time; later catalog edits do not rewrite history.
type PurchaseRecord struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Product   string  `json:"product"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	TotalCost float64 `json:"total_cost"`
}

// CloneHistory returns a copy of the history slice so stored state cannot be
// mutated through returned values. An empty slice stays empty, not nil, so a
// new client's history serializes as [].
func CloneHistory(history []PurchaseRecord) []PurchaseRecord {
	if history == nil {
		return nil
	}
	out := make([]PurchaseRecord, len(history))
	copy(out, history)
	return out
}

// Clone returns a deep copy of the client.
func (c Client) Clone() Client {
	c.History = CloneHistory(c.History)
	return c
}
