package pinet

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Payment is the upstream payment resource as returned by GET /v2/payments/{id}.
type Payment struct {
	Identifier  string          `json:"identifier"`
	UserUID     string          `json:"user_uid"`
	Amount      decimal.Decimal `json:"amount"`
	Memo        string          `json:"memo"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	FromAddress string          `json:"from_address,omitempty"`
	ToAddress   string          `json:"to_address,omitempty"`
	Direction   string          `json:"direction,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	Network     string          `json:"network,omitempty"`
	Status      Status          `json:"status"`
	Transaction *Transaction    `json:"transaction"`
}

type Status struct {
	DeveloperApproved   bool `json:"developer_approved"`
	TransactionVerified bool `json:"transaction_verified"`
	DeveloperCompleted  bool `json:"developer_completed"`
	Cancelled           bool `json:"cancelled"`
	UserCancelled       bool `json:"user_cancelled"`
}

type Transaction struct {
	TxID     string `json:"txid"`
	Verified bool   `json:"verified"`
	Link     string `json:"_link,omitempty"`
}

func (p *Payment) Approved() bool  { return p.Status.DeveloperApproved }
func (p *Payment) Completed() bool { return p.Status.DeveloperCompleted }
func (p *Payment) Cancelled() bool { return p.Status.Cancelled || p.Status.UserCancelled }

// Verified reports that the blockchain transaction has been confirmed.
func (p *Payment) Verified() bool {
	return p.Status.TransactionVerified || (p.Transaction != nil && p.Transaction.Verified)
}

func (p *Payment) TxID() string {
	if p.Transaction == nil {
		return ""
	}
	return p.Transaction.TxID
}

// Pending reports a payment that is neither finished nor cancelled.
func (p *Payment) Pending() bool { return !p.Completed() && !p.Cancelled() }

// Confirmed is true once a transaction id exists and the network or developer has signed off on it.
func (p *Payment) Confirmed() bool {
	return p.TxID() != "" && (p.Verified() || p.Completed())
}
