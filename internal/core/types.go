// Package core defines the shared types and interfaces for the trading agent
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// CounterMax bounds every resource counter read from the game pages.
// Values outside [0, CounterMax] are treated as read failures.
const CounterMax = 10_000_000

// ResourceSnapshot captures the player's resources at one point in time.
// Currency values are whole dollars.
type ResourceSnapshot struct {
	Cash             int64     `json:"cash"`
	Bank             int64     `json:"bank"`
	InventoryUsed    int       `json:"inventory_used"`
	InventoryTotal   int       `json:"inventory_total"`
	StorageUsed      int       `json:"storage_used"`
	StorageTotal     int       `json:"storage_total"`
	SellingSlotsUsed int       `json:"selling_slots_used"`
	SellingSlotsMax  int       `json:"selling_slots_max"`
	Timestamp        time.Time `json:"timestamp"`
}

// TotalFunds returns cash on hand plus bank balance.
func (r *ResourceSnapshot) TotalFunds() int64 {
	return r.Cash + r.Bank
}

// InventoryFree returns the number of free inventory slots.
func (r *ResourceSnapshot) InventoryFree() int {
	return maxInt(0, r.InventoryTotal-r.InventoryUsed)
}

// StorageFree returns the number of free storage slots.
func (r *ResourceSnapshot) StorageFree() int {
	return maxInt(0, r.StorageTotal-r.StorageUsed)
}

// SellingSlotsFree returns the number of free selling slots.
func (r *ResourceSnapshot) SellingSlotsFree() int {
	return maxInt(0, r.SellingSlotsMax-r.SellingSlotsUsed)
}

// SpaceAvailable reports whether any inventory or storage slot is free.
func (r *ResourceSnapshot) SpaceAvailable() bool {
	return r.InventoryFree() > 0 || r.StorageFree() > 0
}

// IsBlocked reports whether the player can make no progress at all:
// funds below the minimum threshold, no space anywhere, no selling slots.
func (r *ResourceSnapshot) IsBlocked(minCashThreshold int64) bool {
	return r.TotalFunds() < minCashThreshold && !r.SpaceAvailable() && r.SellingSlotsFree() == 0
}

// MarketListing is one row parsed from the marketplace buy table. The
// location and buy-num tokens are opaque locators required to execute a
// purchase against that exact row.
type MarketListing struct {
	ItemName     string          `json:"item_name"`
	Seller       string          `json:"seller"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	ItemLocation string          `json:"item_location"`
	BuyNum       string          `json:"buy_num"`
}

// TotalPrice returns unit price times quantity.
func (l *MarketListing) TotalPrice() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// InventoryItem is one occupied slot in the player's inventory.
type InventoryItem struct {
	ItemName   string    `json:"item_name"`
	ItemType   string    `json:"item_type"`
	Quantity   int       `json:"quantity"`
	SlotIndex  int       `json:"slot_index"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// RiskTier classifies a purchase by downside exposure.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Escalate bumps the tier one level up, capped at high.
func (t RiskTier) Escalate() RiskTier {
	switch t {
	case RiskLow:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// PurchaseOpportunity is a scored, accepted candidate from the buying
// strategy. EstimatedSellPrice is always strictly above the listing price.
type PurchaseOpportunity struct {
	Listing            MarketListing   `json:"listing"`
	EstimatedSellPrice decimal.Decimal `json:"estimated_sell_price"`
	ProfitMargin       decimal.Decimal `json:"profit_margin"`
	Risk               RiskTier        `json:"risk"`
	PriorityScore      decimal.Decimal `json:"priority_score"`
	Category           string          `json:"category"`
}

// SellOrder schedules one inventory item onto one selling slot. The selling
// price is the listed total for the whole stack, in whole dollars.
type SellOrder struct {
	Item          InventoryItem   `json:"item"`
	SellingPrice  int64           `json:"selling_price"`
	SlotPosition  int             `json:"slot_position"`
	PriorityScore decimal.Decimal `json:"priority_score"`
}

// TransactionKind enumerates the operations recorded on a cycle.
type TransactionKind string

const (
	TxPurchase    TransactionKind = "purchase"
	TxSale        TransactionKind = "sale"
	TxWithdrawal  TransactionKind = "withdrawal"
	TxDeposit     TransactionKind = "deposit"
	TxStorageMove TransactionKind = "storage_move"
)

// TxStatus is the recorded outcome of a transaction. TxUnknown is used when
// a buy click was issued but the confirmation was never observed.
type TxStatus string

const (
	TxSuccess TxStatus = "success"
	TxFailed  TxStatus = "failed"
	TxUnknown TxStatus = "unknown"
)

// Transaction is one recorded operation within a cycle.
type Transaction struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      TransactionKind   `json:"kind"`
	ItemName  string            `json:"item_name,omitempty"`
	Quantity  int               `json:"quantity,omitempty"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Total     int64             `json:"total"`
	Status    TxStatus          `json:"status"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// StageTiming records wall-clock duration and outcome of one cycle stage.
type StageTiming struct {
	Name      string        `json:"name"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
}

// CycleError is one error recorded against a cycle stage.
type CycleError struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
}

// MarketCondition summarizes what the scan+buy stage saw.
type MarketCondition struct {
	ItemsScanned  int             `json:"items_scanned"`
	Opportunities int             `json:"opportunities"`
	AverageMargin decimal.Decimal `json:"average_margin"`
	ActivityLevel string          `json:"activity_level"`
	ScannedAt     time.Time       `json:"scanned_at"`
}

// CycleRecord is the sealed, persisted account of one trading cycle. It is
// mutated only through the cycle logger and never after sealing.
type CycleRecord struct {
	ID           string            `json:"id"`
	StartedAt    time.Time         `json:"started_at"`
	EndedAt      time.Time         `json:"ended_at"`
	Stages       []StageTiming     `json:"stages"`
	Before       *ResourceSnapshot `json:"before,omitempty"`
	After        *ResourceSnapshot `json:"after,omitempty"`
	Transactions []Transaction     `json:"transactions"`
	Errors       []CycleError      `json:"errors"`
	Condition    *MarketCondition  `json:"condition,omitempty"`
	Success      bool              `json:"success"`
	Cancelled    bool              `json:"cancelled"`
	TotalSpent   int64             `json:"total_spent"`
	TotalEarned  int64             `json:"total_earned"`
	NetProfit    int64             `json:"net_profit"`
}

// Cookie is an opaque browser cookie persisted with a session.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
}

// UserInfo is the cached identity captured after a successful login.
type UserInfo struct {
	Name  string `json:"name,omitempty"`
	Cash  int64  `json:"cash,omitempty"`
	Level int    `json:"level,omitempty"`
}

// SessionSnapshot is the persisted browser session used for smart re-login.
type SessionSnapshot struct {
	SavedAt   time.Time `json:"saved_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Cookies   []Cookie  `json:"cookies"`
	LastURL   string    `json:"last_url"`
	UserInfo  UserInfo  `json:"user_info"`
	Valid     bool      `json:"valid"`
}

// IsUsable reports whether the snapshot can be offered for restore at the
// given time: unexpired, marked valid, and carrying at least one cookie.
func (s *SessionSnapshot) IsUsable(now time.Time) bool {
	return s != nil && s.Valid && len(s.Cookies) > 0 && now.Before(s.ExpiresAt)
}

// Box is an element's bounding box in page coordinates.
type Box struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// PurchaseStatus is the distinct result of a single purchase attempt. The
// orchestrator branches on inventory_full to shortcut into space management.
type PurchaseStatus string

const (
	PurchaseOK                  PurchaseStatus = "ok"
	PurchaseInventoryFull       PurchaseStatus = "inventory_full"
	PurchaseInsufficientFunds   PurchaseStatus = "insufficient_funds"
	PurchaseRowGone             PurchaseStatus = "row_gone"
	PurchaseConfirmationMissing PurchaseStatus = "confirmation_missing"
	PurchaseOther               PurchaseStatus = "other"
)

// PurchaseResult reports the outcome of a single purchase attempt with the
// actual figures observed on the page.
type PurchaseResult struct {
	Status    PurchaseStatus
	ItemName  string
	Quantity  int
	UnitPrice decimal.Decimal
	Total     int64
	Seller    string
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
