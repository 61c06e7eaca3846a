package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("invalid input")
)

const (
	PaymentCash = "cash"
	PaymentMomo = "momo"
)

// Quantity is a stock level: either a non-negative count or unlimited
// (made-to-order items that never run out). It marshals to a JSON number
// or the string "unlimited".
type Quantity struct {
	Unlimited bool
	Count     int
}

func Limited(n int) Quantity    { return Quantity{Count: n} }
func UnlimitedQty() Quantity    { return Quantity{Unlimited: true} }
func (q Quantity) IsZero() bool { return !q.Unlimited && q.Count <= 0 }

// Enough reports whether n units can be taken from this stock level.
func (q Quantity) Enough(n int) bool {
	return q.Unlimited || q.Count >= n
}

// Take removes n units. Unlimited stock is unchanged.
func (q Quantity) Take(n int) Quantity {
	if q.Unlimited {
		return q
	}
	count := q.Count - n
	if count < 0 {
		count = 0
	}
	return Quantity{Count: count}
}

// Restore returns n units (refund path). Unlimited stock is unchanged.
func (q Quantity) Restore(n int) Quantity {
	if q.Unlimited {
		return q
	}
	return Quantity{Count: q.Count + n}
}

func (q Quantity) String() string {
	if q.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", q.Count)
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	if q.Unlimited {
		return json.Marshal("unlimited")
	}
	return json.Marshal(q.Count)
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != "unlimited" {
			return fmt.Errorf("%w: quantity must be a number or \"unlimited\", got %q", ErrValidation, s)
		}
		*q = Quantity{Unlimited: true}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: quantity must be a number or \"unlimited\"", ErrValidation)
	}
	if n < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}
	*q = Quantity{Count: n}
	return nil
}

type Product struct {
	ID       string   `json:"id" bson:"id"`
	Name     string   `json:"name" bson:"name"`
	Price    float64  `json:"price" bson:"price"`
	Quantity Quantity `json:"quantity" bson:"quantity"`
}

// Validate enforces the stock-entry rules: non-empty name, positive price.
func (p Product) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if p.Price <= 0 {
		return fmt.Errorf("%w: price must be greater than zero", ErrValidation)
	}
	return nil
}

type SaleItem struct {
	ProductID string  `json:"productId" bson:"productId"`
	Name      string  `json:"name" bson:"name"`
	Price     float64 `json:"price" bson:"price"`
	Quantity  int     `json:"quantity" bson:"quantity"`
}

// Sale is immutable once recorded, except for the refund transition.
type Sale struct {
	ID            string     `json:"id" bson:"id"`
	Date          time.Time  `json:"date" bson:"date"`
	Items         []SaleItem `json:"items" bson:"items"`
	Total         float64    `json:"total" bson:"total"`
	PaymentMethod string     `json:"paymentMethod" bson:"paymentMethod"`
	ShiftID       string     `json:"shiftId" bson:"shiftId"`
	Refunded      bool       `json:"refunded" bson:"refunded"`
	RefundDate    *time.Time `json:"refundDate,omitempty" bson:"refundDate,omitempty"`
	RefundShiftID string     `json:"refundShiftId,omitempty" bson:"refundShiftId,omitempty"`
}

// Shift is a cashier session. At most one shift is active (EndTime nil)
// at a time; workflow logic enforces that, not the store.
type Shift struct {
	ID           string     `json:"id" bson:"id"`
	StartTime    time.Time  `json:"startTime" bson:"startTime"`
	EndTime      *time.Time `json:"endTime" bson:"endTime"`
	Sales        []string   `json:"sales" bson:"sales"`
	CashTotal    float64    `json:"cashTotal" bson:"cashTotal"`
	MomoTotal    float64    `json:"momoTotal" bson:"momoTotal"`
	Total        float64    `json:"total" bson:"total"`
	Cashier      string     `json:"cashier" bson:"cashier"`
	StartingCash float64    `json:"startingCash" bson:"startingCash"`
	Refunds      []string   `json:"refunds" bson:"refunds"`
}

func (s Shift) Active() bool { return s.EndTime == nil }

type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type AddStockRequest struct {
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Quantity Quantity `json:"quantity"`
}

type UpdateStockRequest struct {
	Name     *string   `json:"name,omitempty"`
	Price    *float64  `json:"price,omitempty"`
	Quantity *Quantity `json:"quantity,omitempty"`
}

type CheckoutRequest struct {
	Items         []CartLine `json:"items"`
	PaymentMethod string     `json:"paymentMethod"`
}

type RefundRequest struct {
	SaleID string `json:"saleId"`
}

type OpenShiftRequest struct {
	Cashier      string  `json:"cashier"`
	StartingCash float64 `json:"startingCash"`
}

type ShiftSummary struct {
	Shift        Shift   `json:"shift"`
	SaleCount    int     `json:"saleCount"`
	RefundCount  int     `json:"refundCount"`
	CashExpected float64 `json:"cashExpected"`
	Text         string  `json:"text"`
	ShareLink    string  `json:"shareLink"`
}

type LowStockAlert struct {
	Product   Product `json:"product"`
	Threshold int     `json:"threshold"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
