package domain_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// helper для создания черновика заказа с одной позицией.
func makeDraft() domain.OrderDraft {
	line := domain.NewOrderLine(7, "Polera", 2, domain.SizeL, decimal.NewFromInt(1000))
	return domain.OrderDraft{
		UserID:        "user-1",
		Lines:         []domain.OrderLine{line},
		PaymentMethod: domain.PaymentMethodCard,
		Total:         decimal.NewFromInt(2000),
	}
}

func TestOrderDraftValidateInvariants_Ok(t *testing.T) {
	draft := makeDraft()
	if errs := draft.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderDraftValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(d *domain.OrderDraft)
		want error
	}{
		{
			name: "no lines",
			mut: func(d *domain.OrderDraft) {
				d.Lines = nil
				d.Total = decimal.Zero
			},
			want: domain.ErrNoValidLines,
		},
		{
			name: "zero qty",
			mut: func(d *domain.OrderDraft) {
				d.Lines[0].Qty = 0
			},
			want: domain.ErrLineInvalid,
		},
		{
			name: "negative price",
			mut: func(d *domain.OrderDraft) {
				d.Lines[0].UnitPrice = decimal.NewFromInt(-1)
			},
			want: domain.ErrLinePriceInvalid,
		},
		{
			name: "total mismatch",
			mut: func(d *domain.OrderDraft) {
				d.Total = decimal.NewFromInt(1)
			},
			want: domain.ErrAmountMismatch,
		},
		{
			name: "unknown payment",
			mut: func(d *domain.OrderDraft) {
				d.PaymentMethod = "barter"
			},
			want: domain.ErrPaymentMethodInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			draft := makeDraft()
			tc.mut(&draft)

			errs := draft.ValidateInvariants()
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestNewOrderLine_Subtotal(t *testing.T) {
	line := domain.NewOrderLine(1, "X", 3, "m", decimal.RequireFromString("1500.50"))
	if !line.Subtotal.Equal(decimal.RequireFromString("4501.50")) {
		t.Fatalf("unexpected subtotal: %s", line.Subtotal)
	}
	if line.Size != domain.SizeM {
		t.Fatalf("expected normalized size M, got %q", line.Size)
	}
}

func TestOrderStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusProcessing, true},
		{domain.OrderStatusPending, domain.OrderStatusShipped, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusProcessing, false},
		{domain.OrderStatusShipped, domain.OrderStatusCancelled, true},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled, false},
		{domain.OrderStatusCancelled, domain.OrderStatusPending, false},
		{domain.OrderStatusPending, domain.OrderStatusPending, false},
		{domain.OrderStatusPending, domain.OrderStatus("lost"), false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
