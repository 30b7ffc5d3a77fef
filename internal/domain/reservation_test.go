package domain

import "testing"

func TestReservation_Validate(t *testing.T) {
	tests := []struct {
		name        string
		reservation *Reservation
		errCount    int
	}{
		{
			name:        "valid reservation",
			reservation: &Reservation{Key: NewItemKey(1, SizeM), Qty: 5},
			errCount:    0,
		},
		{
			name:        "missing item",
			reservation: &Reservation{Key: NewItemKey(0, SizeM), Qty: 5},
			errCount:    1,
		},
		{
			name:        "zero qty",
			reservation: &Reservation{Key: NewItemKey(3, ""), Qty: 0},
			errCount:    1,
		},
		{
			name:        "everything wrong",
			reservation: &Reservation{Qty: -1},
			errCount:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.reservation.Validate()
			if len(errs) != tt.errCount {
				t.Fatalf("Validate() returned %d errors, want %d: %v", len(errs), tt.errCount, errs)
			}
		})
	}
}

func TestReservationsFromLines(t *testing.T) {
	lines := []OrderLine{
		{ItemID: 7, Qty: 2, Size: SizeL},
		{ItemID: 9, Qty: 1, Size: ""},
	}

	got := ReservationsFromLines(lines)
	if len(got) != 2 {
		t.Fatalf("expected 2 reservations, got %d", len(got))
	}
	if got[0].Key != (ItemKey{ItemID: 7, Size: SizeL}) || got[0].Qty != 2 {
		t.Fatalf("unexpected first reservation: %+v", got[0])
	}
	if got[1].Key.Size != SizeUnique {
		t.Fatalf("expected unique size for sizeless line, got %q", got[1].Key.Size)
	}
}
