package domain

// Reservation: запрос на резерв количества конкретной позиции в каталоге.
type Reservation struct {
	Key ItemKey `json:"key"`
	Qty int     `json:"qty"`
}

// Validate проверяет, корректно ли заполнены ключевые поля резервирования.
func (r *Reservation) Validate() []error {
	var errs []error

	if r.Key.ItemID <= 0 {
		errs = append(errs, ErrReservationItemRequired)
	}
	if r.Qty <= 0 {
		errs = append(errs, ErrReservationQtyInvalid)
	}

	return errs
}

// ReservationsFromLines строит резервы по позициям заказа.
func ReservationsFromLines(lines []OrderLine) []Reservation {
	result := make([]Reservation, 0, len(lines))
	for _, line := range lines {
		result = append(result, Reservation{
			Key: NewItemKey(line.ItemID, line.Size),
			Qty: line.Qty,
		})
	}
	return result
}
