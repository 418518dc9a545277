package orders

import "errors"

var (
	ErrDuplicateOrder = errors.New("order number already exists")
	ErrOrderNotFound  = errors.New("order not found")
)
