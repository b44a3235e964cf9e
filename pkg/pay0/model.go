package pay0

import "encoding/json"

type createOrderResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Result  struct {
		OrderID    string `json:"orderId"`
		PaymentURL string `json:"payment_url"`
	} `json:"result"`
}

type orderStatusResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Result  struct {
		OrderID   string      `json:"orderId"`
		TxnStatus string      `json:"txnStatus"`
		Amount    json.Number `json:"amount"`
		UTR       string      `json:"utr"`
	} `json:"result"`
}

// Order is a created gateway order the customer pays through PaymentURL.
type Order struct {
	OrderID    string
	PaymentURL string
}

// OrderStatus is the gateway-side view of an order used to verify webhooks.
type OrderStatus struct {
	OrderID   string
	TxnStatus string
	Amount    string
}

// Paid reports whether the gateway settled the order.
func (s *OrderStatus) Paid() bool {
	return s.TxnStatus == "SUCCESS"
}
