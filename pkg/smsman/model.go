package smsman

import "encoding/json"

type GetNumberResponse struct {
	RequestID json.Number `json:"request_id"`
	Number    string      `json:"number"`
	ErrorCode string      `json:"error_code"`
	ErrorMsg  string      `json:"error_msg"`
}

type GetSMSResponse struct {
	RequestID json.Number `json:"request_id"`
	SMSCode   string      `json:"sms_code"`
	SMSText   string      `json:"sms_text"`
	Sender    string      `json:"sender"`
	Status    string      `json:"status"`
	ErrorCode string      `json:"error_code"`
	ErrorMsg  string      `json:"error_msg"`
}

type SetStatusResponse struct {
	RequestID json.Number `json:"request_id"`
	Success   bool        `json:"success"`
	ErrorCode string      `json:"error_code"`
	ErrorMsg  string      `json:"error_msg"`
}

// Number is a purchased virtual number with its provider-side request id.
type Number struct {
	RequestID string
	Number    string
}

// SMS is a delivered code. A zero SMS with Received=false means the provider
// has not seen a message yet.
type SMS struct {
	Code     string
	Text     string
	Sender   string
	Received bool
}
