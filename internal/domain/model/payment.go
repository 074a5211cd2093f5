package model

// PaymentRequestParams describes the payment request a new job needs.
type PaymentRequestParams struct {
	AgentIdentifier         string
	IdentifierFromPurchaser string
	InputData               InputData
	InputHash               string
	Amounts                 []Amount
}

// Amount is one priced unit of a payment request.
type Amount struct {
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
}

// PaymentRequest is the gateway's answer to a payment request. Timing fields are
// opaque provider values and are returned to callers verbatim.
type PaymentRequest struct {
	BlockchainIdentifier      string   `json:"blockchainIdentifier"`
	SubmitResultTime          string   `json:"submitResultTime"`
	UnlockTime                string   `json:"unlockTime"`
	ExternalDisputeUnlockTime string   `json:"externalDisputeUnlockTime"`
	PayByTime                 string   `json:"payByTime,omitempty"`
	AgentIdentifier           string   `json:"agentIdentifier"`
	SellerVkey                string   `json:"sellerVkey"`
	IdentifierFromPurchaser   string   `json:"identifierFromPurchaser"`
	Amounts                   []Amount `json:"amounts"`
	InputHash                 string   `json:"input_hash"`
}

// StartJobResponse is returned when a job was created and is waiting for payment.
type StartJobResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
	PaymentRequest
}
