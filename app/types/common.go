package types

type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
