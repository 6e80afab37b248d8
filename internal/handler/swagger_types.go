package handler

// Swagger type definitions for API documentation.
// These types are used by swag to generate OpenAPI documentation.

// TokenRequest represents the operator token request body.
type TokenRequest struct {
	OperatorKey string `json:"operator_key" binding:"required" example:"0d4f6c1e9a7b4e2f8c3d5a6b7e8f9a0b"`
	Operator    string `json:"operator" example:"oncall"`
}

// RunQueuedResponse is returned when a run was queued.
type RunQueuedResponse struct {
	Queued bool `json:"queued" example:"true"`
}
