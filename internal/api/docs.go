package api

import (
	_ "github.com/Moof29/batchly/docs"
)

// ErrorResponse represents an API error
// @Description Error response from the API
// @swagger:model ErrorResponse
type ErrorResponse struct {
	// Error message
	// @example sync is disabled for entity type invoice
	Error string `json:"error" example:"Failed to process request"`
}
