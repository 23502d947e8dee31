package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"recordstore/recordstore"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// SuccessResponse represents a successful API response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Store     string    `json:"store,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// StatsResponse describes the record set behind the API.
type StatsResponse struct {
	Records     int64     `json:"records"`
	Backend     string    `json:"backend"`
	URI         string    `json:"uri"`
	Collection  string    `json:"collection"`
	SchemaName  string    `json:"schemaName"`
	ConnectedAt time.Time `json:"connectedAt"`
}

var (
	errMissingID   = errors.New(`"ID" is required`)
	errMissingData = errors.New(`"data" is required`)
	errIDMismatch  = errors.New(`"ID" in body does not match the path`)
)

// recordPayload is a decoded request body. Bodies are decoded loosely first
// so a non-string ID is reported instead of coerced.
type recordPayload struct {
	id    string
	hasID bool
	data  float64
}

func parseRecordPayload(body []byte) (recordPayload, error) {
	var raw map[string]interface{}
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return recordPayload{}, fmt.Errorf("malformed JSON: %w", err)
	}
	if raw == nil {
		return recordPayload{}, errMissingData
	}

	var p recordPayload
	if v, ok := raw[recordstore.IDField]; ok {
		id, isString := v.(string)
		if !isString {
			return recordPayload{}, fmt.Errorf(`"ID" must be a string, got %T`, v)
		}
		p.id, p.hasID = id, true
	}

	v, ok := raw[recordstore.DataField]
	if !ok {
		return recordPayload{}, errMissingData
	}
	data, isNumber := v.(float64)
	if !isNumber {
		return recordPayload{}, fmt.Errorf(`"data" must be a number, got %T`, v)
	}
	p.data = data
	return p, nil
}
