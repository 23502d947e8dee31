package recordstore

import (
	"errors"
	"math"
)

// IDField is the uniquely indexed document field.
const IDField = "ID"

// DataField holds the record value.
const DataField = "data"

// Record is the persisted unit, keyed by a unique string ID.
type Record struct {
	ID   string  `bson:"ID" json:"ID"`
	Data float64 `bson:"data" json:"data"`
}

// DeleteSummary is what the store reports for a bulk delete.
type DeleteSummary struct {
	DeletedCount int64 `json:"deletedCount"`
}

var (
	errEmptyID   = errors.New("ID must be a non-empty string")
	errBadData   = errors.New("data must be a finite number")
	errEmptyURI  = errors.New("uri must be a non-empty string")
	errEmptyColl = errors.New("collection name must not be empty")
)

func validateID(id string) error {
	if id == "" {
		return errEmptyID
	}
	return nil
}

func validateData(data float64) error {
	if math.IsNaN(data) || math.IsInf(data, 0) {
		return errBadData
	}
	return nil
}
