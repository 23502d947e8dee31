// Package acceptance runs the Gherkin scenarios under features/ against the
// record API served over HTTP from an embedded bolt store.
package acceptance
