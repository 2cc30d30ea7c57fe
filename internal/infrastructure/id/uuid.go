// Package id issues identifiers for new aggregates.
package id

import (
	"github.com/google/uuid"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
)

// UUIDGenerator issues random version 4 UUIDs.
type UUIDGenerator struct{}

var _ application.IDGenerator = UUIDGenerator{}

func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

func (UUIDGenerator) NewID() string { return uuid.NewString() }
