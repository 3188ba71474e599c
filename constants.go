package i10target

import "github.com/i10-io/i10-target/internal/constants"

// Re-exported budgets and defaults, for callers that want to reason about
// them without reaching into internal/constants.
const (
	RecvBudget             = constants.RecvBudget
	SendBudget             = constants.SendBudget
	IOWorkBudget           = constants.IOWorkBudget
	CaravanLargeCapacity   = constants.CaravanLargeCapacity
	CaravanSmallCapacity   = constants.CaravanSmallCapacity
	DefaultInlineDataSize  = constants.DefaultInlineDataSize
	DefaultQueueDepth      = constants.DefaultQueueDepth
)
