package gateway

import "time"

const (
	// windowMs is the fixed window both token buckets reset on: global
	// {120, 60_000} and presence {5, 60_000}.
	windowMs = 60 * time.Second

	// guildSyncBudget and memberFetchBudget are the per-queue byte budgets;
	// a flush always fits in a single 4 KiB frame with conservative
	// per-element overhead already subtracted.
	guildSyncBudget   = 4081
	memberFetchBudget = 4048

	// maxFramePayloadBytes is the hard single-frame size the two budgets
	// above keep a flush under; the batcher itself checks only those
	// budgets, not this constant.
	maxFramePayloadBytes = 4096

	defaultReconnectIntervalMs = 1000
	maxReconnectIntervalMs     = 30000

	defaultGuildCreateTimeout = 2000 * time.Millisecond
)
