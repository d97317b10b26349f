package oc

import "errors"

// Key prefixes. Every stored key starts with one of these followed by ':'.
const (
	SlotPrefix     = "WRITEP"
	LedgerPrefix   = "LEDGER"
	OffchainPrefix = "OFFCHAIN"
)

// Article status values.
const (
	StatusNormal  = 0
	StatusFrozen  = 1
	StatusDeleted = 2
)

// Article space types.
const (
	SpaceForum = 0
	SpaceBlog  = 1
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrUnknownMethod    = errors.New("unknown_method")
	ErrCounterIncrement = errors.New("counter_increment")
	ErrSlotMissing      = errors.New("slot_missing")
	ErrStopped          = errors.New("db_stopped")
	ErrCursorMoved      = errors.New("cursor_moved")
	ErrArticleUnknown   = errors.New("article_unknown")
	ErrInvalidArticle   = errors.New("invalid_article")
)
