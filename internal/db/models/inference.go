package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type InferenceStatus string

const (
	InferenceStatusCompleted   InferenceStatus = "COMPLETED"
	InferenceStatusFailed      InferenceStatus = "FAILED"
	InferenceStatusUnavailable InferenceStatus = "UNAVAILABLE"
)

// Inference records one summarization request. Captions are stored by hash only.
type Inference struct {
	bun.BaseModel `bun:"table:inferences"`

	ID             uuid.UUID       `bun:",pk,type:uuid"`
	Transport      string          `bun:",notnull"`
	Status         InferenceStatus `bun:",notnull"`
	ModelLocator   string          `bun:",nullzero"`
	Fingerprint    string          `bun:",nullzero"`
	Device         string          `bun:",nullzero"`
	InputHash      string          `bun:",notnull"`
	InputTokens    int             `bun:",notnull,default:0"`
	InputTruncated bool            `bun:",notnull,default:false"`
	OutputTokens   int             `bun:",notnull,default:0"`
	Summary        string          `bun:",nullzero"`
	Error          string          `bun:",nullzero"`
	LatencyMs      int64           `bun:",notnull,default:0"`
	CreatedAt      time.Time       `bun:",nullzero,notnull,default:current_timestamp"`
}
