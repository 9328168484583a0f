package idempotency

import (
	"strings"
	"time"
)

// Kinds of idempotency record. Each kind namespaces its keys so one table
// can guard several resources.
const (
	KindOrder   = "order"
	KindIntent  = "intent"
	KindPayment = "payment"
)

// Record is the shape persisted in the idempotency DynamoDB table. It maps a
// caller key to the resource that was created for it.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Kind           string    `dynamodbav:"kind"`
	ResourceID     string    `dynamodbav:"resource_id"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at,omitempty"` // TTL epoch seconds; 0 keeps the record
}

// Key builds the table key for a kind and its scope parts.
func Key(kind string, parts ...string) string {
	return kind + "#" + strings.Join(parts, "#")
}

// Expired reports whether the record's TTL has passed. DynamoDB deletes
// expired items lazily, so readers must check.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt > 0 && r.ExpiresAt <= now.Unix()
}
