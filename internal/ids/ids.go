// Package ids issues the identifiers the pipeline hands to customers and
// payment providers.
package ids

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

var configure sync.Once

// NewNode returns a snowflake node whose ids fit in 53 bits (41 bits of
// milliseconds, 4 node bits, 8 sequence bits). Providers that carry the code
// as a JSON number, like PayOS orderCode, require ids below 2^53.
func NewNode(nodeID int64) (*snowflake.Node, error) {
	configure.Do(func() {
		snowflake.Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
		snowflake.NodeBits = 4
		snowflake.StepBits = 8
	})
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return node, nil
}

// Generator issues entity ids, order numbers and correlation codes.
type Generator struct {
	node *snowflake.Node
	now  func() time.Time
}

func NewGenerator(node *snowflake.Node) *Generator {
	return &Generator{node: node, now: time.Now}
}

// ID returns a random entity id.
func (g *Generator) ID() string { return uuid.NewString() }

// OrderNumber returns a human-readable, unique order number such as
// ORD-20261018-3F7K2QX9A.
func (g *Generator) OrderNumber() string {
	id := g.node.Generate()
	return fmt.Sprintf("ORD-%s-%s", g.now().UTC().Format("20060102"), strings.ToUpper(id.Base36()))
}

// CorrelationCode returns a numeric code, unique per payment intent, that
// providers echo back in their webhooks.
func (g *Generator) CorrelationCode() string {
	return g.node.Generate().String()
}
