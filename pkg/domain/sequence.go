package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Sequence hands out time-ordered, process-unique numbers used inside
// human-facing identifiers (application numbers, transaction ids, receipts).
// Uniqueness across processes requires a distinct node per process.
type Sequence struct {
	node *snowflake.Node
}

// NewSequence creates a sequence for the given node (0-1023).
func NewSequence(node int64) (*Sequence, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node %d: %w", node, err)
	}
	return &Sequence{node: n}, nil
}

// MustSequence is NewSequence for wiring code and tests.
func MustSequence(node int64) *Sequence {
	s, err := NewSequence(node)
	if err != nil {
		panic(err)
	}
	return s
}

// Next returns the next value.
func (s *Sequence) Next() int64 {
	return s.node.Generate().Int64()
}

// ApplicationNumber formats APP-<year>-<base36 sequence>.
func (s *Sequence) ApplicationNumber(now time.Time) string {
	return fmt.Sprintf("APP-%d-%s", now.Year(), strings.ToUpper(strconv.FormatInt(s.Next(), 36)))
}

// TransactionID formats TXN-<sequence>.
func (s *Sequence) TransactionID() string {
	return "TXN-" + strconv.FormatInt(s.Next(), 10)
}

// MaxReceiptLength is the gateway's limit on an order's receipt field.
const MaxReceiptLength = 40

// ReceiptNumber formats RCPT-<base36 sequence>-<application number without
// its APP- prefix>. The sequence carries the timestamp. The application part
// is dropped when the result would exceed MaxReceiptLength.
func (s *Sequence) ReceiptNumber(applicationNumber string) string {
	base := "RCPT-" + strings.ToUpper(strconv.FormatInt(s.Next(), 36))
	full := base + "-" + strings.TrimPrefix(applicationNumber, "APP-")
	if applicationNumber == "" || len(full) > MaxReceiptLength {
		return base
	}
	return full
}
