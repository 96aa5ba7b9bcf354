package domain

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence(t *testing.T) {
	seq := MustSequence(1)
	now := time.Date(2025, 6, 1, 10, 30, 15, 0, time.UTC)

	t.Run("values are unique under concurrency", func(t *testing.T) {
		const workers, perWorker = 16, 200
		var (
			mu   sync.Mutex
			seen = make(map[int64]struct{}, workers*perWorker)
			wg   sync.WaitGroup
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					v := seq.Next()
					mu.Lock()
					seen[v] = struct{}{}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Len(t, seen, workers*perWorker)
	})

	t.Run("identifier formats", func(t *testing.T) {
		assert.True(t, strings.HasPrefix(seq.ApplicationNumber(now), "APP-2025-"))
		assert.True(t, strings.HasPrefix(seq.TransactionID(), "TXN-"))
		assert.Regexp(t, `^RCPT-[0-9A-Z]+-2025-X1$`, seq.ReceiptNumber("APP-2025-X1"))
	})

	t.Run("receipt numbers fit the gateway receipt field", func(t *testing.T) {
		app := seq.ApplicationNumber(now)
		got := seq.ReceiptNumber(app)
		assert.LessOrEqual(t, len(got), MaxReceiptLength)
		assert.True(t, strings.HasSuffix(got, strings.TrimPrefix(app, "APP-")), got)

		long := seq.ReceiptNumber("APP-" + strings.Repeat("9", 40))
		assert.LessOrEqual(t, len(long), MaxReceiptLength)
		assert.Regexp(t, `^RCPT-[0-9A-Z]+$`, long)
	})

	t.Run("node out of range", func(t *testing.T) {
		_, err := NewSequence(5000)
		require.Error(t, err)
	})
}
