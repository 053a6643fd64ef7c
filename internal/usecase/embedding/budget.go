package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lorehound/lorehound/internal/domain"
)

// BudgetAction defines behavior when the token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// BudgetStore is the persistence interface for budget counters.
// Implementations must be idempotent (IncrBy can be called repeatedly).
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// BudgetTracker is an in-memory daily token budget with optional
// persistence. The hot path (Check) never leaves memory; Record updates
// the counter first, then write-behind to the store.
type BudgetTracker struct {
	mu           sync.Mutex
	dailyUsed    int64
	dailyLimit   int64
	action       BudgetAction
	lastDayReset time.Time
	store        BudgetStore
	logger       *zap.Logger
}

// NewBudgetTracker creates a budget tracker. dailyLimit 0 means unlimited.
func NewBudgetTracker(dailyLimit int64, action BudgetAction, logger *zap.Logger) *BudgetTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BudgetTracker{
		dailyLimit:   dailyLimit,
		action:       action,
		logger:       logger,
		lastDayReset: truncateToDay(time.Now().UTC()),
	}
}

// WithStore attaches counter persistence and loads today's usage, so the
// budget survives restarts.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	used, err := store.Get(ctx, dayKey(b.lastDayReset))
	if err != nil {
		b.logger.Warn("Failed to load persisted budget counter", zap.Error(err))
		return b
	}
	b.dailyUsed = used
	b.logger.Info("Budget loaded from store", zap.Int64("daily_used", used))
	return b
}

// Check verifies the budget allows a new request. In-memory only (hot path).
// Under action=warn an exhausted budget only logs; under reject it returns
// ErrEmbeddingQuotaExceeded.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()

	if b.dailyLimit <= 0 || b.dailyUsed < b.dailyLimit {
		return nil
	}

	if b.action == BudgetActionReject {
		return fmt.Errorf("daily token budget %d exhausted: %w", b.dailyLimit, domain.ErrEmbeddingQuotaExceeded)
	}
	b.logger.Warn("Token budget exceeded",
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("daily_limit", b.dailyLimit),
	)
	return nil
}

// Record registers consumed tokens after a request. Updates the in-memory
// counter, then write-behind to the store (if attached).
func (b *BudgetTracker) Record(tokens int64) {
	if tokens <= 0 {
		return
	}

	b.mu.Lock()
	b.resetIfNeeded()
	b.dailyUsed += tokens
	key := dayKey(b.lastDayReset)
	store := b.store
	b.mu.Unlock()

	if store == nil {
		return
	}

	// Fire-and-forget INCRBY; uses a background context so store writes
	// don't block the caller.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.IncrBy(ctx, key, tokens); err != nil {
		b.logger.Warn("Failed to persist budget counter", zap.String("key", key), zap.Error(err))
	}
}

// RemainingDaily returns tokens left in the daily budget (-1 if unlimited).
func (b *BudgetTracker) RemainingDaily() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()

	if b.dailyLimit <= 0 {
		return -1 // unlimited
	}
	remaining := b.dailyLimit - b.dailyUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DailyLimit returns the daily token cap.
func (b *BudgetTracker) DailyLimit() int64 { return b.dailyLimit }

// resetIfNeeded zeroes the counter when the UTC day rolls over. Callers hold mu.
func (b *BudgetTracker) resetIfNeeded() {
	day := truncateToDay(time.Now().UTC())
	if day.After(b.lastDayReset) {
		b.dailyUsed = 0
		b.lastDayReset = day
	}
}

func dayKey(day time.Time) string {
	return "budget:daily:" + day.Format("2006-01-02")
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
