package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PurgeExpired physically deletes refresh tokens that expired more than
// retention ago. Revoked and rotated rows are kept until then so that reuse
// of a stolen token is still detected.
func (s *SessionService) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-retention)

	n, err := s.tokens.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge expired refresh tokens: %w", err)
	}
	if n > 0 {
		expiredTokensPurgedTotal.Add(float64(n))
		s.logger.InfoContext(ctx, "expired refresh tokens purged",
			slog.Int64("deleted", n),
			slog.Time("cutoff", cutoff),
		)
	}
	return n, nil
}
