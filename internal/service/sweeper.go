package service

import (
	"context"
	"time"

	"github.com/pickupper/backend/internal/logutil"
)

// RunTokenSweeper deletes dead tokens every period until ctx is done.
func RunTokenSweeper(ctx context.Context, svc *AuthService, period time.Duration) {
	if period <= 0 {
		return
	}
	log := logutil.GetOrDefault(ctx).With().Str("worker", "token-sweeper").Logger()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PruneExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("pruning expired tokens failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("pruned expired tokens")
			}
		}
	}
}
