package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultRetention keeps expired rows around for a day before purging so
// replay attempts can still be diagnosed.
const DefaultRetention = 24 * time.Hour

// Purger deletes expired credentials.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (tokens, otps int64, err error)
}

// Purge removes refresh tokens and OTP codes that expired before cutoff, plus
// consumed OTP codes.
func (p *Postgres) Purge(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	tokens, err := p.refresh.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	otps, err := p.otps.DeleteStale(ctx, cutoff)
	if err != nil {
		return tokens, 0, err
	}
	return tokens, otps, nil
}

// RunJanitor purges on every tick until ctx is done. Failures are logged and
// retried on the next tick.
func RunJanitor(ctx context.Context, p Purger, interval, retention time.Duration, logger *zap.SugaredLogger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			tokens, otps, err := p.Purge(ctx, now.Add(-retention))
			if err != nil {
				logger.Warnw("purge expired credentials failed", "err", err)
				continue
			}
			if tokens > 0 || otps > 0 {
				logger.Infow("purged expired credentials", "refresh_tokens", tokens, "otp_codes", otps)
			}
		}
	}
}
