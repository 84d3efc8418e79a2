package services

import (
	"context"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/rs/zerolog/log"
)

// Purger periodically deletes expired authorization codes and tokens.
// Expiry is always checked at use time; purging only keeps the stores small.
type Purger struct {
	codes    domain.AuthCodeRepository
	tokens   domain.TokenRepository
	interval time.Duration
	// retention is how long expired access token records are kept. Refresh
	// tokens link to them, so it must cover the longest refresh lifetime.
	retention time.Duration
	now       func() time.Time
}

func NewPurger(octx domain.OAuthContext, codes domain.AuthCodeRepository, tokens domain.TokenRepository, interval time.Duration) *Purger {
	return &Purger{
		codes:     codes,
		tokens:    tokens,
		interval:  interval,
		retention: octx.RefreshTokenLifetimes.Max(),
		now:       time.Now,
	}
}

// Run purges on every tick until ctx is done.
func (p *Purger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PurgeOnce(ctx)
		}
	}
}

// PurgeOnce deletes what has expired so far.
func (p *Purger) PurgeOnce(ctx context.Context) {
	now := p.now().UTC()

	codes, err := p.codes.DeleteExpiredAuthCodes(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to purge authorization codes")
	}

	tokens, err := p.tokens.DeleteExpiredTokens(ctx, now.Add(-p.retention), now)
	if err != nil {
		log.Error().Err(err).Msg("failed to purge tokens")
	}

	if codes > 0 || tokens > 0 {
		log.Info().Int64("auth_codes", codes).Int64("tokens", tokens).Msg("purged expired records")
	}
}
