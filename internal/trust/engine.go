package trust

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/barterloop/barterloop/internal/domain"
)

// Config holds the tunable parameters of the risk engine.
type Config struct {
	// CacheTTL bounds how long a cached trust score may serve read-path
	// previews before being recomputed.
	CacheTTL time.Duration
}

// Engine computes trust scores and risk assessments. Lifecycle transitions
// always read authoritative stats from the user store; the cache only
// accelerates read-path score previews and is repopulated on every
// assessment.
type Engine struct {
	users  domain.UserStore
	cache  domain.TrustCache
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates an Engine. The cache may be nil, in which case every
// score is computed from the store.
func NewEngine(users domain.UserStore, cache domain.TrustCache, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		users:  users,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "trust")),
	}
}

// TrustScore returns the trust score for a single user, serving from the
// cache when a fresh entry exists. Used by preview endpoints; transitions go
// through AnalyzeRisk instead.
func (e *Engine) TrustScore(ctx context.Context, userID uuid.UUID) (int, error) {
	if e.cache != nil {
		score, ts, err := e.cache.GetScore(ctx, userID)
		if err == nil && time.Since(ts) < e.cfg.CacheTTL {
			return score, nil
		}
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("trust: load user %s: %w", userID, err)
	}

	score := Score(user.Stats)
	e.cacheScore(ctx, userID, score)
	return score, nil
}

// AnalyzeRisk computes the risk assessment for a prospective pairing. Both
// users' stats are loaded concurrently from the store; the output is a pure
// function of the two trust scores at call time. The result is snapshotted
// onto the trade at acceptance and never recomputed for an in-flight trade.
func (e *Engine) AnalyzeRisk(ctx context.Context, fromID, toID uuid.UUID) (*domain.RiskAssessment, error) {
	var fromUser, toUser *domain.User

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := e.users.GetByID(gctx, fromID)
		if err != nil {
			return fmt.Errorf("trust: load user %s: %w", fromID, err)
		}
		fromUser = u
		return nil
	})
	g.Go(func() error {
		u, err := e.users.GetByID(gctx, toID)
		if err != nil {
			return fmt.Errorf("trust: load user %s: %w", toID, err)
		}
		toUser = u
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scoreFrom := Score(fromUser.Stats)
	scoreTo := Score(toUser.Stats)
	e.cacheScore(ctx, fromID, scoreFrom)
	e.cacheScore(ctx, toID, scoreTo)

	lowest := scoreFrom
	if scoreTo < lowest {
		lowest = scoreTo
	}

	newAccount := fromUser.Stats.Total == 0 || toUser.Stats.Total == 0
	level := LevelFor(lowest, newAccount)

	assessment := &domain.RiskAssessment{
		ScoreFrom:   scoreFrom,
		ScoreTo:     scoreTo,
		LowestScore: lowest,
		Security:    Constraints(level),
	}

	e.logger.DebugContext(ctx, "risk analyzed",
		slog.String("from_user", fromID.String()),
		slog.String("to_user", toID.String()),
		slog.Int("lowest_score", lowest),
		slog.String("risk_level", string(level)),
	)
	return assessment, nil
}

// Invalidate drops cached scores for the given users. Called after commits
// that change trade stats; failures only delay recomputation, so they are
// logged and swallowed.
func (e *Engine) Invalidate(ctx context.Context, userIDs ...uuid.UUID) {
	if e.cache == nil {
		return
	}
	for _, id := range userIDs {
		if err := e.cache.Invalidate(ctx, id); err != nil {
			e.logger.WarnContext(ctx, "trust cache invalidation failed",
				slog.String("user_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e *Engine) cacheScore(ctx context.Context, userID uuid.UUID, score int) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetScore(ctx, userID, score, time.Now().UTC()); err != nil {
		e.logger.WarnContext(ctx, "trust cache write failed",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
	}
}
