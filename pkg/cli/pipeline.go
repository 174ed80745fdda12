package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/contact-reconciler/pkg/config"
	"github.com/ekaya-inc/contact-reconciler/pkg/database"
	"github.com/ekaya-inc/contact-reconciler/pkg/models"
	"github.com/ekaya-inc/contact-reconciler/pkg/repositories"
	"github.com/ekaya-inc/contact-reconciler/pkg/services"
)

// pipelineEnv bundles the wired pipeline for one command invocation.
type pipelineEnv struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB

	entityRepo    repositories.EntityRepository
	mappingRepo   repositories.IdentifierMappingRepository
	candidateRepo repositories.CandidateRepository
	mergeRepo     repositories.MergeRecordRepository
	auditRepo     repositories.AuditRepository

	profile *models.SurvivorshipProfile

	loader services.CoreLoader
	scorer services.FuzzyScorer
	merger services.MergeService
}

// openPipeline loads configuration, connects to the database, and wires
// repositories and services. Callers must Close the returned env.
func openPipeline(ctx context.Context, opts *RootOptions) (*pipelineEnv, error) {
	cfg, err := config.Load(opts.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	profile, err := loadProfile(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	metrics, err := services.NewMetrics()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	entityRepo := repositories.NewEntityRepository()
	mappingRepo := repositories.NewIdentifierMappingRepository()
	candidateRepo := repositories.NewCandidateRepository()
	mergeRepo := repositories.NewMergeRecordRepository()
	auditRepo := repositories.NewAuditRepository()

	resolver := services.NewIdentityResolver(mappingRepo, entityRepo, logger)
	matcher := services.NewDeterministicMatcher(entityRepo, logger)

	env := &pipelineEnv{
		cfg:           cfg,
		logger:        logger,
		db:            db,
		entityRepo:    entityRepo,
		mappingRepo:   mappingRepo,
		candidateRepo: candidateRepo,
		mergeRepo:     mergeRepo,
		auditRepo:     auditRepo,
		profile:       profile,
		loader: services.NewCoreLoader(resolver, matcher, entityRepo, mappingRepo,
			candidateRepo, auditRepo, profile, metrics, &cfg.Reconciler, logger),
		scorer: services.NewFuzzyScorer(matcher, entityRepo, candidateRepo,
			mappingRepo, metrics, &cfg.Reconciler, logger),
		merger: services.NewMergeService(candidateRepo, entityRepo, mappingRepo,
			mergeRepo, auditRepo, profile, metrics, logger),
	}
	return env, nil
}

// withScope acquires a pooled connection and runs fn with a database scope
// attached to the context.
func (e *pipelineEnv) withScope(ctx context.Context, fn func(ctx context.Context) error) error {
	scopedCtx, cleanup, err := e.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(scopedCtx)
}

func (e *pipelineEnv) Close() {
	e.db.Close()
	_ = e.logger.Sync()
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadProfile(cfg *config.Config) (*models.SurvivorshipProfile, error) {
	if cfg.Reconciler.SurvivorshipProfilePath == "" {
		return services.DefaultSurvivorshipProfile(), nil
	}
	profile, err := services.LoadSurvivorshipProfile(cfg.Reconciler.SurvivorshipProfilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load survivorship profile: %w", err)
	}
	return profile, nil
}
