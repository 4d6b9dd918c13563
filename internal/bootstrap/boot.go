// Package bootstrap builds the fully wired service from configuration.
//
// Both binaries need the same composition: AWS clients, the dedup/audit
// store, the token provider, the locator chain, the platform publishers,
// and the orchestrator on top. This package extracts that composition so
// each main() is a short sequence of helpers.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/config"
	"github.com/storeberg/crosspost/internal/dedup"
	"github.com/storeberg/crosspost/internal/facebook"
	"github.com/storeberg/crosspost/internal/identity"
	"github.com/storeberg/crosspost/internal/instagram"
	"github.com/storeberg/crosspost/internal/locator"
	"github.com/storeberg/crosspost/internal/logging"
	"github.com/storeberg/crosspost/internal/media"
	"github.com/storeberg/crosspost/internal/orchestrator"
	"github.com/storeberg/crosspost/internal/publish"
	"github.com/storeberg/crosspost/internal/route"
	"github.com/storeberg/crosspost/internal/store"
)

// AWSClients holds the AWS SDK clients the service composes over.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
	S3     *s3.Client
	Dynamo *dynamodb.Client
}

// InitAWS loads the default AWS config and builds the shared clients.
func InitAWS(ctx context.Context) (AWSClients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return AWSClients{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
		S3:     s3.NewFromConfig(cfg),
		Dynamo: dynamodb.NewFromConfig(cfg),
	}, nil
}

// Build assembles the orchestrator from configuration. Components that
// are not configured degrade explicitly: no DynamoDB table means an
// in-process dedup store and no audit trail, no mirror bucket means the
// S3 locator strategy is skipped.
func Build(ctx context.Context, cfg *config.Config, clients AWSClients) (*orchestrator.Orchestrator, error) {
	routes, err := config.LoadRoutes(cfg.RoutesFile)
	if err != nil {
		return nil, err
	}

	var (
		dedupStore dedup.Store
		audit      orchestrator.AuditWriter
	)
	if cfg.DedupTable != "" {
		ddb := store.NewDynamoStore(clients.Dynamo, cfg.DedupTable)
		dedupStore = ddb
		audit = ddb
	} else {
		log.Warn().Msg("No DynamoDB table configured — dedup is process-local and audit records are dropped")
		dedupStore = dedup.NewMemoryStore()
	}

	tokens, err := tokenProvider(cfg, clients)
	if err != nil {
		return nil, err
	}

	var local *locator.LocalStore
	if cfg.PublicBaseURL != "" {
		if err := os.MkdirAll(cfg.MediaDir, 0o755); err != nil {
			return nil, fmt.Errorf("create media dir: %w", err)
		}
		local = &locator.LocalStore{Dir: cfg.MediaDir, BaseURL: cfg.PublicBaseURL}
	}
	var mirror *locator.MirrorStore
	if cfg.MirrorBucket != "" {
		mirror = locator.NewMirrorStore(clients.S3, cfg.MirrorBucket, cfg.MirrorBaseURL)
	}

	logging.NewStartupLogger("crosspost").
		DynamoTable("dedup", cfg.DedupTable).
		S3Bucket("mirror", cfg.MirrorBucket).
		Feature("localStore", local != nil).
		Feature("mirrorStore", mirror != nil).
		Config("dedupWindow", cfg.DedupWindow.String()).
		Config("maxTargets", fmt.Sprint(cfg.MaxTargets)).
		Log()

	return &orchestrator.Orchestrator{
		Validator: &media.Validator{MinBytes: cfg.MinMediaBytes},
		Converter: &media.Converter{},
		Locator:   locator.New(local, mirror),
		Guard:     dedup.NewGuard(dedupStore, cfg.DedupWindow),
		Router:    route.NewRouter(routes, tokens),
		Publishers: map[publish.Platform]orchestrator.PlatformPublisher{
			publish.PlatformFacebook:  facebook.NewPublisher(),
			publish.PlatformInstagram: instagram.NewPublisher(),
		},
		Audit:      audit,
		MaxTargets: cfg.MaxTargets,
		RunTimeout: cfg.RunTimeout,
	}, nil
}

// tokenProvider picks the identity backend: SSM Parameter Store when a
// path prefix is configured, otherwise a static map from the environment
// (single-tenant and local setups).
func tokenProvider(cfg *config.Config, clients AWSClients) (identity.Provider, error) {
	if cfg.TokenParamPrefix != "" {
		return identity.NewSSMProvider(clients.SSM, cfg.TokenParamPrefix), nil
	}

	raw := os.Getenv("CROSSPOST_STATIC_TOKENS")
	if raw == "" {
		return nil, fmt.Errorf("%w: neither CROSSPOST_TOKEN_PARAM_PREFIX nor CROSSPOST_STATIC_TOKENS is set", publish.ErrConfiguration)
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("%w: parse CROSSPOST_STATIC_TOKENS: %v", publish.ErrConfiguration, err)
	}
	log.Warn().Int("accounts", len(m)).Msg("Using static access tokens from the environment")
	return identity.StaticProvider(m), nil
}

// CheckMediaTooling logs whether ffmpeg/ffprobe are present. Video
// submissions for targets that need transcoding fail without them; image
// publishing is unaffected.
func CheckMediaTooling() {
	start := time.Now()
	if err := media.CheckFFmpegAvailable(); err != nil {
		log.Warn().Err(err).Msg("ffmpeg not available — video transcoding disabled")
		return
	}
	log.Debug().Dur("elapsed", time.Since(start)).Msg("ffmpeg available")
}
