package biz

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/afero/gcsfs"
	"github.com/zhenzou/executors"
	"go.uber.org/fx"
	"golang.org/x/oauth2/google"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscredentials "github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3fs "github.com/looplj/afero-s3"
	googleoption "google.golang.org/api/option"

	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/store"
)

// ArchiveConfig selects the export target. An empty type disables
// archiving. CRON, when set, schedules automatic exports of every
// active tenant.
type ArchiveConfig struct {
	Type      string            `conf:"type"      yaml:"type"      json:"type"`
	Directory string            `conf:"directory" yaml:"directory" json:"directory"`
	CRON      string            `conf:"cron"      yaml:"cron"      json:"cron"`
	S3        *S3ArchiveConfig  `conf:"s3"        yaml:"s3"        json:"s3"`
	GCS       *GCSArchiveConfig `conf:"gcs"       yaml:"gcs"       json:"gcs"`
}

type S3ArchiveConfig struct {
	Region     string `conf:"region"      yaml:"region"      json:"region"`
	BucketName string `conf:"bucket_name" yaml:"bucket_name" json:"bucket_name"`
	AccessKey  string `conf:"access_key"  yaml:"access_key"  json:"access_key"`
	SecretKey  string `conf:"secret_key"  yaml:"secret_key"  json:"secret_key"`
	Endpoint   string `conf:"endpoint"    yaml:"endpoint"    json:"endpoint"`
}

type GCSArchiveConfig struct {
	BucketName string `conf:"bucket_name" yaml:"bucket_name" json:"bucket_name"`
	Credential string `conf:"credential"  yaml:"credential"  json:"credential"`
}

type ArchiveServiceParams struct {
	fx.In

	Store    *store.Client
	Config   ArchiveConfig
	Executor executors.ScheduledExecutor `optional:"true"`
}

func NewArchiveService(params ArchiveServiceParams) (*ArchiveService, error) {
	svc := &ArchiveService{
		AbstractService: &AbstractService{db: params.Store},
		config:          params.Config,
	}

	if params.Config.Type != "" {
		fs, err := svc.buildFileSystem(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to build archive filesystem: %w", err)
		}

		svc.fs = fs
	}

	if params.Config.Type != "" && params.Config.CRON != "" && params.Executor != nil {
		if _, err := params.Executor.ScheduleFuncAtCronRate(
			svc.exportAllPeriodic,
			executors.CRONRule{Expr: params.Config.CRON},
		); err != nil {
			log.Error(context.Background(), "failed to schedule periodic archive export", log.Cause(err))
		}
	}

	return svc, nil
}

// exportAllPeriodic archives every active tenant's sealed rows on the
// configured schedule. Per-tenant failures are logged and skipped.
func (s *ArchiveService) exportAllPeriodic(ctx context.Context) {
	tenants, err := s.storeFromContext(ctx).Tenants.ListActive(ctx)
	if err != nil {
		log.Error(ctx, "failed to list tenants for archive export", log.Cause(err))
		return
	}

	for _, tenant := range tenants {
		if _, err := s.Export(ctx, tenant.ID); err != nil {
			log.Error(ctx, "periodic archive export failed", log.Int("tenant_id", tenant.ID), log.Cause(err))
		}
	}
}

// ArchiveService exports a tenant's rows as sealed bundles. The export
// carries ciphertext untouched: no carrier exists anywhere in this
// service, and an archive holder can read structure but no content.
type ArchiveService struct {
	*AbstractService

	config ArchiveConfig
	fs     afero.Fs
}

// archiveRecord is one JSON line of an export bundle.
type archiveRecord struct {
	Entity    string `json:"entity"`
	ID        int    `json:"id"`
	TopicID   int    `json:"topic_id,omitempty"`
	UserID    string `json:"user_id"`
	Payload   string `json:"payload"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Export writes every live topic and anchor of the tenant to the archive
// target as JSON lines with base64 ciphertext payloads.
func (s *ArchiveService) Export(ctx context.Context, tenantID int) (*objects.ArchiveResult, error) {
	if s.fs == nil {
		return nil, fmt.Errorf("archive target is not configured")
	}

	name := fmt.Sprintf("memvault-tenant-%d-%s.jsonl", tenantID, time.Now().UTC().Format("20060102T150405Z"))

	file, err := s.fs.Create(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive %s: %w", name, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	result := &objects.ArchiveResult{Name: name}

	topics, err := s.storeFromContext(ctx).Topics.ListLive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	for _, row := range topics {
		record := archiveRecord{
			Entity:    "topic",
			ID:        row.ID,
			UserID:    row.UserID,
			Payload:   base64.StdEncoding.EncodeToString(row.Payload),
			CreatedAt: row.CreatedAt.Unix(),
			UpdatedAt: row.UpdatedAt.Unix(),
		}

		if err := enc.Encode(record); err != nil {
			return nil, fmt.Errorf("failed to write archive record: %w", err)
		}

		result.Topics++
	}

	anchors, err := s.storeFromContext(ctx).Anchors.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	for _, row := range anchors {
		record := archiveRecord{
			Entity:    "anchor",
			ID:        row.ID,
			TopicID:   row.TopicID,
			UserID:    row.UserID,
			Payload:   base64.StdEncoding.EncodeToString(row.Payload),
			CreatedAt: row.CreatedAt.Unix(),
			UpdatedAt: row.UpdatedAt.Unix(),
		}

		if err := enc.Encode(record); err != nil {
			return nil, fmt.Errorf("failed to write archive record: %w", err)
		}

		result.Anchors++
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush archive: %w", err)
	}

	log.Info(ctx, "tenant archived",
		log.Int("tenant_id", tenantID),
		log.String("archive", name),
		log.Int("topics", result.Topics),
		log.Int("anchors", result.Anchors),
	)

	return result, nil
}

func (s *ArchiveService) buildFileSystem(ctx context.Context) (afero.Fs, error) {
	switch s.config.Type {
	case "fs":
		if s.config.Directory == "" {
			return nil, fmt.Errorf("directory not configured for fs archive")
		}

		return afero.NewBasePathFs(afero.NewOsFs(), s.config.Directory), nil
	case "s3":
		if s.config.S3 == nil {
			return nil, fmt.Errorf("s3 settings not configured")
		}

		return s.createS3Fs(ctx, s.config.S3)
	case "gcs":
		if s.config.GCS == nil {
			return nil, fmt.Errorf("gcs settings not configured")
		}

		return s.createGcsFs(ctx, s.config.GCS)
	default:
		return nil, fmt.Errorf("unsupported archive type: %s", s.config.Type)
	}
}

// createS3Fs creates an S3 filesystem using the afero-s3 adapter.
func (s *ArchiveService) createS3Fs(ctx context.Context, cfg *S3ArchiveConfig) (afero.Fs, error) {
	credProvider := awscredentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credProvider),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = lo.ToPtr(cfg.Endpoint)
		}
	})

	return s3fs.NewFsFromClient(cfg.BucketName, client), nil
}

// createGcsFs creates a GCS filesystem using the afero gcsfs adapter.
func (s *ArchiveService) createGcsFs(ctx context.Context, cfg *GCSArchiveConfig) (afero.Fs, error) {
	creds, err := google.CredentialsFromJSON(ctx, []byte(cfg.Credential), storage.ScopeFullControl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GCP credentials: %w", err)
	}

	client, err := storage.NewClient(ctx, googleoption.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	fs, err := gcsfs.NewGcsFSFromClient(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS filesystem: %w", err)
	}

	return afero.NewBasePathFs(fs, cfg.BucketName), nil
}
