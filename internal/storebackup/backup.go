// Package storebackup implements the optional post-session Store backup
// sidecar: it archives the SQLite file and uploads it to an S3-compatible
// bucket (Cloudflare R2 in the teacher's deployment), adapted from the
// teacher's internal/reliability.R2BackupService (tar.gz archive with a
// checksum-bearing metadata file) and the S3-client construction pattern
// of the pack's Andrew50-peripheral marketdata ingestion service (static
// credentials plus a custom endpoint resolver for an R2-style bucket).
package storebackup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Config names the destination bucket and the R2-compatible endpoint.
type Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// Metadata describes one uploaded snapshot, mirroring the teacher's
// BackupMetadata shape.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Database  string    `json:"database"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
}

// Service uploads tar.gz snapshots of the store's SQLite file.
type Service struct {
	cfg      Config
	client   *s3.Client
	uploader *manager.Uploader
	log      zerolog.Logger
}

// New builds a Service backed by an S3 client pointed at cfg.Endpoint.
func New(cfg Config, log zerolog.Logger) (*Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: region, HostnameImmutable: true}, nil
			}),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("storebackup: load aws config: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.HTTPClient = httpClient
	})

	return &Service{
		cfg:      cfg,
		client:   client,
		uploader: manager.NewUploader(client),
		log:      log.With().Str("component", "storebackup").Logger(),
	}, nil
}

// Upload archives dbPath into a tar.gz (with a checksum metadata entry)
// and uploads it under a session-stamped key. Called by the CLI after a
// refresh session completes; a failure here is logged, never fatal, since
// backups are a convenience, not part of the engine's correctness surface.
func (s *Service) Upload(ctx context.Context, sessionID, dbPath string) error {
	info, err := os.Stat(dbPath)
	if err != nil {
		return fmt.Errorf("storebackup: stat %s: %w", dbPath, err)
	}

	checksum, err := checksumFile(dbPath)
	if err != nil {
		return fmt.Errorf("storebackup: checksum %s: %w", dbPath, err)
	}

	meta := Metadata{
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
		Database:  filepath.Base(dbPath),
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}

	staging, err := os.CreateTemp("", "equityrefresh-backup-*.tar.gz")
	if err != nil {
		return fmt.Errorf("storebackup: create staging file: %w", err)
	}
	defer os.Remove(staging.Name())
	defer staging.Close()

	if err := writeArchive(staging, dbPath, meta); err != nil {
		return fmt.Errorf("storebackup: write archive: %w", err)
	}
	if _, err := staging.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("storebackup: rewind archive: %w", err)
	}

	key := fmt.Sprintf("equityrefresh-backup-%s-%s.tar.gz", time.Now().UTC().Format("2006-01-02-150405"), sessionID)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   staging,
	})
	if err != nil {
		return fmt.Errorf("storebackup: upload %s: %w", key, err)
	}

	s.log.Info().Str("key", key).Int64("size_bytes", info.Size()).Msg("uploaded store backup")
	return nil
}

func writeArchive(w io.Writer, dbPath string, meta Metadata) error {
	gz := gzip.NewWriter(w)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := tw.WriteHeader(&tar.Header{
		Name: "backup-metadata.json",
		Mode: 0o644,
		Size: int64(len(metaBytes)),
	}); err != nil {
		return err
	}
	if _, err := tw.Write(metaBytes); err != nil {
		return err
	}

	dbFile, err := os.Open(dbPath)
	if err != nil {
		return err
	}
	defer dbFile.Close()
	info, err := dbFile.Stat()
	if err != nil {
		return err
	}
	if err := tw.WriteHeader(&tar.Header{
		Name: filepath.Base(dbPath),
		Mode: 0o644,
		Size: info.Size(),
	}); err != nil {
		return err
	}
	_, err = io.Copy(tw, dbFile)
	return err
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
