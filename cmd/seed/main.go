// Command seed bulk-ingests a directory of documents into one user's
// knowledge base through the same pipeline as the upload endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rag-kb/internal/app"
	"rag-kb/internal/dto"
	"rag-kb/internal/service"
	"rag-kb/pkg/config"
	"rag-kb/pkg/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type seedOptions struct {
	dir       string
	userID    string
	email     string
	cacheFile string
	force     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Ingest a directory of documents into a user's knowledge base",
		Long: `Walks --dir and ingests every file for the owner given by --user-id or
--email. Files whose content hash is unchanged since the last run are
skipped unless --force is set.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.dir, "dir", filepath.Join("cmd", "seed", "data"), "directory to ingest")
	flags.StringVar(&opts.userID, "user-id", "", "owner user id")
	flags.StringVar(&opts.email, "email", "", "owner email, used when --user-id is empty")
	flags.StringVar(&opts.cacheFile, "cache", "", "hash cache file (default <dir>/.seed_cache.json)")
	flags.BoolVar(&opts.force, "force", false, "ingest files even if unchanged")
	cmd.MarkFlagsMutuallyExclusive("user-id", "email")
	cmd.MarkFlagsOneRequired("user-id", "email")

	return cmd
}

func runSeed(ctx context.Context, opts *seedOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	pipeline, err := app.NewPipeline(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize pipeline", zap.Error(err))
		return err
	}
	defer pipeline.Close()

	owner, err := resolveOwner(ctx, pipeline, opts)
	if err != nil {
		return err
	}

	cacheFile := opts.cacheFile
	if cacheFile == "" {
		cacheFile = filepath.Join(opts.dir, ".seed_cache.json")
	}

	appLogger.Info("Starting knowledge base seeding",
		zap.String("dir", opts.dir),
		zap.String("user_id", owner.String()),
	)

	s := &seeder{
		ingestor:  pipeline.Ingestion,
		cacheFile: cacheFile,
		force:     opts.force,
		logger:    appLogger,
	}
	stats, err := s.seedDirectory(ctx, owner, opts.dir)
	if err != nil {
		return err
	}

	appLogger.Info("Seeding completed",
		zap.Int("ingested", stats.ingested),
		zap.Int("skipped", stats.skipped),
		zap.Int("failed", stats.failed),
		zap.Int("chunks_indexed", stats.chunks),
	)
	if stats.failed > 0 {
		return fmt.Errorf("%d file(s) failed to ingest", stats.failed)
	}
	return nil
}

func resolveOwner(ctx context.Context, pipeline *app.Pipeline, opts *seedOptions) (uuid.UUID, error) {
	if opts.userID != "" {
		id, err := uuid.Parse(opts.userID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid --user-id: %w", err)
		}
		if _, err := pipeline.Users.GetByID(ctx, id); err != nil {
			return uuid.Nil, fmt.Errorf("user %s: %w", id, err)
		}
		return id, nil
	}

	user, err := pipeline.Users.GetByEmail(ctx, strings.ToLower(opts.email))
	if err != nil {
		return uuid.Nil, fmt.Errorf("user %s: %w", opts.email, err)
	}
	return user.ID, nil
}

type ingestor interface {
	Ingest(ctx context.Context, req service.IngestRequest) (*dto.UploadResponse, error)
}

type seeder struct {
	ingestor  ingestor
	cacheFile string
	force     bool
	logger    *zap.Logger
	now       func() time.Time
}

type seedStats struct {
	ingested int
	skipped  int
	failed   int
	chunks   int
}

// seedDirectory ingests every regular file under dir for owner. A failed
// file is logged and counted; the walk continues with the next one.
func (s *seeder) seedDirectory(ctx context.Context, owner uuid.UUID, dir string) (seedStats, error) {
	var stats seedStats
	now := time.Now
	if s.now != nil {
		now = s.now
	}

	cache, err := loadCache(s.cacheFile)
	if err != nil {
		s.logger.Warn("Failed to load cache, will process all files", zap.Error(err))
		cache = newCache()
	}

	cachePath, _ := filepath.Abs(s.cacheFile)

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == cachePath {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		fileHash, err := calculateFileHash(path)
		if err != nil {
			s.logger.Warn("Failed to calculate file hash, will process anyway", zap.String("path", path), zap.Error(err))
		}

		if cached, ok := cache.lookup(owner.String(), path); ok && !s.force && fileHash != "" && cached.FileHash == fileHash {
			s.logger.Info("File already ingested, skipping",
				zap.String("path", path),
				zap.Time("processed_at", cached.ProcessedAt),
			)
			stats.skipped++
			return nil
		}

		resp, err := s.ingestFile(ctx, owner, path)
		if err != nil {
			s.logger.Error("Failed to ingest file", zap.String("path", path), zap.Error(err))
			stats.failed++
			return nil
		}

		s.logger.Info("Ingested file",
			zap.String("path", path),
			zap.String("document_id", resp.File.ID),
			zap.Int("chunks_indexed", resp.ChunksIndexed),
			zap.Bool("text_extracted", resp.ExtractedText != nil),
		)
		stats.ingested++
		stats.chunks += resp.ChunksIndexed

		cache.store(owner.String(), ProcessedFile{
			FilePath:    path,
			FileHash:    fileHash,
			DocumentID:  resp.File.ID,
			Chunks:      resp.ChunksIndexed,
			ProcessedAt: now(),
		})
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return stats, fmt.Errorf("walk %s: %w", dir, err)
	}

	if saveErr := saveCache(s.cacheFile, cache); saveErr != nil {
		s.logger.Warn("Failed to save cache", zap.Error(saveErr))
	}
	return stats, err
}

func (s *seeder) ingestFile(ctx context.Context, owner uuid.UUID, path string) (*dto.UploadResponse, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return s.ingestor.Ingest(ctx, service.IngestRequest{
		UserID:      owner,
		FileName:    name,
		ContentType: contentType,
		Content:     content,
	})
}
