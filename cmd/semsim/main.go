package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/semsim/internal/config"
	"github.com/xxxsen/semsim/internal/handler"
	"github.com/xxxsen/semsim/internal/job"
	"github.com/xxxsen/semsim/internal/middleware"
	"github.com/xxxsen/semsim/internal/pkg/jwt"
	"github.com/xxxsen/semsim/internal/schedule"
	"github.com/xxxsen/semsim/internal/service"
)

const finishedJobCleanupSpec = "0 * * * *"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "semsim",
		Short: "semantic similarity and fine-tuning server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run semsim server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			initLogger(cfg)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
			return runServer(cfg)
		},
	}

	versionsCmd := &cobra.Command{
		Use:   "versions",
		Short: "list saved model versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return printVersions(cmd.Context(), cfg)
		},
	}

	similarityCmd := &cobra.Command{
		Use:   "similarity <text1> <text2>",
		Short: "score one pair of texts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return printSimilarity(cmd.Context(), cfg, args[0], args[1])
		},
	}

	var subject string
	var ttlHours int
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "issue an operator token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if ttlHours <= 0 {
				ttlHours = cfg.JWTTTLHours
			}
			token, err := jwt.GenerateToken(subject, jwt.RoleOperator, []byte(cfg.JWTSecret), time.Duration(ttlHours)*time.Hour)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&subject, "subject", "", "operator name")
	tokenCmd.Flags().IntVar(&ttlHours, "ttl-hours", 0, "token lifetime, defaults to jwt_ttl_hours")

	rootCmd.AddCommand(runCmd, versionsCmd, similarityCmd, tokenCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	return config.Load(path)
}

func initLogger(cfg *config.Config) {
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
}

func runServer(cfg *config.Config) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("snapshot_dir", cfg.Model.SnapshotDir),
		zap.Bool("database", cfg.Database.Enabled()),
		zap.String("file_store", cfg.FileStore.Type),
	)

	rt, err := buildRuntime(context.Background(), cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	registry := job.NewRegistry()
	finetuneService := service.NewFinetuneService(rt.engine, registry, rt.snapshots, rt.datasetStore(), service.FinetuneOptions{
		Defaults:      rt.trainerDefaults(),
		Optimizer:     cfg.Finetune.Optimizer,
		GradClip:      cfg.Finetune.GradClip,
		AutoDeploy:    cfg.Finetune.AutoDeploy,
		BaseModelName: cfg.Model.BaseModelName,
	})
	modelService := service.NewModelService(rt.engine, rt.snapshots)

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewSnapshotRetentionJob(rt.snapshots, cfg.Retention.MaxKeep), cfg.Retention.Spec); err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}
	if err := scheduler.AddJob(job.NewFinishedJobCleanupJob(registry, 0), finishedJobCleanupSpec); err != nil {
		return fmt.Errorf("schedule job cleanup: %w", err)
	}
	if rt.cacheRepo != nil {
		cleanup := job.NewEmbeddingCacheCleanupJob(rt.cacheRepo, cfg.Database.CacheMaxDays, rt.engine.StoreKey)
		if err := scheduler.AddJob(cleanup, cfg.Retention.Spec); err != nil {
			return fmt.Errorf("schedule embedding cache cleanup: %w", err)
		}
	}

	deps := handler.RouterDeps{
		Similarity:   handler.NewSimilarityHandler(rt.engine),
		Finetune:     handler.NewFinetuneHandler(finetuneService),
		Models:       handler.NewModelHandler(modelService),
		JWTSecret:    []byte(cfg.JWTSecret),
		SubmitWindow: time.Duration(cfg.Finetune.SubmitIntervalSeconds) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.AllowedOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")

	timeout := time.Duration(cfg.Finetune.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := finetuneService.Shutdown(shutdownCtx); err != nil {
		logutil.GetLogger(context.Background()).Warn("finetune shutdown incomplete", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)
	return nil
}
