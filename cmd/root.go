package cmd

import (
	"context"
	"time"

	"github.com/kairosocial/kairo/core/config"
	"github.com/kairosocial/kairo/core/database"
	domainAccount "github.com/kairosocial/kairo/domains/account"
	domainCampaign "github.com/kairosocial/kairo/domains/campaign"
	domainCredential "github.com/kairosocial/kairo/domains/credential"
	domainPost "github.com/kairosocial/kairo/domains/post"
	domainScheduler "github.com/kairosocial/kairo/domains/scheduler"
	"github.com/kairosocial/kairo/infrastructure/instagram"
	"github.com/kairosocial/kairo/infrastructure/plancache"
	valkeyInfra "github.com/kairosocial/kairo/infrastructure/valkey"
	"github.com/kairosocial/kairo/pkg/events"
	"github.com/kairosocial/kairo/pkg/pubworker"
	"github.com/kairosocial/kairo/pkg/rategov"
	"github.com/kairosocial/kairo/pkg/utils"
	"github.com/kairosocial/kairo/usecase"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

var (
	db       *gorm.DB
	vkClient *valkeyInfra.Client
	bus      *events.Bus
	governor *rategov.Governor
	pool     *pubworker.PublishWorkerPool

	accountUsecase    domainAccount.IAccountUsecase
	postUsecase       domainPost.IPostUsecase
	credentialUsecase domainCredential.ICredentialUsecase
	schedulerUsecase  domainScheduler.ISchedulerUsecase
	campaignUsecase   domainCampaign.ICampaignUsecase

	appCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "kairo",
	Short: "Scheduled publication engine for Instagram accounts",
	Long: `Kairo schedules and publishes Instagram posts at planned times,
governing per-account API quotas, refreshing access tokens ahead of expiry
and orchestrating multi-post campaigns around engagement history.`,
}

func init() {
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	cobra.OnInitialize(initEnvConfig, initApp)
}

func initEnvConfig() {
	viper.AutomaticEnv()

	if _, err := config.LoadConfig(); err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	if config.Global.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func initApp() {
	cfg := config.Global

	var err error
	db, err = database.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err)
	}

	bus = events.NewBus(64)
	governor = rategov.New(rategov.Config{
		HourlyCalls:    cfg.RateLimit.HourlyCalls,
		DailyPublishes: cfg.RateLimit.DailyPublishes,
		Shards:         cfg.RateLimit.Shards,
	})
	pool = pubworker.NewPublishWorkerPool(cfg.Workers.Size, cfg.Workers.QueueSize)

	var platform instagram.Client
	if cfg.Instagram.AppID == "" {
		logrus.Warn("FACEBOOK_APP_ID is not set, using the mock platform client; nothing will reach Instagram")
		platform = &instagram.MockClient{}
	} else {
		platform = instagram.NewGraphClient(instagram.Config{
			BaseURL:        cfg.Instagram.BaseURL,
			AppID:          cfg.Instagram.AppID,
			AppSecret:      cfg.Instagram.AppSecret,
			RequestTimeout: cfg.Instagram.RequestTimeout,
			ProcessingWait: cfg.Instagram.ProcessingWait,
		})
	}

	var planCache plancache.Store
	if cfg.Database.ValkeyEnabled {
		vkClient, err = valkeyInfra.NewClient(valkeyInfra.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.Fatalf("failed to connect valkey: %v", err)
		}
		planCache = plancache.NewValkeyStore(vkClient, cfg.Campaign.PlanCacheTTL)
	} else {
		planCache = plancache.NewMemoryStore(cfg.Campaign.PlanCacheTTL)
	}

	accountUsecase = usecase.NewAccountService(db)
	postUsecase = usecase.NewPostService(db)
	credentialUsecase = usecase.NewCredentialService(db, platform, accountUsecase, bus, cfg.Token)
	schedulerUsecase = usecase.NewSchedulerService(db, governor, credentialUsecase, postUsecase, platform, pool, bus, cfg.Publish, cfg.Token.SweepInterval)
	campaignUsecase = usecase.NewCampaignService(db, accountUsecase, schedulerUsecase, planCache, cfg.Campaign)
}

// StartApp launches the background loops: the dispatcher (which owns the
// worker pool) and the token sweep.
func StartApp() {
	var ctx context.Context
	ctx, appCancel = context.WithCancel(context.Background())
	schedulerUsecase.Start(ctx)
	credentialUsecase.StartSweep(ctx)
}

// StopApp stops all background subsystems in dependency order.
func StopApp() {
	if appCancel != nil {
		appCancel()
	}
	if schedulerUsecase != nil {
		schedulerUsecase.Stop()
	}
	if bus != nil {
		bus.Close()
	}
	if vkClient != nil {
		vkClient.Close()
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalln(err)
	}
}
