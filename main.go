package main

import (
	"context"
	"flag"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cppla/rewardhub/clock"
	"github.com/cppla/rewardhub/config"
	"github.com/cppla/rewardhub/controllers"
	"github.com/cppla/rewardhub/jobs"
	"github.com/cppla/rewardhub/metrics"
	"github.com/cppla/rewardhub/models"
	"github.com/cppla/rewardhub/notify"
	"github.com/cppla/rewardhub/repository"
	"github.com/cppla/rewardhub/routes"
	"github.com/cppla/rewardhub/services"
	"github.com/cppla/rewardhub/utils"
)

func main() {
	runOnce := flag.String("run", "", "run a one-shot job and exit (scratch-cards)")
	flag.Parse()

	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg.Log); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	clk, err := clock.New(cfg.Rewards.Timezone)
	if err != nil {
		utils.Sugar.Fatalf("invalid rewards timezone %q: %v", cfg.Rewards.Timezone, err)
	}

	db := config.InitDatabase(models.All()...)
	store := repository.NewGormStore(db)

	dispatcher := notify.NewDispatcher(utils.Logger, publishers(cfg)...)
	m := metrics.NewMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	retry := utils.RetryPolicy{
		Attempts:  cfg.Rewards.RetryAttempts,
		BaseDelay: cfg.Rewards.RetryBaseDelay,
		Retryable: repository.IsTransient,
	}

	ledger := services.NewLedger(store, dispatcher, m, utils.Logger.Named("ledger"), retry)
	catalog := services.NewCatalog(ledger, utils.NewCache(), cfg.Rewards.CatalogCacheTTL, m, utils.Logger.Named("catalog"))
	issuer := services.NewScratchIssuer(store, clk, cfg.Scratch.PageSize, retry, m, utils.Logger.Named("scratch"))

	if *runOnce != "" {
		os.Exit(runJob(*runOnce, issuer, dispatcher, cfg.Scratch.Timeout))
	}

	seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := catalog.SeedDefaults(seedCtx); err != nil {
		utils.Logger.Warn("seeding default reward rules failed", zap.Error(err))
	}
	cancel()

	streak, err := services.NewStreakTracker(catalog, ledger, clk, milestones(cfg.Rewards.Milestones), issuer, m, utils.Logger.Named("streak"))
	if err != nil {
		utils.Sugar.Fatalf("invalid streak milestones: %v", err)
	}
	login := services.NewDailyLogin(catalog, ledger, clk, utils.NewCache(), m, utils.Logger.Named("login"))
	activities := services.NewActivityTracker(store, clk, utils.Logger.Named("activity"))
	engagement := services.NewEngagement(catalog, ledger, clk, m, utils.Logger.Named("engagement"))
	status := services.NewStatusReader(store, clk, activities, streak)

	r := routes.SetupRouter(cfg,
		controllers.NewRewardController(login, streak, activities, engagement, status, ledger),
		controllers.NewAdminController(catalog, issuer, cfg.Scratch.Timeout),
		m,
	)

	onShutdown := []func(){dispatcher.Close}
	if cfg.Scratch.Enabled {
		scheduler := jobs.NewScheduler(issuer, cfg.Scratch.Cron, clk.Location(), cfg.Scratch.Timeout, utils.Logger.Named("scheduler"))
		if err := scheduler.Start(); err != nil {
			utils.Sugar.Fatalf("invalid scratch cron %q: %v", cfg.Scratch.Cron, err)
		}
		onShutdown = append([]func(){scheduler.Stop}, onShutdown...)
	}

	utils.Sugar.Infof("Starting server on port %s (graceful) timezone=%s", cfg.App.Port, cfg.Rewards.Timezone)
	if err := utils.GraceServer(":"+cfg.App.Port, r, onShutdown...); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

// publishers builds the coin-earned event sinks enabled in cfg. A broker that cannot be reached
// at boot is logged and skipped.
func publishers(cfg config.AppConfig) []notify.Publisher {
	var out []notify.Publisher
	if rc := utils.GetRedis(); rc != nil && cfg.Redis.Channel != "" {
		out = append(out, notify.NewRedisPublisher(rc, cfg.Redis.Channel))
	}
	if cfg.RabbitMQ.Enabled {
		p, err := notify.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			utils.Logger.Warn("rabbitmq publisher disabled", zap.Error(err))
		} else {
			out = append(out, p)
		}
	}
	return out
}

func milestones(in []config.MilestoneConfig) []services.Milestone {
	out := make([]services.Milestone, 0, len(in))
	for _, mc := range in {
		out = append(out, services.Milestone{
			Days:             mc.Days,
			Key:              services.RewardKey(mc.RewardKey),
			BonusScratchCard: mc.BonusScratchCard,
		})
	}
	return out
}

func runJob(name string, issuer *services.ScratchIssuer, dispatcher *notify.Dispatcher, timeout time.Duration) int {
	defer dispatcher.Close()
	if name != "scratch-cards" {
		utils.Sugar.Errorf("unknown job %q", name)
		return 2
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	report, err := issuer.Run(ctx)
	if err != nil {
		utils.Logger.Error("scratch card issuance failed", zap.Error(err))
		return 1
	}
	utils.Logger.Info("scratch card issuance done", zap.Any("report", report))
	return 0
}
