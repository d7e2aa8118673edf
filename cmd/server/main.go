// Command server runs the billing backend: account auth, the prepaid token
// ledger, metered AI generation, payment-processor webhooks and invoicing.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asystentai/backend/modules/api"
	"github.com/asystentai/backend/pkg/auth"
	"github.com/asystentai/backend/pkg/billing"
	"github.com/asystentai/backend/pkg/config"
	"github.com/asystentai/backend/pkg/conversation"
	"github.com/asystentai/backend/pkg/email"
	"github.com/asystentai/backend/pkg/generation"
	"github.com/asystentai/backend/pkg/httpserver"
	"github.com/asystentai/backend/pkg/invoicing"
	"github.com/asystentai/backend/pkg/ledger"
	"github.com/asystentai/backend/pkg/logger"
	"github.com/asystentai/backend/pkg/metering"
	"github.com/asystentai/backend/pkg/mongodb"
	"github.com/asystentai/backend/pkg/payment"
	"github.com/asystentai/backend/pkg/plan"
	"github.com/asystentai/backend/pkg/redis"
	"github.com/asystentai/backend/pkg/subscription"
)

// appConfig holds the wiring choices that do not belong to any one package.
type appConfig struct {
	// EmailDriver selects the mail transport: postmark or dev.
	EmailDriver string `env:"EMAIL_DRIVER" envDefault:"postmark"`
	EmailDevDir string `env:"EMAIL_DEV_DIR" envDefault:"var/emails"`

	// PlansFile seeds the plan catalog at startup when set.
	PlansFile string `env:"PLANS_FILE"`

	// EventTTL bounds how long processed webhook event IDs are remembered.
	// Zero keeps the 90-day default.
	EventTTL time.Duration `env:"BILLING_EVENT_TTL"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		appCfg     appConfig
		logCfg     logger.Config
		mongoCfg   mongodb.Config
		redisCfg   redis.Config
		httpCfg    httpserver.Config
		apiCfg     api.Config
		authCfg    auth.Config
		billingCfg billing.Config
		paddleCfg  payment.PaddleConfig
		infaktCfg  invoicing.InfaktConfig
		outboxCfg  invoicing.OutboxConfig
		openaiCfg  generation.Config
		meterCfg   metering.Config
		convCfg    conversation.Config
		subCfg     subscription.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&logCfg)
	config.MustLoad(&mongoCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&apiCfg)
	config.MustLoad(&authCfg)
	config.MustLoad(&billingCfg)
	config.MustLoad(&paddleCfg)
	config.MustLoad(&infaktCfg)
	config.MustLoad(&outboxCfg)
	config.MustLoad(&openaiCfg)
	config.MustLoad(&meterCfg)
	config.MustLoad(&convCfg)
	config.MustLoad(&subCfg)

	log := logger.New(logCfg, "billing-backend")
	logger.SetAsDefault(log)

	db, err := mongodb.ConnectDatabase(ctx, mongoCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Client().Disconnect(context.Background()); err != nil {
			log.Error("mongodb disconnect failed", "error", err)
		}
	}()

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("redis close failed", "error", err)
		}
	}()

	users := mongodb.NewUserStore(db)
	transactions := mongodb.NewTransactionStore(db)
	payments := mongodb.NewPaymentStore(db)
	snapshots := mongodb.NewSnapshotStore(db)
	plans := mongodb.NewPlanStore(db)
	whitelist := mongodb.NewWhitelistStore(db)
	invoiceJobs := mongodb.NewInvoiceJobStore(db)
	conversations := mongodb.NewConversationStore(db)

	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := transactions.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := conversations.EnsureIndexes(ctx); err != nil {
		return err
	}

	if appCfg.PlansFile != "" {
		if err := seedPlans(ctx, plans, appCfg.PlansFile, log); err != nil {
			return err
		}
	}

	ledgerSvc := ledger.NewService(users, transactions, payments, snapshots, ledger.WithLogger(log))
	planSvc := plan.NewService(plans, users)

	sender, err := buildEmailSender(appCfg, log)
	if err != nil {
		return err
	}

	authSvc, err := auth.NewService(users, ledgerSvc, whitelist, authCfg,
		auth.WithEmailSender(sender),
		auth.WithLogger(log))
	if err != nil {
		return err
	}

	provider, err := payment.NewPaddleProvider(paddleCfg)
	if err != nil {
		return err
	}

	infakt, err := invoicing.NewInfaktClient(infaktCfg)
	if err != nil {
		return err
	}
	outbox := invoicing.NewOutbox(invoiceJobs, infakt, outboxCfg, log)
	go outbox.Run(ctx)

	reconciler := billing.NewReconciler(provider, ledgerSvc, users, plans,
		billing.NewRedisEventStore(redisClient, appCfg.EventTTL),
		billingCfg,
		billing.WithWhitelist(whitelist),
		billing.WithInvoices(outbox),
		billing.WithLogger(log))

	generator, err := generation.NewClient(openaiCfg)
	if err != nil {
		return err
	}
	gate := metering.NewGate(ledgerSvc, users, generator, meterCfg, log)
	convSvc := conversation.NewService(conversations, gate, convCfg, conversation.WithLogger(log))

	lifecycle := subscription.NewManager(provider, ledgerSvc, users, plans, subCfg,
		subscription.WithInvoices(outbox),
		subscription.WithLogger(log))

	router := api.Router(api.Deps{
		Config:        apiCfg,
		Logger:        log,
		Auth:          authSvc,
		Ledger:        ledgerSvc,
		Users:         users,
		Plans:         planSvc,
		Payments:      provider,
		Reconciler:    reconciler,
		Gate:          gate,
		Conversations: convSvc,
		Lifecycle:     lifecycle,
		Whitelist:     whitelist,
		HealthProbes: []func(context.Context) error{
			mongodb.Healthcheck(db.Client()),
			redis.Healthcheck(redisClient),
		},
	})

	server := httpserver.New(httpCfg, log)
	return server.Run(ctx, router)
}

func buildEmailSender(cfg appConfig, log *slog.Logger) (email.EmailSender, error) {
	switch cfg.EmailDriver {
	case "dev":
		log.Warn("using development email sender", "dir", cfg.EmailDevDir)
		return email.NewDevSender(cfg.EmailDevDir), nil
	case "postmark":
		var mailCfg email.Config
		config.MustLoad(&mailCfg)
		return email.NewPostmarkClient(mailCfg)
	default:
		return nil, errors.New("unknown EMAIL_DRIVER: " + cfg.EmailDriver)
	}
}

// seedPlans loads the plan catalog from a YAML file, creating missing plans
// and leaving existing ones untouched.
func seedPlans(ctx context.Context, store plan.Store, path string, log *slog.Logger) error {
	loaded, err := plan.NewFileSource(path).Load(ctx)
	if err != nil {
		return err
	}
	for i := range loaded {
		p := loaded[i]
		err := store.Create(ctx, &p)
		switch {
		case errors.Is(err, plan.ErrPlanAlreadyExists):
			continue
		case err != nil:
			return err
		}
		log.Info("seeded plan", "plan_id", p.ID, "name", p.Name)
	}
	return nil
}
