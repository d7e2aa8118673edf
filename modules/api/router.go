// Package api mounts the HTTP surface of the billing backend: auth, plan
// catalog, checkout and webhook endpoints, generation and subscription
// lifecycle. Handlers stay thin; domain rules live in the pkg services.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/asystentai/backend/pkg/auth"
	"github.com/asystentai/backend/pkg/billing"
	"github.com/asystentai/backend/pkg/conversation"
	"github.com/asystentai/backend/pkg/httpserver"
	"github.com/asystentai/backend/pkg/jwt"
	"github.com/asystentai/backend/pkg/ledger"
	"github.com/asystentai/backend/pkg/metering"
	"github.com/asystentai/backend/pkg/payment"
	"github.com/asystentai/backend/pkg/plan"
	"github.com/asystentai/backend/pkg/subscription"
)

// Config holds HTTP-surface settings.
type Config struct {
	// WebhookSignatureHeader is the header the processor signs payloads
	// with.
	WebhookSignatureHeader string `env:"WEBHOOK_SIGNATURE_HEADER" envDefault:"Paddle-Signature"`

	// AdminAPIKey guards plan catalog mutations. Empty disables the admin
	// endpoints.
	AdminAPIKey string `env:"ADMIN_API_KEY"`

	// CheckoutSuccessURL and CheckoutCancelURL are where the processor
	// redirects after hosted checkout.
	CheckoutSuccessURL string `env:"CHECKOUT_SUCCESS_URL" envDefault:"https://app.asystent.ai/payment/success"`
	CheckoutCancelURL  string `env:"CHECKOUT_CANCEL_URL" envDefault:"https://app.asystent.ai/payment/cancel"`

	// TrialDays is the length of whitelisted free trials.
	TrialDays int `env:"TRIAL_DAYS" envDefault:"30"`
}

// Deps wires the domain services into the router.
type Deps struct {
	Config        Config
	Logger        *slog.Logger
	Auth          *auth.Service
	Ledger        *ledger.Service
	Users         ledger.UserStore
	Plans         *plan.Service
	Payments      payment.Provider
	Reconciler    *billing.Reconciler
	Gate          *metering.Gate
	Conversations *conversation.Service
	Lifecycle     *subscription.Manager
	Whitelist     auth.WhitelistStore

	// HealthProbes feed the readiness endpoint.
	HealthProbes []func(context.Context) error
}

// Router builds the chi router with all endpoints mounted.
func Router(deps Deps) chi.Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(deps.Logger))
	r.Get("/readyz", httpserver.HealthCheckHandler(deps.Logger, deps.HealthProbes...))

	h := &handlers{deps: deps}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/register-trial", h.registerTrial)
		r.Post("/login", h.login)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password", h.resetPassword)
	})

	r.Get("/plans", h.listPlans)
	r.Get("/plans/{planID}", h.getPlan)

	// Processor webhooks are authenticated by signature, not by JWT.
	r.Post("/billing/webhook", h.webhook)

	r.Group(func(r chi.Router) {
		r.Use(jwt.Middleware(deps.Auth.Tokens()))

		r.Get("/me", h.me)
		r.Get("/me/transactions", h.listTransactions)
		r.Get("/me/payments", h.listPayments)

		r.Post("/billing/checkout", h.createCheckout)

		r.Post("/generate", h.generate)

		r.Post("/conversations", h.startConversation)
		r.Get("/conversations", h.listConversations)
		r.Get("/conversations/{conversationID}/messages", h.listMessages)
		r.Post("/conversations/{conversationID}/messages", h.sendMessage)

		r.Post("/subscription/cancel", h.cancelSubscription)
		r.Post("/subscription/change", h.changeSubscription)
	})

	if deps.Config.AdminAPIKey != "" {
		r.Group(func(r chi.Router) {
			r.Use(h.requireAdminKey)

			r.Post("/admin/plans", h.createPlan)
			r.Put("/admin/plans/{planID}", h.updatePlan)
			r.Delete("/admin/plans/{planID}", h.deletePlan)
			r.Post("/admin/plans/{planID}/assign/{userID}", h.assignPlan)
			r.Post("/admin/whitelist", h.addWhitelistEmail)
			r.Get("/admin/whitelist", h.listWhitelist)
		})
	}

	return r
}

type handlers struct {
	deps Deps
}

func (h *handlers) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-Key") != h.deps.Config.AdminAPIKey {
			respondError(w, http.StatusUnauthorized, "invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
