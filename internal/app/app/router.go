package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"brandotp/internal/app/handler"
	middleware2 "brandotp/internal/app/middleware"
)

func (a *App) Router() http.Handler {

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware2.Log(a.logger))

	auth := middleware2.Auth(a.session)
	admin := middleware2.Admin()
	idem := middleware2.Idempotency(a.keys)

	// api
	uh := handler.NewUserHandler(a.users, a.session)
	wh := handler.NewWalletHandler(a.wallet, a.payments)
	oh := handler.NewOtpHandler(a.otp)
	ph := handler.NewPaymentHandler(a.payments)
	sh := handler.NewServiceHandler(a.catalog)

	r.Route("/user", func(r chi.Router) {
		r.Post("/login", uh.Login)
		r.Post("/register", uh.Register)
		r.With(auth).Get("/me", uh.Me)
	})

	r.Route("/wallet", func(r chi.Router) {
		r.Use(auth)
		r.Get("/balance", wh.Balance)
		r.Get("/transactions", wh.Transactions)
		r.Post("/add-money", wh.AddMoney)
	})

	r.Route("/payments/pay0", func(r chi.Router) {
		r.With(auth).Post("/order", ph.CreateOrder)
		// the gateway calls this, no session
		r.Post("/webhook", ph.Webhook)
	})

	r.Route("/otp", func(r chi.Router) {
		r.Use(auth)
		r.With(idem).Post("/request", oh.Create)
		r.With(idem).Post("/cancel/{request_id}", oh.Cancel)
		r.Get("/status/{request_id}", oh.Status)
		r.Get("/history", oh.History)
		r.Get("/stats", oh.Stats)
	})

	r.Get("/services/", sh.List)

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth, admin)
		r.Get("/services", sh.ListAll)
		r.Post("/services", sh.Create)
		r.Put("/services/{id}", sh.Update)
		r.Delete("/services/{id}", sh.Delete)
		r.Post("/wallet/credit", ph.AdminCredit)
		r.Put("/otp/{id}/status", oh.UpdateStatus)
	})

	return r
}
