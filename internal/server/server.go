// Package server exposes the payment engine over a small JSON HTTP API.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"nostr-zapwallet/internal/lnurl"
	"nostr-zapwallet/internal/nips"
	"nostr-zapwallet/internal/payment"
	"nostr-zapwallet/internal/subscription"
	"nostr-zapwallet/internal/types"
	"nostr-zapwallet/internal/util"
	"nostr-zapwallet/internal/wallet"
)

const maxBodySize = 32 * 1024

// Server holds the collaborators behind the API. Subscriptions may be nil,
// in which case the subscription routes answer 503.
type Server struct {
	Session       *wallet.Session
	Payer         *payment.Payer
	Lnurl         *lnurl.Client
	Subscriptions *subscription.Service
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogging)
	r.Use(cors.AllowAll().Handler)

	r.Get("/health", s.health)
	r.Get("/metrics", metricsHandler)

	r.Post("/resolve", s.resolve)
	r.Post("/pay", s.pay)
	r.Get("/balance", s.balance)
	r.Get("/transactions", s.transactions)
	r.Post("/invoice", s.invoice)

	r.Route("/subscriptions/{creator}", func(r chi.Router) {
		r.Get("/settings", s.subscriptionSettings)
		r.Get("/access", s.subscriptionAccess)
		r.Post("/invoice", s.subscriptionInvoice)
	})
	return r
}

// NewHTTPServer wraps the handler with the usual timeouts.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	st := s.Session.State()
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"wallet":      !st.Disabled,
		"initialized": st.Initialized,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		util.RespondBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindMalformedEncoding, types.KindUnsupportedDestination, types.KindAmountOutOfRange:
		return http.StatusBadRequest
	case types.KindInsufficientBalance:
		return http.StatusPaymentRequired
	case types.KindNotInitialized, types.KindAlreadyInitialized:
		return http.StatusServiceUnavailable
	case types.KindLnurlEndpoint, types.KindTransportExhausted, types.KindRemoteWallet, types.KindPaymentFailed:
		return http.StatusBadGateway
	case types.KindUnsupportedOperation:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	kind := types.KindOf(err)
	status := statusFor(kind)
	if err == wallet.ErrDisabled {
		status = http.StatusServiceUnavailable
	}
	LoggerFromContext(r.Context()).Debug("api: request failed", "kind", kind, "error", err)
	util.RespondError(w, status, string(kind), err.Error())
}

type resolveRequest struct {
	Destination string `json:"destination"`
	Describe    bool   `json:"describe"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	client := s.Lnurl
	if !req.Describe {
		client = nil
	}
	util.WriteJSON(w, http.StatusOK, payment.Inspect(r.Context(), client, req.Destination))
}

type payRequest struct {
	Destination  string                      `json:"destination"`
	AmountMsat   int64                       `json:"amount_msat"`
	Comment      string                      `json:"comment"`
	Zap          *payment.ZapTarget          `json:"zap"`
	Subscription *payment.SubscriptionTarget `json:"subscription"`
}

func (s *Server) pay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out := s.Payer.Pay(r.Context(), payment.Request{
		Destination:  req.Destination,
		AmountMsat:   req.AmountMsat,
		Comment:      req.Comment,
		Zap:          req.Zap,
		Subscription: req.Subscription,
	})
	recordOutcome(out.Status)

	status := http.StatusOK
	switch out.Status {
	case payment.StatusDisabled:
		status = http.StatusServiceUnavailable
	case payment.StatusFailed:
		status = statusFor(out.Kind)
	}
	util.WriteJSON(w, status, out)
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	msat, err := s.Session.GetBalance(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]int64{
		"balance_msat": msat,
		"balance_sats": lnurl.MsatsToSats(msat),
	})
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	payments, err := s.Session.ListPayments(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if payments == nil {
		payments = []wallet.Payment{}
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"transactions": payments})
}

type invoiceRequest struct {
	AmountMsat int64  `json:"amount_msat"`
	Memo       string `json:"memo"`
}

func (s *Server) invoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AmountMsat <= 0 {
		util.RespondError(w, http.StatusBadRequest, string(types.KindAmountOutOfRange), "amount_msat must be positive")
		return
	}
	pr, err := s.Session.CreateInvoice(r.Context(), req.AmountMsat, req.Memo)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"invoice": pr})
}

func (s *Server) subscriptionSettings(w http.ResponseWriter, r *http.Request) {
	if s.Subscriptions == nil {
		util.RespondServiceUnavailable(w, "subscriptions not configured")
		return
	}
	creator, err := nips.DecodePubkey(chi.URLParam(r, "creator"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	settings, err := s.Subscriptions.FetchSettings(r.Context(), creator)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	isDefault := settings == nil
	if isDefault {
		settings, _ = s.Subscriptions.SettingsOrDefault(r.Context(), creator)
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"creator":  creator,
		"settings": settings,
		"default":  isDefault,
	})
}

func (s *Server) subscriptionAccess(w http.ResponseWriter, r *http.Request) {
	if s.Subscriptions == nil {
		util.RespondServiceUnavailable(w, "subscriptions not configured")
		return
	}
	creator, err := nips.DecodePubkey(chi.URLParam(r, "creator"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if r.URL.Query().Get("viewer") == "" {
		util.RespondBadRequest(w, "viewer is required")
		return
	}
	viewer, err := nips.DecodePubkey(r.URL.Query().Get("viewer"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	ok, err := s.Subscriptions.HasAccess(r.Context(), viewer, creator)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	resp := map[string]interface{}{"creator": creator, "viewer": viewer, "access": ok}
	if ok && viewer != creator {
		if exp, err := s.Subscriptions.Expiry(r.Context(), viewer, creator); err == nil && !exp.IsZero() {
			resp["expires_at"] = exp.Unix()
		}
	}
	util.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) subscriptionInvoice(w http.ResponseWriter, r *http.Request) {
	if s.Subscriptions == nil {
		util.RespondServiceUnavailable(w, "subscriptions not configured")
		return
	}
	creator, err := nips.DecodePubkey(chi.URLParam(r, "creator"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	months, err := strconv.Atoi(r.URL.Query().Get("months"))
	if err != nil || months <= 0 {
		util.RespondError(w, http.StatusBadRequest, string(types.KindAmountOutOfRange), "months must be a positive integer")
		return
	}
	settings, err := s.Subscriptions.SettingsOrDefault(r.Context(), creator)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	pr, err := s.Subscriptions.Invoice(r.Context(), creator, months, settings.MonthlyPrice)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"invoice":     pr,
		"months":      months,
		"amount_sats": int64(months) * settings.MonthlyPrice,
	})
}
