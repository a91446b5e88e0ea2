package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haulbid/haulbid-backend/api/controllers"
	"github.com/haulbid/haulbid-backend/api/middleware"
	"github.com/haulbid/haulbid-backend/internal/assignment"
	"github.com/haulbid/haulbid-backend/internal/auction"
	"github.com/haulbid/haulbid-backend/internal/bidding"
	"github.com/haulbid/haulbid-backend/internal/broadcast"
	"github.com/haulbid/haulbid-backend/internal/leaderboard"
	"github.com/haulbid/haulbid-backend/internal/ledger"
	"github.com/haulbid/haulbid-backend/pkg/config"
	"github.com/haulbid/haulbid-backend/pkg/db"
	"github.com/haulbid/haulbid-backend/pkg/logger"
	"github.com/haulbid/haulbid-backend/pkg/redis"
)

// Services bundles everything the HTTP surface depends on.
type Services struct {
	Auction     auction.Service
	Bidding     bidding.Service
	Leaderboard leaderboard.Service
	Ledger      ledger.Service
	Assignment  assignment.Service
	Hub         *broadcast.Hub
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	metricsReg prometheus.Gatherer,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if metricsReg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))

		r.Route("/shipper/loads", func(r chi.Router) {
			r.Post("/", controllers.CreateLoad(svcs.Auction, logg))
			r.Get("/", controllers.ListLoads(svcs.Auction, logg))

			r.Route("/{loadId}", func(r chi.Router) {
				r.Get("/", controllers.GetLoad(svcs.Auction, logg))
				r.Post("/publish", controllers.PublishLoad(svcs.Auction, logg))
				r.Post("/cancel", controllers.CancelLoad(svcs.Auction, logg))
				r.Post("/extend", controllers.ExtendLoad(svcs.Auction, logg))
				r.Post("/complete", controllers.CompleteLoad(svcs.Auction, logg))

				r.Get("/leaderboard", controllers.ShipperLeaderboard(svcs.Leaderboard, logg))

				r.Post("/assignments", controllers.AssignCarriers(svcs.Assignment, logg))
				r.Get("/assignments", controllers.ListAssignments(svcs.Assignment, logg))
				r.Delete("/assignments/{carrierId}", controllers.UnassignCarrier(svcs.Assignment, logg))
				r.Post("/price-match", controllers.ProposePriceMatch(svcs.Assignment, logg))
				r.Post("/price-match/{carrierId}/respond", controllers.RespondPriceMatch(svcs.Assignment, logg))
			})
		})

		r.Route("/carrier/loads/{loadId}", func(r chi.Router) {
			r.Get("/", controllers.GetLoad(svcs.Auction, logg))
			r.Post("/rates", controllers.SubmitRate(svcs.Bidding, logg))
			r.Get("/rates/history", controllers.RateHistory(svcs.Ledger, logg))
			r.Get("/rates/lowest", controllers.LowestRate(svcs.Auction, svcs.Leaderboard, svcs.Ledger, logg))
			r.Get("/leaderboard", controllers.Leaderboard(svcs.Auction, svcs.Leaderboard, logg))
			r.Get("/leaderboard/stream", controllers.LeaderboardStream(svcs.Auction, svcs.Leaderboard, svcs.Hub, logg))
		})
	})

	return r
}
