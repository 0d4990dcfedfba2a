package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"buffmarket.gg/internal/game"
	"buffmarket.gg/internal/market"
	"buffmarket.gg/internal/market/marketcfg"
	"buffmarket.gg/internal/persistence/ledger"
	"buffmarket.gg/internal/persistence/shopdb"
	"buffmarket.gg/internal/scheduler"
	"buffmarket.gg/internal/skills"
	"buffmarket.gg/internal/transport/feed"
)

// Class ids present in the player template table. Stand-ins can only be
// rebuilt for classes the world still knows about.
const maxClassID = 118

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		marketPath = flag.String("market", "", "path to market.yaml (default: <configs>/market.yaml)")
		skillsPath = flag.String("skills", "", "path to skills.json (default: <configs>/skills.json)")
		dbPath     = flag.String("db", "", "path to shops.db (default: <data>/shops.db)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	mp := *marketPath
	if mp == "" {
		mp = filepath.Join(*configDir, "market.yaml")
	}
	cfg, err := marketcfg.Load(mp)
	if err != nil {
		logger.Fatalf("load market config: %v", err)
	}

	sp := *skillsPath
	if sp == "" {
		sp = filepath.Join(*configDir, "skills.json")
	}
	catalog, err := skills.Load(sp)
	if err != nil {
		logger.Fatalf("load skill catalog: %v", err)
	}
	logger.Printf("skill catalog: %d skills (digest %.12s)", catalog.Len(), catalog.Digest)

	dp := *dbPath
	if dp == "" {
		dp = filepath.Join(*dataDir, "shops.db")
	}
	store, err := shopdb.Open(dp, logger)
	if err != nil {
		logger.Fatalf("open shop store: %v", err)
	}
	defer store.Close()

	ledgers := ledger.NewMarketLedger(*dataDir)
	defer ledgers.Close()

	world := game.NewWorld(logger)
	for id := 0; id <= maxClassID; id++ {
		world.RegisterClassTemplate(id)
	}

	feedSrv := feed.NewServer(logger)
	hooks := combineHooks(feedSrv.Hooks(), ledgerHooks(ledgers, logger))

	reg := market.NewRegistry(&cfg, world, catalog, store, logger, hooks)

	sched := scheduler.New(logger)
	defer sched.Stop()

	restore := market.NewRestoreScheduler(reg, deferrer{sched}, logger)
	if err := restore.Run(); err != nil {
		logger.Fatalf("restore shops: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/feed", feedSrv.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// deferrer adapts the scheduler to the market's fire-and-forget surface.
type deferrer struct {
	s *scheduler.Scheduler
}

func (d deferrer) RunOnce(delay time.Duration, fn func()) {
	d.s.RunOnce(delay, fn)
}

func ledgerHooks(l *ledger.MarketLedger, logger *log.Logger) market.Hooks {
	return market.Hooks{
		ShopOpened: func(ownerID, standInID, offerings int, restored bool) {
			event := "OPENED"
			if restored {
				event = "RESTORED"
			}
			if err := l.WriteLifecycle(ledger.LifecycleEntry{
				Event: event, OwnerID: ownerID, StandInID: standInID, Offerings: offerings,
			}); err != nil {
				logger.Printf("ledger: lifecycle: %v", err)
			}
		},
		ShopClosed: func(ownerID, standInID int) {
			if err := l.WriteLifecycle(ledger.LifecycleEntry{
				Event: "CLOSED", OwnerID: ownerID, StandInID: standInID,
			}); err != nil {
				logger.Printf("ledger: lifecycle: %v", err)
			}
		},
		Sale: func(e market.SaleEvent) {
			if err := l.WriteSale(ledger.SaleEntry{
				BuyerID:   e.BuyerID,
				OwnerID:   e.OwnerID,
				StandInID: e.StandInID,
				SkillID:   e.SkillID,
				Level:     e.Level,
				Price:     e.Price,
				Target:    e.Target,
				OK:        e.OK,
				Code:      e.Code,
				Anomaly:   e.Anomaly,
			}); err != nil {
				logger.Printf("ledger: sale: %v", err)
			}
		},
	}
}

func combineHooks(hs ...market.Hooks) market.Hooks {
	return market.Hooks{
		ShopOpened: func(ownerID, standInID, offerings int, restored bool) {
			for _, h := range hs {
				if h.ShopOpened != nil {
					h.ShopOpened(ownerID, standInID, offerings, restored)
				}
			}
		},
		ShopClosed: func(ownerID, standInID int) {
			for _, h := range hs {
				if h.ShopClosed != nil {
					h.ShopClosed(ownerID, standInID)
				}
			}
		},
		Sale: func(e market.SaleEvent) {
			for _, h := range hs {
				if h.Sale != nil {
					h.Sale(e)
				}
			}
		},
	}
}
