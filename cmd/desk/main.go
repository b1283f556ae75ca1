package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"visitordesk/internal/api"
	"visitordesk/internal/backend"
	"visitordesk/internal/camera"
	"visitordesk/internal/cloudinary"
	"visitordesk/internal/config"
	"visitordesk/internal/desk"
	"visitordesk/internal/faceclient"
	"visitordesk/internal/httpmiddleware"
	"visitordesk/internal/journal"
	"visitordesk/internal/logging"
	"visitordesk/internal/metrics"
	"visitordesk/internal/ocr"
	"visitordesk/internal/overdue"
	"visitordesk/internal/queue"
	"visitordesk/internal/registration"
	"visitordesk/internal/schedule"
	"visitordesk/internal/session"
	"visitordesk/internal/store"
	"visitordesk/internal/verify"
)

func main() {
	cfg := config.Load()
	log := logging.Setup(cfg.LogLevel)

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App, log *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Warnf("db not reachable: %v", err)
	}
	defer func() { _ = db.Close() }()

	redisClient := store.NewRedis(cfg.RedisAddr)
	m := metrics.New(prometheus.DefaultRegisterer)

	// A memory queue is drained by a consumer inside this process.
	var (
		q       queue.Queue
		inProcQ *queue.InMemory
	)
	if cfg.QueueBackend == "memory" {
		inProcQ = queue.NewInMemory(256)
		q = inProcQ
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	var j journal.Journal = journal.NewMemory()
	if db.Healthy(ctx) {
		repo := journal.NewRepository(db.Client)
		if err := repo.EnsureSchema(ctx); err != nil {
			logging.LogError(log, "main", "runHTTP", "journal schema", nil, err)
		} else {
			j = repo
		}
	}

	var (
		sessions session.Store
		drafts   registration.DraftStore
		guard    registration.DuplicateGuard
		latch    overdue.Latch
		lock     overdue.Locker
	)
	if cfg.StateBackend == "memory" {
		sessions = session.NewMemoryStore()
		drafts = registration.NewMemoryDrafts()
		guard = registration.NewMemoryGuard()
		latch = overdue.NewMemoryLatch()
	} else {
		sessions = session.NewRedisStore(redisClient)
		drafts = registration.NewRedisDrafts(redisClient, cfg.DraftTTL)
		guard = registration.NewRedisGuard(redisClient)
		latch = overdue.NewRedisLatch(redisClient.Client, 24*time.Hour)
		lock = overdue.NewRedisLocker(redisClient.Client, cfg.OverdueInterval)
	}

	client := backend.New(cfg.UpstreamURL, cfg.UpstreamTimeout)
	service := serviceAccount(ctx, cfg, client, log)

	var notifier overdue.Notifier = overdue.DirectNotifier{Backend: service, Timeout: cfg.UpstreamTimeout}
	if cfg.OverdueDelivery == "queue" {
		notifier = overdue.QueueNotifier{Queue: q}
	}
	withOverdue := make(map[desk.PageKind]bool)
	for _, p := range cfg.OverduePages {
		withOverdue[desk.PageKind(p)] = true
	}

	pages := make(map[desk.PageKind]*desk.Page)
	for _, kind := range []desk.PageKind{desk.PageGuard, desk.PageOffice, desk.PageAdmin} {
		pc := desk.PageConfig{
			Fetcher:      service,
			Clock:        schedule.System{},
			PollInterval: cfg.PollInterval,
			RefreshSeen:  cfg.PollRefreshSeen,
			Metrics:      m,
			Log:          log,
		}
		if withOverdue[kind] {
			pc.Overdue = &desk.OverdueConfig{
				Notifier:  notifier,
				Interval:  cfg.OverdueInterval,
				Threshold: cfg.OverdueThreshold,
				Latch:     latch,
				Lock:      lock,
			}
		}
		pages[kind] = desk.NewPage(kind, pc)
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Warnf("face service not available: %v", err)
		}
	}
	gate := &verify.Gate{
		Faces:     face,
		Threshold: cfg.FaceThreshold,
		Window:    cfg.VerifyWindow,
		Interval:  cfg.VerifyInterval,
		Metrics:   m,
		Log:       log,
	}
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		gate.Uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Infof("cloudinary configured: %s", cfg.CloudinaryCloudName)
	} else {
		log.Info("cloudinary not configured, captures are sent inline")
	}

	loc := cfg.Location()
	svc := &desk.Service{
		Backend:      func(token string) desk.Backend { return client.WithToken(token) },
		Pages:        pages,
		Gate:         gate,
		Camera:       camera.NewSnapshot(cfg.CameraSnapshotURL),
		Journal:      j,
		Queue:        q,
		OverdueAfter: cfg.OverdueThreshold,
		Location:     loc,
		Metrics:      m,
		Log:          log,
	}

	cal := registration.NewCalendar(cfg.Holidays, registration.NewNagerSource(cfg.HolidayAPIURL, cfg.HolidayCountry), loc)
	cal.Log = log
	wizard := &registration.Wizard{
		Backend:  service,
		Calendar: cal,
		Drafts:   drafts,
		Guard:    guard,
		Names:    ocr.NameReader{Reader: ocr.New()},
		Metrics:  m,
		Log:      log,
	}

	server := &api.Server{
		Tokens: api.TokenConfig{
			SigningKey: cfg.JWTSigningKey,
			Issuer:     cfg.JWTIssuer,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
		Upstream: func(token string) api.Upstream { return client.WithToken(token) },
		Sessions: sessions,
		Desk:     svc,
		Wizard:   wizard,
		Journal:  j,
		Log:      log,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLog(log, "/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go limiter.RunPruner(ctx, time.Minute)
	r.Use(limiter.GinMiddleware())
	r.Use(httpmiddleware.Observe(m))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy && (cfg.StateBackend != "memory" || cfg.QueueBackend != "memory") {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})
	server.Register(r)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.Run(ctx)
	}()
	if inProcQ != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := queue.Serve(ctx, inProcQ, service, time.Second, m, log); err != nil {
				logging.LogError(log, "main", "runHTTP", "in-process queue consumer", nil, err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("desk listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down desk")

	cancel()
	wg.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server forced shutdown: %v", err)
	}
	log.Info("desk exited")
	return nil
}

// serviceAccount is the identity the pollers, the overdue scan and the
// wizard use. A configured token is tried first; credentials, when set,
// refresh it whenever the backend rejects it.
func serviceAccount(ctx context.Context, cfg config.App, client *backend.Client, log *logrus.Logger) *backend.ServiceAccount {
	acct := backend.NewServiceAccount(client, cfg.UpstreamToken, backend.Credentials{
		Username: cfg.UpstreamUsername,
		Password: cfg.UpstreamPassword,
	})
	if cfg.UpstreamToken != "" || cfg.UpstreamUsername == "" {
		return acct
	}
	loginCtx, cancel := context.WithTimeout(ctx, cfg.UpstreamTimeout)
	defer cancel()
	if err := acct.Login(loginCtx); err != nil {
		logging.LogError(log, "main", "serviceAccount", "service account login", cfg.UpstreamUsername, err)
	}
	return acct
}
