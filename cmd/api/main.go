package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hadirku/internal/attendance"
	"hadirku/internal/auth"
	"hadirku/internal/config"
	"hadirku/internal/httpmiddleware"
	"hadirku/internal/notify"
	"hadirku/internal/photo"
	"hadirku/internal/queue"
	"hadirku/internal/roster"
	"hadirku/internal/settings"
	"hadirku/internal/store"
	"hadirku/internal/syncbridge"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

type app struct {
	cfg        config.App
	rosterRepo *roster.Repository
	ledger     *attendance.Repository
	settings   *settings.Repository
	svc        *attendance.Service
	sync       *syncbridge.Client
	notifier   *notify.Notifier
	photos     *photo.Client
	jobs       queue.Queue
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := store.Migrate(ctx, db.Client); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var jobs queue.Queue
	if cfg.QueueBackend == "memory" {
		jobs = queue.NewInMemory(64)
	} else {
		jobs = queue.NewRedisQueue(redisClient.Client, "hadirku:jobs")
	}

	syncClient := syncbridge.New(syncbridge.Config{
		BaseURL:  cfg.MirrorBaseURL,
		APIKey:   cfg.MirrorAPIKey,
		Enabled:  cfg.MirrorEnabled,
		HubURL:   cfg.HubURL,
		HubToken: cfg.HubToken,
	})

	a := &app{
		cfg:        cfg,
		rosterRepo: roster.NewRepository(db.Client),
		ledger:     attendance.NewRepository(db.Client),
		settings:   settings.NewRepository(db.Client),
		sync:       syncClient,
		jobs:       jobs,
		notifier: notify.New(notify.Config{
			Auto:             cfg.NotifyAuto,
			Method:           cfg.NotifyMethod,
			WhatsAppEndpoint: cfg.WhatsAppEndpoint,
			WhatsAppAPIKey:   cfg.WhatsAppAPIKey,
			TelegramBotToken: cfg.TelegramBotToken,
		}),
	}

	var mirror attendance.Mirror
	if syncClient.MirrorEnabled() {
		mirror = syncClient
	}
	a.svc = attendance.NewService(a.rosterRepo, a.ledger, a.settings, jobs, mirror,
		attendance.NewRedisDebouncer(redisClient.Client, cfg.ScanCooldown))

	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		a.photos = photo.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	// /metrics and /healthz stay outside the limiter so scrapes and probes
	// never burn request budget.
	limiter := httpmiddleware.NewStationLimiter(
		httpmiddleware.RedisCounter{Client: redisClient.Client}, cfg.RateLimitPerMin)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/stations/register", limiter.GinMiddleware(), a.registerStation)

	authGroup := r.Group("/v1", auth.StationAuth(cfg.JWTSigningKey, cfg.JWTIssuer), limiter.GinMiddleware())
	a.scanRoutes(authGroup)
	a.studentRoutes(authGroup)
	a.settingsRoutes(authGroup)
	a.backupRoutes(authGroup)
	a.notifyRoutes(authGroup)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	log.Println("Server exited")
	return nil
}

// registerStation issues tokens for a scanner station or admin console.
func (a *app) registerStation(c *gin.Context) {
	var req struct {
		StationID string `json:"station_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tokens, err := auth.Issue(req.StationID, "station", a.cfg.JWTIssuer, a.cfg.JWTSigningKey, a.cfg.AccessTTL, a.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (a *app) scanRoutes(g *gin.RouterGroup) {
	g.POST("/scan", func(c *gin.Context) {
		var req struct {
			Code   string `json:"code" binding:"required"`
			Method string `json:"method" binding:"required,oneof=QR RFID"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := a.svc.Scan(c.Request.Context(), req.Code, attendance.Method(req.Method))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		switch res.Kind {
		case attendance.ScanUnknown:
			c.JSON(http.StatusNotFound, res)
		case attendance.ScanRejected, attendance.ScanDebounced:
			c.JSON(http.StatusConflict, res)
		default:
			c.JSON(http.StatusOK, res)
		}
	})

	g.POST("/attendance/manual", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
			Date      string `json:"date" binding:"required"`
			Status    string `json:"status" binding:"required,oneof=Sick Permit Absent"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rec, err := a.svc.SetManualStatus(c.Request.Context(), req.StudentID, req.Date, attendance.Status(req.Status))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, attendance.ErrStudentNotFound) {
				status = http.StatusNotFound
			} else if errors.Is(err, attendance.ErrInvalidManualStatus) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"record": rec})
	})

	g.GET("/attendance/rollup", func(c *gin.Context) {
		date := c.Query("date")
		if date == "" {
			date = time.Now().Format(attendance.DateLayout)
		}
		if _, err := time.Parse(attendance.DateLayout, date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		rows, err := a.svc.Rollup(c.Request.Context(), date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"date": date, "rows": rows})
	})

	g.DELETE("/attendance", func(c *gin.Context) {
		if err := a.svc.ClearAll(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cleared": true})
	})

	g.GET("/attendance/unsynced", func(c *gin.Context) {
		n, err := a.ledger.UnsyncedCount(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"unsynced": n})
	})

	g.POST("/attendance/reconcile", func(c *gin.Context) {
		if !a.sync.MirrorEnabled() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "mirror not configured"})
			return
		}
		pushed, err := syncbridge.Reconcile(c.Request.Context(), a.sync, a.ledger)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pushed": pushed})
	})
}

func (a *app) studentRoutes(g *gin.RouterGroup) {
	type studentReq struct {
		Name          string `json:"name" binding:"required"`
		RollNumber    string `json:"roll_number" binding:"required"`
		ClassName     string `json:"class_name"`
		ParentContact string `json:"parent_contact"`
		RFIDTag       string `json:"rfid_tag"`
		PhotoURL      string `json:"photo_url"`
	}

	g.GET("/students", func(c *gin.Context) {
		students, err := a.rosterRepo.ListActive(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": students})
	})

	g.POST("/students", func(c *gin.Context) {
		var req studentReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		created, err := a.rosterRepo.Create(c.Request.Context(), roster.Student{
			Name: req.Name, RollNumber: req.RollNumber, ClassName: req.ClassName,
			ParentContact: req.ParentContact, RFIDTag: req.RFIDTag, PhotoURL: req.PhotoURL,
		})
		if err != nil {
			if errors.Is(err, roster.ErrRollNumberTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"student": created})
	})

	g.PUT("/students/:id", func(c *gin.Context) {
		var req studentReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updated, err := a.rosterRepo.Update(c.Request.Context(), roster.Student{
			ID: c.Param("id"), Name: req.Name, RollNumber: req.RollNumber, ClassName: req.ClassName,
			ParentContact: req.ParentContact, RFIDTag: req.RFIDTag, PhotoURL: req.PhotoURL,
		})
		if err != nil {
			switch {
			case errors.Is(err, roster.ErrRollNumberTaken):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, sql.ErrNoRows):
				c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"student": updated})
	})

	// Trash lifecycle: soft delete, list, restore, permanent purge. Purge
	// cascades to the students' ledger rows.
	bulk := func(action func(context.Context, []string) (int64, error)) gin.HandlerFunc {
		return func(c *gin.Context) {
			var req struct {
				IDs []string `json:"ids" binding:"required,min=1"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			n, err := action(c.Request.Context(), req.IDs)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"affected": n})
		}
	}

	g.GET("/students/trash", func(c *gin.Context) {
		students, err := a.rosterRepo.ListTrash(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": students})
	})
	g.POST("/students/trash", bulk(a.rosterRepo.SoftDelete))
	g.POST("/students/restore", bulk(a.rosterRepo.Restore))
	g.POST("/students/purge", bulk(a.rosterRepo.Purge))

	g.POST("/students/:id/photo", func(c *gin.Context) {
		if a.photos == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "photo storage not configured"})
			return
		}
		id := c.Param("id")
		student, err := a.rosterRepo.Get(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if student == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}

		var result *photo.UploadResult
		if strings.Contains(c.ContentType(), "multipart/form-data") {
			file, header, ferr := c.Request.FormFile("file")
			if ferr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
				return
			}
			defer file.Close()
			data, ferr := io.ReadAll(file)
			if ferr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
				return
			}
			result, err = a.photos.UploadBytes(data, header.Filename)
		} else {
			var body struct {
				Data string `json:"data" binding:"required"`
			}
			if berr := c.ShouldBindJSON(&body); berr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
				return
			}
			result, err = a.photos.UploadBase64(body.Data)
		}
		if err != nil {
			log.Printf("photo upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "photo upload failed"})
			return
		}

		if err := a.rosterRepo.SetPhotoURL(c.Request.Context(), id, result.SecureURL); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": result.SecureURL, "bytes": result.Bytes})
	})
}

func (a *app) settingsRoutes(g *gin.RouterGroup) {
	g.GET("/settings", func(c *gin.Context) {
		s, err := a.settings.Get(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s)
	})

	g.PUT("/settings", func(c *gin.Context) {
		var s settings.School
		if err := c.ShouldBindJSON(&s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := a.settings.Update(c.Request.Context(), s); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s)
	})
}

func (a *app) backupRoutes(g *gin.RouterGroup) {
	g.GET("/backup/export", func(c *gin.Context) {
		snap, err := a.buildSnapshot(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	g.POST("/backup/import", func(c *gin.Context) {
		var snap syncbridge.Snapshot
		if err := c.ShouldBindJSON(&snap); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if snap.Students == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "snapshot has no students"})
			return
		}
		if err := a.restoreSnapshot(c.Request.Context(), snap); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"restored": true})
	})

	remotePush := func(push func(context.Context, syncbridge.Snapshot) error) gin.HandlerFunc {
		return func(c *gin.Context) {
			snap, err := a.buildSnapshot(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if err := push(c.Request.Context(), snap); err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"pushed": true})
		}
	}
	remotePull := func(pull func(context.Context) (syncbridge.Snapshot, error)) gin.HandlerFunc {
		return func(c *gin.Context) {
			snap, err := pull(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			if err := a.restoreSnapshot(c.Request.Context(), snap); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"restored": true})
		}
	}

	g.POST("/backup/cloud/push", remotePush(a.sync.PushBackup))
	g.POST("/backup/cloud/pull", remotePull(a.sync.PullBackup))
	g.POST("/hub/sync", remotePush(a.sync.SyncToHub))
	g.POST("/hub/pull", remotePull(a.sync.PullFromHub))
}

func (a *app) notifyRoutes(g *gin.RouterGroup) {
	g.POST("/notify/test", func(c *gin.Context) {
		school, err := a.settings.Get(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		msg, err := a.notifier.TestGateway(c.Request.Context(), school.SchoolName)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": msg})
	})

	g.POST("/notify/announce", func(c *gin.Context) {
		var req struct {
			Message string `json:"message" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		school, err := a.settings.Get(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		students, err := a.rosterRepo.ListActive(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		sent, failed := a.notifier.Announce(c.Request.Context(), students, req.Message, school.SchoolName)
		c.JSON(http.StatusOK, gin.H{"sent": sent, "failed": failed})
	})
}

func (a *app) buildSnapshot(ctx context.Context) (syncbridge.Snapshot, error) {
	active, err := a.rosterRepo.ListActive(ctx)
	if err != nil {
		return syncbridge.Snapshot{}, err
	}
	trashed, err := a.rosterRepo.ListTrash(ctx)
	if err != nil {
		return syncbridge.Snapshot{}, err
	}
	records, err := a.ledger.All(ctx)
	if err != nil {
		return syncbridge.Snapshot{}, err
	}
	return syncbridge.Snapshot{
		Version:         syncbridge.SnapshotVersion,
		Timestamp:       time.Now().UTC(),
		Students:        active,
		Attendance:      records,
		DeletedStudents: trashed,
	}, nil
}

func (a *app) restoreSnapshot(ctx context.Context, snap syncbridge.Snapshot) error {
	if err := a.rosterRepo.ReplaceAll(ctx, snap.Students, snap.DeletedStudents); err != nil {
		return err
	}
	return a.ledger.ReplaceAll(ctx, snap.Attendance)
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
