package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vostoklab/workshop_backend/config"
	"github.com/vostoklab/workshop_backend/models"
	"github.com/vostoklab/workshop_backend/notifier"
	"github.com/vostoklab/workshop_backend/session"
	"github.com/vostoklab/workshop_backend/utils"
	"github.com/vostoklab/workshop_backend/workflow"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("workshop-backend")

var validate = validator.New()

// Set in main() after Redis is connected; the readiness gate keeps requests
// out until then.
var returnFlow *workflow.ReturnFlow

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination: handle SIGTERM for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP; until DB/Redis are ready we return 503
	// for app endpoints.
	r := gin.New()

	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})

	// Actor identity: the chat front-end forwards who is acting so audit
	// rows carry the user.
	r.Use(func(c *gin.Context) {
		ctx := c.Request.Context()
		if v := c.GetHeader("x-telegram-id"); v != "" {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				ctx = utils.SetTelegramIdInContext(ctx, id)
			}
		}
		if v := c.GetHeader("x-telegram-username"); v != "" {
			ctx = utils.SetTelegramUsernameInContext(ctx, v)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil || returnFlow == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Deny all when not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-telegram-id", "x-telegram-username")
	r.Use(cors.New(corsConfig))

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	// Receipts.
	r.GET("/receipts", getReceiptsHandler)
	r.POST("/receipts", getOrCreateReceiptHandler)
	r.GET("/receipts/:id", getReceiptHandler)
	r.PUT("/receipts/:id/deadline", updateDeadlineHandler)
	r.GET("/receipts/:id/history", getHistoryHandler)
	r.GET("/receipts/:id/returns", getReturnsByReceiptHandler)
	r.GET("/receipts/:id/reminders", getRemindersByReceiptHandler)
	r.GET("/receipts/:id/operations", getOperationsByReceiptHandler)
	r.GET("/receipts/:id/polishing", getPolishingDetailsHandler)
	r.POST("/receipts/:id/polishing/return", markPolishingReturnedHandler)
	r.POST("/receipts/:id/otk-pass", otkPassHandler)
	r.GET("/history/:id", getHistoryEventHandler)

	// Returns and reference data.
	r.GET("/returns/reasons", getReturnReasonsHandler)
	r.GET("/returns/:id", getReturnHandler)
	r.POST("/returns", createReturnHandler)

	// Reminders (kept for parity with the external chat front-end; the
	// in-process dispatcher is the normal delivery path).
	r.GET("/notifications/pending", getPendingNotificationsHandler)
	r.POST("/notifications/:id/mark-sent", markNotificationSentHandler)

	// Employees and workflow-stage records.
	r.GET("/employees", getEmployeesHandler)
	r.POST("/employees", createEmployeeHandler)
	r.PUT("/employees/:id/active", setEmployeeActiveHandler)
	r.POST("/operations", createOperationHandler)
	r.POST("/polishing", sendToPolishingHandler)

	// Return conversation flow, driven by discrete chat actions.
	flow := r.Group("/flow/return/:chat_id")
	flow.POST("/start", flowStartHandler)
	flow.POST("/receipt", flowSetReceiptHandler)
	flow.POST("/choose-return", flowChooseReturnHandler)
	flow.POST("/toggle-reason", flowToggleReasonHandler)
	flow.POST("/finish-reasons", flowFinishReasonsHandler)
	flow.POST("/role", flowChooseRoleHandler)
	flow.POST("/responsible", flowChooseResponsibleHandler)
	flow.POST("/confirm", flowConfirmHandler)
	flow.POST("/another", flowStartAnotherHandler)
	flow.POST("/cancel", flowCancelHandler)
	flow.GET("", flowGetHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Scheduler correctness rests on the single cancel+insert transaction;
	// READ COMMITTED is enough for readers to see old-set-or-new-set.
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	returnFlow = workflow.NewReturnFlow(
		session.NewRedisStore(config.GetRedisDB(), "return_flow"),
		logger,
	)

	// Start the reminder dispatcher.
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	dispatcher := workflow.NewReminderDispatcher(
		models.NewReminderDB(db),
		notifier.NewTelegramNotifier(os.Getenv("TELEGRAM_BOT_TOKEN"), 10*time.Second),
		logger,
		recipientsFromEnv(logger),
	)
	dispatcher.Locker = config.GetRedisLock()
	go dispatcher.Run(dispatcherCtx)

	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop the dispatcher first; its in-flight tick still finishes.
	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// recipientsFromEnv parses NOTIFY_RECIPIENT_IDS, a comma-separated list of
// chat ids that receive deadline reminders.
func recipientsFromEnv(logger *logrus.Logger) []int64 {
	raw := strings.TrimSpace(os.Getenv("NOTIFY_RECIPIENT_IDS"))
	if raw == "" {
		logger.WithFields(logrus.Fields{"field": "dispatcher"}).Warn("NOTIFY_RECIPIENT_IDS not set; reminders stay pending")
		return nil
	}
	var recipients []int64
	for _, part := range splitAndTrim(raw) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "dispatcher", "value": part}).Warn("skipping malformed recipient id")
			continue
		}
		recipients = append(recipients, id)
	}
	return recipients
}

// customErrorLogger logs only requests that produced errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
