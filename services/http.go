package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	log "github.com/sirupsen/logrus"

	_ "github.com/varnstead/gatewall/docs"
	"github.com/varnstead/gatewall/dto"
	"github.com/varnstead/gatewall/shared"
)

type HttpService struct {
	context.DefaultService

	classifierSvc *ClassifierService
	authSvc       *AuthService
	settingsSvc   *SettingsService
	eventSvc      *EventStoreService
	counterSvc    *RateCounterService
	retentionSvc  *RetentionService
	emailSvc      *EmailService

	port int
	app  *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.classifierSvc = svc.Service(CLASSIFIER_SVC).(*ClassifierService)
	svc.authSvc = svc.Service(AUTH_SVC).(*AuthService)
	svc.settingsSvc = svc.Service(SETTINGS_SVC).(*SettingsService)
	svc.eventSvc = svc.Service(EVENT_STORE_SVC).(*EventStoreService)
	svc.counterSvc = svc.Service(RATE_COUNTER_SVC).(*RateCounterService)
	svc.retentionSvc = svc.Service(RETENTION_SVC).(*RetentionService)
	svc.emailSvc = svc.Service(EMAIL_SVC).(*EmailService)

	app := fiber.New(fiber.Config{
		ErrorHandler: svc.handleError,
	})
	app.Use(recover.New())

	app.Get("/ping", svc.ping)
	app.Get("/swagger/*", swagger.HandlerDefault)

	v1 := app.Group("/api/v1")
	admin := v1.Group("/admin")
	admin.Post("/login", svc.login)

	protected := admin.Group("", svc.authSvc.RequiredAuth())
	protected.Get("/stats", svc.stats)
	protected.Get("/settings", svc.settings)
	protected.Post("/retention/run", svc.runRetention)
	protected.Post("/notifications/test", svc.testNotification)
	protected.Delete("/events", svc.wipeEvents)
	protected.Get("/limits/:ip", svc.limitStatus)
	protected.Delete("/limits/:ip", svc.resetLimit)

	// Everything below passes through the classification pipeline.
	app.Use(svc.classifierSvc.Guard())
	app.All("/*", svc.passthrough)

	svc.app = app
	return app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.app != nil {
		_ = svc.app.Shutdown()
	}
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")
	return shared.ResponseOK(c, "pong")
}

func (svc *HttpService) passthrough(c *fiber.Ctx) error {
	data := fiber.Map{"status": "allowed"}
	if ip, ok := c.Locals(shared.ClientIP).(string); ok {
		data["client_ip"] = ip
	}
	return shared.ResponseOK(c, data)
}

// @Summary Operator login
// @Description Exchanges the operator key for a bearer token
// @Tags admin
// @Accept  json
// @Produce json
// @Param loginRequest body dto.LoginRequest true "Login request"
// @Success 200 {object} shared.Response{data=dto.LoginResponse}
// @Router /api/v1/admin/login [post]
func (svc *HttpService) login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request")
	}

	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.CreateValidationErrorResponse(err))
	}

	res, err := svc.authSvc.Login(req)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, res)
}

// @Summary Guard statistics
// @Description Event counts by status over the requested window
// @Tags admin
// @Produce json
// @Param window query int false "Window in minutes (default 60)"
// @Success 200 {object} shared.Response{data=dto.StatsResponse}
// @Router /api/v1/admin/stats [get]
func (svc *HttpService) stats(c *fiber.Ctx) error {
	windowMinutes := c.QueryInt("window", 60)
	if windowMinutes <= 0 {
		windowMinutes = 60
	}

	counts, err := svc.eventSvc.CountsByStatusSince(time.Duration(windowMinutes) * time.Minute)
	if err != nil {
		return err
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	return shared.ResponseOK(c, dto.StatsResponse{
		WindowMinutes: windowMinutes,
		ByStatus:      counts,
		TotalEvents:   total,
		Timestamp:     time.Now().UTC(),
	})
}

// @Summary Effective guard settings
// @Tags admin
// @Produce json
// @Success 200 {object} shared.Response{data=dto.GuardSettings}
// @Router /api/v1/admin/settings [get]
func (svc *HttpService) settings(c *fiber.Ctx) error {
	return shared.ResponseOK(c, svc.settingsSvc.Snapshot())
}

// @Summary Run retention cleanup
// @Description Deletes events past the retention horizon, honoring the guard interval
// @Tags admin
// @Produce json
// @Success 200 {object} shared.Response{data=dto.RetentionResponse}
// @Router /api/v1/admin/retention/run [post]
func (svc *HttpService) runRetention(c *fiber.Ctx) error {
	res, err := svc.retentionSvc.RunCleanup()
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, res)
}

// @Summary Wipe the event log
// @Tags admin
// @Produce json
// @Success 200 {object} shared.Response{data=dto.WipeResponse}
// @Router /api/v1/admin/events [delete]
func (svc *HttpService) wipeEvents(c *fiber.Ctx) error {
	deleted, err := svc.eventSvc.WipeAll()
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, dto.WipeResponse{Deleted: deleted})
}

// @Summary Reset cached counters for an IP
// @Tags admin
// @Produce json
// @Param ip path string true "IP address"
// @Success 200
// @Router /api/v1/admin/limits/{ip} [delete]
func (svc *HttpService) resetLimit(c *fiber.Ctx) error {
	ip := c.Params("ip")
	if ip == "" {
		return shared.ResponseBadRequest(c, "Missing IP")
	}

	if err := svc.counterSvc.Reset(c.UserContext(), ip); err != nil {
		return err
	}

	return shared.ResponseOK(c, nil)
}

// @Summary Rolling counts for an IP
// @Description Cached rolling-window counts per stat window, keyed by window minutes
// @Tags admin
// @Produce json
// @Param ip path string true "IP address"
// @Success 200 {object} shared.Response{data=dto.LimitStatusResponse}
// @Router /api/v1/admin/limits/{ip} [get]
func (svc *HttpService) limitStatus(c *fiber.Ctx) error {
	ip := c.Params("ip")
	if ip == "" {
		return shared.ResponseBadRequest(c, "Missing IP")
	}

	counts := make(map[string]int64, len(statWindows))
	for _, w := range statWindows {
		n, err := svc.counterSvc.GetCount(c.UserContext(), ip, w)
		if err != nil {
			return err
		}
		counts[strconv.Itoa(int(w.Minutes()))] = n
	}

	return shared.ResponseOK(c, dto.LimitStatusResponse{IP: ip, Counts: counts})
}

// @Summary Send a test alert email
// @Description Verifies the SMTP configuration by mailing the sender address
// @Tags admin
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /api/v1/admin/notifications/test [post]
func (svc *HttpService) testNotification(c *fiber.Ctx) error {
	if err := svc.emailSvc.TestEmailConfig(); err != nil {
		return shared.NewInternalError(err, "Email configuration test failed")
	}

	return shared.ResponseOK(c, "test email sent")
}

func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	if err == nil {
		return nil
	}

	if appErr, ok := shared.GetAppError(err); ok {
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}

	if e, ok := err.(*fiber.Error); ok {
		return shared.ResponseJSON(c, e.Code, e.Message, nil)
	}

	log.WithError(err).Error("Unhandled request error")
	return shared.ResponseInternalError(c, err)
}
