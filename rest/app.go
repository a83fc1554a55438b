package rest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-errors/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
	"github.com/xompass/vsaas-docrepo/database"
	"github.com/xompass/vsaas-docrepo/helpers"
)

type RestAppOptions struct {
	Name       string
	Port       uint16
	Datasource *database.Datasource
	// LogLevel defaults to APP_LOG_LEVEL, then log.INFO
	LogLevel          log.Lvl
	EnableRateLimiter bool
	// RedisOptions configures the rate limiter store. When nil the
	// REDIS_HOST, REDIS_PORT, REDIS_PASSWORD and REDIS_DB variables are used.
	RedisOptions *redis.Options
	Authorizer   Authorizer
	// BodyLimit caps request bodies, e.g. "2M"
	BodyLimit string
}

type RestApp struct {
	EchoApp     *echo.Echo
	Datasource  *database.Datasource
	Logger      *log.Logger
	redisClient *redis.Client
	options     RestAppOptions
	environment string
	authorizer  Authorizer
}

func NewRestApp(appOptions RestAppOptions) *RestApp {
	name := appOptions.Name
	if name == "" {
		name = "rest"
	}

	logger := log.New(name)
	if appOptions.LogLevel == 0 {
		appOptions.LogLevel = ParseLogLevel(helpers.GetEnv("APP_LOG_LEVEL", "info"))
	}
	logger.SetLevel(appOptions.LogLevel)

	app := &RestApp{
		Datasource: appOptions.Datasource,
		Logger:     logger,
		options:    appOptions,
		authorizer: appOptions.Authorizer,
	}

	app.EchoApp = NewEchoApp(app)

	if appOptions.EnableRateLimiter {
		app.redisClient = newRedisClient(appOptions.RedisOptions)
	}

	return app
}

// ParseLogLevel maps debug, info, warn, error and off to gommon levels.
// Unknown names fall back to INFO.
func ParseLogLevel(level string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	}
	return log.INFO
}

func (receiver *RestApp) GetEnvironment() string {
	if receiver.environment == "" {
		env, ok := os.LookupEnv("APP_ENV")
		if !ok {
			env = "development"
		}
		receiver.environment = strings.ToLower(env)
	}

	return receiver.environment
}

func (receiver *RestApp) Debugf(format string, args ...any) {
	receiver.Logger.Debugf(format, args...)
}

func (receiver *RestApp) Infof(format string, args ...any) {
	receiver.Logger.Infof(format, args...)
}

func (receiver *RestApp) Warnf(format string, args ...any) {
	receiver.Logger.Warnf(format, args...)
}

func (receiver *RestApp) Errorf(format string, args ...any) {
	receiver.Logger.Errorf(format, args...)
}

func (receiver *RestApp) Authorize(ctx *EndpointContext) error {
	if receiver.authorizer == nil {
		return nil
	}

	principal, err := receiver.authorizer(ctx)
	if err != nil {
		receiver.Debugf("Authorization error: %v", err)
		return err
	}

	ctx.Principal = principal
	return nil
}

// Destroy closes the rate limiter store and disconnects the datasource
func (receiver *RestApp) Destroy() error {
	if receiver == nil {
		return nil
	}

	var firstErr error
	if receiver.redisClient != nil {
		firstErr = receiver.redisClient.Close()
	}

	if receiver.Datasource != nil {
		if err := receiver.Datasource.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (receiver *RestApp) Start() error {
	return receiver.EchoApp.Start(fmt.Sprint(":", receiver.options.Port))
}

func (receiver *RestApp) Shutdown(ctx context.Context) error {
	return receiver.EchoApp.Shutdown(ctx)
}

func (receiver *RestApp) Group(path string, m ...echo.MiddlewareFunc) *echo.Group {
	return receiver.EchoApp.Group(path, m...)
}

func (receiver *RestApp) RegisterEndpoint(ep *Endpoint, router *echo.Group) error {
	if ep == nil {
		return nil
	}

	var executor func(path string, handler echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	switch ep.Method {
	case MethodGET:
		executor = router.GET
	case MethodHEAD:
		executor = router.HEAD
	case MethodPOST:
		executor = router.POST
	case MethodPUT:
		executor = router.PUT
	case MethodPATCH:
		executor = router.PATCH
	case MethodDELETE:
		executor = router.DELETE
	default:
		return errors.Errorf("unsupported HTTP method %s for endpoint %s", ep.Method, ep.Name)
	}

	ep.app = receiver
	executor(ep.Path, ep.run)
	receiver.Debugf("Registered %s %s (%s)", strings.ToUpper(string(ep.Method)), ep.Path, ep.Name)
	return nil
}

func (receiver *RestApp) RegisterEndpoints(endpoints []*Endpoint, router *echo.Group) error {
	for _, ep := range endpoints {
		if err := receiver.RegisterEndpoint(ep, router); err != nil {
			return err
		}
	}
	return nil
}
