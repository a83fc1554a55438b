package rest

import (
	"errors"
	"net/http"

	"github.com/karagenc/fj4echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/xompass/vsaas-docrepo/database"
	"github.com/xompass/vsaas-docrepo/http_errors"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func NewEchoApp(app *RestApp) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger = app.Logger

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())
	if app.options.BodyLimit != "" {
		e.Use(middleware.BodyLimit(app.options.BodyLimit))
	}

	e.JSONSerializer = fj4echo.New()
	e.HTTPErrorHandler = errorHandler(app)

	return e
}

func errorHandler(app *RestApp) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		response := toErrorResponse(err)
		if response.Code >= http.StatusInternalServerError {
			app.Errorf("%s %s: %v", c.Request().Method, c.Request().URL.Path, err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(response.Code)
		} else {
			err = c.JSON(response.Code, response)
		}
		if err != nil {
			app.Errorf("Cannot send error response: %v", err)
		}
	}
}

// toErrorResponse maps repository and transport errors to the response sent
// to clients. Store errors other than duplicate keys are not exposed.
func toErrorResponse(err error) *http_errors.ErrorResponse {
	var errResponse *http_errors.ErrorResponse
	if errors.As(err, &errResponse) {
		return errResponse
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return http_errors.NewErrorResponse(httpErr.Code, http.StatusText(httpErr.Code))
	}

	var validationErr *database.ValidationError
	if errors.As(err, &validationErr) {
		details := make(map[string]string, len(validationErr.Fields))
		for _, field := range validationErr.Fields {
			details[field.Field] = field.Message
		}
		return http_errors.UnprocessableEntityError("Invalid document", details)
	}

	switch {
	case database.IsTypeError(err, ""), database.IsArityError(err):
		return http_errors.BadRequestError(err.Error())
	case errors.Is(err, database.ErrMixedUpdate), errors.Is(err, database.ErrEmptyUpdate):
		return http_errors.BadRequestError(err.Error())
	case database.IsDuplicateKey(err):
		return http_errors.ConflictError("Duplicate key")
	case errors.Is(err, mongo.ErrNoDocuments), errors.Is(err, mongo.ErrFileNotFound):
		return http_errors.NotFoundError("Not found")
	}

	return http_errors.InternalServerError("Internal Server Error")
}
