package rest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xompass/vsaas-docrepo/http_errors"
	"github.com/xompass/vsaas-docrepo/jsonq"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type RateLimit struct {
	Max    int
	Window time.Duration
	Key    string
}

type Param struct {
	in        ParamLocation
	name      string
	paramType ParamType
	required  bool
	Parser    func(string) (any, error)
}

func newParam(in ParamLocation, name string, paramType ParamType, required []bool) Param {
	return Param{
		in:        in,
		name:      name,
		paramType: paramType,
		required:  len(required) > 0 && required[0],
	}
}

func NewQueryParam(name string, paramType ParamType, required ...bool) Param {
	return newParam(InQuery, name, paramType, required)
}

func NewPathParam(name string, paramType ParamType, required ...bool) Param {
	return newParam(InPath, name, paramType, required)
}

func NewHeaderParam(name string, paramType ParamType, required ...bool) Param {
	return newParam(InHeader, name, paramType, required)
}

type Endpoint struct {
	Name        string
	Method      EndpointMethod
	Path        string
	Handler     func(c *EndpointContext) error
	Disabled    bool                             // Disabled endpoints answer 404
	Public      bool                             // Public endpoints skip the authorizer
	RateLimiter func(*EndpointContext) RateLimit // Optional per request rate limit
	ActionType  ActionType
	Model       string // Repository or resource name, used for logging
	Accepts     []Param

	// Normalize and Sanitize map dotted document paths to the processors
	// applied to the request documents, e.g. {"email": {"trim", "lowercase"}}
	Normalize map[string][]string
	Sanitize  map[string][]string

	app *RestApp
}

func (ep *Endpoint) run(c echo.Context) error {
	if ep.Disabled {
		return http_errors.NotFoundError("Endpoint not found")
	}

	ctx := &EndpointContext{
		EchoCtx:   c,
		Endpoint:  ep,
		App:       ep.app,
		IpAddress: c.RealIP(),
	}

	if err := parseAllParams(ep, ctx); err != nil {
		return err
	}

	if !ep.Public {
		if err := ep.app.Authorize(ctx); err != nil {
			return err
		}
	}

	if err := checkRateLimit(ctx); err != nil {
		return err
	}

	return ep.Handler(ctx)
}

func parseAllParams(ep *Endpoint, ctx *EndpointContext) error {
	ctx.ParsedQuery = map[string]any{}
	ctx.ParsedPath = map[string]any{}
	ctx.ParsedHeader = map[string]any{}

	for _, param := range ep.Accepts {
		value, err := parseParam(ctx, param)
		if err != nil {
			return err
		}
		if value == nil {
			continue
		}

		switch param.in {
		case InQuery:
			ctx.ParsedQuery[param.name] = value
		case InPath:
			ctx.ParsedPath[param.name] = value
		case InHeader:
			ctx.ParsedHeader[param.name] = value
		}
	}
	return nil
}

func parseParam(ctx *EndpointContext, param Param) (any, error) {
	var raw string
	switch param.in {
	case InQuery:
		raw = ctx.EchoCtx.QueryParam(param.name)
	case InPath:
		raw = ctx.EchoCtx.Param(param.name)
	case InHeader:
		raw = ctx.EchoCtx.Request().Header.Get(param.name)
	}

	if raw == "" {
		if param.required {
			return nil, http_errors.BadRequestError("Missing parameter", fmt.Sprintf("Parameter %s is required", param.name))
		}
		return nil, nil
	}

	if param.Parser != nil {
		value, err := param.Parser(raw)
		if err != nil {
			return nil, invalidParam(param, err.Error())
		}
		return value, nil
	}

	switch param.paramType {
	case ParamTypeString:
		return raw, nil
	case ParamTypeInt:
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value < 0 {
			return nil, invalidParam(param, "must be a non-negative integer")
		}
		return value, nil
	case ParamTypeBool:
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, invalidParam(param, "must be a boolean")
		}
		return value, nil
	case ParamTypeDateTime:
		value, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, invalidParam(param, "must be a datetime in the format YYYY-MM-DDTHH:MM:SSZ")
		}
		return value, nil
	case ParamTypeObjectID:
		oid, err := bson.ObjectIDFromHex(raw)
		if err != nil {
			return nil, invalidParam(param, "must be a valid ObjectID")
		}
		return oid, nil
	case ParamTypeFilter:
		filter, err := jsonq.ParseFilter(raw)
		if err != nil {
			return nil, invalidParam(param, err.Error())
		}
		return filter, nil
	case ParamTypeWhere:
		where, err := jsonq.ParseQuery(raw)
		if err != nil {
			return nil, invalidParam(param, err.Error())
		}
		return where, nil
	case ParamTypeSort:
		sort, err := jsonq.ParseSort(raw)
		if err != nil {
			return nil, invalidParam(param, err.Error())
		}
		return sort, nil
	case ParamTypeFields:
		fields, err := jsonq.ParseFields(raw)
		if err != nil {
			return nil, invalidParam(param, err.Error())
		}
		return fields, nil
	}

	return nil, http_errors.InternalServerError("Invalid parameter type", "Parameter "+param.name+" has an invalid type")
}

func invalidParam(param Param, reason string) error {
	return http_errors.BadRequestError("Invalid parameter", fmt.Sprintf("Parameter %s %s", param.name, reason))
}
