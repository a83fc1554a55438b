package rest

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xompass/vsaas-docrepo/http_errors"
	"github.com/xompass/vsaas-docrepo/jsonq"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type EndpointContext struct {
	App          *RestApp
	EchoCtx      echo.Context
	Endpoint     *Endpoint
	ParsedQuery  map[string]any
	ParsedPath   map[string]any
	ParsedHeader map[string]any
	IpAddress    string
	Principal    Principal
	body         []byte
}

// Context returns the request context. Repository calls made by handlers
// are cancelled with the request.
func (ctx *EndpointContext) Context() context.Context {
	return ctx.EchoCtx.Request().Context()
}

// Filter merges the combined filter parameter with the where, sort,
// fields, skip and limit parameters. The individual parameters win.
func (ctx *EndpointContext) Filter() *jsonq.Filter {
	filter := &jsonq.Filter{}
	if parsed, ok := ctx.ParsedQuery["filter"].(*jsonq.Filter); ok && parsed != nil {
		*filter = *parsed
	}

	if where, ok := ctx.ParsedQuery["where"].(bson.M); ok {
		filter.Where = where
	}
	if sort, ok := ctx.ParsedQuery["sort"].(bson.D); ok {
		filter.Sort = sort
	}
	if fields, ok := ctx.ParsedQuery["fields"].(bson.D); ok {
		filter.Fields = fields
	}
	if skip, ok := ctx.ParsedQuery["skip"].(int64); ok {
		filter.Skip = skip
	}
	if limit, ok := ctx.ParsedQuery["limit"].(int64); ok {
		filter.Limit = limit
	}

	return filter
}

// Body returns the raw request body. It can be read more than once.
func (ctx *EndpointContext) Body() ([]byte, error) {
	if ctx.body != nil {
		return ctx.body, nil
	}

	request := ctx.EchoCtx.Request()
	if request.Body == nil {
		return nil, http_errors.BadRequestError("Request body cannot be empty")
	}

	body, err := io.ReadAll(request.Body)
	if err != nil {
		return nil, http_errors.BadRequestError("Cannot read request body", err.Error())
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, http_errors.BadRequestError("Request body cannot be empty")
	}

	ctx.body = body
	return body, nil
}

// Documents parses the body as one document or a list of documents, then
// applies the normalizers and sanitizers of the endpoint. many reports
// whether the body was a list.
func (ctx *EndpointContext) Documents() (docs []bson.M, many bool, err error) {
	body, err := ctx.Body()
	if err != nil {
		return nil, false, err
	}

	docs, err = jsonq.ParseDocuments(body)
	if err != nil {
		return nil, false, http_errors.BadRequestError("Invalid request body", err.Error())
	}

	for _, doc := range docs {
		if err := ProcessDocument(doc, OperatorNormalize, ctx.Endpoint.Normalize); err != nil {
			return nil, false, err
		}
		if err := ProcessDocument(doc, OperatorSanitize, ctx.Endpoint.Sanitize); err != nil {
			return nil, false, err
		}
	}

	return docs, bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")), nil
}

// JSON sends a JSON response
func (ctx *EndpointContext) JSON(response any, statusCode ...int) error {
	status := http.StatusOK
	if len(statusCode) > 0 {
		status = statusCode[0]
	}

	return ctx.EchoCtx.JSON(status, response)
}

// NoContent sends a 204 No Content response
func (ctx *EndpointContext) NoContent() error {
	return ctx.EchoCtx.NoContent(http.StatusNoContent)
}

// Get retrieves a value from the context by key
func (ctx *EndpointContext) Get(key string) any {
	return ctx.EchoCtx.Get(key)
}

// Set allows setting a value in the context
func (ctx *EndpointContext) Set(key string, value any) {
	ctx.EchoCtx.Set(key, value)
}
