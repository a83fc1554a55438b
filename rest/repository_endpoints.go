package rest

import (
	"net/http"
	"strings"

	"github.com/xompass/vsaas-docrepo/database"
	"github.com/xompass/vsaas-docrepo/http_errors"
	"github.com/xompass/vsaas-docrepo/jsonq"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type RepositoryEndpointsOptions struct {
	ReadOnly         bool
	DisableAggregate bool
	Public           bool
	Normalize        map[string][]string
	Sanitize         map[string][]string
	RateLimiter      func(*EndpointContext) RateLimit
}

var filterParams = []Param{
	NewQueryParam("filter", ParamTypeFilter),
	NewQueryParam("where", ParamTypeWhere),
	NewQueryParam("sort", ParamTypeSort),
	NewQueryParam("fields", ParamTypeFields),
	NewQueryParam("skip", ParamTypeInt),
	NewQueryParam("limit", ParamTypeInt),
}

// RepositoryEndpoints builds the CRUD endpoints of a repository, relative
// to the group it is registered in:
//
//	GET    /            list, accepts filter, where, sort, fields, skip and limit
//	GET    /count       count, accepts where
//	GET    /:id         find by key
//	POST   /            insert one document or a list
//	POST   /aggregate   run a pipeline
//	PATCH  /:id         partial update
//	DELETE /:id         remove
func RepositoryEndpoints(name string, repo database.Repository, opts ...RepositoryEndpointsOptions) []*Endpoint {
	var options RepositoryEndpointsOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	endpoint := func(ep *Endpoint) *Endpoint {
		ep.Model = name
		ep.Public = options.Public
		ep.RateLimiter = options.RateLimiter
		ep.Normalize = options.Normalize
		ep.Sanitize = options.Sanitize
		return ep
	}

	endpoints := []*Endpoint{
		endpoint(&Endpoint{
			Name:       name + ".find",
			Method:     MethodGET,
			Path:       "",
			ActionType: ActionTypeRead,
			Accepts:    filterParams,
			Handler:    findHandler(repo),
		}),
		endpoint(&Endpoint{
			Name:       name + ".count",
			Method:     MethodGET,
			Path:       "/count",
			ActionType: ActionTypeRead,
			Accepts:    []Param{NewQueryParam("where", ParamTypeWhere)},
			Handler:    countHandler(repo),
		}),
		endpoint(&Endpoint{
			Name:       name + ".findById",
			Method:     MethodGET,
			Path:       "/:id",
			ActionType: ActionTypeRead,
			Accepts:    []Param{NewPathParam("id", ParamTypeString, true), NewQueryParam("fields", ParamTypeFields)},
			Handler:    findByIdHandler(repo),
		}),
	}

	if !options.DisableAggregate {
		endpoints = append(endpoints, endpoint(&Endpoint{
			Name:       name + ".aggregate",
			Method:     MethodPOST,
			Path:       "/aggregate",
			ActionType: ActionTypeAggregate,
			Handler:    aggregateHandler(repo),
		}))
	}

	if options.ReadOnly {
		return endpoints
	}

	return append(endpoints,
		endpoint(&Endpoint{
			Name:       name + ".create",
			Method:     MethodPOST,
			Path:       "",
			ActionType: ActionTypeCreate,
			Handler:    createHandler(repo),
		}),
		endpoint(&Endpoint{
			Name:       name + ".update",
			Method:     MethodPATCH,
			Path:       "/:id",
			ActionType: ActionTypeUpdate,
			Accepts:    []Param{NewPathParam("id", ParamTypeString, true)},
			Handler:    updateHandler(repo),
		}),
		endpoint(&Endpoint{
			Name:       name + ".delete",
			Method:     MethodDELETE,
			Path:       "/:id",
			ActionType: ActionTypeDelete,
			Accepts:    []Param{NewPathParam("id", ParamTypeString, true)},
			Handler:    deleteHandler(repo),
		}),
	)
}

// RegisterRepository mounts the endpoints of a repository under /name
func (receiver *RestApp) RegisterRepository(name string, repo database.Repository, opts ...RepositoryEndpointsOptions) error {
	return receiver.RegisterEndpoints(RepositoryEndpoints(name, repo, opts...), receiver.Group("/"+name))
}

func findHandler(repo database.Repository) func(ctx *EndpointContext) error {
	return func(ctx *EndpointContext) error {
		filter := ctx.Filter()
		docs, err := database.Await(func(cb database.Callback[[]bson.M]) error {
			return repo.Find(ctx.Context(), filter.Where, filter.Options(), cb)
		})
		if err != nil {
			return err
		}
		return ctx.JSON(docs)
	}
}

func countHandler(repo database.Repository) func(ctx *EndpointContext) error {
	return func(ctx *EndpointContext) error {
		count, err := database.Await(func(cb database.Callback[int64]) error {
			return repo.Count(ctx.Context(), ctx.Filter().Where, cb)
		})
		if err != nil {
			return err
		}
		return ctx.JSON(Count{Count: count})
	}
}

func findByIdHandler(repo database.Repository) func(ctx *EndpointContext) error {
	return func(ctx *EndpointContext) error {
		doc, err := findById(ctx, repo, ctx.Filter().Options())
		if err != nil {
			return err
		}
		return ctx.JSON(doc)
	}
}

func findById(ctx *EndpointContext, repo database.Repository, opts database.Options) (bson.M, error) {
	id := ctx.ParsedPath["id"]
	doc, err := database.Await(func(cb database.Callback[bson.M]) error {
		return repo.FindOneById(ctx.Context(), id, opts, cb)
	})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, http_errors.NotFoundError("Document not found")
	}
	return doc, nil
}

func createHandler(repo database.Repository) func(ctx *EndpointContext) error {
	return func(ctx *EndpointContext) error {
		docs, many, err := ctx.Documents()
		if err != nil {
			return err
		}

		converted := make([]bson.M, 0, len(docs))
		for _, doc := range docs {
			if err := repo.Validate(doc, false); err != nil {
				return err
			}
			nativeDoc, err := repo.ConvertValues(doc)
			if err != nil {
				return err
			}
			converted = append(converted, nativeDoc)
		}

		inserted, err := database.Await(func(cb database.Callback[[]bson.M]) error {
			return repo.Insert(ctx.Context(), converted, cb)
		})
		if err != nil {
			return err
		}

		if many {
			return ctx.JSON(inserted, http.StatusCreated)
		}
		return ctx.JSON(inserted[0], http.StatusCreated)
	}
}

func updateHandler(repo database.Repository) func(ctx *EndpointContext) error {
	return func(ctx *EndpointContext) error {
		docs, many, err := ctx.Documents()
		if err != nil {
			return err
		}
		if many {
			return http_errors.BadRequestError("Invalid request body", "expected a single document")
		}

		delta := docs[0]
		for key := range delta {
			if strings.HasPrefix(key, "$") {
				return http_errors.BadRequestError("Invalid request body", "update operators are not accepted")
			}
		}

		if err := repo.Validate(delta, true); err != nil {
			return err
		}
		nativeDelta, err := repo.ConvertValues(delta)
		if err != nil {
			return err
		}

		query, err := repo.IdQuery(ctx.ParsedPath["id"])
		if err != nil {
			return err
		}
		if _, err := database.Await(func(cb database.Callback[int64]) error {
			return repo.Update(ctx.Context(), query, nativeDelta, cb)
		}); err != nil {
			return err
		}

		doc, err := findById(ctx, repo, database.Options{})
		if err != nil {
			return err
		}
		return ctx.JSON(doc)
	}
}

func deleteHandler(repo database.Repository) func(ctx *EndpointContext) error {
	return func(ctx *EndpointContext) error {
		query, err := repo.IdQuery(ctx.ParsedPath["id"])
		if err != nil {
			return err
		}
		removed, err := database.Await(func(cb database.Callback[int64]) error {
			return repo.Remove(ctx.Context(), query, true, cb)
		})
		if err != nil {
			return err
		}
		if removed == 0 {
			return http_errors.NotFoundError("Document not found")
		}
		return ctx.NoContent()
	}
}

func aggregateHandler(repo database.Repository) func(ctx *EndpointContext) error {
	return func(ctx *EndpointContext) error {
		body, err := ctx.Body()
		if err != nil {
			return err
		}

		pipeline, err := jsonq.ParsePipeline(string(body))
		if err != nil {
			return http_errors.BadRequestError("Invalid pipeline", err.Error())
		}

		docs, err := database.Await(func(cb database.Callback[[]bson.M]) error {
			return repo.Aggregate(ctx.Context(), pipeline, cb)
		})
		if err != nil {
			return err
		}
		return ctx.JSON(docs)
	}
}
