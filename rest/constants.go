package rest

type EndpointMethod string

const (
	MethodHEAD   EndpointMethod = "Head"
	MethodGET    EndpointMethod = "Get"
	MethodPOST   EndpointMethod = "Post"
	MethodPUT    EndpointMethod = "Put"
	MethodPATCH  EndpointMethod = "Patch"
	MethodDELETE EndpointMethod = "Delete"
)

type ParamLocation string

const (
	InQuery  ParamLocation = "query"
	InPath   ParamLocation = "path"
	InHeader ParamLocation = "header"
)

type ParamType string

const (
	ParamTypeString   ParamType = "string"
	ParamTypeInt      ParamType = "int"
	ParamTypeBool     ParamType = "bool"
	ParamTypeDateTime ParamType = "datetime"
	ParamTypeObjectID ParamType = "objectid"
	ParamTypeFilter   ParamType = "filter" // combined {where, sort, fields, skip, limit}
	ParamTypeWhere    ParamType = "where"
	ParamTypeSort     ParamType = "sort"
	ParamTypeFields   ParamType = "fields"
)

type ActionType string

const (
	ActionTypeRead      ActionType = "read"
	ActionTypeCreate    ActionType = "create"
	ActionTypeUpdate    ActionType = "update"
	ActionTypeDelete    ActionType = "delete"
	ActionTypeAggregate ActionType = "aggregate"
)
