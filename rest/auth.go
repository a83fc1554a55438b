package rest

type Principal interface {
	GetPrincipalID() string
	GetPrincipalRole() string
}

// Authorizer resolves the principal of a request. A nil principal with a
// nil error lets anonymous requests through; returning an error rejects the
// request.
type Authorizer func(*EndpointContext) (Principal, error)
