package rest

type Count struct {
	Count int64 `json:"count"`
} // @name CountResponse

type Deleted struct {
	Deleted int64 `json:"deleted"`
} // @name DeletedResponse
