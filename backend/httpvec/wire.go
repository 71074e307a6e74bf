// Package httpvec is the REST backend: an adapter speaking a small JSON
// API over httpclient, and a gin handler serving that API from any
// backend.Adapter.
//
// Routes:
//
//	POST   /indexes                          create index
//	GET    /indexes                          list indexes
//	GET    /indexes/:index                   describe index
//	DELETE /indexes/:index                   delete index
//	GET    /indexes/:index/stats             index statistics
//	GET    /indexes/:index/namespaces        list namespaces
//	POST   /indexes/:index/vectors/upsert    upsert vectors
//	POST   /indexes/:index/vectors/fetch     fetch vectors by id
//	POST   /indexes/:index/vectors/update    update one vector
//	POST   /indexes/:index/vectors/delete    delete vectors
//	POST   /indexes/:index/query             similarity query
//	POST   /indexes/:index/query/hybrid      hybrid query
//	POST   /indexes/:index/query/text        keyword query
package httpvec

import "github.com/stokry/vectra/backend"

// DefaultAPIKeyHeader header carrying the API key
const DefaultAPIKeyHeader = "Api-Key"

type upsertRequest struct {
	Namespace string           `json:"namespace"`
	Vectors   []backend.Vector `json:"vectors"`
}

type queryRequest struct {
	Namespace string `json:"namespace"`
	backend.Query
}

type hybridRequest struct {
	Namespace string `json:"namespace"`
	backend.HybridQuery
}

type textRequest struct {
	Namespace string `json:"namespace"`
	backend.TextQuery
}

type fetchRequest struct {
	Namespace string   `json:"namespace"`
	IDs       []string `json:"ids"`
}

type fetchResponse struct {
	Vectors map[string]backend.Vector `json:"vectors"`
}

type updateRequest struct {
	Namespace string `json:"namespace"`
	backend.Update
}

type deleteRequest struct {
	Namespace string `json:"namespace"`
	backend.DeleteRequest
}

type listIndexesResponse struct {
	Indexes []string `json:"indexes"`
}

type listNamespacesResponse struct {
	Namespaces []string `json:"namespaces"`
}

type errorResponse struct {
	Code    int            `json:"code"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}
