package search

import (
	"net/http"
	"time"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

// Transport performs HTTP requests against the search cluster. *elasticsearch.Client satisfies it.
type Transport interface {
	Perform(req *http.Request) (*http.Response, error)
}

type Metrics interface {
	Observe(operation string, err error, started time.Time)
}
