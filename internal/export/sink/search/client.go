package search

import (
	"context"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const pingTimeout = 5 * time.Second

// Connect builds a cluster client and checks that the cluster answers.
func Connect(ctx context.Context, addresses []string, username, password string) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("create search client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	res, err := esapi.InfoRequest{}.Do(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("ping search cluster: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("ping search cluster: %s", res.Status())
	}
	return client, nil
}
