package store

import (
	"context"
	"fmt"

	valkey "github.com/valkey-io/valkey-go"
)

// NewValkeyClient connects to a valkey (Redis-compatible) server.
// addr example: "127.0.0.1:6379".
func NewValkeyClient(ctx context.Context, addr string) (valkey.Client, error) {
	cli, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("store: valkey %s: %w", addr, err)
	}
	if err := cli.Do(ctx, cli.B().Ping().Build()).Error(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("store: valkey ping: %w", err)
	}
	return cli, nil
}
