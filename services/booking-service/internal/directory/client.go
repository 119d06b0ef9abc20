// Package directory wraps the DirectoryService gRPC client with call timeouts.
package directory

import (
	"context"
	"time"

	"github.com/repromitra/telehealth/libs/rpc/directoryrpc"
	"google.golang.org/grpc"
)

type Client struct {
	rpc     *directoryrpc.Client
	timeout time.Duration
}

func New(conn grpc.ClientConnInterface, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{rpc: directoryrpc.NewClient(conn), timeout: timeout}
}

func (c *Client) GetDoctor(ctx context.Context, id string) (directoryrpc.Doctor, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.rpc.GetDoctor(ctx, id)
}
