package sim

import (
	"context"
	"io"

	"github.com/pithecene-io/cellsolve/host"
)

// Attach serves w in-process over a pair of pipes and returns a client
// connected to it. Stop closes the client and returns the Serve error.
func Attach(ctx context.Context, w *Workbook) (client *host.Client, srv *host.Server, stop func() error) {
	callR, callW := io.Pipe()
	replyR, replyW := io.Pipe()

	srv = host.NewServer(w)
	done := make(chan error, 1)
	go func() {
		err := srv.Serve(ctx, callR, replyW)
		_ = replyW.Close()
		_ = callR.Close()
		done <- err
	}()

	client = host.NewClient(replyR, callW)
	return client, srv, func() error {
		_ = client.Close()
		return <-done
	}
}
