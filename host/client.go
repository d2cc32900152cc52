package host

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/cellsolve/ipc"
	"github.com/pithecene-io/cellsolve/types"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("host client closed")

// Client is a Host speaking the ipc frame protocol over a byte stream.
// It sends one frame and blocks for the matching reply; there is no
// timeout at this layer.
type Client struct {
	enc    *ipc.FrameEncoder
	dec    *ipc.FrameDecoder
	closer io.Closer
	nextID uint64
	broken error
	closed bool
}

var _ Host = (*Client)(nil)

// NewClient creates a client reading replies from r and writing calls to w.
// If w implements io.Closer it is closed by Close.
func NewClient(r io.Reader, w io.Writer) *Client {
	c := &Client{
		enc: ipc.NewFrameEncoder(w),
		dec: ipc.NewFrameDecoder(r),
	}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// Call implements Host.
func (c *Client) Call(ctx context.Context, proc string, args ...types.Variant) (Reply, error) {
	id, err := c.begin(ctx)
	if err != nil {
		return Reply{}, err
	}
	if err := c.enc.WriteFrame(ipc.NewCall(id, proc, args...)); err != nil {
		return Reply{}, c.fail(fmt.Errorf("send %s: %w", proc, err))
	}
	reply, err := c.await(id)
	if err != nil {
		return Reply{}, fmt.Errorf("call %s: %w", proc, err)
	}
	return Reply{
		Status: Status(reply.Status),
		Value:  reply.Value,
		Handle: reply.Handle,
		Detail: reply.Error,
	}, nil
}

// Free implements Host.
func (c *Client) Free(ctx context.Context, handle uint64) error {
	id, err := c.begin(ctx)
	if err != nil {
		return err
	}
	if err := c.enc.WriteFrame(ipc.NewFree(id, handle)); err != nil {
		return c.fail(fmt.Errorf("send free %d: %w", handle, err))
	}
	reply, err := c.await(id)
	if err != nil {
		return fmt.Errorf("free %d: %w", handle, err)
	}
	if Status(reply.Status) != StatusSuccess {
		return fmt.Errorf("free %d: host status %s: %s", handle, Status(reply.Status), reply.Error)
	}
	return nil
}

// Close closes the write side, which ends the host's serve loop.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func (c *Client) begin(ctx context.Context) (uint64, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if c.broken != nil {
		return 0, c.broken
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.nextID++
	return c.nextID, nil
}

// await reads frames until the reply for id arrives. Any other frame
// means the peers disagree about the conversation, which is fatal.
func (c *Client) await(id uint64) (*ipc.ReplyFrame, error) {
	payload, err := c.dec.ReadFrame()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, c.fail(err)
	}
	frame, err := ipc.DecodeFrame(payload)
	if err != nil {
		return nil, err
	}
	reply, ok := frame.(*ipc.ReplyFrame)
	if !ok {
		return nil, c.fail(fmt.Errorf("unexpected %T from host", frame))
	}
	if reply.ID != id {
		return nil, c.fail(fmt.Errorf("reply id %d does not match call id %d", reply.ID, id))
	}
	return reply, nil
}

// fail marks the stream unusable after a fatal error.
func (c *Client) fail(err error) error {
	if c.broken == nil {
		c.broken = err
	}
	return err
}
