package host

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pithecene-io/cellsolve/ipc"
	"github.com/pithecene-io/cellsolve/types"
)

// Handler runs one procedure on the host side. A non-nil error is
// reported to the caller as StatusFailed.
type Handler interface {
	HandleCall(ctx context.Context, proc string, args []types.Variant) (Status, types.Variant, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, proc string, args []types.Variant) (Status, types.Variant, error)

// HandleCall implements Handler.
func (f HandlerFunc) HandleCall(ctx context.Context, proc string, args []types.Variant) (Status, types.Variant, error) {
	return f(ctx, proc, args)
}

// Server is the host side of the frame protocol. Array results are
// handed out under a fresh handle that the caller must free; the server
// tracks outstanding handles so leaks and double frees are observable.
type Server struct {
	handler Handler

	mu          sync.Mutex
	nextHandle  uint64
	outstanding map[uint64]struct{}
	freed       int
	badFrees    int
}

// NewServer creates a server dispatching calls to h.
func NewServer(h Handler) *Server {
	return &Server{
		handler:     h,
		outstanding: make(map[uint64]struct{}),
	}
}

// Serve answers frames from r on w until r reaches EOF or ctx is done.
// A clean EOF returns nil.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	dec := ipc.NewFrameDecoder(r)
	enc := ipc.NewFrameEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		frame, err := ipc.DecodeFrame(payload)
		if err != nil {
			return err
		}

		var reply *ipc.ReplyFrame
		switch f := frame.(type) {
		case *ipc.CallFrame:
			reply = s.call(ctx, f)
		case *ipc.FreeFrame:
			reply = s.free(f)
		default:
			return errors.New("host: unexpected reply frame from client")
		}
		if err := enc.WriteFrame(reply); err != nil {
			return err
		}
	}
}

func (s *Server) call(ctx context.Context, f *ipc.CallFrame) *ipc.ReplyFrame {
	status, value, err := s.handler.HandleCall(ctx, f.Proc, f.Args)
	if err != nil {
		reply := ipc.NewReply(f.ID, int(StatusFailed), types.Missing(), 0)
		reply.Error = err.Error()
		return reply
	}

	var handle uint64
	if status == StatusSuccess && value.IsArray() {
		s.mu.Lock()
		s.nextHandle++
		handle = s.nextHandle
		s.outstanding[handle] = struct{}{}
		s.mu.Unlock()
	}
	return ipc.NewReply(f.ID, int(status), value, handle)
}

func (s *Server) free(f *ipc.FreeFrame) *ipc.ReplyFrame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outstanding[f.Handle]; !ok {
		s.badFrees++
		reply := ipc.NewReply(f.ID, int(StatusInvalidArgs), types.Missing(), 0)
		reply.Error = "unknown or already freed handle"
		return reply
	}
	delete(s.outstanding, f.Handle)
	s.freed++
	return ipc.NewReply(f.ID, int(StatusSuccess), types.Missing(), 0)
}

// HandleStats reports handle accounting.
type HandleStats struct {
	Outstanding int
	Freed       int
	BadFrees    int
}

// Handles returns the current handle accounting.
func (s *Server) Handles() HandleStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return HandleStats{Outstanding: len(s.outstanding), Freed: s.freed, BadFrees: s.badFrees}
}
