package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/cellsolve/types"
)

// encodeFrame encodes a payload with length prefix.
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

func TestFrameEncoder_CallRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)

	call := NewCall(7, "UpdateVars", types.Column([]float64{1, 2}), types.Missing(), types.Bool(true))
	if err := enc.WriteFrame(call); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	payload, err := NewFrameDecoder(&buf).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	result, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}

	decoded, ok := result.(*CallFrame)
	if !ok {
		t.Fatalf("DecodeFrame returned %T, want *CallFrame", result)
	}
	if decoded.ID != 7 || decoded.Proc != "UpdateVars" {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Args) != 3 {
		t.Fatalf("len(Args) = %d, want 3", len(decoded.Args))
	}
	if decoded.Args[0].At(1, 0).Num != 2 {
		t.Errorf("Args[0] = %s", decoded.Args[0])
	}
	if decoded.Args[1].Kind != types.KindMissing {
		t.Errorf("Args[1].Kind = %s, want missing", decoded.Args[1].Kind)
	}
	if !decoded.Args[2].Bool {
		t.Error("Args[2] = false, want true")
	}
}

func TestFrameDecoder_MixedFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)

	frames := []any{
		NewCall(1, "GetValues"),
		NewReply(1, 0, types.Row(types.Number(-1), types.ErrorValue(types.ErrDiv0)), 42),
		NewFree(2, 42),
		NewReply(2, 0, types.Missing(), 0),
	}
	for _, f := range frames {
		if err := enc.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	decoder := NewFrameDecoder(&buf)
	var got []any
	for {
		payload, err := decoder.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		frame, err := DecodeFrame(payload)
		if err != nil {
			t.Fatalf("DecodeFrame failed: %v", err)
		}
		got = append(got, frame)
	}

	if len(got) != len(frames) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(frames))
	}
	if _, ok := got[0].(*CallFrame); !ok {
		t.Errorf("frame 0 is %T, want *CallFrame", got[0])
	}
	reply, ok := got[1].(*ReplyFrame)
	if !ok {
		t.Fatalf("frame 1 is %T, want *ReplyFrame", got[1])
	}
	if reply.Handle != 42 || reply.Value.Len() != 2 {
		t.Errorf("reply = %+v", reply)
	}
	if reply.Value.At(0, 1).Kind != types.KindError {
		t.Errorf("reply element 1 kind = %s, want error", reply.Value.At(0, 1).Kind)
	}
	free, ok := got[2].(*FreeFrame)
	if !ok {
		t.Fatalf("frame 2 is %T, want *FreeFrame", got[2])
	}
	if free.Handle != 42 {
		t.Errorf("free.Handle = %d, want 42", free.Handle)
	}
}

func TestDecodeFrame_UnknownType(t *testing.T) {
	payload, err := msgpack.Marshal(map[string]any{"type": "event"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	_, err = DecodeFrame(payload)
	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorDecode {
		t.Errorf("Kind = %v, want FrameErrorDecode", frameErr.Kind)
	}
	if IsFatalFrameError(err) {
		t.Error("unknown frame type should not be fatal")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestFrameEncoder_WriteFailureIsFatal(t *testing.T) {
	err := NewFrameEncoder(failingWriter{}).WriteFrame(NewFree(1, 1))
	if !IsFatalFrameError(err) {
		t.Fatalf("expected fatal frame error, got: %v", err)
	}
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("expected wrapped io.ErrClosedPipe, got: %v", err)
	}
}

// TestFrameDecoder_PartialFrame validates fatal error for truncated frames.
// A truncated frame leaves the stream unusable and terminates the session.
func TestFrameDecoder_PartialFrame(t *testing.T) {
	payload, _ := msgpack.Marshal(NewCall(1, "RecalculateValues"))
	frame := encodeFrame(payload)

	// Truncate the frame (keep only length prefix + half payload)
	truncated := frame[:LengthPrefixSize+len(frame[LengthPrefixSize:])/2]

	decoder := NewFrameDecoder(bytes.NewReader(truncated))
	_, err := decoder.ReadFrame()

	if err == nil {
		t.Fatal("expected error for truncated frame")
	}

	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %v, want FrameErrorPartial", frameErr.Kind)
	}

	if !frameErr.IsFatal() {
		t.Error("FrameErrorPartial.IsFatal() should return true")
	}
}

// TestFrameDecoder_OversizedFrame validates fatal error for frames exceeding
// the 16 MiB limit.
func TestFrameDecoder_OversizedFrame(t *testing.T) {
	// Create a length prefix claiming a payload larger than MaxPayloadSize
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(MaxPayloadSize+1))

	decoder := NewFrameDecoder(&buf)
	_, err := decoder.ReadFrame()

	if err == nil {
		t.Fatal("expected error for oversized frame")
	}

	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("Kind = %v, want FrameErrorTooLarge", frameErr.Kind)
	}

	if !frameErr.IsFatal() {
		t.Error("FrameErrorTooLarge.IsFatal() should return true")
	}
}

func TestFrameDecoder_EmptyStream(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader(nil))
	_, err := decoder.ReadFrame()

	if err != io.EOF {
		t.Errorf("expected io.EOF, got: %v", err)
	}
}

// TestFrameDecoder_TruncatedLengthPrefix validates fatal error when length prefix is incomplete.
func TestFrameDecoder_TruncatedLengthPrefix(t *testing.T) {
	// Only 2 bytes instead of 4
	partial := []byte{0x00, 0x00}

	decoder := NewFrameDecoder(bytes.NewReader(partial))
	_, err := decoder.ReadFrame()

	if err == nil {
		t.Fatal("expected error for truncated length prefix")
	}

	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %v, want FrameErrorPartial", frameErr.Kind)
	}
}

// TestFrameDecoder_MalformedMsgpack validates decode error for invalid msgpack.
// Decode errors are non-fatal (the frame was read correctly, just couldn't decode).
func TestFrameDecoder_MalformedMsgpack(t *testing.T) {
	// Valid frame length prefix but garbage msgpack payload
	garbage := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	frame := encodeFrame(garbage)

	decoder := NewFrameDecoder(bytes.NewReader(frame))
	payload, err := decoder.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	// Decoding should fail
	_, err = DecodeFrame(payload)
	if err == nil {
		t.Fatal("expected decode error for malformed msgpack")
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorDecode {
		t.Errorf("Kind = %v, want FrameErrorDecode", frameErr.Kind)
	}

	// Decode errors are NOT fatal (frame was valid, content wasn't)
	if IsFatalFrameError(err) {
		t.Error("decode errors should not be fatal")
	}
}

// TestFrameError_ErrorMessage validates error message formatting.
func TestFrameError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *FrameError
		contains string
	}{
		{
			name:     "partial without underlying error",
			err:      &FrameError{Kind: FrameErrorPartial, Msg: "truncated"},
			contains: "truncated",
		},
		{
			name: "partial with underlying error",
			err: &FrameError{
				Kind: FrameErrorPartial,
				Msg:  "read failed",
				Err:  io.ErrUnexpectedEOF,
			},
			contains: "unexpected EOF",
		},
		{
			name:     "oversized",
			err:      &FrameError{Kind: FrameErrorTooLarge, Msg: "payload too big"},
			contains: "too big",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			if !bytes.Contains([]byte(msg), []byte(tt.contains)) {
				t.Errorf("error message %q does not contain %q", msg, tt.contains)
			}
		})
	}
}

// TestFrameError_Unwrap validates error unwrapping.
func TestFrameError_Unwrap(t *testing.T) {
	underlying := io.ErrUnexpectedEOF
	err := &FrameError{
		Kind: FrameErrorPartial,
		Msg:  "test",
		Err:  underlying,
	}

	if !errors.Is(err, underlying) {
		t.Error("Unwrap should allow errors.Is to find underlying error")
	}
}

// TestIsFatalFrameError_NonFrameError validates IsFatalFrameError with non-FrameError.
func TestIsFatalFrameError_NonFrameError(t *testing.T) {
	regularErr := errors.New("regular error")
	if IsFatalFrameError(regularErr) {
		t.Error("regular errors should not be fatal frame errors")
	}

	if IsFatalFrameError(nil) {
		t.Error("nil should not be a fatal frame error")
	}

	if IsFatalFrameError(io.EOF) {
		t.Error("io.EOF should not be a fatal frame error")
	}
}
