package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"examboard/pkg/protocol"
	"examboard/pkg/types"
)

// receiptScript replies to every upload with the given receipt and echoes
// progress ticks back as acks, the way the live server does.
func receiptScript(s *scriptServer, receipt types.ReceiptPayload) {
	s.onFrame = func(conn *websocket.Conn, env *protocol.Envelope) {
		switch env.Event {
		case types.EventUploadFileToAdmin:
			var payload types.UploadFilePayload
			if err := env.Unmarshal(&payload); err != nil {
				s.t.Errorf("decode upload: %v", err)
				return
			}
			r := receipt
			r.Filename = payload.Filename
			s.send(conn, types.EventFileReceived, r)
		case types.EventUploadProgress:
			var payload types.ProgressPayload
			if err := env.Unmarshal(&payload); err != nil {
				return
			}
			s.send(conn, types.EventUploadProgressAck, payload)
		}
	}
}

func TestUploadSucceeds(t *testing.T) {
	s := newScriptServer(t)
	receiptScript(s, types.ReceiptPayload{Message: "file received", Timestamp: time.Now().UnixMilli()})
	c := dialTest(t, s, testOptions())

	result, err := c.Upload(context.Background(), "exam_result.txt", []byte("answers"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !result.Succeeded {
		t.Fatalf("result = %+v, want success", result)
	}

	outcome, ok := c.State().Outcome("exam_result.txt")
	if !ok || outcome.Status != OutcomeSucceeded {
		t.Errorf("outcome = %+v, want succeeded", outcome)
	}
	if _, ok := c.State().Progress("exam_result.txt"); ok {
		t.Error("progress should be cleared after the receipt")
	}
	if got := c.State().Unread(); got != 1 {
		t.Errorf("unread = %d, want exactly 1", got)
	}

	// The payload on the wire carried the whole file, encoded.
	s.mu.Lock()
	var filedata string
	for _, f := range s.frames {
		if f.env.Event == types.EventUploadFileToAdmin {
			var payload types.UploadFilePayload
			f.env.Unmarshal(&payload)
			filedata = payload.Filedata
		}
	}
	s.mu.Unlock()
	decoded, err := protocol.DecodeFiledata(filedata)
	if err != nil {
		t.Fatalf("decode wire payload: %v", err)
	}
	if string(decoded) != "answers" {
		t.Errorf("wire payload = %q, want the original bytes", decoded)
	}
}

func TestUploadServerErrorSurfacedVerbatim(t *testing.T) {
	s := newScriptServer(t)
	receiptScript(s, types.ReceiptPayload{Error: "disk full", Timestamp: time.Now().UnixMilli()})
	c := dialTest(t, s, testOptions())

	result, err := c.Upload(context.Background(), "exam_42.txt", []byte("answers"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if result.Succeeded {
		t.Fatal("transfer should be failed")
	}
	if result.Reason != "disk full" {
		t.Errorf("reason = %q, want the server string verbatim", result.Reason)
	}
	outcome, _ := c.State().Outcome("exam_42.txt")
	if outcome.Status != OutcomeFailed || outcome.Reason != "disk full" {
		t.Errorf("outcome = %+v, want failed with verbatim reason", outcome)
	}
}

func TestUploadEmptyFileFailsFast(t *testing.T) {
	s := newScriptServer(t)
	c := dialTest(t, s, testOptions())

	if _, err := c.Upload(context.Background(), "empty.txt", nil); err != ErrEmptyFile {
		t.Fatalf("err = %v, want ErrEmptyFile", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := s.countEvent(types.EventUploadFileToAdmin); got != 0 {
		t.Errorf("server saw %d upload frames, want none", got)
	}
}

func TestUploadRejectsBadFilename(t *testing.T) {
	s := newScriptServer(t)
	c := dialTest(t, s, testOptions())

	if _, err := c.Upload(context.Background(), "../escape.txt", []byte("x")); err == nil {
		t.Fatal("expected a filename validation error")
	}
	time.Sleep(20 * time.Millisecond)
	if got := s.countEvent(types.EventUploadFileToAdmin); got != 0 {
		t.Errorf("server saw %d upload frames, want none", got)
	}
}

func TestUploadWhileDisconnectedFailsFast(t *testing.T) {
	s := newScriptServer(t)
	opts := testOptions()
	opts.RetryLimit = 1
	c := dialTest(t, s, opts)

	s.Close()
	waitFor(t, func() bool { return !c.Connected() }, "client never noticed the drop")

	if _, err := c.Upload(context.Background(), "offline.txt", []byte("x")); err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestUploadReceiptTimeout(t *testing.T) {
	s := newScriptServer(t)
	// No script: the server swallows the upload and never answers.
	opts := testOptions()
	opts.ReceiptTimeout = 50 * time.Millisecond
	c := dialTest(t, s, opts)

	_, err := c.Upload(context.Background(), "stuck.txt", []byte("x"))
	if err != ErrReceiptTimeout {
		t.Fatalf("err = %v, want ErrReceiptTimeout", err)
	}
	outcome, ok := c.State().Outcome("stuck.txt")
	if !ok || outcome.Status != OutcomeFailed {
		t.Errorf("outcome = %+v, want failed", outcome)
	}
	if got := c.State().Unread(); got != 0 {
		t.Errorf("unread = %d, a local timeout is not an arrival", got)
	}
}

func TestUploadDuplicateInFlightRejected(t *testing.T) {
	s := newScriptServer(t)
	opts := testOptions()
	opts.ReceiptTimeout = 200 * time.Millisecond
	c := dialTest(t, s, opts)

	var wg sync.WaitGroup
	wg.Add(1)
	errCh := make(chan error, 1)
	go func() {
		defer wg.Done()
		_, err := c.Upload(context.Background(), "same.txt", []byte("x"))
		errCh <- err
	}()

	waitFor(t, func() bool {
		return s.countEvent(types.EventUploadFileToAdmin) == 1
	}, "first upload never started")

	if _, err := c.Upload(context.Background(), "same.txt", []byte("y")); err != ErrUploadInFlight {
		t.Fatalf("err = %v, want ErrUploadInFlight", err)
	}
	wg.Wait()
	if err := <-errCh; err != ErrReceiptTimeout {
		t.Errorf("first upload err = %v, want the timeout", err)
	}
}

func TestUploadProgressTicksIncrease(t *testing.T) {
	s := newScriptServer(t)

	var mu sync.Mutex
	var ticks []int
	release := make(chan struct{})
	var once sync.Once
	s.onFrame = func(conn *websocket.Conn, env *protocol.Envelope) {
		switch env.Event {
		case types.EventUploadProgress:
			var payload types.ProgressPayload
			if err := env.Unmarshal(&payload); err != nil {
				return
			}
			mu.Lock()
			ticks = append(ticks, payload.Progress)
			n := len(ticks)
			mu.Unlock()
			s.send(conn, types.EventUploadProgressAck, payload)
			if n >= 3 {
				once.Do(func() { close(release) })
			}
		case types.EventUploadFileToAdmin:
			go func() {
				<-release
				s.send(conn, types.EventFileReceived, types.ReceiptPayload{
					Filename:  "paced.txt",
					Message:   "file received",
					Timestamp: time.Now().UnixMilli(),
				})
			}()
		}
	}
	c := dialTest(t, s, testOptions())

	result, err := c.Upload(context.Background(), "paced.txt", []byte("x"))
	if err != nil || !result.Succeeded {
		t.Fatalf("upload = %+v, %v", result, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) < 3 {
		t.Fatalf("saw %d progress ticks, want at least 3", len(ticks))
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] <= ticks[i-1] {
			t.Fatalf("ticks %v are not strictly increasing", ticks)
		}
	}
}

func TestUploadCancelledByContext(t *testing.T) {
	s := newScriptServer(t)
	c := dialTest(t, s, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Upload(ctx, "cancelled.txt", []byte("x")); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
