package client

import (
	"context"
	"time"

	"examboard/pkg/protocol"
	"examboard/pkg/types"
)

// UploadResult is the terminal outcome of one transfer.
type UploadResult struct {
	Filename  string
	Succeeded bool
	// Reason carries the server's error string verbatim on failure.
	Reason string
}

// Upload sends a whole file as one message and blocks until the receipt
// arrives, the receipt timeout fires, or ctx is cancelled. Progress ticks are
// synthetic: they pace the progress bar, not the bytes on the wire.
//
// Preconditions fail fast with no frame sent: empty content, an invalid
// filename, a dead socket, or a transfer for the same filename still waiting
// on its receipt. A failed transfer is never retried automatically.
func (c *Client) Upload(ctx context.Context, filename string, contents []byte) (UploadResult, error) {
	failed := UploadResult{Filename: filename}

	if len(contents) == 0 {
		return failed, ErrEmptyFile
	}
	if !types.IsValidFilename(filename) {
		return failed, types.ErrInvalidFilename
	}
	if !c.Connected() {
		return failed, ErrNotConnected
	}

	receiptCh, err := c.registerTransfer(filename)
	if err != nil {
		return failed, err
	}
	defer c.forgetTransfer(filename)
	c.state.ClearOutcome(filename)

	payload := types.UploadFilePayload{
		Filename: filename,
		Filedata: protocol.EncodeFiledata(contents),
	}
	if err := c.Emit(types.EventUploadFileToAdmin, payload); err != nil {
		return failed, err
	}

	tickerDone := make(chan struct{})
	defer close(tickerDone)
	go c.emitProgress(filename, tickerDone)

	select {
	case receipt := <-receiptCh:
		if receipt.Error != "" {
			failed.Reason = receipt.Error
			return failed, nil
		}
		return UploadResult{Filename: filename, Succeeded: true}, nil
	case <-time.After(c.opts.ReceiptTimeout):
		c.state.FailLocally(filename, ErrReceiptTimeout.Error())
		return failed, ErrReceiptTimeout
	case <-ctx.Done():
		return failed, ctx.Err()
	case <-c.done:
		return failed, ErrClientClosed
	}
}

func (c *Client) registerTransfer(filename string) (chan types.ReceiptPayload, error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if _, exists := c.pending[filename]; exists {
		return nil, ErrUploadInFlight
	}
	ch := make(chan types.ReceiptPayload, 1)
	c.pending[filename] = ch
	return ch, nil
}

func (c *Client) forgetTransfer(filename string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	delete(c.pending, filename)
}

// resolveTransfer hands a receipt to the waiting Upload call, if any. An
// unsolicited receipt, one for somebody else's file relayed to an admin
// console, simply has no waiter.
func (c *Client) resolveTransfer(receipt types.ReceiptPayload) {
	c.pendingMu.Lock()
	ch, ok := c.pending[receipt.Filename]
	if ok {
		delete(c.pending, receipt.Filename)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- receipt
	}
}

// emitProgress fabricates a 10-step progress ramp, one tick per interval,
// stopping early when the transfer resolves. The server echoes each tick as
// an ack, which is what actually lands in local state.
func (c *Client) emitProgress(filename string, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.ProgressInterval)
	defer ticker.Stop()

	for percent := 10; percent <= 100; percent += 10 {
		select {
		case <-done:
			return
		case <-c.done:
			return
		case <-ticker.C:
		}
		payload := types.ProgressPayload{Filename: filename, Progress: percent}
		if err := c.Emit(types.EventUploadProgress, payload); err != nil {
			return
		}
	}
}
