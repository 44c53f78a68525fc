package dap

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/go-dap"
)

// setupTimeout bounds session-establishment requests such as initialize
// and configurationDone. Capture-path requests take their deadline from
// the caller's context instead.
const setupTimeout = 30 * time.Second

// StoppedInfo describes why the debuggee stopped
type StoppedInfo struct {
	Reason      string
	ThreadID    int
	Description string
	AllStopped  bool
}

// Client provides the DAP operations varsnap uses. All capture-path methods
// take a context; a context deadline or cancellation abandons the wait for
// the response. The request itself is not retracted, DAP has no cancel for
// plain requests.
type Client struct {
	transport *Transport

	pendingRequests map[int]chan dap.Message
	mu              sync.Mutex

	capabilities dap.Capabilities

	initialized     chan struct{}
	initializedOnce sync.Once

	stoppedChan chan *StoppedInfo
	stoppedMu   sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a client over transport and starts its read loop.
func NewClient(transport *Transport) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:       transport,
		pendingRequests: make(map[int]chan dap.Message),
		initialized:     make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// readLoop continuously reads messages from the transport
func (c *Client) readLoop() {
	defer c.wg.Done()

	consecutiveErrors := 0
	const maxConsecutiveErrors = 5

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		msg, err := c.transport.Receive()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
				consecutiveErrors++
				log.Printf("DAP transport error (attempt %d/%d): %v", consecutiveErrors, maxConsecutiveErrors, err)
				if consecutiveErrors >= maxConsecutiveErrors {
					log.Printf("DAP transport: too many consecutive errors, stopping read loop")
					return
				}
				continue
			}
		}

		consecutiveErrors = 0
		c.handleMessage(msg)
	}
}

// handleMessage routes responses to their pending request and events to the
// stopped/initialized signals.
func (c *Client) handleMessage(msg dap.Message) {
	switch m := msg.(type) {
	case *dap.InitializedEvent:
		c.initializedOnce.Do(func() {
			close(c.initialized)
		})
		return
	case *dap.StoppedEvent:
		info := &StoppedInfo{
			Reason:      m.Body.Reason,
			ThreadID:    m.Body.ThreadId,
			Description: m.Body.Description,
			AllStopped:  m.Body.AllThreadsStopped,
		}
		c.stoppedMu.Lock()
		if c.stoppedChan != nil {
			select {
			case c.stoppedChan <- info:
			default:
				// Waiter's buffer full, drop
			}
		}
		c.stoppedMu.Unlock()
		return
	}

	if seq, ok := responseSeq(msg); ok {
		c.mu.Lock()
		if ch, ok := c.pendingRequests[seq]; ok {
			ch <- msg
			delete(c.pendingRequests, seq)
		}
		c.mu.Unlock()
	}
}

// responseSeq extracts the request sequence number from a response message.
func responseSeq(msg dap.Message) (int, bool) {
	switch m := msg.(type) {
	case *dap.InitializeResponse:
		return m.RequestSeq, true
	case *dap.LaunchResponse:
		return m.RequestSeq, true
	case *dap.AttachResponse:
		return m.RequestSeq, true
	case *dap.ConfigurationDoneResponse:
		return m.RequestSeq, true
	case *dap.DisconnectResponse:
		return m.RequestSeq, true
	case *dap.SetBreakpointsResponse:
		return m.RequestSeq, true
	case *dap.ContinueResponse:
		return m.RequestSeq, true
	case *dap.ThreadsResponse:
		return m.RequestSeq, true
	case *dap.StackTraceResponse:
		return m.RequestSeq, true
	case *dap.ScopesResponse:
		return m.RequestSeq, true
	case *dap.VariablesResponse:
		return m.RequestSeq, true
	case *dap.EvaluateResponse:
		return m.RequestSeq, true
	case *dap.ErrorResponse:
		return m.RequestSeq, true
	}
	return 0, false
}

// sendRequest sends req with a fresh sequence number and waits for its
// response until ctx is done.
func (c *Client) sendRequest(ctx context.Context, req dap.RequestMessage) (dap.Message, error) {
	seq := c.transport.NextSeq()
	setRequestSeq(req, seq)

	respCh := make(chan dap.Message, 1)
	c.mu.Lock()
	c.pendingRequests[seq] = respCh
	c.mu.Unlock()

	if err := c.transport.Send(req); err != nil {
		c.mu.Lock()
		delete(c.pendingRequests, seq)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pendingRequests, seq)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// setRequestSeq stamps the sequence number onto the request types we send.
func setRequestSeq(req dap.RequestMessage, seq int) {
	switch r := req.(type) {
	case *dap.InitializeRequest:
		r.Seq = seq
	case *dap.LaunchRequest:
		r.Seq = seq
	case *dap.AttachRequest:
		r.Seq = seq
	case *dap.ConfigurationDoneRequest:
		r.Seq = seq
	case *dap.DisconnectRequest:
		r.Seq = seq
	case *dap.SetBreakpointsRequest:
		r.Seq = seq
	case *dap.ContinueRequest:
		r.Seq = seq
	case *dap.ThreadsRequest:
		r.Seq = seq
	case *dap.StackTraceRequest:
		r.Seq = seq
	case *dap.ScopesRequest:
		r.Seq = seq
	case *dap.VariablesRequest:
		r.Seq = seq
	case *dap.EvaluateRequest:
		r.Seq = seq
	}
}

func newRequest(command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Type: "request"},
		Command:         command,
	}
}

// --- Session establishment ---

// Initialize performs the DAP handshake and records the adapter's
// capabilities.
func (c *Client) Initialize(clientID, clientName string) (*dap.InitializeResponse, error) {
	ctx, cancel := context.WithTimeout(c.ctx, setupTimeout)
	defer cancel()

	req := &dap.InitializeRequest{
		Request: newRequest("initialize"),
		Arguments: dap.InitializeRequestArguments{
			ClientID:             clientID,
			ClientName:           clientName,
			AdapterID:            "varsnap",
			Locale:               "en-US",
			LinesStartAt1:        true,
			ColumnsStartAt1:      true,
			PathFormat:           "path",
			SupportsVariableType: true,
		},
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	initResp, ok := resp.(*dap.InitializeResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	if !initResp.Success {
		return nil, fmt.Errorf("initialize failed: %s", initResp.Message)
	}

	c.capabilities = initResp.Body
	return initResp, nil
}

// WaitInitialized waits for the initialized event with a timeout.
func (c *Client) WaitInitialized(timeout time.Duration) error {
	select {
	case <-c.initialized:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for initialized event")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// sendRequestAsync sends req and returns the channel its response will
// arrive on, without waiting.
func (c *Client) sendRequestAsync(req dap.RequestMessage) (chan dap.Message, error) {
	seq := c.transport.NextSeq()
	setRequestSeq(req, seq)

	respCh := make(chan dap.Message, 1)
	c.mu.Lock()
	c.pendingRequests[seq] = respCh
	c.mu.Unlock()

	if err := c.transport.Send(req); err != nil {
		c.mu.Lock()
		delete(c.pendingRequests, seq)
		c.mu.Unlock()
		return nil, err
	}
	return respCh, nil
}

// LaunchAsync sends a launch request without waiting for the response.
// Some adapters (debugpy in particular) hold the launch response until
// configurationDone, so the caller must be free to finish configuration
// before collecting it with WaitForLaunchResponse.
func (c *Client) LaunchAsync(args map[string]interface{}) (chan dap.Message, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal launch args: %w", err)
	}

	return c.sendRequestAsync(&dap.LaunchRequest{
		Request:   newRequest("launch"),
		Arguments: argsJSON,
	})
}

// WaitForLaunchResponse waits for the launch response on the channel
// returned by LaunchAsync.
func (c *Client) WaitForLaunchResponse(respCh chan dap.Message, timeout time.Duration) (*dap.LaunchResponse, error) {
	select {
	case resp := <-respCh:
		switch r := resp.(type) {
		case *dap.LaunchResponse:
			if !r.Success {
				return nil, fmt.Errorf("launch failed: %s", r.Message)
			}
			return r, nil
		case *dap.ErrorResponse:
			return nil, fmt.Errorf("launch failed: %s", r.Message)
		default:
			return nil, fmt.Errorf("unexpected response type: %T", resp)
		}
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout waiting for launch response")
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// AttachAsync sends an attach request without waiting for the response,
// for adapters that hold it until configurationDone.
func (c *Client) AttachAsync(args map[string]interface{}) (chan dap.Message, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attach args: %w", err)
	}

	return c.sendRequestAsync(&dap.AttachRequest{
		Request:   newRequest("attach"),
		Arguments: argsJSON,
	})
}

// WaitForAttachResponse waits for the attach response on the channel
// returned by AttachAsync.
func (c *Client) WaitForAttachResponse(respCh chan dap.Message, timeout time.Duration) (*dap.AttachResponse, error) {
	select {
	case resp := <-respCh:
		switch r := resp.(type) {
		case *dap.AttachResponse:
			if !r.Success {
				return nil, fmt.Errorf("attach failed: %s", r.Message)
			}
			return r, nil
		case *dap.ErrorResponse:
			return nil, fmt.Errorf("attach failed: %s", r.Message)
		default:
			return nil, fmt.Errorf("unexpected response type: %T", resp)
		}
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout waiting for attach response")
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// ConfigurationDone signals that configuration is complete.
func (c *Client) ConfigurationDone() error {
	ctx, cancel := context.WithTimeout(c.ctx, setupTimeout)
	defer cancel()

	req := &dap.ConfigurationDoneRequest{
		Request: newRequest("configurationDone"),
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return err
	}

	configResp, ok := resp.(*dap.ConfigurationDoneResponse)
	if !ok {
		return fmt.Errorf("unexpected response type: %T", resp)
	}
	if !configResp.Success {
		return fmt.Errorf("configurationDone failed: %s", configResp.Message)
	}
	return nil
}

// Disconnect ends the debug session.
func (c *Client) Disconnect(terminateDebuggee bool) error {
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()

	req := &dap.DisconnectRequest{
		Request: newRequest("disconnect"),
		Arguments: &dap.DisconnectArguments{
			TerminateDebuggee: terminateDebuggee,
		},
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return err
	}

	disconnectResp, ok := resp.(*dap.DisconnectResponse)
	if !ok {
		return fmt.Errorf("unexpected response type: %T", resp)
	}
	if !disconnectResp.Success {
		return fmt.Errorf("disconnect failed: %s", disconnectResp.Message)
	}
	return nil
}

// --- Execution control ---

// SetBreakpoints sets source breakpoints in one file.
func (c *Client) SetBreakpoints(source dap.Source, breakpoints []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()

	req := &dap.SetBreakpointsRequest{
		Request: newRequest("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      source,
			Breakpoints: breakpoints,
		},
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	bpResp, ok := resp.(*dap.SetBreakpointsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	if !bpResp.Success {
		return nil, fmt.Errorf("setBreakpoints failed: %s", bpResp.Message)
	}
	return bpResp.Body.Breakpoints, nil
}

// Continue resumes execution.
func (c *Client) Continue(threadID int) (bool, error) {
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()

	req := &dap.ContinueRequest{
		Request: newRequest("continue"),
		Arguments: dap.ContinueArguments{
			ThreadId: threadID,
		},
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return false, err
	}

	contResp, ok := resp.(*dap.ContinueResponse)
	if !ok {
		return false, fmt.Errorf("unexpected response type: %T", resp)
	}
	if !contResp.Success {
		return false, fmt.Errorf("continue failed: %s", contResp.Message)
	}
	return contResp.Body.AllThreadsContinued, nil
}

// WaitForStopped waits for the debuggee to stop (breakpoint hit, etc.).
func (c *Client) WaitForStopped(timeout time.Duration) (*StoppedInfo, error) {
	stoppedCh := make(chan *StoppedInfo, 1)

	c.stoppedMu.Lock()
	c.stoppedChan = stoppedCh
	c.stoppedMu.Unlock()

	defer func() {
		c.stoppedMu.Lock()
		c.stoppedChan = nil
		c.stoppedMu.Unlock()
	}()

	select {
	case info := <-stoppedCh:
		return info, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout waiting for stopped event")
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// --- Capture path ---

// Threads lists the debuggee's threads.
func (c *Client) Threads(ctx context.Context) ([]dap.Thread, error) {
	req := &dap.ThreadsRequest{
		Request: newRequest("threads"),
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	threadsResp, ok := resp.(*dap.ThreadsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	if !threadsResp.Success {
		return nil, fmt.Errorf("threads request failed: %s", threadsResp.Message)
	}
	return threadsResp.Body.Threads, nil
}

// StackTrace fetches the call stack of one thread.
func (c *Client) StackTrace(ctx context.Context, threadID int) ([]dap.StackFrame, error) {
	req := &dap.StackTraceRequest{
		Request: newRequest("stackTrace"),
		Arguments: dap.StackTraceArguments{
			ThreadId: threadID,
		},
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	stackResp, ok := resp.(*dap.StackTraceResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	if !stackResp.Success {
		return nil, fmt.Errorf("stackTrace request failed: %s", stackResp.Message)
	}
	return stackResp.Body.StackFrames, nil
}

// Scopes fetches the variable scopes of one frame.
func (c *Client) Scopes(ctx context.Context, frameID int) ([]dap.Scope, error) {
	req := &dap.ScopesRequest{
		Request: newRequest("scopes"),
		Arguments: dap.ScopesArguments{
			FrameId: frameID,
		},
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	scopesResp, ok := resp.(*dap.ScopesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	if !scopesResp.Success {
		return nil, fmt.Errorf("scopes request failed: %s", scopesResp.Message)
	}
	return scopesResp.Body.Scopes, nil
}

// Variables fetches the children of an expandable variable reference.
func (c *Client) Variables(ctx context.Context, reference int) ([]dap.Variable, error) {
	req := &dap.VariablesRequest{
		Request: newRequest("variables"),
		Arguments: dap.VariablesArguments{
			VariablesReference: reference,
		},
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	varsResp, ok := resp.(*dap.VariablesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	if !varsResp.Success {
		return nil, fmt.Errorf("variables request failed: %s", varsResp.Message)
	}
	return varsResp.Body.Variables, nil
}

// Evaluate evaluates an expression in the context of a frame.
func (c *Client) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
	req := &dap.EvaluateRequest{
		Request: newRequest("evaluate"),
		Arguments: dap.EvaluateArguments{
			Expression: expression,
			FrameId:    frameID,
			Context:    evalContext,
		},
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	evalResp, ok := resp.(*dap.EvaluateResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	if !evalResp.Success {
		return nil, fmt.Errorf("evaluate failed: %s", evalResp.Message)
	}
	return &evalResp.Body, nil
}

// Capabilities returns the adapter capabilities from initialization.
func (c *Client) Capabilities() dap.Capabilities {
	return c.capabilities
}

// Close shuts down the client and its transport.
func (c *Client) Close() error {
	c.cancel()
	c.wg.Wait()
	return c.transport.Close()
}
