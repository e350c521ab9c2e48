// Package daptest provides a sample client with utilities
// for DAP mode testing.
package daptest

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"

	"github.com/google/go-dap"
)

// Client is a debugger service client that uses Debug Adaptor Protocol.
// All client methods are synchronous.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	// seq is used to track the sequence number of each
	// requests that the client sends to the server
	seq int
	// Output collects the output events received so far.
	Output []string
}

// NewClient creates a new Client over a TCP connection.
// Call Close() to close the connection.
func NewClient(t testing.TB, addr string) *Client {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal("dialing:", err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn), seq: 1}
}

// Close closes the client connection.
func (c *Client) Close() {
	c.conn.Close()
}

// ErrorResponse is an error response decoded independently of the
// version of go-dap.
type ErrorResponse struct {
	dap.Response
	Body struct {
		Error dap.ErrorMessage `json:"error"`
	} `json:"body"`
}

func (c *Client) send(request interface{}) {
	jsonmsg, _ := json.Marshal(request)
	dap.WriteBaseMessage(c.conn, jsonmsg)
}

type rawRequest struct {
	dap.Request
	Arguments interface{} `json:"arguments,omitempty"`
}

// sendRequest sends a request with arbitrary arguments.
func (c *Client) sendRequest(command string, args interface{}) {
	c.send(&rawRequest{Request: *c.newRequest(command), Arguments: args})
}

// next reads the next message that is not an output event.
func (c *Client) next(t testing.TB) (dap.Message, []byte) {
	t.Helper()
	for {
		content, err := dap.ReadBaseMessage(c.reader)
		if err != nil {
			t.Fatal(err)
		}
		m, err := dap.DecodeProtocolMessage(content)
		if err != nil {
			t.Fatalf("%v: %s", err, content)
		}
		if ev, ok := m.(*dap.OutputEvent); ok {
			c.Output = append(c.Output, ev.Body.Output)
			continue
		}
		return m, content
	}
}

// ReadMessage returns the next message that is not an output event.
func (c *Client) ReadMessage(t testing.TB) dap.Message {
	t.Helper()
	m, _ := c.next(t)
	return m
}

func expect[T dap.Message](t testing.TB, c *Client) T {
	t.Helper()
	m, content := c.next(t)
	r, ok := m.(T)
	if !ok {
		t.Fatalf("got %s, want %T", content, r)
	}
	return r
}

func (c *Client) ExpectErrorResponse(t testing.TB) *ErrorResponse {
	t.Helper()
	_, content := c.next(t)
	er := &ErrorResponse{}
	if err := json.Unmarshal(content, er); err != nil {
		t.Fatal(err)
	}
	if er.Type != "response" || er.Success {
		t.Fatalf("got %s, want an error response", content)
	}
	return er
}

func (c *Client) ExpectInitializeResponse(t testing.TB) *dap.InitializeResponse {
	t.Helper()
	initResp := expect[*dap.InitializeResponse](t, c)
	if !initResp.Body.SupportsConfigurationDoneRequest {
		t.Errorf("got %#v, want SupportsConfigurationDoneRequest=true", initResp)
	}
	return initResp
}

func (c *Client) ExpectInitializedEvent(t testing.TB) *dap.InitializedEvent {
	t.Helper()
	return expect[*dap.InitializedEvent](t, c)
}

func (c *Client) ExpectLaunchResponse(t testing.TB) *dap.LaunchResponse {
	t.Helper()
	return expect[*dap.LaunchResponse](t, c)
}

func (c *Client) ExpectAttachResponse(t testing.TB) *dap.AttachResponse {
	t.Helper()
	return expect[*dap.AttachResponse](t, c)
}

func (c *Client) ExpectDisconnectResponse(t testing.TB) *dap.DisconnectResponse {
	t.Helper()
	return expect[*dap.DisconnectResponse](t, c)
}

func (c *Client) ExpectTerminatedEvent(t testing.TB) *dap.TerminatedEvent {
	t.Helper()
	return expect[*dap.TerminatedEvent](t, c)
}

func (c *Client) ExpectSetBreakpointsResponse(t testing.TB) *dap.SetBreakpointsResponse {
	t.Helper()
	return expect[*dap.SetBreakpointsResponse](t, c)
}

func (c *Client) ExpectSetExceptionBreakpointsResponse(t testing.TB) *dap.SetExceptionBreakpointsResponse {
	t.Helper()
	return expect[*dap.SetExceptionBreakpointsResponse](t, c)
}

func (c *Client) ExpectConfigurationDoneResponse(t testing.TB) *dap.ConfigurationDoneResponse {
	t.Helper()
	return expect[*dap.ConfigurationDoneResponse](t, c)
}

func (c *Client) ExpectStoppedEvent(t testing.TB) *dap.StoppedEvent {
	t.Helper()
	return expect[*dap.StoppedEvent](t, c)
}

func (c *Client) ExpectInvalidatedEvent(t testing.TB) *dap.InvalidatedEvent {
	t.Helper()
	return expect[*dap.InvalidatedEvent](t, c)
}

func (c *Client) ExpectThreadsResponse(t testing.TB) *dap.ThreadsResponse {
	t.Helper()
	return expect[*dap.ThreadsResponse](t, c)
}

func (c *Client) ExpectStackTraceResponse(t testing.TB) *dap.StackTraceResponse {
	t.Helper()
	return expect[*dap.StackTraceResponse](t, c)
}

func (c *Client) ExpectScopesResponse(t testing.TB) *dap.ScopesResponse {
	t.Helper()
	return expect[*dap.ScopesResponse](t, c)
}

func (c *Client) ExpectVariablesResponse(t testing.TB) *dap.VariablesResponse {
	t.Helper()
	return expect[*dap.VariablesResponse](t, c)
}

func (c *Client) ExpectEvaluateResponse(t testing.TB) *dap.EvaluateResponse {
	t.Helper()
	return expect[*dap.EvaluateResponse](t, c)
}

func (c *Client) ExpectModulesResponse(t testing.TB) *dap.ModulesResponse {
	t.Helper()
	return expect[*dap.ModulesResponse](t, c)
}

func (c *Client) ExpectExceptionInfoResponse(t testing.TB) *dap.ExceptionInfoResponse {
	t.Helper()
	return expect[*dap.ExceptionInfoResponse](t, c)
}

func (c *Client) ExpectReadMemoryResponse(t testing.TB) *dap.ReadMemoryResponse {
	t.Helper()
	return expect[*dap.ReadMemoryResponse](t, c)
}

// InitializeRequest sends an 'initialize' request.
func (c *Client) InitializeRequest() {
	request := &dap.InitializeRequest{Request: *c.newRequest("initialize")}
	request.Arguments = dap.InitializeRequestArguments{
		AdapterID:              "wincore",
		PathFormat:             "path",
		LinesStartAt1:          true,
		ColumnsStartAt1:        true,
		SupportsVariableType:   true,
		SupportsVariablePaging: true,
		Locale:                 "en-us",
	}
	c.send(request)
}

// LaunchRequest sends a 'launch' request with the given arguments.
func (c *Client) LaunchRequest(args map[string]interface{}) {
	c.sendRequest("launch", args)
}

// AttachRequest sends an 'attach' request with the given arguments.
func (c *Client) AttachRequest(args map[string]interface{}) {
	c.sendRequest("attach", args)
}

// DisconnectRequest sends a 'disconnect' request.
func (c *Client) DisconnectRequest() {
	c.send(&dap.DisconnectRequest{Request: *c.newRequest("disconnect")})
}

// SetBreakpointsRequest sends a 'setBreakpoints' request.
func (c *Client) SetBreakpointsRequest(file string, lines []int) {
	bps := make([]map[string]int, len(lines))
	for i, l := range lines {
		bps[i] = map[string]int{"line": l}
	}
	c.sendRequest("setBreakpoints", map[string]interface{}{
		"source":      map[string]string{"path": file},
		"breakpoints": bps,
	})
}

// SetExceptionBreakpointsRequest sends a 'setExceptionBreakpoints' request.
func (c *Client) SetExceptionBreakpointsRequest() {
	c.sendRequest("setExceptionBreakpoints", map[string]interface{}{"filters": []string{}})
}

// ConfigurationDoneRequest sends a 'configurationDone' request.
func (c *Client) ConfigurationDoneRequest() {
	c.send(&dap.ConfigurationDoneRequest{Request: *c.newRequest("configurationDone")})
}

// ThreadsRequest sends a 'threads' request.
func (c *Client) ThreadsRequest() {
	c.send(&dap.ThreadsRequest{Request: *c.newRequest("threads")})
}

// StackTraceRequest sends a 'stackTrace' request.
func (c *Client) StackTraceRequest(threadID int) {
	c.sendRequest("stackTrace", map[string]interface{}{"threadId": threadID})
}

// ScopesRequest sends a 'scopes' request.
func (c *Client) ScopesRequest(frameID int) {
	c.sendRequest("scopes", map[string]interface{}{"frameId": frameID})
}

// VariablesRequest sends a 'variables' request.
func (c *Client) VariablesRequest(variablesReference int) {
	c.sendRequest("variables", map[string]interface{}{"variablesReference": variablesReference})
}

// EvaluateRequest sends an 'evaluate' request.
func (c *Client) EvaluateRequest(expr string, frameID int, context string) {
	c.sendRequest("evaluate", map[string]interface{}{"expression": expr, "frameId": frameID, "context": context})
}

// ModulesRequest sends a 'modules' request.
func (c *Client) ModulesRequest() {
	c.sendRequest("modules", map[string]interface{}{})
}

// ExceptionInfoRequest sends an 'exceptionInfo' request.
func (c *Client) ExceptionInfoRequest(threadID int) {
	c.sendRequest("exceptionInfo", map[string]interface{}{"threadId": threadID})
}

// ReadMemoryRequest sends a 'readMemory' request.
func (c *Client) ReadMemoryRequest(ref string, offset, count int) {
	c.sendRequest("readMemory", map[string]interface{}{"memoryReference": ref, "offset": offset, "count": count})
}

// ContinueRequest sends a 'continue' request.
func (c *Client) ContinueRequest(thread int) {
	c.sendRequest("continue", map[string]interface{}{"threadId": thread})
}

// UnknownRequest sends a request go-dap can not decode.
func (c *Client) UnknownRequest() {
	c.send(c.newRequest("unknown"))
}

func (c *Client) newRequest(command string) *dap.Request {
	request := &dap.Request{}
	request.Type = "request"
	request.Command = command
	request.Seq = c.seq
	c.seq++
	return request
}
