// Package dap implements VSCode's Debug Adaptor Protocol (DAP).
// This allows wincore to communicate with frontends using DAP
// without a separate adaptor. The frontend will run wincore
// in server mode listening on a port and communicating over TCP.
// Requests are processed synchronously, one at a time, in the order
// they are received.
// For DAP details see https://microsoft.github.io/debug-adapter-protocol.
package dap

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-delve/wincore/pkg/config"
	"github.com/go-delve/wincore/pkg/logflags"
	"github.com/go-delve/wincore/pkg/procinfo"
	"github.com/go-delve/wincore/pkg/session"
	"github.com/go-delve/wincore/pkg/winarch"
	"github.com/google/go-dap"
)

// Server implements a DAP server that can accept a single client for
// a single debug session. It does not support restarting.
// The server operates via two goroutines:
// (1) Main goroutine where the server is created via NewServer(),
// started via Run() and stopped via Stop().
// (2) Run goroutine started from Run() that accepts a client connection,
// reads, decodes and processes each request, examining the target
// through a session and sending back events and responses.
type Server struct {
	// config is all the information necessary to start the server.
	config *Config
	// listener is used to accept the client connection.
	listener net.Listener
	// conn is the accepted client connection.
	conn net.Conn
	// stopChan is closed when the server is Stop()-ed. This can be used to signal
	// to goroutines run by the server that it's time to quit.
	stopChan chan struct{}
	// reader is used to read requests from the connection.
	reader *bufio.Reader
	// ctx is cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc
	// sess is the debugging session, nil until launch or attach.
	sess *session.Session
	// log is used for structured logging.
	log logflags.Logger
	// stackFrameHandles maps the frame of each thread to a unique id.
	stackFrameHandles *refs[int]
	// variableHandles maps thread information blocks to unique references.
	variableHandles *refs[tibScope]
	// args tracks special settings for handling debug session requests.
	args launchAttachArgs
	// sendingMu synchronizes writing to the connection.
	sendingMu sync.Mutex
	// disconnectOnce guards closing config.DisconnectChan.
	disconnectOnce sync.Once
}

// NewServer creates a new DAP Server. It takes an opened Listener
// via config and assumes its ownership. config.DisconnectChan has to be set;
// it will be closed by the server when the client disconnects or requests
// shutdown. Once DisconnectChan is closed, Server.Stop() must be called.
func NewServer(config *Config) *Server {
	logger := logflags.DAPLogger()
	logflags.WriteDAPListeningMessage(config.Listener.Addr().String())
	logger.Debug("DAP server pid = ", os.Getpid())
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:            config,
		listener:          config.Listener,
		stopChan:          make(chan struct{}),
		ctx:               ctx,
		cancel:            cancel,
		log:               logger,
		stackFrameHandles: newRefs[int](),
		variableHandles:   newRefs[tibScope](),
		args:              defaultArgs,
	}
}

// Stop closes the listener, the client connection and the session, which
// releases any live process it reads. It must be called at most once.
func (s *Server) Stop() {
	s.listener.Close()
	close(s.stopChan)
	s.cancel()
	if s.conn != nil {
		// Unblocks the read in serveDAPCodec.
		s.conn.Close()
	}
	if s.sess != nil {
		if err := s.sess.Close(); err != nil {
			s.log.Error(err)
		}
	}
}

// signalDisconnect closes config.DisconnectChan, once, when the client
// goes away. The server has a single client so the owner usually answers
// by calling Stop.
func (s *Server) signalDisconnect() {
	s.disconnectOnce.Do(func() {
		if s.config.DisconnectChan != nil {
			close(s.config.DisconnectChan)
		}
	})
}

// Run accepts one client in a new goroutine and serves its requests. A
// server handles a single debug session, which starts with the launch or
// attach request of the client.
func (s *Server) Run() {
	go func() {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
			default:
				s.log.Errorf("Error accepting client connection: %s\n", err)
			}
			s.signalDisconnect()
			return
		}
		s.conn = conn
		s.serveDAPCodec()
	}()
}

// rawRequest is the part of a request decoded before go-dap decodes the
// whole message. The arguments of launch and attach requests are
// implementation specific and are decoded from here.
type rawRequest struct {
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments"`
}

// serveDAPCodec handles requests until the connection fails or is closed.
func (s *Server) serveDAPCodec() {
	defer s.signalDisconnect()
	s.reader = bufio.NewReader(s.conn)
	for {
		content, err := dap.ReadBaseMessage(s.reader)
		if err != nil {
			stopRequested := false
			select {
			case <-s.stopChan:
				stopRequested = true
			default:
			}
			if err != io.EOF && !stopRequested {
				s.log.Error("DAP error: ", err)
			}
			return
		}
		var raw rawRequest
		if err := json.Unmarshal(content, &raw); err != nil {
			s.log.Error("DAP error: ", err)
			return
		}
		request, err := dap.DecodeProtocolMessage(content)
		if err != nil {
			// Most likely a request go-dap does not know about.
			s.log.Debugf("could not decode %q request: %v", raw.Command, err)
			if raw.Type == "request" {
				s.sendErrorResponse(dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: raw.Seq, Type: raw.Type}, Command: raw.Command},
					UnsupportedCommand, "Unsupported command", fmt.Sprintf("cannot process '%s' request", raw.Command))
			}
			continue
		}
		s.handleRequest(request, raw.Arguments)
	}
}

func (s *Server) handleRequest(request dap.Message, args json.RawMessage) {
	defer func() {
		if ierr := recover(); ierr != nil {
			s.sendInternalErrorResponse(request.GetSeq(), fmt.Sprintf("%v", ierr))
		}
	}()

	jsonmsg, _ := json.Marshal(request)
	s.log.Debug("[<- from client]", string(jsonmsg))

	switch request := request.(type) {
	case *dap.InitializeRequest:
		s.onInitializeRequest(request)
	case *dap.LaunchRequest:
		s.onLaunchRequest(request, args)
	case *dap.AttachRequest:
		s.onAttachRequest(request, args)
	case *dap.DisconnectRequest:
		s.onDisconnectRequest(request)
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpointsRequest(request)
	case *dap.SetExceptionBreakpointsRequest:
		s.send(&dap.SetExceptionBreakpointsResponse{Response: *newResponse(request.Request)})
	case *dap.ConfigurationDoneRequest:
		s.onConfigurationDoneRequest(request)
	case *dap.ThreadsRequest:
		s.onThreadsRequest(request)
	case *dap.StackTraceRequest:
		s.onStackTraceRequest(request)
	case *dap.ScopesRequest:
		s.onScopesRequest(request)
	case *dap.VariablesRequest:
		s.onVariablesRequest(request)
	case *dap.EvaluateRequest:
		s.onEvaluateRequest(request)
	case *dap.ModulesRequest:
		s.onModulesRequest(request)
	case *dap.ExceptionInfoRequest:
		s.onExceptionInfoRequest(request)
	case *dap.ReadMemoryRequest:
		s.onReadMemoryRequest(request)
	case *dap.ContinueRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.NextRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.StepInRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.StepOutRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.PauseRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.SetVariableRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.TerminateRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.RestartRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.DisassembleRequest:
		s.sendNotYetImplementedErrorResponse(request.Request)
	default:
		s.sendInternalErrorResponse(request.GetSeq(), fmt.Sprintf("Unable to process %#v\n", request))
	}
}

// send writes message to the client. Message is a dap.Message or a
// response type of this package marshalled the same way.
func (s *Server) send(message interface{}) {
	jsonmsg, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("could not marshal %T: %v", message, err)
		return
	}
	s.log.Debug("[-> to client]", string(jsonmsg))
	s.sendingMu.Lock()
	defer s.sendingMu.Unlock()
	if err := dap.WriteBaseMessage(s.conn, jsonmsg); err != nil {
		s.log.Debug(err)
	}
}

// warn reports a warning of the session as console output.
func (s *Server) warn(format string, args ...interface{}) {
	s.send(&dap.OutputEvent{
		Event: *newEvent("output"),
		Body: dap.OutputEventBody{
			Category: "console",
			Output:   "warning: " + fmt.Sprintf(format, args...) + "\n",
		},
	})
}

func (s *Server) onInitializeRequest(request *dap.InitializeRequest) {
	if s.sess != nil {
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to initialize", "debug session already in progress")
		return
	}
	response := &dap.InitializeResponse{Response: *newResponse(request.Request)}
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsModulesRequest = true
	response.Body.SupportsExceptionInfoRequest = true
	response.Body.SupportsReadMemoryRequest = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsSetVariable = false
	response.Body.SupportsTerminateRequest = false
	response.Body.SupportsRestartRequest = false
	response.Body.SupportsFunctionBreakpoints = false
	response.Body.SupportsStepBack = false
	response.Body.SupportsDisassembleRequest = false
	s.send(response)
}

// newSession returns the session of a launch or attach request.
func (s *Server) newSession(common *LaunchAttachCommonConfig) *session.Session {
	var conf config.Config
	if s.config.Wincore != nil {
		conf = *s.config.Wincore
	}
	common.apply(&conf)
	s.args.stopOnEntry = common.StopOnEntry
	s.args.showAllTIB = conf.ShowAllTIB
	return session.New(&conf, s.warn)
}

func (s *Server) onLaunchRequest(request *dap.LaunchRequest, args json.RawMessage) {
	if err := s.launch(args); err != nil {
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to launch", err.Error())
		return
	}
	// The client answers with its configuration requests and ends them
	// with configurationDone.
	s.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
	s.send(&dap.LaunchResponse{Response: *newResponse(request.Request)})
}

func (s *Server) launch(args json.RawMessage) error {
	if s.sess != nil {
		return errSessionInProgress
	}
	var cfg LaunchConfig
	if err := unmarshalLaunchAttachArgs(args, &cfg); err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	corePath, err := filepath.Abs(cfg.CoreFilePath)
	if err != nil {
		return err
	}
	sess := s.newSession(&cfg.LaunchAttachCommonConfig)
	if cfg.Program != "" {
		if err := sess.LoadExecutable(cfg.Program); err != nil {
			return err
		}
	}
	res, err := sess.OpenSnapshot(s.ctx, corePath)
	if err != nil {
		return err
	}
	s.log.Debugf("opened %s, executable base %#x (rebased: %v)", corePath, res.ExecBase, res.Rebased)
	s.sess = sess
	return nil
}

func (s *Server) onAttachRequest(request *dap.AttachRequest, args json.RawMessage) {
	if err := s.attach(args); err != nil {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", err.Error())
		return
	}
	s.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
	s.send(&dap.AttachResponse{Response: *newResponse(request.Request)})
}

func (s *Server) attach(args json.RawMessage) error {
	if s.sess != nil {
		return errSessionInProgress
	}
	var cfg AttachConfig
	if err := unmarshalLaunchAttachArgs(args, &cfg); err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	if s.config.Attach == nil {
		return errors.New("attaching is not supported")
	}
	p, arch, err := s.config.Attach(cfg.ProcessID)
	if err != nil {
		return err
	}
	sess := s.newSession(&cfg.LaunchAttachCommonConfig)
	if _, err := sess.Attach(s.ctx, p, arch); err != nil {
		p.Close()
		return err
	}
	s.sess = sess
	return nil
}

var errSessionInProgress = errors.New("debug session already in progress")

// onDisconnectRequest handles the DisconnectRequest. Per the DAP spec,
// it detaches from the target and signals that the debug adaptor
// (in our case this TCP server) can be terminated.
func (s *Server) onDisconnectRequest(request *dap.DisconnectRequest) {
	s.send(&dap.DisconnectResponse{Response: *newResponse(request.Request)})
	if s.sess != nil {
		if err := s.sess.Close(); err != nil {
			s.log.Error(err)
		}
		s.sess = nil
	}
	s.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
	s.signalDisconnect()
}

func (s *Server) onSetBreakpointsRequest(request *dap.SetBreakpointsRequest) {
	response := &dap.SetBreakpointsResponse{Response: *newResponse(request.Request)}
	response.Body.Breakpoints = make([]dap.Breakpoint, len(request.Arguments.Breakpoints))
	for i, want := range request.Arguments.Breakpoints {
		response.Body.Breakpoints[i].Verified = false
		response.Body.Breakpoints[i].Line = want.Line
		response.Body.Breakpoints[i].Message = "source breakpoints are not supported"
	}
	s.send(response)
}

func (s *Server) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	s.send(&dap.ConfigurationDoneResponse{Response: *newResponse(request.Request)})
	if s.sess == nil {
		return
	}
	stopped := &dap.StoppedEvent{Event: *newEvent("stopped")}
	stopped.Body.ThreadId = s.sess.CurrentThread()
	stopped.Body.AllThreadsStopped = true
	switch rec, err := s.sess.Exception(); {
	case err == nil:
		stopped.Body.Reason = "exception"
		stopped.Body.Description = rec.Code.String()
		stopped.Body.Text = rec.Description()
	case s.sess.Process() != nil:
		// Attaching does not suspend the process.
		if !s.args.stopOnEntry {
			return
		}
		stopped.Body.Reason = "pause"
	default:
		stopped.Body.Reason = "entry"
	}
	s.send(stopped)
}

func (s *Server) onThreadsRequest(request *dap.ThreadsRequest) {
	if s.sess == nil {
		s.sendErrorResponse(request.Request, UnableToDisplayThreads, "Unable to display threads", "no debug session")
		return
	}
	ths, err := s.sess.Threads(s.ctx)
	if err != nil && !errors.Is(err, procinfo.ErrNoProcess) {
		s.sendErrorResponse(request.Request, UnableToDisplayThreads, "Unable to display threads", err.Error())
		return
	}

	threads := make([]dap.Thread, len(ths))
	if len(threads) == 0 {
		// The DAP spec states that "even if a debug adapter does not
		// support multiple threads, it must implement the threads
		// request and return a single (dummy) thread".
		threads = []dap.Thread{{Id: 1, Name: "Dummy"}}
	} else {
		for i, th := range ths {
			threads[i].Id = th.ID
			threads[i].Name = s.sess.PidToStr(th.ID)
			if th.Name != "" {
				threads[i].Name += fmt.Sprintf(" %q", th.Name)
			}
		}
	}
	response := &dap.ThreadsResponse{
		Response: *newResponse(request.Request),
		Body:     dap.ThreadsResponseBody{Threads: threads},
	}
	s.send(response)
}

// onStackTraceRequest returns a single frame per thread: snapshots carry
// no unwind information, the frame stands for the thread information
// block of the thread.
func (s *Server) onStackTraceRequest(request *dap.StackTraceRequest) {
	if s.sess == nil {
		s.sendErrorResponse(request.Request, UnableToProduceStackTrace, "Unable to produce stack trace", "no debug session")
		return
	}
	tid := request.Arguments.ThreadId
	if err := s.sess.SetCurrentThread(s.ctx, tid); err != nil {
		s.sendErrorResponse(request.Request, UnableToProduceStackTrace, "Unable to produce stack trace", err.Error())
		return
	}
	name := "Thread Information Block"
	if tlb, _, err := s.sess.TLB(); err == nil {
		name += " at " + s.sess.Arch().Paddress(tlb)
	}
	frame := dap.StackFrame{Id: s.stackFrameHandles.create(tid), Name: name}
	response := &dap.StackTraceResponse{
		Response: *newResponse(request.Request),
		Body:     dap.StackTraceResponseBody{StackFrames: []dap.StackFrame{frame}, TotalFrames: 1},
	}
	s.send(response)
}

func (s *Server) onScopesRequest(request *dap.ScopesRequest) {
	tid, ok := s.stackFrameHandles.get(request.Arguments.FrameId)
	if !ok {
		s.sendErrorResponse(request.Request, UnableToListTIB, "Unable to list thread information block",
			fmt.Sprintf("unknown frame id %d", request.Arguments.FrameId))
		return
	}
	scope := dap.Scope{Name: "Thread Information Block", VariablesReference: s.variableHandles.create(tibScope{tid})}
	response := &dap.ScopesResponse{
		Response: *newResponse(request.Request),
		Body:     dap.ScopesResponseBody{Scopes: []dap.Scope{scope}},
	}
	s.send(response)
}

func (s *Server) onVariablesRequest(request *dap.VariablesRequest) {
	ref := request.Arguments.VariablesReference
	scope, ok := s.variableHandles.get(ref)
	if !ok || s.sess == nil {
		s.sendErrorResponse(request.Request, UnableToLookupVariable, "Unable to lookup variable",
			fmt.Sprintf("unknown reference %d", ref))
		return
	}
	_, fields, err := s.sess.ReadTIB(scope.tid, s.args.showAllTIB)
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToListTIB, "Unable to list thread information block", err.Error())
		return
	}
	arch := s.sess.Arch()
	children := make([]dap.Variable, 0, len(fields))
	for _, f := range fields {
		v := dap.Variable{Value: "0x" + winarch.Phex(f.Value, arch.PtrSize()), Type: "void *"}
		if f.Name != "" {
			v.Name = f.Name
		} else if f.Value != 0 {
			v.Name = fmt.Sprintf("TIB[0x%s]", winarch.Phex(uint64(f.Offset), 2))
		} else {
			continue
		}
		if f.Value != 0 {
			v.MemoryReference = arch.Paddress(f.Value)
		}
		children = append(children, v)
	}
	response := &dap.VariablesResponse{
		Response: *newResponse(request.Request),
		Body:     dap.VariablesResponseBody{Variables: children},
	}
	s.send(response)
}

// onEvaluateRequest handles the convenience variables $_tlb and
// $_siginfo, and the commands typed in the debug console prefixed with
// "wincore ".
func (s *Server) onEvaluateRequest(request *dap.EvaluateRequest) {
	showErrorToUser := request.Arguments.Context != "watch" && request.Arguments.Context != "hover"
	if s.sess == nil {
		s.sendErrorResponseWithOpts(request.Request, UnableToEvaluateExpression, "Unable to evaluate expression", "no debug session", showErrorToUser)
		return
	}
	tid := s.sess.CurrentThread()
	if request.Arguments.FrameId != 0 {
		if t, ok := s.stackFrameHandles.get(request.Arguments.FrameId); ok {
			tid = t
		}
	}

	response := &dap.EvaluateResponse{Response: *newResponse(request.Request)}
	expr := request.Arguments.Expression
	var err error
	switch {
	case request.Arguments.Context == "repl" && len(expr) > len("wincore ") && expr[:len("wincore ")] == "wincore ":
		response.Body.Result, err = s.wincoreCmd(tid, expr[len("wincore "):])
	case expr == "$_tlb":
		if tid != s.sess.CurrentThread() {
			err = s.sess.SetCurrentThread(s.ctx, tid)
		}
		if err == nil {
			var tlb uint64
			tlb, _, err = s.sess.TLB()
			response.Body.Result, _ = s.sess.FormatTLB()
			response.Body.MemoryReference = s.sess.Arch().Paddress(tlb)
			response.Body.Type = "thread_information_block *"
		}
	case expr == "$_siginfo":
		rec, rerr := s.sess.Exception()
		if rerr != nil {
			err = rerr
		} else {
			response.Body.Result = rec.String()
			response.Body.Type = "EXCEPTION_RECORD"
		}
	default:
		err = fmt.Errorf("unknown expression %q", expr)
	}
	if err != nil {
		s.sendErrorResponseWithOpts(request.Request, UnableToEvaluateExpression, "Unable to evaluate expression", err.Error(), showErrorToUser)
		return
	}
	s.send(response)
}

func (s *Server) onModulesRequest(request *dap.ModulesRequest) {
	if s.sess == nil {
		s.sendErrorResponse(request.Request, UnableToListModules, "Unable to list modules", "no debug session")
		return
	}
	mods, err := s.sess.Modules()
	if err != nil && !errors.Is(err, session.ErrUnsupportedOperation) {
		s.sendErrorResponse(request.Request, UnableToListModules, "Unable to list modules", err.Error())
		return
	}
	arch := s.sess.Arch()
	modules := make([]dap.Module, 0, len(mods))
	for i, mod := range mods {
		modules = append(modules, dap.Module{
			Id:           i + 1,
			Name:         moduleBaseName(mod.Name),
			Path:         mod.Name,
			AddressRange: arch.Paddress(mod.LoadAddress),
		})
	}
	total := len(modules)
	if start := request.Arguments.StartModule; start > 0 {
		modules = modules[min(start, len(modules)):]
	}
	if count := request.Arguments.ModuleCount; count > 0 {
		modules = modules[:min(count, len(modules))]
	}
	response := &dap.ModulesResponse{
		Response: *newResponse(request.Request),
		Body:     dap.ModulesResponseBody{Modules: modules, TotalModules: total},
	}
	s.send(response)
}

func (s *Server) onExceptionInfoRequest(request *dap.ExceptionInfoRequest) {
	if s.sess == nil {
		s.sendErrorResponse(request.Request, UnableToGetExceptionInfo, "Unable to get exception info", "no debug session")
		return
	}
	rec, err := s.sess.Exception()
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToGetExceptionInfo, "Unable to get exception info", err.Error())
		return
	}
	response := &dap.ExceptionInfoResponse{Response: *newResponse(request.Request)}
	response.Body.ExceptionId = rec.Code.String()
	response.Body.Description = rec.Description()
	response.Body.BreakMode = "unhandled"
	s.send(response)
}

func (s *Server) onReadMemoryRequest(request *dap.ReadMemoryRequest) {
	if s.sess == nil {
		s.sendErrorResponse(request.Request, UnableToReadMemory, "Unable to read memory", "no debug session")
		return
	}
	addr, err := parseMemoryReference(request.Arguments.MemoryReference)
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToReadMemory, "Unable to read memory",
			fmt.Sprintf("invalid memory reference %q", request.Arguments.MemoryReference))
		return
	}
	addr += uint64(request.Arguments.Offset)
	count := request.Arguments.Count
	if count < 0 {
		count = 0
	}
	buf := make([]byte, count)
	n, _ := s.sess.ReadMemory(buf, addr)
	response := &dap.ReadMemoryResponse{Response: *newResponse(request.Request)}
	response.Body.Address = s.sess.Arch().Paddress(addr)
	response.Body.UnreadableBytes = count - n
	response.Body.Data = base64.StdEncoding.EncodeToString(buf[:n])
	s.send(response)
}

// errorResponse is dap.ErrorResponse with a body that marshals the same
// way across versions of go-dap.
type errorResponse struct {
	dap.Response
	Body errorResponseBody `json:"body"`
}

type errorResponseBody struct {
	Error dap.ErrorMessage `json:"error"`
}

func (s *Server) sendErrorResponseWithOpts(request dap.Request, id int, summary, details string, showUser bool) {
	er := &errorResponse{}
	er.Type = "response"
	er.Command = request.Command
	er.RequestSeq = request.Seq
	er.Success = false
	er.Message = summary
	er.Body.Error.Id = id
	er.Body.Error.Format = fmt.Sprintf("%s: %s", summary, details)
	er.Body.Error.ShowUser = showUser
	s.log.Debug(er.Body.Error.Format)
	s.send(er)
}

func (s *Server) sendErrorResponse(request dap.Request, id int, summary, details string) {
	s.sendErrorResponseWithOpts(request, id, summary, details, true)
}

// sendInternalErrorResponse sends an "internal error" response back to the client.
// We only take a seq here because we don't want to make assumptions about the
// kind of message received by the server that this error is a reply to.
func (s *Server) sendInternalErrorResponse(seq int, details string) {
	er := &errorResponse{}
	er.Type = "response"
	er.RequestSeq = seq
	er.Success = false
	er.Message = "Internal Error"
	er.Body.Error.Id = InternalError
	er.Body.Error.Format = fmt.Sprintf("%s: %s", er.Message, details)
	s.log.Error(er.Body.Error.Format)
	s.send(er)
}

func (s *Server) sendUnsupportedErrorResponse(request dap.Request) {
	s.sendErrorResponse(request, UnsupportedCommand, "Unsupported command",
		fmt.Sprintf("cannot process '%s' request", request.Command))
}

func (s *Server) sendNotYetImplementedErrorResponse(request dap.Request) {
	s.sendErrorResponse(request, NotYetImplemented, "Not yet implemented",
		fmt.Sprintf("cannot process '%s' request", request.Command))
}

func newResponse(request dap.Request) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    request.Command,
		RequestSeq: request.Seq,
		Success:    true,
	}
}

func newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}
