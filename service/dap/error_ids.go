package dap

// Ids of the ErrorResponse messages sent to the client. DAP only requires
// them to be unique; the request errors share the numbering used by other
// Go debug adapters so clients can recognize them.
const (
	FailedToLaunch = 3000 + iota
	FailedToAttach
)

const (
	UnableToDisplayThreads = 2003 + iota
	UnableToProduceStackTrace
	UnableToListTIB
)

const (
	UnableToLookupVariable = 2008 + iota
	UnableToEvaluateExpression
	UnableToListModules
	UnableToGetExceptionInfo
	UnableToReadMemory
)

const (
	NotYetImplemented  = 7777
	InternalError      = 8888
	UnsupportedCommand = 9999
)
