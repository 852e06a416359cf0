package protocol

// Message type tags. The set is closed: the registry below is the single
// mapping from tag to content schema, and decoding rejects anything else.
const (
	KernelInfoRequestType = "kernel_info_request"
	KernelInfoReplyType   = "kernel_info_reply"
	ConnectRequestType    = "connect_request"
	ConnectReplyType      = "connect_reply"
	ShutdownRequestType   = "shutdown_request"
	ShutdownReplyType     = "shutdown_reply"
	ExecuteRequestType    = "execute_request"
	ExecuteReplyType      = "execute_reply"
	StatusType            = "status"
	StreamType            = "stream"
)

// KernelInfoRequest has no fields.
type KernelInfoRequest struct{}

// LanguageInfo describes the kernel's language in kernel_info_reply.
type LanguageInfo struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	FileExtension string `json:"file_extension"`
}

// KernelInfoReply is the kernel's static identity.
type KernelInfoReply struct {
	ProtocolVersion       string       `json:"protocol_version"`
	Implementation        string       `json:"implementation"`
	ImplementationVersion string       `json:"implementation_version"`
	LanguageInfo          LanguageInfo `json:"language_info"`
	Banner                string       `json:"banner"`
}

// ConnectRequest has no fields.
type ConnectRequest struct{}

// ConnectReply reports the kernel's port assignments.
type ConnectReply struct {
	ShellPort int `json:"shell_port"`
	IOPubPort int `json:"iopub_port"`
	StdinPort int `json:"stdin_port"`
	HBPort    int `json:"hb_port"`
}

// ShutdownRequest asks the kernel to terminate.
type ShutdownRequest struct {
	Restart bool `json:"restart"`
}

// ShutdownReply acknowledges a shutdown before the process exits.
type ShutdownReply struct {
	Restart bool `json:"restart"`
}

// ExecuteRequest carries one cell of code.
type ExecuteRequest struct {
	Code         string `json:"code"`
	Silent       bool   `json:"silent"`
	StoreHistory bool   `json:"store_history"`
	AllowStdin   bool   `json:"allow_stdin"`
	StopOnError  bool   `json:"stop_on_error"`
}

// Execute reply statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ExecuteReply reports the outcome of one cell.
type ExecuteReply struct {
	Status         string   `json:"status"`
	ExecutionCount int      `json:"execution_count"`
	EName          string   `json:"ename,omitempty"`
	EValue         string   `json:"evalue,omitempty"`
	Traceback      []string `json:"traceback,omitempty"`
}

// Execution states published on the status message.
const (
	StateBusy = "busy"
	StateIdle = "idle"
)

// Status announces a busy/idle transition.
type Status struct {
	ExecutionState string `json:"execution_state"`
}

// Stream names.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Stream carries one chunk of captured stdout or stderr.
type Stream struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// contentRegistry maps msg_type to a factory for its content schema.
var contentRegistry = map[string]func() any{
	KernelInfoRequestType: func() any { return &KernelInfoRequest{} },
	KernelInfoReplyType:   func() any { return &KernelInfoReply{} },
	ConnectRequestType:    func() any { return &ConnectRequest{} },
	ConnectReplyType:      func() any { return &ConnectReply{} },
	ShutdownRequestType:   func() any { return &ShutdownRequest{} },
	ShutdownReplyType:     func() any { return &ShutdownReply{} },
	ExecuteRequestType:    func() any { return &ExecuteRequest{} },
	ExecuteReplyType:      func() any { return &ExecuteReply{} },
	StatusType:            func() any { return &Status{} },
	StreamType:            func() any { return &Stream{} },
}

// NewContent returns a zero content value for msgType, or false if the type
// is outside the supported set.
func NewContent(msgType string) (any, bool) {
	factory, ok := contentRegistry[msgType]
	if !ok {
		return nil, false
	}
	return factory(), true
}
