// Command agent-ws drives a coding agent CLI over its SDK WebSocket protocol:
// it hands over the task prompt, approves every tool request, and records
// tool usage, token usage and a transcript into the output directory.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/signalnine/gauntlet/internal/metrics"
	"github.com/signalnine/gauntlet/internal/result"
)

// State represents the server's protocol state.
type State int

const (
	StateWaiting State = iota // Listening, no connection yet
	StateInit                 // Connected, awaiting system/init from CLI
	StateRunning              // Task prompt sent, agent is working
	StateDone                 // Result received, ready to exit
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Envelope is the top-level NDJSON message read from the wire. Different
// message types use different subsets of fields.
type Envelope struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`

	// system/init
	SessionID      string   `json:"session_id,omitempty"`
	UUID           string   `json:"uuid,omitempty"`
	Cwd            string   `json:"cwd,omitempty"`
	Tools          []string `json:"tools,omitempty"`
	Model          string   `json:"model,omitempty"`
	PermissionMode string   `json:"permissionMode,omitempty"`
	AgentVersion   string   `json:"claude_code_version,omitempty"`

	// control_request
	RequestID string          `json:"request_id,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`

	// control_response
	Response json.RawMessage `json:"response,omitempty"`

	// user and assistant messages
	Message         json.RawMessage `json:"message,omitempty"`
	ParentToolUseID *string         `json:"parent_tool_use_id"` // null for top-level

	// result
	IsError      *bool        `json:"is_error,omitempty"`
	Result       string       `json:"result,omitempty"`
	Errors       []string     `json:"errors,omitempty"`
	DurationMs   int          `json:"duration_ms,omitempty"`
	NumTurns     int          `json:"num_turns,omitempty"`
	TotalCostUSD float64      `json:"total_cost_usd,omitempty"`
	Usage        *ResultUsage `json:"usage,omitempty"`
}

// ControlRequestBody is the nested "request" inside a control_request envelope.
type ControlRequestBody struct {
	Subtype   string          `json:"subtype"`
	ToolName  string          `json:"tool_name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
}

// ChatMessage is the nested "message" of user and assistant envelopes.
type ChatMessage struct {
	ID      string          `json:"id,omitempty"`
	Role    string          `json:"role"`
	Model   string          `json:"model,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Usage   *ResultUsage    `json:"usage,omitempty"`
}

// ContentBlock covers the text, tool_use and tool_result block shapes.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type ResultUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
}

func (u *ResultUsage) tokenUsage() result.TokenUsage {
	return result.TokenUsage{
		InputTokens:              u.InputTokens,
		OutputTokens:             u.OutputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens,
	}
}

// maxToolResultChars bounds tool output copied into the transcript.
const maxToolResultChars = 2000

type Server struct {
	state       State
	sessionID   string
	taskPrompt  string
	outputDir   string
	idleTimeout time.Duration
	debug       bool

	output       result.RunOutput
	pendingTools map[string]string
	transcript   strings.Builder
	failed       bool
}

func NewServer(taskPrompt, outputDir string, idleTimeout time.Duration, debug bool) *Server {
	return &Server{
		state:        StateWaiting,
		taskPrompt:   taskPrompt,
		outputDir:    outputDir,
		idleTimeout:  idleTimeout,
		debug:        debug,
		output:       result.RunOutput{ToolMetrics: metrics.NewToolMetrics()},
		pendingTools: make(map[string]string),
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.debug {
		log.Printf(format, args...)
	}
}

func (s *Server) HandleConnection(ctx context.Context, conn *websocket.Conn) error {
	s.state = StateInit
	s.logf("[STATE] → %s", s.state)

	for s.state != StateDone {
		readCtx, cancel := context.WithTimeout(ctx, s.idleTimeout)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("read in state %s: %w", s.state, err)
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logf("[RECV] malformed JSON: %s", string(data))
			continue
		}

		s.logf("[RECV] type=%s subtype=%s state=%s", env.Type, env.Subtype, s.state)

		responses, err := s.handleMessage(&env)
		if err != nil {
			return fmt.Errorf("handle message in state %s: %w", s.state, err)
		}

		for _, resp := range responses {
			s.logf("[SEND] %s", string(resp))
			if err := conn.Write(ctx, websocket.MessageText, resp); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}

	return s.writeOutput()
}

func (s *Server) handleMessage(env *Envelope) ([]json.RawMessage, error) {
	switch s.state {
	case StateInit:
		return s.handleInit(env)
	case StateRunning:
		return s.handleRunning(env)
	default:
		return nil, fmt.Errorf("unexpected message in state %s", s.state)
	}
}

// handleInit handles the system/init message from the CLI and sends the task prompt.
func (s *Server) handleInit(env *Envelope) ([]json.RawMessage, error) {
	if env.Type != "system" || env.Subtype != "init" {
		return nil, fmt.Errorf("expected system/init, got type=%s subtype=%s", env.Type, env.Subtype)
	}

	s.sessionID = env.SessionID
	s.logf("[INIT] session=%s model=%s version=%s tools=%v",
		env.SessionID, env.Model, env.AgentVersion, env.Tools)

	userMsg := map[string]any{
		"type": "user",
		"message": map[string]any{
			"role":    "user",
			"content": s.taskPrompt,
		},
		"parent_tool_use_id": nil,
		"session_id":         s.sessionID,
	}
	data, err := json.Marshal(userMsg)
	if err != nil {
		return nil, fmt.Errorf("marshal user message: %w", err)
	}
	fmt.Fprintf(&s.transcript, "## User\n\n%s\n\n", strings.TrimSpace(s.taskPrompt))

	s.state = StateRunning
	s.logf("[STATE] → %s", s.state)
	return []json.RawMessage{data}, nil
}

// handleRunning processes messages while the agent is working.
func (s *Server) handleRunning(env *Envelope) ([]json.RawMessage, error) {
	switch env.Type {
	case "control_request":
		return s.handleControlRequest(env)
	case "assistant":
		return s.handleAssistant(env)
	case "user":
		return s.handleUser(env)
	case "result":
		return s.handleResult(env)
	case "keep_alive", "stream_event", "tool_progress", "tool_use_summary", "system", "auth_status":
		return nil, nil
	default:
		s.logf("[WARN] unknown message type: %s", env.Type)
		return nil, nil
	}
}

// handleControlRequest approves every tool permission request unchanged.
func (s *Server) handleControlRequest(env *Envelope) ([]json.RawMessage, error) {
	var reqBody ControlRequestBody
	if err := json.Unmarshal(env.Request, &reqBody); err != nil {
		return nil, fmt.Errorf("unmarshal control request body: %w", err)
	}

	switch reqBody.Subtype {
	case "can_use_tool":
		resp := map[string]any{
			"type": "control_response",
			"response": map[string]any{
				"subtype":    "success",
				"request_id": env.RequestID,
				"response": map[string]any{
					"behavior":     "allow",
					"updatedInput": json.RawMessage(reqBody.Input),
				},
			},
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("marshal control response: %w", err)
		}
		return []json.RawMessage{data}, nil

	default:
		s.logf("[WARN] unknown control_request subtype: %s", reqBody.Subtype)
		return nil, nil
	}
}

// handleAssistant counts the response, accumulates usage and remembers
// tool_use ids so their results can be attributed.
func (s *Server) handleAssistant(env *Envelope) ([]json.RawMessage, error) {
	s.output.ResponseCount++

	msg, blocks := decodeMessage(env.Message)
	if msg == nil {
		return nil, nil
	}
	if msg.Usage != nil {
		u := &s.output.TokenUsage
		u.InputTokens += msg.Usage.InputTokens
		u.OutputTokens += msg.Usage.OutputTokens
		u.CacheReadInputTokens += msg.Usage.CacheReadInputTokens
		u.CacheCreationInputTokens += msg.Usage.CacheCreationInputTokens
	}

	for _, b := range blocks {
		switch b.Type {
		case "text":
			if text := strings.TrimSpace(b.Text); text != "" {
				fmt.Fprintf(&s.transcript, "## Assistant\n\n%s\n\n", text)
			}
		case "tool_use":
			s.pendingTools[b.ID] = b.Name
			fmt.Fprintf(&s.transcript, "**Tool Use**: `%s`\n\n```json\n%s\n```\n\n", b.Name, string(b.Input))
		}
	}
	return nil, nil
}

// handleUser records tool results reported back by the CLI.
func (s *Server) handleUser(env *Envelope) ([]json.RawMessage, error) {
	_, blocks := decodeMessage(env.Message)
	for _, b := range blocks {
		if b.Type != "tool_result" {
			continue
		}
		name, ok := s.pendingTools[b.ToolUseID]
		if !ok {
			s.logf("[WARN] tool_result for unknown tool_use_id %s", b.ToolUseID)
			continue
		}
		delete(s.pendingTools, b.ToolUseID)
		s.output.ToolMetrics.InsertUse(name, !b.IsError)

		status := ""
		if b.IsError {
			status = " (error)"
		}
		fmt.Fprintf(&s.transcript, "**Tool Result**: `%s`%s\n\n```\n%s\n```\n\n", name, status, truncate(toolResultText(b.Content), maxToolResultChars))
	}
	return nil, nil
}

// handleResult processes the final result message.
func (s *Server) handleResult(env *Envelope) ([]json.RawMessage, error) {
	// Result usage is cumulative and authoritative.
	if env.Usage != nil {
		s.output.TokenUsage = env.Usage.tokenUsage()
	}
	s.output.DurationS = env.DurationMs / 1000

	s.failed = env.IsError != nil && *env.IsError
	if s.failed {
		s.logf("[RESULT] error subtype=%s errors=%v", env.Subtype, env.Errors)
	} else {
		s.logf("[RESULT] success, cost=$%.4f, turns=%d", env.TotalCostUSD, env.NumTurns)
	}
	if env.Result != "" {
		fmt.Fprintf(&s.transcript, "## Result\n\n%s\n", strings.TrimSpace(env.Result))
	}

	s.state = StateDone
	s.logf("[STATE] → %s", s.state)
	return nil, nil
}

func (s *Server) writeOutput() error {
	if s.outputDir == "" {
		return nil
	}
	s.output.Thread = s.transcript.String()
	if err := result.WriteRunOutput(s.outputDir, &s.output); err != nil {
		return fmt.Errorf("write run output: %w", err)
	}
	s.logf("[OUTPUT] written to %s", s.outputDir)
	return nil
}

func decodeMessage(raw json.RawMessage) (*ChatMessage, []ContentBlock) {
	if raw == nil {
		return nil, nil
	}
	var msg ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		// plain string content
		var text string
		if json.Unmarshal(msg.Content, &text) == nil {
			blocks = []ContentBlock{{Type: "text", Text: text}}
		}
	}
	return &msg, blocks
}

func toolResultText(raw json.RawMessage) string {
	var text string
	if json.Unmarshal(raw, &text) == nil {
		return text
	}
	var parts []ContentBlock
	if json.Unmarshal(raw, &parts) == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		return b.String()
	}
	return string(raw)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... [truncated]"
}

func main() {
	port := flag.Int("port", 9876, "WebSocket server port")
	taskFile := flag.String("task-file", "", "Path to task description file")
	outputDir := flag.String("output-dir", "", "Directory to write run-output.json and thread.md")
	idleTimeout := flag.Int("idle-timeout", 10, "Minutes of silence before assuming stuck")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *taskFile == "" {
		log.Fatal("--task-file is required")
	}

	taskData, err := os.ReadFile(*taskFile)
	if err != nil {
		log.Fatalf("reading task file: %v", err)
	}

	srv := NewServer(string(taskData), *outputDir, time.Duration(*idleTimeout)*time.Minute, *debug)

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", *port))
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("agent-ws listening on localhost:%d", *port)

	connCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	httpServer := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
				InsecureSkipVerify: true,
			})
			if err != nil {
				log.Printf("accept error: %v", err)
				return
			}
			select {
			case connCh <- conn:
			default:
				conn.Close(websocket.StatusPolicyViolation, "only one connection allowed")
			}
		}),
	}

	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer httpServer.Close()

	var conn *websocket.Conn
	select {
	case conn = <-connCh:
	case err := <-errCh:
		log.Fatalf("http server failed: %v", err)
	}

	ctx := context.Background()
	if err := srv.HandleConnection(ctx, conn); err != nil {
		log.Printf("connection error: %v", err)
		conn.Close(websocket.StatusInternalError, err.Error())
		os.Exit(1)
	}

	conn.Close(websocket.StatusNormalClosure, "done")
	httpServer.Close()
	if srv.failed {
		os.Exit(2)
	}
}
