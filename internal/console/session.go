// Package console implements the operator REPL over the judge admin API.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"judgehost/internal/common/httpclient"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const (
	Prompt      = ">>> "
	apiPrefix   = "/api/v1/judge"
	tokenHeader = "X-Sandbox-Token"
)

// errExit ends the session.
var errExit = errors.New("exit")

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	token      string
	prettyJSON bool
	out        io.Writer
}

func New(client *httpclient.Client, token string, prettyJSON bool, out io.Writer) *Session {
	if out == nil {
		out = os.Stdout
	}
	return &Session{client: client, token: token, prettyJSON: prettyJSON, out: out}
}

// Run reads lines until exit, EOF or interrupt.
func (s *Session) Run(ctx context.Context, rl *readline.Instance) {
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return
			}
			continue
		}
		if err != nil {
			return
		}
		if err := s.Exec(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				s.printLine("bye")
				return
			}
			s.printLine("error: %v", err)
		}
	}
}

// Exec runs one command line.
func (s *Session) Exec(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	args := tokens[1:]
	switch tokens[0] {
	case "exit", "quit":
		return errExit
	case "help":
		s.printHelp()
		return nil
	case "register":
		if len(args) != 1 {
			return fmt.Errorf("usage: register <submission-id>")
		}
		return s.call(ctx, httpclient.Request{Method: http.MethodPost, Path: apiPrefix + "/dispatcher/submissions/" + args[0]})
	case "status":
		if len(args) != 1 {
			return fmt.Errorf("usage: status <submission-id>")
		}
		return s.call(ctx, httpclient.Request{Method: http.MethodGet, Path: apiPrefix + "/dispatcher/submissions/" + args[0]})
	case "stats":
		return s.call(ctx, httpclient.Request{Method: http.MethodGet, Path: apiPrefix + "/dispatcher/stats"})
	case "submit":
		req, err := buildSubmit(args)
		if err != nil {
			return err
		}
		return s.call(ctx, req)
	case "set":
		return s.handleSet(args)
	case "show":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("token: %s", maskToken(s.token))
		return nil
	}
	return fmt.Errorf("unknown command %q, try help", tokens[0])
}

func (s *Session) handleSet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set base|timeout|token <value>")
	}
	switch args[0] {
	case "base":
		s.client.SetBaseURL(args[1])
		s.printLine("base set to %s", args[1])
	case "timeout":
		dur, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		s.token = args[1]
		s.printLine("token updated")
	default:
		return fmt.Errorf("unknown set target %q", args[0])
	}
	return nil
}

// buildSubmit turns "submit <id> language=N code=path [problem=N] [testcase=path]" into a multipart request.
func buildSubmit(args []string) (httpclient.Request, error) {
	if len(args) < 2 {
		return httpclient.Request{}, fmt.Errorf("usage: submit <id> language=<n> code=<zip> [problem=<n>] [testcase=<zip>]")
	}
	params := make(map[string]string, len(args)-1)
	for _, tok := range args[1:] {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			return httpclient.Request{}, fmt.Errorf("invalid param: %s", tok)
		}
		params[k] = v
	}
	if params["language"] == "" || params["code"] == "" {
		return httpclient.Request{}, fmt.Errorf("language and code are required")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("languageId", params["language"])
	if p := params["problem"]; p != "" {
		_ = w.WriteField("problemId", p)
	}
	if err := attach(w, "code", params["code"]); err != nil {
		return httpclient.Request{}, err
	}
	if tc := params["testcase"]; tc != "" {
		if err := attach(w, "testcase", tc); err != nil {
			return httpclient.Request{}, err
		}
	}
	if err := w.Close(); err != nil {
		return httpclient.Request{}, err
	}
	return httpclient.Request{
		Method:      http.MethodPost,
		Path:        apiPrefix + "/submit/" + args[0],
		Body:        body.Bytes(),
		ContentType: w.FormDataContentType(),
	}, nil
}

func attach(w *multipart.Writer, field, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s failed: %w", field, err)
	}
	fw, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = fw.Write(data)
	return err
}

func (s *Session) call(ctx context.Context, req httpclient.Request) error {
	if s.token != "" {
		req.Headers = map[string]string{tokenHeader: s.token}
	}
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", strings.TrimSpace(string(resp.Body)))
}

func (s *Session) printHelp() {
	s.printLine("commands:")
	s.printLine("  register <id>            queue an already materialized submission directory")
	s.printLine("  status <id>              show whether the dispatcher still tracks a submission")
	s.printLine("  stats                    show dispatcher counters")
	s.printLine("  submit <id> language=<n> code=<zip> [problem=<n>] [testcase=<zip>]")
	s.printLine("  set base|timeout|token <value>")
	s.printLine("  show | help | exit")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

func maskToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	if len(token) > 8 {
		return token[:3] + "..." + token[len(token)-2:]
	}
	return "***"
}

// Completer offers the command words for tab completion.
func Completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("register"),
		readline.PcItem("status"),
		readline.PcItem("stats"),
		readline.PcItem("submit"),
		readline.PcItem("set",
			readline.PcItem("base"),
			readline.PcItem("timeout"),
			readline.PcItem("token"),
		),
		readline.PcItem("show"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}
