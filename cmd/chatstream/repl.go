package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/agent-scaffold/chatstream/pkg/approval"
	"github.com/agent-scaffold/chatstream/pkg/client"
	"github.com/agent-scaffold/chatstream/pkg/events"
	"github.com/agent-scaffold/chatstream/pkg/transcript"
)

// repl drives the interactive terminal session. Assistant output
// streams to the terminal as deltas arrive; approval interrupts are
// prompted inline before the next input line.
type repl struct {
	client *client.Client
	in     *bufio.Scanner
	out    io.Writer

	mu       sync.Mutex
	streamID string // message currently being streamed to the terminal
	printed  int    // bytes of that message already written
}

func newREPL(in io.Reader, out io.Writer) *repl {
	return &repl{
		in:  bufio.NewScanner(in),
		out: out,
	}
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// onUpdate streams new content of the trailing assistant message.
func (r *repl) onUpdate() {
	conv := r.client.Store().Selected()
	if conv == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := conv.Transcript.Messages
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != transcript.RoleAssistant {
		return
	}

	if last.ID != r.streamID {
		r.streamID = last.ID
		r.printed = 0
		fmt.Fprint(r.out, "\nagent> ")
	}
	if len(last.Content) > r.printed {
		fmt.Fprint(r.out, last.Content[r.printed:])
		r.printed = len(last.Content)
	}
	if !last.Open && r.printed > 0 {
		fmt.Fprintln(r.out)
		r.streamID = ""
		r.printed = 0
	}

	if conv.Transcript.Pending() != nil {
		fmt.Fprintln(r.out, "\n[approval required — press enter to review]")
	}
}

func (r *repl) run(ctx context.Context) {
	r.printf("chatstream ready. /help for commands.\n")

	for {
		r.promptApprovals(ctx)
		r.printf("> ")
		if !r.in.Scan() {
			return
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return
		}
		if strings.HasPrefix(line, "/") {
			r.handleCommand(ctx, line)
			continue
		}
		r.sendMessage(ctx, line)
	}
}

func (r *repl) sendMessage(ctx context.Context, text string) {
	err := r.client.SendMessage(ctx, text)
	switch {
	case errors.Is(err, client.ErrNoConversation):
		r.printf("no conversation selected — /new to start one\n")
	case errors.Is(err, client.ErrAwaitingApproval):
		r.printf("an approval decision is required first\n")
	case errors.Is(err, client.ErrNotConnected):
		r.printf("not connected — /connect to retry\n")
	case err != nil:
		r.printf("send failed: %v\n", err)
	}
}

func (r *repl) handleCommand(ctx context.Context, line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	st := r.client.Store()

	switch cmd {
	case "/help":
		r.printf("/new            start a new conversation\n" +
			"/list           list conversations\n" +
			"/select <id>    switch conversation\n" +
			"/rename <title> rename the selected conversation\n" +
			"/delete <id>    delete a conversation\n" +
			"/clear          clear the selected transcript\n" +
			"/connect        reconnect to the agent\n" +
			"/quit           exit\n")

	case "/new":
		conv, err := st.Create(ctx)
		if err != nil {
			r.printf("create failed: %v\n", err)
			return
		}
		r.printf("conversation %s selected\n", shortID(conv.ID))

	case "/list":
		for _, conv := range st.List() {
			marker := " "
			if sel := st.Selected(); sel != nil && sel.ID == conv.ID {
				marker = "*"
			}
			title := conv.Title
			if title == "" {
				title = "(untitled)"
			}
			r.printf("%s %s  %s\n", marker, shortID(conv.ID), title)
		}

	case "/select":
		if err := r.selectByPrefix(arg); err != nil {
			r.printf("%v\n", err)
		}

	case "/rename":
		sel := st.Selected()
		if sel == nil {
			r.printf("no conversation selected\n")
			return
		}
		if err := st.Rename(ctx, sel.ID, arg); err != nil {
			r.printf("rename failed: %v\n", err)
		}

	case "/delete":
		id, err := r.resolvePrefix(arg)
		if err != nil {
			r.printf("%v\n", err)
			return
		}
		if err := st.Delete(ctx, id); err != nil {
			r.printf("delete failed: %v\n", err)
		}

	case "/clear":
		if err := st.ClearMessages(ctx); err != nil {
			r.printf("clear failed: %v\n", err)
		}

	case "/connect":
		r.client.Connect(ctx)

	default:
		r.printf("unknown command %s — /help\n", cmd)
	}
}

func (r *repl) selectByPrefix(prefix string) error {
	id, err := r.resolvePrefix(prefix)
	if err != nil {
		return err
	}
	return r.client.Store().Select(id)
}

func (r *repl) resolvePrefix(prefix string) (string, error) {
	if prefix == "" {
		return "", errors.New("conversation id required")
	}
	var match string
	for _, conv := range r.client.Store().List() {
		if strings.HasPrefix(conv.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("ambiguous id prefix %q", prefix)
			}
			match = conv.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no conversation matching %q", prefix)
	}
	return match, nil
}

// promptApprovals walks the outstanding approval request, one decision
// per proposed action, and submits the batch.
func (r *repl) promptApprovals(ctx context.Context) {
	conv := r.client.Store().Selected()
	if conv == nil {
		return
	}
	pending := conv.Transcript.Pending()
	if pending == nil {
		return
	}

	drafts := make([]approval.Draft, 0, len(pending.Actions))
	for i, action := range pending.Actions {
		policy := pending.Policy(i)
		args, _ := json.Marshal(action.Args)
		r.printf("\naction %d/%d: %s %s\n", i+1, len(pending.Actions), action.ToolName, args)

		for {
			if policy.Editable {
				r.printf("[a]pprove / [r]eject / [e]dit? ")
			} else {
				r.printf("[a]pprove / [r]eject? ")
			}
			if !r.in.Scan() {
				return
			}
			choice := strings.ToLower(strings.TrimSpace(r.in.Text()))

			if choice == "e" && policy.Editable {
				r.printf("replacement args (JSON object): ")
				if !r.in.Scan() {
					return
				}
				drafts = append(drafts, approval.Draft{
					Type:            events.DecisionEdit,
					ReplacementArgs: json.RawMessage(r.in.Text()),
				})
				break
			}
			if choice == "a" {
				drafts = append(drafts, approval.Draft{Type: events.DecisionApprove})
				break
			}
			if choice == "r" {
				drafts = append(drafts, approval.Draft{Type: events.DecisionReject})
				break
			}
			r.printf("unrecognized choice\n")
		}
	}

	if err := r.client.SubmitDecisions(ctx, drafts); err != nil {
		r.printf("submit failed: %v\n", err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
