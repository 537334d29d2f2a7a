package cmds

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liliang-cn/noise/internal/domain"
	"github.com/liliang-cn/noise/internal/repository"
	"github.com/liliang-cn/noise/internal/service"
	"github.com/liliang-cn/noise/internal/transcript"
)

type chatOptions struct {
	model       string
	noRAG       bool
	files       []string
	interactive bool
	stats       bool
}

func newChatCommand(a *app) *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Chat with a local model, optionally grounded in retrieval context",
		Long: `chat sends one turn, or starts an interactive session with -i. The
conversation is kept in the local state database between runs.

Press Ctrl-C while an answer is streaming to stop that answer. In interactive
mode type /clear to start over and /exit to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.chat(cmd, opts, strings.Join(args, " "))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.model, "model", "m", "", "Model to chat with (defaults to chat.model)")
	f.BoolVar(&opts.noRAG, "no-rag", false, "Do not include retrieval context")
	f.StringArrayVarP(&opts.files, "file", "f", nil, "Attach a text file (repeatable)")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "Keep reading prompts from stdin")
	f.BoolVar(&opts.stats, "stats", false, "Print token estimate and turn details")
	return cmd
}

type chatSession struct {
	svc   *service.ChatService
	st    *repository.StateRepository
	conv  *domain.Conversation
	out   io.Writer
	stats bool
	log   *zap.Logger
}

func (a *app) chat(cmd *cobra.Command, opts *chatOptions, prompt string) error {
	model := opts.model
	if model == "" {
		model = a.cfg.Chat.Model
	}
	if model == "" {
		return fmt.Errorf("%w: pass --model or set chat.model (see `noise models`)", domain.ErrModelRequired)
	}
	if strings.TrimSpace(prompt) == "" && !opts.interactive {
		return domain.ErrEmptyPrompt
	}

	st, closeFn, err := a.openState()
	if err != nil {
		return err
	}
	defer closeFn()

	history, err := st.History()
	if err != nil {
		return err
	}

	conv := &domain.Conversation{
		Model:      model,
		IncludeRAG: a.cfg.Chat.IncludeRAG && !opts.noRAG,
		Messages:   history,
	}
	conv.AddAttachments(a.readAttachments(cmd.ErrOrStderr(), opts.files)...)

	var retriever service.ContextProvider
	if conv.IncludeRAG {
		retriever = a.aggregator()
	}
	builder := &transcript.Builder{SystemPrompt: transcript.SystemPrompt, HistoryWindow: a.cfg.Chat.HistoryWindow}

	s := &chatSession{
		svc:   service.NewChatService(a.client(), retriever, builder, a.logger),
		st:    st,
		conv:  conv,
		out:   cmd.OutOrStdout(),
		stats: opts.stats,
		log:   a.logger,
	}

	ctx := cmd.Context()
	if !opts.interactive {
		return s.turn(ctx, prompt)
	}

	if strings.TrimSpace(prompt) != "" {
		s.report(s.turn(ctx, prompt))
	}
	return s.loop(ctx, cmd.InOrStdin())
}

// readAttachments reads files as text. Unreadable files are reported and skipped.
func (a *app) readAttachments(errOut io.Writer, paths []string) []domain.Attachment {
	var out []domain.Attachment
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintln(errOut, errorStyle.Render(fmt.Sprintf("skipping %s: %v", p, err)))
			continue
		}
		out = append(out, transcript.NewAttachmentLimit(filepath.Base(p), string(b), a.cfg.Chat.AttachmentLimit))
	}
	return out
}

func (s *chatSession) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(s.out, userStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			s.conv.Clear()
			if err := s.st.ClearHistory(); err != nil {
				return err
			}
			fmt.Fprintln(s.out, mutedStyle.Render("Conversation cleared."))
			continue
		}

		s.report(s.turn(ctx, line))
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *chatSession) report(err error) {
	if err != nil {
		fmt.Fprintln(s.out, errorStyle.Render(err.Error()))
	}
}

// turn sends one prompt. Ctrl-C cancels only this turn.
func (s *chatSession) turn(ctx context.Context, prompt string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprintln(s.out, roleLabel(domain.RoleAssistant))
	res, err := s.svc.Send(turnCtx, s.conv, prompt, func(delta string) {
		fmt.Fprint(s.out, delta)
	})
	fmt.Fprintln(s.out)

	if res != nil {
		if saveErr := s.st.SaveHistory(s.conv.Messages); saveErr != nil {
			s.log.Error("failed to save conversation", zap.Error(saveErr))
		}
		if res.State == service.TurnAborted {
			fmt.Fprintln(s.out, mutedStyle.Render("[stopped]"))
		}
		if line := sourcesLine(res.Message.Meta); line != "" {
			fmt.Fprintln(s.out, line)
		}
		if s.stats {
			s.printStats(res)
		}
	}
	fmt.Fprintln(s.out)

	if err != nil {
		if errors.Is(err, domain.ErrUpstreamUnreachable) {
			return fmt.Errorf("chat failed, is `noise serve` running? %w", err)
		}
		return err
	}
	return nil
}

func (s *chatSession) printStats(res *service.TurnResult) {
	tokens, err := transcript.EstimateTokens(res.Request)
	tokenText := fmt.Sprintf("%d", tokens)
	if err != nil {
		tokenText = "n/a"
		s.log.Debug("token estimate unavailable", zap.Error(err))
	}

	lines := []string{
		fmt.Sprintf("state      %s", res.State),
		fmt.Sprintf("messages   %d sent", len(res.Request.Messages)),
		fmt.Sprintf("tokens     ~%s prompt", tokenText),
		fmt.Sprintf("context    %d chars", len([]rune(res.Context.Text))),
		fmt.Sprintf("skipped    %s", plural(res.Skipped, "malformed line")),
	}
	fmt.Fprintln(s.out, statStyle.Render(strings.Join(lines, "\n")))
}
