package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/goalcoach/internal/agent"
	"github.com/ashureev/goalcoach/internal/app"
	"github.com/ashureev/goalcoach/internal/transcript"
	"github.com/spf13/cobra"
)

// replier is the part of *agent.Service the chat command needs.
type replier interface {
	Reply(ctx context.Context, req agent.ChatRequest) (*agent.ChatResult, error)
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Send messages to the coach",
		Long: `Send one message to the coach, or with no arguments read one message per
line from stdin. Every line continues the same conversation.`,
		Example: `  coachctl chat "I want to run a marathon in October"
  coachctl chat --conversation 3f0c... "I ran 10k today"
  printf 'hi\nwhat are my goals?\n' | coachctl chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			coach, err := app.New(cmd.Context(), cfg, opts.logger(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = coach.Close() }()

			return runChat(cmd.Context(), coach.Chat, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), agent.ChatRequest{
				UserID:         opts.userID,
				ConversationID: conversationID,
				Channel:        transcript.ChannelCLI,
			}, args)
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Continue an existing conversation")
	return cmd
}

// runChat sends args as one message, or each non-blank line of in when args is
// empty. The conversation started by the first turn is reused for the rest.
func runChat(ctx context.Context, coach replier, in io.Reader, out, errOut io.Writer, base agent.ChatRequest, args []string) error {
	turn := func(message string) error {
		req := base
		req.Message = message
		res, err := coach.Reply(ctx, req)
		if err != nil {
			return err
		}
		if base.ConversationID == "" {
			fmt.Fprintf(errOut, "conversation %s\n", res.ConversationID)
			base.ConversationID = res.ConversationID
		}
		_, err = fmt.Fprintf(out, "coach: %s\n", res.Content)
		return err
	}

	if len(args) > 0 {
		return turn(strings.Join(args, " "))
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := turn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}
