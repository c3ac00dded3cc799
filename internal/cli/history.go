package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"
	"github.com/yolodolo42/dagent/internal/agent"
	"github.com/yolodolo42/dagent/internal/api"
	"github.com/yolodolo42/dagent/internal/cache"
	"github.com/yolodolo42/dagent/internal/transcript"
	"github.com/yolodolo42/dagent/internal/ui"
	"golang.org/x/term"
)

const historyRule = "─────────────────────────────────────────────────────────"

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Browse past conversations",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE:  runWithApp(runHistoryList),
	}
	listCmd.Flags().Int("page", 1, "Page number")
	listCmd.Flags().Int("size", 20, "Conversations per page")
	listCmd.Flags().Bool("offline", false, "List from the local cache without contacting the server")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  runWithApp(runHistoryShow),
	}
	showCmd.Flags().Bool("offline", false, "Read from the local cache without contacting the server")
	showCmd.Flags().Bool("raw", false, "Print the reconciled messages as JSON")
	showCmd.Flags().Bool("tools", false, "Expand tool calls")

	renameCmd := &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runWithApp(runHistoryRename),
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  runWithApp(runHistoryDelete),
	}
	deleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	historyCmd.AddCommand(listCmd, showCmd, renameCmd, deleteCmd)
	return historyCmd
}

func init() {
	rootCmd.AddCommand(newHistoryCmd())
}

func parseConversationID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id: %q", s)
	}
	return id, nil
}

func runHistoryList(cmd *cobra.Command, _ []string, a *app) error {
	out := cmd.OutOrStdout()
	page, _ := cmd.Flags().GetInt("page")
	size, _ := cmd.Flags().GetInt("size")
	offline, _ := cmd.Flags().GetBool("offline")

	var convs []api.Conversation
	footer := ""
	if offline {
		if a.cache == nil {
			return errors.New("history cache is disabled")
		}
		var err error
		if convs, err = a.cache.Conversations(cmd.Context(), size); err != nil {
			return err
		}
		footer = "(from local cache)"
	} else {
		if err := a.requireLogin(); err != nil {
			return err
		}
		res, err := a.client.ListConversations(cmd.Context(), page, size)
		if err != nil {
			return err
		}
		convs = res.Records
		footer = fmt.Sprintf("Page %d of %d • %d conversations", res.Current, max(res.Pages, 1), res.Total)
		a.cacheConversations(cmd, convs)
	}

	if len(convs) == 0 {
		fmt.Fprintln(out, "No conversations yet.")
		return nil
	}

	fmt.Fprintln(out, historyRule)
	for _, c := range convs {
		title := truncate.StringWithTail(firstNonEmpty(c.Title, "(untitled)"), 36, "…")
		fmt.Fprintf(out, "%6d  %-36s  %s\n", c.ID, title, firstNonEmpty(c.UpdatedAt, c.CreatedAt))
	}
	fmt.Fprintln(out, historyRule)
	fmt.Fprintln(out, ui.SystemStyle.Render(footer))
	return nil
}

func (a *app) cacheConversations(cmd *cobra.Command, convs []api.Conversation) {
	if a.cache == nil {
		return
	}
	for _, c := range convs {
		if err := a.cache.PutConversation(cmd.Context(), c); err != nil {
			a.log.Warn("failed to cache conversation", "conversation", c.ID, "error", err)
			return
		}
	}
}

func runHistoryShow(cmd *cobra.Command, args []string, a *app) error {
	out := cmd.OutOrStdout()
	offline, _ := cmd.Flags().GetBool("offline")
	raw, _ := cmd.Flags().GetBool("raw")
	tools, _ := cmd.Flags().GetBool("tools")

	id, err := parseConversationID(args[0])
	if err != nil {
		return err
	}

	var (
		conv     api.Conversation
		messages []transcript.Message
	)
	if offline {
		if a.cache == nil {
			return errors.New("history cache is disabled")
		}
		messages, err = a.cache.Messages(cmd.Context(), id)
		if errors.Is(err, cache.ErrNotFound) {
			return fmt.Errorf("conversation %d is not cached; run without --offline", id)
		}
		if err != nil {
			return err
		}
		conv, _ = a.cache.Conversation(cmd.Context(), id)
	} else {
		if err := a.requireLogin(); err != nil {
			return err
		}
		if conv, err = a.client.GetConversation(cmd.Context(), id); err != nil {
			return err
		}
		if messages, err = a.client.Messages(cmd.Context(), id); err != nil {
			return err
		}
		if a.cache != nil {
			if err := a.cache.PutConversation(cmd.Context(), conv); err != nil {
				a.log.Warn("failed to cache conversation", "conversation", id, "error", err)
			}
			if err := a.cache.PutMessages(cmd.Context(), id, messages); err != nil {
				a.log.Warn("failed to cache messages", "conversation", id, "error", err)
			}
		}
	}

	reconciled := transcript.Reconcile(messages)
	if raw {
		data, err := json.MarshalIndent(reconciled, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode messages: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	r := ui.NewRenderer(terminalWidth(out), "auto")
	r.ShowTools = tools
	r.Redact = agent.RedactJSONArgs

	fmt.Fprintln(out, ui.TitleStyle.Render(fmt.Sprintf("#%d %s", id, firstNonEmpty(conv.Title, "(untitled)"))))
	fmt.Fprintln(out)
	if len(reconciled) == 0 {
		fmt.Fprintln(out, ui.SystemStyle.Render("No messages."))
		return nil
	}
	fmt.Fprintln(out, r.Transcript(reconciled))
	return nil
}

func runHistoryRename(cmd *cobra.Command, args []string, a *app) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	id, err := parseConversationID(args[0])
	if err != nil {
		return err
	}
	title := strings.TrimSpace(strings.Join(args[1:], " "))
	if title == "" {
		return errors.New("title is required")
	}

	conv, err := a.client.RenameConversation(cmd.Context(), id, title)
	if err != nil {
		return err
	}
	if conv.ID == 0 {
		conv = api.Conversation{ID: id, Title: title}
	}
	a.cacheConversations(cmd, []api.Conversation{conv})

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Renamed #%d to %q\n", id, conv.Title)
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string, a *app) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	id, err := parseConversationID(args[0])
	if err != nil {
		return err
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		answer, err := newPrompter(cmd).Line(fmt.Sprintf("Delete conversation #%d? [y/N] ", id))
		if err != nil {
			return err
		}
		if ans := strings.ToLower(strings.TrimSpace(answer)); ans != "y" && ans != "yes" {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}

	if err := a.client.DeleteConversation(cmd.Context(), id); err != nil {
		return err
	}
	if a.cache != nil {
		if err := a.cache.Delete(cmd.Context(), id); err != nil {
			a.log.Warn("failed to remove cached conversation", "conversation", id, "error", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted #%d\n", id)
	return nil
}

// terminalWidth is the width of w when it is a terminal, 80 otherwise.
func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}
