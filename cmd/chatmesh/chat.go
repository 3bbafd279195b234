package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/chatmesh"
	"github.com/hupe1980/chatmesh/export"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Starts a read-eval-print loop against the current agent.

Commands:
  /agents            list agents
  /use <agent>       switch the current agent
  /clear             clear the current agent's history
  /history           print the current agent's history
  /export [path]     export the history (.md or .json, default JSON)
  /tools             list the current agent's tools
  /reload            rebuild agents from the configuration file
  /quit              leave the session`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Ask a single question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(true)
		defer cancel()

		mesh, err := openMesh(ctx)
		if err != nil {
			return err
		}
		defer mesh.Close()

		name, _ := cmd.Flags().GetString("agent")
		answer, err := mesh.Chat(ctx, strings.Join(args, " "), name)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
	},
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(false)
	defer cancel()

	mesh, err := openMesh(ctx)
	if err != nil {
		return err
	}
	defer mesh.Close()

	if name, _ := cmd.Flags().GetString("agent"); name != "" {
		if err := mesh.Directory().SetCurrent(name); err != nil {
			return err
		}
	}

	return repl(ctx, mesh, cmd.InOrStdin(), cmd.OutOrStdout())
}

// repl reads one line per turn until EOF, /quit or cancellation.
func repl(ctx context.Context, mesh *chatmesh.ChatMesh, in io.Reader, out io.Writer) error {
	dir := mesh.Directory()
	fmt.Fprintf(out, "chatmesh - talking to %s. Type /help for commands.\n", dir.CurrentName())

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprintf(out, "\n[%s] > ", dir.CurrentName())
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := command(ctx, mesh, line, out)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		answer, err := mesh.Chat(ctx, line, "")
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, answer)
	}
}

// command runs a slash command and reports whether the session should end.
func command(ctx context.Context, mesh *chatmesh.ChatMesh, line string, out io.Writer) (bool, error) {
	dir := mesh.Directory()
	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch verb {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help":
		fmt.Fprintln(out, "/agents /use <agent> /clear /history /export [path] /tools /reload /quit")

	case "/agents":
		current := dir.CurrentName()
		for _, info := range dir.List() {
			marker := " "
			if info.ID == current {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-16s %s (%d messages)\n", marker, info.ID, info.Description, info.MessageCount)
		}

	case "/use":
		if arg == "" {
			return false, fmt.Errorf("usage: /use <agent>")
		}
		if err := dir.SetCurrent(arg); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "now talking to %s\n", arg)

	case "/clear":
		if err := dir.ClearHistory(""); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "history cleared")

	case "/history":
		for _, m := range dir.Current().History() {
			fmt.Fprintf(out, "%s [%s] %s\n", m.Timestamp.Format("15:04:05"), m.Role, m.Content)
		}

	case "/export":
		a := dir.Current()
		path, err := export.Write(arg, "", a.ID(), a.History())
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "exported to %s\n", path)

	case "/tools":
		tools := dir.Current().Tools()
		if len(tools) == 0 {
			fmt.Fprintln(out, "no tools enabled")
			break
		}
		fmt.Fprintln(out, strings.Join(tools, ", "))

	case "/reload":
		if err := mesh.Reload(ctx); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "reloaded %d agents\n", len(dir.Names()))

	default:
		return false, fmt.Errorf("unknown command %s", verb)
	}
	return false, nil
}

