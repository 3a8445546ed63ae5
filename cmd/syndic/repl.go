package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/0xcro3dile/syndic-rag/internal/config"
	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
)

const replHelp = `Commandes :
  /reset   nouvelle conversation
  /aide    cette aide
  /quit    quitter
`

func runChat(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	plain := fs.Bool("plain", false, "print answers without markdown rendering")
	fs.Parse(args)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("Chargement de l'index...")
	if err := a.orchestrator.Warm(ctx); err != nil {
		return err
	}

	render := markdownRenderer(*plain || !term.IsTerminal(int(os.Stdout.Fd())))

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	historyFile := replHistoryPath()
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
		line.Close()
	}()

	fmt.Print("Posez une question sur la copropriété. /aide pour les commandes.\n\n")

	var history []entities.ChatTurn
	for ctx.Err() == nil {
		input, err := line.Prompt("syndic> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch input {
		case "/quit", "/exit":
			return nil
		case "/aide", "/help":
			fmt.Print(replHelp)
			continue
		case "/reset":
			history = nil
			fmt.Println("Conversation effacée.")
			continue
		}

		resp, err := a.orchestrator.Respond(ctx, history, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[Erreur] %v\n", err)
			continue
		}

		history = append(history,
			entities.ChatTurn{Role: "user", Content: input},
			entities.ChatTurn{Role: "assistant", Content: resp.Answer},
		)

		fmt.Print(render(resp.Answer))
		fmt.Println(formatFooter(resp))
	}
	return nil
}

// markdownRenderer returns a function rendering answers for the terminal.
// Rendering falls back to the raw text on any error.
func markdownRenderer(plain bool) func(string) string {
	raw := func(s string) string { return s + "\n" }
	if plain {
		return raw
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return raw
	}
	return func(s string) string {
		out, err := r.Render(s)
		if err != nil {
			return raw(s)
		}
		return out
	}
}

// formatFooter shows the route and the distinct source documents.
func formatFooter(resp *entities.ChatResponse) string {
	footer := "[" + string(resp.Route) + "]"

	seen := make(map[string]bool)
	var names []string
	for _, s := range resp.Sources {
		if s.SourceDoc != "" && !seen[s.SourceDoc] {
			seen[s.SourceDoc] = true
			names = append(names, s.SourceDoc)
		}
	}
	if len(names) > 0 {
		footer += " Sources : " + strings.Join(names, ", ")
	}
	return footer + "\n"
}

func replHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".syndic_history")
}
