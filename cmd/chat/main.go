package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"docassist-be/internal/bootstrap"
	"docassist-be/internal/config"
	"docassist-be/internal/pkg/logger"
	"docassist-be/pkg/chat/collaborator"
	"docassist-be/pkg/chat/message"
	"docassist-be/pkg/chat/session"

	"github.com/fatih/color"
	"github.com/jonboulle/clockwork"
)

const help = "Commands: /upload <path>  /yes  /reset  /quit  (anything else is sent as a message)"

// printer writes every message the first time a change carries it. Replies
// replace the whole conversation with fresh ids, so messages are matched by
// role and text, counting repeats.
type printer struct {
	mu         sync.Mutex
	out        io.Writer
	printed    map[string]int
	suggestion string
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, printed: make(map[string]int)}
}

func printKey(msg message.Message) string {
	return string(msg.Role()) + "\x00" + msg.Text()
}

func (p *printer) OnChange(c session.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c.Cause == session.CauseReset {
		p.printed = make(map[string]int)
		p.suggestion = ""
		color.New(color.FgCyan).Fprintln(p.out, "\n--- New chat ---")
	}
	p.printNew(c.State.Messages)
}

func (p *printer) printNew(msgs []message.Message) {
	occurrences := make(map[string]int)
	for _, msg := range msgs {
		key := printKey(msg)
		occurrences[key]++
		if occurrences[key] <= p.printed[key] {
			continue
		}
		p.printed[key] = occurrences[key]
		p.render(msg)

		if s, ok := message.Suggest(msg); ok {
			p.suggestion = s.ActionKey
		}
	}
}

func (p *printer) pending() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suggestion
}

func (p *printer) render(msg message.Message) {
	stamp := msg.CreatedAt().Format("15:04")
	green := color.New(color.FgGreen)
	switch msg.Role() {
	case message.RoleUser:
		green.Fprintf(p.out, "[%s] You: %s\n", stamp, msg.Text())
		for _, a := range message.AttachmentsOf(msg) {
			green.Fprintf(p.out, "        📎 %s (%s)\n", a.Name, a.DisplaySize)
		}
	case message.RoleSystem:
		color.New(color.FgYellow).Fprintf(p.out, "[%s] %s\n", stamp, msg.Text())
	default:
		color.New(color.FgWhite).Fprintf(p.out, "[%s] Assistant: %s\n", stamp, msg.Text())
		if s, ok := message.Suggest(msg); ok {
			color.New(color.FgMagenta).Fprintf(p.out, "        💡 %s (type /yes)\n", s.PromptText)
		}
	}
}

func readFile(path string) (collaborator.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return collaborator.File{}, err
	}
	return collaborator.File{
		Name:        filepath.Base(path),
		Size:        int64(len(data)),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Body:        bytes.NewReader(data),
	}, nil
}

func main() {
	cfg := config.Load()
	clock := clockwork.NewRealClock()
	log := logger.NewIsolatedLogger(cfg.App.LogFilePath)
	defer log.Sync()

	conversation, documents := bootstrap.NewCollaborators(cfg, clock, log)
	controller := session.New(conversation, documents, session.Options{
		Clock:  clock,
		Delay:  cfg.Session.ProcessingDelay,
		Logger: log,
	})

	p := newPrinter(color.Output)
	p.OnChange(session.Change{State: controller.Snapshot()})
	controller.Subscribe(p)

	color.Cyan(help)
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue

		case line == "/quit":
			return

		case line == "/reset":
			if err := controller.Reset(); err != nil {
				color.Red("Cannot reset: %v", err)
			}

		case line == "/yes":
			key := p.pending()
			if key == "" {
				color.Red("There is no suggestion to accept")
				continue
			}
			<-controller.AcceptSuggestion(ctx, key)

		case strings.HasPrefix(line, "/upload"):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/upload"))
			file, err := readFile(path)
			if err != nil {
				color.Red("Cannot read %s: %v", path, err)
				continue
			}
			done, ok := controller.UploadFile(ctx, file)
			if !ok {
				color.Red("An upload is already in progress")
				continue
			}
			<-done

		default:
			done, ok := controller.SendMessage(ctx, line)
			if !ok {
				color.Red("Still waiting for the previous reply")
				continue
			}
			<-done
		}
	}
}
