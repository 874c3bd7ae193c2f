package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"noteflare/internal/models"
	"noteflare/internal/syncagent"
	"noteflare/internal/utils"
)

const ClientVersion = "0.1.0"

const usage = `Noteflare terminal client.

Each line typed is appended to the note body and synced live to everyone
viewing the same note. Commands:
    :show    print the note
    :retry   retry a failed save
    :quit    save and exit

Usage:
    noteflare-client [--server=<url>] --user=<username> [--password=<password>]
        [--note=<id>] [--title=<title>] [--log-level=<level>]
    noteflare-client -h | --help
    noteflare-client --version

Options:
    -h --help               Show this screen.
    --version               Show version.
    --server=<url>          Server base url [default: http://localhost:8080].
    --user=<username>       Account to log in with.
    --password=<password>   Password; prompted for when omitted.
    --note=<id>             Note to open; a new note is created when omitted.
    --title=<title>         Title for a new note [default: Untitled].
    --log-level=<level>     Log level [default: warn].`

var exit = os.Exit

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], ClientVersion)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exit(2)
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, opts, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "noteflare-client:", err)
		exit(1)
	}
}

func readPassword(opts docopt.Opts) (string, error) {
	if pw, _ := opts.String("--password"); pw != "" {
		return pw, nil
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func openNote(ctx context.Context, api *syncagent.HTTPSaver, noteID, title string) (*models.Note, error) {
	if noteID == "" {
		return api.CreateNote(ctx, models.NoteInput{Title: title, Tags: []string{}})
	}
	list, err := api.ListNotes(ctx)
	if err != nil {
		return nil, err
	}
	for _, group := range [][]models.Note{list.Notes, list.SharedNotes} {
		for i := range group {
			if group[i].ID == noteID {
				return &group[i], nil
			}
		}
	}
	return nil, fmt.Errorf("note %s not found or not shared with you", noteID)
}

func run(ctx context.Context, opts docopt.Opts, in io.Reader, out io.Writer) error {
	server, _ := opts.String("--server")
	username, _ := opts.String("--user")
	noteID, _ := opts.String("--note")
	title, _ := opts.String("--title")
	level, _ := opts.String("--log-level")

	lg, err := utils.NewLoggerWithLevel(level)
	if err != nil {
		return err
	}
	defer func() { _ = lg.Sync() }()

	password, err := readPassword(opts)
	if err != nil {
		return err
	}

	api := syncagent.NewHTTPSaver(server, "")
	user, err := api.Login(ctx, models.Credentials{Username: username, Password: password})
	if err != nil {
		return err
	}
	note, err := openNote(ctx, api, noteID, title)
	if err != nil {
		return err
	}

	transport, err := syncagent.DialWS(ctx, server, note.ID, strconv.FormatUint(uint64(user.ID), 10), nil)
	if err != nil {
		return err
	}
	defer transport.Close()

	agent := syncagent.New(api, transport, syncagent.Options{Log: lg})
	defer agent.Close()
	agent.Load(syncagent.Snapshot{DocumentID: note.ID, Title: note.Title, Body: note.Body, Tags: note.Tags})

	ed := &editor{agent: agent, out: out}
	agent.OnStateChange(ed.printState)
	transport.Listen(ed.presence, ed.remote)

	ed.printf("editing %q (%s) as %s\n", note.Title, note.ID, user.Username)
	ed.show()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ed.flush()
		case <-transport.Done():
			if err := transport.Err(); err != nil {
				lg.Warn("hub connection lost", "error", err.Error())
			}
			return ed.flush()
		case line, ok := <-lines:
			if !ok || !ed.handle(line) {
				return ed.flush()
			}
		}
	}
}

// editor maps terminal input and hub events onto the agent.
type editor struct {
	agent *syncagent.Agent

	mu  sync.Mutex
	out io.Writer
}

func (e *editor) printf(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.out, format, args...)
}

func (e *editor) handle(line string) bool {
	switch strings.TrimSpace(line) {
	case ":quit":
		return false
	case ":show":
		e.show()
	case ":retry":
		if !e.agent.Retry() {
			e.printf("nothing to retry\n")
		}
	default:
		snap := e.agent.Current()
		if snap.Body == "" {
			snap.Body = line
		} else {
			snap.Body += "\n" + line
		}
		e.agent.Edit(snap)
	}
	return true
}

func (e *editor) show() {
	snap := e.agent.Current()
	e.printf("--- %s [%s]\n%s\n---\n", snap.Title, strings.Join(snap.Tags, ", "), snap.Body)
}

func (e *editor) printState(s syncagent.State) {
	e.printf("[%s]\n", s)
}

func (e *editor) presence(others bool) {
	e.agent.SetCollaborators(others)
	if others {
		e.printf("[someone else is here]\n")
	} else {
		e.printf("[you are alone]\n")
	}
}

func (e *editor) remote(msg models.EditMessage) {
	e.agent.Load(syncagent.Snapshot{DocumentID: msg.DocumentID, Title: msg.Title, Body: msg.Body, Tags: msg.Tags})
	e.printf("[remote update]\n")
}

func (e *editor) flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.agent.Flush(ctx)
}
