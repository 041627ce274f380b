// Package main implements the interactive TaskSync client: a local
// task list with an interactive shell and encrypted sync against a
// TaskSync server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atinyakov/TaskSync/internal/client/cli"
	"github.com/atinyakov/TaskSync/internal/codec"
	"github.com/atinyakov/TaskSync/internal/kdf"
	"github.com/atinyakov/TaskSync/internal/models"
	"github.com/atinyakov/TaskSync/internal/replica"
	"github.com/atinyakov/TaskSync/internal/session"
	"github.com/atinyakov/TaskSync/internal/transport"
)

var (
	version   string
	buildDate string
)

// shell bundles everything the interactive loop needs across commands.
type shell struct {
	store         *replica.Store
	dataPath      string
	api           *cli.API
	client        *http.Client
	baseURL       string
	login         string
	transportKind string
	exchangeDir   string

	// cached after first use so one session prompts at most once
	token string
	cdc   *codec.Codec
}

// repl runs the interactive loop, accepting commands to manage tasks.
func repl(sh *shell) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("tasksync> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Println("Available commands: help, add <title>, list, show <id>, done <id>, undone <id>,")
			fmt.Println("  set title|desc|due|priority <id> <value>, rm <id>, sync, exit")
		case "add":
			if len(args) < 2 {
				fmt.Println("Usage: add <title>")
				continue
			}
			t := models.NewTask(sh.store.ReplicaID(), strings.Join(args[1:], " "))
			sh.store.Add(t)
			sh.save()
			fmt.Println("Added", shortID(t.ID()))
		case "list":
			sh.list()
		case "show":
			if len(args) < 2 {
				fmt.Println("Usage: show <id>")
				continue
			}
			sh.show(args[1])
		case "done", "undone":
			if len(args) < 2 {
				fmt.Printf("Usage: %s <id>\n", args[0])
				continue
			}
			done := args[0] == "done"
			sh.update(args[1], func(t *models.Task) {
				t.SetCompleted(done, sh.store.ReplicaID())
			})
		case "set":
			if len(args) < 4 {
				fmt.Println("Usage: set title|desc|due|priority <id> <value>")
				continue
			}
			sh.set(args[1], args[2], strings.Join(args[3:], " "))
		case "rm":
			if len(args) < 2 {
				fmt.Println("Usage: rm <id>")
				continue
			}
			id, err := sh.resolve(args[1])
			if err != nil {
				fmt.Println(err)
				continue
			}
			if err := sh.store.Delete(id); err != nil {
				fmt.Println(err)
				continue
			}
			sh.save()
			fmt.Println("Task removed")
		case "sync":
			if err := sh.sync(context.Background()); err != nil {
				fmt.Println("Sync failed:", err)
			}
		case "exit":
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

func (sh *shell) save() {
	if err := sh.store.SaveFile(sh.dataPath); err != nil {
		fmt.Println("Warning: could not save:", err)
	}
}

func (sh *shell) list() {
	tasks := sh.store.Tasks()
	if len(tasks) == 0 {
		fmt.Println("No tasks")
		return
	}
	for _, t := range tasks {
		mark := " "
		if t.Completed() {
			mark = "x"
		}
		due := ""
		if d := t.Due(); d != nil {
			due = " (due " + d.Format("2006-01-02") + ")"
		}
		fmt.Printf("[%s] %s  %-8s %s%s\n", mark, shortID(t.ID()), t.Priority(), t.Title(), due)
	}
}

func (sh *shell) show(ref string) {
	id, err := sh.resolve(ref)
	if err != nil {
		fmt.Println(err)
		return
	}
	t, _ := sh.store.Get(id)
	fmt.Println("id:         ", t.ID())
	fmt.Println("title:      ", t.Title())
	if t.Description() != "" {
		fmt.Println("description:", t.Description())
	}
	if d := t.Due(); d != nil {
		fmt.Println("due:        ", d.Format("2006-01-02"))
	}
	fmt.Println("priority:   ", t.Priority())
	fmt.Println("completed:  ", t.Completed())
	fmt.Println("created:    ", t.CreatedAt().Format(time.RFC3339))
	fmt.Println("modified:   ", t.ModifiedAt().Format(time.RFC3339), "by", t.ModifiedBy())
}

func (sh *shell) set(field, ref, value string) {
	by := sh.store.ReplicaID()
	var fn func(*models.Task)
	switch field {
	case "title":
		fn = func(t *models.Task) { t.SetTitle(value, by) }
	case "desc":
		fn = func(t *models.Task) { t.SetDescription(value, by) }
	case "due":
		if value == "none" {
			fn = func(t *models.Task) { t.SetDue(nil, by) }
			break
		}
		due, err := time.Parse("2006-01-02", value)
		if err != nil {
			fmt.Println("Due date must be YYYY-MM-DD or 'none'")
			return
		}
		fn = func(t *models.Task) { t.SetDue(&due, by) }
	case "priority":
		p, err := models.ParsePriority(value)
		if err != nil {
			fmt.Println(err)
			return
		}
		fn = func(t *models.Task) { t.SetPriority(p, by) }
	default:
		fmt.Println("Unknown field. Use title, desc, due or priority.")
		return
	}
	sh.update(ref, fn)
}

func (sh *shell) update(ref string, fn func(*models.Task)) {
	id, err := sh.resolve(ref)
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := sh.store.Update(id, fn); err != nil {
		fmt.Println(err)
		return
	}
	sh.save()
	fmt.Println("Task updated")
}

// resolve accepts a full task id or an unambiguous prefix of one.
func (sh *shell) resolve(ref string) (string, error) {
	if _, ok := sh.store.Get(ref); ok {
		return ref, nil
	}
	var match string
	for _, t := range sh.store.Tasks() {
		if strings.HasPrefix(t.ID(), ref) {
			if match != "" {
				return "", fmt.Errorf("id %q is ambiguous", ref)
			}
			match = t.ID()
		}
	}
	if match == "" {
		return "", fmt.Errorf("no task matches %q", ref)
	}
	return match, nil
}

// sync logs in (once), adopts the server's credential salt if this
// replica has none yet, derives the envelope key (once), then runs a
// full exchange and reports what changed. Every replica must derive
// from the one canonical salt the server holds; a fresh replica fetches
// it before its first key derivation.
func (sh *shell) sync(ctx context.Context) error {
	if sh.transportKind == "file" {
		if len(sh.store.Salt()) == 0 {
			return errors.New("no credential salt yet; sync against the server once before file exchanges")
		}
	} else {
		if sh.token == "" {
			password, err := cli.ReadSecret(fmt.Sprintf("Password for %s: ", sh.login))
			if err != nil {
				return err
			}
			token, err := sh.api.Login(ctx, sh.login, password)
			if err != nil {
				return err
			}
			sh.token = token
		}

		if len(sh.store.Salt()) == 0 {
			salt, err := sh.api.Salt(ctx, sh.token)
			if err != nil {
				return err
			}
			sh.store.SetSalt(salt)
			if err := sh.store.SaveFile(sh.dataPath); err != nil {
				return err
			}
		}
	}

	if sh.cdc == nil {
		credential, err := cli.ReadSecret("Sync credential: ")
		if err != nil {
			return err
		}
		key, err := kdf.Derive([]byte(credential), sh.store.Salt())
		if err != nil {
			return err
		}
		c, err := codec.New(key)
		if err != nil {
			return err
		}
		sh.cdc = c
	}

	tr, cleanup, err := sh.newTransport(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	sess := session.New(sh.store, sh.cdc, tr,
		session.WithSaver(func(s *replica.Store) error {
			return s.SaveFile(sh.dataPath)
		}),
	)

	report, err := sess.Run(ctx)
	if err != nil {
		if errors.Is(err, codec.ErrAuthentication) {
			// A bad credential and a corrupted payload are
			// indistinguishable here. Forget the key so the next
			// attempt prompts again.
			sh.cdc = nil
		}
		return err
	}

	fmt.Printf("Synced with %s: applied %d change(s), sent %d\n",
		report.PeerReplicaID, len(report.Applied), len(report.PeerOutdated))
	return nil
}

// newTransport builds the carrier the sync session runs over. The file
// transport exchanges envelope files in a directory, for syncing via
// removable media instead of a live server.
func (sh *shell) newTransport(ctx context.Context) (session.Transport, func(), error) {
	switch sh.transportKind {
	case "http":
		return transport.NewHTTP(sh.client, sh.baseURL, sh.token), func() {}, nil
	case "ws":
		header := http.Header{"Authorization": {"Bearer " + sh.token}}
		ws, err := transport.DialWS(ctx, wsURL(sh.baseURL)+"/api/sync/ws", header)
		if err != nil {
			return nil, nil, err
		}
		return ws, func() { _ = ws.Close() }, nil
	case "file":
		return transport.NewFile(
			filepath.Join(sh.exchangeDir, "outbox.envelope"),
			filepath.Join(sh.exchangeDir, "inbox.envelope"),
		), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", sh.transportKind)
}

// wsURL maps the server base URL onto its websocket scheme.
func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// loadOrInit opens the local replica file, creating a fresh identity on
// first run. A fresh replica has no credential salt; it adopts the
// server's canonical one on the first sync.
func loadOrInit(path string) (*replica.Store, error) {
	store, err := replica.LoadFile(path)
	if err == nil {
		return store, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	store = replica.New(uuid.NewString(), nil)
	if err := store.SaveFile(path); err != nil {
		return nil, err
	}
	fmt.Printf("Initialized new task list at %s\n", path)
	return store, nil
}

// main parses command-line flags and dispatches to the register or shell commands.
func main() {
	var (
		cmd           string
		baseURL       string
		dataPath      string
		loginStr      string
		transportKind string
		exchangeDir   string
		showVer       bool
	)

	flag.StringVar(&cmd, "cmd", "shell", "command: register | shell")
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	flag.StringVar(&dataPath, "data", "tasksync.json", "path to the local task list")
	flag.StringVar(&loginStr, "login", "", "server account login")
	flag.StringVar(&transportKind, "transport", "http", "sync transport: http | ws | file")
	flag.StringVar(&exchangeDir, "exchange", ".", "directory for file-transport envelope exchange")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("TaskSync Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	switch cmd {
	case "register":
		if loginStr == "" {
			log.Fatal("please provide -login=username")
		}
		password, err := cli.ReadSecretConfirmed("Choose a password: ")
		if err != nil {
			log.Fatal(err)
		}
		api := cli.NewAPI(http.DefaultClient, baseURL)
		if err := api.Register(context.Background(), loginStr, password); err != nil {
			log.Fatal(err)
		}
		fmt.Println("Account created")
	case "shell":
		switch transportKind {
		case "http", "ws", "file":
		default:
			log.Fatalf("unknown transport: %s", transportKind)
		}
		if loginStr == "" && transportKind != "file" {
			log.Fatal("please provide -login=username")
		}
		store, err := loadOrInit(dataPath)
		if err != nil {
			log.Fatal(err)
		}
		sh := &shell{
			store:         store,
			dataPath:      dataPath,
			api:           cli.NewAPI(http.DefaultClient, baseURL),
			client:        http.DefaultClient,
			baseURL:       baseURL,
			login:         loginStr,
			transportKind: transportKind,
			exchangeDir:   exchangeDir,
		}
		repl(sh)
	default:
		log.Fatalf("unknown command: %s", cmd)
	}
}
