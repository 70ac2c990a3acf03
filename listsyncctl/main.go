package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/joho/godotenv"

	"github.com/gerardojimenezvelasco74-arch/listacompartida/listsync"
)

const ListSyncCtlVersion = "0.1.0"

const DefaultUrl = "ws://localhost:4040/sync"
const DefaultListen = ":4040"

// createdAt format used by all clients
const CreatedAtFormat = "02/01/2006 15:04"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Lista compartida control.

The store url and collection root can also be set in the environment or a
.env file as LISTSYNC_URL and LISTSYNC_ROOT. Defaults:
    url: ws://localhost:4040/sync
    root: compras

Usage:
    listsyncctl serve [--listen=<listen>]
    listsyncctl sections [--url=<url>] [--root=<root>]
    listsyncctl watch [--url=<url>] [--root=<root>]
    listsyncctl create-section --name=<name> [--url=<url>] [--root=<root>]
    listsyncctl rename-section <section_id> --name=<name> [--url=<url>] [--root=<root>]
    listsyncctl delete-section <section_id> [--url=<url>] [--root=<root>]
    listsyncctl add-item <section_id> --producto=<producto>
        [--cantidad=<cantidad>] [--precio=<precio>]
        [--url=<url>] [--root=<root>]
    listsyncctl update-item <section_id> <item_id> --producto=<producto>
        [--cantidad=<cantidad>] [--precio=<precio>]
        [--url=<url>] [--root=<root>]
    listsyncctl delete-item <section_id> <item_id> [--url=<url>] [--root=<root>]
    listsyncctl total <section_id> [--url=<url>] [--root=<root>]

Options:
    -h --help              Show this screen.
    --version              Show version.
    --listen=<listen>      Listen address for serve [default: :4040].
    --url=<url>            Store websocket url.
    --root=<root>          Collection root path.
    --name=<name>          Section name.
    --producto=<producto>  Item name.
    --cantidad=<cantidad>  Item quantity, free-form.
    --precio=<precio>      Item price, free-form.`

	// optional env file
	godotenv.Load()

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ListSyncCtlVersion)
	if err != nil {
		panic(err)
	}

	if serve_, _ := opts.Bool("serve"); serve_ {
		serve(opts)
	} else if sections_, _ := opts.Bool("sections"); sections_ {
		sections(opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	} else if createSection_, _ := opts.Bool("create-section"); createSection_ {
		createSection(opts)
	} else if renameSection_, _ := opts.Bool("rename-section"); renameSection_ {
		renameSection(opts)
	} else if deleteSection_, _ := opts.Bool("delete-section"); deleteSection_ {
		deleteSection(opts)
	} else if addItem_, _ := opts.Bool("add-item"); addItem_ {
		upsertItem(opts, false)
	} else if updateItem_, _ := opts.Bool("update-item"); updateItem_ {
		upsertItem(opts, true)
	} else if deleteItem_, _ := opts.Bool("delete-item"); deleteItem_ {
		deleteItem(opts)
	} else if total_, _ := opts.Bool("total"); total_ {
		total(opts)
	}
}

func serve(opts docopt.Opts) {
	listen, _ := opts.String("--listen")
	if listen == "" {
		listen = DefaultListen
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := listsync.NewMemoryTreeStore(ctx)
	server := listsync.NewWsTreeServer(ctx, store)

	mux := http.NewServeMux()
	mux.Handle("/sync", server)

	Out.Printf("serving list store on %s", listen)
	if err := http.ListenAndServe(listen, mux); err != nil {
		Err.Fatal(err)
	}
}

func sections(opts docopt.Opts) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, closeStore := connect(ctx, opts)
	defer closeStore()

	sub, err := engine.SubscribeSections()
	if err != nil {
		Err.Fatal(err)
	}
	defer sub.Close()

	if err := waitReady(sub); err != nil {
		Err.Fatal(err)
	}
	printSections(sub.Snapshot())
}

func watch(opts docopt.Opts) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, closeStore := connect(ctx, opts)
	defer closeStore()

	sub, err := engine.SubscribeSections()
	if err != nil {
		Err.Fatal(err)
	}
	defer sub.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for {
		notify := sub.NotifyChannel()
		if err := sub.Err(); err != nil {
			Err.Fatal(err)
		}
		if sub.Ready() {
			printSections(sub.Snapshot())
		}
		select {
		case <-notify:
		case <-stop:
			return
		}
	}
}

func createSection(opts docopt.Opts) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, closeStore := connect(ctx, opts)
	defer closeStore()

	name, _ := opts.String("--name")
	createdAt := time.Now().Format(CreatedAtFormat)
	sectionId, err := engine.CreateSection(ctx, name, createdAt)
	if err != nil {
		Err.Fatal(err)
	}
	Out.Printf("%s", sectionId)
}

func renameSection(opts docopt.Opts) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, closeStore := connect(ctx, opts)
	defer closeStore()

	sectionId, _ := opts.String("<section_id>")
	name, _ := opts.String("--name")

	// the engine preserves fechaCreacion from an observed sections snapshot
	sub, err := engine.SubscribeSections()
	if err != nil {
		Err.Fatal(err)
	}
	defer sub.Close()
	if err := waitReady(sub); err != nil {
		Err.Fatal(err)
	}

	if err := engine.RenameSection(ctx, sectionId, name); err != nil {
		Err.Fatal(err)
	}
}

func deleteSection(opts docopt.Opts) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, closeStore := connect(ctx, opts)
	defer closeStore()

	sectionId, _ := opts.String("<section_id>")
	if err := engine.DeleteSection(ctx, sectionId); err != nil {
		Err.Fatal(err)
	}
}

func upsertItem(opts docopt.Opts, update bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, closeStore := connect(ctx, opts)
	defer closeStore()

	sectionId, _ := opts.String("<section_id>")
	existingId := ""
	if update {
		existingId, _ = opts.String("<item_id>")
	}

	item := listsync.Item{}
	item.Name, _ = opts.String("--producto")
	item.Quantity, _ = opts.String("--cantidad")
	item.Price, _ = opts.String("--precio")

	itemId, err := engine.UpsertItem(ctx, sectionId, item, existingId)
	if err != nil {
		Err.Fatal(err)
	}
	Out.Printf("%s", itemId)
}

func deleteItem(opts docopt.Opts) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, closeStore := connect(ctx, opts)
	defer closeStore()

	sectionId, _ := opts.String("<section_id>")
	itemId, _ := opts.String("<item_id>")
	if err := engine.DeleteItem(ctx, sectionId, itemId); err != nil {
		Err.Fatal(err)
	}
}

func total(opts docopt.Opts) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, closeStore := connect(ctx, opts)
	defer closeStore()

	sectionId, _ := opts.String("<section_id>")
	sub, err := engine.SubscribeItems(sectionId)
	if err != nil {
		Err.Fatal(err)
	}
	defer sub.Close()

	if err := waitReady(sub); err != nil {
		Err.Fatal(err)
	}
	Out.Printf("%g", listsync.TotalSpentOfEntries(sub.Snapshot()))
}

func connect(ctx context.Context, opts docopt.Opts) (*listsync.SyncEngine, func()) {
	url, _ := opts.String("--url")
	if url == "" {
		url = os.Getenv("LISTSYNC_URL")
	}
	if url == "" {
		url = DefaultUrl
	}

	root, _ := opts.String("--root")
	if root == "" {
		root = os.Getenv("LISTSYNC_ROOT")
	}
	if root == "" {
		root = listsync.DefaultRootPath
	}

	client, err := listsync.NewWsTreeClientWithDefaults(ctx, url)
	if err != nil {
		Err.Fatal(err)
	}

	settings := listsync.DefaultSyncEngineSettings()
	settings.RootPath = root
	engine := listsync.NewSyncEngine(ctx, client, settings)
	return engine, client.Close
}

func waitReady[T any](sub *listsync.Subscription[T]) error {
	timeout := time.After(15 * time.Second)
	for {
		notify := sub.NotifyChannel()
		if err := sub.Err(); err != nil {
			return err
		}
		if sub.Ready() {
			return nil
		}
		select {
		case <-notify:
		case <-timeout:
			return fmt.Errorf("timeout waiting for initial snapshot")
		}
	}
}

func printSections(entries []listsync.Entry[listsync.Section]) {
	Out.Printf("sections (%d):", len(entries))
	for _, entry := range entries {
		Out.Printf("  %s  %s  (created %s)", entry.Id, entry.Value.Name, entry.Value.CreatedAt)
	}
}
