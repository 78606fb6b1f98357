// Command inbox ingests receipt images dropped into a directory: each new
// file is run through extraction and stored for the given account. With
// -watch it keeps running and picks up files as they appear.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"receiptvault/models"
	"receiptvault/pkg/blob"
	"receiptvault/pkg/extract"
	"receiptvault/store"
)

// supported image types; anything else in the inbox is skipped
var extMime = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

var (
	dry     bool
	verbose bool
)

// mustStoreFromEnv mirrors the server's backend selection: remote database
// when the Supabase env pair is set, local fallback store otherwise.
func mustStoreFromEnv() store.Store {
	dbURL := os.Getenv("SUPABASE_DB_URL")
	key := os.Getenv("SUPABASE_SERVICE_KEY")
	if dbURL != "" && key != "" {
		dsn, err := store.BuildDSN(dbURL, key)
		if err != nil {
			log.Fatalf("bad SUPABASE_DB_URL: %v", err)
		}
		gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		return store.NewPostgres(gdb)
	}
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	fs, err := blob.NewFileStore(dataDir)
	if err != nil {
		log.Fatalf("open local store: %v", err)
	}
	return store.NewLocal(fs)
}

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", "inbox", "directory to ingest receipt images from")
	email := flag.String("email", "", "account email the receipts belong to (required)")
	watch := flag.Bool("watch", false, "keep watching the directory for new files")
	flag.BoolVar(&dry, "dry", false, "print proposed receipts without storing them")
	flag.BoolVar(&verbose, "v", false, "verbose logging")
	flag.Parse()

	if *email == "" {
		log.Fatal("-email is required")
	}

	ctx := context.Background()
	s := mustStoreFromEnv()
	client := extract.NewClient(os.Getenv("OPENAI_API_KEY"))

	owner, err := s.GetUserByEmail(ctx, *email)
	if err != nil {
		log.Fatalf("account %s: %v", *email, err)
	}

	entries, err := os.ReadDir(*dir)
	if err != nil {
		log.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ingestFile(ctx, s, client, owner.ID, filepath.Join(*dir, e.Name()))
	}

	if *watch {
		if err := watchDir(ctx, s, client, owner.ID, *dir); err != nil {
			log.Fatalf("watch: %v", err)
		}
	}
}

func ingestFile(ctx context.Context, s store.Store, client *extract.Client, userID, path string) {
	mediaType, ok := extMime[strings.ToLower(filepath.Ext(path))]
	if !ok {
		if verbose {
			log.Printf("skip %s: unsupported extension", path)
		}
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("read %s: %v", path, err)
		return
	}
	fields, err := client.Extract(ctx, data, mediaType)
	if err != nil {
		log.Printf("extract %s: %v", path, err)
		return
	}
	r := &models.Receipt{
		Vendor:   fields.Vendor,
		Date:     fields.Date,
		Amount:   models.CentsFromFloat(fields.Amount),
		Currency: fields.Currency,
		Category: fields.Category,
	}
	if dry {
		log.Printf("would store %s: vendor=%s date=%s amount=%.2f %s category=%s",
			filepath.Base(path), r.Vendor, r.Date, r.Amount.Float(), r.Currency, r.Category)
		return
	}
	created, err := store.AddReceipt(ctx, s, userID, r)
	if err != nil {
		if errors.Is(err, store.ErrQuotaExceeded) {
			log.Printf("skip %s: %v", path, err)
			return
		}
		log.Printf("store %s: %v", path, err)
		return
	}
	log.Printf("stored %s as receipt %s", filepath.Base(path), created.ID)
}

// watchDir ingests files as they land. Create events are debounced so a
// file still being written is not read half-finished.
func watchDir(ctx context.Context, s store.Store, client *extract.Client, userID, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Printf("Watching %s (debounced) ...", dir)

	pending := map[string]time.Time{}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == fsnotify.Create || ev.Op&fsnotify.Write == fsnotify.Write {
				if _, ok := extMime[strings.ToLower(filepath.Ext(ev.Name))]; ok {
					pending[ev.Name] = time.Now()
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch error: %v", err)
		case <-ticker.C:
			for name, seen := range pending {
				if time.Since(seen) < time.Second {
					continue
				}
				delete(pending, name)
				ingestFile(ctx, s, client, userID, name)
			}
		}
	}
}
