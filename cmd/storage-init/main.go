package main

import (
	"context"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"taskboard/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	ctx := context.Background()
	backend := envOr("STORAGE_BACKEND", "sqlite")
	log.WithField("backend", backend).Info("storage init starting")

	switch backend {
	case "sqlite":
		db, err := storage.OpenSQLite(envOr("SQLITE_PATH", "taskboard.db"))
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		_ = db.Close()
	case "tables":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			log.Fatal("missing STORAGE_CONNECTION_STRING")
		}
		if err := storage.EnsureTables(ctx, connStr, storage.TableNames{
			Boards:     envOr("BOARDS_TABLE", "boards"),
			Lists:      envOr("LISTS_TABLE", "lists"),
			Cards:      envOr("CARDS_TABLE", "cards"),
			Comments:   envOr("COMMENTS_TABLE", "comments"),
			Activities: envOr("ACTIVITIES_TABLE", "activities"),
		}); err != nil {
			log.Fatalf("create tables: %v", err)
		}
	default:
		log.Fatalf("invalid STORAGE_BACKEND %q", backend)
	}

	if queue := os.Getenv("AUDIT_QUEUE"); queue != "" {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			log.Fatal("AUDIT_QUEUE requires STORAGE_CONNECTION_STRING")
		}
		if err := storage.EnsureQueues(ctx, connStr, queue); err != nil {
			log.Fatalf("create queues: %v", err)
		}
	}

	log.Info("storage init complete")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
