package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"graphclone/backend/internal/bootstrap"
	"graphclone/backend/internal/record"
	"graphclone/backend/internal/schema"
	"graphclone/backend/internal/store"
	"graphclone/backend/internal/update"
	"graphclone/backend/pkg/config"
	"graphclone/backend/pkg/logger"
)

// seedFile lists records to create. Each payload is applied to a new record
// of the given type as a nested partial update.
type seedFile struct {
	Records []struct {
		Type    string         `yaml:"type"`
		Payload map[string]any `yaml:"payload"`
	} `yaml:"records"`
}

func main() {
	file := flag.String("file", "seed.yaml", "YAML file listing records to create")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting database seeding...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	reg, err := schema.LoadFile(cfg.SchemaFile)
	if err != nil {
		log.Fatal("Failed to load schema", zap.Error(err))
	}

	s, closeStore, err := bootstrap.OpenStore(ctx, cfg, reg, log)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeStore()

	created, err := seed(ctx, s, *file, log)
	if err != nil {
		log.Fatal("Seeding failed", zap.Error(err))
	}
	for _, rec := range created {
		fmt.Fprintf(os.Stdout, "%s\t%s\n", rec.Type, rec.ID)
	}
	log.Info("Seeding completed successfully!", zap.Int("records", len(created)))
}

// seed creates every record in path inside one transaction.
func seed(ctx context.Context, s store.Store, path string, log *zap.Logger) ([]*record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	applier := update.NewApplier(s, update.WithLogger(log.Named("update")))
	var created []*record.Record
	err = s.WithTx(ctx, func(tx store.Store) error {
		for i, r := range f.Records {
			rec, err := tx.New(ctx, r.Type)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			payload := r.Payload
			if payload == nil {
				payload = map[string]any{}
			}
			if _, err := applier.In(tx).Update(ctx, rec, payload); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			log.Info("Created record", zap.String("type", rec.Type), zap.String("id", rec.ID))
			created = append(created, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
