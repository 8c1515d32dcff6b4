// Command import loads catalog, size map and listing sheets into the
// service database without going through HTTP, and can rebuild links or
// run a recommendation pass afterwards.
//
//	import -kind products -file catalog.xlsx -header-row 2
//	import -kind listings-b -file b.csv -rebuild-links
//	import -recommend
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"marketlink-service/internal/catalog/importer"
	"marketlink-service/internal/config"
	linking "marketlink-service/internal/linking/service"
	recommend "marketlink-service/internal/recommend/service"
	"marketlink-service/internal/storage"
)

func main() {
	var (
		kind         = flag.String("kind", "", "products | sizemap | listings-a | listings-b")
		file         = flag.String("file", "", "csv, xls or xlsx file")
		headerRow    = flag.Int("header-row", 1, "1-based header row")
		rebuildLinks = flag.Bool("rebuild-links", false, "rebuild marketplace links after import")
		recompute    = flag.Bool("recommend", false, "run a full recommendation pass after import")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := config.SetupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage")
	}
	defer store.Close()

	if *kind != "" || *file != "" {
		if err := importFile(ctx, importer.New(store, logger), *kind, *file, *headerRow); err != nil {
			logger.Error().Err(err).Str("file", *file).Msg("import failed")
			store.Close()
			os.Exit(1)
		}
	}

	if *rebuildLinks {
		st, err := linking.NewLinker(store, store, cfg.Linking.TitleThreshold, logger).Rebuild(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("link rebuild failed")
			store.Close()
			os.Exit(1)
		}
		fmt.Printf("links: linked=%d replaced=%d conflicts=%d unmatched=%d\n", st.Linked, st.Replaced, st.Conflicts, st.Unmatched)
	}

	if *recompute {
		st, err := recommend.NewProcessor(store, store, logger).Run(ctx, cfg.RunConfig(), nil)
		if err != nil {
			logger.Error().Err(err).Msg("recommendation run failed")
			store.Close()
			os.Exit(1)
		}
		fmt.Printf("recommendations: %s\n", st.Message())
	}
}

func importFile(ctx context.Context, im *importer.Importer, kind, path string, headerRow int) error {
	k, err := importer.ParseKind(kind)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := im.Import(ctx, k, f, path, headerRow)
	if err != nil {
		return err
	}
	fmt.Printf("%s: rows written=%d skipped=%d replaced=%d\n", res.Kind, res.Stats.Written, res.Stats.Skipped, res.Stats.Replaced)
	return nil
}
