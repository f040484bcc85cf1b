/*
Example code showing how to run the tracker over frames of precomputed
detection embeddings and refine the resulting association graph with a GCN
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/swdee/go-mcmot"
	"github.com/swdee/go-mcmot/internal/config"
	"github.com/swdee/go-mcmot/internal/logging"
	"github.com/swdee/go-mcmot/internal/metrics"
	"github.com/swdee/go-mcmot/postprocess/reid"
	"github.com/swdee/go-mcmot/refine"
	"github.com/swdee/go-mcmot/tracker"
	"gonum.org/v1/gonum/mat"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	cfgFile := flag.String("c", "", "YAML config file")
	envFile := flag.String("env", ".env", "Environment file loaded before the config")
	framesFile := flag.String("f", "-", "Frames file, one JSON array of embeddings per line, - for stdin")
	threshold := flag.Float64("t", tracker.DefaultLinkThreshold, "Override the cosine similarity link threshold (0.0-1.0]")
	infer := flag.Bool("infer", false, "Run GCN refinement over the association graph after the last frame")
	verbose := flag.Bool("v", false, "Print how each detection was assigned")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address, eg: :2112")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatal("Error loading environment: ", err)
	}

	cfg, err := config.Load(*cfgFile)

	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	if isFlagSet(flag.CommandLine, "t") {
		if err := overrideThreshold(cfg, *threshold); err != nil {
			log.Fatal("Invalid threshold: ", err)
		}
	}

	logger, err := logging.NewLogger(cfg.Log, os.Stderr)

	if err != nil {
		log.Fatal("Error creating logger: ", err)
	}

	in := os.Stdin

	if *framesFile != "-" {
		f, err := os.Open(*framesFile)

		if err != nil {
			log.Fatal("Error opening frames file: ", err)
		}

		defer f.Close()
		in = f
	}

	frames, err := ReadFrames(in)

	if err != nil {
		log.Fatal("Error reading frames: ", err)
	}

	var srv *http.Server

	if *metricsAddr != "" {
		srv = serveMetrics(*metricsAddr, logger)
	}

	tr, err := mcmot.New[[]float32](mcmot.PassThrough{}, nil,
		tracker.WithLinkThreshold(cfg.LinkThreshold),
		tracker.WithLogger(logger),
		tracker.WithRecorder(metrics.NewRecorder()),
	)

	if err != nil {
		log.Fatal("Error creating tracker: ", err)
	}

	start := time.Now()

	if err := run(tr, frames, *verbose); err != nil {
		log.Fatal(err)
	}

	logger.Info().
		Int("frames", len(frames)).
		Int("nodes", tr.Graph().Graph().Nodes()).
		Int("edges", tr.Graph().Graph().Edges()).
		Int("tracks", tr.Graph().Graph().Tracks()).
		Dur("elapsed", time.Since(start)).
		Msg("tracking complete")

	if *infer {
		if err := runInference(tr.Graph(), cfg.GCN); err != nil {
			log.Fatal(err)
		}
	}

	if srv != nil {
		waitAndShutdown(srv, logger)
	}
}

// isFlagSet reports whether the named flag was given on the command line
func isFlagSet(fs *flag.FlagSet, name string) bool {

	set := false

	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})

	return set
}

// overrideThreshold replaces the configured link threshold and revalidates
func overrideThreshold(cfg *config.Config, threshold float64) error {

	cfg.LinkThreshold = threshold

	return cfg.Validate()
}

// run associates each frame in turn and prints the track ids
func run(tr *mcmot.Tracker[[]float32], frames [][][]float32, verbose bool) error {

	for i, frame := range frames {

		if len(frame) == 0 {
			fmt.Printf("frame %d: no detections\n", i)
			continue
		}

		assigns, err := tr.ProcessDetailed(frame)

		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}

		ids := make([]int, len(assigns))

		for j, a := range assigns {
			ids[j] = a.TrackID
		}

		fmt.Printf("frame %d: track ids %v\n", i, ids)

		if !verbose {
			continue
		}

		for j, a := range assigns {
			if a.New {
				fmt.Printf("  det %d: node %d, new track %d\n", j, a.NodeID, a.TrackID)
			} else {
				fmt.Printf("  det %d: node %d, track %d via node %d (sim %.4f)\n",
					j, a.NodeID, a.TrackID, a.LinkedNode, a.Similarity)
			}
		}
	}

	return nil
}

// runInference builds a GCN sized to the stored embeddings and prints the
// shape and fingerprint of its output
func runInference(gt *tracker.GraphTracker, cfg config.GCNConfig) error {

	if gt.Store().Len() == 0 {
		return fmt.Errorf("graph inference: %w", tracker.ErrEmptyGraph)
	}

	gcn := refine.NewGCN(gt.Store().Dim(), cfg.Hidden, cfg.Classes, cfg.Seed)

	start := time.Now()
	out, err := gt.GraphInfer(gcn)

	if err != nil {
		return err
	}

	elapsed := time.Since(start)

	r, c := out.Dims()
	hash, err := reid.FingerprintHash(mat.DenseCopyOf(out).RawMatrix().Data)

	if err != nil {
		return fmt.Errorf("error hashing output: %w", err)
	}

	fmt.Printf("GCN output %dx%d in %s, fingerprint %s\n", r, c, elapsed, hash)

	return nil
}

// serveMetrics starts the Prometheus endpoint in the background
func serveMetrics(addr string, logger zerolog.Logger) *http.Server {

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")

	return srv
}

// waitAndShutdown keeps metrics available until interrupted
func waitAndShutdown(srv *http.Server, logger zerolog.Logger) {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown")
	}
}
