package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumora-health/breathsense/cmd/breathsense/internal/config"
	"github.com/lumora-health/breathsense/pkg/audio/source"
	"github.com/lumora-health/breathsense/pkg/breath"
	"github.com/lumora-health/breathsense/pkg/cli"
	"github.com/lumora-health/breathsense/pkg/kv"
	"github.com/lumora-health/breathsense/pkg/monitor"
	"github.com/lumora-health/breathsense/pkg/session"
)

var (
	runFile        string
	runStdin       bool
	runRate        int
	runRTPAddr     string
	runRTPRate     int
	runRTPChannels int
	runChunk       int
	runContext     string
	runMonitorAddr string
	runDBDir       string
	runNoRecord    bool
	runTUI         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run live breathing detection on an audio source",
	Long: `Run the breathing detector on an audio source.

Exactly one input must be selected: a WAV file, raw 16-bit PCM on stdin,
or an RTP/L16 listen address. Audio is resampled to the detector rate,
processed chunk by chunk, and detected events and rate measurements are
recorded into the session database.

With --monitor, live results are also broadcast to websocket clients at
ws://<addr>/ws.

Examples:
  breathsense run --file night.wav
  cat capture.pcm | breathsense run --stdin --rate 48000
  breathsense run --rtp :5004 --monitor 127.0.0.1:8799 --tui`,
	RunE: runDetector,
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "WAV file to process")
	runCmd.Flags().BoolVar(&runStdin, "stdin", false, "read raw s16le PCM from stdin")
	runCmd.Flags().IntVar(&runRate, "rate", source.DefaultTargetRate, "sample rate of raw stdin input")
	runCmd.Flags().StringVar(&runRTPAddr, "rtp", "", "UDP listen address for an RTP/L16 stream")
	runCmd.Flags().IntVar(&runRTPRate, "rtp-rate", source.DefaultTargetRate, "RTP clock rate")
	runCmd.Flags().IntVar(&runRTPChannels, "rtp-channels", 1, "RTP channel count (1 or 2)")
	runCmd.Flags().IntVar(&runChunk, "chunk", 0, "samples per processing chunk (0 = configured or default)")
	runCmd.Flags().StringVarP(&runContext, "context", "c", "", "config context (default: current context)")
	runCmd.Flags().StringVar(&runMonitorAddr, "monitor", "", "HTTP listen address for the websocket monitor")
	runCmd.Flags().StringVar(&runDBDir, "db", "", "session database directory")
	runCmd.Flags().BoolVar(&runNoRecord, "no-record", false, "do not record a session")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show a live terminal view")

	rootCmd.AddCommand(runCmd)
}

// runSettings is the merged view of context service configs and flags.
// Flags win over config values, config values win over defaults.
type runSettings struct {
	detector config.Detector
	storage  config.Storage
	monitor  config.Monitor
	dataDir  string
}

func loadRunSettings() (runSettings, error) {
	var s runSettings

	cfg, err := GetConfig()
	if err != nil {
		if runContext != "" {
			return s, err
		}
		return s, nil
	}
	s.dataDir = cfg.DataDir()

	dir, err := cfg.ResolveContext(runContext)
	if err != nil {
		if runContext != "" {
			return s, err
		}
		// No current context configured; run on defaults.
		return s, nil
	}

	if v, err := config.LoadService[config.Detector](dir, config.ServiceDetector); err == nil {
		s.detector = *v
	}
	if v, err := config.LoadService[config.Storage](dir, config.ServiceStorage); err == nil {
		s.storage = *v
	}
	if v, err := config.LoadService[config.Monitor](dir, config.ServiceMonitor); err == nil {
		s.monitor = *v
	}
	return s, nil
}

func runDetector(cmd *cobra.Command, args []string) error {
	settings, err := loadRunSettings()
	if err != nil {
		return err
	}

	// Setup logging. In TUI mode log lines go to the frame's log section
	// instead of stderr.
	level := slog.LevelInfo
	if IsVerbose() {
		level = slog.LevelDebug
	}
	var logDst io.Writer = os.Stderr
	var logBuf *cli.LogWriter
	if runTUI {
		logBuf = cli.NewLogWriter(200)
		logDst = logBuf
	}
	logger := slog.New(slog.NewTextHandler(logDst, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	targetRate := source.DefaultTargetRate
	if settings.detector.SampleRate > 0 {
		targetRate = int(settings.detector.SampleRate)
	}
	chunkSize := runChunk
	if chunkSize == 0 {
		chunkSize = settings.detector.ChunkSize
	}
	scfg := source.Config{TargetRate: targetRate, ChunkSize: chunkSize}

	src, desc, err := openSource(logger, scfg)
	if err != nil {
		return err
	}
	defer src.Close()
	logger.Info("source opened", "input", desc, "rate", targetRate)

	// Session recording.
	var rec *session.Recorder
	if !runNoRecord {
		dbDir := runDBDir
		if dbDir == "" {
			dbDir = settings.storage.DBDir
		}
		if dbDir == "" {
			if settings.dataDir == "" {
				return fmt.Errorf("no session database directory; pass --db or configure storage.db_dir")
			}
			dbDir = filepath.Join(settings.dataDir, "sessions.db")
		}

		store, err := kv.NewBadger(kv.BadgerOptions{Dir: dbDir})
		if err != nil {
			return fmt.Errorf("open session database: %w", err)
		}
		defer store.Close()

		rec, err = session.Start(ctx, store, time.Now())
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		logger.Info("session started", "id", rec.ID(), "db", dbDir)
	}

	// Websocket monitor.
	monitorAddr := runMonitorAddr
	if monitorAddr == "" {
		monitorAddr = settings.monitor.Listen
	}
	var hub *monitor.Hub
	if monitorAddr != "" {
		hub = monitor.NewHub(logger)
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		srv := &http.Server{Addr: monitorAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("monitor server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
			hub.Close()
		}()
		logger.Info("monitor listening", "addr", "ws://"+monitorAddr+"/ws")
	}

	pipe := breath.NewPipeline(breath.PipelineConfig{
		SampleRate:   float64(targetRate),
		ResetOnStart: settings.detector.ResetOnStart,
	})
	pipe.Start()

	// Closing the source unblocks a pending ReadChunk on shutdown.
	go func() {
		<-ctx.Done()
		src.Close()
	}()

	var view *runView
	if runTUI {
		view = newRunView(desc, logBuf)
		view.start(ctx)
		defer view.stop()
	}

	err = processLoop(ctx, logger, src, pipe, rec, hub, view)
	if view != nil {
		view.stop()
	}
	if err != nil {
		return err
	}

	if rec != nil {
		if err := rec.Finish(context.Background(), time.Now()); err != nil {
			return fmt.Errorf("finish session: %w", err)
		}
		meta := rec.Meta()
		fmt.Printf("Session %s recorded: %d events, %d rate measurements.\n",
			meta.ID, meta.Events, meta.Rates)
	}
	return nil
}

func processLoop(ctx context.Context, logger *slog.Logger, src source.Source, pipe *breath.Pipeline, rec *session.Recorder, hub *monitor.Hub, view *runView) error {
	for {
		chunk, err := src.ReadChunk()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read audio: %w", err)
		}

		now := time.Now()
		res := pipe.Process(chunk, now)

		if rec != nil {
			if err := rec.RecordResult(ctx, res); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("record result: %w", err)
			}
		}
		if hub != nil {
			hub.Publish(now, res)
		}
		if view != nil {
			view.update(now, res, pipe.Rate())
		}

		for _, ev := range res.Events {
			switch ev.Type {
			case breath.EventApnea:
				logger.Warn("apnea detected", "duration", ev.Duration, "id", ev.ID)
			case breath.EventDeepBreath:
				logger.Info("deep breath", "amplitude", ev.Amplitude, "id", ev.ID)
			default:
				logger.Debug("breath event", "type", ev.Type, "amplitude", ev.Amplitude)
			}
		}
		if res.Rate != nil {
			logger.Debug("rate update",
				"smoothed", res.Rate.Smoothed,
				"instant", res.Rate.Instant,
				"confidence", res.Rate.Confidence)
		}
	}
}

// openSource opens the audio source selected by flags. Exactly one of
// --file, --stdin and --rtp must be given.
func openSource(logger *slog.Logger, scfg source.Config) (source.Source, string, error) {
	selected := 0
	if runFile != "" {
		selected++
	}
	if runStdin {
		selected++
	}
	if runRTPAddr != "" {
		selected++
	}
	if selected != 1 {
		return nil, "", fmt.Errorf("select exactly one input: --file, --stdin or --rtp")
	}

	switch {
	case runFile != "":
		f, err := os.Open(runFile)
		if err != nil {
			return nil, "", fmt.Errorf("open %s: %w", runFile, err)
		}
		if strings.EqualFold(filepath.Ext(runFile), ".wav") {
			src, err := source.NewWAV(f, scfg)
			if err != nil {
				f.Close()
				return nil, "", fmt.Errorf("open %s: %w", runFile, err)
			}
			return src, runFile, nil
		}
		// Anything else is treated as headerless s16le PCM at --rate.
		src, err := source.NewRaw(f, runRate, scfg)
		if err != nil {
			f.Close()
			return nil, "", fmt.Errorf("open %s: %w", runFile, err)
		}
		return src, runFile, nil

	case runStdin:
		src, err := source.NewRaw(os.Stdin, runRate, scfg)
		if err != nil {
			return nil, "", err
		}
		return src, "stdin", nil

	default:
		conn, err := net.ListenPacket("udp", runRTPAddr)
		if err != nil {
			return nil, "", fmt.Errorf("listen %s: %w", runRTPAddr, err)
		}
		src, err := source.NewRTP(conn, runRTPRate, runRTPChannels, logger, scfg)
		if err != nil {
			conn.Close()
			return nil, "", err
		}
		return src, "rtp://" + runRTPAddr, nil
	}
}
