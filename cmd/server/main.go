package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"

	"apex/api/grpcserver"
	"apex/domain/matching"
	"apex/domain/orderbook"
	"apex/infra/booksync"
	"apex/infra/config"
	"apex/infra/kafka"
	"apex/infra/logger"
	"apex/infra/metrics"
	"apex/infra/sequence"
	"apex/infra/wal/entry"
	"apex/infra/wal/exit"
	"apex/jobs/broadcaster"
	"apex/service"
	"apex/snapshot"
)

func main() {
	path := flag.String("config", os.Getenv("APEX_CONFIG"), "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		slog.Error("configuration", slog.Any("err", err))
		os.Exit(1)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.File)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("engine stopped", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("engine stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// ---------------- Recovery ----------------

	journalDir := ""
	if cfg.Journal.Enabled {
		journalDir = cfg.Journal.Dir
	}
	rec, err := service.Recover(cfg.Snapshot.Dir, journalDir, log)
	if err != nil {
		return err
	}

	// ---------------- Durability ----------------

	m := metrics.New()
	var (
		syncers booksync.Fanout
		durable booksync.Fanout
		opts    []service.Option
		journal *entry.WAL
		outbox  *exit.Outbox
	)

	if cfg.Journal.Enabled {
		journal, err = entry.Open(entry.Config{
			Dir:             cfg.Journal.Dir,
			SegmentSize:     cfg.Journal.SegmentSize,
			SegmentDuration: time.Hour,
			SyncEveryWrite:  cfg.Journal.Sync,
		})
		if err != nil {
			return errors.Wrap(err, "open journal")
		}
		defer closeLogged(log, "journal", journal.Close)
		js := booksync.NewJournal(journal, log)
		m.Gauge("journal_failures", "Events that could not be journaled.", counter(js.Failures))
		durable = append(durable, js)
		opts = append(opts, service.WithJournal(journal))
	}

	if cfg.Outbox.Enabled {
		outbox, err = exit.Open(cfg.Outbox.Dir, exit.WithSync(cfg.Outbox.Sync))
		if err != nil {
			return errors.Wrap(err, "open outbox")
		}
		defer closeLogged(log, "outbox", outbox.Close)
		ob := booksync.NewOutbox(outbox, log)
		m.Gauge("outbox_failures", "Events that could not be stored in the outbox.", counter(ob.Failures))
		durable = append(durable, ob)
		opts = append(opts, service.WithOutbox(outbox))
	}

	var queue *booksync.Async
	switch {
	case len(durable) == 0:
	case cfg.Engine.SyncQueue > 0:
		queue = booksync.NewAsync(durable, cfg.Engine.SyncQueue, log)
		m.Gauge("sync_queue_backlog", "Events waiting for the journal and outbox.", counter(queue.Backlog))
		m.Gauge("sync_queue_stalls", "Book changes that waited for room in the sync queue.", counter(queue.Stalls))
		syncers = append(syncers, queue)
	default:
		syncers = append(syncers, durable)
	}

	var trades *kafka.Stream
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.TradesTopic != "" {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TradesTopic)
		defer closeLogged(log, "trade producer", producer.Close)
		trades = kafka.NewStream(producer, kafka.WithFilter(kafka.Trades), kafka.WithLogger(log))
		m.Gauge("trade_stream_sent", "Trades published to the trade topic.", counter(trades.Sent))
		m.Gauge("trade_stream_dropped", "Trades dropped by the trade stream.", counter(trades.Dropped))
		syncers = append(syncers, trades)
	}

	// ---------------- Engine ----------------

	engine := matching.New(
		matching.WithSyncer(m.Syncer(syncers)),
		matching.WithLogger(log),
		matching.WithMaxRetries(cfg.Engine.MaxRetries),
		matching.WithEventSequencer(sequence.New(rec.LastSeq())),
	)
	if err := rec.Restore(engine.Book()); err != nil {
		return errors.Wrap(err, "restore book")
	}
	m.WatchBook(engine.Book())

	opts = append(opts, service.WithMetrics(m), service.WithLogger(log))
	svc := service.NewOrderService(engine, opts...)

	// ---------------- Background Jobs ----------------

	// The sync queue outlives the other jobs so it can take their last events.
	queueCtx, stopQueue := context.WithCancel(context.Background())
	queueDone := make(chan struct{})
	defer func() {
		stopQueue()
		<-queueDone
	}()
	if queue != nil {
		go func() {
			defer close(queueDone)
			_ = queue.Run(queueCtx)
		}()
	} else {
		close(queueDone)
	}

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	var jobs []<-chan struct{}

	if cfg.Engine.SweepInterval > 0 {
		jobs = append(jobs, svc.StartSweepJob(jobCtx, cfg.Engine.SweepInterval))
	}

	var writer *snapshot.Writer
	if cfg.Snapshot.Dir != "" {
		writer = &snapshot.Writer{Dir: cfg.Snapshot.Dir, Keep: 3}
		if cfg.Snapshot.Interval > 0 {
			jobs = append(jobs, svc.StartSnapshotJob(jobCtx, writer, cfg.Snapshot.Interval))
		}
	}

	if outbox != nil && len(cfg.Kafka.Brokers) > 0 {
		bc, err := broadcaster.New(outbox, cfg.Kafka.Brokers, broadcaster.Config{
			Topic:      cfg.Kafka.EventsTopic,
			Interval:   cfg.Kafka.BroadcastInterval,
			MaxRetries: cfg.Kafka.MaxRetries,
		}, log)
		if err != nil {
			return err
		}
		defer closeLogged(log, "broadcaster", bc.Close)
		m.Gauge("broadcast_published", "Outbox events acknowledged by Kafka.", counter(bc.Published))
		m.Gauge("broadcast_failed", "Outbox events given up on.", counter(bc.Failed))
		jobs = append(jobs, bc.Start(jobCtx))
	} else if outbox != nil {
		log.Warn("outbox enabled without kafka brokers; events accumulate until one is configured")
	}

	if trades != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = trades.Run(jobCtx)
		}()
		jobs = append(jobs, done)
	}

	// ---------------- Servers ----------------

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.GRPC.Addr)
	}
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.LoggingInterceptor(log)))
	grpcserver.Register(grpcSrv, grpcserver.NewServer(svc))

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	httpSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 2)
	go func() { errc <- errors.Wrap(grpcSrv.Serve(lis), "grpc") }()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errc <- errors.Wrap(err, "metrics")
			}
		}()
	}
	log.Info("engine running",
		slog.String("grpc", cfg.GRPC.Addr),
		slog.String("metrics", cfg.Metrics.Addr),
	)

	// ---------------- Shutdown ----------------

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}

	grpcSrv.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	cancelJobs()
	for _, done := range jobs {
		<-done
	}
	stopQueue()
	<-queueDone

	if writer != nil {
		if _, err := svc.Snapshot(writer); err != nil {
			log.Warn("final snapshot failed", slog.Any("err", err))
		}
	}
	logBook(log, engine.Book())
	return runErr
}

func logBook(log *slog.Logger, book *orderbook.Book) {
	log.Info("book at shutdown",
		slog.Int("orders", book.Len()),
		slog.Int("bid_levels", book.LevelCount(orderbook.Buy)),
		slog.Int("ask_levels", book.LevelCount(orderbook.Sell)),
		slog.Uint64("last_event_seq", book.LastEventSeq()),
	)
}

func counter(fn func() uint64) func() float64 {
	return func() float64 { return float64(fn()) }
}

func closeLogged(log *slog.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		log.Warn("close failed", slog.String("what", what), slog.Any("err", err))
	}
}
