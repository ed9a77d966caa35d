// Command feeder ingests Binance USD-M futures trades, delta-encodes them,
// and fans them out either over a shared-memory ring or a TCP broadcast
// server, depending on the subcommand.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"

	"github.com/alephtx/perpfeed/codec"
	"github.com/alephtx/perpfeed/config"
	"github.com/alephtx/perpfeed/ingest"
	"github.com/alephtx/perpfeed/pipeline"
	"github.com/alephtx/perpfeed/shm"
	"github.com/alephtx/perpfeed/tcpfanout"
)

const maxAssets = 10

func main() {
	_ = godotenv.Load()

	app := cli.NewApp()
	app.Name = "feeder"
	app.Usage = "low-latency perp trade forwarding service"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "assets, a",
			Usage: fmt.Sprintf("comma-separated USDT perp symbols to subscribe to, e.g. BTCUSDT,ETHUSDT (max %d)", maxAssets),
		},
		cli.StringFlag{
			Name:  "config",
			Value: envOr("ALEPH_FEEDER_CONFIG", "config.toml"),
			Usage: "optional TOML config file for endpoint overrides",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "tcp",
			Usage: "broadcast trades over a TCP listener",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "port, p", Usage: "port to bind on (0.0.0.0:<port>)", Required: true},
			},
			Action: runTCP,
		},
		{
			Name:  "shm",
			Usage: "publish trades into a /dev/shm ring buffer",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "name, n", Usage: "name of the ring's /dev/shm file", Required: true},
				cli.IntFlag{Name: "capacity, c", Value: 1048576, Usage: "ring data-region capacity in bytes (power of two)"},
			},
			Action: runSHM,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func assetsFromContext(c *cli.Context) ([]string, error) {
	raw := c.GlobalString("assets")
	if raw == "" {
		return nil, fmt.Errorf("--assets is required")
	}
	assets := strings.Split(raw, ",")
	for i, a := range assets {
		assets[i] = strings.ToUpper(strings.TrimSpace(a))
	}
	if len(assets) > maxAssets {
		return nil, fmt.Errorf("you can't have more than %d assets", maxAssets)
	}
	return assets, nil
}

func setup(c *cli.Context) (context.Context, context.CancelFunc, []string, *pipeline.Pipeline, chan codec.Trade, error) {
	assets, err := assetsFromContext(c)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	log.Printf("🐙 perpfeed starting: assets=%v", assets)

	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	ref := ingest.NewReferenceClient(cfg.Binance.RESTURL)
	p := pipeline.New(assets, ref)

	trades := make(chan codec.Trade, 1024)
	feed := ingest.NewBinance(assets, trades)
	feed.StreamURL = cfg.Binance.WSURL

	go func() {
		if err := feed.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("ingest: binance stopped: %v", err)
		}
	}()

	return ctx, cancel, assets, p, trades, nil
}

func runTCP(c *cli.Context) error {
	ctx, cancel, _, p, trades, err := setup(c)
	if err != nil {
		return err
	}
	defer cancel()

	port := c.Int("port")
	addr := fmt.Sprintf("0.0.0.0:%d", port)

	enc, header, err := p.Initialize(ctx)
	if err != nil {
		return err
	}
	server := tcpfanout.NewServer(header)

	go func() {
		if err := server.Serve(addr); err != nil {
			log.Printf("tcpfanout: stopped: %v", err)
		}
	}()
	log.Printf("📡 TCP fan-out listening on %s", addr)

	err = p.RunWithEncoder(ctx, enc, header, trades, server.Sink)
	log.Println("👋 feeder stopped.")
	return err
}

func runSHM(c *cli.Context) error {
	ctx, cancel, assets, p, trades, err := setup(c)
	if err != nil {
		return err
	}
	defer cancel()

	name := c.String("name")
	capacity := uint32(c.Int("capacity"))

	ring, err := shm.CreateRing(name, capacity)
	if err != nil {
		return fmt.Errorf("shm: %w", err)
	}
	defer ring.Close()
	log.Printf("📡 shared memory ring: /dev/shm/%s (%d bytes)", name, capacity)

	snapshot, err := shm.CreateSnapshotTable(name+"-snapshot", len(assets))
	if err != nil {
		return fmt.Errorf("shm: snapshot table: %w", err)
	}
	defer snapshot.Close()
	p.Snapshot = snapshot

	err = p.Run(ctx, trades, ring.Push)
	log.Println("👋 feeder stopped.")
	return err
}
