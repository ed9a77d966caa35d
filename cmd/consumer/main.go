// Command consumer is a reference client for the feeder: it attaches to a
// shared-memory ring or dials a TCP fan-out server, performs the START
// handshake, and prints every decoded trade with its end-to-end latency.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/alephtx/perpfeed/codec"
	"github.com/alephtx/perpfeed/shm"
	"github.com/alephtx/perpfeed/tcpfanout"
)

func main() {
	app := cli.NewApp()
	app.Name = "consumer"
	app.Usage = "reference client for the perpfeed trade stream"
	app.Commands = []cli.Command{
		{
			Name:  "tcp",
			Usage: "connect to a TCP fan-out server",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr, a", Value: "127.0.0.1:9000", Usage: "server address"},
			},
			Action: runTCPConsumer,
		},
		{
			Name:  "shm",
			Usage: "attach to a /dev/shm ring buffer",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "name, n", Usage: "name of the ring's /dev/shm file", Required: true},
				cli.IntFlag{Name: "capacity, c", Value: 1048576, Usage: "ring data-region capacity in bytes (must match the producer)"},
			},
			Action: runSHMConsumer,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func printTrade(dec *codec.Codec, frame []byte) {
	trade, _, err := dec.Decode(frame)
	if err != nil {
		log.Printf("consumer: decode error: %v", err)
		return
	}
	now := uint64(time.Now().UnixMilli())
	var latency int64
	if now > trade.Timestamp {
		latency = int64(now - trade.Timestamp)
	}
	fmt.Printf("%s ts=%d price=%.5f qty=%.5f buyer_maker=%v latency=%dms\n",
		trade.Symbol, trade.Timestamp, trade.Price, trade.Quantity, trade.IsBuyerMaker, latency)
}

func runTCPConsumer(c *cli.Context) error {
	addr := c.String("addr")
	client, header, err := tcpfanout.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()
	log.Println("consumer: received START handshake")

	dec := codec.New()
	if _, err := dec.ReadHeader(header); err != nil {
		return fmt.Errorf("consumer: read header: %w", err)
	}
	log.Println("consumer: read header")

	for {
		frame, err := client.ReadFrame()
		if err != nil {
			return err
		}
		printTrade(dec, frame)
	}
}

func runSHMConsumer(c *cli.Context) error {
	name := c.String("name")
	capacity := uint32(c.Int("capacity"))

	ring, err := shm.AttachRing(name, capacity)
	if err != nil {
		return fmt.Errorf("consumer: attach ring: %w", err)
	}
	defer ring.Close()

	// Spin-wait for the START handshake without sleeping: the ring is
	// in-memory and the producer's first push arrives within microseconds.
	for {
		msg, ok := ring.Pop()
		if ok {
			if string(msg) != "START" {
				return fmt.Errorf("consumer: expected START handshake, got %q", msg)
			}
			break
		}
	}
	log.Println("consumer: received START handshake")

	var header []byte
	for {
		msg, ok := ring.Pop()
		if ok {
			header = msg
			break
		}
	}
	dec := codec.New()
	if _, err := dec.ReadHeader(header); err != nil {
		return fmt.Errorf("consumer: read header: %w", err)
	}
	log.Println("consumer: read header")

	for {
		frame, ok := ring.Pop()
		if !ok {
			continue
		}
		printTrade(dec, frame)
	}
}
