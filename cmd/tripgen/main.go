package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/thepaulm/tripstore"
	"github.com/thepaulm/tripstore/internal/logging"
)

// By default we generate lat/long in San Francisco. Note that these
// are in minute.second format; any math on them has to convert to
// base 10 first.
const (
	defaultHost    = "localhost"
	defaultMinLong = -122.30817
	defaultMaxLong = -122.22542
	defaultMinLat  = 37.42445
	defaultMaxLat  = 37.48479
	defaultMinMins = 2.0
	defaultMaxMins = 10.0
	defaultWorkers = 500

	dollarsPerMin = 4
)

type options struct {
	host           string
	port           int
	minLong        float64
	maxLong        float64
	minLat         float64
	maxLat         float64
	minTripMinutes float64
	maxTripMinutes float64
}

func syntax() {
	fmt.Printf("tripgen: generate trip data\n")
	fmt.Printf("\t-H (--host): host to connect to\n")
	fmt.Printf("\t-p (--port): port to connect to\n")
	fmt.Printf("\t-x (--minlong): minimum longitude values\n")
	fmt.Printf("\t-X (--maxlong): maximum longitude values\n")
	fmt.Printf("\t-y (--minlat): minimum latitude values\n")
	fmt.Printf("\t-Y (--maxlat): maximum latitude values\n")
	fmt.Printf("\t-m (--minmins): minimum trip minutes\n")
	fmt.Printf("\t-M (--maxmins): maximum trip minutes\n")
	fmt.Printf("\t-t (--threads): how many concurrent trip workers\n")
	fmt.Printf("\t-h (--help): this message\n")
	fmt.Printf("\n")
	fmt.Printf("By default, tripgen will connect to host %s on port %d,\n",
		defaultHost, tripstore.DefaultIngestPort)
	fmt.Printf("minlong %f, maxlong %f, minlat %f, maxlat %f,\n",
		defaultMinLong, defaultMaxLong, defaultMinLat, defaultMaxLat)
	fmt.Printf("minmins %f, maxmins %f, and threads %d.\n",
		defaultMinMins, defaultMaxMins, defaultWorkers)
}

// position picks a uniform point in the configured box
func position(rng *rand.Rand, opts *options) (float32, float32) {
	lng := opts.minLong + (opts.maxLong-opts.minLong)*rng.Float64()
	lat := opts.minLat + (opts.maxLat-opts.minLat)*rng.Float64()
	return float32(lng), float32(lat)
}

// tripSeconds picks a trip duration in the configured range
func tripSeconds(rng *rand.Rand, opts *options) int {
	minSeconds := int(opts.minTripMinutes * 60)
	maxSeconds := int(opts.maxTripMinutes * 60)
	if maxSeconds <= minSeconds {
		return minSeconds
	}
	return minSeconds + rng.Intn(maxSeconds-minSeconds)
}

// runClient is the main loop of one trip worker: begin a trip, report
// a position every second for the trip's duration, end it with the
// fare, repeat until cancelled.
func runClient(ctx context.Context, worker int, opts *options) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(worker)<<32))

	c, err := tripstore.Dial(fmt.Sprintf("%s:%d", opts.host, opts.port))
	if err != nil {
		return fmt.Errorf("worker %d: connect %s:%d: %w", worker, opts.host, opts.port, err)
	}
	defer c.Close()

	logging.Debug("trip worker running", "worker", worker)

	for {
		seconds := tripSeconds(rng, opts)
		fare := int32(float64(seconds) / 60.0 * dollarsPerMin * 100.0)

		lng, lat := position(rng, opts)
		id, err := c.Begin(lng, lat)
		if err != nil {
			return fmt.Errorf("worker %d: begin: %w", worker, err)
		}

		for s := 0; s < seconds; s++ {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			lng, lat = position(rng, opts)
			if err := c.Update(id, lng, lat); err != nil {
				return fmt.Errorf("worker %d: update trip %d: %w", worker, id, err)
			}
		}

		lng, lat = position(rng, opts)
		if err := c.End(id, lng, lat, fare); err != nil {
			return fmt.Errorf("worker %d: end trip %d: %w", worker, id, err)
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

func main() {
	opts := &options{}
	var workers int
	var verbose, help bool

	pflag.StringVarP(&opts.host, "host", "H", defaultHost, "host to connect to")
	pflag.IntVarP(&opts.port, "port", "p", tripstore.DefaultIngestPort, "port to connect to")
	pflag.Float64VarP(&opts.minLong, "minlong", "x", defaultMinLong, "minimum longitude values")
	pflag.Float64VarP(&opts.maxLong, "maxlong", "X", defaultMaxLong, "maximum longitude values")
	pflag.Float64VarP(&opts.minLat, "minlat", "y", defaultMinLat, "minimum latitude values")
	pflag.Float64VarP(&opts.maxLat, "maxlat", "Y", defaultMaxLat, "maximum latitude values")
	pflag.Float64VarP(&opts.minTripMinutes, "minmins", "m", defaultMinMins, "minimum trip minutes")
	pflag.Float64VarP(&opts.maxTripMinutes, "maxmins", "M", defaultMaxMins, "maximum trip minutes")
	pflag.IntVarP(&workers, "threads", "t", defaultWorkers, "how many concurrent trip workers")
	pflag.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pflag.BoolVarP(&help, "help", "h", false, "this message")
	pflag.Usage = syntax
	pflag.Parse()

	if help {
		syntax()
		os.Exit(0)
	}

	logConfig := logging.DefaultConfig()
	if verbose {
		logConfig.Level = logging.LevelDebug
	}
	logging.SetDefault(logging.NewLogger(logConfig))

	fmt.Printf("tripgen starting with %d workers.\n", workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info("received shutdown signal")
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		worker := w
		g.Go(func() error {
			return runClient(ctx, worker, opts)
		})
	}

	if err := g.Wait(); err != nil {
		logging.Error("trip worker failed", "error", err)
		os.Exit(1)
	}
}
