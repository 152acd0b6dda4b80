package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib"
	"github.com/lintang-b-s/sgrid/lib/config"
	"github.com/lintang-b-s/sgrid/lib/disk"
	"github.com/lintang-b-s/sgrid/lib/job"
	"github.com/lintang-b-s/sgrid/lib/logger"
	"github.com/lintang-b-s/sgrid/lib/metrics"
	"github.com/lintang-b-s/sgrid/lib/shape"
	"go.uber.org/zap"
)

const usage = `usage: sgrid [-config file] [-root dir] <command> [flags]

commands:
  generate   write random records around Yogyakarta
  partition  split inputs into grid cells, optionally r-tree indexed
  join       spatial join of two inputs
  query      range query over a partitioned directory
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "sgrid: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) (err error) {
	global := flag.NewFlagSet("sgrid", flag.ContinueOnError)
	configPath := global.String("config", "", "yaml config file")
	root := global.String("root", ".", "root directory of the file system")
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer func() {
		if err != nil {
			log.Error("command failed", zap.String("command", global.Arg(0)), zap.Error(err))
		}
	}()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	fs, err := disk.NewLocalFS(*root, cfg.BlockSize)
	if err != nil {
		return err
	}
	env, err := job.NewEnv(fs, cfg, log, m)
	if err != nil {
		return err
	}
	defer env.Close()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "generate":
		return runGenerate(env, rest, stdout)
	case "partition":
		return runPartition(ctx, env, rest, stdout)
	case "join":
		return runJoin(ctx, env, rest, stdout)
	case "query":
		return runQuery(ctx, env, rest, stdout)
	}
	global.Usage()
	return errors.Newf("unknown command %q", cmd)
}

func runGenerate(env *job.Env, args []string, stdout io.Writer) error {
	fl := flag.NewFlagSet("generate", flag.ContinueOnError)
	out := fl.String("out", "", "output file")
	n := fl.Int("n", 10000, "number of records")
	seed := fl.Uint64("seed", 0, "random seed, 0 for a random one")
	if err := fl.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("generate: -out is required")
	}

	faker := gofakeit.New(*seed)
	var buf []byte
	for i := 0; i < *n; i++ {
		// random lat lon
		randomLat, _ := faker.LatitudeInRange(-7.818711242232534, -7.767187043571421)
		randomLon, _ := faker.LongitudeInRange(110.32382482774563, 110.42872530361015)
		var s shape.Shape
		switch env.Config.Shape {
		case lib.SHAPE_POINT:
			s = shape.NewPoint(randomLon, randomLat)
		case lib.SHAPE_RECT:
			s = shape.NewRect(randomLon, randomLat,
				randomLon+faker.Float64Range(0, 0.001), randomLat+faker.Float64Range(0, 0.001))
		default:
			return errors.Newf("generate: shape %q not supported", env.Config.Shape)
		}
		buf = s.AppendText(buf)
		buf = append(buf, lib.NEW_LINE)
	}
	if err := disk.WriteFile(env.FS, *out, buf); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d records (%d bytes) to %s\n", *n, len(buf), *out)
	return nil
}

func runPartition(ctx context.Context, env *job.Env, args []string, stdout io.Writer) error {
	fl := flag.NewFlagSet("partition", flag.ContinueOnError)
	in := fl.String("in", "", "comma separated input files")
	out := fl.String("out", "", "output directory")
	pack := fl.Bool("pack", false, "place cells from a sample of the input")
	index := fl.Bool("index", false, "write r-tree indexed cells")
	if err := fl.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("partition: -in and -out are required")
	}

	start := time.Now()
	res, err := job.Partition(ctx, env, job.PartitionOptions{
		Inputs: strings.Split(*in, ","),
		Output: *out,
		Pack:   *pack,
		Index:  *index,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d records into %d cells, %d files in %v\n",
		res.Records, len(res.Cells), len(res.Files), time.Since(start))
	return nil
}

func runJoin(ctx context.Context, env *job.Env, args []string, stdout io.Writer) error {
	fl := flag.NewFlagSet("join", flag.ContinueOnError)
	r := fl.String("r", "", "first input")
	s := fl.String("s", "", "second input")
	out := fl.String("out", "", "output directory, join-<uuid> when empty")
	if err := fl.Parse(args); err != nil {
		return err
	}
	if *r == "" || *s == "" {
		return errors.New("join: -r and -s are required")
	}

	start := time.Now()
	res, err := job.SpatialJoin(ctx, env, job.JoinOptions{Inputs: [2]string{*r, *s}, Output: *out})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d pairs in %d part files under %s in %v\n",
		res.Pairs, len(res.Files), res.Output, time.Since(start))
	return nil
}

func runQuery(ctx context.Context, env *job.Env, args []string, stdout io.Writer) error {
	fl := flag.NewFlagSet("query", flag.ContinueOnError)
	dir := fl.String("dir", "", "partitioned directory")
	rect := fl.String("rect", "", "query rectangle x1,y1,x2,y2")
	if err := fl.Parse(args); err != nil {
		return err
	}
	if *dir == "" || *rect == "" {
		return errors.New("query: -dir and -rect are required")
	}
	var q shape.Rect
	if err := q.ParseText([]byte(*rect)); err != nil {
		return errors.Wrapf(err, "query: -rect %q", *rect)
	}

	hits, err := job.RangeQuery(ctx, env, *dir, q)
	if err != nil {
		return err
	}
	for _, h := range hits {
		fmt.Fprintln(stdout, h.Record)
	}
	return nil
}
