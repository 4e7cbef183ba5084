package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/qianqian121/GIFT-Grab/pkg/config"
	"github.com/qianqian121/GIFT-Grab/pkg/configdef"
	db "github.com/qianqian121/GIFT-Grab/pkg/database"
	"github.com/qianqian121/GIFT-Grab/pkg/log"
	"github.com/qianqian121/GIFT-Grab/pkg/recorder"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videobackend"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
	"golang.org/x/term"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type options struct {
	filename   string
	output     string
	codec      string
	colour     string
	fps        float64
	duration   time.Duration
	configPath string
	backend    string
	catalog    string
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var o options
	flags := flag.NewFlagSet("giftgrab", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&o.filename, "f", "", "video file, device or stream to record (required)")
	flags.StringVar(&o.filename, "filename", "", "same as -f")
	flags.StringVar(&o.output, "o", "", "output file, defaults to giftgrab_output.<codec file type>")
	flags.StringVar(&o.output, "output", "", "same as -o")
	flags.StringVar(&o.codec, "c", "Xvid", "codec: Xvid, HEVC, VP9, MJPG")
	flags.StringVar(&o.codec, "codec", "Xvid", "same as -c")
	flags.Float64Var(&o.fps, "fps", 30, "output frame rate")
	flags.StringVar(&o.colour, "colour", "BGRA", "colour space frames are decoded into: BGRA, I420, UYVY, BGR24")
	flags.DurationVar(&o.duration, "duration", 0, "stop recording after this long, 0 records until the end of the stream")
	flags.StringVar(&o.configPath, "config", "", "config file supplying backend and catalog")
	flags.StringVar(&o.backend, "backend", "", "video backend: opencv, synthetic")
	flags.StringVar(&o.catalog, "catalog", "", "sqlite catalog to record the finished recording into")

	if err := flags.Parse(args); err != nil {
		return o, err
	}
	if len(o.filename) == 0 {
		flags.Usage()
		return o, errors.New("-f/--filename is required")
	}
	if flags.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", flags.Args())
	}
	return o, nil
}

// values turns the flags into the single recording to run, on top of the
// config file when one is given.
func (o options) values() (configdef.Values, error) {
	var values configdef.Values
	if len(o.configPath) > 0 {
		v, err := config.FileResolver(o.configPath).Resolve()
		if err != nil {
			return values, err
		}
		values.Backend, values.Catalog, values.Debug = v.Backend, v.Catalog, v.Debug
	}
	if len(o.backend) > 0 {
		values.Backend = o.backend
	}
	if len(o.catalog) > 0 {
		values.Catalog = o.catalog
	}

	output := o.output
	if len(output) == 0 {
		if codec, err := videoframe.ParseCodec(o.codec); err == nil {
			output = "giftgrab_output." + codec.FileType()
		}
	}

	values.Recordings = []configdef.Recording{{
		Title:  filepath.Base(o.filename),
		Source: configdef.Source{Locator: o.filename, Colour: o.colour},
		Target: configdef.Target{Codec: o.codec, Path: output, FrameRate: o.fps},
	}}
	if o.fps <= 0 {
		return values, fmt.Errorf("--fps must be positive, got %v", o.fps)
	}
	return values, values.RunValidate()
}

type staticResolver configdef.Values

func (r staticResolver) Resolve() (configdef.Values, error) {
	return configdef.Values(r), nil
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "giftgrab: %v\n", err)
		return exitUsage
	}

	values, err := o.values()
	if err != nil {
		fmt.Fprintf(stderr, "giftgrab: %v\n", err)
		return exitUsage
	}
	if values.Debug {
		log.SetLevel("debug")
	}

	server, err := recorder.NewServer(staticResolver(values), videobackend.Resolve(values.Backend))
	if err != nil {
		fmt.Fprintf(stderr, "giftgrab: %v\n", err)
		return exitError
	}

	if len(values.Catalog) > 0 {
		catalog, err := db.OpenCatalog(values.Catalog)
		if err != nil {
			fmt.Fprintf(stderr, "giftgrab: %v\n", err)
			return exitError
		}
		defer catalog.Close()
		server.UseCatalog(catalog)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if o.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	if code := start(server, stderr); code != exitOK {
		server.Close()
		return code
	}

	if f, ok := stderr.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		stopProgress := showProgress(server, stderr)
		defer stopProgress()
	}

	waitErr := server.Wait(ctx)
	closeErr := server.Close()

	for _, p := range server.Progress() {
		fmt.Fprintf(stdout, "%s: %d frames written, %d dropped\n", p.Title, p.Frames, p.Dropped)
	}

	if waitErr != nil && ctx.Err() == nil {
		fmt.Fprintf(stderr, "giftgrab: %v\n", waitErr)
		return exitError
	}
	if closeErr != nil {
		fmt.Fprintf(stderr, "giftgrab: %v\n", closeErr)
		return exitError
	}
	return exitOK
}

func start(server *recorder.Server, stderr io.Writer) int {
	for _, step := range []func() []error{server.Connect, server.SetupProcesses, server.RunProcesses} {
		if errs := step(); len(errs) > 0 {
			for _, err := range errs {
				fmt.Fprintf(stderr, "giftgrab: %v\n", err)
			}
			return exitError
		}
	}
	return exitOK
}

func showProgress(server *recorder.Server, w io.Writer) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				fmt.Fprint(w, "\n")
				return
			case <-ticker.C:
				for _, p := range server.Progress() {
					total := "?"
					if p.FrameCount >= 0 {
						total = fmt.Sprint(p.FrameCount)
					}
					fmt.Fprintf(w, "\r%s: %d/%s frames", p.Title, p.Frames, total)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func init() {
	log.SetLevel(os.Getenv("GIFTGRAB_LOGGING_LEVEL"))
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
