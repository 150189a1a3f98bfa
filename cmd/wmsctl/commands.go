package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/wms-source/internal/core/router"
	"github.com/mohammed-shakir/wms-source/internal/logger"
	"github.com/mohammed-shakir/wms-source/internal/wms/loader"
	"github.com/mohammed-shakir/wms-source/internal/wms/params"
	"github.com/mohammed-shakir/wms-source/internal/wms/source"
	"github.com/mohammed-shakir/wms-source/internal/wms/upstream"
	"github.com/mohammed-shakir/wms-source/internal/wms/wmserr"
)

// requestFlags are shared by the commands that build a request.
type requestFlags struct {
	source     string
	bbox       string
	width      int
	height     int
	srs        string
	dims       []string
	request    string
	i, j       int
	infoFormat string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.source, "source", "", "Source name (defaults to the only source in the file)")
	fl.StringVar(&f.bbox, "bbox", "", "Extent as minx,miny,maxx,maxy")
	fl.IntVar(&f.width, "width", 256, "Image width in pixels")
	fl.IntVar(&f.height, "height", 256, "Image height in pixels")
	fl.StringVar(&f.srs, "srs", "EPSG:4326", "Spatial reference system")
	fl.StringArrayVar(&f.dims, "dim", nil, "Dimension as NAME=VALUE (repeatable)")
	_ = cmd.MarkFlagRequired("bbox")
}

func (f *requestFlags) mapRequest() (source.MapRequest, error) {
	ext, err := router.ParseBBOX(f.bbox)
	if err != nil {
		return source.MapRequest{}, fmt.Errorf("invalid --bbox: %w", err)
	}
	if f.width <= 0 || f.height <= 0 {
		return source.MapRequest{}, errors.New("--width and --height must be positive")
	}
	dims := params.New()
	for _, d := range f.dims {
		k, v, ok := strings.Cut(d, "=")
		if !ok || k == "" {
			return source.MapRequest{}, fmt.Errorf("invalid --dim %q: want NAME=VALUE", d)
		}
		dims.Set(strings.ToUpper(k), v)
	}
	return source.MapRequest{Extent: ext, Width: f.width, Height: f.height, SRS: f.srs, Dimensions: dims}, nil
}

func (f *requestFlags) featureInfoRequest() (source.FeatureInfoRequest, error) {
	m, err := f.mapRequest()
	if err != nil {
		return source.FeatureInfoRequest{}, err
	}
	if f.i < 0 || f.i >= f.width || f.j < 0 || f.j >= f.height {
		return source.FeatureInfoRequest{}, errors.New("--i and --j must fall inside the image")
	}
	if f.infoFormat == "" {
		return source.FeatureInfoRequest{}, errors.New("--info-format is required for GetFeatureInfo")
	}
	return source.FeatureInfoRequest{MapRequest: m, I: f.i, J: f.j, InfoFormat: f.infoFormat}, nil
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "wmsctl",
		Short:        "Inspect and exercise WMS source definitions",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().Bool("debug", false, "Enable debug logging")

	root.AddCommand(newCheckCmd(), newParamsCmd(), newGetMapCmd())
	return root
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Load a sources file and report every configuration error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgs, err := loader.LoadFile(args[0])
			if err != nil {
				all := wmserr.All(err)
				if len(all) == 0 {
					return err
				}
				for _, e := range all {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", e.Kind, e.Error())
				}
				return fmt.Errorf("%d configuration error(s) in %s", len(all), args[0])
			}
			for _, c := range cfgs {
				line := fmt.Sprintf("%s\t%s", c.Name(), c.Endpoint().URL)
				if c.SupportsFeatureInfo() {
					line += "\tinfo_formats=" + strings.Join(c.InfoFormats(), ",")
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func newParamsCmd() *cobra.Command {
	var (
		rf      requestFlags
		showURL bool
	)
	cmd := &cobra.Command{
		Use:   "params <file>",
		Short: "Print the query string built for a GetMap or GetFeatureInfo request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSource(args[0], rf.source)
			if err != nil {
				return err
			}
			var p *params.Table
			switch strings.ToLower(rf.request) {
			case "", "getmap":
				req, err := rf.mapRequest()
				if err != nil {
					return err
				}
				p = cfg.GetMapParams(req)
			case "getfeatureinfo":
				if !cfg.SupportsFeatureInfo() {
					return fmt.Errorf("source %s has no getfeatureinfo block", cfg.Name())
				}
				req, err := rf.featureInfoRequest()
				if err != nil {
					return err
				}
				p = cfg.GetFeatureInfoParams(req)
			default:
				return fmt.Errorf("unknown --request %q", rf.request)
			}

			if !showURL {
				fmt.Fprintln(cmd.OutOrStdout(), p.Encode())
				return nil
			}
			u, err := upstream.RequestURL(cfg.Endpoint(), p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u.String())
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&rf.request, "request", "GetMap", "GetMap or GetFeatureInfo")
	cmd.Flags().IntVar(&rf.i, "i", 0, "Pixel column for GetFeatureInfo")
	cmd.Flags().IntVar(&rf.j, "j", 0, "Pixel row for GetFeatureInfo")
	cmd.Flags().StringVar(&rf.infoFormat, "info-format", "", "INFO_FORMAT for GetFeatureInfo")
	cmd.Flags().BoolVar(&showURL, "url", false, "Print the full request URL")
	return cmd
}

func newGetMapCmd() *cobra.Command {
	var (
		rf      requestFlags
		out     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "getmap <file>",
		Short: "Fetch a map image from a source and write it to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSource(args[0], rf.source)
			if err != nil {
				return err
			}
			req, err := rf.mapRequest()
			if err != nil {
				return err
			}

			debug, _ := cmd.Flags().GetBool("debug")
			level := "info"
			if debug {
				level = "debug"
			}
			zl := logger.Build(logger.Config{Level: level, Console: true, Component: "wmsctl"}, cmd.ErrOrStderr())
			log := logger.NewSlog(&zl)

			f := upstream.NewHTTPFetcher(log, upstream.WithDefaultTimeout(timeout))
			src, err := source.New(cfg, f, log)
			if err != nil {
				return err
			}
			img, err := src.RenderMap(cmd.Context(), req)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(img)
				return err
			}
			if err := os.WriteFile(out, img, 0o600); err != nil {
				return fmt.Errorf("write image: %w", err)
			}
			log.Info("map written", slog.String("file", out), slog.Int("bytes", len(img)))
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file (stdout when empty or -)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout when the source sets none")
	return cmd
}

// loadSource loads path and picks the named source, or the only source when
// name is empty.
func loadSource(path, name string) (*source.Config, error) {
	cfgs, err := loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if len(cfgs) != 1 {
			return nil, fmt.Errorf("%s defines %d sources; pick one with --source", path, len(cfgs))
		}
		return cfgs[0], nil
	}
	for _, c := range cfgs {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("source %q not found in %s", name, path)
}
