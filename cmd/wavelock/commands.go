package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/theckman/yacspin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/wavelock/control"
	"github.com/nasa-jpl/wavelock/generichttp/wavelock"
	"github.com/nasa-jpl/wavelock/spectrum"
	"github.com/nasa-jpl/wavelock/units"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "wavelock.yml"
)

var rootCmd = &cobra.Command{
	Use:   "wavelock",
	Short: "Hold a laser on a reference frequency",
	Long: `wavelock reads a wavemeter and steers the laser through the DC level of a
function generator.  It can serve the lock over HTTP (run) or perform a
single stabilization, sweep or calibration from the command line.

The hardware is described by wavelock.yml; write the defaults with mkconf.
With Mock: true every device is replaced by a simulated laser.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("wavelock version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&ConfigFileName, "config", "c", ConfigFileName, "configuration file")

	rootCmd.AddCommand(runCmd, stabilizeCmd, sweepCmd, triangleCmd, calibrateCmd, mkconfCmd, confCmd, versionCmd)

	f := stabilizeCmd.Flags()
	f.Float64("reference", 0, "reference frequency or wavelength")
	f.String("unit", "THz", "unit of the reference, THz or nm")
	f.Int("max-iterations", 0, "iteration budget, 0 for none")
	f.Duration("timeout", time.Minute, "time budget, 0 for none")
	f.String("mode", "", "one-shot or hysteretic, the configured mode if empty")
	stabilizeCmd.MarkFlagRequired("reference")

	for _, c := range []*cobra.Command{sweepCmd, triangleCmd} {
		f := c.Flags()
		f.Float64("down", 0, "lower reference")
		f.Float64("up", 0, "upper reference")
		f.String("unit", "THz", "unit of the references, THz or nm")
		f.Float64("step", -1, "signal increment per stair in mV")
		c.MarkFlagRequired("down")
		c.MarkFlagRequired("up")
	}
	sweepCmd.Flags().Int("modes", 0, "also analyse up to this many modes of the trace")
	triangleCmd.Flags().Int("cycles", 1, "number of ramps, 0 to run until interrupted")

	f = calibrateCmd.Flags()
	f.Int("points", 10, "number of signals applied")
	f.Float64("start", 2000, "first signal in mV")
	f.Float64("step", 10, "signal increment in mV")
	f.String("method", "regression", "consecutive, symmetric or regression")
	f.Bool("fresh", true, "wait for a new wavemeter reading after each write")
}

// session is everything a local command needs
type session struct {
	cfg  Config
	log  *zap.SugaredLogger
	rig  *Rig
	http *wavelock.HTTPWavelock
}

func open(ctx context.Context) (*session, error) {
	cfg, err := LoadConfig(ConfigFileName)
	if err != nil {
		return nil, err
	}
	log, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	d, err := cfg.Defaults()
	if err != nil {
		return nil, err
	}
	rig, err := BuildRig(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, log: log, rig: rig, http: wavelock.NewHTTPWavelock(rig.Handle, d)}, nil
}

func (s *session) close() error {
	s.log.Sync()
	return s.rig.Close()
}

func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

func spin(w io.Writer, msg string) (*yacspin.Spinner, error) {
	return yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           msg,
		StopCharacter:     "done",
		StopFailCharacter: "failed",
		Writer:            w,
	})
}

// local runs fn under a spinner and prints its result as JSON
func local(cmd *cobra.Command, msg string, fn func(ctx context.Context, s *session) (interface{}, error)) (err error) {
	ctx, cancel := interruptible(cmd)
	defer cancel()
	s, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.close()) }()

	sp, err := spin(cmd.ErrOrStderr(), msg)
	if err != nil {
		return err
	}
	sp.Start()
	out, err := fn(ctx, s)
	if err != nil {
		sp.StopFail()
	} else {
		sp.Stop()
	}
	if out != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if jerr := enc.Encode(out); jerr != nil {
			return multierr.Append(err, jerr)
		}
	}
	return err
}

func flagUnit(cmd *cobra.Command) (units.Unit, error) {
	s, _ := cmd.Flags().GetString("unit")
	return units.Parse(s)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the lock over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()
		mux := BuildMux(s.cfg, s.http)
		s.log.Infow("now listening for requests", "addr", s.cfg.Addr,
			"endpoint", s.cfg.Endpoint, "mock", s.cfg.Mock)
		return http.ListenAndServe(s.cfg.Addr, mux)
	},
}

var stabilizeCmd = &cobra.Command{
	Use:   "stabilize",
	Short: "Stabilize the laser at a reference",
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := flagUnit(cmd)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		ref, _ := f.GetFloat64("reference")
		n, _ := f.GetInt("max-iterations")
		timeout, _ := f.GetDuration("timeout")
		mode, _ := f.GetString("mode")
		return local(cmd, "stabilizing", func(ctx context.Context, s *session) (interface{}, error) {
			req := wavelock.StabilizeRequest{Reference: ref, Unit: u, MaxIterations: n, TimeoutS: timeout.Seconds()}
			if mode != "" {
				var m control.ConvergenceMode
				if err := m.UnmarshalText([]byte(mode)); err != nil {
					return nil, err
				}
				req.Mode = &m
			}
			st, thz, b, err := req.Build(s.rig.Handle, s.http.Defaults())
			if err != nil {
				return nil, err
			}
			return st.Run(ctx, thz, b)
		})
	},
}

func sweepRequest(cmd *cobra.Command) (wavelock.SweepRequest, error) {
	u, err := flagUnit(cmd)
	if err != nil {
		return wavelock.SweepRequest{}, err
	}
	f := cmd.Flags()
	down, _ := f.GetFloat64("down")
	up, _ := f.GetFloat64("up")
	step, _ := f.GetFloat64("step")
	return wavelock.SweepRequest{Down: down, Up: up, Unit: u, Step: step}, nil
}

// sweepOutput is what the sweep command prints
type sweepOutput struct {
	Result   control.Result     `json:"result"`
	Trace    *spectrum.Trace    `json:"trace"`
	Analysis *wavelock.Analysis `json:"analysis,omitempty"`
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Record a staircase sweep between two references",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := sweepRequest(cmd)
		if err != nil {
			return err
		}
		modes, _ := cmd.Flags().GetInt("modes")
		return local(cmd, "sweeping", func(ctx context.Context, s *session) (interface{}, error) {
			cfg, err := req.Config(s.http.Defaults())
			if err != nil {
				return nil, err
			}
			sw := &control.Sweeper{Handle: s.rig.Handle, Config: cfg}
			res, tr, err := sw.Staircase(ctx)
			out := sweepOutput{Result: res, Trace: tr}
			if err == nil && modes > 0 {
				a, aerr := wavelock.Analyze(tr, modes)
				if aerr != nil {
					s.log.Warnw("trace analysis failed", "error", aerr)
				} else {
					out.Analysis = &a
				}
			}
			return out, err
		})
	},
}

var triangleCmd = &cobra.Command{
	Use:   "triangle",
	Short: "Ramp repeatedly between two references",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := sweepRequest(cmd)
		if err != nil {
			return err
		}
		cycles, _ := cmd.Flags().GetInt("cycles")
		return local(cmd, "ramping", func(ctx context.Context, s *session) (interface{}, error) {
			cfg, err := req.Config(s.http.Defaults())
			if err != nil {
				return nil, err
			}
			sw := &control.Sweeper{Handle: s.rig.Handle, Config: cfg}
			res, err := sw.Triangle(ctx, control.Budget{MaxIterations: cycles})
			if errors.Is(err, context.Canceled) {
				return res, nil
			}
			return res, err
		})
	},
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Measure the laser response to the set-point",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		points, _ := f.GetInt("points")
		start, _ := f.GetFloat64("start")
		step, _ := f.GetFloat64("step")
		fresh, _ := f.GetBool("fresh")
		method, _ := f.GetString("method")
		var m control.GainMethod
		if err := m.UnmarshalText([]byte(method)); err != nil {
			return err
		}
		return local(cmd, "calibrating", func(ctx context.Context, s *session) (interface{}, error) {
			g := &control.GainEstimator{
				Handle: s.rig.Handle,
				Points: points,
				Start:  start,
				Step:   step,
				Settle: s.http.Defaults().Settle,
				Fresh:  fresh,
				Method: m,
			}
			k, err := g.Estimate(ctx)
			if err != nil {
				return nil, err
			}
			return wavelock.CalibrateResult{Gain: k, Method: m}, nil
		})
	},
}

var mkconfCmd = &cobra.Command{
	Use:   "mkconf",
	Short: "Write the default configuration to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Create(ConfigFileName)
		if err != nil {
			return err
		}
		defer f.Close()
		return yml.NewEncoder(f).Encode(DefaultConfig())
	},
}

var confCmd = &cobra.Command{
	Use:   "conf",
	Short: "Print the configuration in effect",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := LoadConfig(ConfigFileName)
		if err != nil {
			return err
		}
		return yml.NewEncoder(cmd.OutOrStdout()).Encode(c)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wavelock version %v\n", Version)
	},
}
