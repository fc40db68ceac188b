package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	dawcore "github.com/cbegin/dawcore-go"
	"github.com/cbegin/dawcore-go/internal/config"
	"github.com/cbegin/dawcore-go/internal/debug"
)

// projectFile is the on-disk project description consumed by the CLI.
type projectFile struct {
	Tempo float64 `yaml:"tempo"`
	Cycle struct {
		Start   float64 `yaml:"start"`
		End     float64 `yaml:"end"`
		Enabled bool    `yaml:"enabled"`
	} `yaml:"cycle"`
	Tracks []struct {
		Name  string `yaml:"name"`
		Chain []struct {
			Name     string `yaml:"name"`
			Latency  int    `yaml:"latency"`
			Bypassed bool   `yaml:"bypassed"`
		} `yaml:"chain"`
		Notes []struct {
			Beat     float64 `yaml:"beat"`
			Duration float64 `yaml:"duration"`
			Key      int     `yaml:"key"`
			Velocity int     `yaml:"velocity"`
		} `yaml:"notes"`
		Automation struct {
			Mode  string `yaml:"mode"`
			Lanes map[string]struct {
				Initial float32 `yaml:"initial"`
				Min     float32 `yaml:"min"`
				Max     float32 `yaml:"max"`
				Points  []struct {
					Beat    float64 `yaml:"beat"`
					Value   float32 `yaml:"value"`
					Curve   string  `yaml:"curve"`
					Tension float32 `yaml:"tension"`
				} `yaml:"points"`
			} `yaml:"lanes"`
		} `yaml:"automation"`
	} `yaml:"tracks"`
}

func loadProjectFile(path string) (*projectFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p projectFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project %s: %w", path, err)
	}
	if p.Tempo <= 0 {
		p.Tempo = 120
	}
	return &p, nil
}

func parseCurve(name string) (dawcore.CurveType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "linear":
		return dawcore.CurveLinear, nil
	case "step":
		return dawcore.CurveStep, nil
	case "exp", "exponential":
		return dawcore.CurveExponential, nil
	case "log", "logarithmic":
		return dawcore.CurveLogarithmic, nil
	case "scurve", "s-curve":
		return dawcore.CurveSCurve, nil
	case "smooth":
		return dawcore.CurveSmooth, nil
	default:
		return 0, fmt.Errorf("unknown curve %q", name)
	}
}

func parseMode(name string) (dawcore.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "off":
		return dawcore.ModeOff, nil
	case "read":
		return dawcore.ModeRead, nil
	case "touch":
		return dawcore.ModeTouch, nil
	case "latch":
		return dawcore.ModeLatch, nil
	case "write":
		return dawcore.ModeWrite, nil
	default:
		return 0, fmt.Errorf("unknown automation mode %q", name)
	}
}

// buildEngine constructs an engine from the config file plus flag overrides
// and loads the project into it.
func buildEngine(cfgPath string, sampleRate int, proj *projectFile) (*dawcore.Engine, error) {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFile(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	opts := []dawcore.EngineOption{dawcore.WithConfig(cfg)}
	if sampleRate > 0 {
		opts = append(opts, dawcore.WithSampleRate(sampleRate))
	}
	e, err := dawcore.NewEngine(opts...)
	if err != nil {
		return nil, err
	}
	if err := e.LoadProject(proj.Tempo); err != nil {
		return nil, err
	}
	for _, tr := range proj.Tracks {
		id := e.AddTrack(tr.Name)
		var chain dawcore.Chain
		for _, st := range tr.Chain {
			chain = append(chain, dawcore.Stage{Name: st.Name, Latency: st.Latency, Bypassed: st.Bypassed})
		}
		if chain != nil {
			e.SetTrackChain(id, chain)
		}
		notes := make([]dawcore.Note, 0, len(tr.Notes))
		for _, n := range tr.Notes {
			notes = append(notes, dawcore.Note{Beat: n.Beat, Duration: n.Duration, Key: n.Key, Velocity: n.Velocity})
		}
		e.SetTrackNotes(id, notes)

		if len(tr.Automation.Lanes) > 0 {
			mode, err := parseMode(tr.Automation.Mode)
			if err != nil {
				return nil, err
			}
			lanes := map[string]*dawcore.Lane{}
			for param, lf := range tr.Automation.Lanes {
				lane := dawcore.NewLane(lf.Initial, lf.Min, lf.Max)
				for _, pt := range lf.Points {
					curve, err := parseCurve(pt.Curve)
					if err != nil {
						return nil, err
					}
					lane.Add(dawcore.Point{Beat: pt.Beat, Value: pt.Value, Curve: curve, Tension: pt.Tension})
				}
				lanes[param] = lane
			}
			e.UpdateAutomation(id, lanes, mode)
		}
	}
	if proj.Cycle.End > proj.Cycle.Start {
		if err := e.SetCycleRegion(proj.Cycle.Start, proj.Cycle.End); err != nil {
			return nil, err
		}
		if proj.Cycle.Enabled {
			if err := e.SetCycleEnabled(true); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}

func main() {
	var (
		cfgPath    string
		sampleRate int
		debugLog   bool
	)

	root := &cobra.Command{
		Use:           "dawctl",
		Short:         "Transport and scheduling core driver",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debugLog {
				return debug.Enable()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.config/dawcore/config.yaml)")
	root.PersistentFlags().IntVar(&sampleRate, "sample-rate", 0, "override the configured sample rate")
	root.PersistentFlags().BoolVar(&debugLog, "debug", false, "write a debug log to ~/.config/dawcore/debug.log")

	var fromBeat float64
	playCmd := &cobra.Command{
		Use:   "play <project.yaml>",
		Short: "Play a project through the audio device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, err := loadProjectFile(args[0])
			if err != nil {
				return err
			}
			e, err := buildEngine(cfgPath, sampleRate, proj)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.Jump(fromBeat); err != nil {
				return err
			}
			if err := e.StartAudio(); err != nil {
				return err
			}
			ch := e.Watch()
			if err := e.Play(); err != nil {
				return err
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			for {
				select {
				case ev := <-ch:
					switch ev.Kind {
					case dawcore.EventCycleJump:
						fmt.Printf("cycle wrap -> beat %.2f\n", ev.Beats)
					case dawcore.EventStateChanged:
						fmt.Printf("transport %s at beat %.2f\n", ev.State, ev.Beats)
					}
				case <-time.After(time.Second):
					fmt.Printf("beat %.2f\n", e.PositionBeats())
				case <-sig:
					e.Stop()
					return nil
				}
			}
		},
	}
	playCmd.Flags().Float64Var(&fromBeat, "from", 0, "start position in beats")

	var (
		outPath string
		seconds float64
	)
	exportCmd := &cobra.Command{
		Use:   "export <project.yaml>",
		Short: "Bounce a project to a float32 WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, err := loadProjectFile(args[0])
			if err != nil {
				return err
			}
			e, err := buildEngine(cfgPath, sampleRate, proj)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.ExportWAV(outPath, fromBeat, seconds); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%.1fs at %d Hz)\n", outPath, seconds, e.SampleRate())
			return nil
		},
	}
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "bounce.wav", "output WAV path")
	exportCmd.Flags().Float64Var(&fromBeat, "from", 0, "start position in beats")
	exportCmd.Flags().Float64Var(&seconds, "seconds", 10, "render duration in seconds")

	pdcCmd := &cobra.Command{
		Use:   "pdc <project.yaml>",
		Short: "Print the delay compensation table for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, err := loadProjectFile(args[0])
			if err != nil {
				return err
			}
			e, err := buildEngine(cfgPath, sampleRate, proj)
			if err != nil {
				return err
			}
			defer e.Close()
			names := e.Tracks()
			table := e.CompensationTable()
			ids := make([]string, 0, len(table))
			for id := range table {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return names[ids[i]] < names[ids[j]] })
			for _, id := range ids {
				fmt.Printf("%-20s %6d samples\n", names[id], table[id])
			}
			return nil
		},
	}

	root.AddCommand(playCmd, exportCmd, pdcCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
