// Command depotbench drives a depot world through a synthetic workload and
// reports timings and storage statistics.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/TheBitDrifter/depot"
	"github.com/goccy/go-json"
	"github.com/pkg/profile"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

var (
	position = depot.FactoryNewComponent[Position](depot.WithName("Position"))
	velocity = depot.FactoryNewComponent[Velocity](depot.WithName("Velocity"))
)

var (
	entities      int
	frames        int
	chunkCapacity int
	workers       int
	profileMode   string
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "depotbench",
	Short: "Exercise a depot world and print its statistics",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Integrate positions over a number of frames",
	RunE:  runBench,
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Run the two-chunk structural change walkthrough",
	RunE:  runScenario,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	runCmd.Flags().IntVar(&entities, "entities", 100_000, "number of moving entities")
	runCmd.Flags().IntVar(&frames, "frames", 100, "number of simulated frames")
	runCmd.Flags().IntVar(&chunkCapacity, "chunk-capacity", 0, "cap rows per chunk (0 = fill the block)")
	runCmd.Flags().IntVar(&workers, "workers", 0, "parallel chunk workers (0 = GOMAXPROCS)")
	runCmd.Flags().StringVar(&profileMode, "profile", "", "write a cpu or mem profile to the working directory")

	rootCmd.AddCommand(runCmd, scenarioCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

func newWorld(opts ...depot.Option) (*depot.World, error) {
	cfg, err := depot.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger()
	cfg.LogLevel = logger.GetLevel()
	opts = append([]depot.Option{depot.WithConfig(cfg), depot.WithLogger(logger)}, opts...)
	return depot.Factory.NewWorld(nil, opts...), nil
}

func runBench(cmd *cobra.Command, _ []string) error {
	switch profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		return fmt.Errorf("unknown profile mode %q", profileMode)
	}

	var opts []depot.Option
	if chunkCapacity > 0 {
		opts = append(opts, depot.WithMaxChunkCapacity(chunkCapacity))
	}
	if workers > 0 {
		opts = append(opts, depot.WithWorkers(workers))
	}
	w, err := newWorld(opts...)
	if err != nil {
		return err
	}
	logger := w.Logger()

	start := time.Now()
	created, err := w.NewEntities(entities, position, velocity)
	if err != nil {
		return err
	}
	logger.Info().Int("entities", len(created)).Dur("elapsed", time.Since(start)).Msg("entities created")

	velocities := velocity.Handle(w, false)
	velocitiesRO := velocity.Handle(w, true)
	positions := position.Handle(w, false)

	// seed velocities so every row moves
	seed, err := w.CreateEntityQuery(depot.QueryDesc{All: []depot.Component{velocity}})
	if err != nil {
		return err
	}
	for ch := range seed.Chunks() {
		col, err := depot.ChunkColumnForWrite(ch, velocities)
		if err != nil {
			return err
		}
		for i := range col {
			col[i] = Velocity{X: 1, Y: float64(i%7) - 3}
		}
	}

	move, err := w.CreateEntityQuery(depot.QueryDesc{
		All: []depot.Component{position, depot.ReadOnly(velocity)},
	})
	if err != nil {
		return err
	}
	moved, err := w.CreateEntityQuery(depot.QueryDesc{All: []depot.Component{depot.ReadOnly(position)}})
	if err != nil {
		return err
	}
	if err := moved.SetChangedVersionFilter(position); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	start = time.Now()
	changedChunks := 0
	for frame := 0; frame < frames; frame++ {
		moved.SetChangedFilterRequiredVersion(w.GlobalVersion())
		w.AdvanceVersion()
		h := w.ScheduleParallel(ctx, move, func(_ context.Context, ch depot.Chunk) error {
			pos, err := depot.ChunkColumnForWrite(ch, positions)
			if err != nil {
				return err
			}
			vel, err := depot.ChunkColumn(ch, velocitiesRO)
			if err != nil {
				return err
			}
			for i := range pos {
				v := vel.At(i)
				pos[i].X += v.X
				pos[i].Y += v.Y
			}
			return nil
		})
		if err := h.Complete(); err != nil {
			return err
		}
		changedChunks += moved.CalculateChunkCount()
	}
	elapsed := time.Since(start)
	logger.Info().
		Int("frames", frames).
		Dur("elapsed", elapsed).
		Dur("per_frame", elapsed/time.Duration(max(frames, 1))).
		Int("changed_chunks", changedChunks).
		Msg("simulation finished")

	return printStats(w)
}

func runScenario(_ *cobra.Command, _ []string) error {
	w, err := newWorld(depot.WithMaxChunkCapacity(100))
	if err != nil {
		return err
	}
	created, err := w.NewEntities(130, position, velocity)
	if err != nil {
		return err
	}
	both, err := w.CreateEntityQuery(depot.QueryDesc{All: []depot.Component{position, velocity}})
	if err != nil {
		return err
	}
	for ch := range both.Chunks() {
		fmt.Printf("chunk: %d/%d rows\n", ch.Count(), ch.Capacity())
	}

	if err := w.RemoveComponent(created[0], velocity); err != nil {
		return err
	}
	fmt.Printf("after removing %s from %v: %d entities still move\n",
		velocity.Info().Name, created[0], both.CalculateEntityCount())
	w.LogEntity(zerolog.InfoLevel, created[0])

	for _, arch := range w.Archetypes() {
		fmt.Printf("archetype %d holds %d entities in %d chunks\n", arch.ID(), arch.EntityCount(), arch.ChunkCount())
	}
	return printStats(w)
}

func printStats(w *depot.World) error {
	out, err := json.MarshalIndent(w.Stats(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
