// Package batch runs drop trials: a set of mesh parts is imported into a
// frame-stepped host scene, bound to the rigid-body world above a passive
// floor, then repeatedly re-oriented at random, lifted clear of the floor and
// left to settle for a fixed number of frames.
package batch

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dropsim/internal/config"
	"github.com/san-kum/dropsim/internal/engine"
	"github.com/san-kum/dropsim/internal/geom"
	"github.com/san-kum/dropsim/internal/logsink"
	"github.com/san-kum/dropsim/internal/storage"
)

const logPrefix = "[batch] "

// Report lists what a batch produced.
type Report struct {
	Dir       string
	LogFile   string
	BlendFile string
	Journal   string
	Movies    []string
	Runs      []storage.RunRecord
	BatchID   int64
}

// session is the state of one batch: the scene, the imported objects and
// the random source shared by all runs.
type session struct {
	scene  engine.Scene
	opts   Options
	tune   *config.Batch
	layout storage.Layout
	log    *log.Logger
	rng    *rand.Rand

	objects []engine.Object
	corners map[engine.Object][8]mgl64.Vec3

	journal *storage.Journal
	batchID int64
	report  *Report
}

// Run executes the batch against scene. The scene is not closed.
func Run(ctx context.Context, scene engine.Scene, opts Options) (*Report, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Tuning == nil {
		opts.Tuning = config.DefaultBatch()
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}

	layout := storage.NewLayout(opts.Outdir, opts.Infile)
	s := &session{
		scene:   scene,
		opts:    opts,
		tune:    opts.Tuning,
		layout:  layout,
		log:     log.New(opts.Console, logPrefix, log.LstdFlags|log.Lmicroseconds),
		corners: make(map[engine.Object][8]mgl64.Vec3),
		report:  &Report{Dir: layout.Dir()},
	}
	if err := s.run(ctx); err != nil {
		return nil, err
	}
	return s.report, nil
}

func (s *session) run(ctx context.Context) error {
	if v, err := s.scene.Version(ctx); err == nil {
		s.log.Printf("using engine version: %s", v)
	}

	if err := s.importParts(ctx); err != nil {
		return err
	}
	if s.opts.Verbose {
		s.log.Printf("adding %d meshes to simulation", len(s.objects))
	}
	if err := s.setupWorld(ctx); err != nil {
		return err
	}
	if err := s.bindParts(ctx); err != nil {
		return err
	}
	if err := s.buildFloor(ctx); err != nil {
		return err
	}
	if s.opts.Movie {
		if err := s.stageMovie(ctx); err != nil {
			return err
		}
	}

	if err := storage.EnsureDir(s.layout.Dir()); err != nil {
		return err
	}
	if s.opts.BlendFile {
		path := s.layout.BlendFile()
		if err := s.scene.SaveScene(ctx, path); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
		s.report.BlendFile = path
	}

	sink, err := logsink.Open(s.opts.Console, s.layout.LogFile(), s.opts.Verbose)
	if err != nil {
		return fmt.Errorf("open log sink: %w", err)
	}
	defer sink.Close()
	if sink.IsFile() {
		s.report.LogFile = s.layout.LogFile()
		if r, ok := s.scene.(engine.OutputRedirector); ok {
			sink.Capture(r)
		}
	}
	s.log = sink.Logger(logPrefix)

	if s.opts.Journal {
		j, err := storage.CreateJournal(s.layout.Journal())
		if err != nil {
			return fmt.Errorf("create journal: %w", err)
		}
		defer j.Close()
		s.journal = j
		s.report.Journal = s.layout.Journal()
	}

	if err := s.begin(ctx); err != nil {
		return err
	}
	err = s.runAll(ctx)
	s.finish(ctx, err)
	if err != nil {
		return err
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			return fmt.Errorf("close journal: %w", err)
		}
	}
	return sink.Close()
}

func (s *session) importParts(ctx context.Context) error {
	for i := 0; i < s.opts.Parts; i++ {
		path := storage.PartFile(s.opts.Infile, i)
		obj, err := s.scene.ImportMesh(ctx, path)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		corners, err := s.scene.LocalBounds(ctx, obj)
		if err != nil {
			return fmt.Errorf("bounds of %s: %w", obj, err)
		}
		s.objects = append(s.objects, obj)
		s.corners[obj] = corners
	}
	return nil
}

func (s *session) setupWorld(ctx context.Context) error {
	w := s.tune.World
	return s.scene.SetupWorld(ctx, engine.World{
		SolverIterations: w.SolverIterations,
		StepsPerSecond:   w.StepsPerSecond,
		TimeScale:        w.TimeScale,
		SplitImpulse:     w.SplitImpulse,
		Gravity:          w.Gravity,
	})
}

func (s *session) rigidBody(t engine.BodyType) engine.RigidBody {
	b := s.tune.Body
	return engine.RigidBody{
		Type:           t,
		Shape:          b.Shape,
		MeshSource:     b.MeshSource,
		Margin:         b.Margin,
		Friction:       b.Friction,
		Restitution:    b.Restitution,
		LinearDamping:  b.LinearDamping,
		AngularDamping: b.AngularDamping,
		Mass:           b.Mass,
	}
}

func (s *session) bindParts(ctx context.Context) error {
	m := s.tune.Material
	mat := engine.Material{
		Name:              m.Name,
		Shader:            m.Shader,
		Diffuse:           m.Diffuse,
		DiffuseIntensity:  m.DiffuseIntensity,
		Specular:          m.Specular,
		SpecularIntensity: m.SpecularIntensity,
		Alpha:             m.Alpha,
		Ambient:           m.Ambient,
	}
	for _, obj := range s.objects {
		if err := s.scene.AddMaterial(ctx, obj, mat); err != nil {
			return fmt.Errorf("material for %s: %w", obj, err)
		}
		if err := s.scene.AddRigidBody(ctx, obj, s.rigidBody(engine.Active)); err != nil {
			return fmt.Errorf("rigid body for %s: %w", obj, err)
		}
	}
	return nil
}

func (s *session) buildFloor(ctx context.Context) error {
	f := s.tune.Floor
	floor, err := s.scene.LookupObject(ctx, f.Object)
	if err != nil {
		return fmt.Errorf("floor: %w", err)
	}
	if err := s.scene.SetPlacement(ctx, floor, f.Location, f.Scale); err != nil {
		return fmt.Errorf("floor: %w", err)
	}
	if err := s.scene.AddRigidBody(ctx, floor, s.rigidBody(engine.Passive)); err != nil {
		return fmt.Errorf("floor: %w", err)
	}
	return nil
}

// worldBounds is the union of every part's box under its current transform.
func (s *session) worldBounds(ctx context.Context) (geom.Box, error) {
	b := geom.EmptyBox()
	for _, obj := range s.objects {
		m, err := s.scene.Transform(ctx, obj)
		if err != nil {
			return b, fmt.Errorf("transform of %s: %w", obj, err)
		}
		b = b.Union(geom.WorldBounds(m, s.corners[obj]))
	}
	return b, nil
}

// compose left-multiplies every part's world matrix by m.
func (s *session) compose(ctx context.Context, m mgl64.Mat4) error {
	for _, obj := range s.objects {
		cur, err := s.scene.Transform(ctx, obj)
		if err != nil {
			return fmt.Errorf("transform of %s: %w", obj, err)
		}
		if err := s.scene.SetTransform(ctx, obj, m.Mul4(cur)); err != nil {
			return fmt.Errorf("place %s: %w", obj, err)
		}
	}
	return nil
}

func (s *session) stageMovie(ctx context.Context) error {
	bounds, err := s.worldBounds(ctx)
	if err != nil {
		return err
	}
	cam := s.tune.Camera
	radius := cam.Margin + 0.5*bounds.Diagonal()

	if err := s.scene.AddLight(ctx, engine.Light{
		Type:           "SUN",
		Location:       mgl64.Vec3{0, 0, radius},
		ShadowSoftSize: cam.ShadowSoftSize,
	}); err != nil {
		return fmt.Errorf("light: %w", err)
	}

	r := s.tune.Render
	if err := s.scene.ConfigureRender(ctx, engine.Render{
		ResolutionX: r.ResolutionX,
		ResolutionY: r.ResolutionY,
		Format:      r.Format,
		ColorMode:   r.ColorMode,
		Quality:     r.Quality,
		FrameStart:  1,
		FrameEnd:    s.opts.Frames,
	}); err != nil {
		return fmt.Errorf("render settings: %w", err)
	}

	center := bounds.Center()
	eye := center.Add(mgl64.Vec3{0, -radius, radius})
	if err := s.scene.ConfigureCamera(ctx, engine.Camera{
		Location:  eye,
		Rotation:  geom.LookAt(eye, center),
		FOV:       cam.FOV,
		ClipStart: cam.ClipStart,
		ClipEnd:   cam.ClipEnd,
	}); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	return nil
}

func (s *session) begin(ctx context.Context) error {
	if s.opts.Recorder == nil {
		return nil
	}
	id, err := s.opts.Recorder.BeginBatch(ctx, storage.BatchRow{
		Infile:    s.opts.Infile,
		Parts:     s.opts.Parts,
		Outdir:    s.opts.Outdir,
		Runs:      s.opts.Runs,
		Frames:    s.opts.Frames,
		Seed:      s.opts.Seed,
		Movie:     s.opts.Movie,
		BlendFile: s.opts.BlendFile,
		Engine:    s.opts.Engine,
	})
	if err != nil {
		return fmt.Errorf("record batch: %w", err)
	}
	s.batchID = id
	s.report.BatchID = id
	return nil
}

func (s *session) finish(ctx context.Context, runErr error) {
	if s.opts.Recorder == nil {
		return
	}
	status := "done"
	if runErr != nil {
		status = "failed"
	}
	if err := s.opts.Recorder.FinishBatch(context.WithoutCancel(ctx), s.batchID, status); err != nil {
		s.log.Printf("record batch status: %v", err)
	}
}

func (s *session) runAll(ctx context.Context) error {
	s.rng = rand.New(rand.NewSource(s.opts.Seed))
	for run := 1; run <= s.opts.Runs; run++ {
		rec, err := s.runOnce(ctx, run)
		if err != nil {
			return fmt.Errorf("run %d: %w", run, err)
		}
		s.report.Runs = append(s.report.Runs, rec)
		if rec.Movie != "" {
			s.report.Movies = append(s.report.Movies, rec.Movie)
		}
		if s.journal != nil {
			if err := s.journal.Write(rec); err != nil {
				return fmt.Errorf("journal run %d: %w", run, err)
			}
		}
		if s.opts.Recorder != nil {
			if err := s.opts.Recorder.RecordRun(ctx, s.batchID, rec); err != nil {
				return fmt.Errorf("record run %d: %w", run, err)
			}
		}
	}
	return nil
}

func (s *session) runOnce(ctx context.Context, run int) (storage.RunRecord, error) {
	rec := storage.RunRecord{Run: run, Frames: s.opts.Frames}

	if err := s.scene.SetFrame(ctx, 1); err != nil {
		return rec, err
	}

	angle, axis := geom.RandomRotation(s.rng)
	if err := s.compose(ctx, geom.Rotation(angle, axis)); err != nil {
		return rec, err
	}
	bounds, err := s.worldBounds(ctx)
	if err != nil {
		return rec, err
	}
	offset := geom.LiftOffset(bounds, s.tune.Clearance)
	if err := s.compose(ctx, mgl64.Translate3D(0, 0, offset)); err != nil {
		return rec, err
	}
	if err := s.scene.Update(ctx); err != nil {
		return rec, err
	}

	lifted := bounds.Translate(mgl64.Vec3{0, 0, offset})
	rec.Angle = angle
	rec.Axis = axis
	rec.Offset = offset
	rec.BoundsMin = lifted.Min
	rec.BoundsMax = lifted.Max

	for f := 1; f <= s.opts.Frames; f++ {
		if err := ctx.Err(); err != nil {
			return rec, err
		}
		if err := s.scene.SetFrame(ctx, f); err != nil {
			return rec, err
		}
		if s.opts.Verbose {
			s.log.Printf("simulating run %d/%d frame %d/%d", run, s.opts.Runs, f, s.opts.Frames)
		}
	}

	if s.opts.Movie {
		if err := s.scene.SetFrame(ctx, 1); err != nil {
			return rec, err
		}
		path := s.layout.Movie(run)
		if err := s.scene.RenderAnimation(ctx, path); err != nil {
			return rec, fmt.Errorf("render %s: %w", path, err)
		}
		rec.Movie = path
		if s.opts.Verbose {
			s.log.Printf("wrote movie: %s", path)
		}
	}

	s.log.Printf("run %d/%d: angle %.4f axis (%.3f, %.3f, %.3f) lift %.3f",
		run, s.opts.Runs, angle, axis[0], axis[1], axis[2], offset)
	return rec, nil
}
