package batch_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/dropsim/internal/batch"
	"github.com/san-kum/dropsim/internal/engine"
	"github.com/san-kum/dropsim/internal/engine/dry"
	"github.com/san-kum/dropsim/internal/geom"
	"github.com/san-kum/dropsim/internal/storage"
)

const (
	wedge = `o wedge
v -1 -2 0
v 3 -2 0
v -1 2 0
v -1 -2 5
`
	plate = `o plate
v -6 -6 -1
v 6 6 -1
v 6 -6 1
v -6 6 1
`
)

// liftProbe records the lowest point of the parts each time the batch
// commits a placement.
type liftProbe struct {
	*dry.Scene
	minZ []float64
}

func (p *liftProbe) Update(ctx context.Context) error {
	b := geom.EmptyBox()
	for _, obj := range p.Objects() {
		if obj == dry.DefaultCube {
			continue
		}
		m, err := p.Transform(ctx, obj)
		if err != nil {
			return err
		}
		c, err := p.LocalBounds(ctx, obj)
		if err != nil {
			return err
		}
		b = b.Union(geom.WorldBounds(m, c))
	}
	p.minZ = append(p.minZ, b.Min.Z())
	return p.Scene.Update(ctx)
}

// failingScene fails the n-th SetFrame call.
type failingScene struct {
	*dry.Scene
	failAt int
	calls  int
}

func (f *failingScene) SetFrame(ctx context.Context, frame int) error {
	f.calls++
	if f.calls == f.failAt {
		return &engine.HostError{Op: "set_frame", Message: "host crashed"}
	}
	return f.Scene.SetFrame(ctx, frame)
}

type fakeRecorder struct {
	rows     []storage.BatchRow
	runs     []storage.RunRecord
	statuses []string
}

func (r *fakeRecorder) BeginBatch(ctx context.Context, b storage.BatchRow) (int64, error) {
	r.rows = append(r.rows, b)
	return int64(len(r.rows)), nil
}

func (r *fakeRecorder) RecordRun(ctx context.Context, id int64, rec storage.RunRecord) error {
	r.runs = append(r.runs, rec)
	return nil
}

func (r *fakeRecorder) FinishBatch(ctx context.Context, id int64, status string) error {
	r.statuses = append(r.statuses, status)
	return nil
}

func listExt(dir, ext string) []string {
	entries, err := os.ReadDir(dir)
	Expect(err).NotTo(HaveOccurred())
	var names []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ext {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

var _ = Describe("Run", func() {
	var (
		ctx     context.Context
		infile  string
		outdir  string
		console *bytes.Buffer
		scene   *dry.Scene
		opts    batch.Options
	)

	BeforeEach(func() {
		ctx = context.Background()
		root := GinkgoT().TempDir()
		Expect(os.Mkdir(filepath.Join(root, "meshes"), 0755)).To(Succeed())
		infile = filepath.Join(root, "meshes", "bracket")
		Expect(os.WriteFile(infile+"_0.obj", []byte(wedge), 0644)).To(Succeed())
		Expect(os.WriteFile(infile+"_1.obj", []byte(plate), 0644)).To(Succeed())
		outdir = filepath.Join(root, "out")

		console = &bytes.Buffer{}
		scene = dry.NewScene(dry.WithOutput(console), dry.WithArtifacts())

		opts = batch.DefaultOptions(infile, 2, outdir)
		opts.Runs = 3
		opts.Frames = 8
		opts.Console = console
	})

	Describe("option validation", func() {
		DescribeTable("rejects options that cannot describe a batch",
			func(mutate func(*batch.Options)) {
				mutate(&opts)
				_, err := batch.Run(ctx, scene, opts)
				Expect(err).To(MatchError(batch.ErrInvalidOptions))
			},
			Entry("empty infile", func(o *batch.Options) { o.Infile = "" }),
			Entry("empty outdir", func(o *batch.Options) { o.Outdir = "" }),
			Entry("no parts", func(o *batch.Options) { o.Parts = 0 }),
			Entry("negative runs", func(o *batch.Options) { o.Runs = -1 }),
			Entry("no frames", func(o *batch.Options) { o.Frames = 0 }),
		)
	})

	Describe("scene setup", func() {
		It("binds every part as an active body and the cube as a passive floor", func() {
			_, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())

			objs := scene.Objects()
			Expect(objs).To(HaveLen(3))
			for _, obj := range objs[1:] {
				rb, ok := scene.RigidBodyOf(obj)
				Expect(ok).To(BeTrue())
				Expect(rb.Type).To(Equal(engine.Active))
				Expect(rb.Shape).To(Equal("MESH"))
				Expect(rb.Mass).To(Equal(1.0))

				mat, ok := scene.MaterialOf(obj)
				Expect(ok).To(BeTrue())
				Expect(mat.Shader).To(Equal("LAMBERT"))
			}

			floor, ok := scene.RigidBodyOf(dry.DefaultCube)
			Expect(ok).To(BeTrue())
			Expect(floor.Type).To(Equal(engine.Passive))
			Expect(floor.Friction).To(Equal(0.5))

			m, err := scene.Transform(ctx, dry.DefaultCube)
			Expect(err).NotTo(HaveOccurred())
			top := mgl64.TransformCoordinate(mgl64.Vec3{1, 1, 1}, m)
			Expect(top.ApproxEqual(mgl64.Vec3{1000, 1000, 0})).To(BeTrue())

			w, ok := scene.World()
			Expect(ok).To(BeTrue())
			Expect(w.SolverIterations).To(Equal(1000))
			Expect(w.StepsPerSecond).To(Equal(60))
			Expect(w.Gravity).To(Equal(mgl64.Vec3{0, 0, -9.81}))
		})

		It("fails when a part file is missing", func() {
			opts.Parts = 3
			_, err := batch.Run(ctx, scene, opts)
			Expect(err).To(MatchError(ContainSubstring("bracket_2.obj")))
		})

		It("steps every frame of every run starting from frame one", func() {
			_, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(scene.FramesStepped()).To(Equal(opts.Runs * (opts.Frames + 1)))
			Expect(scene.Frame()).To(Equal(opts.Frames))
		})
	})

	Describe("output directory", func() {
		DescribeTable("exists after any execution",
			func(movie, verbose, blend bool, runs int) {
				opts.Movie, opts.Verbose, opts.BlendFile, opts.Runs = movie, verbose, blend, runs
				report, err := batch.Run(ctx, scene, opts)
				Expect(err).NotTo(HaveOccurred())
				Expect(report.Dir).To(Equal(filepath.Join(outdir, "bracket")))
				Expect(report.Dir).To(BeADirectory())
			},
			Entry("defaults", false, false, false, 3),
			Entry("all flags", true, true, true, 3),
			Entry("zero runs", false, false, false, 0),
		)

		It("tolerates an existing output directory", func() {
			Expect(os.MkdirAll(filepath.Join(outdir, "bracket"), 0755)).To(Succeed())
			_, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())
		})

		It("fails when a file occupies the output directory", func() {
			Expect(os.MkdirAll(outdir, 0755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(outdir, "bracket"), nil, 0644)).To(Succeed())
			_, err := batch.Run(ctx, scene, opts)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("movies", func() {
		It("writes none without the movie flag", func() {
			report, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(listExt(report.Dir, ".avi")).To(BeEmpty())
			Expect(report.Movies).To(BeEmpty())
			Expect(scene.Renders()).To(BeEmpty())
		})

		It("writes one numbered movie per run", func() {
			opts.Movie = true
			opts.Runs = 12
			report, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())

			names := listExt(report.Dir, ".avi")
			Expect(names).To(HaveLen(12))
			Expect(names[0]).To(Equal("run_0001.avi"))
			Expect(names[11]).To(Equal("run_0012.avi"))
			Expect(report.Movies).To(HaveLen(12))
		})

		It("aims the camera at the assembly and renders every frame", func() {
			opts.Movie = true
			_, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())

			r, ok := scene.RenderSettings()
			Expect(ok).To(BeTrue())
			Expect(r.FrameStart).To(Equal(1))
			Expect(r.FrameEnd).To(Equal(opts.Frames))
			Expect(r.ResolutionX).To(Equal(256))
			Expect(r.Format).To(Equal("AVI_JPEG"))

			cam, ok := scene.Camera()
			Expect(ok).To(BeTrue())
			Expect(cam.FOV).To(Equal(60.0))

			lights := scene.Lights()
			Expect(lights).To(HaveLen(1))
			Expect(lights[0].Type).To(Equal("SUN"))
			radius := lights[0].Location.Z()
			Expect(radius).To(BeNumerically(">", 10))

			// the eye sits radius behind and above the center of the
			// initial assembly, looking back at it
			center := geom.Box{Min: mgl64.Vec3{-6, -6, -1}, Max: mgl64.Vec3{6, 6, 5}}.Center()
			Expect(cam.Location.ApproxEqual(center.Add(mgl64.Vec3{0, -radius, radius}))).To(BeTrue())
			forward := cam.Rotation.Rotate(mgl64.Vec3{0, 0, -1})
			Expect(forward.Sub(center.Sub(cam.Location).Normalize()).Len()).To(BeNumerically("<", 1e-9))
		})
	})

	Describe("scene snapshot", func() {
		It("saves exactly one blend file named after the input", func() {
			opts.BlendFile = true
			report, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(listExt(report.Dir, ".blend")).To(Equal([]string{"bracket.blend"}))
			Expect(report.BlendFile).To(Equal(filepath.Join(report.Dir, "bracket.blend")))
		})

		It("saves nothing by default", func() {
			report, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(listExt(report.Dir, ".blend")).To(BeEmpty())
		})
	})

	Describe("log sink", func() {
		It("keeps progress off the console when not verbose", func() {
			report, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())

			Expect(report.LogFile).To(BeARegularFile())
			Expect(console.String()).NotTo(ContainSubstring("Fra:"))
			Expect(console.String()).NotTo(ContainSubstring("simulating run"))

			logged, err := os.ReadFile(report.LogFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(logged)).To(ContainSubstring("Fra:8"))
			Expect(scene.Output()).To(BeIdenticalTo(console))
		})

		It("appends to an existing log", func() {
			_, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())
			first, _ := os.ReadFile(filepath.Join(outdir, "bracket", storage.LogFileName))

			_, err = batch.Run(ctx, dry.NewScene(dry.WithOutput(console)), opts)
			Expect(err).NotTo(HaveOccurred())
			second, _ := os.ReadFile(filepath.Join(outdir, "bracket", storage.LogFileName))
			Expect(len(second)).To(BeNumerically(">", len(first)))
		})

		It("reports progress on the console when verbose", func() {
			opts.Verbose = true
			opts.Movie = true
			report, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())

			Expect(report.LogFile).To(BeEmpty())
			Expect(filepath.Join(report.Dir, storage.LogFileName)).NotTo(BeAnExistingFile())
			out := console.String()
			Expect(out).To(ContainSubstring("adding 2 meshes to simulation"))
			Expect(out).To(ContainSubstring("simulating run 1/3 frame 1/8"))
			Expect(out).To(ContainSubstring("simulating run 3/3 frame 8/8"))
			Expect(out).To(ContainSubstring("wrote movie: " + filepath.Join(report.Dir, "run_0003.avi")))
		})

		It("restores host output when a run fails", func() {
			failing := &failingScene{Scene: scene, failAt: 5}
			_, err := batch.Run(ctx, failing, opts)
			Expect(err).To(MatchError(engine.ErrHost))
			Expect(err).To(MatchError(ContainSubstring("run 1")))
			Expect(scene.Output()).To(BeIdenticalTo(console))
		})
	})

	Describe("runs", func() {
		It("lifts every assembly at least ten units above the floor", func() {
			probe := &liftProbe{Scene: scene}
			opts.Runs = 25
			report, err := batch.Run(ctx, probe, opts)
			Expect(err).NotTo(HaveOccurred())

			Expect(probe.minZ).To(HaveLen(25))
			for _, z := range probe.minZ {
				Expect(z).To(BeNumerically(">=", 10-1e-9))
			}
			for _, rec := range report.Runs {
				Expect(rec.BoundsMin[2]).To(BeNumerically(">=", 10-1e-9))
				Expect(rec.Offset).To(BeNumerically(">=", 10))
			}
		})

		It("draws angles in [0, 2π) about unit axes", func() {
			opts.Runs = 20
			report, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Runs).To(HaveLen(20))
			for i, rec := range report.Runs {
				Expect(rec.Run).To(Equal(i + 1))
				Expect(rec.Angle).To(BeNumerically(">=", 0))
				Expect(rec.Angle).To(BeNumerically("<", 2*3.141592653589793))
				Expect(mgl64.Vec3(rec.Axis).Len()).To(BeNumerically("~", 1, 1e-12))
			}
		})

		It("is deterministic for a fixed seed", func() {
			first, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())

			other := dry.NewScene()
			opts.Console = &bytes.Buffer{}
			second, err := batch.Run(ctx, other, opts)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Runs).To(Equal(first.Runs))
			for _, obj := range scene.Objects() {
				a, _ := scene.Transform(ctx, obj)
				b, _ := other.Transform(ctx, obj)
				Expect(b).To(Equal(a))
			}
		})

		It("draws differently for another seed", func() {
			first, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())

			opts.Seed = 4
			second, err := batch.Run(ctx, dry.NewScene(), opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Runs[0].Angle).NotTo(Equal(first.Runs[0].Angle))
		})

		It("stops when the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := batch.Run(cctx, scene, opts)
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Describe("journal and recorder", func() {
		It("journals every run", func() {
			opts.Journal = true
			report, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())

			recs, err := storage.ReadJournal(report.Journal)
			Expect(err).NotTo(HaveOccurred())
			Expect(recs).To(Equal(report.Runs))
		})

		It("records the batch lifecycle", func() {
			rec := &fakeRecorder{}
			opts.Recorder = rec
			opts.Engine = "dry"
			report, err := batch.Run(ctx, scene, opts)
			Expect(err).NotTo(HaveOccurred())

			Expect(report.BatchID).To(Equal(int64(1)))
			Expect(rec.rows).To(HaveLen(1))
			Expect(rec.rows[0].Engine).To(Equal("dry"))
			Expect(rec.rows[0].Seed).To(Equal(int64(3)))
			Expect(rec.runs).To(HaveLen(3))
			Expect(rec.statuses).To(Equal([]string{"done"}))
		})

		It("marks a failed batch", func() {
			rec := &fakeRecorder{}
			opts.Recorder = rec
			_, err := batch.Run(ctx, &failingScene{Scene: scene, failAt: 12}, opts)
			Expect(err).To(HaveOccurred())
			Expect(rec.runs).To(HaveLen(1))
			Expect(rec.statuses).To(Equal([]string{"failed"}))
		})
	})
})
