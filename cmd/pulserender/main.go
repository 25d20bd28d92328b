// Pulserender renders a project offline with the software device and
// writes it through the export pipeline. Time is simulated, so the result
// does not depend on how fast the machine renders.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/audio"
	"github.com/fraendk-lang/elastic-pulse-studio/audio/features"
	"github.com/fraendk-lang/elastic-pulse-studio/audio/fft"
	"github.com/fraendk-lang/elastic-pulse-studio/config"
	"github.com/fraendk-lang/elastic-pulse-studio/engine"
	"github.com/fraendk-lang/elastic-pulse-studio/export"
	"github.com/fraendk-lang/elastic-pulse-studio/export/sink"
	"github.com/fraendk-lang/elastic-pulse-studio/palette"
	"github.com/fraendk-lang/elastic-pulse-studio/raster"
	"github.com/fraendk-lang/elastic-pulse-studio/render"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
	"github.com/fraendk-lang/elastic-pulse-studio/transport"
)

var (
	configPath  = flag.String("config", "", "YAML configuration file")
	projectPath = flag.String("project", "", "project JSON to render")
	audioFile   = flag.String("audio", "", "audio track, overrides the config")
	shaderDir   = flag.String("shaders", "", "shader directory merged into the project palette")
	out         = flag.String("out", "", "output: a directory for PNG frames, or a video file for ffmpeg")
	width       = flag.Int("width", 0, "frame width, overrides the config")
	height      = flag.Int("height", 0, "frame height, overrides the config")
	frameRate   = flag.Float64("fps", 0, "frame rate, overrides the config")
	single      = flag.Bool("single", false, "write a single frame")
	at          = flag.Float64("at", 0, "timeline position of a single frame, in seconds")
)

// analyser feeds blocks played by the offline player to the extractor.
type analyser struct {
	player *audio.Offline
	fft    *fft.Analyser
	ex     *features.Extractor
	window []float64
	bins   []uint8
}

func (a *analyser) step(dt float64) {
	if a.player.Advance(dt) == nil {
		return
	}
	a.window = a.player.Window(a.window)
	a.bins = a.fft.ByteFrequencyData(a.window, a.bins)
	a.ex.Update(a.bins, time.Duration(a.player.Position()*float64(time.Second)))
}

func opener(ctx context.Context, cfg *config.Config, path string) export.Opener {
	if filepath.Ext(path) == "" {
		return sink.NewDir(path)
	}
	return sink.NewFFmpeg(ctx, sink.FFmpegConfig{
		Binary:     cfg.Export.FFmpeg,
		Output:     path,
		VideoCodec: cfg.Export.Codec,
	})
}

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal("loading config: ", err)
		}
	}
	if *audioFile != "" {
		cfg.Audio.File = *audioFile
	}
	if *projectPath != "" {
		cfg.Project = *projectPath
	}
	if *out != "" {
		cfg.Export.Output = *out
	}
	if cfg.Project == "" {
		log.Fatal("no project given")
	}

	s := cfg.Export.Settings
	if *width > 0 {
		s.Width = *width
	}
	if *height > 0 {
		s.Height = *height
	}
	if *frameRate > 0 {
		s.FrameRate = *frameRate
	}
	if *single {
		s.Format = export.SingleFrame
	}
	s = s.Normalized()

	data, err := os.ReadFile(cfg.Project)
	if err != nil {
		log.Fatal(err)
	}
	p, err := timeline.UnmarshalProject(data)
	if err != nil {
		log.Fatal(err)
	}
	if *shaderDir != "" {
		shaders, err := palette.LoadDir(*shaderDir)
		if err != nil {
			log.Fatal(err)
		}
		palette.Merge(p, shaders)
	}

	dev, err := raster.New(s.Width, s.Height)
	if err != nil {
		log.Fatal(err)
	}
	comp := render.NewCompositor(dev, nil)
	comp.Cache().OnDiagnostic(func(id string, diag *string) {
		if diag != nil {
			log.Printf("[WARNING] shader %s: %s", id, *diag)
		}
	})

	session := engine.NewSession(p)
	tr := transport.New(p.Duration)
	ex := features.NewExtractor(cfg.FeatureConfig())

	var (
		recAudio export.Audio
		an       *analyser
	)
	if cfg.Audio.File != "" {
		stream, format, err := audio.Decode(cfg.Audio.File)
		if err != nil {
			log.Fatal(err)
		}
		player := audio.NewOffline(stream, format, cfg.Analyser.Size)
		defer player.Close()
		tr.SetAudio(player)
		recAudio = player
		an = &analyser{player: player, fft: fft.NewAnalyser(cfg.AnalyserConfig()), ex: ex}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(session, tr, comp, ex)
	rec := export.NewRecorder(dev, tr, recAudio, opener(ctx, cfg, cfg.Export.Output))
	var (
		finished bool
		result   error
	)
	rec.OnFinish = func(err error) {
		finished, result = true, err
	}

	if s.Format == export.SingleFrame {
		tr.Seek(*at)
	}
	if err := rec.StartExport(s); err != nil {
		log.Fatal(err)
	}
	glog.Infof("rendering %s to %s at %dx%d, %.0f fps", cfg.Project, cfg.Export.Output, s.Width, s.Height, s.FrameRate)

	step := time.Duration(float64(time.Second) / s.FrameRate)
	now := time.Now()
	for n := 0; !finished; n++ {
		now = now.Add(step)
		if an != nil {
			an.step(step.Seconds())
		}
		eng.Frame(now)
		rec.Tick(now)
		if n%int(s.FrameRate) == 0 && rec.TotalFrames() > 0 {
			log.Printf("%3.0f%% frame %d of %d", rec.Progress(), rec.CurrentFrame(), rec.TotalFrames())
		}
	}
	if result != nil {
		log.Fatal("export failed: ", result)
	}
	log.Printf("wrote %d frames to %s", rec.TotalFrames(), cfg.Export.Output)
}
