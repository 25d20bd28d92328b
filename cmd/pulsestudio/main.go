// Pulsestudio runs the compositing engine in a window, driven by an audio
// file or the default input device, and exposes it to controllers over
// HTTP, websockets and MQTT.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/audio"
	"github.com/fraendk-lang/elastic-pulse-studio/audio/features"
	"github.com/fraendk-lang/elastic-pulse-studio/audio/util"
	"github.com/fraendk-lang/elastic-pulse-studio/config"
	"github.com/fraendk-lang/elastic-pulse-studio/control"
	"github.com/fraendk-lang/elastic-pulse-studio/engine"
	"github.com/fraendk-lang/elastic-pulse-studio/export"
	"github.com/fraendk-lang/elastic-pulse-studio/export/sink"
	"github.com/fraendk-lang/elastic-pulse-studio/gfx"
	"github.com/fraendk-lang/elastic-pulse-studio/palette"
	"github.com/fraendk-lang/elastic-pulse-studio/render"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
	"github.com/fraendk-lang/elastic-pulse-studio/transport"
)

var (
	configPath  = flag.String("config", "", "YAML configuration file")
	audioFile   = flag.String("audio", "", "audio file to play, overrides the config")
	shaderDir   = flag.String("shaders", "", "shader directory, overrides the config")
	projectPath = flag.String("project", "", "project JSON to open, overrides the config")
	listen      = flag.String("listen", "", "HTTP address for the control server, overrides the config")
	broker      = flag.String("broker", "", "MQTT broker url, overrides the config")
	devices     = flag.Bool("devices", false, "list audio devices and exit")
	writeConfig = flag.String("write-config", "", "write the default configuration to this file and exit")
)

func loadConfig() *config.Config {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal("loading config: ", err)
		}
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Audio.File, *audioFile)
	override(&cfg.Shaders, *shaderDir)
	override(&cfg.Project, *projectPath)
	override(&cfg.Control.Listen, *listen)
	override(&cfg.Control.Broker, *broker)
	return cfg
}

func loadProject(path string) *timeline.Project {
	if path == "" {
		return timeline.NewProject()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal("reading project: ", err)
	}
	p, err := timeline.UnmarshalProject(data)
	if err != nil {
		log.Fatal(err)
	}
	return p
}

func watchShaders(ctx context.Context, dir string, s *engine.Session) {
	shaders, err := palette.LoadDir(dir)
	if err != nil {
		log.Println("[WARNING] loading shaders:", err)
		return
	}
	s.Update(func(p *timeline.Project) error {
		palette.Merge(p, shaders)
		return nil
	})
	glog.Infof("loaded %d shaders from %s", len(shaders), dir)

	w, err := palette.NewWatcher(dir, func(shaders []timeline.Shader) {
		s.Update(func(p *timeline.Project) error {
			if palette.Merge(p, shaders) {
				glog.Infof("reloaded shaders from %s", dir)
			}
			return nil
		})
	})
	if err != nil {
		log.Println("[WARNING] watching shaders:", err)
		return
	}
	go w.Run(ctx)
}

func exportOpener(ctx context.Context, cfg *config.Config) export.Opener {
	out := cfg.Export.Output
	if ext := filepath.Ext(out); ext == "" || strings.HasSuffix(out, "/") {
		return sink.NewDir(out)
	}
	return sink.NewFFmpeg(ctx, sink.FFmpegConfig{
		Binary:     cfg.Export.FFmpeg,
		Output:     out,
		VideoCodec: cfg.Export.Codec,
	})
}

func main() {
	flag.Parse()

	if *devices {
		if err := audio.PrintDevices(); err != nil {
			log.Fatal(err)
		}
		return
	}
	if *writeConfig != "" {
		if err := config.Default().Save(*writeConfig); err != nil {
			log.Fatal(err)
		}
		return
	}
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The window has to be created first, on the main thread.
	win, err := gfx.NewWindow(&gfx.WindowConfig{
		Width:  cfg.Window.Width,
		Height: cfg.Window.Height,
		Title:  cfg.Window.Title,
		VSync:  cfg.Window.VSync,
	})
	if err != nil {
		log.Fatal("error creating window: ", err)
	}
	dev, err := gfx.NewDevice(win)
	if err != nil {
		log.Fatal("error creating device: ", err)
	}

	comp := render.NewCompositor(dev, nil)
	comp.Cache().OnDiagnostic(func(id string, diag *string) {
		if diag != nil {
			log.Printf("[WARNING] shader %s: %s", id, *diag)
		}
	})

	session := engine.NewSession(loadProject(cfg.Project))
	if cfg.Shaders != "" {
		watchShaders(ctx, cfg.Shaders, session)
	}
	tr := transport.New(session.Snapshot().Duration)

	extractor := features.NewExtractor(cfg.FeatureConfig())
	analysis := features.NewAnalysis(extractor, cfg.AnalyserConfig())
	defer analysis.Close()

	var recAudio export.Audio
	if cfg.Audio.File != "" {
		player, err := audio.Open(cfg.Audio.File, cfg.Audio.BlockSize)
		if err != nil {
			log.Fatal(err)
		}
		defer player.Close()
		if err := player.Start(); err != nil {
			log.Fatal(err)
		}
		tr.SetAudio(player)
		analysis.Begin(player)
		recAudio = player
		glog.Infof("playing %s (%.1fs)", cfg.Audio.File, player.Duration())
	} else {
		input := audio.NewLiveInput(ctx, &audio.Config{
			BlockSize:  cfg.Audio.BlockSize,
			SampleRate: cfg.Audio.SampleRate,
			Channels:   1,
		})
		if cfg.Audio.PreGain {
			analysis.WithPreGain(util.NewPreGain(util.DefaultPreGainParams))
		}
		analysis.Begin(input)
		go func() {
			if err := <-input.Err(); err != nil {
				log.Println("[WARNING] live input:", err)
			}
		}()
	}

	eng := engine.New(session, tr, comp, analysis)
	rec := export.NewRecorder(dev, tr, recAudio, exportOpener(ctx, cfg))
	rec.OnFinish = func(err error) {
		if err != nil {
			log.Println("[ERROR] export failed:", err)
			return
		}
		glog.Infof("export written to %s", cfg.Export.Output)
	}

	reg := control.NewRegistry(eng)
	mapper := control.NewMapper(reg.Apply)
	for _, m := range cfg.MIDI {
		mapper.Set(m)
	}

	done := make(chan struct{})
	defer close(done)

	if cfg.Control.Listen != "" {
		api, err := control.NewAPI(eng, reg, rec)
		if err != nil {
			log.Fatal(err)
		}
		srv := control.NewServer(api, cfg.Control.Static)
		srv.HandleMIDI(mapper)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Control.Listen); err != nil {
				log.Println("[ERROR] control server:", err)
			}
		}()
	}

	if cfg.Control.Broker != "" {
		bridge, err := control.NewBridge(cfg.Control.Broker, cfg.Control.Prefix, reg)
		if err != nil {
			log.Println("[WARNING] mqtt disabled:", err)
		} else {
			defer bridge.Close()
			go bridge.StartPublisher(cfg.Control.PublishRate, done)
		}
	}

	dev.EventLoop(ctx, func() {
		now := time.Now()
		// A frame drawn on a lost context is not captured; the compositor
		// recovers on the next one.
		if rep, drawn := eng.Frame(now); drawn && !rep.DeviceLost {
			rec.Tick(now)
		}
	})
}
