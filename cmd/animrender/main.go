package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/animrender/internal/config"
	"github.com/ivlev/animrender/internal/display"
	"github.com/ivlev/animrender/internal/engine"
	"github.com/ivlev/animrender/internal/source"
	"github.com/ivlev/animrender/internal/statemachine"
	"github.com/ivlev/animrender/internal/system"
)

var buildVersion = "dev"

// paramFlags collects repeated -param name=value[@seconds] flags.
type paramFlags []engine.ParamChange

func (p *paramFlags) String() string { return fmt.Sprint(len(*p)) }

func (p *paramFlags) Set(s string) error {
	name, rest, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("ожидается name=value[@секунды], получено %q", s)
	}
	change := engine.ParamChange{Name: name}
	if v, at, found := strings.Cut(rest, "@"); found {
		t, err := strconv.ParseFloat(at, 64)
		if err != nil {
			return fmt.Errorf("некорректное время в %q: %v", s, err)
		}
		rest, change.At = v, t
	}
	change.Value = statemachine.Parse(rest)
	*p = append(*p, change)
	return nil
}

func main() {
	dirs := []string{"input", "output"}
	for _, d := range dirs {
		os.MkdirAll(d, 0755)
	}

	var params paramFlags
	inputPtr := flag.String("input", "", "PDF, изображение, папка с кадрами, zip-архив (clip.zip или clip.zip#scene.pdf) или pattern:N[@fps] (по умолчанию: самый свежий файл в input/)")
	outputPtr := flag.String("output", "", "Путь к видео или папке PNG (если пусто, генерируется автоматически в output/)")
	configPtr := flag.String("config", "", "YAML с настройками плеера")
	machinePtr := flag.String("machine", "", "YAML с описанием стейт-машины")
	durationPtr := flag.Float64("duration", 0, "Длительность в секундах (0 - один проход анимации)")
	fpsPtr := flag.Int("fps", 30, "Частота тиков и FPS видео")
	widthPtr := flag.Int("width", 0, "Ширина (0 - из конфига)")
	heightPtr := flag.Int("height", 0, "Высота (0 - из конфига)")
	cachePtr := flag.Int("cache-mb", -1, "Бюджет кэша кадров в МБ (0 - авто, -1 - из конфига)")
	pngPtr := flag.Bool("png", false, "Писать PNG-кадры вместо видео")
	qualityPtr := flag.Int("quality", 0, "Качество видео (0 - авто, x264: CRF 1-51, VideoToolbox: битрейт = Q*100кбит/с)")
	statsPtr := flag.Bool("stats", false, "Показать отчет о производительности и дописать benchmark.log")
	verbosePtr := flag.Bool("verbose", false, "Подробный лог пайплайна")
	flag.Var(&params, "param", "Параметр стейт-машины name=value[@секунды], можно повторять")

	flag.Parse()

	level := slog.LevelWarn
	if *verbosePtr {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if *configPtr != "" {
		loaded, err := config.Load(*configPtr)
		if err != nil {
			log.Fatalf("[-] Ошибка конфига: %v", err)
		}
		cfg = loaded
		fmt.Printf("[*] Конфиг: %s\n", *configPtr)
	}
	if *widthPtr > 0 && *heightPtr > 0 {
		cfg.Sizing.Width, cfg.Sizing.Height = *widthPtr, *heightPtr
	}
	if *cachePtr >= 0 {
		cfg.Cache.BudgetMB = *cachePtr
	}

	var machine *statemachine.Machine
	if *machinePtr != "" {
		m, err := statemachine.Load(*machinePtr, logger)
		if err != nil {
			log.Fatalf("[-] Ошибка стейт-машины: %v", err)
		}
		machine = m
		fmt.Printf("[*] Стейт-машина: %s | Состояний: %d | Начальное: %s\n", *machinePtr, len(m.States()), m.CurrentState())
	} else if len(params) > 0 {
		fmt.Println("[!] Параметры -param игнорируются без -machine")
	}

	inputPath := *inputPtr
	if inputPath == "" {
		inputPath = cfg.Source
	}
	if inputPath == "" && machine == nil {
		latest, err := system.FindLatestAsset("input")
		if err != nil {
			log.Fatalf("[-] Ошибка: %v. Положите анимацию в input/ или укажите -input", err)
		}
		inputPath = latest
		fmt.Printf("[*] Выбран файл: %s\n", inputPath)
	}
	cfg.Source = inputPath

	outputPath := *outputPtr
	if outputPath == "" {
		nameSource := inputPath
		if machine != nil {
			nameSource = *machinePtr
		}
		outputPath = defaultOutput(nameSource, *pngPtr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink display.Surface
	var closeSink func() error
	if *pngPtr {
		s, err := display.NewPNGSink(outputPath)
		if err != nil {
			log.Fatalf("[-] Ошибка создания папки кадров: %v", err)
		}
		s.Straight = cfg.Post.Unpremultiply
		sink, closeSink = s, func() error { return nil }
	} else {
		encoderName := system.GetBestH264Encoder()
		if encoderName != "libx264" {
			fmt.Printf("[*] Обнаружено аппаратное ускорение: %s\n", encoderName)
		}
		s := display.NewFFmpegSink(ctx, outputPath, display.FFmpegOptions{
			Width:   even(cfg.Sizing.Width),
			Height:  even(cfg.Sizing.Height),
			FPS:     *fpsPtr,
			Encoder: encoderName,
			Quality: *qualityPtr,
		})
		sink, closeSink = s, s.Close
	}

	fmt.Printf("[*] Источник: %s | Разрешение: %dx%d @ %d FPS\n", describe(inputPath, machine), cfg.Sizing.Width, cfg.Sizing.Height, *fpsPtr)

	project := &engine.Project{
		Config:   cfg,
		Opener:   source.Engines{FrameRate: float64(*fpsPtr)},
		Machine:  machine,
		Params:   params,
		Output:   sink,
		Duration: *durationPtr,
		FPS:      *fpsPtr,
		Logger:   logger,
	}

	var report engine.Report
	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(done)
		rep, err := project.Run(gctx)
		if err != nil {
			closeSink()
			return err
		}
		report = rep
		return closeSink()
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n, total := project.Progress(); total > 0 {
					fmt.Printf("[>] Ready: %d/%d\n", n, total)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("[-] Ошибка рендера: %v", err)
	}

	if *statsPtr {
		engine.PrintReport(report, buildVersion, inputPath, "benchmark.log")
	}
	if machine != nil {
		fmt.Printf("[*] Финальное состояние: %s\n", report.FinalState)
	}
	fmt.Printf("[+++] Успех! Результат: %s\n", outputPath)
}

func defaultOutput(nameSource string, png bool) string {
	baseName := filepath.Base(strings.TrimPrefix(nameSource, source.PatternScheme))
	ext := filepath.Ext(baseName)
	nameOnly := strings.TrimSuffix(baseName, ext)
	cleanName := strings.NewReplacer(" ", "_", "@", "_", ":", "_").Replace(nameOnly)
	if strings.HasPrefix(nameSource, source.PatternScheme) {
		cleanName = "pattern_" + cleanName
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	if png {
		return filepath.Join("output", fmt.Sprintf("%s_%s", cleanName, timestamp))
	}
	return filepath.Join("output", fmt.Sprintf("%s_%s.mp4", cleanName, timestamp))
}

func describe(input string, m *statemachine.Machine) string {
	if m == nil {
		return input
	}
	return "стейт-машина (" + m.CurrentState() + ")"
}

// even rounds up to an even dimension as yuv420p requires.
func even(v int) int {
	if v%2 != 0 {
		return v + 1
	}
	return v
}
