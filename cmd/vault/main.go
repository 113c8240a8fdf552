package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"photovault/internal/adapter/blob"
	"photovault/internal/adapter/cache"
	"photovault/internal/adapter/index"
	"photovault/internal/adapter/settings"
	"photovault/internal/domain"
	"photovault/internal/infra/config"
	"photovault/internal/infra/logger"
	"photovault/internal/infra/tracer"
	"photovault/internal/security"
	"photovault/internal/usecase"
	"photovault/internal/usecase/eventbus"
	"photovault/internal/usecase/scheduling"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]
	if err := run(cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`photovault - local encrypted photo vault

USAGE:
    vault COMMAND [ARGS]

COMMANDS:
    import FILE [--date RFC3339]   Encrypt and store a photo; prints its id
    list                           List stored photos, newest first
    export ID FILE                 Decrypt a photo and re-encode it to FILE
                                   (format from extension: .jpg or .png)
    delete ID                      Remove a photo, its metadata, and caches
    mask ID MODE                   Destructively mask selected face regions
                                   (blackout, pixelate, blur, noise)
    faces ID X,Y,WxH [...]         Record face regions for a photo
    share ID                       Decrypt to a temp file and print its path
    pin set VALUE | status | clear App-lock PIN stored in settings
    serve                          Run the maintenance scheduler until
                                   interrupted (cache sweeps, temp cleanup)

CONFIGURATION:
    Config file: ~/.photovault/config.yaml (or $PHOTOVAULT_CONFIG)
    Environment: PHOTOVAULT_* variables override config`)
}

func configPath() string {
	if p := os.Getenv("PHOTOVAULT_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".photovault", "config.yaml")
}

// app bundles everything a command needs, with a single cleanup.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	repo     *usecase.Repository
	settings *settings.SQLiteStore
	bus      *eventbus.Bus
	mm       *usecase.MemoryManager
	cleanup  func()
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logCloser()
		return nil, fmt.Errorf("tracer: %w", err)
	}

	kp, err := security.NewFileKeyProvider(cfg.Vault.KeyFile)
	if err != nil {
		logCloser()
		return nil, fmt.Errorf("key provider: %w", err)
	}
	enc, err := security.NewAEADEncryptor(kp, cfg.Vault.Cipher)
	if err != nil {
		logCloser()
		return nil, fmt.Errorf("encryptor: %w", err)
	}

	store := blob.NewFileStore(filepath.Join(cfg.Vault.Dir, "content"), log)
	idx := index.NewJSONIndex(filepath.Join(cfg.Vault.Dir, "index"), log)

	sets, err := settings.Open(cfg.Vault.SettingsDB)
	if err != nil {
		logCloser()
		return nil, fmt.Errorf("settings: %w", err)
	}

	bus := eventbus.New(log)
	imageCache := cache.New(cfg.Cache)
	mm := usecase.NewMemoryManager(imageCache, cfg.Eviction, bus, log)

	repo := usecase.NewRepository(usecase.RepositoryDeps{
		Encryptor: enc,
		Store:     store,
		Index:     idx,
		Cache:     imageCache,
		Memory:    mm,
		Bus:       bus,
		Logger:    log,
	}, cfg.Cache, cfg.Imaging)

	return &app{
		cfg:      cfg,
		log:      log,
		repo:     repo,
		settings: sets,
		bus:      bus,
		mm:       mm,
		cleanup: func() {
			repo.Close()
			bus.Close()
			if err := sets.Close(); err != nil {
				log.Error("settings close error", "error", err)
			}
			if err := tracerShutdown(context.Background()); err != nil {
				log.Error("tracer shutdown error", "error", err)
			}
			logCloser()
		},
	}, nil
}

func run(cmd string, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.cleanup()

	switch cmd {
	case "import":
		return runImport(ctx, a, args)
	case "list":
		return runList(ctx, a)
	case "export":
		return runExport(ctx, a, args)
	case "delete":
		return runDelete(ctx, a, args)
	case "mask":
		return runMask(ctx, a, args)
	case "faces":
		return runFaces(ctx, a, args)
	case "share":
		return runShare(ctx, a, args)
	case "pin":
		return runPIN(ctx, a, args)
	case "serve":
		return runServe(ctx, a)
	default:
		return fmt.Errorf("unknown command %q, run 'vault --help' for usage", cmd)
	}
}

func runImport(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: vault import FILE [--date RFC3339]")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	var photo *domain.SecurePhoto
	if len(args) >= 3 && args[1] == "--date" {
		created, perr := time.Parse(time.RFC3339, args[2])
		if perr != nil {
			return fmt.Errorf("bad --date: %w", perr)
		}
		photo, err = a.repo.ImportFromLibrary(ctx, data, created)
	} else {
		photo, err = a.repo.ImportFromCamera(ctx, data)
	}
	if err != nil {
		return err
	}
	fmt.Println(photo.ID)
	return nil
}

func runList(ctx context.Context, a *app) error {
	photos, err := a.repo.LoadAllPhotos(ctx)
	if err != nil {
		return err
	}
	for _, p := range photos {
		mode := string(p.Metadata.MaskMode)
		if mode == "" {
			mode = "-"
		}
		fmt.Printf("%s  %s  %8d bytes  faces=%d  mask=%s\n",
			p.ID,
			p.Metadata.CreationDate.Format(time.RFC3339),
			p.Metadata.FileSizeBytes,
			len(p.Metadata.Faces),
			mode)
	}
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: vault export ID FILE")
	}
	format := domain.ExportJPEG
	switch strings.ToLower(filepath.Ext(args[1])) {
	case ".png":
		format = domain.ExportPNG
	case ".heic":
		format = domain.ExportHEIC
	}
	out, err := a.repo.ExportPhoto(ctx, args[0], format)
	if err != nil {
		return err
	}
	return os.WriteFile(args[1], out, 0o600)
}

func runDelete(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: vault delete ID")
	}
	return a.repo.DeletePhoto(ctx, args[0])
}

func runMask(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: vault mask ID MODE")
	}
	mode := domain.MaskMode(args[1])
	if !domain.ValidMaskMode(mode) {
		return fmt.Errorf("unknown mask mode %q", args[1])
	}
	return a.repo.MaskPhoto(ctx, args[0], []domain.MaskMode{mode})
}

// runFaces records face regions given as X,Y,WxH triples, all selected.
func runFaces(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: vault faces ID X,Y,WxH [...]")
	}
	var faces []domain.FaceRegion
	for _, spec := range args[1:] {
		var f domain.FaceRegion
		if _, err := fmt.Sscanf(spec, "%d,%d,%dx%d", &f.X, &f.Y, &f.Width, &f.Height); err != nil {
			return fmt.Errorf("bad region %q (want X,Y,WxH): %w", spec, err)
		}
		f.IsSelected = true
		f.IsUserCreated = true
		faces = append(faces, f)
	}
	return a.repo.UpdateFaceDetectionResults(ctx, args[0], faces)
}

func runShare(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: vault share ID")
	}
	path, err := a.repo.SharePhoto(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runPIN(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: vault pin set VALUE | status | clear")
	}
	switch args[0] {
	case "set":
		if len(args) != 2 || args[1] == "" {
			return fmt.Errorf("usage: vault pin set VALUE")
		}
		if err := a.settings.SetString(ctx, settings.KeyPINValue, args[1]); err != nil {
			return err
		}
		return a.settings.SetBool(ctx, settings.KeyPINSet, true)
	case "status":
		set, _, err := a.settings.GetBool(ctx, settings.KeyPINSet)
		if err != nil {
			return err
		}
		if set {
			fmt.Println("pin: set")
		} else {
			fmt.Println("pin: not set")
		}
		return nil
	case "clear":
		if err := a.settings.Delete(ctx, settings.KeyPINValue); err != nil {
			return err
		}
		return a.settings.SetBool(ctx, settings.KeyPINSet, false)
	default:
		return fmt.Errorf("unknown pin subcommand %q", args[0])
	}
}

// runServe keeps the process alive running scheduled maintenance until
// interrupted.
func runServe(ctx context.Context, a *app) error {
	if !a.cfg.Scheduler.Enabled {
		return fmt.Errorf("scheduler disabled in config")
	}

	sched := scheduling.NewScheduler(a.log)
	sched.RegisterAction(scheduling.ActionCacheSweep, a.repo.SweepCache)
	sched.RegisterAction(scheduling.ActionTempClean, func(ctx context.Context) error {
		return a.repo.CleanSharedExports(ctx, time.Hour)
	})
	if err := sched.AddTask(scheduling.ScheduledTask{
		Name: "cache-sweep", Schedule: a.cfg.Scheduler.SweepSchedule, Action: scheduling.ActionCacheSweep,
	}); err != nil {
		return err
	}
	if err := sched.AddTask(scheduling.ScheduledTask{
		Name: "temp-clean", Schedule: a.cfg.Scheduler.TempClean, Action: scheduling.ActionTempClean,
	}); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	fmt.Println("photovault maintenance running; Ctrl-C to stop")
	<-ctx.Done()
	return sched.Stop()
}
