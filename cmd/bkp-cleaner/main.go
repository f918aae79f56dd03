package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/config"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/database"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/exitcodes"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/limiter"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/logging"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/runner"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/safety"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

type cliFlags struct {
	configPath  string
	path        string
	days        int
	dryRun      bool
	force       bool
	recursive   bool
	logFile     string
	historyDB   string
	metricsFile string
	rate        float64
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("bkp-cleaner", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var f cliFlags
	fs.StringVar(&f.configPath, "config", "", "Optional YAML configuration file")
	fs.StringVar(&f.path, "path", "", "Backup directory to clean")
	fs.IntVar(&f.days, "days", 0, "Retention in days; files modified before now minus days are removed")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Only list what would be removed")
	fs.BoolVar(&f.force, "force", false, "Delete without asking for confirmation")
	fs.BoolVar(&f.recursive, "recursive", false, "Include files in subdirectories")
	fs.StringVar(&f.logFile, "log", "", "Also append log lines to this file")
	fs.StringVar(&f.historyDB, "history-db", "", "Record runs and decisions in this SQLite database")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile when the run ends")
	fs.Float64Var(&f.rate, "max-deletes-per-second", 0, "Limit the deletion rate (0 = unlimited)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitcodes.Success
		}
		return exitcodes.Usage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "ERROR: unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return exitcodes.Usage
	}

	cfg, code := loadConfig(fs, &f, stderr)
	if code != exitcodes.Success {
		return code
	}

	logger, err := logging.New(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: Failed to open log file: %v\n", err)
		return exitcodes.InvalidConfig
	}
	defer logger.Close()

	r := runner.New(logger, safety.NewGuard(cfg.ProtectedPaths))

	if cfg.HistoryDB != "" {
		db, err := database.NewDeletionDB(cfg.HistoryDB)
		if err != nil {
			logger.Error("Falha ao abrir o histórico %s: %v", cfg.HistoryDB, err)
			return exitcodes.InvalidConfig
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Falha ao fechar o histórico: %v", err)
			}
		}()
		r.SetHistory(db)
	}

	if cfg.MetricsFile != "" {
		r.SetMetricsFile(cfg.MetricsFile)
	}

	if cfg.MaxDeletesPerSecond > 0 {
		logger.Info("Limitando remoções a %.2f por segundo", cfg.MaxDeletesPerSecond)
		r.SetThrottle(limiter.NewThrottle(cfg.MaxDeletesPerSecond))
	}

	if f.dryRun {
		logger.Info("Modo DRY-RUN: nenhum arquivo será removido")
	}

	_, err = r.Run(runner.Options{
		Path:      cfg.Path,
		Days:      *cfg.Days,
		DryRun:    f.dryRun,
		Force:     f.force,
		Recursive: cfg.Recursive,
	})

	code = runner.ExitCode(err)
	switch code {
	case exitcodes.Usage:
		logger.Error("%v", err)
	case exitcodes.RuntimeError:
		logger.Error("Execução interrompida: %v", err)
	}
	return code
}

// loadConfig reads the optional config file and overlays every flag that was
// set explicitly on the command line.
func loadConfig(fs *flag.FlagSet, f *cliFlags, stderr io.Writer) (*config.Config, int) {
	cfg := &config.Config{}
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: Failed to load config: %v\n", err)
			return nil, exitcodes.InvalidConfig
		}
		cfg = loaded
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "path":
			cfg.Path = f.path
		case "days":
			cfg.Days = &f.days
		case "recursive":
			cfg.Recursive = f.recursive
		case "log":
			cfg.LogFile = f.logFile
		case "history-db":
			cfg.HistoryDB = f.historyDB
		case "metrics-file":
			cfg.MetricsFile = f.metricsFile
		case "max-deletes-per-second":
			cfg.MaxDeletesPerSecond = f.rate
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		if errors.Is(err, config.ErrNegativeDays) || errors.Is(err, config.ErrNegativeRate) {
			return nil, exitcodes.Usage
		}
		return nil, exitcodes.InvalidConfig
	}

	if cfg.Path == "" || cfg.Days == nil {
		fmt.Fprintln(stderr, "ERROR: --path and --days are required")
		fs.Usage()
		return nil, exitcodes.Usage
	}
	return cfg, exitcodes.Success
}
