package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/kardianos/service"

	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/agent"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/config"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/internal/logger"
	"github.com/Chadys/ibmi-remote-prometeus-monitoring/pkg/utils"
)

const version = "v1.0.0"

type program struct {
	agent *agent.Agent
	cfg   *config.ExporterConfig
}

func (p *program) Start(s service.Service) error {
	go p.run()
	return nil
}

func (p *program) run() {
	logger.Info("IBM i exporter %s starting on %s", version, utils.GetPlatformInfo())

	p.agent = agent.NewAgent(p.cfg)
	if err := p.agent.Start(); err != nil {
		logger.Fatal("exporter could not start: %v", err)
	}

	// Block until the service wrapper calls Stop.
	select {}
}

func (p *program) Stop(s service.Service) error {
	if p.agent != nil {
		p.agent.Stop()
		logger.Info("exporter stopped")
	}
	return nil
}

func main() {
	initLogging()

	helpFlag := flag.Bool("help", false, "Show help")
	versionFlag := flag.Bool("version", false, "Show version")
	svcFlag := flag.String("service", "", "Control the system service: install, uninstall, start, stop")
	logLevelFlag := flag.String("loglevel", "", "Log level: DEBUG, INFO, WARNING, ERROR, FATAL (overrides configuration)")
	configFlag := flag.String("config", "", "Path to the config file (default: search the known locations)")

	flag.Parse()

	if *helpFlag {
		flag.Usage()
		return
	}

	if *versionFlag {
		fmt.Println("ibmi-exporter " + version)
		return
	}

	cfg, err := config.LoadExporterConfig(*configFlag)
	if err != nil {
		logger.Fatal("failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	if *logLevelFlag != "" {
		level := logger.ParseLevel(*logLevelFlag)
		logger.SetLevel(level)
		logger.Info("log level set to %s", logger.LevelToString(level))
	}

	prg := &program{cfg: cfg}

	svcConfig := &service.Config{
		Name:        "IbmiExporter",
		DisplayName: "IBM i Exporter",
		Description: "Prometheus exporter for IBM i system metrics.",
	}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		logger.Fatal("failed to create service: %v", err)
	}

	if len(*svcFlag) > 0 {
		if err := service.Control(s, *svcFlag); err != nil {
			logger.Fatal("service command failed: %v", err)
		}
		return
	}

	if err := s.Run(); err != nil {
		logger.Fatal("service run failed: %v", err)
	}
}

func initLogging() {
	if runtime.GOOS != "windows" {
		// On Linux the service manager captures stderr.
		return
	}

	if setupWindowsEventLog() {
		return
	}
	setupFileLogging()
}

const (
	maxLogSize  = 100 * 1024 * 1024
	maxLogFiles = 5
)

// setupFileLogging writes logs next to the executable, rotating by size.
func setupFileLogging() {
	exePath, err := os.Executable()
	if err != nil {
		log.Fatalf("Failed to get executable path: %v", err)
	}
	logDir := filepath.Dir(exePath)

	logFile := filepath.Join(logDir, "ibmi-exporter.log")

	info, err := os.Stat(logFile)
	if err == nil && info.Size() > maxLogSize {
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		backupFile := filepath.Join(logDir, fmt.Sprintf("ibmi-exporter_%s.log", timestamp))

		if err := os.Rename(logFile, backupFile); err != nil {
			log.Printf("Log rotation failed: %v", err)
		} else {
			log.Printf("Log rotated to: %s", backupFile)
		}

		cleanupOldLogs(logDir, maxLogFiles)
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}

	// Route both the standard log and our logger package to the file.
	log.SetOutput(f)
	logger.SetOutput(f)

	logger.Info("file logging enabled, log level: %s", logger.LevelToString(logger.GetLevel()))
}

// cleanupOldLogs keeps only the newest keepCount rotated files.
func cleanupOldLogs(logDir string, keepCount int) {
	pattern := filepath.Join(logDir, "ibmi-exporter_*.log")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		log.Printf("Could not list old log files: %v", err)
		return
	}

	// Oldest first.
	sort.Slice(matches, func(i, j int) bool {
		infoI, errI := os.Stat(matches[i])
		infoJ, errJ := os.Stat(matches[j])

		if errI != nil || errJ != nil {
			return false
		}

		return infoI.ModTime().Before(infoJ.ModTime())
	})

	if len(matches) > keepCount {
		for i := 0; i < len(matches)-keepCount; i++ {
			if err := os.Remove(matches[i]); err != nil {
				log.Printf("Could not remove old log file %s: %v", matches[i], err)
			} else {
				log.Printf("Removed old log file: %s", matches[i])
			}
		}
	}
}
