package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tabwright/tabwright/internal/browser"
	"github.com/tabwright/tabwright/internal/favorites"
	"github.com/tabwright/tabwright/internal/operator"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tabwright",
	Short: "Supervised headless browser sessions driven by text commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession()
	},
	SilenceUsage: true,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download the browser engine and verify it launches",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadResolvedConfig()
		if err != nil {
			return err
		}
		fmt.Printf("installing %s...\n", cfg.BrowserType)
		if err := browser.InstallBrowser(cfg.BrowserType, verbose); err != nil {
			return err
		}
		if err := browser.VerifyInstalled(cfg); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(installCmd)
}

func loadResolvedConfig() (*browser.ResolvedConfig, error) {
	cfg, err := browser.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return browser.ResolveConfig(cfg)
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// defaultFavorites seed the search engines a fresh install can use.
var defaultFavorites = []favorites.Favorite{
	{Name: "bing", URL: "https://www.bing.com/search?q={keyword}"},
	{Name: "baidu", URL: "https://www.baidu.com/s?wd={keyword}"},
	{Name: "duckduckgo", URL: "https://duckduckgo.com/?q={keyword}"},
}

func runSession() error {
	setupLogging()

	cfg, err := loadResolvedConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	favs, err := favorites.Open(filepath.Join(cfg.DataDir, "favorites.db"))
	if err != nil {
		return err
	}
	defer favs.Close()
	if err := favs.Seed(defaultFavorites); err != nil {
		return err
	}
	if cfg.DefaultSearchEngine == "" {
		cfg.DefaultSearchEngine = "bing"
	}

	supervisor := browser.NewSupervisor(cfg)
	supervisor.Start()
	defer supervisor.Stop()

	op := operator.New(supervisor, &stdioResponder{dataDir: cfg.DataDir}, favs, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down...")
		cancel()
	}()

	fmt.Println("tabwright ready, type help for commands")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := op.Handle(ctx, line); err != nil {
				slog.Error("command failed", "error", err)
			}
		}
	}
}

// stdioResponder prints text replies and saves screenshots under the data
// directory, printing the path.
type stdioResponder struct {
	dataDir string
	n       int
}

func (r *stdioResponder) SendText(text string) error {
	fmt.Println(text)
	return nil
}

func (r *stdioResponder) SendImage(data []byte) error {
	r.n++
	ext := ".png"
	if len(data) >= 2 && data[0] == 0xff && data[1] == 0xd8 {
		ext = ".jpg"
	}
	path := filepath.Join(r.dataDir, fmt.Sprintf("view_%03d%s", r.n, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("screenshot saved: %s\n", path)
	return nil
}
