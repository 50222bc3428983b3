package browser

import (
	"fmt"
	"io"

	"github.com/playwright-community/playwright-go"
)

// InstallBrowser downloads the driver and the configured browser binary.
// Verbose controls whether driver output reaches stdout.
func InstallBrowser(browserType string, verbose bool) error {
	switch browserType {
	case EngineFirefox, EngineChromium, EngineWebkit:
	default:
		return fmt.Errorf("unsupported browser type: %s", browserType)
	}

	opts := &playwright.RunOptions{
		Browsers: []string{browserType},
		Verbose:  verbose,
	}
	if !verbose {
		opts.Stdout = io.Discard
		opts.Stderr = io.Discard
	}
	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("install %s: %w", browserType, err)
	}
	return nil
}

// VerifyInstalled launches the configured engine once, headless, to confirm
// the binary works on this host.
func VerifyInstalled(cfg *ResolvedConfig) error {
	engine, err := launchEngine(cfg)
	if err != nil {
		return err
	}
	return engine.Close()
}
