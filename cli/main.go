// Command clipsync watches folders of finished game clips and uploads each
// one to YouTube exactly once, sorted into per-game playlists.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"clipsync/auth"
	"clipsync/config"
	httpx "clipsync/http"
	"clipsync/scanner"
	"clipsync/storage"
	"clipsync/youtube"
)

// oauthScopes covers uploading and playlist management.
var oauthScopes = []string{
	"https://www.googleapis.com/auth/youtube.upload",
	"https://www.googleapis.com/auth/youtube",
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		cmdAuth(args)
	case "scan":
		cmdScan(args)
	case "watch":
		cmdWatch(args)
	case "status":
		cmdStatus(args)
	case "revoke":
		cmdRevoke(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `clipsync - upload finished game clips to YouTube

Usage:
  clipsync auth              Authorize a YouTube account
  clipsync scan [flags]      Scan all folders once and upload new clips
  clipsync watch [flags]     Scan on a schedule until interrupted
  clipsync status [flags]    Show configuration and upload history
  clipsync revoke            Revoke the stored YouTube credential
  clipsync help              Show this help message

Credentials come from the CLIPSYNC_CLIENT_ID and CLIPSYNC_CLIENT_SECRET
environment variables.

For help on a specific command: clipsync <command> -h
`)
}

// dataDir holds the config, credential and ledger files.
func dataDir() string {
	if dir := os.Getenv("CLIPSYNC_DATA_DIR"); dir != "" {
		return dir
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		log.Fatal("cannot determine config directory", "err", err)
	}
	return filepath.Join(dir, "clipsync")
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal("loading config", "path", path, "err", err)
	}
	return cfg
}

// newAuthManager wires the OAuth manager over a loopback consent flow and
// the resilient HTTP client.
func newAuthManager() *auth.Manager {
	clientID := os.Getenv("CLIPSYNC_CLIENT_ID")
	clientSecret := os.Getenv("CLIPSYNC_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		log.Fatal("CLIPSYNC_CLIENT_ID and CLIPSYNC_CLIENT_SECRET must be set")
	}

	flow := &auth.LoopbackFlow{OpenBrowser: openBrowser}
	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       oauthScopes,
		RedirectURL:  "http://" + flow.CallbackAddr() + flow.Path(),
	}

	credPath := filepath.Join(dataDir(), "credentials.json")
	return auth.NewManager(oauthCfg, flow, credPath, auth.WithHTTPClient(httpx.NewClient(nil)))
}

// newService builds an authenticated YouTube service whose requests flow
// through the rate-limited, circuit-broken transport.
func newService(ctx context.Context, manager *auth.Manager) *ytapi.Service {
	base := httpx.NewClient(nil)
	authedCtx := context.WithValue(ctx, oauth2.HTTPClient, base)
	client := oauth2.NewClient(authedCtx, manager.TokenSource(ctx))

	service, err := ytapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		log.Fatal("building youtube service", "err", err)
	}
	return service
}

func openLedger() *storage.Ledger {
	path := filepath.Join(dataDir(), "uploaded.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Fatal("creating data directory", "err", err)
	}
	ledger, err := storage.OpenLedger(path)
	if err != nil {
		log.Fatal("opening upload ledger", "path", path, "err", err)
	}
	return ledger
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func cmdAuth(args []string) {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	manager := newAuthManager()
	if err := manager.Authorize(ctx); err != nil {
		log.Fatal("authorization failed", "err", err)
	}
	log.Info("authorized", "state", manager.State())
}

func cmdScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configPath := fs.String("config", filepath.Join(dataDir(), "config.json"), "Path to the config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if len(cfg.Folders) == 0 {
		log.Fatal("no folders configured", "config", *configPath)
	}

	ctx, cancel := signalContext()
	defer cancel()

	manager := newAuthManager()
	if err := manager.Authorize(ctx); err != nil {
		log.Fatal("authorization failed", "err", err)
	}

	ledger := openLedger()
	defer ledger.Close()

	service := newService(ctx, manager)
	s := newScanner(service, ledger, *configPath)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	res, err := s.Scan(ctx, cfg, logEvents)
	if err != nil {
		log.Fatal("scan failed", "err", err)
	}
	log.Info("scan complete",
		"folders", res.Scanned,
		"found", res.Found,
		"uploaded", res.Uploaded,
		"skipped", res.Skipped,
		"errors", res.Errors)
	if res.Errors > 0 {
		os.Exit(1)
	}
}

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", filepath.Join(dataDir(), "config.json"), "Path to the config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if len(cfg.Folders) == 0 {
		log.Fatal("no folders configured", "config", *configPath)
	}

	ctx, cancel := signalContext()
	defer cancel()

	manager := newAuthManager()
	if err := manager.Authorize(ctx); err != nil {
		log.Fatal("authorization failed", "err", err)
	}

	ledger := openLedger()
	defer ledger.Close()

	service := newService(ctx, manager)
	s := newScanner(service, ledger, *configPath)

	log.Info("watching", "folders", len(cfg.Folders), "interval", cfg.ScanInterval())
	w := scanner.NewWatcher(s, cfg.ScanInterval())
	if err := w.Run(ctx, cfg, logEvents); err != nil && ctx.Err() == nil {
		log.Fatal("watcher failed", "err", err)
	}
	log.Info("stopped")
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", filepath.Join(dataDir(), "config.json"), "Path to the config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	credPath := filepath.Join(dataDir(), "credentials.json")
	authorized := "no"
	if _, err := os.Stat(credPath); err == nil {
		authorized = "yes"
	}

	ledger := openLedger()
	defer ledger.Close()

	fmt.Printf("Authorized:      %s\n", authorized)
	fmt.Printf("Auto upload:     %v (every %s)\n", cfg.AutoUpload, cfg.ScanInterval())
	fmt.Printf("Privacy:         %s\n", cfg.Privacy)
	fmt.Printf("Uploads on file: %d\n\n", ledger.Len())

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FOLDER\tGAME\tPLAYLIST")
	for _, f := range cfg.Folders {
		playlist := f.PlaylistID
		if playlist == "" {
			playlist = "(unresolved)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Path, f.GameName, playlist)
	}
	w.Flush()
}

func cmdRevoke(args []string) {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	manager := newAuthManager()
	if err := manager.Revoke(ctx); err != nil {
		log.Fatal("revoke failed", "err", err)
	}
	log.Info("credential revoked")
}

func newScanner(service *ytapi.Service, ledger *storage.Ledger, configPath string) *scanner.Scanner {
	uploader := youtube.NewUploader(service, ledger)
	resolver := youtube.NewPlaylistResolver(service)
	s := scanner.New(uploader, resolver)
	s.SaveConfig = func(c *config.Config) error {
		return c.Save(configPath)
	}
	return s
}

// openBrowser launches the system browser at url.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn("could not open browser, open the URL manually", "url", url, "err", err)
	}
	return nil
}

// logEvents renders scan progress.
func logEvents(e scanner.Event) {
	switch e.Status {
	case scanner.StatusScanning:
		log.Info("scanning", "folder", e.Folder)
	case scanner.StatusUploading:
		if e.Progress > 0 {
			log.Debug("uploading", "file", filepath.Base(e.File), "pct", e.Progress)
		} else {
			log.Info("uploading", "file", filepath.Base(e.File))
		}
	case scanner.StatusUploaded:
		log.Info("uploaded", "file", filepath.Base(e.File))
	case scanner.StatusSkipped:
		log.Info("skipped", "file", filepath.Base(e.File))
	case scanner.StatusError:
		log.Error("upload failed", "file", filepath.Base(e.File), "err", e.Err)
	}
}
