package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/barnettlynn/kfdctl/cmd/kfdctl/internal/config"
	"github.com/barnettlynn/kfdctl/pkg/kfd"
	"golang.org/x/term"
)

const configFileName = "config.yaml"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "selftest":
		cmdSelftest()
	case "inventory":
		cmdInventory()
	case "keyload":
		cmdKeyload()
	case "keyload-many":
		cmdKeyloadMany()
	case "erase":
		cmdErase()
	case "erase-all":
		cmdEraseAll()
	default:
		usage()
		os.Exit(2)
	}
}

// addLoggingFlags registers -v/-log-format on fs and returns a func to call
// after fs.Parse to configure the default slog logger from them.
func addLoggingFlags(fs *flag.FlagSet) func() {
	verbose := fs.Bool("v", false, "enable debug logging")
	logFormat := fs.String("log-format", "text", "log format: text or json")
	return func() {
		level := slog.LevelInfo
		if *verbose {
			level = slog.LevelDebug
		}
		opts := &slog.HandlerOptions{Level: level}
		if *logFormat == "json" {
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
		} else {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
		}
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kfdctl <selftest|inventory|keyload|keyload-many|erase|erase-all> [flags]")
}

func defaultConfigPath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	exeConfigPath := filepath.Join(filepath.Dir(exePath), configFileName)
	if fileExists(exeConfigPath) {
		return exeConfigPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return exeConfigPath, nil
	}
	cwdConfigPath := filepath.Join(cwd, configFileName)
	if fileExists(cwdConfigPath) {
		return cwdConfigPath, nil
	}
	return exeConfigPath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func loadConfig() *config.Config {
	configPath, err := defaultConfigPath()
	if err != nil {
		log.Fatalf("resolve config path failed: %v", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func openDispatcher(cfg *config.Config) (*kfd.Dispatcher, func()) {
	line, err := kfd.NewSysfsLine(*cfg.Interface.DataPin, *cfg.Interface.SensePin)
	if err != nil {
		log.Fatalf("open GPIO lines: %v", err)
	}

	stopBits := kfd.StopBitsBusyThenIdle
	if cfg.Interface.StopBitPolarity == "idle" {
		stopBits = kfd.StopBitsIdle
	}
	codecCfg := kfd.CodecConfig{
		TxKilobaud: cfg.Interface.TxKilobaud,
		RxKilobaud: cfg.Interface.RxKilobaud,
		StopBits:   stopBits,
		RxTimeout:  msDuration(cfg.Interface.ReceiveTimeoutMs),
	}
	sessCfg := kfd.DefaultSessionConfig()
	if cfg.Session.PostReadyDelayUs > 0 {
		sessCfg.PostReadyDelay = usDuration(cfg.Session.PostReadyDelayUs)
	}

	d := kfd.NewDispatcher(line, codecCfg, sessCfg)
	return d, func() {
		d.Shutdown()
		line.Close()
	}
}

func cmdSelftest() {
	fs := flag.NewFlagSet("selftest", flag.ExitOnError)
	configureLogging := addLoggingFlags(fs)
	fs.Parse(os.Args[2:])
	configureLogging()

	cfg := loadConfig()
	line, err := kfd.NewSysfsLine(*cfg.Interface.DataPin, *cfg.Interface.SensePin)
	if err != nil {
		log.Fatalf("open GPIO lines: %v", err)
	}
	defer line.Close()

	result := kfd.SelfTest(line)
	fmt.Printf("Self-test result: 0x%02X\n", byte(result))
	if result != kfd.SelfTestOK {
		os.Exit(1)
	}
}

func cmdInventory() {
	fs := flag.NewFlagSet("inventory", flag.ExitOnError)
	invType := fs.Uint("type", uint(kfd.InventoryListActiveKeys), "inventory type byte")
	configureLogging := addLoggingFlags(fs)
	fs.Parse(os.Args[2:])
	configureLogging()

	cfg := loadConfig()
	d, closeFn := openDispatcher(cfg)
	defer closeFn()

	body, err := d.Inventory(kfd.InventoryType(*invType))
	if err != nil {
		log.Fatalf("inventory failed: %v", err)
	}
	fmt.Printf("Inventory response (%d bytes): % X\n", len(body), body)
}

func cmdKeyload() {
	fs := flag.NewFlagSet("keyload", flag.ExitOnError)
	keysetID := fs.Uint("keyset", 0, "keyset id")
	sln := fs.Uint("sln", 0, "storage location number")
	keyID := fs.Uint("keyid", 0, "key id")
	algo := fs.Uint("algo", uint(kfd.AlgoAES256), "algorithm id")
	keyHex := fs.String("key", "", "key material, hex encoded")
	configureLogging := addLoggingFlags(fs)
	fs.Parse(os.Args[2:])
	configureLogging()

	key, err := hexDecode(*keyHex)
	if err != nil {
		log.Fatalf("invalid -key: %v", err)
	}

	item := kfd.KeyItem{
		KeysetID:    uint16(*keysetID),
		SLN:         uint16(*sln),
		KeyID:       uint16(*keyID),
		AlgorithmID: kfd.AlgorithmID(*algo),
		Key:         key,
	}
	if err := item.Validate(); err != nil {
		log.Fatalf("invalid key: %v", err)
	}

	cfg := loadConfig()
	d, closeFn := openDispatcher(cfg)
	defer closeFn()

	statuses, err := d.Keyload(item)
	if err != nil {
		log.Fatalf("keyload failed: %v", err)
	}
	for _, s := range statuses {
		fmt.Printf("key 0x%04X: status=0x%02X\n", s.KeyID, byte(s.Status))
	}
}

// cmdKeyloadMany loads a batch of keys described in a YAML file, one
// session per key (Dispatcher.KeyloadMany), printing per-key progress as
// each completes and stopping at the first failure.
func cmdKeyloadMany() {
	fs := flag.NewFlagSet("keyload-many", flag.ExitOnError)
	batchPath := fs.String("file", "", "path to a YAML batch file (see keyloadBatch)")
	configureLogging := addLoggingFlags(fs)
	fs.Parse(os.Args[2:])
	configureLogging()

	if *batchPath == "" {
		log.Fatal("-file is required")
	}
	items, err := loadKeyloadBatch(*batchPath)
	if err != nil {
		log.Fatalf("load batch file: %v", err)
	}
	for i, item := range items {
		if err := item.Validate(); err != nil {
			log.Fatalf("batch entry %d: %v", i, err)
		}
	}

	if !confirmDestructive(fmt.Sprintf("This will load %d key(s) onto the connected unit.", len(items))) {
		fmt.Println("Aborted.")
		os.Exit(1)
	}

	cfg := loadConfig()
	d, closeFn := openDispatcher(cfg)
	defer closeFn()

	err = d.KeyloadMany(items, func(index, total int, item kfd.KeyItem, err error) {
		if err != nil {
			fmt.Printf("[%d/%d] key 0x%04X: FAILED: %v\n", index+1, total, item.KeyID, err)
			return
		}
		fmt.Printf("[%d/%d] key 0x%04X: loaded\n", index+1, total, item.KeyID)
	})
	if err != nil {
		log.Fatalf("keyload-many failed: %v", err)
	}
}

func cmdErase() {
	fs := flag.NewFlagSet("erase", flag.ExitOnError)
	keysetID := fs.Uint("keyset", 0, "keyset id")
	sln := fs.Uint("sln", 0, "storage location number")
	configureLogging := addLoggingFlags(fs)
	fs.Parse(os.Args[2:])
	configureLogging()

	cfg := loadConfig()
	d, closeFn := openDispatcher(cfg)
	defer closeFn()

	if err := d.EraseKey(uint16(*keysetID), uint16(*sln)); err != nil {
		log.Fatalf("erase failed: %v", err)
	}
	fmt.Println("Key erased.")
}

func cmdEraseAll() {
	fs := flag.NewFlagSet("erase-all", flag.ExitOnError)
	configureLogging := addLoggingFlags(fs)
	fs.Parse(os.Args[2:])
	configureLogging()

	if !confirmDestructive("This will erase ALL keys on the connected unit.") {
		fmt.Println("Aborted.")
		os.Exit(1)
	}

	cfg := loadConfig()
	d, closeFn := openDispatcher(cfg)
	defer closeFn()

	if err := d.EraseAll(); err != nil {
		log.Fatalf("erase-all failed: %v", err)
	}
	fmt.Println("All keys erased.")
}

// confirmDestructive puts stdin into raw mode and requires the user type
// 'y' before a destructive operation proceeds.
func confirmDestructive(prompt string) bool {
	fmt.Printf("%s Continue? [y/N] ", prompt)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Println()
		return false
	}

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Println()
		return false
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	buf := make([]byte, 1)
	if _, err := os.Stdin.Read(buf); err != nil {
		fmt.Print("\r\n")
		return false
	}
	fmt.Print("\r\n")
	return buf[0] == 'y' || buf[0] == 'Y'
}
