package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/pharaofranz/jive5ab/pkg/config"
	"github.com/pharaofranz/jive5ab/pkg/logger"
	"github.com/pharaofranz/jive5ab/pkg/vbs"
)

const usage = `usage: vbsfs [flags] <command> [recording]

commands:
  ls                list recordings on the mountpoints
  info <recording>  print size, chunk count and coverage
  cat <recording>   stream the recording to stdout

flags:
`

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}
	cfg := config.Load()

	var (
		root        = pflag.String("root", cfg.Root, "directory scanned for disk[0-9]+ mountpoints")
		mountpoints = pflag.StringSlice("mountpoints", cfg.Mountpoints, "explicit mountpoint directories (overrides --root)")
		mk6         = pflag.Bool("mk6", false, "recording is in Mark6 container layout")
	)
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	logger.Init(cfg.LogLevel)

	fs := afero.NewOsFs()
	registry := vbs.NewRegistry(fs)
	if cfg.ScanCacheSize > 0 {
		registry.EnableScanCache(cfg.ScanCacheSize, cfg.ScanCacheTTL)
	}
	defer registry.CloseAll()

	mps := *mountpoints
	if len(mps) == 0 {
		var err error
		mps, err = vbs.FindMountpoints(fs, *root)
		if err != nil {
			logger.Fatal("cannot discover mountpoints", "root", *root, "err", err)
		}
	}
	if len(mps) == 0 {
		logger.Fatal("no mountpoints found", "root", *root)
	}

	format := vbs.FlexBuff
	if *mk6 {
		format = vbs.Mk6
	}

	args := pflag.Args()
	if len(args) == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "ls":
		err = runLs(fs, mps)
	case "info":
		err = runInfo(registry, mps, format, args[1:])
	case "cat":
		err = runCat(registry, mps, format, args[1:])
	default:
		pflag.Usage()
		os.Exit(2)
	}
	if err != nil {
		if errors.Is(err, vbs.ErrNotFound) {
			logger.Fatal("recording not found on these mountpoints", "mountpoints", strings.Join(mps, ","))
		}
		logger.Fatal("command failed", "command", args[0], "err", err)
	}
}

func runLs(fs afero.Fs, mountpoints []string) error {
	recordings, err := vbs.ListRecordings(fs, mountpoints)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(recordings))
	for name := range recordings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-10s %s\n", recordings[name], name)
	}
	return nil
}

func runInfo(registry *vbs.Registry, mountpoints []string, format vbs.Format, args []string) error {
	if len(args) != 1 {
		return errors.New("info takes exactly one recording name")
	}
	fd, err := registry.Open(args[0], mountpoints, format)
	if err != nil {
		return err
	}
	defer registry.Close(fd)

	info, err := registry.Stat(fd)
	if err != nil {
		return err
	}
	fmt.Printf("recording: %s\n", args[0])
	fmt.Printf("size:      %d bytes\n", info.Size)
	fmt.Printf("chunks:    %d\n", info.Chunks)
	fmt.Printf("coverage:  %.1f%%\n", info.Coverage*100)
	return nil
}

func runCat(registry *vbs.Registry, mountpoints []string, format vbs.Format, args []string) error {
	if len(args) != 1 {
		return errors.New("cat takes exactly one recording name")
	}
	f, err := registry.OpenFile(args[0], mountpoints, format)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := io.Copy(os.Stdout, f)
	logger.Debug("streamed recording", "recording", args[0], "bytes", n)
	return err
}
