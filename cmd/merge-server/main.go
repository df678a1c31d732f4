// Command merge-server serves the point-cloud merge module over gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/banshee-data/cloudmerge/internal/config"
	"github.com/banshee-data/cloudmerge/internal/dataset"
	"github.com/banshee-data/cloudmerge/internal/fsutil"
	"github.com/banshee-data/cloudmerge/internal/merge"
	"github.com/banshee-data/cloudmerge/internal/mergerpc"
	"github.com/banshee-data/cloudmerge/internal/monitoring"
	"github.com/banshee-data/cloudmerge/internal/version"
)

var (
	configPath    = flag.String("config", "", "Optional harness configuration file (.json)")
	listen        = flag.String("listen", "", "gRPC listen address (overrides config)")
	primaryPose   = flag.String("primary-pose", "", "Primary pose for the Execute transform")
	secondaryPose = flag.String("secondary-pose", "", "Secondary pose for the Execute transform")
	debug         = flag.Bool("debug", false, "Enable debug logging")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// buildModule caches the transform between the two pose files for Execute;
// without them Execute is the identity.
func buildModule(fsys fsutil.FileSystem, strict bool, primaryPath, secondaryPath string) (*merge.Module, error) {
	if primaryPath == "" && secondaryPath == "" {
		return merge.NewModule(), nil
	}
	if primaryPath == "" || secondaryPath == "" {
		return nil, fmt.Errorf("-primary-pose and -secondary-pose must be given together")
	}
	loader := dataset.NewLoader(fsys, dataset.Layout{})
	loader.Strict = strict
	a, err := loader.LoadPose(primaryPath)
	if err != nil {
		return nil, err
	}
	b, err := loader.LoadPose(secondaryPath)
	if err != nil {
		return nil, err
	}
	return merge.NewModule(merge.WithPoses(a, b)), nil
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDebug(*debug)

	cfg := config.EmptyHarnessConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadHarnessConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	addr := cfg.GetListenAddr()
	if *listen != "" {
		addr = *listen
	}

	module, err := buildModule(fsutil.OSFileSystem{}, cfg.GetStrictPoses(), *primaryPose, *secondaryPose)
	if err != nil {
		log.Fatalf("failed to build merge module: %v", err)
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", addr, err)
	}

	server := grpc.NewServer(mergerpc.ServerOptions()...)
	mergerpc.RegisterService(server, mergerpc.NewServer(module))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		monitoring.Logf("[gRPC] shutting down")
		server.GracefulStop()
	}()

	monitoring.Logf("[gRPC] %s listening on %s", version.String(), lis.Addr())
	if err := server.Serve(lis); err != nil {
		log.Printf("[gRPC] server error: %v", err)
		os.Exit(1)
	}
}
