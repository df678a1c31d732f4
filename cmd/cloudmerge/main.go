// Command cloudmerge merges a secondary LiDAR frame into the coordinate
// frame of a primary one.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/cloudmerge/internal/cloud"
	"github.com/banshee-data/cloudmerge/internal/dataset"
	"github.com/banshee-data/cloudmerge/internal/fsutil"
	"github.com/banshee-data/cloudmerge/internal/merge"
	"github.com/banshee-data/cloudmerge/internal/mergerpc"
	"github.com/banshee-data/cloudmerge/internal/monitoring"
	"github.com/banshee-data/cloudmerge/internal/report"
	"github.com/banshee-data/cloudmerge/internal/version"
)

type options struct {
	primaryPoints   string
	primaryPose     string
	secondaryPoints string
	secondaryPose   string
	out             string
	html            string
	remote          string
	lenient         bool
	debug           bool
	showVersion     bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("cloudmerge", flag.ContinueOnError)
	fs.StringVar(&o.primaryPoints, "primary", "", "Primary point cloud (.bin)")
	fs.StringVar(&o.primaryPose, "primary-pose", "", "Primary OXTS pose (.txt)")
	fs.StringVar(&o.secondaryPoints, "secondary", "", "Secondary point cloud (.bin)")
	fs.StringVar(&o.secondaryPose, "secondary-pose", "", "Secondary OXTS pose (.txt)")
	fs.StringVar(&o.out, "out", "merged.bin", "Output point cloud path")
	fs.StringVar(&o.html, "html", "", "Optional HTML scatter of the merged cloud")
	fs.StringVar(&o.remote, "remote", "", "Merge via a merge-server at this address instead of locally")
	fs.BoolVar(&o.lenient, "lenient", false, "Accept full OXTS rows and use their first six fields")
	fs.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.showVersion {
		return o, nil
	}
	for _, req := range []struct{ name, value string }{
		{"primary", o.primaryPoints},
		{"primary-pose", o.primaryPose},
		{"secondary", o.secondaryPoints},
		{"secondary-pose", o.secondaryPose},
	} {
		if req.value == "" {
			return nil, fmt.Errorf("-%s is required", req.name)
		}
	}
	return o, nil
}

func loadFrame(l *dataset.Loader, id, points, posePath string) (merge.Frame, error) {
	c, err := l.LoadCloud(points)
	if err != nil {
		return merge.Frame{}, err
	}
	p, err := l.LoadPose(posePath)
	if err != nil {
		return merge.Frame{}, err
	}
	return merge.Frame{ID: id, Cloud: c, Pose: p}, nil
}

func run(ctx context.Context, o *options, fsys fsutil.FileSystem, stdout io.Writer) error {
	loader := dataset.NewLoader(fsys, dataset.Layout{})
	loader.Strict = !o.lenient

	primary, err := loadFrame(loader, "primary", o.primaryPoints, o.primaryPose)
	if err != nil {
		return err
	}
	secondary, err := loadFrame(loader, "secondary", o.secondaryPoints, o.secondaryPose)
	if err != nil {
		return err
	}

	start := time.Now()
	var merged cloud.PointCloud
	if o.remote != "" {
		conn, err := grpc.NewClient(o.remote, append(mergerpc.DialOptions(),
			grpc.WithTransportCredentials(insecure.NewCredentials()))...)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", o.remote, err)
		}
		defer conn.Close()
		merged, err = mergerpc.NewClient(conn).MergeFrames(ctx, primary, secondary)
		if err != nil {
			return fmt.Errorf("remote merge failed: %w", err)
		}
	} else {
		merged = merge.MergeFrames(primary, secondary)
	}
	elapsed := time.Since(start)

	if err := fsys.WriteFile(o.out, cloud.Encode(merged), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", o.out, err)
	}
	fmt.Fprintf(stdout, "merged %d + %d points -> %d in %s, wrote %s\n",
		len(primary.Cloud), len(secondary.Cloud), len(merged), elapsed, o.out)

	if o.html != "" {
		var buf bytes.Buffer
		if err := report.RenderCloudHTML(&buf, merged, "Merged point cloud", report.DefaultMaxPoints); err != nil {
			return err
		}
		if err := fsys.WriteFile(o.html, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", o.html, err)
		}
		fmt.Fprintf(stdout, "wrote %s\n", o.html)
	}
	return nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("cloudmerge: %v", err)
	}
	if o.showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDebug(o.debug)

	if err := run(context.Background(), o, fsutil.OSFileSystem{}, os.Stdout); err != nil {
		log.Fatalf("cloudmerge: %v", err)
	}
}
