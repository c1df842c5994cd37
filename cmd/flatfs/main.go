// Command flatfs manages flat file system disk images.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/dperrone/flatfs"
	"github.com/dperrone/flatfs/imageutil"
	"github.com/dperrone/flatfs/profiles"
)

func main() {
	profileFlag := &cli.StringFlag{
		Name:  "profile",
		Value: "default",
		Usage: fmt.Sprintf("volume geometry, one of: %s", strings.Join(profiles.Slugs(), ", ")),
	}

	app := cli.App{
		Name:  "flatfs",
		Usage: "Manage flat file system disk images",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool("verbose") {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create or wipe an image",
				ArgsUsage: "IMAGE",
				Flags: []cli.Flag{
					profileFlag,
					&cli.StringFlag{
						Name:  "label",
						Usage: "volume label to store in the superblock",
					},
				},
				Action: formatImage,
			},
			{
				Name:      "info",
				Usage:     "Show volume statistics",
				ArgsUsage: "IMAGE",
				Flags:     []cli.Flag{profileFlag},
				Action:    showInfo,
			},
			{
				Name:      "ls",
				Usage:     "List the files on a volume",
				ArgsUsage: "IMAGE",
				Flags:     []cli.Flag{profileFlag},
				Action:    listFiles,
			},
			{
				Name:      "put",
				Usage:     "Copy a host file onto the volume",
				ArgsUsage: "IMAGE NAME [HOST_FILE]",
				Flags:     []cli.Flag{profileFlag},
				Action:    putFile,
			},
			{
				Name:      "get",
				Usage:     "Copy a file from the volume to the host",
				ArgsUsage: "IMAGE NAME [HOST_FILE]",
				Flags:     []cli.Flag{profileFlag},
				Action:    getFile,
			},
			{
				Name:      "rm",
				Usage:     "Delete a file from the volume",
				ArgsUsage: "IMAGE NAME",
				Flags:     []cli.Flag{profileFlag},
				Action:    removeFile,
			},
			{
				Name:      "backup",
				Usage:     "Write a compressed snapshot of an image",
				ArgsUsage: "IMAGE SNAPSHOT",
				Action:    backupImage,
			},
			{
				Name:      "restore",
				Usage:     "Recreate an image from a compressed snapshot",
				ArgsUsage: "SNAPSHOT IMAGE",
				Action:    restoreImage,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatalf("fatal error: %s", err.Error())
	}
}

// geometryFromFlags resolves the --profile flag into capacity constants.
func geometryFromFlags(ctx *cli.Context) (flatfs.Geometry, error) {
	profile, err := profiles.Get(ctx.String("profile"))
	if err != nil {
		return flatfs.Geometry{}, err
	}
	return profile.Geometry(), nil
}

// withMountedImage mounts the image named by the first positional argument,
// runs `action`, and unmounts.
func withMountedImage(ctx *cli.Context, action func(fs *flatfs.FileSystem) error) error {
	imagePath := ctx.Args().Get(0)
	if imagePath == "" {
		return fmt.Errorf("an image path is required")
	}
	geo, err := geometryFromFlags(ctx)
	if err != nil {
		return err
	}

	fs, err := flatfs.Mount(imagePath, geo)
	if err != nil {
		return err
	}
	defer fs.Unmount()
	return action(fs)
}

func formatImage(ctx *cli.Context) error {
	imagePath := ctx.Args().Get(0)
	if imagePath == "" {
		return fmt.Errorf("an image path is required")
	}
	geo, err := geometryFromFlags(ctx)
	if err != nil {
		return err
	}
	opts := flatfs.FormatOptions{Label: ctx.String("label")}
	return flatfs.Format(imagePath, geo, opts)
}

func showInfo(ctx *cli.Context) error {
	return withMountedImage(ctx, func(fs *flatfs.FileSystem) error {
		stat, err := fs.FSStat()
		if err != nil {
			return err
		}
		fmt.Printf("volume:       %s\n", stat.VolumeID)
		if stat.Label != "" {
			fmt.Printf("label:        %s\n", stat.Label)
		}
		fmt.Printf("block size:   %d\n", stat.BlockSize)
		fmt.Printf("total blocks: %d\n", stat.TotalBlocks)
		fmt.Printf("free blocks:  %d\n", stat.BlocksFree)
		fmt.Printf("files:        %d used, %d free\n", stat.Files, stat.FilesFree)
		return nil
	})
}

func listFiles(ctx *cli.Context) error {
	return withMountedImage(ctx, func(fs *flatfs.FileSystem) error {
		names, err := fs.List(int(fs.Geometry().MaxFiles))
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	})
}

func putFile(ctx *cli.Context) error {
	name := ctx.Args().Get(1)
	hostPath := ctx.Args().Get(2)
	if hostPath == "" {
		hostPath = name
	}
	if name == "" {
		return fmt.Errorf("a file name is required")
	}

	data, err := os.ReadFile(hostPath)
	if err != nil {
		return err
	}

	return withMountedImage(ctx, func(fs *flatfs.FileSystem) error {
		if err := fs.Create(name); err != nil && !isExists(err) {
			return err
		}
		return fs.Write(name, data)
	})
}

func getFile(ctx *cli.Context) error {
	name := ctx.Args().Get(1)
	hostPath := ctx.Args().Get(2)
	if hostPath == "" {
		hostPath = name
	}
	if name == "" {
		return fmt.Errorf("a file name is required")
	}

	return withMountedImage(ctx, func(fs *flatfs.FileSystem) error {
		buffer := make([]byte, fs.Geometry().MaxFileSize())
		n, err := fs.Read(name, buffer)
		if err != nil {
			return err
		}
		return os.WriteFile(hostPath, buffer[:n], 0o644)
	})
}

func removeFile(ctx *cli.Context) error {
	name := ctx.Args().Get(1)
	if name == "" {
		return fmt.Errorf("a file name is required")
	}
	return withMountedImage(ctx, func(fs *flatfs.FileSystem) error {
		return fs.Delete(name)
	})
}

func backupImage(ctx *cli.Context) error {
	imagePath := ctx.Args().Get(0)
	snapshotPath := ctx.Args().Get(1)
	if imagePath == "" || snapshotPath == "" {
		return fmt.Errorf("usage: backup IMAGE SNAPSHOT")
	}
	return imageutil.SnapshotFile(imagePath, snapshotPath)
}

func restoreImage(ctx *cli.Context) error {
	snapshotPath := ctx.Args().Get(0)
	imagePath := ctx.Args().Get(1)
	if snapshotPath == "" || imagePath == "" {
		return fmt.Errorf("usage: restore SNAPSHOT IMAGE")
	}
	return imageutil.RestoreFile(snapshotPath, imagePath)
}

func isExists(err error) bool {
	return errors.Is(err, flatfs.ErrExists)
}
