// Command imgtool is the CLI surface over the fat/mbr engine: creating
// image files, and creating, deleting, reading, and writing files and
// directories inside the FAT partitions they contain.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mhaas/imgtool/fat"
	"github.com/mhaas/imgtool/hostfile"
	"github.com/mhaas/imgtool/mbr"
	"github.com/mhaas/imgtool/tables"
)

// copyBlockSize is the transfer block size for copy-in and copy-out.
const copyBlockSize = 8192

func main() {
	app := &cli.App{
		Name:  "imgtool",
		Usage: "Inspect and mutate FAT disk images without mounting them",
		Commands: []*cli.Command{
			createImageCommand(),
			createFileCommand(),
			deleteFileCommand(),
			mkdirCommand(),
			copyInCommand(),
			copyOutCommand(),
			listCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func createImageCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-image",
		Usage:     "Create a new, formatted FAT32 disk image",
		ArgsUsage: "IMAGE_FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "preset", Usage: "predefined geometry slug, e.g. " + firstSlug()},
			&cli.Uint64Flag{Name: "sectors-per-cluster", Value: 0, Usage: "override the preset's cluster size"},
			&cli.Uint64Flag{Name: "reserved-sectors", Value: 32},
			&cli.Uint64Flag{Name: "num-fats", Value: 2},
			&cli.Uint64Flag{Name: "fat-size-sectors", Value: 0, Usage: "override the estimated FAT size"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().Get(0)
			if path == "" {
				return cli.Exit("missing IMAGE_FILE argument", 1)
			}

			preset, err := tables.GetPredefinedDiskGeometry(c.String("preset"))
			if err != nil {
				return err
			}

			params := fat.FormatParams{
				BytesPerSector:    preset.BytesPerSector,
				SectorsPerCluster: preset.SectorsPerCluster,
				ReservedSectorCnt: uint16(c.Uint64("reserved-sectors")),
				NumFATs:           uint8(c.Uint64("num-fats")),
				FATSize32:         uint32(c.Uint64("fat-size-sectors")),
				TotalSectors32:    preset.TotalSectors,
			}
			if spc := c.Uint64("sectors-per-cluster"); spc != 0 {
				params.SectorsPerCluster = uint8(spc)
			}
			if params.FATSize32 == 0 {
				params.FATSize32 = estimateFATSizeSectors(params)
			}

			size := int64(preset.TotalSectors) * int64(preset.BytesPerSector)
			handle, err := hostfile.Create(path, size)
			if err != nil {
				return err
			}
			defer handle.Close()

			if _, err := fat.Format(handle, params); err != nil {
				return err
			}

			fmt.Printf("created %s (%s, %d sectors)\n", path, preset.Name, preset.TotalSectors)
			return nil
		},
	}
}

// estimateFATSizeSectors picks a FAT size generous enough to cover the
// requested volume's cluster count, for callers that do not override
// --fat-size-sectors explicitly.
func estimateFATSizeSectors(p fat.FormatParams) uint32 {
	bytesPerCluster := uint32(p.BytesPerSector) * uint32(p.SectorsPerCluster)
	if bytesPerCluster == 0 {
		return 1
	}
	approxClusters := p.TotalSectors32 * uint32(p.BytesPerSector) / bytesPerCluster
	fatBytes := approxClusters * 4
	fatSectors := (fatBytes + uint32(p.BytesPerSector) - 1) / uint32(p.BytesPerSector)
	if fatSectors == 0 {
		fatSectors = 1
	}
	return fatSectors
}

func firstSlug() string {
	slugs := tables.ListDiskGeometrySlugs()
	if len(slugs) == 0 {
		return ""
	}
	return slugs[0]
}

// openPartition opens the image file at `imagePath` and mounts the FAT
// partition named `p0`, `p1`, ... matching `partitionName`, via mbr.MountAll.
// The returned closer must be closed by the caller once the filesystem
// operation is done. Every file-mutating subcommand shares this.
func openPartition(imagePath, partitionName string) (io.Closer, mbr.Mounted, error) {
	stream, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return nil, mbr.Mounted{}, err
	}

	mounted, err := mbr.MountAll(stream)
	if err != nil {
		stream.Close()
		return nil, mbr.Mounted{}, err
	}

	for _, m := range mounted {
		if m.Name == partitionName {
			return stream, m, nil
		}
	}
	stream.Close()
	return nil, mbr.Mounted{}, fmt.Errorf("no partition named %q found on this image", partitionName)
}

func partitionFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "partition", Value: "p0", Usage: "partition name (p0, p1, ...)"}
}

func createFileCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-file",
		Usage:     "Create an empty file inside a partition",
		ArgsUsage: "IMAGE_FILE TARGET_PATH",
		Flags:     []cli.Flag{partitionFlag()},
		Action: func(c *cli.Context) error {
			imagePath, target := c.Args().Get(0), c.Args().Get(1)
			if imagePath == "" || target == "" {
				return cli.Exit("usage: create-file IMAGE_FILE TARGET_PATH", 1)
			}

			handle, mounted, err := openPartition(imagePath, c.String("partition"))
			if err != nil {
				return err
			}
			defer handle.Close()
			fs := mounted.FS

			_, err = fs.CreateFile(target, fat.TypeFile, false, time.Now(), 0)
			return err
		},
	}
}

func mkdirCommand() *cli.Command {
	return &cli.Command{
		Name:      "mkdir",
		Usage:     "Create a directory inside a partition",
		ArgsUsage: "IMAGE_FILE TARGET_PATH",
		Flags:     []cli.Flag{partitionFlag()},
		Action: func(c *cli.Context) error {
			imagePath, target := c.Args().Get(0), c.Args().Get(1)
			if imagePath == "" || target == "" {
				return cli.Exit("usage: mkdir IMAGE_FILE TARGET_PATH", 1)
			}

			handle, mounted, err := openPartition(imagePath, c.String("partition"))
			if err != nil {
				return err
			}
			defer handle.Close()
			fs := mounted.FS

			_, err = fs.CreateFile(target, fat.TypeDir, false, time.Now(), 0)
			return err
		},
	}
}

func deleteFileCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-file",
		Usage:     "Delete a file inside a partition",
		ArgsUsage: "IMAGE_FILE TARGET_PATH",
		Flags:     []cli.Flag{partitionFlag()},
		Action: func(c *cli.Context) error {
			imagePath, target := c.Args().Get(0), c.Args().Get(1)
			if imagePath == "" || target == "" {
				return cli.Exit("usage: delete-file IMAGE_FILE TARGET_PATH", 1)
			}

			handle, mounted, err := openPartition(imagePath, c.String("partition"))
			if err != nil {
				return err
			}
			defer handle.Close()
			fs := mounted.FS

			req, err := fs.Open(target)
			if err != nil {
				return err
			}
			return fs.DeleteFile(req)
		},
	}
}

func copyInCommand() *cli.Command {
	return &cli.Command{
		Name:  "copy-in",
		Usage: "Copy a host file into a partition, creating it if necessary",
		Flags: []cli.Flag{
			partitionFlag(),
			&cli.StringFlag{Name: "source", Required: true, Usage: "host file"},
			&cli.StringFlag{Name: "target", Required: true, Usage: "destination path inside the image"},
		},
		ArgsUsage: "IMAGE_FILE",
		Action: func(c *cli.Context) error {
			imagePath := c.Args().Get(0)
			if imagePath == "" {
				return cli.Exit("usage: copy-in --source HOST_FILE --target IMAGE_PATH IMAGE_FILE", 1)
			}

			src, err := os.Open(c.String("source"))
			if err != nil {
				return err
			}
			defer src.Close()

			handle, mounted, err := openPartition(imagePath, c.String("partition"))
			if err != nil {
				return err
			}
			defer handle.Close()
			fs := mounted.FS

			req, err := fs.Open(c.String("target"))
			if err != nil {
				req, err = fs.CreateFile(c.String("target"), fat.TypeFile, false, time.Now(), 0)
				if err != nil {
					return err
				}
			}

			buf := make([]byte, copyBlockSize)
			for {
				n, rerr := src.Read(buf)
				if n > 0 {
					if _, werr := fs.Write(&req, buf[:n]); werr != nil {
						return werr
					}
				}
				if rerr == io.EOF {
					break
				}
				if rerr != nil {
					return rerr
				}
			}
			return nil
		},
	}
}

func copyOutCommand() *cli.Command {
	return &cli.Command{
		Name:  "copy-out",
		Usage: "Copy a file out of a partition to the host filesystem",
		Flags: []cli.Flag{
			partitionFlag(),
			&cli.StringFlag{Name: "source", Required: true, Usage: "path inside the image"},
			&cli.StringFlag{Name: "target", Required: true, Usage: "host destination file"},
		},
		ArgsUsage: "IMAGE_FILE",
		Action: func(c *cli.Context) error {
			imagePath := c.Args().Get(0)
			if imagePath == "" {
				return cli.Exit("usage: copy-out --source IMAGE_PATH --target HOST_FILE IMAGE_FILE", 1)
			}

			handle, mounted, err := openPartition(imagePath, c.String("partition"))
			if err != nil {
				return err
			}
			defer handle.Close()
			fs := mounted.FS

			req, err := fs.Open(c.String("source"))
			if err != nil {
				return err
			}

			dst, err := os.Create(c.String("target"))
			if err != nil {
				return err
			}
			defer dst.Close()

			buf := make([]byte, copyBlockSize)
			for {
				n, rerr := fs.Read(&req, buf)
				if n > 0 {
					if _, werr := dst.Write(buf[:n]); werr != nil {
						return werr
					}
				}
				if n < len(buf) {
					break
				}
				if rerr != nil {
					return rerr
				}
			}
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List the contents of a directory inside a partition",
		ArgsUsage: "IMAGE_FILE [TARGET_PATH]",
		Flags:     []cli.Flag{partitionFlag()},
		Action: func(c *cli.Context) error {
			imagePath, target := c.Args().Get(0), c.Args().Get(1)
			if imagePath == "" {
				return cli.Exit("usage: list IMAGE_FILE [TARGET_PATH]", 1)
			}
			if target == "" {
				target = "/"
			}

			handle, mounted, err := openPartition(imagePath, c.String("partition"))
			if err != nil {
				return err
			}
			defer handle.Close()
			fs := mounted.FS

			entries, err := fs.ListDir(target)
			if err != nil {
				return err
			}

			fmt.Printf("%s (%s, %s) %s:\n",
				mounted.Name,
				tables.PartitionTypeName(mounted.Partition.FSType),
				fs.Geometry().Variant,
				target)
			for _, e := range entries {
				kind := "file"
				if e.FileType == fat.TypeDir {
					kind = "dir"
				}
				fmt.Printf("%-5s %10d  %s\n", kind, e.Size, e.Name)
			}
			return nil
		},
	}
}
